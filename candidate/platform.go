package candidate

import (
	"slices"
	"sort"
	"strings"

	"github.com/hazyhaar/actionwatch/dom"
	"golang.org/x/net/html"
)

// Default wrapper classes.
const (
	DefaultWrapperClass = "actionwatch-root"
	DefaultMessageClass = "actionwatch-message"
)

// Platform describes how actions are discovered on one kind of page. Every
// platform-specific decision is data here; the extractor has no per-platform
// branches.
type Platform struct {
	Name string

	// Root is the observation root. Empty selects <body>.
	Root dom.Selector

	// An inserted element is considered only if its tag is in MarkerTags or
	// it carries one of MarkerClasses. Both empty accepts everything.
	MarkerTags    []string
	MarkerClasses []string

	Card    dom.Selector // link-preview card
	Post    dom.Selector // post container
	Message dom.Selector // message / DM container
	Text    dom.Selector // text region inside a post or message

	// ContainerFirst enables the container fallback: an inserted element
	// matching Container is itself the mount anchor.
	ContainerFirst bool
	Container      dom.Selector

	// ShortenerHosts are unshortened before classification.
	ShortenerHosts []string

	WrapperClass string
	MessageClass string
}

// X is the platform definition for x.com / twitter.com timelines and DMs.
var X = Platform{
	Name:           "x",
	Root:           dom.MustCompile("#react-root"),
	MarkerTags:     []string{"div"},
	Card:           dom.MustCompile(`[data-testid="card.wrapper"]`),
	Post:           dom.MustCompile(`[data-testid="tweet"]`),
	Message:        dom.MustCompile(`[data-testid="messageEntry"]`),
	Text:           dom.MustCompile(`[data-testid="tweetText"]`),
	ShortenerHosts: []string{"t.co"},
}

// Feed is a container-first chat/feed layout where every post or message
// is inserted as one animated block.
var Feed = Platform{
	Name:           "feed",
	MarkerClasses:  []string{"fade-in", "relative"},
	Card:           dom.MustCompile(".embed-card"),
	Post:           dom.MustCompile(".post"),
	Message:        dom.MustCompile(".message"),
	Text:           dom.MustCompile(".post-text, .message-text"),
	ContainerFirst: true,
	Container:      dom.MustCompile(".post, .message"),
}

var platforms = map[string]Platform{
	X.Name:    X,
	"twitter": X,
	Feed.Name: Feed,
}

// Lookup returns a built-in platform by name.
func Lookup(name string) (Platform, bool) {
	p, ok := platforms[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Names lists the built-in platform names.
func Names() []string {
	out := make([]string, 0, len(platforms))
	for n := range platforms {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Accepts reports whether n passes the platform's quick reject.
func (p Platform) Accepts(n *html.Node) bool {
	if !dom.IsElement(n) {
		return false
	}
	if len(p.MarkerTags) == 0 && len(p.MarkerClasses) == 0 {
		return true
	}
	if slices.Contains(p.MarkerTags, n.Data) {
		return true
	}
	for _, c := range p.MarkerClasses {
		if dom.HasClass(n, c) {
			return true
		}
	}
	return false
}

// FindRoot returns the observation root under doc root, or nil.
func (p Platform) FindRoot(root *html.Node) *html.Node {
	if !p.Root.Empty() {
		if n := dom.QuerySelector(root, p.Root); n != nil {
			return n
		}
	}
	return dom.QuerySelector(root, bodySel)
}

func (p Platform) wrapperClass() string {
	if p.WrapperClass == "" {
		return DefaultWrapperClass
	}
	return p.WrapperClass
}

func (p Platform) messageClass() string {
	if p.MessageClass == "" {
		return DefaultMessageClass
	}
	return p.MessageClass
}

var bodySel = dom.MustCompile("body")
