// Package candidate finds the (anchor, mount point) pair for a newly
// inserted element. Three strategies are tried in order and the first match
// wins: a link-preview card, the last link of a text region, and, on
// container-first platforms, the inserted container itself.
package candidate

import (
	"strings"

	"github.com/hazyhaar/actionwatch/dom"
	"golang.org/x/net/html"
)

// Kind names the strategy that produced a candidate.
type Kind int

const (
	Card Kind = iota
	Text
	Container
)

func (k Kind) String() string {
	switch k {
	case Card:
		return "card"
	case Text:
		return "text"
	default:
		return "container"
	}
}

// Position places a new wrapper relative to Placement.Ref.
type Position int

const (
	Append  Position = iota // last child of Ref
	Prepend                 // first child of Ref
	After                   // next sibling of Ref
	Before                  // previous sibling of Ref
)

func (p Position) String() string {
	switch p {
	case Append:
		return "append"
	case Prepend:
		return "prepend"
	case After:
		return "after"
	default:
		return "before"
	}
}

// Placement is where the wrapper goes.
type Placement struct {
	Position Position
	Ref      *html.Node
}

// Candidate is one link to resolve and where to mount its result. Nodes are
// only valid while the document is alive; nothing keeps them past one
// dispatch.
type Candidate struct {
	Kind   Kind
	Anchor *html.Node
	Href   string
	Key    string // XPath of the anchor at extraction time

	Placement Placement
	// Existing is a wrapper found near a card; it is removed and recreated
	// at mount time.
	Existing *html.Node
	// Container is the enclosing post or message of a card or text
	// candidate, if any.
	Container *html.Node
	Message   bool

	WrapperClass string
	MessageClass string
}

// IsPreviewCard reports whether the candidate came from a link-preview card.
func (c *Candidate) IsPreviewCard() bool { return c.Kind == Card }

// Claimer records processed elements. Claim returns false when n was
// already claimed.
type Claimer interface {
	Claim(n *html.Node) bool
}

// Extractor applies one platform's heuristics.
type Extractor struct {
	platform Platform
	claims   Claimer
	wrapper  dom.Selector
	anchors  dom.Selector
	posts    dom.Selector
}

// NewExtractor creates an extractor. claims is shared with the mount side so
// that a claimed element is never mounted twice.
func NewExtractor(p Platform, claims Claimer) *Extractor {
	groups := []string{}
	for _, s := range []dom.Selector{p.Post, p.Message} {
		if !s.Empty() {
			groups = append(groups, s.String())
		}
	}
	e := &Extractor{
		platform: p,
		claims:   claims,
		wrapper:  dom.MustCompile("." + p.wrapperClass()),
		anchors:  dom.MustCompile("a[href]"),
	}
	if len(groups) > 0 {
		e.posts = dom.MustCompile(strings.Join(groups, ", "))
	}
	return e
}

// Platform returns the platform definition.
func (e *Extractor) Platform() Platform { return e.platform }

// Accepts is the cheap pre-check: marker match and not part of a wrapper.
// Call it under a read lock.
func (e *Extractor) Accepts(n *html.Node) bool {
	if !e.platform.Accepts(n) {
		return false
	}
	return dom.Closest(n, e.wrapper) == nil
}

// Extract runs the strategies for n. It claims processed elements, so it
// runs under the document write lock; it never changes the tree.
func (e *Extractor) Extract(doc *dom.Document, n *html.Node) (*Candidate, bool) {
	var (
		c  *Candidate
		ok bool
	)
	doc.Update(func(m *dom.Mutator) {
		if n.Parent == nil || !e.Accepts(n) {
			return
		}
		c, ok = e.extract(n)
	})
	return c, ok
}

func (e *Extractor) extract(n *html.Node) (*Candidate, bool) {
	if c, ok := e.fromCard(n); ok {
		return c, true
	}
	if c, ok := e.fromText(n); ok {
		return c, true
	}
	if e.platform.ContainerFirst {
		return e.fromContainer(n)
	}
	return nil, false
}

func (e *Extractor) fromCard(n *html.Node) (*Candidate, bool) {
	if e.platform.Card.Empty() {
		return nil, false
	}
	card := dom.FindSelf(n, e.platform.Card)
	if card == nil {
		return nil, false
	}
	anchor := dom.QuerySelector(card, e.anchors)
	if anchor == nil {
		return nil, false
	}
	c := e.newCandidate(Card, anchor, Placement{Position: After, Ref: card})
	if container := e.container(card); container != nil {
		c.Container = container
		c.Existing = dom.QuerySelector(container, e.wrapper)
		c.Message = e.isMessage(card)
	}
	return c, true
}

func (e *Extractor) fromText(n *html.Node) (*Candidate, bool) {
	if e.platform.Text.Empty() {
		return nil, false
	}
	text := dom.FindSelf(n, e.platform.Text)
	if text == nil || text.Parent == nil {
		return nil, false
	}
	container := e.container(text)
	if container != nil && dom.QuerySelector(container, e.wrapper) != nil {
		return nil, false
	}
	links := dom.QuerySelectorAll(text, e.anchors)
	if len(links) == 0 {
		return nil, false
	}
	message := e.isMessage(text)
	place := Placement{Position: Append, Ref: text.Parent}
	if message {
		if text.Parent.Parent == nil {
			return nil, false
		}
		place = Placement{Position: Prepend, Ref: text.Parent.Parent}
	}
	if !e.claims.Claim(text) {
		return nil, false
	}
	c := e.newCandidate(Text, links[len(links)-1], place)
	c.Container = container
	c.Message = message
	return c, true
}

func (e *Extractor) fromContainer(n *html.Node) (*Candidate, bool) {
	if !e.platform.Container.Empty() && !e.platform.Container.Match(n) {
		return nil, false
	}
	if dom.QuerySelector(n, e.wrapper) != nil {
		return nil, false
	}
	links := dom.QuerySelectorAll(n, e.anchors)
	if len(links) == 0 {
		return nil, false
	}
	message := !e.platform.Message.Empty() && e.platform.Message.Match(n)
	place := Placement{Position: After, Ref: n}
	if message {
		place.Position = Before
	}
	if !e.claims.Claim(n) {
		return nil, false
	}
	c := e.newCandidate(Container, links[len(links)-1], place)
	c.Message = message
	return c, true
}

func (e *Extractor) newCandidate(k Kind, anchor *html.Node, place Placement) *Candidate {
	return &Candidate{
		Kind:         k,
		Anchor:       anchor,
		Href:         strings.TrimSpace(dom.Attr(anchor, "href")),
		Key:          dom.XPath(anchor),
		Placement:    place,
		WrapperClass: e.platform.wrapperClass(),
		MessageClass: e.platform.messageClass(),
	}
}

// container returns the enclosing post or message of n.
func (e *Extractor) container(n *html.Node) *html.Node {
	if e.posts.Empty() {
		return nil
	}
	return dom.Closest(n, e.posts)
}

func (e *Extractor) isMessage(n *html.Node) bool {
	return !e.platform.Message.Empty() && dom.Closest(n, e.platform.Message) != nil
}
