// Package mount places rendered actions into the content tree. A mount
// resolves the wrapper for a candidate (reusing one already at the
// placement, or creating it), then replaces the wrapper's children with the
// render root, so remounting supersedes rather than appends.
package mount

import (
	"errors"
	"log/slog"

	"github.com/hazyhaar/actionwatch/candidate"
	"github.com/hazyhaar/actionwatch/dom"
	"github.com/hazyhaar/actionwatch/idgen"
	"golang.org/x/net/html"
)

// ErrDetached is returned when the placement reference left the document
// before the mount.
var ErrDetached = errors.New("mount: placement detached")

// ErrTaken is returned when a text candidate's container gained a wrapper
// between extraction and mount. Cards take precedence over text links.
var ErrTaken = errors.New("mount: container already has a wrapper")

// Layout offsets.
const (
	MarginTop           = "12px"
	MessageMarginBottom = "8px"
)

// AttrMountID carries the mount identifier on every wrapper.
const AttrMountID = "data-mount-id"

// Result describes one completed mount.
type Result struct {
	Wrapper     *html.Node `json:"-"`
	MountID     string     `json:"mount_id"`
	XPath       string     `json:"xpath"`
	RefXPath    string     `json:"ref_xpath"`
	Position    string     `json:"position"`
	Replaced    []string   `json:"replaced,omitempty"` // XPaths of removed wrappers
	Reused      bool       `json:"reused"`
	Message     bool       `json:"message"`
	WrapperHTML string     `json:"wrapper_html"`
}

// Mounter performs mounts.
type Mounter struct {
	ids    idgen.Generator
	logger *slog.Logger
}

// Option configures a Mounter.
type Option func(*Mounter)

// WithIDGenerator sets the generator for wrapper mount IDs.
func WithIDGenerator(g idgen.Generator) Option {
	return func(m *Mounter) { m.ids = g }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mounter) { m.logger = l }
}

// New creates a Mounter.
func New(opts ...Option) *Mounter {
	m := &Mounter{
		ids:    idgen.Prefixed("mnt_", idgen.Default),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Mount places root for c under the document write lock.
func (m *Mounter) Mount(doc *dom.Document, c *candidate.Candidate, root *html.Node) (*Result, error) {
	var (
		res *Result
		err error
	)
	doc.Update(func(mu *dom.Mutator) {
		res, err = m.mount(mu, c, root)
	})
	if err != nil {
		return nil, err
	}
	m.logger.Debug("mount: mounted",
		"mount_id", res.MountID, "xpath", res.XPath,
		"position", res.Position, "reused", res.Reused, "replaced", len(res.Replaced))
	return res, nil
}

func (m *Mounter) mount(mu *dom.Mutator, c *candidate.Candidate, root *html.Node) (*Result, error) {
	ref := c.Placement.Ref
	if ref == nil || !dom.Contains(mu.Root(), ref) {
		return nil, ErrDetached
	}
	if needsParent(c.Placement.Position) && ref.Parent == nil {
		return nil, ErrDetached
	}

	// Extraction ran before the fetches; look at the container again under
	// the write lock.
	existing := c.Existing
	if c.Container != nil && dom.Contains(mu.Root(), c.Container) {
		current := wrapperIn(c.Container, c.WrapperClass)
		switch c.Kind {
		case candidate.Text:
			if current != nil {
				return nil, ErrTaken
			}
		case candidate.Card:
			// A wrapper already at the placement is reused below.
			existing = current
			if current != nil && current == existingAt(c.Placement, c.WrapperClass) {
				existing = nil
			}
		}
	}

	res := &Result{
		Position: c.Placement.Position.String(),
		Message:  c.Message,
		RefXPath: dom.XPath(ref),
	}

	if old := existing; old != nil && dom.Contains(mu.Root(), old) {
		res.Replaced = append(res.Replaced, dom.XPath(old))
		mu.Remove(old)
	}

	wrapper := existingAt(c.Placement, c.WrapperClass)
	if wrapper != nil {
		res.Reused = true
		res.MountID = dom.Attr(wrapper, AttrMountID)
	} else {
		res.MountID = m.ids()
		wrapper = dom.NewElement("div", "class", c.WrapperClass, AttrMountID, res.MountID)
		insert(mu, c.Placement, wrapper)
	}
	if c.Message {
		dom.AddClass(wrapper, c.MessageClass)
	}

	mu.SetStyle(wrapper, "margin-top", MarginTop)
	if c.Message {
		mu.SetStyle(wrapper, "margin-bottom", MessageMarginBottom)
	}
	if root != nil {
		mu.ReplaceChildren(wrapper, root)
	} else {
		mu.ReplaceChildren(wrapper)
	}

	res.Wrapper = wrapper
	res.XPath = dom.XPath(wrapper)
	res.WrapperHTML = dom.OuterHTML(wrapper)
	return res, nil
}

func needsParent(p candidate.Position) bool {
	return p == candidate.After || p == candidate.Before
}

// wrapperIn returns the first wrapper inside container.
func wrapperIn(container *html.Node, class string) *html.Node {
	var found *html.Node
	dom.Walk(container, func(n *html.Node) {
		if found == nil && n != container && dom.HasClass(n, class) {
			found = n
		}
	})
	return found
}

// existingAt returns a wrapper already sitting at the placement.
func existingAt(p candidate.Placement, class string) *html.Node {
	var n *html.Node
	switch p.Position {
	case candidate.After:
		n = dom.NextElement(p.Ref)
	case candidate.Before:
		n = dom.PrevElement(p.Ref)
	case candidate.Append:
		if kids := dom.ElementChildren(p.Ref); len(kids) > 0 {
			n = kids[len(kids)-1]
		}
	case candidate.Prepend:
		if kids := dom.ElementChildren(p.Ref); len(kids) > 0 {
			n = kids[0]
		}
	}
	if n != nil && dom.HasClass(n, class) {
		return n
	}
	return nil
}

func insert(mu *dom.Mutator, p candidate.Placement, wrapper *html.Node) {
	switch p.Position {
	case candidate.After:
		mu.InsertAfter(p.Ref, wrapper)
	case candidate.Before:
		mu.InsertBefore(p.Ref, wrapper)
	case candidate.Prepend:
		mu.PrependChild(p.Ref, wrapper)
	default:
		mu.AppendChild(p.Ref, wrapper)
	}
}
