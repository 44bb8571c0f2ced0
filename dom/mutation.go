package dom

import (
	"sync"

	"golang.org/x/net/html"
)

// Record describes one childList change, as delivered to observers.
type Record struct {
	Target  *html.Node   // parent whose children changed
	Added   []*html.Node // in insertion order; may include text nodes
	Removed []*html.Node
}

// Mutator applies changes while the document write lock is held. Each
// structural change is recorded for observers.
type Mutator struct {
	root    *html.Node
	records []Record
}

// Root returns the document root.
func (m *Mutator) Root() *html.Node { return m.root }

// AppendChild appends child as the last child of parent.
func (m *Mutator) AppendChild(parent, child *html.Node) {
	detach(child)
	parent.AppendChild(child)
	m.added(parent, child)
}

// PrependChild inserts child as the first child of parent.
func (m *Mutator) PrependChild(parent, child *html.Node) {
	detach(child)
	if parent.FirstChild == nil {
		parent.AppendChild(child)
	} else {
		parent.InsertBefore(child, parent.FirstChild)
	}
	m.added(parent, child)
}

// InsertBefore inserts child right before ref.
func (m *Mutator) InsertBefore(ref, child *html.Node) {
	parent := ref.Parent
	if parent == nil {
		return
	}
	detach(child)
	parent.InsertBefore(child, ref)
	m.added(parent, child)
}

// InsertAfter inserts child right after ref.
func (m *Mutator) InsertAfter(ref, child *html.Node) {
	parent := ref.Parent
	if parent == nil {
		return
	}
	detach(child)
	if ref.NextSibling == nil {
		parent.AppendChild(child)
	} else {
		parent.InsertBefore(child, ref.NextSibling)
	}
	m.added(parent, child)
}

// InsertAt inserts child so that it becomes the index-th element child of
// parent. Out of range indexes append.
func (m *Mutator) InsertAt(parent, child *html.Node, index int) {
	kids := ElementChildren(parent)
	if index < 0 || index >= len(kids) {
		m.AppendChild(parent, child)
		return
	}
	m.InsertBefore(kids[index], child)
}

// Remove detaches n from its parent.
func (m *Mutator) Remove(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	parent.RemoveChild(n)
	m.records = append(m.records, Record{Target: parent, Removed: []*html.Node{n}})
}

// ReplaceChildren removes every child of parent and appends children.
func (m *Mutator) ReplaceChildren(parent *html.Node, children ...*html.Node) {
	var removed []*html.Node
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		removed = append(removed, c)
		c = next
	}
	for _, c := range children {
		detach(c)
		parent.AppendChild(c)
	}
	m.records = append(m.records, Record{Target: parent, Added: children, Removed: removed})
}

// SetAttr sets or replaces an attribute. Attribute changes are not
// recorded.
func (m *Mutator) SetAttr(n *html.Node, key, val string) {
	SetAttr(n, key, val)
}

// SetStyle sets one inline style property.
func (m *Mutator) SetStyle(n *html.Node, prop, val string) {
	SetStyle(n, prop, val)
}

func (m *Mutator) added(parent, child *html.Node) {
	// Coalesce consecutive insertions under the same parent into one record.
	if last := len(m.records) - 1; last >= 0 && m.records[last].Target == parent && len(m.records[last].Removed) == 0 {
		m.records[last].Added = append(m.records[last].Added, child)
		return
	}
	m.records = append(m.records, Record{Target: parent, Added: []*html.Node{child}})
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// observer queues record batches and delivers them one batch at a time.
type observer struct {
	target *html.Node
	fn     func([]Record)

	mu      sync.Mutex
	queue   [][]Record
	wake    chan struct{}
	done    chan struct{}
	closeMu sync.Once
}

func newObserver(target *html.Node, fn func([]Record)) *observer {
	return &observer{
		target: target,
		fn:     fn,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (o *observer) enqueue(recs []Record) {
	o.mu.Lock()
	o.queue = append(o.queue, recs)
	o.mu.Unlock()
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *observer) run() {
	for {
		select {
		case <-o.done:
			return
		case <-o.wake:
		}
		for {
			o.mu.Lock()
			if len(o.queue) == 0 {
				o.mu.Unlock()
				break
			}
			batch := o.queue[0]
			o.queue = o.queue[1:]
			o.mu.Unlock()

			select {
			case <-o.done:
				return
			default:
			}
			o.fn(batch)
		}
	}
}

func (o *observer) close() {
	o.closeMu.Do(func() { close(o.done) })
}
