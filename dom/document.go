// Package dom is the in-memory content tree that the action pipeline
// observes. It wraps a golang.org/x/net/html tree with a read/write lock and
// delivers childList insertion records to subtree observers, the way a
// browser MutationObserver does.
//
// Every read goes through View and every write through Update. The helpers
// in node.go operate on raw *html.Node values and assume the caller holds
// the appropriate lock.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a concurrency-safe HTML tree for one page.
type Document struct {
	mu   sync.RWMutex
	root *html.Node
	url  string

	obsMu     sync.Mutex
	observers []*observer
}

// New wraps an already parsed tree.
func New(root *html.Node, pageURL string) *Document {
	return &Document{root: root, url: pageURL}
}

// Parse reads an HTML document.
func Parse(r io.Reader, pageURL string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return New(root, pageURL), nil
}

// ParseString is Parse over a string.
func ParseString(src, pageURL string) (*Document, error) {
	return Parse(strings.NewReader(src), pageURL)
}

// ParseFragment parses src as children of a <body> element. The returned
// nodes are detached and can be inserted with a Mutator.
func ParseFragment(src string) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(src), ctx)
	if err != nil {
		return nil, fmt.Errorf("dom: parse fragment: %w", err)
	}
	return nodes, nil
}

// URL returns the page URL the document was loaded from.
func (d *Document) URL() string { return d.url }

// View runs fn with the read lock held.
func (d *Document) View(fn func(root *html.Node)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(d.root)
}

// Update runs fn with the write lock held. Insertions made through the
// Mutator are delivered to observers after the lock is released.
func (d *Document) Update(fn func(m *Mutator)) {
	d.mu.Lock()
	m := &Mutator{root: d.root}
	fn(m)
	batches := d.route(m.records)
	d.mu.Unlock()

	for obs, recs := range batches {
		obs.enqueue(recs)
	}
}

// Render serialises the whole document.
func (d *Document) Render() string {
	var buf bytes.Buffer
	d.View(func(root *html.Node) {
		_ = html.Render(&buf, root)
	})
	return buf.String()
}

// Observe registers fn for childList records whose target is target or one
// of its descendants. Records are delivered in order on a dedicated
// goroutine. The returned function detaches the observer.
func (d *Document) Observe(target *html.Node, fn func([]Record)) (stop func()) {
	obs := newObserver(target, fn)

	d.obsMu.Lock()
	d.observers = append(d.observers, obs)
	d.obsMu.Unlock()

	go obs.run()

	return func() {
		d.obsMu.Lock()
		for i, o := range d.observers {
			if o == obs {
				d.observers = append(d.observers[:i], d.observers[i+1:]...)
				break
			}
		}
		d.obsMu.Unlock()
		obs.close()
	}
}

// route splits records per interested observer. Must be called with mu held
// so that ancestry checks see a consistent tree.
func (d *Document) route(records []Record) map[*observer][]Record {
	if len(records) == 0 {
		return nil
	}
	d.obsMu.Lock()
	defer d.obsMu.Unlock()

	out := make(map[*observer][]Record, len(d.observers))
	for _, obs := range d.observers {
		for _, rec := range records {
			if Contains(obs.target, rec.Target) {
				out[obs] = append(out[obs], rec)
			}
		}
	}
	return out
}
