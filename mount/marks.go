package mount

import (
	"runtime"
	"sync"
	"weak"

	"golang.org/x/net/html"
)

// Marks is the processed-element side table. Entries hold weak references,
// so a node dropped from the document (and from every other reference) is
// collected and its entry removed.
type Marks struct {
	mu  sync.Mutex
	set map[weak.Pointer[html.Node]]struct{}
}

// NewMarks creates an empty table.
func NewMarks() *Marks {
	return &Marks{set: make(map[weak.Pointer[html.Node]]struct{})}
}

// Claim marks n as processed. It returns false if n was already claimed.
func (m *Marks) Claim(n *html.Node) bool {
	wp := weak.Make(n)
	m.mu.Lock()
	if _, ok := m.set[wp]; ok {
		m.mu.Unlock()
		return false
	}
	m.set[wp] = struct{}{}
	m.mu.Unlock()

	runtime.AddCleanup(n, m.forget, wp)
	return true
}

// Has reports whether n is claimed.
func (m *Marks) Has(n *html.Node) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.set[weak.Make(n)]
	return ok
}

// Len returns the number of live entries.
func (m *Marks) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.set)
}

func (m *Marks) forget(wp weak.Pointer[html.Node]) {
	m.mu.Lock()
	delete(m.set, wp)
	m.mu.Unlock()
}
