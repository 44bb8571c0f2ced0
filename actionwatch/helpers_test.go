package actionwatch

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/actionwatch/action"
	"github.com/hazyhaar/actionwatch/dom"
	"github.com/hazyhaar/actionwatch/fetch"
	"github.com/hazyhaar/actionwatch/idgen"
	"github.com/hazyhaar/actionwatch/registry"
	"github.com/hazyhaar/actionwatch/resolve"
	"github.com/hazyhaar/actionwatch/security"
)

const siteManifest = `{"rules":[{"pathPattern":"/donate/*","apiPath":"https://api.site.example/donate/*"}]}`

// stubNet answers GETs from a fixed table and records every request.
type stubNet struct {
	mu     sync.Mutex
	routes map[string]string
	hits   []string
}

func newStubNet(routes map[string]string) *stubNet {
	return &stubNet{routes: routes}
}

func (s *stubNet) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	s.hits = append(s.hits, req.URL.String())
	body, ok := s.routes[req.URL.String()]
	s.mu.Unlock()

	status := http.StatusOK
	if !ok {
		status = http.StatusNotFound
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func (s *stubNet) requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hits...)
}

func (s *stubNet) client() *fetch.Client {
	return fetch.New(fetch.Config{Transport: s, URLValidator: fetch.AllowAll, Timeout: 2 * time.Second})
}

// fakeAdapter serves descriptors without a network and counts calls.
type fakeAdapter struct {
	calls atomic.Int32
	mu    sync.Mutex
	urls  []string
	title func(n int32) string
	err   error

	// hold, when set, runs before call n returns.
	hold func(n int32)
}

func (a *fakeAdapter) Fetch(_ context.Context, endpoint string) (*action.Descriptor, error) {
	n := a.calls.Add(1)
	a.mu.Lock()
	a.urls = append(a.urls, endpoint)
	a.mu.Unlock()
	if a.hold != nil {
		a.hold(n)
	}
	if a.err != nil {
		return nil, a.err
	}
	title := "Donate"
	if a.title != nil {
		title = a.title(n)
	}
	return &action.Descriptor{
		Type:  action.TypeAction,
		Icon:  "https://cdn.example/icon.png",
		Title: title,
		Label: "Send",
		URL:   endpoint,
	}, nil
}

func (a *fakeAdapter) endpoints() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.urls...)
}

func trustList() registry.List {
	return registry.List{
		Websites: []registry.Entry{
			{Host: "site.example", State: security.Trusted},
			{Host: "nomanifest.example", State: security.Trusted},
		},
		Interstitials: []registry.Entry{{Host: "dial.to", State: security.Trusted}, {Host: "bad.example", State: security.Malicious}},
		Actions: []registry.Entry{
			{Host: "api.site.example", State: security.Trusted},
			{Host: "evil.example", State: security.Malicious},
		},
	}
}

// baseOptions wires a static registry, the stub network, the dial.to
// decoder and deterministic ids.
func baseOptions(net *stubNet, extra ...Option) []Option {
	opts := []Option{
		WithRegistry(registry.New(registry.WithStatic(trustList()))),
		WithFetcher(net.client()),
		WithInterstitials(resolve.QueryDecoder{Hosts: []string{"dial.to", "bad.example"}}),
		WithIDGenerator(idgen.Sequence("")),
		WithTimeout(2 * time.Second),
	}
	return append(opts, extra...)
}

func defaultNet() *stubNet {
	return newStubNet(map[string]string{
		"https://site.example/actions.json": siteManifest,
	})
}

func mustDoc(t *testing.T, src string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(src, "https://x.com/home")
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func find(t *testing.T, doc *dom.Document, sel string) *html.Node {
	t.Helper()
	var n *html.Node
	doc.View(func(root *html.Node) { n = dom.QuerySelector(root, dom.MustCompile(sel)) })
	if n == nil {
		t.Fatalf("no match for %s", sel)
	}
	return n
}

func countSel(doc *dom.Document, sel string) int {
	var n int
	doc.View(func(root *html.Node) { n = len(dom.QuerySelectorAll(root, dom.MustCompile(sel))) })
	return n
}

// insert parses src and appends it under the element matching parentSel.
func insert(t *testing.T, doc *dom.Document, parentSel, src string) []*html.Node {
	t.Helper()
	nodes, err := dom.ParseFragment(src)
	if err != nil {
		t.Fatal(err)
	}
	parent := find(t, doc, parentSel)
	doc.Update(func(m *dom.Mutator) {
		for _, n := range nodes {
			m.AppendChild(parent, n)
		}
	})
	return nodes
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
		var zero T
		return zero
	}
}
