package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/actionwatch/fetch"
	"github.com/hazyhaar/actionwatch/security"
)

const doc = `{
  "websites": [{"host": "dial.to", "state": "trusted"}],
  "interstitials": [{"host": "Dial.To", "state": "trusted"}],
  "actions": [
    {"host": "actions.example", "state": "trusted"},
    {"host": "evil.example", "state": "malicious"}
  ]
}`

func newServer(t *testing.T, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient() *fetch.Client {
	return fetch.New(fetch.Config{URLValidator: fetch.AllowAll})
}

func TestInit_FetchesAndClassifies(t *testing.T) {
	srv := newServer(t, doc, nil)
	r := New(WithURL(srv.URL), WithClient(testClient()))
	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	tests := []struct {
		cat  security.Category
		url  string
		want security.TrustState
	}{
		{security.Websites, "https://dial.to/?action=x", security.Trusted},
		{security.Interstitials, "https://dial.to/", security.Trusted},
		{security.Actions, "https://actions.example/api/donate", security.Trusted},
		{security.Actions, "https://EVIL.example/a", security.Malicious},
		{security.Actions, "https://dial.to/a", security.Unknown},
		{security.Websites, "https://other.example/", security.Unknown},
		{security.Websites, "::not a url", security.Unknown},
	}
	for _, tt := range tests {
		if got := r.Classify(tt.cat, tt.url); got != tt.want {
			t.Errorf("Classify(%s, %q) = %s, want %s", tt.cat, tt.url, got, tt.want)
		}
	}
	if r.LoadedAt().IsZero() {
		t.Error("LoadedAt should be set after init")
	}
}

func TestInit_FailurePropagates(t *testing.T) {
	// WHAT: A failing registry endpoint fails Init.
	// WHY: Observation must not start without a trust table.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := New(WithURL(srv.URL), WithClient(testClient()))
	if err := r.Init(context.Background()); err == nil {
		t.Fatal("expected init error")
	}
}

func TestInit_StaticOnly(t *testing.T) {
	r := New(WithStatic(List{Websites: []Entry{{Host: "shop.example", State: security.Trusted}}}))
	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if got := r.Classify(security.Websites, "https://shop.example/item"); got != security.Trusted {
		t.Errorf("static entry: got %s", got)
	}
	if err := r.Refresh(context.Background()); err == nil {
		t.Error("Refresh without URL should fail")
	}
}

func TestLoad_FetchedOverridesStatic(t *testing.T) {
	r := New(WithStatic(List{Actions: []Entry{{Host: "a.example", State: security.Trusted}}}))
	r.Load(List{Actions: []Entry{{Host: "a.example", State: security.Malicious}}})
	if got := r.Classify(security.Actions, "https://a.example/"); got != security.Malicious {
		t.Errorf("got %s, want malicious", got)
	}
	r.Load(List{})
	if got := r.Classify(security.Actions, "https://a.example/"); got != security.Trusted {
		t.Errorf("static should return after reload: got %s", got)
	}
}

func TestRun_Refreshes(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, doc, &hits)
	r := New(WithURL(srv.URL), WithClient(testClient()), WithRefreshInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for hits.Load() < 2 {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("refresh ticks: got %d", hits.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
