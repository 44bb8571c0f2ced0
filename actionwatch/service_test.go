package actionwatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type resolveBody struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Outcome struct {
		Kind      string `json:"kind"`
		ActionURL string `json:"action_url"`
		Stage     string `json:"stage"`
		State     string `json:"state"`
	} `json:"outcome"`
}

func newTestService(t *testing.T) (*Service, *fakeAdapter) {
	t.Helper()
	adapter := &fakeAdapter{}
	svc, err := NewService(adapter, baseOptions(defaultNet())...)
	if err != nil {
		t.Fatal(err)
	}
	return svc, adapter
}

func scanDocument() string {
	return strings.Replace(timeline, `<main id="timeline"></main>`, `<main id="timeline">`+
		cardTweet("a", "https://site.example/donate/1")+
		textTweet("b", "https://unknown.example/x")+`</main>`, 1)
}

func TestHandler_Healthz(t *testing.T) {
	svc, _ := newTestService(t)
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("status %d, body %v", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
}

func TestHandler_Resolve(t *testing.T) {
	svc, adapter := newTestService(t)
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/resolve")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing url: status %d", resp.StatusCode)
	}

	tests := []struct {
		link  string
		ok    bool
		kind  string
		stage string
	}{
		{"https://site.example/donate/7", true, "website", ""},
		{"solana-action:https://evil.example/api", false, "rejected", "action-check"},
	}
	for _, tt := range tests {
		resp, err := http.Get(srv.URL + "/v1/resolve?url=" + url.QueryEscape(tt.link))
		if err != nil {
			t.Fatal(err)
		}
		var body resolveBody
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status %d", tt.link, resp.StatusCode)
		}
		if body.OK != tt.ok || body.Outcome.Kind != tt.kind || body.Outcome.Stage != tt.stage {
			t.Errorf("%s: got %+v", tt.link, body)
		}
		if !tt.ok && body.Error == "" {
			t.Errorf("%s: rejection without error text", tt.link)
		}
	}
	if adapter.calls.Load() != 0 {
		t.Error("resolve must not fetch the action")
	}
}

func TestHandler_Scan(t *testing.T) {
	svc, adapter := newTestService(t)
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	payload, _ := json.Marshal(ScanRequest{HTML: scanDocument(), URL: "https://x.com/home"})
	resp, err := http.Post(srv.URL+"/v1/scan", "application/json", strings.NewReader(string(payload)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var res ScanResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if len(res.Instructions) != 1 || res.Instructions[0].Branch != "website" {
		t.Errorf("instructions: %+v", res.Instructions)
	}
	if len(res.Rejections) != 1 || res.Rejections[0].Class != "security" {
		t.Errorf("rejections: %+v", res.Rejections)
	}
	if res.Stats.Mounted != 1 || res.Stats.Rejected != 1 {
		t.Errorf("stats: %+v", res.Stats)
	}
	if !strings.Contains(res.HTML, `class="actionwatch-root"`) {
		t.Error("rendered document should contain the wrapper")
	}
	if adapter.calls.Load() != 1 {
		t.Errorf("adapter calls: %d", adapter.calls.Load())
	}
}

func TestHandler_ScanBadRequests(t *testing.T) {
	svc, _ := newTestService(t)
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	for name, body := range map[string]string{
		"invalid json":     `{`,
		"empty html":       `{"html":"  "}`,
		"unknown platform": `{"html":"<p>x</p>","platform":"myspace"}`,
	} {
		resp, err := http.Post(srv.URL+"/v1/scan", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", name, resp.StatusCode)
		}
	}
}

func TestService_ScanIsolatesDocuments(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for range 2 {
		res, err := svc.Scan(ctx, ScanRequest{HTML: scanDocument(), URL: "https://x.com/home"})
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Instructions) != 1 {
			t.Errorf("instructions: %d", len(res.Instructions))
		}
	}
}

func mcpSession(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	impl := &mcp.Implementation{Name: "actionwatch-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	s, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMCP_Tools(t *testing.T) {
	svc, _ := newTestService(t)
	s := mcpSession(t, svc)
	ctx := context.Background()

	res, err := s.CallTool(ctx, &mcp.CallToolParams{
		Name:      "actionwatch_resolve",
		Arguments: map[string]any{"url": "https://dial.to/?action=solana-action:https://api.site.example/x"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}
	var rb resolveBody
	if err := json.Unmarshal([]byte(res.Content[0].(*mcp.TextContent).Text), &rb); err != nil {
		t.Fatal(err)
	}
	if !rb.OK || rb.Outcome.Kind != "interstitial" || rb.Outcome.ActionURL != "https://api.site.example/x" {
		t.Errorf("resolve: %+v", rb)
	}

	res, err = s.CallTool(ctx, &mcp.CallToolParams{
		Name:      "actionwatch_scan",
		Arguments: map[string]any{"html": scanDocument(), "url": "https://x.com/home"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}
	var sr ScanResult
	if err := json.Unmarshal([]byte(res.Content[0].(*mcp.TextContent).Text), &sr); err != nil {
		t.Fatal(err)
	}
	if len(sr.Instructions) != 1 {
		t.Errorf("scan instructions: %+v", sr.Instructions)
	}

	res, err = s.CallTool(ctx, &mcp.CallToolParams{
		Name:      "actionwatch_resolve",
		Arguments: map[string]any{"url": ""},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("empty url should be a tool error")
	}
}
