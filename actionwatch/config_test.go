package actionwatch

import (
	"bytes"
	"strings"
	"testing"

	"github.com/hazyhaar/actionwatch/security"
)

func TestBuildStack(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
platform: feed
security_level:
  websites: non-malicious
  interstitials: only-trusted
  actions: only-trusted
proxy_url: https://proxy.example/fetch
interstitial:
  hosts: [dial.to]
direct_schemes: ["solana-action:", "solana:"]
registry:
  static:
    actions:
      - host: api.site.example
        state: trusted
`))
	if err != nil {
		t.Fatal(err)
	}
	st, err := BuildStack(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if st.Platform.Name != "feed" || st.Adapter == nil || st.Fetcher == nil || st.Registry == nil {
		t.Errorf("stack: %+v", st)
	}

	w, err := New(mustDoc(t, "<html><body></body></html>"), st.Adapter, Callbacks{}, st.Options...)
	if err != nil {
		t.Fatal(err)
	}
	if p := w.resolver.Policy(); p.Websites != security.NonMalicious || p.Actions != security.OnlyTrusted {
		t.Errorf("policy: %+v", p)
	}
	out, err := w.Resolve(t.Context(), "solana:https://api.site.example/pay")
	if err != nil {
		t.Fatal(err)
	}
	if !out.OK() || out.ActionURL != "https://api.site.example/pay" {
		t.Errorf("custom direct scheme: %+v", out)
	}
}

func TestBuildStack_UnknownPlatform(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Platform = "myspace"
	if _, err := BuildStack(cfg, nil); err == nil || !strings.Contains(err.Error(), "myspace") {
		t.Errorf("got %v", err)
	}
}

func TestSinksFromConfig(t *testing.T) {
	var buf bytes.Buffer
	sinks, err := SinksFromConfig([]SinkConfig{
		{Type: "stdout"},
		{Type: "webhook", URL: "https://hooks.example/in", Retries: 1},
	}, &buf, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(sinks) != 2 {
		t.Fatalf("sinks: %d", len(sinks))
	}
	if err := sinks[0].Send(t.Context(), Instruction{ID: "ins_1"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"ins_1"`) {
		t.Errorf("stdout sink wrote %q", buf.String())
	}

	for name, cfg := range map[string]SinkConfig{
		"unknown type":        {Type: "kafka"},
		"webhook without url": {Type: "webhook"},
	} {
		if _, err := SinksFromConfig([]SinkConfig{cfg}, nil, nil); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
