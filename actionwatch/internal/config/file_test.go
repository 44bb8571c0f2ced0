package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/actionwatch/registry"
	"github.com/hazyhaar/actionwatch/security"
)

const sample = `
platform: feed
security_level:
  websites: non-malicious
  actions: all
registry:
  url: https://registry.example/v1/list
  static:
    websites:
      - host: dial.to
        state: trusted
proxy_url: https://proxy.example/fetch
fetch:
  timeout: 3s
  max_bytes: 65536
interstitial:
  hosts: [dial.to]
sinks:
  - type: stdout
  - type: webhook
    url: https://hooks.example/in
pages:
  - id: home
    url: https://feed.example/
  - id: dms
    url: https://x.com/messages
    platform: x
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actionwatch.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	want := security.Policy{
		Websites:      security.NonMalicious,
		Interstitials: security.OnlyTrusted,
		Actions:       security.All,
	}
	if diff := cmp.Diff(want, cfg.SecurityLevel.Policy()); diff != "" {
		t.Errorf("policy (-want +got):\n%s", diff)
	}
	if cfg.Fetch.Timeout != 3*time.Second || cfg.Fetch.MaxBytes != 65536 {
		t.Errorf("fetch: %+v", cfg.Fetch)
	}
	if diff := cmp.Diff([]registry.Entry{{Host: "dial.to", State: security.Trusted}}, cfg.Registry.Static.Websites); diff != "" {
		t.Errorf("static (-want +got):\n%s", diff)
	}
	if cfg.Interstitial.Param != "action" {
		t.Errorf("param default: %q", cfg.Interstitial.Param)
	}
	if cfg.Sinks[1].Retries != 3 || cfg.Sinks[0].Retries != 0 {
		t.Errorf("sink retries: %+v", cfg.Sinks)
	}
	if cfg.Pages[0].Platform != "feed" || cfg.Pages[1].Platform != "x" {
		t.Errorf("page platforms: %+v", cfg.Pages)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Platform != "x" || cfg.Fetch.Timeout != 10*time.Second {
		t.Errorf("defaults: %+v", cfg)
	}
	if cfg.SecurityLevel.Policy() != security.DefaultPolicy() {
		t.Errorf("security default: %+v", cfg.SecurityLevel.Policy())
	}
	if cfg.Registry.RefreshInterval != registry.DefaultRefreshInterval {
		t.Errorf("refresh: %v", cfg.Registry.RefreshInterval)
	}
}

func TestParse_ScalarSecurityLevel(t *testing.T) {
	cfg, err := Parse([]byte("security_level: all\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SecurityLevel.Policy() != security.Uniform(security.All) {
		t.Errorf("got %+v", cfg.SecurityLevel.Policy())
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("security_level: sometimes\n")); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error")
	}
}
