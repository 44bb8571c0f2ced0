// Package config handles actionwatch configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/actionwatch/registry"
	"github.com/hazyhaar/actionwatch/security"
)

// Config is the top-level actionwatch configuration.
type Config struct {
	Platform      string             `yaml:"platform"`
	SecurityLevel security.Config    `yaml:"security_level"` // scalar or per-category mapping
	Registry      RegistryConfig     `yaml:"registry"`
	ProxyURL      string             `yaml:"proxy_url"`
	Fetch         FetchConfig        `yaml:"fetch"`
	Interstitial  InterstitialConfig `yaml:"interstitial"`
	DirectSchemes []string           `yaml:"direct_schemes"`
	Concurrency   int                `yaml:"concurrency"` // one-shot scans
	Sinks         []SinkConfig       `yaml:"sinks"`
	Pages         []PageConfig       `yaml:"pages"`
	Browser       BrowserConfig      `yaml:"browser"`
	HTTP          HTTPConfig         `yaml:"http"`
}

// RegistryConfig locates the trust registry.
type RegistryConfig struct {
	URL             string        `yaml:"url"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	Static          registry.List `yaml:"static"`
}

// FetchConfig bounds every outbound request.
type FetchConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxBytes     int64         `yaml:"max_bytes"`
	UserAgent    string        `yaml:"user_agent"`
	AllowPrivate bool          `yaml:"allow_private"` // skip the SSRF guard (tests, intranets)
}

// InterstitialConfig configures the default interstitial decoder.
type InterstitialConfig struct {
	Hosts  []string `yaml:"hosts"`
	Param  string   `yaml:"param"`
	Prefix string   `yaml:"prefix"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type    string `yaml:"type"` // stdout | webhook
	URL     string `yaml:"url"`  // for webhook
	Retries int    `yaml:"retries"`
}

// PageConfig defines a page to observe live.
type PageConfig struct {
	ID       string `yaml:"id"`
	URL      string `yaml:"url"`
	Platform string `yaml:"platform"` // overrides the top-level platform
}

// BrowserConfig controls Chrome for live observation.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Stealth          bool          `yaml:"stealth"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	NavTimeout       time.Duration `yaml:"nav_timeout"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with only defaults applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Platform == "" {
		c.Platform = "x"
	}
	if c.Registry.RefreshInterval <= 0 {
		c.Registry.RefreshInterval = registry.DefaultRefreshInterval
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 10 * time.Second
	}
	if c.Interstitial.Param == "" {
		c.Interstitial.Param = "action"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8088"
	}
	for i := range c.Sinks {
		if c.Sinks[i].Type == "webhook" && c.Sinks[i].Retries <= 0 {
			c.Sinks[i].Retries = 3
		}
	}
	for i := range c.Pages {
		if c.Pages[i].Platform == "" {
			c.Pages[i].Platform = c.Platform
		}
	}
}
