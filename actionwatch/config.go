package actionwatch

import (
	"fmt"
	"log/slog"

	"github.com/hazyhaar/actionwatch/action"
	"github.com/hazyhaar/actionwatch/actionwatch/internal/config"
	"github.com/hazyhaar/actionwatch/candidate"
	"github.com/hazyhaar/actionwatch/fetch"
	"github.com/hazyhaar/actionwatch/registry"
	"github.com/hazyhaar/actionwatch/resolve"
)

// Config is the top-level actionwatch configuration. Re-exported from internal.
type Config = config.Config

// RegistryConfig locates the trust registry.
type RegistryConfig = config.RegistryConfig

// FetchConfig bounds outbound requests.
type FetchConfig = config.FetchConfig

// InterstitialConfig configures the default interstitial decoder.
type InterstitialConfig = config.InterstitialConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// PageConfig defines a page to observe live.
type PageConfig = config.PageConfig

// BrowserConfig controls Chrome for live observation.
type BrowserConfig = config.BrowserConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// ParseConfig decodes YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	return config.Parse(data)
}

// DefaultConfig returns a configuration with only defaults applied.
func DefaultConfig() *Config {
	return config.Default()
}

// Stack is the set of shared collaborators built from a Config. One Stack
// serves every watcher of a process, so the registry is fetched once.
type Stack struct {
	Registry *registry.Registry
	Fetcher  *fetch.Client
	Adapter  action.Adapter
	Platform candidate.Platform
	Options  []Option
}

// BuildStack wires a Config into watcher options.
func BuildStack(cfg *Config, logger *slog.Logger) (*Stack, error) {
	if logger == nil {
		logger = slog.Default()
	}
	platform, ok := candidate.Lookup(cfg.Platform)
	if !ok {
		return nil, fmt.Errorf("actionwatch: unknown platform %q (known: %v)", cfg.Platform, candidate.Names())
	}

	fc := fetch.Config{
		Timeout:   cfg.Fetch.Timeout,
		MaxBytes:  cfg.Fetch.MaxBytes,
		UserAgent: cfg.Fetch.UserAgent,
		Logger:    logger,
	}
	if cfg.Fetch.AllowPrivate {
		fc.URLValidator = fetch.AllowAll
	}
	client := fetch.New(fc)

	regOpts := []registry.Option{
		registry.WithClient(client),
		registry.WithRefreshInterval(cfg.Registry.RefreshInterval),
		registry.WithStatic(cfg.Registry.Static),
		registry.WithLogger(logger),
	}
	if cfg.Registry.URL != "" {
		regOpts = append(regOpts, registry.WithURL(cfg.Registry.URL))
	}
	reg := registry.New(regOpts...)

	opts := []Option{
		WithSecurityLevel(cfg.SecurityLevel.Policy()),
		WithPlatform(platform),
		WithRegistry(reg),
		WithFetcher(client),
		WithTimeout(cfg.Fetch.Timeout),
		WithConcurrency(cfg.Concurrency),
		WithLogger(logger),
	}
	if cfg.ProxyURL != "" {
		opts = append(opts, WithProxy(resolve.QueryProxy{Base: cfg.ProxyURL}))
	}
	if len(cfg.Interstitial.Hosts) > 0 {
		opts = append(opts, WithInterstitials(resolve.QueryDecoder{
			Hosts:  cfg.Interstitial.Hosts,
			Param:  cfg.Interstitial.Param,
			Prefix: cfg.Interstitial.Prefix,
		}))
	}
	if len(cfg.DirectSchemes) > 0 {
		opts = append(opts, WithDirectSchemes(cfg.DirectSchemes...))
	}

	return &Stack{
		Registry: reg,
		Fetcher:  client,
		Adapter:  action.NewHTTPAdapter(client),
		Platform: platform,
		Options:  opts,
	}, nil
}
