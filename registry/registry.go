// Package registry is the default trust oracle: a host list, fetched as JSON
// from a registry endpoint or seeded statically, that classifies website,
// interstitial and action URLs as trusted, unknown or malicious.
//
// Document format:
//
//	{
//	  "websites":      [{"host": "dial.to", "state": "trusted"}],
//	  "interstitials": [{"host": "dial.to", "state": "trusted"}],
//	  "actions":       [{"host": "evil.example", "state": "malicious"}]
//	}
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/actionwatch/fetch"
	"github.com/hazyhaar/actionwatch/security"
)

// DefaultRefreshInterval is used by Run when none is configured.
const DefaultRefreshInterval = 10 * time.Minute

// Entry classifies one host.
type Entry struct {
	Host  string              `json:"host" yaml:"host"`
	State security.TrustState `json:"state" yaml:"state"`
}

// List is the registry document.
type List struct {
	Websites      []Entry `json:"websites" yaml:"websites"`
	Interstitials []Entry `json:"interstitials" yaml:"interstitials"`
	Actions       []Entry `json:"actions" yaml:"actions"`
}

type table map[security.Category]map[string]security.TrustState

// Registry holds the current classification table. Lookups are safe for
// concurrent use; refreshes swap the whole table.
type Registry struct {
	url      string
	client   *fetch.Client
	interval time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	tables table
	static List
	loaded time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithURL sets the JSON endpoint. Without it the registry serves only the
// static list.
func WithURL(u string) Option {
	return func(r *Registry) { r.url = u }
}

// WithClient sets the HTTP client used for refreshes.
func WithClient(c *fetch.Client) Option {
	return func(r *Registry) { r.client = c }
}

// WithRefreshInterval sets the Run interval.
func WithRefreshInterval(d time.Duration) Option {
	return func(r *Registry) { r.interval = d }
}

// WithStatic seeds entries that are always present. Fetched entries for the
// same host override them.
func WithStatic(l List) Option {
	return func(r *Registry) { r.static = l }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates a Registry. Call Init before relying on lookups.
func New(opts ...Option) *Registry {
	r := &Registry{
		interval: DefaultRefreshInterval,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.client == nil {
		r.client = fetch.New(fetch.Config{Logger: r.logger})
	}
	r.tables = build(r.static, List{})
	return r
}

// Init performs the first load. With no URL it succeeds immediately with
// the static list.
func (r *Registry) Init(ctx context.Context) error {
	if r.url == "" {
		r.Load(List{})
		return nil
	}
	return r.Refresh(ctx)
}

// Refresh fetches the list and swaps the table. On failure the previous
// table stays in place.
func (r *Registry) Refresh(ctx context.Context) error {
	if r.url == "" {
		return errors.New("registry: no URL configured")
	}
	var l List
	if err := r.client.GetJSON(ctx, r.url, &l); err != nil {
		return fmt.Errorf("registry: refresh: %w", err)
	}
	r.Load(l)
	r.logger.Debug("registry: refreshed",
		"url", r.url,
		"websites", len(l.Websites), "interstitials", len(l.Interstitials), "actions", len(l.Actions))
	return nil
}

// Load replaces the fetched part of the table with l.
func (r *Registry) Load(l List) {
	t := build(r.static, l)
	r.mu.Lock()
	r.tables = t
	r.loaded = time.Now()
	r.mu.Unlock()
}

// Run refreshes on the configured interval until ctx is done. Failures are
// logged and retried on the next tick.
func (r *Registry) Run(ctx context.Context) {
	if r.url == "" {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn("registry: refresh failed", "url", r.url, "error", err)
			}
		}
	}
}

// LoadedAt returns when the table was last replaced.
func (r *Registry) LoadedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Classify returns the trust state for rawURL in category c. Unparseable
// URLs and unlisted hosts are unknown.
func (r *Registry) Classify(c security.Category, rawURL string) security.TrustState {
	host := hostOf(rawURL)
	if host == "" {
		return security.Unknown
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if st, ok := r.tables[c][host]; ok {
		return st
	}
	return security.Unknown
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func build(lists ...List) table {
	t := table{
		security.Websites:      {},
		security.Interstitials: {},
		security.Actions:       {},
	}
	for _, l := range lists {
		add(t[security.Websites], l.Websites)
		add(t[security.Interstitials], l.Interstitials)
		add(t[security.Actions], l.Actions)
	}
	return t
}

func add(m map[string]security.TrustState, entries []Entry) {
	for _, e := range entries {
		host := strings.ToLower(strings.TrimSpace(e.Host))
		if host == "" {
			continue
		}
		switch e.State {
		case security.Trusted, security.Malicious, security.Unknown:
			m[host] = e.State
		}
	}
}
