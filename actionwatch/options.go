package actionwatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/actionwatch/action"
	"github.com/hazyhaar/actionwatch/actionwatch/internal/sink"
	"github.com/hazyhaar/actionwatch/candidate"
	"github.com/hazyhaar/actionwatch/fetch"
	"github.com/hazyhaar/actionwatch/idgen"
	"github.com/hazyhaar/actionwatch/registry"
	"github.com/hazyhaar/actionwatch/render"
	"github.com/hazyhaar/actionwatch/resolve"
	"github.com/hazyhaar/actionwatch/security"
)

// Registry is initialised once before observation starts. A failing Init
// prevents the watcher from starting.
type Registry interface {
	Init(ctx context.Context) error
}

// Callbacks are optional hooks; nil fields are skipped. They run on the
// dispatch goroutine.
type Callbacks struct {
	OnMount  func(Instruction)
	OnReject func(*Rejection)
}

// Option configures a Watcher.
type Option func(*options)

type options struct {
	policy         security.Policy
	platform       candidate.Platform
	registry       Registry
	oracle         resolve.TrustOracle
	decoder        resolve.InterstitialDecoder
	mapper         resolve.ManifestMapper
	proxy          resolve.Proxy
	fetcher        *fetch.Client
	presenter      render.Presenter
	isSupported    action.SupportFunc
	sinks          []sink.Sink
	logger         *slog.Logger
	timeout        time.Duration
	directPrefixes []string
	ids            idgen.Generator
	concurrency    int
	registryReady  bool
}

func defaultOptions() options {
	return options{
		policy:      security.DefaultPolicy(),
		platform:    candidate.X,
		timeout:     fetch.DefaultTimeout,
		ids:         idgen.Default,
		concurrency: 8,
	}
}

// finish fills the collaborators left unset. With neither a registry nor
// an oracle, an empty static registry is used, so every URL is unknown.
func (o *options) finish() {
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.registry == nil && o.oracle == nil {
		reg := registry.New(registry.WithLogger(o.logger))
		o.registry, o.oracle = reg, reg
	}
	if o.oracle == nil {
		if tr, ok := o.registry.(resolve.TrustOracle); ok {
			o.oracle = tr
		}
	}
	if o.fetcher == nil {
		o.fetcher = fetch.New(fetch.Config{Timeout: o.timeout, Logger: o.logger})
	}
	if o.presenter == nil {
		o.presenter = render.NewHTMLPresenter()
	}
}

// WithSecurityLevel sets the per-category policy. Default: only-trusted
// everywhere.
func WithSecurityLevel(p security.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithPlatform selects the discovery heuristics. Default: candidate.X.
func WithPlatform(p candidate.Platform) Option {
	return func(o *options) { o.platform = p }
}

// WithRegistry sets the registry initialised at Start. If it also
// classifies URLs it becomes the trust oracle unless WithOracle is given.
func WithRegistry(r Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithOracle sets the trust oracle.
func WithOracle(t resolve.TrustOracle) Option {
	return func(o *options) { o.oracle = t }
}

// WithInterstitials sets the interstitial decoder.
func WithInterstitials(d resolve.InterstitialDecoder) Option {
	return func(o *options) { o.decoder = d }
}

// WithMapper sets the actions.json mapper. Default: manifest.Mapper.
func WithMapper(m resolve.ManifestMapper) Option {
	return func(o *options) { o.mapper = m }
}

// WithProxy routes manifest fetches through p.
func WithProxy(p resolve.Proxy) Option {
	return func(o *options) { o.proxy = p }
}

// WithFetcher sets the HTTP client for unshortening and manifest fetches.
func WithFetcher(c *fetch.Client) Option {
	return func(o *options) { o.fetcher = c }
}

// WithPresenter sets the presentation layer. Default: render.HTMLPresenter.
func WithPresenter(p render.Presenter) Option {
	return func(o *options) { o.presenter = p }
}

// WithIsSupported sets the predicate consulted after the action fetch.
// Returning false declines the action and leaves the tree untouched.
func WithIsSupported(f action.SupportFunc) Option {
	return func(o *options) { o.isSupported = f }
}

// WithSinks adds output sinks for instructions and rejections.
func WithSinks(s ...sink.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s...) }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTimeout bounds each network stage. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithDirectSchemes sets the prefixes that mark direct action URLs.
func WithDirectSchemes(prefixes ...string) Option {
	return func(o *options) { o.directPrefixes = prefixes }
}

// WithIDGenerator sets the generator for mount and instruction IDs.
func WithIDGenerator(g idgen.Generator) Option {
	return func(o *options) { o.ids = g }
}

// WithConcurrency bounds parallel dispatches during Sweep. Default: 8.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// withRegistryReady marks the registry as already initialised by a
// long-lived owner, so a per-request watcher does not fetch it again.
func withRegistryReady() Option {
	return func(o *options) { o.registryReady = true }
}
