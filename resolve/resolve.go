// Package resolve turns a raw link into an action endpoint. Three mutually
// exclusive branches are tried in order: a direct action URL, an
// interstitial wrapping one, or a website whose actions.json maps the page
// to an endpoint. Each branch passes through its security checkpoint and
// every successful branch ends at the actions checkpoint.
//
// Resolve never panics and never returns an error: every failure is a
// Rejected outcome naming the stage and the cause.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"github.com/hazyhaar/actionwatch/fetch"
	"github.com/hazyhaar/actionwatch/manifest"
	"github.com/hazyhaar/actionwatch/security"
)

// Config wires the resolver's collaborators. Nil fields take defaults.
type Config struct {
	Policy  security.Policy // zero value means DefaultPolicy
	Oracle  TrustOracle     // nil: every URL is unknown
	Decoder InterstitialDecoder
	Mapper  ManifestMapper // default: manifest.Mapper
	Proxy   Proxy          // default: identity
	Getter  Getter         // default: fetch.New with defaults

	// ShortenerHosts are unshortened before classification.
	ShortenerHosts []string
	// DirectPrefixes mark direct action URLs. Default: DefaultDirectPrefix.
	DirectPrefixes []string

	Logger *slog.Logger
}

// Resolver is safe for concurrent use; it holds no per-link state.
type Resolver struct {
	cfg Config
}

// New creates a Resolver.
func New(cfg Config) *Resolver {
	if cfg.Policy == (security.Policy{}) {
		cfg.Policy = security.DefaultPolicy()
	}
	if cfg.Oracle == nil {
		cfg.Oracle = unknownOracle{}
	}
	if cfg.Mapper == nil {
		cfg.Mapper = manifest.Mapper{}
	}
	if cfg.Proxy == nil {
		cfg.Proxy = QueryProxy{}
	}
	if cfg.Getter == nil {
		cfg.Getter = fetch.New(fetch.Config{})
	}
	if len(cfg.DirectPrefixes) == 0 {
		cfg.DirectPrefixes = []string{DefaultDirectPrefix}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{cfg: cfg}
}

// Policy returns the effective security policy.
func (r *Resolver) Policy() security.Policy { return r.cfg.Policy }

// Resolve runs the classification protocol for one link.
func (r *Resolver) Resolve(ctx context.Context, raw string) Outcome {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return reject(raw, StageParse, ErrResolution, "empty URL")
	}

	var out Outcome
	if inner, ok := r.direct(raw); ok {
		out = r.directBranch(raw, inner)
	} else {
		out = r.linkBranch(ctx, raw)
	}
	if !out.OK() {
		return out
	}
	return r.actionCheck(out)
}

func (r *Resolver) direct(raw string) (string, bool) {
	for _, p := range r.cfg.DirectPrefixes {
		if len(raw) > len(p) && strings.EqualFold(raw[:len(p)], p) {
			return raw[len(p):], true
		}
	}
	return "", false
}

func (r *Resolver) directBranch(raw, inner string) Outcome {
	u, err := parseHTTP(inner)
	if err != nil {
		return rejectErr(raw, StageParse, ErrResolution, err)
	}
	return Outcome{Kind: DirectAction, SourceURL: raw, ResolvedURL: raw, ActionURL: u.String()}
}

func (r *Resolver) linkBranch(ctx context.Context, raw string) Outcome {
	u, err := parseHTTP(raw)
	if err != nil {
		return rejectErr(raw, StageParse, ErrResolution, err)
	}

	resolved := u
	if r.isShortener(u) {
		target, err := Unshorten(ctx, r.cfg.Getter, u.String())
		if err != nil {
			return rejectErr(raw, StageUnshorten, ErrFetch, err)
		}
		// An unshortened direct action URL takes the direct branch.
		if inner, ok := r.direct(target); ok {
			out := r.directBranch(raw, inner)
			out.ResolvedURL = target
			return out
		}
		if resolved, err = parseHTTP(target); err != nil {
			return rejectErr(raw, StageUnshorten, ErrResolution, err)
		}
		r.cfg.Logger.Debug("resolve: unshortened", "from", raw, "to", target)
	}

	if r.cfg.Decoder != nil {
		if decoded, ok := r.cfg.Decoder.Detect(resolved); ok {
			return r.interstitialBranch(raw, resolved, decoded)
		}
	}
	return r.websiteBranch(ctx, raw, resolved)
}

func (r *Resolver) interstitialBranch(raw string, page *url.URL, decoded string) Outcome {
	state := r.cfg.Oracle.Classify(security.Interstitials, page.String())
	if !r.cfg.Policy.Check(security.Interstitials, state) {
		return reject(raw, StageInterstitialCheck, ErrSecurity,
			"%s is %s, need %s", page.Host, state, r.cfg.Policy.Interstitials)
	}
	u, err := parseHTTP(decoded)
	if err != nil {
		return rejectErr(raw, StageDecode, ErrResolution, err)
	}
	return Outcome{Kind: Interstitial, SourceURL: raw, ResolvedURL: page.String(), ActionURL: u.String()}
}

func (r *Resolver) websiteBranch(ctx context.Context, raw string, page *url.URL) Outcome {
	state := r.cfg.Oracle.Classify(security.Websites, page.String())
	if !r.cfg.Policy.Check(security.Websites, state) {
		return reject(raw, StageWebsiteCheck, ErrSecurity,
			"%s is %s, need %s", page.Host, state, r.cfg.Policy.Websites)
	}

	manifestURL := manifest.URL(page)
	res, err := r.cfg.Getter.Get(ctx, r.cfg.Proxy.Wrap(manifestURL), "application/json")
	if err != nil {
		out := rejectErr(raw, StageManifestFetch, ErrFetch, err)
		out.ManifestURL = manifestURL
		return out
	}
	endpoint, ok := r.cfg.Mapper.Map(res.Body, page)
	if !ok {
		out := reject(raw, StageManifestMap, ErrResolution, "no rule matches %s", page.Path)
		out.ManifestURL = manifestURL
		return out
	}
	u, err := parseHTTP(endpoint)
	if err != nil {
		out := rejectErr(raw, StageManifestMap, ErrResolution, err)
		out.ManifestURL = manifestURL
		return out
	}
	return Outcome{
		Kind:        Website,
		SourceURL:   raw,
		ResolvedURL: page.String(),
		ActionURL:   u.String(),
		ManifestURL: manifestURL,
	}
}

func (r *Resolver) actionCheck(out Outcome) Outcome {
	state := r.cfg.Oracle.Classify(security.Actions, out.ActionURL)
	out.State = state
	if !r.cfg.Policy.Check(security.Actions, state) {
		rej := reject(out.SourceURL, StageActionCheck, ErrSecurity,
			"%s is %s, need %s", out.ActionURL, state, r.cfg.Policy.Actions)
		rej.ResolvedURL = out.ResolvedURL
		rej.ActionURL = out.ActionURL
		rej.ManifestURL = out.ManifestURL
		rej.State = state
		return rej
	}
	return out
}

func (r *Resolver) isShortener(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	return slices.ContainsFunc(r.cfg.ShortenerHosts, func(h string) bool {
		return strings.EqualFold(h, host)
	})
}

var errNotHTTP = errors.New("not an http(s) URL")

func parseHTTP(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", errNotHTTP, raw)
	}
	return u, nil
}
