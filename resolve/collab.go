package resolve

import (
	"context"
	"net/url"
	"slices"
	"strings"

	"github.com/hazyhaar/actionwatch/fetch"
	"github.com/hazyhaar/actionwatch/security"
)

// TrustOracle classifies a URL for one checkpoint category.
type TrustOracle interface {
	Classify(c security.Category, rawURL string) security.TrustState
}

// InterstitialDecoder recognises interstitial URLs and extracts the inner
// action URL.
type InterstitialDecoder interface {
	Detect(u *url.URL) (decoded string, ok bool)
}

// ManifestMapper maps a page URL to an action endpoint using a fetched
// actions.json payload.
type ManifestMapper interface {
	Map(doc []byte, page *url.URL) (string, bool)
}

// Proxy rewrites manifest fetch URLs.
type Proxy interface {
	Wrap(rawURL string) string
}

// Getter performs a bounded GET. *fetch.Client implements it.
type Getter interface {
	Get(ctx context.Context, rawURL, accept string) (*fetch.Result, error)
}

// DefaultDirectPrefix marks a URL that names an action endpoint directly.
const DefaultDirectPrefix = "solana-action:"

// QueryDecoder decodes interstitials of the form
// https://host/?action=solana-action:https://endpoint.
type QueryDecoder struct {
	Hosts  []string // interstitial hosts, matched case-insensitively
	Param  string   // query parameter. Default: "action".
	Prefix string   // optional prefix stripped from the value. Default: DefaultDirectPrefix.
}

// Detect reports whether u is an interstitial and returns its inner URL.
// A known host without the parameter is not an interstitial.
func (d QueryDecoder) Detect(u *url.URL) (string, bool) {
	host := strings.ToLower(u.Hostname())
	if !slices.ContainsFunc(d.Hosts, func(h string) bool { return strings.EqualFold(h, host) }) {
		return "", false
	}
	param := d.Param
	if param == "" {
		param = "action"
	}
	v := u.Query().Get(param)
	if v == "" {
		return "", false
	}
	prefix := d.Prefix
	if prefix == "" {
		prefix = DefaultDirectPrefix
	}
	return strings.TrimPrefix(v, prefix), true
}

// QueryProxy routes fetches through Base?url=<escaped>. An empty Base is the
// identity.
type QueryProxy struct {
	Base string
}

// Wrap returns the proxied URL.
func (p QueryProxy) Wrap(rawURL string) string {
	if p.Base == "" {
		return rawURL
	}
	u, err := url.Parse(p.Base)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("url", rawURL)
	u.RawQuery = q.Encode()
	return u.String()
}

type unknownOracle struct{}

func (unknownOracle) Classify(security.Category, string) security.TrustState {
	return security.Unknown
}
