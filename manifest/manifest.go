// Package manifest maps a website page URL to its action endpoint using the
// site's actions.json rules.
//
//	{"rules": [
//	  {"pathPattern": "/donate/*", "apiPath": "/api/actions/donate/*"},
//	  {"pathPattern": "/**",       "apiPath": "https://api.example/actions/**"}
//	]}
//
// "*" matches exactly one path segment, "**" matches the rest of the path
// (zero or more segments) and may only be last. Captured segments are
// substituted into the apiPath wildcards in order. The page query string is
// carried over to the endpoint.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNoRules is returned by Parse for a document without rules.
var ErrNoRules = errors.New("manifest: no rules")

// Rule maps one page path pattern to an API path.
type Rule struct {
	PathPattern string `json:"pathPattern"`
	APIPath     string `json:"apiPath"`
}

// Document is a parsed actions.json.
type Document struct {
	Rules []Rule `json:"rules"`
}

// Parse decodes an actions.json payload.
func Parse(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	if len(d.Rules) == 0 {
		return nil, ErrNoRules
	}
	return &d, nil
}

// URL returns the actions.json location for a page.
func URL(page *url.URL) string {
	return (&url.URL{Scheme: page.Scheme, Host: page.Host, Path: "/actions.json"}).String()
}

// Match returns the endpoint of the first rule matching page.
func (d *Document) Match(page *url.URL) (string, bool) {
	for _, r := range d.Rules {
		if ep, ok := r.apply(page); ok {
			return ep, true
		}
	}
	return "", false
}

// Mapper is the default manifest mapper.
type Mapper struct{}

// Map parses doc and matches page against its rules.
func (Mapper) Map(doc []byte, page *url.URL) (string, bool) {
	d, err := Parse(doc)
	if err != nil {
		return "", false
	}
	return d.Match(page)
}

func (r Rule) apply(page *url.URL) (string, bool) {
	pattern := r.PathPattern
	if strings.Contains(pattern, "://") {
		pu, err := url.Parse(pattern)
		if err != nil || !strings.EqualFold(pu.Host, page.Host) {
			return "", false
		}
		pattern = pu.Path
	}
	if i := strings.IndexByte(pattern, '?'); i >= 0 {
		pattern = pattern[:i]
	}

	captures, ok := matchSegments(segments(pattern), segments(page.Path))
	if !ok {
		return "", false
	}

	api, err := url.Parse(r.APIPath)
	if err != nil || r.APIPath == "" {
		return "", false
	}
	path, ok := substitute(api.Path, captures)
	if !ok {
		return "", false
	}
	api.Path = path
	api.RawPath = ""

	origin := &url.URL{Scheme: page.Scheme, Host: page.Host}
	ep := origin.ResolveReference(api)
	ep.RawQuery = mergeQuery(api.Query(), page.Query())
	return ep.String(), true
}

func segments(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// matchSegments matches path against pattern, returning the text captured by
// each wildcard.
func matchSegments(pattern, path []string) ([]string, bool) {
	var captures []string
	for i, seg := range pattern {
		switch seg {
		case "**":
			if i != len(pattern)-1 {
				return nil, false
			}
			return append(captures, strings.Join(path[min(i, len(path)):], "/")), true
		case "*":
			if i >= len(path) || path[i] == "" {
				return nil, false
			}
			captures = append(captures, path[i])
		default:
			if i >= len(path) || path[i] != seg {
				return nil, false
			}
		}
	}
	return captures, len(path) == len(pattern)
}

func substitute(apiPath string, captures []string) (string, bool) {
	segs := strings.Split(apiPath, "/")
	next := 0
	for i, seg := range segs {
		if seg != "*" && seg != "**" {
			continue
		}
		if next >= len(captures) {
			return "", false
		}
		segs[i] = captures[next]
		next++
	}
	out := strings.Join(segs, "/")
	// "**" may capture nothing, leaving a trailing slash.
	if len(out) > 1 {
		out = strings.TrimSuffix(out, "/")
	}
	return out, true
}

func mergeQuery(api, page url.Values) string {
	for k, vs := range page {
		if _, ok := api[k]; ok {
			continue
		}
		api[k] = vs
	}
	return api.Encode()
}
