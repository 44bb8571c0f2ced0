// Package action holds the action descriptor model and the adapter that
// fetches it from an action endpoint.
package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/hazyhaar/actionwatch/fetch"
	"github.com/hazyhaar/actionwatch/security"
)

// ErrMalformed is wrapped by every descriptor validation error.
var ErrMalformed = errors.New("action: malformed descriptor")

// Descriptor types.
const (
	TypeAction    = "action"
	TypeCompleted = "completed"
)

// Parameter is one user input of a linked action.
type Parameter struct {
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	Required bool   `json:"required,omitempty"`
}

// LinkedAction is one button of a multi-action descriptor.
type LinkedAction struct {
	Href       string      `json:"href"`
	Label      string      `json:"label"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// Links groups the linked actions.
type Links struct {
	Actions []LinkedAction `json:"actions"`
}

// Error is the descriptor-level error message.
type Error struct {
	Message string `json:"message"`
}

// Descriptor is the metadata an action endpoint returns on GET.
type Descriptor struct {
	Type        string `json:"type,omitempty"`
	Icon        string `json:"icon"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Label       string `json:"label"`
	Disabled    bool   `json:"disabled,omitempty"`
	Error       *Error `json:"error,omitempty"`
	Links       *Links `json:"links,omitempty"`

	// URL is the endpoint the descriptor was fetched from. Not part of the
	// payload.
	URL string `json:"-"`
}

// Validate checks the required fields.
func (d *Descriptor) Validate() error {
	switch d.Type {
	case "", TypeAction, TypeCompleted:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformed, d.Type)
	}
	var missing []string
	if strings.TrimSpace(d.Icon) == "" {
		missing = append(missing, "icon")
	}
	if strings.TrimSpace(d.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(d.Label) == "" {
		missing = append(missing, "label")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMalformed, strings.Join(missing, ", "))
	}
	if d.Links != nil {
		for i, la := range d.Links.Actions {
			if la.Href == "" || la.Label == "" {
				return fmt.Errorf("%w: linked action %d needs href and label", ErrMalformed, i)
			}
		}
	}
	return nil
}

// Parse decodes and validates a descriptor fetched from endpoint. Relative
// linked action hrefs are resolved against the endpoint.
func Parse(data []byte, endpoint string) (*Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.Type == "" {
		d.Type = TypeAction
	}
	d.URL = endpoint
	if d.Links != nil {
		for i, la := range d.Links.Actions {
			d.Links.Actions[i].Href = absHref(endpoint, la.Href)
		}
	}
	return &d, nil
}

// absHref roots a path-absolute href at the endpoint origin. Hrefs may carry
// {param} templates, so they are joined as text rather than re-encoded.
func absHref(endpoint, href string) string {
	if !strings.HasPrefix(href, "/") || strings.HasPrefix(href, "//") {
		return href
	}
	base, err := url.Parse(endpoint)
	if err != nil || base.Host == "" {
		return href
	}
	return base.Scheme + "://" + base.Host + href
}

// Adapter fetches a descriptor. It is called at most once per dispatch.
type Adapter interface {
	Fetch(ctx context.Context, endpoint string) (*Descriptor, error)
}

// AdapterFunc adapts a function to Adapter.
type AdapterFunc func(ctx context.Context, endpoint string) (*Descriptor, error)

// Fetch calls f.
func (f AdapterFunc) Fetch(ctx context.Context, endpoint string) (*Descriptor, error) {
	return f(ctx, endpoint)
}

// HTTPAdapter fetches descriptors with a bounded GET.
type HTTPAdapter struct {
	client *fetch.Client
}

// NewHTTPAdapter creates an adapter. A nil client uses fetch defaults.
func NewHTTPAdapter(c *fetch.Client) *HTTPAdapter {
	if c == nil {
		c = fetch.New(fetch.Config{})
	}
	return &HTTPAdapter{client: c}
}

// Fetch GETs endpoint and parses the descriptor.
func (a *HTTPAdapter) Fetch(ctx context.Context, endpoint string) (*Descriptor, error) {
	res, err := a.client.Get(ctx, endpoint, "application/json")
	if err != nil {
		return nil, fmt.Errorf("action: fetch: %w", err)
	}
	return Parse(res.Body, endpoint)
}

// SupportContext is what the support predicate sees.
type SupportContext struct {
	OriginalURL string
	ActionURL   string
	Descriptor  *Descriptor
	State       security.TrustState // actions checkpoint classification
	Branch      string              // resolution branch that produced ActionURL
}

// SupportFunc decides whether a fetched action should be mounted. Returning
// false declines it silently.
type SupportFunc func(ctx context.Context, sc SupportContext) (bool, error)
