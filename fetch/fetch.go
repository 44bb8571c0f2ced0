// Package fetch is the bounded HTTP GET shared by every network stage of the
// action pipeline: link unshortening, actions.json retrieval, descriptor
// fetches and registry refreshes. Every request carries a timeout, a body
// cap and an SSRF check on the initial URL and on each redirect hop.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultTimeout bounds each request when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// ErrStatus is wrapped by errors for non-2xx responses.
var ErrStatus = errors.New("fetch: unexpected status")

// Result contains the outcome of a GET.
type Result struct {
	Body        []byte
	StatusCode  int
	FinalURL    string // after redirects
	ContentType string
}

// Config configures a Client.
type Config struct {
	Timeout  time.Duration // per request. Default: 10s.
	MaxBytes int64         // response body cap. Default: 2MB.
	// UserAgent sent with requests.
	UserAgent string
	// URLValidator validates URLs before each request and each redirect.
	// Default: ValidateURL.
	URLValidator func(string) error
	// Transport overrides the HTTP transport (tests, proxies).
	Transport http.RoundTripper
	Logger    *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 2 << 20
	}
	if c.UserAgent == "" {
		c.UserAgent = "actionwatch/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = ValidateURL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client performs bounded GETs.
type Client struct {
	http   *http.Client
	config Config
}

// New creates a Client with SSRF protection on redirects.
func New(cfg Config) *Client {
	cfg.defaults()
	validate := cfg.URLValidator
	return &Client{
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Timeout returns the per-request bound.
func (c *Client) Timeout() time.Duration { return c.config.Timeout }

// Get fetches rawURL. accept, when non-empty, is sent as the Accept header.
// Non-2xx responses are errors wrapping ErrStatus; the Result is still
// returned so callers can inspect the status.
func (c *Client) Get(ctx context.Context, rawURL, accept string) (*Result, error) {
	if err := c.config.URLValidator(rawURL); err != nil {
		return nil, fmt.Errorf("fetch: URL blocked: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: new request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	res := &Result{
		StatusCode:  resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return res, fmt.Errorf("%w: %d from %s", ErrStatus, resp.StatusCode, rawURL)
	}

	body, err := LimitedReadAll(resp.Body, c.config.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	res.Body = body

	c.config.Logger.Debug("fetch: fetched",
		"url", rawURL, "status", resp.StatusCode, "size", len(body))
	return res, nil
}

// GetJSON fetches rawURL and decodes the body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	res, err := c.Get(ctx, rawURL, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(res.Body, v); err != nil {
		return fmt.Errorf("fetch: decode %s: %w", rawURL, err)
	}
	return nil
}
