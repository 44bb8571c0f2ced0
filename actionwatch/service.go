package actionwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hazyhaar/actionwatch/action"
	"github.com/hazyhaar/actionwatch/candidate"
	"github.com/hazyhaar/actionwatch/dom"
	"github.com/hazyhaar/actionwatch/resolve"
)

// Service runs one-shot scans and resolutions for the HTTP and MCP
// surfaces. The registry is initialised once; each scan gets its own
// document and watcher.
type Service struct {
	adapter action.Adapter
	opts    []Option
	base    *Watcher
	logger  *slog.Logger

	mu    sync.Mutex
	ready bool
}

// ScanRequest is a static document to scan.
type ScanRequest struct {
	HTML     string `json:"html"`
	URL      string `json:"url"`
	Platform string `json:"platform,omitempty"`
}

// ScanResult holds the mounts and the document after mounting.
type ScanResult struct {
	Instructions []Instruction    `json:"instructions"`
	Rejections   []RejectionEvent `json:"rejections"`
	Stats        Stats            `json:"stats"`
	HTML         string           `json:"html"`
}

// NewService creates a Service. opts are applied to every watcher it
// creates.
func NewService(adapter action.Adapter, opts ...Option) (*Service, error) {
	empty, err := dom.ParseString("<html><body></body></html>", "")
	if err != nil {
		return nil, err
	}
	base, err := New(empty, adapter, Callbacks{}, opts...)
	if err != nil {
		return nil, err
	}
	return &Service{adapter: adapter, opts: opts, base: base, logger: base.logger}, nil
}

// Init initialises the shared registry.
func (s *Service) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if err := s.base.init(ctx); err != nil {
		return err
	}
	s.ready = true
	return nil
}

var errBadRequest = errors.New("actionwatch: bad request")

// Resolve classifies one URL without fetching the action.
func (s *Service) Resolve(ctx context.Context, rawURL string) (resolve.Outcome, error) {
	if err := s.Init(ctx); err != nil {
		return resolve.Outcome{}, err
	}
	return s.base.Resolve(ctx, rawURL)
}

// Scan parses req.HTML, dispatches every candidate and returns the mounts.
func (s *Service) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	if strings.TrimSpace(req.HTML) == "" {
		return nil, fmt.Errorf("%w: empty document", errBadRequest)
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	doc, err := dom.ParseString(req.HTML, req.URL)
	if err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		rejs []RejectionEvent
	)
	opts := append([]Option{}, s.opts...)
	opts = append(opts, withRegistryReady(), WithSinks(NewCallbackSink(nil, func(ev RejectionEvent) {
		mu.Lock()
		rejs = append(rejs, ev)
		mu.Unlock()
	})))
	if req.Platform != "" {
		p, ok := candidate.Lookup(req.Platform)
		if !ok {
			return nil, fmt.Errorf("%w: unknown platform %q", errBadRequest, req.Platform)
		}
		opts = append(opts, WithPlatform(p))
	}

	w, err := New(doc, s.adapter, Callbacks{}, opts...)
	if err != nil {
		return nil, err
	}
	ins, err := w.Sweep(ctx)
	if err != nil {
		return nil, err
	}
	if ins == nil {
		ins = []Instruction{}
	}
	mu.Lock()
	defer mu.Unlock()
	if rejs == nil {
		rejs = []RejectionEvent{}
	}
	return &ScanResult{Instructions: ins, Rejections: rejs, Stats: w.Stats(), HTML: doc.Render()}, nil
}
