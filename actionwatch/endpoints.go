package actionwatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/hazyhaar/actionwatch/idgen"
	"github.com/hazyhaar/actionwatch/kit"
	"github.com/hazyhaar/actionwatch/resolve"
)

// ResolveRequest asks for the classification of one URL.
type ResolveRequest struct {
	URL string `json:"url"`
}

// ResolveResult is the transport form of a resolve.Outcome.
type ResolveResult struct {
	OK      bool            `json:"ok"`
	Outcome resolve.Outcome `json:"outcome"`
	Error   string          `json:"error,omitempty"`
}

func newResolveResult(out resolve.Outcome) ResolveResult {
	return ResolveResult{OK: out.OK(), Outcome: out, Error: out.Error()}
}

// endpoint wraps ep with the middleware shared by every transport.
func (s *Service) endpoint(op string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(
		kit.RequestID(idgen.Prefixed("req_", idgen.Default)),
		kit.Logging(s.logger, op),
	)(ep)
}

func (s *Service) resolveEndpoint() kit.Endpoint {
	return s.endpoint("resolve", func(ctx context.Context, req any) (any, error) {
		r := req.(*ResolveRequest)
		if strings.TrimSpace(r.URL) == "" {
			return nil, fmt.Errorf("%w: url is required", errBadRequest)
		}
		out, err := s.Resolve(ctx, r.URL)
		if err != nil {
			return nil, err
		}
		return newResolveResult(out), nil
	})
}

func (s *Service) scanEndpoint() kit.Endpoint {
	return s.endpoint("scan", func(ctx context.Context, req any) (any, error) {
		return s.Scan(ctx, *req.(*ScanRequest))
	})
}
