package sink

import (
	"context"
	"errors"
	"log/slog"
)

// Router fans out to all configured sinks. A failing sink is logged and
// does not block the others; the first error is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Len returns the number of sinks.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) Send(ctx context.Context, ins Instruction) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Send(ctx, ins); err != nil {
			r.logger.Warn("sink: send instruction failed", "mount_id", ins.MountID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) SendRejection(ctx context.Context, rej Rejection) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.SendRejection(ctx, rej); err != nil {
			r.logger.Warn("sink: send rejection failed", "url", rej.URL, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var errs []error
	for _, s := range r.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
