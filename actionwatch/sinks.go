package actionwatch

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/actionwatch/actionwatch/internal/sink"
)

// Sink is the output interface for mount instructions and rejections.
type Sink = sink.Sink

// Instruction describes one completed mount.
type Instruction = sink.Instruction

// RejectionEvent is the sink form of a *Rejection.
type RejectionEvent = sink.Rejection

// NewStdoutSink creates a JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, retries int, logger *slog.Logger) Sink {
	var opts []sink.WebhookOption
	if logger != nil {
		opts = append(opts, sink.WithWebhookLogger(logger))
	}
	if retries > 0 {
		opts = append(opts, sink.WithWebhookRetries(retries))
	}
	return sink.NewWebhook(url, opts...)
}

// NewCallbackSink creates an in-process sink. Either function may be nil.
func NewCallbackSink(onInstruction func(Instruction), onRejection func(RejectionEvent)) Sink {
	return &sink.Callback{OnInstruction: onInstruction, OnRejection: onRejection}
}

// SinksFromConfig builds the configured sinks.
func SinksFromConfig(cfgs []SinkConfig, stdout io.Writer, logger *slog.Logger) ([]Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var out []Sink
	for _, c := range cfgs {
		switch c.Type {
		case "stdout":
			out = append(out, NewStdoutSink(stdout))
		case "webhook":
			if c.URL == "" {
				return nil, fmt.Errorf("actionwatch: webhook sink without url")
			}
			out = append(out, NewWebhookSink(c.URL, c.Retries, logger))
		default:
			return nil, fmt.Errorf("actionwatch: unknown sink type %q", c.Type)
		}
	}
	return out, nil
}
