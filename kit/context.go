package kit

import "context"

type ctxKey int

const (
	transportKey ctxKey = iota
	requestIDKey
	operationKey
)

// WithTransport records which surface invoked the endpoint ("http", "mcp").
func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, transportKey, t)
}

// GetTransport returns the invoking surface. Unset means "http".
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(transportKey).(string); ok {
		return v
	}
	return "http"
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithOperation names the endpoint being run, e.g. "resolve" or "scan".
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey, op)
}

func GetOperation(ctx context.Context) string {
	v, _ := ctx.Value(operationKey).(string)
	return v
}
