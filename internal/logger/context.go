package logger

import "context"

// contextKey is unexported so no other package can collide with our keys.
type contextKey struct{}

var requestIDKey = contextKey{}

// WithRequestID stores a request ID for handlers, consumers, and the access
// log to pick up downstream.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID stored in ctx, or "" when there is none.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
