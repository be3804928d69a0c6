package auth

import (
	"context"
)

var requestIDCtxKey = &contextKey{"request_id"}

type contextKey struct {
	name string
}

// WithRequestID sets the request id in the given context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey, requestID)
}

// RequestIDFromContext finds the request id in the context.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	raw, ok := ctx.Value(requestIDCtxKey).(string)
	return raw, ok && raw != ""
}
