package util

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is a private type to avoid context key collisions.
type contextKey string

const traceIDKey contextKey = "traceID"

// NewTraceID returns a fresh correlation identifier for one run or one
// layer's handshake.
func NewTraceID() string {
	return uuid.NewString()
}

// ContextWithTraceID attaches a trace ID to ctx.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext extracts the trace ID previously attached with
// ContextWithTraceID.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	traceID, ok := ctx.Value(traceIDKey).(string)
	return traceID, ok
}
