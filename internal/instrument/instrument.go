// Package instrument carries a per-request trace ID through the request
// context and derives request-scoped loggers from it.
package instrument

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TraceHeader is read from incoming requests and echoed on responses.
const TraceHeader = "X-Trace-ID"

type ctxKey int

const (
	traceIDKey ctxKey = iota
	loggerKey
)

// WithTraceID returns a copy of ctx carrying the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID returns the trace ID stored in ctx, or "".
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger returns the request-scoped logger stored in ctx, falling back to
// fallback annotated with the trace ID when there is one.
func Logger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok && l != nil {
			return l
		}
	}
	if id := TraceID(ctx); id != "" {
		return fallback.With(zap.String("trace_id", id))
	}
	return fallback
}

func newTraceID() string {
	return uuid.New().String()
}
