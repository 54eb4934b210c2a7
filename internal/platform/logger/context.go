package logger

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	loggerKey    contextKey = "logger"
	requestIDKey contextKey = "request_id"
)

// WithLogger returns a copy of ctx carrying l.
// It panics on a nil logger since that is always a wiring mistake.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	if l == nil {
		panic("logger: nil logger passed to WithLogger")
	}
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored in ctx, or nil if there is none.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return nil
	}
	l, _ := ctx.Value(loggerKey).(*slog.Logger)
	return l
}

// FromContextOrDefault returns the logger stored in ctx, falling back to def.
func FromContextOrDefault(ctx context.Context, def *slog.Logger) *slog.Logger {
	if l := FromContext(ctx); l != nil {
		return l
	}
	return def
}

// WithRequestID stores a correlation ID in ctx. If ctx already carries a
// logger, the logger is enriched with the same ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, id)
	if l := FromContext(ctx); l != nil {
		ctx = WithLogger(ctx, l.With("request_id", id))
	}
	return ctx
}

// RequestID returns the correlation ID stored in ctx, if any.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
