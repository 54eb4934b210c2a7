package middleware

import (
	"log/slog"
	"net/http"
	"regexp"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/imagerelay/internal/api/shared"
	"github.com/phrazzld/imagerelay/internal/platform/logger"
)

// TraceHeader carries the trace ID in both directions.
const TraceHeader = "X-Trace-ID"

var validTraceID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Trace adds a trace ID to the request context, echoes it in the response
// header and stores a logger tagged with it in the context. The logger also
// carries chi's request ID when one is set. A well-formed incoming
// X-Trace-ID is reused so that callers can correlate requests.
func Trace(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get(TraceHeader)
			if !validTraceID.MatchString(traceID) {
				traceID = shared.NewTraceID()
			}

			ctx := shared.WithTraceID(r.Context(), traceID)
			ctx = logger.WithLogger(ctx, base.With("trace_id", traceID))
			if reqID := chimw.GetReqID(ctx); reqID != "" {
				ctx = logger.WithRequestID(ctx, reqID)
			}
			w.Header().Set(TraceHeader, traceID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessLog writes one line per request with status, size and duration,
// using the request-scoped logger.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.FromContextOrDefault(r.Context(), slog.Default()).Log(r.Context(), level, "request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr)
	})
}
