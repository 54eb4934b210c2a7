package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/imagerelay/internal/api/shared"
	"github.com/phrazzld/imagerelay/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrace(t *testing.T) {
	base, logs := logger.GetTestLogger(t)

	var seen string
	h := Trace(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("inside handler")
	}))

	t.Run("generates trace id", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Len(t, seen, shared.TraceIDLength)
		assert.Equal(t, seen, w.Header().Get(TraceHeader))
	})

	t.Run("reuses valid incoming id", func(t *testing.T) {
		logs.Reset()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(TraceHeader, "abc-123")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, "abc-123", seen)
		entries := logs.EntriesWithMessage("inside handler")
		require.Len(t, entries, 1)
		assert.Equal(t, "abc-123", entries[0]["trace_id"])
	})

	t.Run("replaces malformed incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(TraceHeader, "bad id with spaces\n")
		h.ServeHTTP(httptest.NewRecorder(), req)

		assert.Len(t, seen, shared.TraceIDLength)
	})
}

func TestAccessLog(t *testing.T) {
	base, logs := logger.GetTestLogger(t)
	h := Trace(base)(AccessLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/generate", nil))

	entries := logs.EntriesWithMessage("request completed")
	require.Len(t, entries, 1)
	assert.EqualValues(t, http.StatusTeapot, entries[0]["status"])
	assert.EqualValues(t, 5, entries[0]["bytes"])
	assert.Equal(t, "/api/generate", entries[0]["path"])
	assert.NotEmpty(t, entries[0]["trace_id"])
}

func TestTraceAddsChiRequestID(t *testing.T) {
	base, logs := logger.GetTestLogger(t)
	h := chimw.RequestID(Trace(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Info("inside handler")
	})))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(chimw.RequestIDHeader, "req-7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.EntriesWithMessage("inside handler")
	require.Len(t, entries, 1)
	assert.Equal(t, "req-7", entries[0]["request_id"])
	assert.NotEmpty(t, entries[0]["trace_id"])
}
