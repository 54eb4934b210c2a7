package task

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/imagerelay/internal/domain"
	"github.com/phrazzld/imagerelay/internal/events"
	"github.com/phrazzld/imagerelay/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestNotifier(t *testing.T, timeout time.Duration, signer *CallbackSigner) (*CallbackNotifier, *logger.TestLogBuffer) {
	t.Helper()
	l, logs := logger.GetTestLogger(t)
	n, err := NewCallbackNotifier(&http.Client{}, timeout, signer, l)
	require.NoError(t, err)
	return n, logs
}

func completedEvent(callbackURL string) *events.TaskCompletedEvent {
	req := domain.GenerationRequest{TaskID: "task-cb", ParentTaskID: "parent-cb", CallbackURL: callbackURL}
	return events.NewTaskCompletedEvent(req, domain.NewSuccess("https://cdn.test/cb.png", nil))
}

func TestNewCallbackNotifierValidation(t *testing.T) {
	l, _ := logger.GetTestLogger(t)

	_, err := NewCallbackNotifier(nil, time.Second, nil, l)
	assert.ErrorIs(t, err, ErrNilHTTPClient)

	_, err = NewCallbackNotifier(&http.Client{}, time.Second, nil, nil)
	assert.ErrorIs(t, err, ErrNilLogger)

	n, err := NewCallbackNotifier(&http.Client{}, 0, nil, l)
	require.NoError(t, err)
	assert.Equal(t, DefaultCallbackTimeout, n.timeout)
}

func TestCallbackDelivery(t *testing.T) {
	var (
		got  CallbackPayload
		auth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	n, logs := newTestNotifier(t, time.Second, nil)
	err := n.HandleEvent(context.Background(), completedEvent(srv.URL))

	require.NoError(t, err)
	assert.Equal(t, CallbackPayload{
		TaskID:       "task-cb",
		ParentTaskID: "parent-cb",
		Status:       domain.TaskStatusCompleted,
		ImageURL:     "https://cdn.test/cb.png",
	}, got)
	assert.Empty(t, auth, "unsigned when no signer is configured")
	assert.Len(t, logs.EntriesWithMessage("callback delivered"), 1)
}

func TestCallbackFailedTaskPayload(t *testing.T) {
	var raw map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
	}))
	defer srv.Close()

	n, _ := newTestNotifier(t, time.Second, nil)
	req := domain.GenerationRequest{TaskID: "task-f", CallbackURL: srv.URL}
	event := events.NewTaskCompletedEvent(req, domain.NewFailure(domain.FailureUpstream, "API call failed: boom", nil))
	require.NoError(t, n.HandleEvent(context.Background(), event))

	assert.Equal(t, "failed", raw["status"])
	assert.Equal(t, "API call failed: boom", raw["error"])
	assert.NotContains(t, raw, "imageUrl")
	assert.NotContains(t, raw, "parentTaskId")
}

func TestCallbackSigned(t *testing.T) {
	signer, err := NewCallbackSigner(testSecret)
	require.NoError(t, err)

	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	n, _ := newTestNotifier(t, time.Second, signer)
	require.NoError(t, n.HandleEvent(context.Background(), completedEvent(srv.URL)))

	require.True(t, strings.HasPrefix(auth, "Bearer "))
	claims, err := signer.Verify(strings.TrimPrefix(auth, "Bearer "))
	require.NoError(t, err)
	assert.Equal(t, "task-cb", claims.TaskID)
	assert.Equal(t, domain.TaskStatusCompleted, claims.Status)
}

func TestCallbackWithoutURLIsSkipped(t *testing.T) {
	n, logs := newTestNotifier(t, time.Second, nil)

	require.NoError(t, n.HandleEvent(context.Background(), completedEvent("")))
	assert.Empty(t, logs.String())
}

func TestCallbackFailuresAreOnlyLogged(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n, logs := newTestNotifier(t, time.Second, nil)
	err := n.HandleEvent(context.Background(), completedEvent(srv.URL))

	assert.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "callbacks are not retried")
	failed := logs.EntriesWithMessage("callback delivery failed")
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0]["error"], "status 500")
}

func TestCallbackTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	// Runs before Close so the stalled handler can return.
	defer close(release)

	n, logs := newTestNotifier(t, 20*time.Millisecond, nil)
	start := time.Now()
	err := n.HandleEvent(context.Background(), completedEvent(srv.URL))

	assert.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, logs.EntriesWithMessage("callback delivery failed"), 1)
}
