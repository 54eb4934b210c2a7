package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/imagerelay/internal/config"
	"github.com/phrazzld/imagerelay/internal/domain"
	"github.com/phrazzld/imagerelay/internal/platform/logger"
	"github.com/phrazzld/imagerelay/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningSecret = "0123456789abcdef0123456789abcdef"

func testConfig(chatURL string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:            8080,
			LogLevel:        "debug",
			SyncTimeout:     5 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Providers: config.ProvidersConfig{
			ChatURL:   chatURL,
			GeminiURL: "http://127.0.0.1:1/v1beta/models/gemini:generateContent",
			SoraModel: "sora_image",
		},
		Invoker: config.InvokerConfig{
			MaxAttempts:      2,
			AttemptTimeout:   2 * time.Second,
			BaseDelay:        time.Millisecond,
			MaxDelay:         5 * time.Millisecond,
			MaxResponseBytes: 1 << 20,
		},
		Store: config.StoreConfig{
			TTL:           time.Minute,
			SweepInterval: time.Minute,
		},
		Fetch: config.FetchConfig{
			Timeout:      time.Second,
			MaxBytes:     1 << 20,
			AllowPrivate: true,
		},
		Callback: config.CallbackConfig{
			Timeout:       time.Second,
			SigningSecret: testSigningSecret,
		},
		HTTP: config.HTTPConfig{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
		},
		Monitor: config.MonitorConfig{MemoryLimitMB: 512},
	}
}

func chatProvider(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, content)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T, cfg *config.Config) *application {
	t.Helper()
	l, _ := logger.GetTestLogger(t)
	app, err := newApplication(cfg, l)
	require.NoError(t, err)
	t.Cleanup(func() { app.cleanup(context.Background()) })
	return app
}

func postJSON(t *testing.T, url, body string) map[string]interface{} {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestNewApplicationRejectsWeakSigningSecret(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1/v1/chat/completions")
	cfg.Callback.SigningSecret = "short"
	l, _ := logger.GetTestLogger(t)

	_, err := newApplication(cfg, l)

	require.Error(t, err)
	assert.ErrorIs(t, err, task.ErrWeakSigningSecret)
}

func TestSyncGenerationEndToEnd(t *testing.T) {
	provider := chatProvider(t, "Here you go ![img](https://cdn.example.com/out.png)")
	app := newTestApp(t, testConfig(provider.URL))
	srv := httptest.NewServer(app.setupRouter())
	defer srv.Close()

	body := postJSON(t, srv.URL+"/api/generate",
		`{"model":"gpt-4o-image","prompt":"a lighthouse","apiKey":"sk-test","taskId":"e2e-1"}`)

	assert.Equal(t, true, body["success"])
	assert.Equal(t, "e2e-1", body["taskId"])
	assert.Equal(t, "https://cdn.example.com/out.png", body["imageUrl"])

	resp, err := http.Get(srv.URL + "/api/status/e2e-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	var status map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "completed", status["status"])
}

func TestAsyncGenerationDeliversSignedCallback(t *testing.T) {
	provider := chatProvider(t, "https://cdn.example.com/async.png")

	var (
		mu       sync.Mutex
		received map[string]interface{}
		token    string
	)
	callback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		_ = json.Unmarshal(raw, &received)
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer callback.Close()

	app := newTestApp(t, testConfig(provider.URL))
	srv := httptest.NewServer(app.setupRouter())
	defer srv.Close()

	body := postJSON(t, srv.URL+"/api/generate/async", fmt.Sprintf(
		`{"model":"gpt-4o-image","prompt":"p","apiKey":"sk-test","taskId":"e2e-2","parentTaskId":"parent","callbackUrl":%q}`,
		callback.URL))
	assert.Equal(t, "Generation started", body["message"])

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received != nil
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "e2e-2", received["taskId"])
	assert.Equal(t, "parent", received["parentTaskId"])
	assert.Equal(t, "completed", received["status"])
	assert.Equal(t, "https://cdn.example.com/async.png", received["imageUrl"])

	signer, err := task.NewCallbackSigner(testSigningSecret)
	require.NoError(t, err)
	claims, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "e2e-2", claims.TaskID)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	app := newTestApp(t, testConfig("http://127.0.0.1:1/v1/chat/completions"))
	srv := httptest.NewServer(app.setupRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))

	metrics, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	raw, err := io.ReadAll(metrics.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "imagerelay_store_entries")
	assert.Contains(t, string(raw), "go_goroutines")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	app := newTestApp(t, testConfig("http://127.0.0.1:1/v1/chat/completions"))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.serve(ctx, ln, app.setupRouter()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	_, err = app.dispatcher.Submit(testRequest())
	assert.ErrorIs(t, err, task.ErrDispatcherStopped)
}

func testRequest() domain.GenerationRequest {
	return domain.GenerationRequest{
		Model:  "gpt-4o-image",
		Prompt: "p",
		APIKey: "sk-test",
		TaskID: "after-stop",
	}
}
