package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/imagerelay/internal/monitor"
	"github.com/phrazzld/imagerelay/internal/platform/logger"
	"github.com/stretchr/testify/assert"
)

type fixedSize int

func (n fixedSize) Len() int { return int(n) }

func TestHealth(t *testing.T) {
	l, _ := logger.GetTestLogger(t)
	m := monitor.New(monitor.Config{})
	m.TaskStarted()
	m.TaskStarted()
	m.TaskFinished("completed", 0)

	h := NewHealthHandler(m, fixedSize(7), l)
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1), body["tasks"])
	assert.Equal(t, float64(1), body["processed"])
	assert.Equal(t, float64(7), body["storeEntries"])
	assert.Greater(t, body["goroutines"], float64(0))

	resources, ok := body["resources"].(map[string]interface{})
	if assert.True(t, ok) {
		assert.Equal(t, float64(monitor.DefaultMemoryLimitMB), resources["memoryLimitMB"])
	}
}
