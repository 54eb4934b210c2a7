package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/imagerelay/internal/api/shared"
	"github.com/phrazzld/imagerelay/internal/monitor"
)

// ResourceReporter provides the process snapshot reported by /health.
type ResourceReporter interface {
	Snapshot() monitor.Snapshot
}

// StoreSizer reports how many task records are held.
type StoreSizer interface {
	Len() int
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	resources ResourceReporter
	store     StoreSizer
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(resources ResourceReporter, store StoreSizer, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		resources: resources,
		store:     store,
		logger:    logger.With("component", "health_handler"),
	}
}

// Health reports liveness along with task counters and resource usage.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.resources.Snapshot()
	resp := HealthResponse{
		Status:       "healthy",
		Tasks:        snap.ActiveTasks,
		Processed:    snap.TotalProcessed,
		Goroutines:   snap.Goroutines,
		Resources:    snap,
		StoreEntries: h.store.Len(),
	}

	h.logger.DebugContext(r.Context(), "health check",
		"active_tasks", resp.Tasks,
		"store_entries", resp.StoreEntries)
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
