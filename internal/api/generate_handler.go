package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/imagerelay/internal/api/shared"
	"github.com/phrazzld/imagerelay/internal/domain"
	"github.com/phrazzld/imagerelay/internal/store"
	"github.com/phrazzld/imagerelay/internal/task"
)

// DefaultSyncTimeout bounds how long the sync endpoint waits for a task.
const DefaultSyncTimeout = 4 * time.Minute

// Submitter starts a task in the background.
type Submitter interface {
	Submit(req domain.GenerationRequest) (*task.Handle, error)
}

// GenerateHandler serves the generation and status endpoints.
type GenerateHandler struct {
	dispatcher  Submitter
	store       store.TaskStore
	syncTimeout time.Duration
	newTaskID   func() string
	logger      *slog.Logger
}

// HandlerOption customizes a GenerateHandler.
type HandlerOption func(*GenerateHandler)

// WithTaskIDGenerator overrides how task IDs are minted for requests that do
// not carry one.
func WithTaskIDGenerator(fn func() string) HandlerOption {
	return func(h *GenerateHandler) {
		h.newTaskID = fn
	}
}

// NewGenerateHandler creates a GenerateHandler. A non-positive syncTimeout
// falls back to DefaultSyncTimeout.
func NewGenerateHandler(
	dispatcher Submitter,
	taskStore store.TaskStore,
	syncTimeout time.Duration,
	logger *slog.Logger,
	opts ...HandlerOption,
) (*GenerateHandler, error) {
	if dispatcher == nil {
		return nil, errors.New("dispatcher cannot be nil")
	}
	if taskStore == nil {
		return nil, errors.New("task store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if syncTimeout <= 0 {
		syncTimeout = DefaultSyncTimeout
	}

	h := &GenerateHandler{
		dispatcher:  dispatcher,
		store:       taskStore,
		syncTimeout: syncTimeout,
		newTaskID:   uuid.NewString,
		logger:      logger.With("component", "generate_handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Generate handles POST /api/generate. It runs the task to completion and
// answers with its outcome, or 504 if the task outlives the sync timeout.
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.start(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.syncTimeout)
	defer cancel()

	outcome, err := handle.Wait(ctx)
	if err != nil {
		// The task keeps running; its result stays available via /api/status.
		shared.RespondWithErrorAndLog(w, r, http.StatusGatewayTimeout, "Request timeout", err,
			shared.WithTaskID(handle.TaskID), shared.WithElevatedLogLevel())
		return
	}

	status := MapOutcomeToStatus(outcome)
	if !outcome.IsSuccess() {
		if status != http.StatusOK {
			shared.RespondWithError(w, r, status, outcome.Message(),
				shared.WithTaskID(handle.TaskID), shared.WithElevatedLogLevel())
			return
		}
		shared.RespondWithJSON(w, r, status, GenerateResponse{
			Success: false,
			TaskID:  handle.TaskID,
			Error:   outcome.Message(),
		})
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, GenerateResponse{
		Success:  true,
		TaskID:   handle.TaskID,
		ImageURL: outcome.ImageResult(),
	})
}

// GenerateAsync handles POST /api/generate/async. It answers as soon as the
// task has been dispatched.
func (h *GenerateHandler) GenerateAsync(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.start(w, r)
	if !ok {
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, GenerateResponse{
		Success: true,
		TaskID:  handle.TaskID,
		Message: "Generation started",
	})
}

// Status handles GET /api/status/{taskId}. Unknown and expired IDs report
// processing.
func (h *GenerateHandler) Status(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	if taskID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Task ID required")
		return
	}

	rec, found := h.store.Get(r.Context(), taskID)
	if !found {
		shared.RespondWithJSON(w, r, http.StatusOK, StatusResponse{
			TaskID: taskID,
			Status: domain.TaskStatusProcessing,
		})
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, newStatusResponse(rec))
}

// start decodes, validates, claims and dispatches a generation request. On
// failure it writes the error response and returns false.
func (h *GenerateHandler) start(w http.ResponseWriter, r *http.Request) (*task.Handle, bool) {
	var body GenerateRequest
	if err := shared.DecodeJSON(w, r, &body); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return nil, false
	}

	if body.APIKey == "" {
		shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized,
			GetSafeErrorMessage(domain.ErrMissingAPIKey), domain.ErrMissingAPIKey)
		return nil, false
	}

	if err := shared.ValidateRequest(body); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest,
			shared.FormatValidationError(err), err)
		return nil, false
	}

	taskID := body.TaskID
	if taskID == "" {
		taskID = h.newTaskID()
	}
	req := body.ToDomain(taskID)
	if err := req.Validate(); err != nil {
		h.respondStartError(w, r, taskID, err)
		return nil, false
	}

	if err := h.store.Claim(r.Context(), taskID); err != nil {
		h.respondStartError(w, r, taskID, err)
		return nil, false
	}

	handle, err := h.dispatcher.Submit(req)
	if err != nil {
		h.store.Delete(r.Context(), taskID)
		h.respondStartError(w, r, taskID, err)
		return nil, false
	}

	h.logger.InfoContext(r.Context(), "generation task accepted",
		"task_id", taskID,
		"model", req.Model,
		"image_count", len(req.Images()),
		"has_callback", req.CallbackURL != "",
		"trace_id", shared.GetTraceID(r.Context()))
	return handle, true
}

func (h *GenerateHandler) respondStartError(w http.ResponseWriter, r *http.Request, taskID string, err error) {
	status := MapErrorToStatusCode(err)
	opts := []shared.ResponseOption{shared.WithTaskID(taskID)}
	if status == http.StatusConflict {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, GetSafeErrorMessage(err), err, opts...)
}
