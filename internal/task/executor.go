package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/phrazzld/imagerelay/internal/domain"
	"github.com/phrazzld/imagerelay/internal/events"
	"github.com/phrazzld/imagerelay/internal/invoker"
	"github.com/phrazzld/imagerelay/internal/monitor"
	"github.com/phrazzld/imagerelay/internal/provider"
	"github.com/phrazzld/imagerelay/internal/store"
)

// Execution states, logged on every transition.
const (
	statePending    = "pending"
	stateCalling    = "calling"
	stateExtracting = "extracting"
	stateDone       = "done"
)

// AdapterRouter selects the provider adapter for a model tag.
type AdapterRouter interface {
	AdapterFor(model string) provider.Adapter
}

// ProviderInvoker performs the provider HTTP round-trip.
type ProviderInvoker interface {
	Invoke(ctx context.Context, taskID, url string, body []byte, apiKey string) ([]byte, error)
}

// ResourceMonitor tracks running tasks and logs resource usage around them.
type ResourceMonitor interface {
	TaskStarted()
	TaskFinished(result string, d time.Duration)
	LogSnapshot(ctx context.Context, logger *slog.Logger, phase, taskID string, attrs ...any)
}

// ExecutorDeps holds the collaborators of an Executor.
// Emitter and Monitor are optional.
type ExecutorDeps struct {
	Router  AdapterRouter
	Invoker ProviderInvoker
	Store   store.TaskStore
	Emitter events.EventEmitter
	Monitor ResourceMonitor
	Logger  *slog.Logger
}

// Executor runs a single generation task to completion.
type Executor struct {
	router  AdapterRouter
	invoker ProviderInvoker
	store   store.TaskStore
	emitter events.EventEmitter
	monitor ResourceMonitor
	logger  *slog.Logger
}

// NewExecutor validates deps and returns an Executor.
func NewExecutor(deps ExecutorDeps) (*Executor, error) {
	if deps.Router == nil {
		return nil, ErrNilRouter
	}
	if deps.Invoker == nil {
		return nil, ErrNilInvoker
	}
	if deps.Store == nil {
		return nil, ErrNilStore
	}
	if deps.Logger == nil {
		return nil, ErrNilLogger
	}

	return &Executor{
		router:  deps.Router,
		invoker: deps.Invoker,
		store:   deps.Store,
		emitter: deps.Emitter,
		monitor: deps.Monitor,
		logger:  deps.Logger.With("component", "task_executor"),
	}, nil
}

// Execute drives req through build, invoke, snapshot and extract, and always
// finishes with exactly one terminal write for req.TaskID. The returned
// outcome is the one that was written.
func (e *Executor) Execute(ctx context.Context, req domain.GenerationRequest) (outcome domain.Outcome) {
	start := time.Now()
	log := e.logger.With("task_id", req.TaskID, "model", req.Model)

	if e.monitor != nil {
		e.monitor.TaskStarted()
		e.monitor.LogSnapshot(ctx, log, monitor.PhaseStart, req.TaskID)
	}

	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "task panicked",
				"panic", r,
				"stack", string(debug.Stack()))
			outcome = domain.NewFailure(domain.FailureInternal, "internal error", nil)
		}
		e.finish(ctx, log, req, outcome, time.Since(start))
	}()

	return e.run(ctx, log, req)
}

func (e *Executor) run(ctx context.Context, log *slog.Logger, req domain.GenerationRequest) domain.Outcome {
	log.InfoContext(ctx, "task state changed", "state", statePending,
		"image_count", len(req.Images()))

	adapter := e.router.AdapterFor(req.Model)
	preq, err := adapter.Build(ctx, req)
	if err != nil {
		log.ErrorContext(ctx, "failed to build provider request", "error", err)
		return domain.NewFailure(domain.FailureInternal,
			fmt.Sprintf("failed to build provider request: %v", err), nil)
	}

	log.InfoContext(ctx, "task state changed", "state", stateCalling,
		"family", adapter.Family(),
		"request_bytes", len(preq.Body))

	raw, err := e.invoker.Invoke(ctx, req.TaskID, preq.URL, preq.Body, req.APIKey)
	if err != nil {
		log.ErrorContext(ctx, "provider call failed", "error", err)
		return invokeFailure(err)
	}

	// Debug snapshot of the raw body, written before extraction.
	if err := e.store.Snapshot(ctx, req.TaskID, raw); err != nil {
		log.WarnContext(ctx, "failed to store raw response snapshot", "error", err)
	}

	log.InfoContext(ctx, "task state changed", "state", stateExtracting,
		"response_bytes", len(raw))
	return adapter.Extract(raw)
}

func (e *Executor) finish(ctx context.Context, log *slog.Logger, req domain.GenerationRequest, outcome domain.Outcome, elapsed time.Duration) {
	status := outcome.Status()

	if err := e.store.Complete(ctx, req.TaskID, outcome); err != nil {
		if errors.Is(err, store.ErrTaskFinalized) {
			log.WarnContext(ctx, "task already finalized, result discarded", "error", err)
		} else {
			log.ErrorContext(ctx, "failed to store task outcome", "error", err)
		}
	}

	attrs := []any{
		"state", stateDone,
		"status", status,
		"duration_ms", elapsed.Milliseconds(),
	}
	if outcome.IsSuccess() {
		log.InfoContext(ctx, "task state changed", attrs...)
	} else {
		log.WarnContext(ctx, "task state changed", append(attrs,
			"failure_kind", outcome.Kind(),
			"error", outcome.Message())...)
	}

	if e.emitter != nil {
		event := events.NewTaskCompletedEvent(req, outcome)
		if err := e.emitter.EmitEvent(ctx, event); err != nil {
			log.WarnContext(ctx, "failed to emit task completed event", "error", err)
		}
	}

	if e.monitor != nil {
		e.monitor.TaskFinished(string(status), elapsed)
		e.monitor.LogSnapshot(ctx, log, monitor.PhaseEnd, req.TaskID,
			"duration_ms", elapsed.Milliseconds(),
			"result", status)
	}
}

// invokeFailure classifies an invoker error. Extraction is skipped for these.
func invokeFailure(err error) domain.Outcome {
	var raw []byte
	var se *invoker.StatusError
	if errors.As(err, &se) {
		raw = se.Body
	}

	kind := domain.FailureUpstream
	switch {
	case invoker.IsClientError(err):
		kind = domain.FailureProviderRejected
	case errors.Is(err, invoker.ErrTimeout):
		kind = domain.FailureTimeout
	case errors.Is(err, context.Canceled):
		kind = domain.FailureInternal
	}
	return domain.NewFailure(kind, fmt.Sprintf("API call failed: %v", err), raw)
}
