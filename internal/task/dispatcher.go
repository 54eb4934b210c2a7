package task

import (
	"context"
	"log/slog"
	"sync"

	"github.com/phrazzld/imagerelay/internal/domain"
)

// Runner executes one task synchronously. *Executor implements it.
type Runner interface {
	Execute(ctx context.Context, req domain.GenerationRequest) domain.Outcome
}

// Handle tracks one dispatched task.
type Handle struct {
	TaskID string

	done    chan struct{}
	outcome domain.Outcome
}

// Done is closed once the task has its terminal outcome.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task finishes or ctx is done. A ctx expiry only stops
// the wait; the task itself keeps running.
func (h *Handle) Wait(ctx context.Context) (domain.Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, nil
	case <-ctx.Done():
		return domain.Outcome{}, ctx.Err()
	}
}

// Dispatcher runs tasks in their own goroutines, detached from the context of
// whoever submitted them. There is no concurrency cap.
type Dispatcher struct {
	runner Runner
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	stopped  bool
	inFlight int
	wg       sync.WaitGroup
}

// NewDispatcher creates a Dispatcher that hands tasks to runner.
func NewDispatcher(runner Runner, logger *slog.Logger) (*Dispatcher, error) {
	if runner == nil {
		return nil, ErrNilExecutor
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		runner: runner,
		logger: logger.With("component", "task_dispatcher"),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Submit starts req in a new goroutine and returns its handle.
// It fails with ErrDispatcherStopped once Stop has been called.
func (d *Dispatcher) Submit(req domain.GenerationRequest) (*Handle, error) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil, ErrDispatcherStopped
	}
	d.inFlight++
	d.wg.Add(1)
	d.mu.Unlock()

	h := &Handle{TaskID: req.TaskID, done: make(chan struct{})}

	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			d.inFlight--
			d.mu.Unlock()
		}()

		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("task runner panicked", "task_id", req.TaskID, "panic", r)
				h.outcome = domain.NewFailure(domain.FailureInternal, "internal error", nil)
			}
			close(h.done)
		}()

		h.outcome = d.runner.Execute(d.ctx, req)
	}()

	d.logger.Debug("task dispatched", "task_id", req.TaskID)
	return h, nil
}

// InFlight returns the number of tasks that have not finished yet.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}

// Stop rejects new submissions and waits for in-flight tasks. If ctx expires
// first, the remaining tasks are canceled and ctx.Err() is returned once they
// have wound down.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.stopped = true
	pending := d.inFlight
	d.mu.Unlock()

	d.logger.Info("stopping dispatcher", "in_flight", pending)

	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		d.cancel()
		d.logger.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.logger.Warn("shutdown deadline reached, canceling in-flight tasks",
			"in_flight", d.InFlight())
		d.cancel()
		<-finished
		return ctx.Err()
	}
}
