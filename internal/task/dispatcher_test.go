package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/imagerelay/internal/domain"
	"github.com/phrazzld/imagerelay/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runnerFunc adapts a function to Runner.
type runnerFunc func(ctx context.Context, req domain.GenerationRequest) domain.Outcome

func (f runnerFunc) Execute(ctx context.Context, req domain.GenerationRequest) domain.Outcome {
	return f(ctx, req)
}

func newTestDispatcher(t *testing.T, fn runnerFunc) *Dispatcher {
	t.Helper()
	l, _ := logger.GetTestLogger(t)
	d, err := NewDispatcher(fn, l)
	require.NoError(t, err)
	return d
}

func TestNewDispatcherValidation(t *testing.T) {
	l, _ := logger.GetTestLogger(t)

	_, err := NewDispatcher(nil, l)
	assert.ErrorIs(t, err, ErrNilExecutor)

	_, err = NewDispatcher(runnerFunc(nil), nil)
	assert.ErrorIs(t, err, ErrNilLogger)
}

func TestDispatcherSubmitAndWait(t *testing.T) {
	d := newTestDispatcher(t, func(_ context.Context, req domain.GenerationRequest) domain.Outcome {
		return domain.NewSuccess("https://cdn.test/"+req.TaskID+".png", nil)
	})

	h, err := d.Submit(domain.GenerationRequest{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "t1", h.TaskID)

	out, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/t1.png", out.ImageResult())

	require.NoError(t, d.Stop(context.Background()))
}

func TestDispatcherDetachedFromWaiter(t *testing.T) {
	release := make(chan struct{})
	var finished atomic.Bool
	d := newTestDispatcher(t, func(ctx context.Context, _ domain.GenerationRequest) domain.Outcome {
		<-release
		finished.Store(ctx.Err() == nil)
		return domain.NewSuccess("https://cdn.test/late.png", nil)
	})

	h, err := d.Submit(domain.GenerationRequest{TaskID: "slow"})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = h.Wait(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, d.InFlight(), "the task keeps running after the waiter gives up")

	close(release)
	<-h.Done()
	assert.True(t, finished.Load(), "task context is not tied to the waiter")
	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, 0, d.InFlight())
}

func TestDispatcherStopRejectsNewWork(t *testing.T) {
	d := newTestDispatcher(t, func(context.Context, domain.GenerationRequest) domain.Outcome {
		return domain.NewSuccess("https://cdn.test/x.png", nil)
	})
	require.NoError(t, d.Stop(context.Background()))

	_, err := d.Submit(domain.GenerationRequest{TaskID: "late"})
	assert.ErrorIs(t, err, ErrDispatcherStopped)
}

func TestDispatcherStopDeadlineCancelsTasks(t *testing.T) {
	d := newTestDispatcher(t, func(ctx context.Context, _ domain.GenerationRequest) domain.Outcome {
		<-ctx.Done()
		return domain.NewFailure(domain.FailureInternal, ctx.Err().Error(), nil)
	})

	h, err := d.Submit(domain.GenerationRequest{TaskID: "stuck"})
	require.NoError(t, err)

	stopCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = d.Stop(stopCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	out, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "context canceled", out.Message())
}

func TestDispatcherRecoversRunnerPanic(t *testing.T) {
	d := newTestDispatcher(t, func(context.Context, domain.GenerationRequest) domain.Outcome {
		panic("runner exploded")
	})

	h, err := d.Submit(domain.GenerationRequest{TaskID: "boom"})
	require.NoError(t, err)

	out, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.FailureInternal, out.Kind())
	require.NoError(t, d.Stop(context.Background()))
}
