// Package invoker performs provider HTTP calls with per-attempt timeouts and
// capped exponential backoff between transient failures.
package invoker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Attempt outcome labels, used in logs and metrics.
const (
	OutcomeSuccess   = "success"
	OutcomeTerminal  = "terminal"
	OutcomeRetryable = "retryable"
	OutcomeTimeout   = "timeout"
	OutcomeCanceled  = "canceled"
)

// AttemptObserver receives one notification per finished attempt.
type AttemptObserver interface {
	ObserveAttempt(outcome string, elapsed time.Duration)
}

// Sleeper waits for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Config controls retry behaviour.
type Config struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int
	// AttemptTimeout bounds each individual call.
	AttemptTimeout time.Duration
	// BaseDelay is doubled per attempt to form the backoff.
	BaseDelay time.Duration
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
	// MaxResponseBytes caps the body read from the provider.
	MaxResponseBytes int64
}

// DefaultConfig returns the production retry settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		AttemptTimeout:   4 * time.Minute,
		BaseDelay:        time.Second,
		MaxDelay:         10 * time.Second,
		MaxResponseBytes: 64 << 20,
	}
}

// Invoker posts JSON bodies to provider endpoints. It is safe for concurrent use.
type Invoker struct {
	client   *http.Client
	cfg      Config
	logger   *slog.Logger
	observer AttemptObserver
	sleep    Sleeper
}

// Option customizes an Invoker.
type Option func(*Invoker)

// WithObserver registers an observer for attempt outcomes.
func WithObserver(o AttemptObserver) Option {
	return func(i *Invoker) { i.observer = o }
}

// WithSleeper replaces the backoff wait, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(i *Invoker) { i.sleep = s }
}

// New creates an Invoker.
func New(client *http.Client, cfg Config, logger *slog.Logger, opts ...Option) (*Invoker, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: http client is nil", ErrInvalidConfig)
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if cfg.MaxAttempts < 1 || cfg.AttemptTimeout <= 0 || cfg.BaseDelay <= 0 || cfg.MaxDelay < cfg.BaseDelay {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidConfig, cfg)
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultConfig().MaxResponseBytes
	}

	inv := &Invoker{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "provider_invoker"),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv, nil
}

// Invoke posts body to url with the caller's API key as bearer token.
//
// A 2xx answer returns its body. A 4xx answer returns a *StatusError at once.
// 5xx answers, transport errors and per-attempt timeouts are retried until
// MaxAttempts is reached; the error of the last attempt is returned, wrapping
// ErrTimeout when that attempt timed out.
func (i *Invoker) Invoke(ctx context.Context, taskID, url string, body []byte, apiKey string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= i.cfg.MaxAttempts; attempt++ {
		i.logger.InfoContext(ctx, "calling provider",
			"task_id", taskID,
			"attempt", attempt,
			"max_attempts", i.cfg.MaxAttempts)

		start := time.Now()
		respBody, err := i.attempt(ctx, url, body, apiKey)
		elapsed := time.Since(start)

		outcome := classify(ctx, err)
		i.observe(outcome, elapsed)

		attrs := []any{
			"task_id", taskID,
			"attempt", attempt,
			"max_attempts", i.cfg.MaxAttempts,
			"elapsed_ms", elapsed.Milliseconds(),
			"outcome", outcome,
		}
		var se *StatusError
		if errors.As(err, &se) {
			attrs = append(attrs, "status_code", se.StatusCode)
		}

		switch outcome {
		case OutcomeSuccess:
			i.logger.InfoContext(ctx, "provider call succeeded", append(attrs, "bytes", len(respBody))...)
			return respBody, nil
		case OutcomeTerminal:
			i.logger.WarnContext(ctx, "provider rejected request, not retrying", append(attrs, "error", err)...)
			return nil, err
		case OutcomeCanceled:
			i.logger.WarnContext(ctx, "provider call canceled", append(attrs, "error", err)...)
			return nil, fmt.Errorf("provider call canceled: %w", err)
		case OutcomeTimeout:
			err = fmt.Errorf("%w after %s", ErrTimeout, i.cfg.AttemptTimeout)
		}

		lastErr = err
		i.logger.ErrorContext(ctx, "provider call failed", append(attrs, "error", err)...)

		if attempt == i.cfg.MaxAttempts {
			break
		}

		delay := i.Backoff(attempt)
		i.logger.InfoContext(ctx, "retrying after delay",
			"task_id", taskID,
			"attempt", attempt,
			"delay_ms", delay.Milliseconds())

		if err := i.sleep(ctx, delay); err != nil {
			i.logger.WarnContext(ctx, "provider call canceled during retry delay",
				"task_id", taskID,
				"attempt", attempt,
				"ctx_err", err)
			return nil, fmt.Errorf("provider call canceled: %w", err)
		}
	}

	i.logger.WarnContext(ctx, "maximum provider attempts reached",
		"task_id", taskID,
		"max_attempts", i.cfg.MaxAttempts)
	return nil, fmt.Errorf("all %d attempts failed: %w", i.cfg.MaxAttempts, lastErr)
}

// Backoff returns the wait after the given 1-based failed attempt:
// BaseDelay * 2^attempt, capped at MaxDelay.
func (i *Invoker) Backoff(attempt int) time.Duration {
	d := i.cfg.BaseDelay
	for n := 0; n < attempt; n++ {
		d *= 2
		if d >= i.cfg.MaxDelay || d <= 0 {
			return i.cfg.MaxDelay
		}
	}
	return d
}

func (i *Invoker) attempt(ctx context.Context, url string, body []byte, apiKey string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, i.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &attemptError{err: fmt.Errorf("failed to create request: %w", err), ctx: ctx, terminal: true}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, &attemptError{err: fmt.Errorf("request failed: %w", err), ctx: ctx}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, i.cfg.MaxResponseBytes+1))
	if err != nil {
		return nil, &attemptError{err: fmt.Errorf("failed to read response: %w", err), ctx: ctx}
	}
	if int64(len(respBody)) > i.cfg.MaxResponseBytes {
		return nil, &attemptError{
			err:      fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, i.cfg.MaxResponseBytes),
			ctx:      ctx,
			terminal: true,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: respBody}
	}
	return respBody, nil
}

// attemptError remembers the attempt context so that classify can tell a
// per-attempt deadline from an ordinary transport failure.
type attemptError struct {
	err      error
	ctx      context.Context
	terminal bool
}

func (e *attemptError) Error() string { return e.err.Error() }
func (e *attemptError) Unwrap() error { return e.err }

func classify(parent context.Context, err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	if parent.Err() != nil {
		return OutcomeCanceled
	}

	var se *StatusError
	if errors.As(err, &se) {
		if se.Retryable() {
			return OutcomeRetryable
		}
		return OutcomeTerminal
	}

	var ae *attemptError
	if errors.As(err, &ae) {
		if errors.Is(ae.ctx.Err(), context.DeadlineExceeded) {
			return OutcomeTimeout
		}
		if ae.terminal {
			return OutcomeTerminal
		}
	}
	return OutcomeRetryable
}

func (i *Invoker) observe(outcome string, elapsed time.Duration) {
	if i.observer != nil {
		i.observer.ObserveAttempt(outcome, elapsed)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
