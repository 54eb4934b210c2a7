package task

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/imagerelay/internal/domain"
	"github.com/phrazzld/imagerelay/internal/events"
	"github.com/phrazzld/imagerelay/internal/redact"
)

// DefaultCallbackTimeout bounds a single callback POST.
const DefaultCallbackTimeout = 10 * time.Second

// CallbackPayload is the JSON body posted to a task's callback URL.
type CallbackPayload struct {
	TaskID       string            `json:"taskId"`
	ParentTaskID string            `json:"parentTaskId,omitempty"`
	Status       domain.TaskStatus `json:"status"`
	ImageURL     string            `json:"imageUrl,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// CallbackNotifier posts finished tasks to their callback URL. Delivery is
// attempted once; failures are logged and never affect the task outcome.
type CallbackNotifier struct {
	client  *http.Client
	timeout time.Duration
	signer  *CallbackSigner // nil disables signing
	logger  *slog.Logger
}

var _ events.EventHandler = (*CallbackNotifier)(nil)

// NewCallbackNotifier creates a notifier. signer may be nil.
func NewCallbackNotifier(client *http.Client, timeout time.Duration, signer *CallbackSigner, logger *slog.Logger) (*CallbackNotifier, error) {
	if client == nil {
		return nil, ErrNilHTTPClient
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if timeout <= 0 {
		timeout = DefaultCallbackTimeout
	}
	return &CallbackNotifier{
		client:  client,
		timeout: timeout,
		signer:  signer,
		logger:  logger.With("component", "callback_notifier"),
	}, nil
}

// HandleEvent implements events.EventHandler. Events without a callback URL
// are ignored.
func (n *CallbackNotifier) HandleEvent(ctx context.Context, event *events.TaskCompletedEvent) error {
	if event.CallbackURL == "" {
		return nil
	}

	log := n.logger.With("task_id", event.TaskID, "status", event.Status)
	if err := n.send(ctx, event); err != nil {
		log.WarnContext(ctx, "callback delivery failed",
			"callback_url", redact.String(event.CallbackURL),
			"error", err)
		return nil
	}

	log.InfoContext(ctx, "callback delivered")
	return nil
}

func (n *CallbackNotifier) send(ctx context.Context, event *events.TaskCompletedEvent) error {
	body, err := json.Marshal(CallbackPayload{
		TaskID:       event.TaskID,
		ParentTaskID: event.ParentTaskID,
		Status:       event.Status,
		ImageURL:     event.ImageURL,
		Error:        event.Error,
	})
	if err != nil {
		return fmt.Errorf("failed to encode callback payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, event.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if n.signer != nil {
		token, err := n.signer.Sign(event.TaskID, event.Status)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
