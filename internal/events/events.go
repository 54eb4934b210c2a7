package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imagerelay/internal/domain"
)

// TaskCompletedEvent announces that a task reached its terminal outcome.
// It is emitted exactly once per executed task, after the outcome is stored.
type TaskCompletedEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	TaskID       string            `json:"taskId"`
	ParentTaskID string            `json:"parentTaskId,omitempty"`
	CallbackURL  string            `json:"callbackUrl,omitempty"`
	Status       domain.TaskStatus `json:"status"`

	// ImageURL is set for completed tasks, Error for failed ones.
	ImageURL string `json:"imageUrl,omitempty"`
	Error    string `json:"error,omitempty"`

	CompletedAt time.Time `json:"completedAt"`
}

// NewTaskCompletedEvent builds the event for a finished task.
func NewTaskCompletedEvent(req domain.GenerationRequest, outcome domain.Outcome) *TaskCompletedEvent {
	return &TaskCompletedEvent{
		ID:           uuid.New(),
		TaskID:       req.TaskID,
		ParentTaskID: req.ParentTaskID,
		CallbackURL:  req.CallbackURL,
		Status:       outcome.Status(),
		ImageURL:     outcome.ImageResult(),
		Error:        outcome.Message(),
		CompletedAt:  time.Now(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskCompletedEvent) error
}

// EventHandlerFunc adapts an ordinary function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event *TaskCompletedEvent) error

// HandleEvent calls f(ctx, event).
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *TaskCompletedEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows the executor to publish results without knowing who consumes them.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *TaskCompletedEvent) error
}
