package domain

import "time"

// TaskStatus is the externally visible state of a task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// RecordState tracks how far a task record has progressed.
type RecordState string

// Possible record states
const (
	// RecordPending means the task was accepted but nothing has been written yet.
	RecordPending RecordState = "pending"
	// RecordSnapshot means the raw provider body was stored ahead of extraction.
	RecordSnapshot RecordState = "snapshot"
	// RecordDone means a terminal outcome was written. It never changes afterwards.
	RecordDone RecordState = "done"
)

// TaskRecord is what the task store keeps for one task ID.
type TaskRecord struct {
	TaskID      string
	State       RecordState
	Outcome     Outcome // meaningful only when State is RecordDone
	RawResponse []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   time.Time
}

// IsTerminal reports whether a terminal outcome has been written.
func (r TaskRecord) IsTerminal() bool {
	return r.State == RecordDone
}

// Status maps the record to the status reported to pollers.
// Pending and snapshot records both read as processing.
func (r TaskRecord) Status() TaskStatus {
	if !r.IsTerminal() {
		return TaskStatusProcessing
	}
	return r.Outcome.Status()
}

// Expired reports whether the record's retention window has passed at now.
func (r TaskRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}
