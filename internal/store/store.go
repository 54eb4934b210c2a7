package store

import (
	"context"

	"github.com/phrazzld/imagerelay/internal/domain"
)

// TaskStore keeps the latest known state of every task.
//
// Implementations must be safe for concurrent use. Each task ID moves
// through pending, optionally snapshot, and finally done; once done, its
// outcome never changes until the record expires.
type TaskStore interface {
	// Claim registers a new pending task. It returns ErrTaskExists when a
	// live record for taskID is already present.
	Claim(ctx context.Context, taskID string) error

	// Snapshot stores the raw provider body ahead of extraction.
	// It returns ErrTaskFinalized if the task is already done.
	Snapshot(ctx context.Context, taskID string, raw []byte) error

	// Complete writes the terminal outcome. It returns ErrTaskFinalized if a
	// terminal outcome was written before.
	Complete(ctx context.Context, taskID string, outcome domain.Outcome) error

	// Get returns the record for taskID. Missing and expired records both
	// report false.
	Get(ctx context.Context, taskID string) (domain.TaskRecord, bool)

	// Delete removes the record for taskID, if any.
	Delete(ctx context.Context, taskID string)

	// Len returns the number of records currently held, including expired
	// records that have not been swept yet.
	Len() int
}
