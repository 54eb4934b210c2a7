package store

import "errors"

// Common store errors used across all store implementations.
var (
	// ErrTaskExists is returned by Claim when a live record already exists
	// for the task ID. Each task ID has at most one executor.
	ErrTaskExists = errors.New("task already exists")

	// ErrTaskFinalized is returned when a write targets a record that already
	// carries a terminal outcome. The stored outcome is left untouched.
	ErrTaskFinalized = errors.New("task already finalized")

	// ErrEmptyTaskID is returned when an operation is called without a task ID.
	ErrEmptyTaskID = errors.New("task ID cannot be empty")

	// ErrInvalidConfig is returned when a store is created with unusable settings.
	ErrInvalidConfig = errors.New("invalid store configuration")

	// ErrNilLogger is returned when a store is created without a logger.
	ErrNilLogger = errors.New("logger cannot be nil")
)
