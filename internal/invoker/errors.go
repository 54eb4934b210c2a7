package invoker

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/phrazzld/imagerelay/internal/redact"
)

// Common errors
var (
	// ErrTimeout is returned when the final attempt ran out of its time budget.
	ErrTimeout = errors.New("provider request timed out")

	// ErrResponseTooLarge is returned when a provider body exceeds the configured limit.
	ErrResponseTooLarge = errors.New("provider response too large")

	// ErrInvalidConfig is returned when the invoker is created with unusable settings.
	ErrInvalidConfig = errors.New("invalid invoker configuration")

	// ErrNilLogger is returned when the invoker is created without a logger.
	ErrNilLogger = errors.New("logger cannot be nil")
)

// errorBodyLogLimit caps how much of a provider error body ends up in messages.
const errorBodyLogLimit = 2048

// StatusError is a non-2xx answer from the provider.
type StatusError struct {
	StatusCode int
	Body       []byte
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned error %d: %s", e.StatusCode, redact.Bytes(e.Body, errorBodyLogLimit))
}

// Retryable reports whether the status is worth another attempt. Client
// errors are final; everything else is assumed to be transient.
func (e *StatusError) Retryable() bool {
	return e.StatusCode < http.StatusBadRequest || e.StatusCode >= http.StatusInternalServerError
}

// IsClientError reports whether err carries a 4xx provider status.
func IsClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && !se.Retryable()
}
