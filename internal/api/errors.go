package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/imagerelay/internal/domain"
	"github.com/phrazzld/imagerelay/internal/store"
	"github.com/phrazzld/imagerelay/internal/task"
)

// MapErrorToStatusCode maps errors raised before a task starts to HTTP
// status codes.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingAPIKey):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrTaskExists):
		return http.StatusConflict
	case errors.Is(err, task.ErrDispatcherStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err that never
// includes internal detail.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"
	case errors.Is(err, domain.ErrMissingAPIKey):
		return "API key required"
	case errors.Is(err, domain.ErrEmptyModel):
		return "Invalid model: required field"
	case errors.Is(err, domain.ErrEmptyPrompt):
		return "Invalid prompt: required field"
	case errors.Is(err, domain.ErrValidation):
		return "Validation error"
	case errors.Is(err, store.ErrTaskExists):
		return "Task ID already in use"
	case errors.Is(err, task.ErrDispatcherStopped):
		return "Server is shutting down"
	default:
		return "An unexpected error occurred"
	}
}

// MapOutcomeToStatus returns the status code the sync endpoint uses for a
// finished task. Only provider rejections and provider timeouts surface as
// HTTP errors; every other failure is reported as data with 200.
func MapOutcomeToStatus(outcome domain.Outcome) int {
	if outcome.IsSuccess() {
		return http.StatusOK
	}
	switch outcome.Kind() {
	case domain.FailureProviderRejected:
		return http.StatusBadRequest
	case domain.FailureTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusOK
	}
}
