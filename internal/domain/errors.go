package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrMissingAPIKey is returned when a request carries no bearer credential.
	ErrMissingAPIKey = errors.New("API key required")

	// ErrEmptyModel is returned when a request does not name a provider model.
	ErrEmptyModel = errors.New("model cannot be empty")

	// ErrEmptyPrompt is returned when a request has no prompt text.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrEmptyTaskID is returned when an operation requires a task ID but none was set.
	ErrEmptyTaskID = errors.New("task ID cannot be empty")
)
