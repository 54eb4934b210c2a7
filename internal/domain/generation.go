package domain

import (
	"fmt"
	"strings"
)

// GenerationRequest is the immutable input of one generation task.
// It is built once by the API layer and never modified afterwards.
type GenerationRequest struct {
	Model        string
	Prompt       string
	ImageURLs    []string
	ImageURL     string // legacy single-image field, used when ImageURLs is empty
	ImageSize    string
	APIKey       string
	TaskID       string
	ParentTaskID string
	CallbackURL  string
}

// Validate checks that the request carries everything a provider round-trip needs.
// A missing API key is reported separately from other validation failures so that
// callers can map it to an authentication error.
func (r GenerationRequest) Validate() error {
	if r.APIKey == "" {
		return ErrMissingAPIKey
	}
	if r.TaskID == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyTaskID)
	}
	if strings.TrimSpace(r.Model) == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyModel)
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyPrompt)
	}
	return nil
}

// Images returns the effective ordered list of input image references.
// The legacy ImageURL field is only consulted when ImageURLs is empty.
func (r GenerationRequest) Images() []string {
	if len(r.ImageURLs) > 0 {
		images := make([]string, len(r.ImageURLs))
		copy(images, r.ImageURLs)
		return images
	}
	if r.ImageURL != "" {
		return []string{r.ImageURL}
	}
	return nil
}

// PromptText joins the prompt and the size directive into the single text
// segment sent to every provider.
func (r GenerationRequest) PromptText() string {
	if r.ImageSize == "" {
		return r.Prompt
	}
	return r.Prompt + " " + r.ImageSize
}
