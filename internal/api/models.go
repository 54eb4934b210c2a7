package api

import (
	"encoding/json"
	"time"

	"github.com/phrazzld/imagerelay/internal/domain"
	"github.com/phrazzld/imagerelay/internal/monitor"
)

// GenerateRequest defines the payload for both generation endpoints.
// APIKey is checked separately so that a missing key maps to 401.
type GenerateRequest struct {
	Model        string   `json:"model"                  validate:"required,max=128"`
	Prompt       string   `json:"prompt"                 validate:"required"`
	ImageURL     string   `json:"imageUrl,omitempty"`
	ImageURLs    []string `json:"imageUrls,omitempty"    validate:"max=16,dive,required"`
	ImageSize    string   `json:"imageSize,omitempty"    validate:"max=64"`
	APIKey       string   `json:"apiKey"`
	TaskID       string   `json:"taskId,omitempty"       validate:"omitempty,max=128,printascii"`
	ParentTaskID string   `json:"parentTaskId,omitempty" validate:"omitempty,max=128"`
	CallbackURL  string   `json:"callbackUrl,omitempty"  validate:"omitempty,http_url"`
}

// ToDomain converts the payload into a domain request for taskID.
func (r GenerateRequest) ToDomain(taskID string) domain.GenerationRequest {
	return domain.GenerationRequest{
		Model:        r.Model,
		Prompt:       r.Prompt,
		ImageURLs:    r.ImageURLs,
		ImageURL:     r.ImageURL,
		ImageSize:    r.ImageSize,
		APIKey:       r.APIKey,
		TaskID:       taskID,
		ParentTaskID: r.ParentTaskID,
		CallbackURL:  r.CallbackURL,
	}
}

// GenerateResponse is returned by the generation endpoints on success, and by
// the sync endpoint for failures that are reported as data.
type GenerateResponse struct {
	Success  bool   `json:"success"`
	TaskID   string `json:"taskId,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	Error    string `json:"error,omitempty"`
	Message  string `json:"message,omitempty"`
}

// StatusResponse is returned by the status endpoint.
type StatusResponse struct {
	TaskID      string            `json:"taskId"`
	Status      domain.TaskStatus `json:"status"`
	ImageURL    string            `json:"imageUrl,omitempty"`
	Error       string            `json:"error,omitempty"`
	RawResponse json.RawMessage   `json:"rawResponse,omitempty"`
	UpdatedAt   string            `json:"updatedAt,omitempty"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status       string           `json:"status"`
	Tasks        int64            `json:"tasks"`
	Processed    int64            `json:"processed"`
	Goroutines   int              `json:"goroutines"`
	Resources    monitor.Snapshot `json:"resources"`
	StoreEntries int              `json:"storeEntries"`
}

// newStatusResponse builds the poll view of a stored record.
func newStatusResponse(rec domain.TaskRecord) StatusResponse {
	resp := StatusResponse{
		TaskID:      rec.TaskID,
		Status:      rec.Status(),
		RawResponse: rawJSON(rec.RawResponse),
		UpdatedAt:   rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if rec.IsTerminal() {
		resp.ImageURL = rec.Outcome.ImageResult()
		resp.Error = rec.Outcome.Message()
	}
	return resp
}

// rawJSON embeds a provider body as-is when it is valid JSON and as a JSON
// string otherwise.
func rawJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	quoted, err := json.Marshal(string(raw))
	if err != nil {
		return nil
	}
	return quoted
}
