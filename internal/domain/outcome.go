package domain

// FailureKind classifies why a task ended without an image.
type FailureKind string

// Possible failure kinds
const (
	// FailureProviderRejected is a terminal 4xx answer from the provider.
	FailureProviderRejected FailureKind = "provider_rejected"
	// FailureTimeout means the final provider attempt ran out of time.
	FailureTimeout FailureKind = "timeout"
	// FailureUpstream covers 5xx answers and transport errors that survived every retry.
	FailureUpstream FailureKind = "upstream"
	// FailureExtraction is a 2xx answer that did not contain a usable image.
	FailureExtraction FailureKind = "extraction"
	// FailureInternal means the provider request could not be built at all.
	FailureInternal FailureKind = "internal"
)

// Outcome is the terminal result of a task: exactly one of Success or Failure.
// The zero value is not a valid outcome; use NewSuccess or NewFailure.
type Outcome struct {
	success     bool
	imageResult string
	message     string
	kind        FailureKind
	rawResponse []byte
}

// NewSuccess returns a successful outcome carrying an image URL or data URI.
func NewSuccess(imageResult string, rawResponse []byte) Outcome {
	return Outcome{
		success:     true,
		imageResult: imageResult,
		rawResponse: rawResponse,
	}
}

// NewFailure returns a failed outcome with a human-readable message.
// rawResponse may be nil when no provider body was received.
func NewFailure(kind FailureKind, message string, rawResponse []byte) Outcome {
	return Outcome{
		message:     message,
		kind:        kind,
		rawResponse: rawResponse,
	}
}

// IsSuccess reports whether the outcome carries an image.
func (o Outcome) IsSuccess() bool { return o.success }

// ImageResult returns the image URL or data URI of a successful outcome.
func (o Outcome) ImageResult() string { return o.imageResult }

// Message returns the failure message, or an empty string for a success.
func (o Outcome) Message() string { return o.message }

// Kind returns the failure classification, or an empty string for a success.
func (o Outcome) Kind() FailureKind { return o.kind }

// RawResponse returns the provider body that produced this outcome, if any.
func (o Outcome) RawResponse() []byte { return o.rawResponse }

// Status maps the outcome to its externally visible task status.
func (o Outcome) Status() TaskStatus {
	if o.success {
		return TaskStatusCompleted
	}
	return TaskStatusFailed
}
