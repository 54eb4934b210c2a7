package provider

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/phrazzld/imagerelay/internal/domain"
)

// Family is a group of back-ends that share one wire format.
type Family string

// Supported provider families
const (
	// FamilyChat speaks the OpenAI-style chat-completion format.
	FamilyChat Family = "chat"
	// FamilyGemini speaks the generateContent format.
	FamilyGemini Family = "gemini"
)

// Model tags that select a family explicitly. Every other tag is passed
// through to the chat family unchanged.
const (
	ModelSora      = "sora"
	ModelSoraImage = "sora_image"
	ModelGemini    = "gemini"
)

// Common errors
var (
	// ErrInvalidConfig is returned when an adapter is created with missing settings.
	ErrInvalidConfig = errors.New("invalid provider configuration")
	// ErrNilLogger is returned when an adapter is created without a logger.
	ErrNilLogger = errors.New("logger cannot be nil")
)

// Request is a fully built provider call: where to send it and the JSON body.
type Request struct {
	URL  string
	Body []byte
}

// Adapter translates between the normalized request/outcome and one family's
// wire format. Implementations are safe for concurrent use.
type Adapter interface {
	// Family identifies the wire format the adapter speaks.
	Family() Family

	// Build produces the provider request for req. It may block on network
	// I/O (reference image download) and honors ctx cancellation.
	Build(ctx context.Context, req domain.GenerationRequest) (Request, error)

	// Extract turns a 2xx provider body into an outcome. It never panics;
	// any body it cannot interpret becomes an extraction failure that keeps
	// the raw body for diagnosis.
	Extract(body []byte) domain.Outcome
}

// Route picks the family for a model tag.
func Route(model string) Family {
	if strings.EqualFold(strings.TrimSpace(model), ModelGemini) {
		return FamilyGemini
	}
	return FamilyChat
}

// Router hands out the adapter for a request's model tag.
type Router struct {
	chat   *ChatAdapter
	gemini *GeminiAdapter
	logger *slog.Logger
}

// RouterConfig holds the per-family endpoints.
type RouterConfig struct {
	ChatURL   string
	GeminiURL string
	SoraModel string
}

// NewRouter creates a Router with one adapter per family.
func NewRouter(cfg RouterConfig, fetcher ImageFetcher, logger *slog.Logger) (*Router, error) {
	if logger == nil {
		return nil, ErrNilLogger
	}

	chat, err := NewChatAdapter(cfg.ChatURL, cfg.SoraModel)
	if err != nil {
		return nil, err
	}

	gemini, err := NewGeminiAdapter(cfg.GeminiURL, fetcher, logger)
	if err != nil {
		return nil, err
	}

	return &Router{
		chat:   chat,
		gemini: gemini,
		logger: logger.With("component", "provider_router"),
	}, nil
}

// AdapterFor returns the adapter serving model.
func (r *Router) AdapterFor(model string) Adapter {
	if Route(model) == FamilyGemini {
		return r.gemini
	}
	return r.chat
}
