package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/phrazzld/imagerelay/internal/domain"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

// maxConcurrentFetches bounds parallel reference image downloads per request.
const maxConcurrentFetches = 4

type geminiRequest struct {
	Contents         []*genai.Content        `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

// GeminiAdapter speaks the generateContent format.
type GeminiAdapter struct {
	url     string
	fetcher ImageFetcher
	logger  *slog.Logger
}

// NewGeminiAdapter creates a GeminiAdapter posting to url. fetcher downloads
// reference images so they can be sent inline.
func NewGeminiAdapter(url string, fetcher ImageFetcher, logger *slog.Logger) (*GeminiAdapter, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: gemini URL is empty", ErrInvalidConfig)
	}
	if fetcher == nil {
		return nil, fmt.Errorf("%w: image fetcher is nil", ErrInvalidConfig)
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	return &GeminiAdapter{
		url:     url,
		fetcher: fetcher,
		logger:  logger.With("component", "gemini_adapter"),
	}, nil
}

// Family implements Adapter.
func (a *GeminiAdapter) Family() Family { return FamilyGemini }

// Build implements Adapter. The text part always comes first, followed by one
// part per reference image in request order. An image that cannot be loaded
// is forwarded by reference instead of failing the request.
func (a *GeminiAdapter) Build(ctx context.Context, req domain.GenerationRequest) (Request, error) {
	images := req.Images()

	parts := make([]*genai.Part, len(images)+1)
	parts[0] = genai.NewPartFromText(req.PromptText())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, ref := range images {
		g.Go(func() error {
			parts[i+1] = a.imagePart(gctx, req.TaskID, i, ref)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Request{}, fmt.Errorf("building gemini request: %w", err)
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	})
	if err != nil {
		return Request{}, fmt.Errorf("failed to encode gemini request: %w", err)
	}

	return Request{URL: a.url, Body: body}, nil
}

func (a *GeminiAdapter) imagePart(ctx context.Context, taskID string, index int, ref string) *genai.Part {
	data, mimeType, err := a.fetcher.Fetch(ctx, ref)
	if err != nil {
		a.logger.WarnContext(ctx, "reference image unavailable, forwarding by reference",
			"task_id", taskID,
			"image_index", index,
			"error", err)
		return genai.NewPartFromURI(ref, guessMIMEType(ref))
	}

	a.logger.DebugContext(ctx, "reference image inlined",
		"task_id", taskID,
		"image_index", index,
		"mime_type", mimeType,
		"bytes", len(data))
	return genai.NewPartFromBytes(data, mimeType)
}

// Extract implements Adapter.
func (a *GeminiAdapter) Extract(body []byte) domain.Outcome {
	doc, failure, ok := parseBody(body)
	if !ok {
		return failure
	}

	parts := doc.Get("candidates.0.content.parts").Array()

	for _, part := range parts {
		inline := part.Get("inlineData")
		if !inline.Exists() {
			inline = part.Get("inline_data")
		}
		data := inline.Get("data").String()
		mimeType := firstString(inline, "mimeType", "mime_type")
		if data != "" && mimeType != "" {
			return domain.NewSuccess(fmt.Sprintf("data:%s;base64,%s", mimeType, data), body)
		}
	}

	for _, part := range parts {
		if url, found := FindImageURL(part.Get("text").String()); found {
			return domain.NewSuccess(url, body)
		}
	}

	if url := fallbackImageURL(doc); url != "" {
		return domain.NewSuccess(url, body)
	}

	if msg := providerErrorMessage(doc); msg != "" {
		return domain.NewFailure(domain.FailureExtraction, msg, body)
	}
	if reason := doc.Get("promptFeedback.blockReason").String(); reason != "" {
		return domain.NewFailure(domain.FailureExtraction, "prompt blocked: "+reason, body)
	}
	if reason := doc.Get("candidates.0.finishReason").String(); reason != "" && reason != "STOP" {
		return domain.NewFailure(domain.FailureExtraction, "generation stopped: "+reason, body)
	}

	// A text-only answer usually explains why no image was produced
	for _, part := range parts {
		if text := part.Get("text").String(); text != "" && HasFailureMarker(text) {
			return domain.NewFailure(domain.FailureExtraction, text, body)
		}
	}

	return domain.NewFailure(domain.FailureExtraction, msgNoImageData, body)
}

var (
	_ Adapter = (*GeminiAdapter)(nil)
	_ Adapter = (*ChatAdapter)(nil)
)
