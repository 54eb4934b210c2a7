package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/phrazzld/imagerelay/internal/domain"
	"github.com/tidwall/gjson"
)

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// chatMessage.Content is either a plain string or a []chatContentPart.
type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

// ChatAdapter speaks the chat-completion format.
type ChatAdapter struct {
	url       string
	soraModel string
}

// NewChatAdapter creates a ChatAdapter posting to url. soraModel is the wire
// model sent for the sora tags.
func NewChatAdapter(url, soraModel string) (*ChatAdapter, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: chat URL is empty", ErrInvalidConfig)
	}
	if soraModel == "" {
		soraModel = ModelSoraImage
	}
	return &ChatAdapter{url: url, soraModel: soraModel}, nil
}

// Family implements Adapter.
func (a *ChatAdapter) Family() Family { return FamilyChat }

// WireModel maps a request model tag to the model name sent upstream.
func (a *ChatAdapter) WireModel(model string) string {
	switch strings.ToLower(strings.TrimSpace(model)) {
	case ModelSora, ModelSoraImage:
		return a.soraModel
	default:
		return model
	}
}

// Build implements Adapter. Reference images are forwarded by URL; the chat
// gateway downloads them itself.
func (a *ChatAdapter) Build(_ context.Context, req domain.GenerationRequest) (Request, error) {
	text := req.PromptText()
	images := req.Images()

	var content interface{} = text
	if len(images) > 0 {
		parts := make([]chatContentPart, 0, len(images)+1)
		parts = append(parts, chatContentPart{Type: "text", Text: text})
		for _, img := range images {
			parts = append(parts, chatContentPart{
				Type:     "image_url",
				ImageURL: &chatImageURL{URL: img},
			})
		}
		content = parts
	}

	body, err := json.Marshal(chatRequest{
		Model:    a.WireModel(req.Model),
		Messages: []chatMessage{{Role: "user", Content: content}},
	})
	if err != nil {
		return Request{}, fmt.Errorf("failed to encode chat request: %w", err)
	}

	return Request{URL: a.url, Body: body}, nil
}

// Extract implements Adapter.
func (a *ChatAdapter) Extract(body []byte) domain.Outcome {
	doc, failure, ok := parseBody(body)
	if !ok {
		return failure
	}

	text := chatContentText(doc.Get("choices.0.message.content"))

	if HasFailureMarker(text) {
		return domain.NewFailure(domain.FailureExtraction, text, body)
	}

	if url, found := FindImageURL(text); found {
		return domain.NewSuccess(url, body)
	}

	if url := fallbackImageURL(doc); url != "" {
		return domain.NewSuccess(url, body)
	}

	if msg := providerErrorMessage(doc); msg != "" {
		return domain.NewFailure(domain.FailureExtraction, msg, body)
	}

	return domain.NewFailure(domain.FailureExtraction, msgNoImageURL, body)
}

// chatContentText flattens message content into one string. Array content
// contributes its text parts and any image_url values, in order.
func chatContentText(content gjson.Result) string {
	if !content.IsArray() {
		return content.String()
	}

	var sb strings.Builder
	content.ForEach(func(_, part gjson.Result) bool {
		if s := firstString(part, "text", "image_url.url", "image_url"); s != "" {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(s)
		}
		return true
	})
	return sb.String()
}
