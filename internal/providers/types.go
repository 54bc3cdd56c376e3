package providers

import "context"

// Provider is a chat-completion backend.
type Provider interface {
	// Chat sends one request and returns the first choice's text.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// DefaultModel returns the provider's default model name.
	DefaultModel() string

	// Name returns the provider identifier (e.g. "ark", "openai").
	Name() string
}

// ChatRequest contains the input for a Chat call.
type ChatRequest struct {
	Messages []Message     `json:"messages"`
	Model    string        `json:"model,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// ChatResponse is the result of a Chat call.
type ChatResponse struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        *Usage `json:"usage,omitempty"`
}

// Part types inside a multi-part message.
const (
	PartText     = "text"
	PartImageURL = "image_url"
)

// Part is one piece of multi-part message content.
type Part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image by URL or data URI.
type ImageURL struct {
	URL string `json:"url"`
}

// TextPart returns a text part.
func TextPart(s string) Part { return Part{Type: PartText, Text: s} }

// ImagePart returns an image_url part.
func ImagePart(url string) Part { return Part{Type: PartImageURL, ImageURL: &ImageURL{URL: url}} }

// Message is a conversation turn. Content is always sent in multi-part form.
type Message struct {
	Role  string `json:"role"` // "system", "user", "assistant"
	Parts []Part `json:"content"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request option keys.
const (
	OptMaxCompletionTokens = "max_completion_tokens"
	OptReasoningEffort     = "reasoning_effort"
	OptTemperature         = "temperature"
)
