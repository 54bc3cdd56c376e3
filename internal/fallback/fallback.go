// Package fallback hands unmatched direct mentions to a chat-completion model.
package fallback

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/providers"
)

// Fixed replies.
const (
	DefaultSystemPrompt = "你是一个名叫orange的QQ群聊天机器人，性格友善、乐于助人且带一点中二幽默感。请用自然、友好的语言回复用户的问题和请求，适当加入一些有趣的表情或语气词，让对话更加生动有趣。"
	DefaultEmptyReply   = "你@我有什么事吗？"
	Apology             = "抱歉，AI回复功能暂时不可用"
)

// ErrEmptyPrompt is returned by Complete when there is neither text nor an image.
var ErrEmptyPrompt = errors.New("empty prompt")

// Config tunes the request sent to the provider.
type Config struct {
	SystemPrompt        string
	Model               string
	MaxCompletionTokens int
	ReasoningEffort     string
	Timeout             time.Duration // whole call including retries; default 60s
	EmptyReply          string
}

// Dispatcher builds chat-completion requests from message content.
type Dispatcher struct {
	provider providers.Provider
	cfg      Config
}

// New creates a dispatcher. Zero config fields take defaults.
func New(p providers.Provider, cfg Config) *Dispatcher {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.EmptyReply == "" {
		cfg.EmptyReply = DefaultEmptyReply
	}
	return &Dispatcher{provider: p, cfg: cfg}
}

// Respond returns the model's reply, the empty-prompt reply when there is
// nothing to send, or Apology when the provider fails. It never returns an
// error.
func (d *Dispatcher) Respond(ctx context.Context, text string, imageURLs []string) string {
	reply, err := d.Complete(ctx, text, imageURLs)
	switch {
	case errors.Is(err, ErrEmptyPrompt):
		return d.cfg.EmptyReply
	case err != nil:
		slog.Error("ai fallback failed",
			"collaborator", d.providerName(),
			"class", providers.Classify(err),
			"error", err,
		)
		return Apology
	}
	return reply
}

// Complete sends one request and returns the raw reply or error.
func (d *Dispatcher) Complete(ctx context.Context, text string, imageURLs []string) (string, error) {
	msgs := d.BuildMessages(text, imageURLs)
	if len(msgs) < 2 {
		return "", ErrEmptyPrompt
	}
	if d.provider == nil {
		return "", errors.New("no chat-completion provider configured")
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	opts := map[string]any{}
	if d.cfg.MaxCompletionTokens > 0 {
		opts[providers.OptMaxCompletionTokens] = d.cfg.MaxCompletionTokens
	}
	if d.cfg.ReasoningEffort != "" {
		opts[providers.OptReasoningEffort] = d.cfg.ReasoningEffort
	}

	resp, err := d.provider.Chat(ctx, providers.ChatRequest{
		Messages: msgs,
		Model:    d.cfg.Model,
		Options:  opts,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// BuildMessages returns the system preamble plus one user turn with the
// images first and the text last. The user turn is omitted when empty.
func (d *Dispatcher) BuildMessages(text string, imageURLs []string) []providers.Message {
	msgs := []providers.Message{{
		Role:  "system",
		Parts: []providers.Part{providers.TextPart(d.cfg.SystemPrompt)},
	}}

	var parts []providers.Part
	for _, u := range imageURLs {
		if u != "" {
			parts = append(parts, providers.ImagePart(u))
		}
	}
	if text = strings.TrimSpace(text); text != "" {
		parts = append(parts, providers.TextPart(text))
	}
	if len(parts) > 0 {
		msgs = append(msgs, providers.Message{Role: "user", Parts: parts})
	}
	return msgs
}

func (d *Dispatcher) providerName() string {
	if d.provider == nil {
		return "none"
	}
	return d.provider.Name()
}

// textImageURL finds url= references embedded in text, as produced by
// CQ-coded image segments.
var textImageURL = regexp.MustCompile(`url=[?\\]?["']?(https?://[^\\"'\s\],]+)`)

// ExtractImageURLs collects image segment URLs and url= references found in
// text segments, in message order.
func ExtractImageURLs(msg bus.InboundMessage) []string {
	var urls []string
	for _, seg := range msg.Segments {
		switch seg.Type {
		case bus.SegmentImage:
			if seg.URL != "" {
				urls = append(urls, seg.URL)
			}
		case bus.SegmentText:
			for _, m := range textImageURL.FindAllStringSubmatch(seg.Text, -1) {
				urls = append(urls, strings.ReplaceAll(m[1], "&amp;", "&"))
			}
		}
	}
	return urls
}

// PromptText joins text segments with their surrounding whitespace trimmed.
func PromptText(msg bus.InboundMessage) string {
	var b strings.Builder
	for _, seg := range msg.Segments {
		if seg.Type == bus.SegmentText {
			b.WriteString(strings.TrimSpace(seg.Text))
		}
	}
	return b.String()
}
