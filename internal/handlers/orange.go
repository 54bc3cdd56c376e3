package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/fallback"
	"github.com/mikann-OMO/bot/internal/plugins"
	"github.com/mikann-OMO/bot/internal/providers"
	"github.com/mikann-OMO/bot/internal/router"
)

const (
	orangeEmpty = "你找我有什么事吗？"
	gptEmpty    = "请输入要查询的内容或图片"
	chatEmpty   = "请输入聊天内容"
)

// Orange is the AI chat handler. It answers "oi"-prefixed messages, direct
// mentions, and the #gpt and #chat commands.
type Orange struct {
	ai      *fallback.Dispatcher
	plugins *plugins.State
}

// NewOrange creates the orange handler. A nil plugin state keeps it enabled.
func NewOrange(ai *fallback.Dispatcher, ps *plugins.State) *Orange {
	return &Orange{ai: ai, plugins: ps}
}

func (h *Orange) Handle(ctx context.Context, bot router.Bot, msg bus.InboundMessage) (bool, error) {
	if h.plugins != nil && !h.plugins.IsEnabled(plugins.Orange) {
		return false, nil
	}
	text := msg.PlainText()

	switch cmd, args := splitCommand(text); cmd {
	case "#gpt":
		images := fallback.ExtractImageURLs(msg)
		if args == "" && len(images) == 0 {
			_ = replyText(ctx, bot, msg, gptEmpty)
			return true, nil
		}
		h.respond(ctx, bot, msg, args, images)
		return true, nil
	case "#chat":
		if args == "" {
			_ = replyText(ctx, bot, msg, chatEmpty)
			return true, nil
		}
		h.respond(ctx, bot, msg, args, nil)
		return true, nil
	}

	switch {
	case msg.MentionsSelf():
	case hasOiPrefix(text):
		text = strings.TrimSpace(text[2:])
	default:
		return false, nil
	}
	h.respond(ctx, bot, msg, text, fallback.ExtractImageURLs(msg))
	return true, nil
}

func (h *Orange) respond(ctx context.Context, bot router.Bot, msg bus.InboundMessage, text string, images []string) {
	_ = replyText(ctx, bot, msg, Thinking)

	answer, err := h.ai.Complete(ctx, text, images)
	switch {
	case errors.Is(err, fallback.ErrEmptyPrompt):
		answer = orangeEmpty
	case err != nil:
		class := providers.Classify(err)
		slog.Error("orange reply failed", "collaborator", "ai", "class", class, "error", err)
		answer = class.UserMessage()
	}
	_ = replyText(ctx, bot, msg, answer)
}

// hasOiPrefix matches a leading "oi" in any letter case.
func hasOiPrefix(text string) bool {
	return len(text) >= 2 && strings.EqualFold(text[:2], "oi")
}
