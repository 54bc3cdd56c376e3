package handlers

import (
	"context"
	"regexp"
	"strings"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/fallback"
	"github.com/mikann-OMO/bot/internal/keyword"
	"github.com/mikann-OMO/bot/internal/router"
)

const (
	whoamiKey      = "whoami"
	whoamiOwner    = "你是吾选定的契约之主(ᗜᴗᗜ)"
	whoamiStranger = "杂鱼而已，不需要知道太多。"
)

var whoamiPattern = regexp.MustCompile(`(?i)我是谁|你知道我是谁吗|我是什么身份`)

// Keyword replies to stored keywords and hands unmatched direct mentions to
// the AI fallback.
type Keyword struct {
	svc      *keyword.Service
	matcher  *keyword.Matcher
	fallback *fallback.Dispatcher
	owners   Owners
}

// NewKeyword creates the keyword handler.
func NewKeyword(svc *keyword.Service, matcher *keyword.Matcher, fb *fallback.Dispatcher, owners Owners) *Keyword {
	return &Keyword{svc: svc, matcher: matcher, fallback: fb, owners: owners}
}

func (h *Keyword) Handle(ctx context.Context, bot router.Bot, msg bus.InboundMessage) (bool, error) {
	text := msg.PlainText()
	if isForeignCommand(text) {
		return false, nil
	}
	if msg.Scope.IsGroup() && !h.svc.Store().IsGroupEnabled(msg.Scope.GroupID) {
		return false, nil
	}
	mode := keyword.AddressModeOf(msg)

	if whoamiPattern.MatchString(text) {
		if !h.matcher.TryFire(ctx, whoamiKey, mode) {
			return true, nil
		}
		answer := whoamiStranger
		if h.owners.Contains(msg.SenderID) {
			answer = whoamiOwner
		}
		_ = replyText(ctx, bot, msg, answer)
		return true, nil
	}

	if m, ok := h.matcher.Match(ctx, text, mode); ok {
		_ = reply(ctx, bot, msg, m.Payload)
		return true, nil
	}

	if mode != keyword.DirectMention {
		return false, nil
	}
	_ = replyText(ctx, bot, msg, Thinking)
	answer := h.fallback.Respond(ctx, fallback.PromptText(msg), fallback.ExtractImageURLs(msg))
	_ = replyText(ctx, bot, msg, answer)
	return true, nil
}

// isForeignCommand reports whether text is a #-command owned by another
// handler. Keyword administration commands stay matchable.
func isForeignCommand(text string) bool {
	return strings.HasPrefix(text, "#") &&
		!strings.HasPrefix(text, "#kw") &&
		!strings.HasPrefix(text, "#关键词添加")
}
