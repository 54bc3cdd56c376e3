// Package handlers holds the handlers registered on the router: admin and
// system commands, keyword replies and the orange AI chat.
package handlers

import (
	"context"
	"log/slog"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/router"
)

// Chain priorities. Commands and System go on the router's command chain.
const (
	PriorityCommands = 10
	PrioritySystem   = 20
	PriorityKeyword  = 50
	PriorityOrange   = 60
)

// Thinking is sent before a model reply.
const Thinking = "正在思考中..."

// Owners is the set of user IDs allowed to run admin commands.
type Owners map[string]bool

// NewOwners builds an owner set from a list of IDs.
func NewOwners(ids []string) Owners {
	o := make(Owners, len(ids))
	for _, id := range ids {
		if id != "" {
			o[id] = true
		}
	}
	return o
}

// Contains reports whether id is an owner.
func (o Owners) Contains(id string) bool { return o[id] }

// IDs returns the owner IDs in no particular order.
func (o Owners) IDs() []string {
	ids := make([]string, 0, len(o))
	for id := range o {
		ids = append(ids, id)
	}
	return ids
}

// reply sends p back to msg's chat and logs adapter failures.
func reply(ctx context.Context, bot router.Bot, msg bus.InboundMessage, p bus.Payload) error {
	if err := bot.Send(ctx, msg, p); err != nil {
		slog.Error("send reply failed",
			"collaborator", "adapter",
			"channel", msg.Channel,
			"chat_id", msg.ChatID,
			"payload", p.String(),
			"error", err,
		)
		return err
	}
	return nil
}

func replyText(ctx context.Context, bot router.Bot, msg bus.InboundMessage, text string) error {
	return reply(ctx, bot, msg, bus.Text(text))
}
