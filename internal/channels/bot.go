package channels

import (
	"context"

	"github.com/mikann-OMO/bot/internal/bus"
)

// Replier is the outbound handle given to chain handlers for one connection.
// It satisfies router.Bot.
type Replier struct {
	mgr     *Manager
	channel string
	connID  string
	selfID  string
}

// Bot returns a Replier bound to one adapter connection.
func (m *Manager) Bot(channel, connID, selfID string) *Replier {
	return &Replier{mgr: m, channel: channel, connID: connID, selfID: selfID}
}

// BotFor returns the Replier for the connection that delivered msg.
func (m *Manager) BotFor(msg bus.InboundMessage) *Replier {
	return m.Bot(msg.Channel, msg.ConnID, msg.SelfID)
}

// SelfID is the bot account behind the connection.
func (r *Replier) SelfID() string { return r.selfID }

// Send replies in the chat msg came from.
func (r *Replier) Send(ctx context.Context, msg bus.InboundMessage, p bus.Payload) error {
	channel := msg.Channel
	if channel == "" {
		channel = r.channel
	}
	connID := msg.ConnID
	if connID == "" {
		connID = r.connID
	}
	return r.mgr.Send(ctx, bus.OutboundMessage{
		Channel: channel,
		ConnID:  connID,
		ChatID:  msg.ChatID,
		Scope:   msg.Scope,
		Payload: p,
	})
}

// SendPrivate sends p to userID as a private message.
func (r *Replier) SendPrivate(ctx context.Context, userID string, p bus.Payload) error {
	return r.mgr.Send(ctx, bus.OutboundMessage{
		Channel: r.channel,
		ConnID:  r.connID,
		ChatID:  userID,
		Scope:   bus.Private(),
		Payload: p,
	})
}
