package handlers

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/router"
)

// OnlineNotifier tells the owners the bot is up, once per instance.
type OnlineNotifier struct {
	name   string
	owners Owners

	mu   sync.Mutex
	sent bool
}

// NewOnlineNotifier creates a notifier announcing name.
func NewOnlineNotifier(name string, owners Owners) *OnlineNotifier {
	return &OnlineNotifier{name: name, owners: owners}
}

// Notify sends "<name>已上线" to every owner the first time it succeeds for
// at least one owner. Later calls are no-ops.
func (n *OnlineNotifier) Notify(ctx context.Context, bot router.Bot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent {
		slog.Debug("online message already sent")
		return
	}

	text := n.name + "已上线"
	for _, id := range n.owners.IDs() {
		if err := bot.SendPrivate(ctx, id, bus.Text(text)); err != nil {
			slog.Error("send online message failed", "collaborator", "adapter", "user_id", id, "error", err)
			continue
		}
		slog.Info("online message sent", "user_id", id)
		n.sent = true
	}
}

// Sent reports whether the announcement went out.
func (n *OnlineNotifier) Sent() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent
}
