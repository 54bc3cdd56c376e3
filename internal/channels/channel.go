// Package channels provides the adapter layer between chat platforms and the
// dispatcher. Adapters (OneBot, Telegram, Discord) publish inbound messages to
// the bus and deliver outbound payloads; the Manager owns their lifecycle and
// the per-chat send limiter.
package channels

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/metrics"
)

// Channel defines the interface that all channel implementations must satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g., "onebot", "telegram", "discord").
	Name() string

	// Start begins listening for messages. Should be non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message to the channel.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// IsRunning returns whether the channel is actively processing messages.
	IsRunning() bool

	// IsAllowed checks if a sender is permitted by the channel's allowlist.
	IsAllowed(senderID string) bool
}

// ConnectEvent describes an adapter connection that became usable.
type ConnectEvent struct {
	Channel string
	ConnID  string
	SelfID  string
}

// ConnectFunc is called each time an adapter connection comes up.
type ConnectFunc func(ctx context.Context, ev ConnectEvent)

// connectAware is implemented by channels embedding BaseChannel.
type connectAware interface {
	SetOnConnect(fn ConnectFunc)
}

// BaseChannel provides shared functionality for all channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name      string
	bus       bus.MessageRouter
	running   atomic.Bool
	allowList []string

	mu        sync.RWMutex
	onConnect ConnectFunc
}

// NewBaseChannel creates a new BaseChannel with the given parameters.
func NewBaseChannel(name string, msgBus bus.MessageRouter, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       msgBus,
		allowList: allowList,
	}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running.Store(running) }

// Bus returns the message bus reference.
func (c *BaseChannel) Bus() bus.MessageRouter { return c.bus }

// HasAllowList returns true if an allowlist is configured (non-empty).
func (c *BaseChannel) HasAllowList() bool { return len(c.allowList) > 0 }

// SetOnConnect installs the connection callback. The Manager sets it on registration.
func (c *BaseChannel) SetOnConnect(fn ConnectFunc) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// Connected records a live connection and fires the connect callback.
func (c *BaseChannel) Connected(ctx context.Context, connID, selfID string) {
	metrics.AdapterConnections.WithLabelValues(c.name).Inc()

	c.mu.RLock()
	fn := c.onConnect
	c.mu.RUnlock()
	if fn != nil {
		fn(ctx, ConnectEvent{Channel: c.name, ConnID: connID, SelfID: selfID})
	}
}

// Disconnected records a dropped connection.
func (c *BaseChannel) Disconnected() {
	metrics.AdapterConnections.WithLabelValues(c.name).Dec()
}

// IsAllowed checks if a sender is permitted by the allowlist.
// Supports compound senderID format: "123456|username".
// Empty allowlist means all senders are allowed.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	idPart, userPart, _ := strings.Cut(senderID, "|")

	for _, allowed := range c.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		allowedID, allowedUser, _ := strings.Cut(trimmed, "|")

		if senderID == trimmed ||
			idPart == trimmed ||
			idPart == allowedID ||
			(allowedUser != "" && senderID == allowedUser) ||
			(userPart != "" && (userPart == trimmed || userPart == allowedUser)) {
			return true
		}
	}

	return false
}

// HandleMessage stamps the channel name on msg and publishes it to the bus.
// This is the standard way for channels to forward received messages.
// Messages from senders outside the allowlist are dropped.
func (c *BaseChannel) HandleMessage(msg bus.InboundMessage) {
	if !c.IsAllowed(msg.SenderID) {
		return
	}
	msg.Channel = c.name
	if msg.ConnID == "" {
		msg.ConnID = c.name
	}
	c.bus.PublishInbound(msg)
}

// Truncate shortens a string to maxLen runes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
