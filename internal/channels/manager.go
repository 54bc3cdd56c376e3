package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/metrics"
)

// ErrUnknownChannel is returned when an outbound message names no registered channel.
var ErrUnknownChannel = errors.New("unknown channel")

// Manager manages all registered channels, handling their lifecycle
// and routing outbound messages to the correct channel.
type Manager struct {
	channels     map[string]Channel
	bus          bus.MessageRouter
	limiter      *SendLimiter
	listeners    []ConnectFunc
	dispatchTask *asyncTask
	mu           sync.RWMutex
}

type asyncTask struct {
	cancel context.CancelFunc
}

// NewManager creates a new channel manager.
// Channels are registered externally via RegisterChannel.
// A nil limiter disables outbound pacing.
func NewManager(msgBus bus.MessageRouter, limiter *SendLimiter) *Manager {
	if limiter == nil {
		limiter = NewSendLimiter(0, 1)
	}
	return &Manager{
		channels: make(map[string]Channel),
		bus:      msgBus,
		limiter:  limiter,
	}
}

// StartAll starts all registered channels and the outbound dispatch loop.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dispatchCtx, cancel := context.WithCancel(ctx)
	m.dispatchTask = &asyncTask{cancel: cancel}
	go m.dispatchOutbound(dispatchCtx)

	if len(m.channels) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}

	slog.Info("starting all channels")

	var errs []error
	for name, channel := range m.channels {
		slog.Info("starting channel", "channel", name)
		if err := channel.Start(ctx); err != nil {
			slog.Error("failed to start channel", "channel", name, "error", err)
			errs = append(errs, fmt.Errorf("start %s: %w", name, err))
		}
	}

	// One failing adapter must not take the others down.
	if len(errs) == len(m.channels) {
		return errors.Join(errs...)
	}

	slog.Info("all channels started")
	return nil
}

// StopAll gracefully stops all channels and the outbound dispatch loop.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slog.Info("stopping all channels")

	if m.dispatchTask != nil {
		m.dispatchTask.cancel()
		m.dispatchTask = nil
	}

	for name, channel := range m.channels {
		slog.Info("stopping channel", "channel", name)
		if err := channel.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
		}
	}

	slog.Info("all channels stopped")
	return nil
}

// dispatchOutbound consumes queued outbound messages from the bus and
// delivers them through Send.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	slog.Info("outbound dispatcher started")

	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			slog.Info("outbound dispatcher stopped")
			return
		}
		if err := m.Send(ctx, msg); err != nil {
			slog.Error("error sending message to channel",
				"channel", msg.Channel,
				"chat_id", msg.ChatID,
				"error", err,
			)
		}
	}
}

// Send delivers msg synchronously, waiting for the chat's send slot first.
func (m *Manager) Send(ctx context.Context, msg bus.OutboundMessage) error {
	channel, ok := m.GetChannel(msg.Channel)
	if !ok {
		metrics.SendTotal.WithLabelValues(msg.Channel, "unknown_channel").Inc()
		return fmt.Errorf("%w: %s", ErrUnknownChannel, msg.Channel)
	}

	if err := m.limiter.Wait(ctx, msg.Channel+":"+msg.ChatID); err != nil {
		metrics.SendTotal.WithLabelValues(msg.Channel, "throttled").Inc()
		return fmt.Errorf("wait send slot: %w", err)
	}

	if err := channel.Send(ctx, msg); err != nil {
		metrics.SendTotal.WithLabelValues(msg.Channel, "error").Inc()
		return err
	}
	metrics.SendTotal.WithLabelValues(msg.Channel, "ok").Inc()
	return nil
}

// Enqueue queues msg for asynchronous delivery by the dispatch loop.
func (m *Manager) Enqueue(msg bus.OutboundMessage) {
	m.bus.PublishOutbound(msg)
}

// OnConnect registers fn to run whenever any channel reports a new connection.
func (m *Manager) OnConnect(fn ConnectFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) fireConnect(ctx context.Context, ev ConnectEvent) {
	m.mu.RLock()
	listeners := append([]ConnectFunc(nil), m.listeners...)
	m.mu.RUnlock()

	slog.Info("channel connected", "channel", ev.Channel, "conn_id", ev.ConnID, "self_id", ev.SelfID)
	for _, fn := range listeners {
		fn(ctx, ev)
	}
}

// GetChannel returns a channel by name.
func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[name]
	return channel, ok
}

// ChannelStatus is the health summary of one channel.
type ChannelStatus struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

// GetStatus returns the running status of all channels, sorted by name.
func (m *Manager) GetStatus() []ChannelStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ChannelStatus, 0, len(m.channels))
	for name, channel := range m.channels {
		out = append(out, ChannelStatus{Name: name, Running: channel.IsRunning()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetEnabledChannels returns the names of all registered channels, sorted.
func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterChannel adds a channel to the manager.
func (m *Manager) RegisterChannel(name string, channel Channel) {
	if ca, ok := channel.(connectAware); ok {
		ca.SetOnConnect(m.fireConnect)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}

// UnregisterChannel removes a channel from the manager.
func (m *Manager) UnregisterChannel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, name)
}
