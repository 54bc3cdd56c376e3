// Package router runs inbound events through a priority-ordered handler chain.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/metrics"
)

var tracer = otel.Tracer("github.com/mikann-OMO/bot/internal/router")

// GatePlugin is the plugin whose enablement gates the whole chain.
const GatePlugin = "keyword"

// Bot is the adapter surface handlers reply through.
type Bot interface {
	SelfID() string
	// Send replies in the chat msg came from.
	Send(ctx context.Context, msg bus.InboundMessage, p bus.Payload) error
	// SendPrivate sends p to userID directly.
	SendPrivate(ctx context.Context, userID string, p bus.Payload) error
}

// Handler processes one event and reports whether it handled it.
type Handler interface {
	Handle(ctx context.Context, bot Bot, msg bus.InboundMessage) (bool, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, bot Bot, msg bus.InboundMessage) (bool, error)

func (f HandlerFunc) Handle(ctx context.Context, bot Bot, msg bus.InboundMessage) (bool, error) {
	return f(ctx, bot, msg)
}

// PluginGate reports plugin enablement.
type PluginGate interface {
	IsEnabled(name string) bool
}

type registration struct {
	name     string
	priority int
	handler  Handler
}

// Router holds the handler chain. Lower priority values run first; equal
// priorities keep registration order.
//
// Commands registered with RegisterCommand form a separate chain that runs
// before the plugin gate, so administration keeps working while the gated
// chain is switched off.
type Router struct {
	mu       sync.RWMutex
	commands []registration
	handlers []registration
	plugins  PluginGate
}

// New creates a router. A nil gate enables everything.
func New(plugins PluginGate) *Router {
	return &Router{plugins: plugins}
}

// RegisterHandler adds h to the chain. Safe to call while dispatching.
func (r *Router) RegisterHandler(name string, h Handler, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = insert(r.handlers, registration{name: name, priority: priority, handler: h})
}

// RegisterCommand adds h to the command chain, which runs ahead of the
// plugin gate and the handler chain.
func (r *Router) RegisterCommand(name string, h Handler, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = insert(r.commands, registration{name: name, priority: priority, handler: h})
}

// insert returns a sorted copy of chain with reg added. Readers holding the
// old slice are unaffected.
func insert(chain []registration, reg registration) []registration {
	next := make([]registration, len(chain), len(chain)+1)
	copy(next, chain)
	next = append(next, reg)
	sort.SliceStable(next, func(i, j int) bool { return next[i].priority < next[j].priority })
	return next
}

// Handlers returns the registered names in dispatch order, commands first.
func (r *Router) Handlers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.commands)+len(r.handlers))
	for _, h := range r.commands {
		names = append(names, h.name)
	}
	for _, h := range r.handlers {
		names = append(names, h.name)
	}
	return names
}

// Dispatch runs msg through the command chain, then, unless the gate plugin
// is disabled, through the handler chain. It reports whether a handler
// handled it. Handler errors and panics are logged and count as not handled.
func (r *Router) Dispatch(ctx context.Context, bot Bot, msg bus.InboundMessage) bool {
	ctx, span := tracer.Start(ctx, "router.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("bot.channel", msg.Channel),
		attribute.String("bot.scope", string(msg.Scope.Kind)),
		attribute.String("router.request_id", uuid.NewString()),
	)

	r.mu.RLock()
	commands, chain := r.commands, r.handlers
	r.mu.RUnlock()

	if r.runChain(ctx, span, commands, bot, msg) {
		return true
	}

	if r.plugins != nil && !r.plugins.IsEnabled(GatePlugin) {
		metrics.DispatchTotal.WithLabelValues(msg.Channel, "gated").Inc()
		span.SetAttributes(attribute.String("router.outcome", "gated"))
		return false
	}

	if r.runChain(ctx, span, chain, bot, msg) {
		return true
	}
	metrics.DispatchTotal.WithLabelValues(msg.Channel, "unhandled").Inc()
	span.SetAttributes(attribute.String("router.outcome", "unhandled"))
	return false
}

func (r *Router) runChain(ctx context.Context, span trace.Span, chain []registration, bot Bot, msg bus.InboundMessage) bool {
	for _, reg := range chain {
		if r.invoke(ctx, reg, bot, msg) {
			metrics.DispatchTotal.WithLabelValues(msg.Channel, "handled").Inc()
			span.SetAttributes(
				attribute.String("router.outcome", "handled"),
				attribute.String("router.handler", reg.name),
			)
			return true
		}
	}
	return false
}

func (r *Router) invoke(ctx context.Context, reg registration, bot Bot, msg bus.InboundMessage) (handled bool) {
	ctx, span := tracer.Start(ctx, "router.handler")
	defer span.End()
	span.SetAttributes(
		attribute.String("router.handler", reg.name),
		attribute.Int("router.priority", reg.priority),
	)

	start := time.Now()
	defer func() {
		metrics.HandlerDuration.WithLabelValues(reg.name).Observe(time.Since(start).Seconds())
	}()

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic: %v", rec)
			r.fault(reg, msg, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "handler panic")
			slog.Debug("handler panic stack", "handler", reg.name, "stack", string(debug.Stack()))
			handled = false
		}
	}()

	ok, err := reg.handler.Handle(ctx, bot, msg)
	if err != nil {
		r.fault(reg, msg, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false
	}
	return ok
}

func (r *Router) fault(reg registration, msg bus.InboundMessage, err error) {
	metrics.HandlerFaults.WithLabelValues(reg.name).Inc()
	slog.Error("handler fault",
		"handler", reg.name,
		"priority", reg.priority,
		"channel", msg.Channel,
		"chat_id", msg.ChatID,
		"error", err,
	)
}
