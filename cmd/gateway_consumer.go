package cmd

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/channels"
	"github.com/mikann-OMO/bot/internal/router"
)

const (
	connQueueSize   = 64
	connIdleTimeout = 5 * time.Minute
)

// dispatchFunc handles one inbound message to completion.
type dispatchFunc func(ctx context.Context, msg bus.InboundMessage)

// consumeInboundMessages drains the bus until ctx is done. Duplicate
// deliveries are dropped; the rest are dispatched in arrival order per
// adapter connection, with connections running concurrently.
func consumeInboundMessages(ctx context.Context, msgBus bus.MessageRouter, rt *router.Router, mgr *channels.Manager) {
	slog.Info("inbound message consumer started")

	// Platforms redeliver on reconnect; TTL=20min, max=5000 entries.
	dedupe := bus.NewDedupeCache(20*time.Minute, 5000)

	workers := newConnWorkers(ctx, func(ctx context.Context, msg bus.InboundMessage) {
		rt.Dispatch(ctx, mgr.BotFor(msg), msg)
	})
	defer workers.wait()

	for {
		msg, ok := msgBus.ConsumeInbound(ctx)
		if !ok {
			slog.Info("inbound message consumer stopped")
			return
		}

		if msg.MessageID != "" {
			key := msg.Channel + ":" + msg.ConnID + ":" + msg.MessageID
			if dedupe.IsDuplicate(key) {
				slog.Debug("inbound: duplicate message dropped", "key", key)
				continue
			}
		}

		workers.submit(msg)
	}
}

// connWorkers runs one goroutine per connection. Workers are started on the
// first message of a connection and exit after connIdleTimeout without work.
type connWorkers struct {
	ctx      context.Context
	dispatch dispatchFunc
	idle     time.Duration

	mu     sync.Mutex
	queues map[string]chan bus.InboundMessage
	wg     sync.WaitGroup
}

func newConnWorkers(ctx context.Context, dispatch dispatchFunc) *connWorkers {
	return &connWorkers{
		ctx:      ctx,
		dispatch: dispatch,
		idle:     connIdleTimeout,
		queues:   make(map[string]chan bus.InboundMessage),
	}
}

func connKey(msg bus.InboundMessage) string {
	return msg.Channel + ":" + msg.ConnID
}

// submit queues msg behind earlier messages of the same connection. It blocks
// only when that connection's queue is full.
func (w *connWorkers) submit(msg bus.InboundMessage) {
	key := connKey(msg)

	w.mu.Lock()
	q, ok := w.queues[key]
	if !ok {
		q = make(chan bus.InboundMessage, connQueueSize)
		w.queues[key] = q
		w.wg.Add(1)
		go w.run(key, q)
	}
	select {
	case q <- msg:
		w.mu.Unlock()
		return
	default:
	}
	w.mu.Unlock()

	// The worker never exits while its queue is non-empty, so q stays live.
	select {
	case q <- msg:
	case <-w.ctx.Done():
	}
}

func (w *connWorkers) run(key string, q chan bus.InboundMessage) {
	defer w.wg.Done()

	timer := time.NewTimer(w.idle)
	defer timer.Stop()

	for {
		select {
		case msg := <-q:
			w.dispatch(w.ctx, msg)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.idle)

		case <-timer.C:
			w.mu.Lock()
			if len(q) > 0 {
				w.mu.Unlock()
				timer.Reset(w.idle)
				continue
			}
			delete(w.queues, key)
			w.mu.Unlock()
			slog.Debug("inbound: connection worker idle, exiting", "conn", key)
			return

		case <-w.ctx.Done():
			return
		}
	}
}

// wait blocks until every worker has returned.
func (w *connWorkers) wait() {
	w.wg.Wait()
}

// active reports the number of running workers.
func (w *connWorkers) active() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queues)
}
