package keyword

import (
	"context"
	"sync"
	"time"

	"github.com/mikann-OMO/bot/internal/metrics"
)

// DefaultCooldown is the window between two implicit triggers of one key.
const DefaultCooldown = 180000 * time.Millisecond

// Gate decides whether a matched key may fire now.
//
// TryFire with bypass set always records now and returns true. Otherwise it
// returns false without recording when the key fired less than Window ago,
// and records now and returns true when it did not. The check and the
// record happen atomically per key.
type Gate interface {
	TryFire(ctx context.Context, key string, bypass bool, now time.Time) bool
	Window() time.Duration
	SetWindow(d time.Duration)
}

// MemoryGate keeps last-fire times in process memory. Entries are never
// evicted; the key space is bounded by the admin-managed keyword tables.
type MemoryGate struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
}

var _ Gate = (*MemoryGate)(nil)

// NewMemoryGate creates an in-process gate. A non-positive window disables suppression.
func NewMemoryGate(window time.Duration) *MemoryGate {
	return &MemoryGate{window: window, last: make(map[string]time.Time)}
}

func (g *MemoryGate) TryFire(_ context.Context, key string, bypass bool, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !bypass {
		if prev, ok := g.last[key]; ok && now.Sub(prev) < g.window {
			metrics.CooldownSuppressed.Inc()
			return false
		}
	}
	g.last[key] = now
	return true
}

func (g *MemoryGate) Window() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.window
}

func (g *MemoryGate) SetWindow(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.window = d
}
