package channels

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedKeys caps the number of per-chat limiters kept in memory.
	maxTrackedKeys = 4096

	// limiterIdle is how long an unused limiter survives a prune.
	limiterIdle = 10 * time.Minute

	// DefaultSendInterval spaces consecutive sends to one chat.
	DefaultSendInterval = 500 * time.Millisecond

	// DefaultSendBurst is the number of sends allowed back to back.
	DefaultSendBurst = 3
)

type limiterEntry struct {
	lim      *rate.Limiter
	lastUsed time.Time
}

// SendLimiter paces outbound sends per chat key with a token bucket.
// Safe for concurrent use.
type SendLimiter struct {
	every rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*limiterEntry
	now     func() time.Time
}

// NewSendLimiter creates a limiter allowing one send per interval with the
// given burst. A non-positive interval disables pacing.
func NewSendLimiter(interval time.Duration, burst int) *SendLimiter {
	every := rate.Inf
	if interval > 0 {
		every = rate.Every(interval)
	}
	if burst <= 0 {
		burst = 1
	}
	return &SendLimiter{
		every:   every,
		burst:   burst,
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

// Wait blocks until a send to key is permitted or ctx is done.
func (r *SendLimiter) Wait(ctx context.Context, key string) error {
	return r.get(key).Wait(ctx)
}

// Allow reports whether a send to key may happen now, consuming a token if so.
func (r *SendLimiter) Allow(key string) bool {
	return r.get(key).Allow()
}

// Len returns the number of tracked keys.
func (r *SendLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *SendLimiter) get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if e, ok := r.entries[key]; ok {
		e.lastUsed = now
		return e.lim
	}

	// Prune idle entries when approaching the cap
	if len(r.entries) >= maxTrackedKeys {
		for k, e := range r.entries {
			if now.Sub(e.lastUsed) >= limiterIdle {
				delete(r.entries, k)
			}
		}
		// Hard eviction if still at cap
		for len(r.entries) >= maxTrackedKeys {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e := &limiterEntry{lim: rate.NewLimiter(r.every, r.burst), lastUsed: now}
	r.entries[key] = e
	return e.lim
}
