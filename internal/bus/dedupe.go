package bus

import (
	"sync"
	"time"
)

// DedupeCache remembers recently seen message keys so adapter redeliveries
// (reconnect replays, double-posted events) are dispatched only once.
type DedupeCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[string]time.Time
	now     func() time.Time
}

// NewDedupeCache creates a cache holding at most max keys for ttl each.
func NewDedupeCache(ttl time.Duration, max int) *DedupeCache {
	return &DedupeCache{
		ttl:     ttl,
		max:     max,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// IsDuplicate records key and reports whether it was already seen within the TTL.
// Empty keys are never duplicates.
func (d *DedupeCache) IsDuplicate(key string) bool {
	if key == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if seen, ok := d.entries[key]; ok && now.Sub(seen) < d.ttl {
		return true
	}

	if len(d.entries) >= d.max {
		for k, seen := range d.entries {
			if now.Sub(seen) >= d.ttl {
				delete(d.entries, k)
			}
		}
		for len(d.entries) >= d.max {
			for k := range d.entries {
				delete(d.entries, k)
				break
			}
		}
	}

	d.entries[key] = now
	return false
}

// Len returns the number of tracked keys.
func (d *DedupeCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
