package keyword

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mikann-OMO/bot/internal/metrics"
)

// RedisGate shares cooldown state between bot processes. A key exists in
// Redis exactly while it is cooling down: SET NX with a TTL of one window
// both tests and records in a single round trip.
//
// Redis errors fail open: the key fires and the error is logged.
type RedisGate struct {
	client redis.UniversalClient
	prefix string
	window atomic.Int64 // nanoseconds
}

var _ Gate = (*RedisGate)(nil)

// NewRedisGate creates a gate storing keys under prefix.
func NewRedisGate(client redis.UniversalClient, prefix string, window time.Duration) *RedisGate {
	g := &RedisGate{client: client, prefix: prefix}
	g.window.Store(int64(window))
	return g
}

func (g *RedisGate) TryFire(ctx context.Context, key string, bypass bool, now time.Time) bool {
	window := g.Window()
	if window <= 0 {
		return true
	}
	k := g.prefix + key
	v := strconv.FormatInt(now.UnixMilli(), 10)

	if bypass {
		if err := g.client.Set(ctx, k, v, window).Err(); err != nil {
			metrics.CooldownBackendErrors.Inc()
			slog.Warn("cooldown: redis set failed", "key", key, "error", err)
		}
		return true
	}

	ok, err := g.client.SetNX(ctx, k, v, window).Result()
	if err != nil {
		metrics.CooldownBackendErrors.Inc()
		slog.Warn("cooldown: redis setnx failed, allowing", "key", key, "error", err)
		return true
	}
	if !ok {
		metrics.CooldownSuppressed.Inc()
	}
	return ok
}

func (g *RedisGate) Window() time.Duration { return time.Duration(g.window.Load()) }

func (g *RedisGate) SetWindow(d time.Duration) { g.window.Store(int64(d)) }
