// Package breaker implements a Redis-backed circuit breaker shared across
// all pipeline instances.
//
// The breaker is advisory backpressure, not strict exclusion: callers own
// the decision of what fallback behavior to substitute when Allow returns
// false. There is no half-open probing state: once the cooldown elapses the
// breaker is fully closed again and failures re-accumulate from zero.
package breaker

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Defaults match the production policy: open after 5 consecutive failures,
// stay open for 30 seconds.
const (
	DefaultThreshold = 5
	DefaultCooldown  = 30 * time.Second
)

// Breaker tracks per-dependency failure counts in a shared Redis store.
type Breaker struct {
	client    *redis.Client
	threshold int64
	cooldown  time.Duration
}

// New creates a breaker. Non-positive threshold or cooldown values fall
// back to the defaults.
func New(client *redis.Client, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Breaker{client: client, threshold: int64(threshold), cooldown: cooldown}
}

// Allow reports whether a call to the dependency should be attempted.
// A Redis error fails open: the store being unreachable must not take the
// dependency offline with it.
func (b *Breaker) Allow(ctx context.Context, dependency string) bool {
	open, err := b.client.Exists(ctx, openKey(dependency)).Result()
	if err != nil {
		slog.Warn("Breaker state check failed, allowing request", "dependency", dependency, "error", err)
		return true
	}
	return open == 0
}

// RecordFailure increments the failure counter for the dependency. When the
// counter reaches the threshold, the breaker opens for the cooldown window.
// The counter key expires with the same TTL so stale counts do not linger.
func (b *Breaker) RecordFailure(ctx context.Context, dependency string) {
	failures, err := b.client.Incr(ctx, failureKey(dependency)).Result()
	if err != nil {
		slog.Warn("Breaker failure record failed", "dependency", dependency, "error", err)
		return
	}
	if err := b.client.Expire(ctx, failureKey(dependency), b.cooldown).Err(); err != nil {
		slog.Warn("Breaker counter expire failed", "dependency", dependency, "error", err)
	}
	if failures >= b.threshold {
		if err := b.client.Set(ctx, openKey(dependency), "1", b.cooldown).Err(); err != nil {
			slog.Warn("Breaker open marker set failed", "dependency", dependency, "error", err)
			return
		}
		slog.Warn("Circuit breaker opened", "dependency", dependency, "failures", failures, "cooldown", b.cooldown)
	}
}

// RecordSuccess clears both the failure counter and the open marker.
func (b *Breaker) RecordSuccess(ctx context.Context, dependency string) {
	if err := b.client.Del(ctx, failureKey(dependency), openKey(dependency)).Err(); err != nil {
		slog.Warn("Breaker success record failed", "dependency", dependency, "error", err)
	}
}

func failureKey(dependency string) string {
	return "breaker:failures:" + dependency
}

func openKey(dependency string) string {
	return "breaker:open:" + dependency
}
