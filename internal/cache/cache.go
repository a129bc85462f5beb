// Package cache provides a Redis-backed configuration cache with per-key TTL.
//
// The cache holds TTL-bound copies of admin-service data. It has no
// knowledge of the origin: on a miss the caller fetches from the origin and
// populates the cache itself.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "cache:"

// Cache TTL classes. User-scoped settings change often enough to warrant a
// medium TTL; the global intent-phrase table changes rarely.
const (
	MediumTTL = 10 * time.Minute
	LongTTL   = time.Hour
)

// Cache is a thin JSON-serializing wrapper over Redis.
type Cache struct {
	client *redis.Client
}

// New creates a configuration cache backed by the given Redis client.
func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Get loads the cached value for key into dest. It returns false with a nil
// error when the key is absent or expired.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %q: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache decode %q: %w", key, err)
	}
	return true, nil
}

// Set stores value under key with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %q: %w", key, err)
	}
	if err := c.client.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}
