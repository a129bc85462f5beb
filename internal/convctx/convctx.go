// Package convctx provides the per-session conversational context store.
//
// Context is an ephemeral debugging/analytics side-channel (last intent,
// confidence, route), never authoritative state. Entries expire 30 minutes
// after the last update.
package convctx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL is reset on every update.
const TTL = 30 * time.Minute

// Store holds session context blobs in Redis.
type Store struct {
	client *redis.Client
}

// New creates a context store backed by the given Redis client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Get returns the context mapping for a session, or an empty map when the
// entry is absent or expired.
func (s *Store) Get(ctx context.Context, sessionID int64) (map[string]any, error) {
	data, err := s.client.Get(ctx, key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("context get session %d: %w", sessionID, err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("context decode session %d: %w", sessionID, err)
	}
	return out, nil
}

// Update shallow-merges updates over the stored mapping and writes the
// result back with the TTL reset. Last write wins per key.
func (s *Store) Update(ctx context.Context, sessionID int64, updates map[string]any) error {
	current, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	for k, v := range updates {
		current[k] = v
	}
	data, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("context encode session %d: %w", sessionID, err)
	}
	if err := s.client.Set(ctx, key(sessionID), data, TTL).Err(); err != nil {
		return fmt.Errorf("context set session %d: %w", sessionID, err)
	}
	return nil
}

// Clear removes the context entry for a session.
func (s *Store) Clear(ctx context.Context, sessionID int64) error {
	if err := s.client.Del(ctx, key(sessionID)).Err(); err != nil {
		return fmt.Errorf("context clear session %d: %w", sessionID, err)
	}
	return nil
}

func key(sessionID int64) string {
	return "context:" + strconv.FormatInt(sessionID, 10)
}
