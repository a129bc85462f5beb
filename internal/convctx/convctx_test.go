package convctx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client), mr
}

func TestGetAbsentReturnsEmptyMap(t *testing.T) {
	s, _ := setupStore(t)

	got, err := s.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestUpdateMergesOverExisting(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, 1, map[string]any{
		"last_intent": "greeting",
		"confidence":  0.9,
	}))
	require.NoError(t, s.Update(ctx, 1, map[string]any{
		"last_intent": "billing_issue",
		"route":       "NORMAL",
	}))

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	// Last write wins per key; untouched keys survive the merge.
	assert.Equal(t, "billing_issue", got["last_intent"])
	assert.Equal(t, 0.9, got["confidence"])
	assert.Equal(t, "NORMAL", got["route"])
}

func TestUpdateResetsTTL(t *testing.T) {
	s, mr := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, 7, map[string]any{"route": "CLARIFY"}))

	mr.FastForward(20 * time.Minute)
	require.NoError(t, s.Update(ctx, 7, map[string]any{"confidence": 0.5}))

	// The first write is 40 minutes old but the entry was refreshed.
	mr.FastForward(20 * time.Minute)
	got, err := s.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "CLARIFY", got["route"])
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	s, mr := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, 3, map[string]any{"route": "NORMAL"}))
	mr.FastForward(TTL + time.Minute)

	got, err := s.Get(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClearRemovesEntry(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, 5, map[string]any{"route": "NORMAL"}))
	require.NoError(t, s.Clear(ctx, 5))

	got, err := s.Get(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSessionsAreIsolated(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, 1, map[string]any{"route": "NORMAL"}))
	require.NoError(t, s.Update(ctx, 2, map[string]any{"route": "FALLBACK"}))

	first, err := s.Get(ctx, 1)
	require.NoError(t, err)
	second, err := s.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "NORMAL", first["route"])
	assert.Equal(t, "FALLBACK", second["route"])
}
