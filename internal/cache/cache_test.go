package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client), mr
}

func TestCacheMissReturnsFalse(t *testing.T) {
	c, _ := setupCache(t)

	var dest map[string]any
	hit, err := c.Get(context.Background(), "ai-settings:1", &dest)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheSetGetRoundTrip(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	type settings struct {
		ConfidenceThreshold int `json:"confidence_threshold"`
	}
	require.NoError(t, c.Set(ctx, "ai-settings:1", settings{ConfidenceThreshold: 75}, MediumTTL))

	var got settings
	hit, err := c.Get(ctx, "ai-settings:1", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 75, got.ConfidenceThreshold)
}

func TestCacheEntryExpires(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "intent-phrases", map[string][]string{"billing": {"invoice"}}, LongTTL))

	mr.FastForward(LongTTL + time.Second)

	var dest map[string][]string
	hit, err := c.Get(ctx, "intent-phrases", &dest)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheStoresNestedValues(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	phrases := map[string][]string{
		"billing_issue":   {"billing problem", "payment failed"},
		"technical_issue": {"app not working"},
	}
	require.NoError(t, c.Set(ctx, "intent-phrases", phrases, LongTTL))

	var got map[string][]string
	hit, err := c.Get(ctx, "intent-phrases", &got)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, phrases, got)
}
