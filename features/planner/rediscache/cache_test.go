package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestra-ai/agentcore/agent"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	return &Cache{client: redis.NewClient(&redis.Options{Addr: s.Addr()}), ttl: defaultTTL}, s
}

func TestCacheSetThenGetRoundTrips(t *testing.T) {
	t.Parallel()

	c, s := newTestCache(t)
	defer s.Close()

	plan := agent.Plan{"find the capital", "find the population"}
	c.Set(context.Background(), "key-1", plan)

	got, ok := c.Get(context.Background(), "key-1")
	require.True(t, ok)
	assert.Equal(t, plan, got)
}

func TestCacheGetMissReturnsFalse(t *testing.T) {
	t.Parallel()

	c, s := newTestCache(t)
	defer s.Close()

	_, ok := c.Get(context.Background(), "never-set")
	assert.False(t, ok)
}

func TestCacheGetAfterExpiryReturnsFalse(t *testing.T) {
	t.Parallel()

	c, s := newTestCache(t)
	defer s.Close()
	c.ttl = time.Second

	c.Set(context.Background(), "key-1", agent.Plan{"a"})
	s.FastForward(2 * time.Second)

	_, ok := c.Get(context.Background(), "key-1")
	assert.False(t, ok)
}

func TestCacheGetCorruptValueReturnsFalse(t *testing.T) {
	t.Parallel()

	c, s := newTestCache(t)
	defer s.Close()

	require.NoError(t, s.Set(cacheKey("key-1"), "not json"))

	_, ok := c.Get(context.Background(), "key-1")
	assert.False(t, ok)
}

func TestNewDefaultsZeroTTL(t *testing.T) {
	t.Parallel()

	c := New("localhost:0", 0)
	defer c.Close()
	assert.Equal(t, defaultTTL, c.ttl)
}
