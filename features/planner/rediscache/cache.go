// Package rediscache implements agent.PlanCache on top of Redis, an optional
// shared plan cache. A cache miss, a decode failure, or a Redis error are
// all treated identically by Get: "no cached plan", so callers always fall
// through to a live model call rather than failing the run on a cache-layer
// problem.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orchestra-ai/agentcore/agent"
)

const defaultTTL = 24 * time.Hour

// Cache is a Redis-backed agent.PlanCache.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New constructs a Cache connected to addr (host:port). ttl controls how
// long a cached plan remains valid; zero uses a 24h default.
func New(addr string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

// Get implements agent.PlanCache.
func (c *Cache) Get(ctx context.Context, key string) (agent.Plan, bool) {
	raw, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	var plan agent.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, false
	}
	return plan, true
}

// Set implements agent.PlanCache. Errors are swallowed: a failed write never
// fails the run that produced the plan.
func (c *Cache) Set(ctx context.Context, key string, plan agent.Plan) {
	raw, err := json.Marshal(plan)
	if err != nil {
		return
	}
	c.client.Set(ctx, cacheKey(key), raw, c.ttl)
}

// Close releases the underlying Redis connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

func cacheKey(key string) string {
	return "agentcore:plan:" + key
}
