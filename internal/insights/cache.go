package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const reportKey = "omnia:insights:global"

// RedisCache stores the latest report under a single key with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a report cache on client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached report, or nil on a miss.
func (c *RedisCache) Get(ctx context.Context) (*Report, error) {
	raw, err := c.client.Get(ctx, reportKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached report: %w", err)
	}

	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("failed to decode cached report: %w", err)
	}
	return &r, nil
}

// Set stores r until the TTL expires.
func (c *RedisCache) Set(ctx context.Context, r *Report) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := c.client.Set(ctx, reportKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache report: %w", err)
	}
	return nil
}

// Invalidate drops the cached report.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, reportKey).Err()
}
