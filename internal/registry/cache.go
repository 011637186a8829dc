package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is an ExistenceCache backed by Redis keys with a TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a cache storing keys as prefix+channelID.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Get reports whether channelID is cached as existing
func (c *RedisCache) Get(ctx context.Context, channelID string) (bool, error) {
	err := c.client.Get(ctx, c.prefix+channelID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get error: %w", err)
	}
	return true, nil
}

// Set marks channelID as existing for the configured TTL
func (c *RedisCache) Set(ctx context.Context, channelID string) error {
	if err := c.client.Set(ctx, c.prefix+channelID, 1, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

// Delete evicts channelID
func (c *RedisCache) Delete(ctx context.Context, channelID string) error {
	if err := c.client.Del(ctx, c.prefix+channelID).Err(); err != nil {
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

// Ping checks the Redis connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
