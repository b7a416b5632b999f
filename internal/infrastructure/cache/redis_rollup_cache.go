package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reconcile/backend/internal/domain/ledger"
)

const defaultRollupTTL = 5 * time.Minute

// RedisRollupCache caches computed rollups in Redis, keyed by window, so all
// instances serve the same figures and invalidation reaches everyone.
type RedisRollupCache struct {
	client     *redis.Client
	keyPrefix  string
	defaultTTL time.Duration
}

// NewRedisRollupCache creates a new Redis-backed rollup cache
func NewRedisRollupCache(cfg RedisConfig, defaultTTL time.Duration) (*RedisRollupCache, error) {
	client, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewRedisRollupCacheWithClient(client, "", defaultTTL), nil
}

// NewRedisRollupCacheWithClient creates a cache with an existing Redis
// client. The cache takes ownership of the client.
func NewRedisRollupCacheWithClient(client *redis.Client, keyPrefix string, defaultTTL time.Duration) *RedisRollupCache {
	if keyPrefix == "" {
		keyPrefix = "ledger:rollup:"
	}
	if defaultTTL <= 0 {
		defaultTTL = defaultRollupTTL
	}
	return &RedisRollupCache{
		client:     client,
		keyPrefix:  keyPrefix,
		defaultTTL: defaultTTL,
	}
}

func (c *RedisRollupCache) key(window ledger.Window) string {
	return c.keyPrefix + window.Key()
}

// Get retrieves a cached rollup. Returns nil, nil on a miss; a corrupt entry
// is dropped and reported as a miss so it cannot wedge the window.
func (c *RedisRollupCache) Get(ctx context.Context, window ledger.Window) (*ledger.Rollup, error) {
	data, err := c.client.Get(ctx, c.key(window)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached rollup: %w", err)
	}

	var rollup ledger.Rollup
	if err := json.Unmarshal(data, &rollup); err != nil {
		_ = c.client.Del(ctx, c.key(window)).Err()
		return nil, nil
	}
	return &rollup, nil
}

// Set stores a rollup. A zero ttl uses the cache default.
func (c *RedisRollupCache) Set(ctx context.Context, window ledger.Window, rollup *ledger.Rollup, ttl time.Duration) error {
	data, err := json.Marshal(rollup)
	if err != nil {
		return fmt.Errorf("failed to marshal rollup: %w", err)
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, c.key(window), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache rollup: %w", err)
	}
	return nil
}

// InvalidateAll drops every cached rollup window
func (c *RedisRollupCache) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan rollup keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate rollups: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisRollupCache) Close() error {
	return c.client.Close()
}

// Ensure RedisRollupCache implements RollupCache
var _ ledger.RollupCache = (*RedisRollupCache)(nil)
