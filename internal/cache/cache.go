// Package cache wraps Redis for the catalog cache and usage counters.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shortforge/trending-pipeline/internal/models"
)

// Cache is the caching interface. Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	GetInt64(ctx context.Context, key string) (int64, error)
	IncrByWithExpiry(ctx context.Context, key string, n int64, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// GetInt64 reads a counter. A missing key reads as zero.
func (c *RedisCache) GetInt64(ctx context.Context, key string) (int64, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s: %w", key, err)
	}
	return n, nil
}

// IncrByWithExpiry adds n to a counter and refreshes its expiry in one transaction.
func (c *RedisCache) IncrByWithExpiry(ctx context.Context, key string, n int64, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, n)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// CatalogCache stores scored catalog batches as JSON under a Cache.
type CatalogCache struct {
	cache Cache
}

// NewCatalogCache creates a CatalogCache backed by c.
func NewCatalogCache(c Cache) *CatalogCache {
	return &CatalogCache{cache: c}
}

// GetCatalog returns a cached batch, or found=false on a miss.
func (c *CatalogCache) GetCatalog(ctx context.Context, key string) ([]*models.TrendingVideo, bool, error) {
	raw, found, err := c.cache.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	var videos []*models.TrendingVideo
	if err := json.Unmarshal(raw, &videos); err != nil {
		return nil, false, fmt.Errorf("decode cached catalog %s: %w", key, err)
	}
	return videos, true, nil
}

// SetCatalog caches a batch for ttl.
func (c *CatalogCache) SetCatalog(ctx context.Context, key string, videos []*models.TrendingVideo, ttl time.Duration) error {
	raw, err := json.Marshal(videos)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	return c.cache.Set(ctx, key, raw, ttl)
}
