package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/promise4all/visit-management/internal/config"
)

// Cache stores integer counters for a limited time.
type Cache interface {
	GetInt(ctx context.Context, key string) (int, bool, error)
	SetInt(ctx context.Context, key string, v int, ttl time.Duration) error
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is empty")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// RedisCache is a Cache backed by go-redis.
type RedisCache struct {
	rdb    goredis.Cmdable
	prefix string
}

// NewRedisCache wraps rdb. Keys are namespaced with prefix.
func NewRedisCache(rdb goredis.Cmdable, prefix string) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: prefix}
}

func (c *RedisCache) GetInt(ctx context.Context, key string) (int, bool, error) {
	s, err := c.rdb.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading %s: %w", key, err)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return n, true, nil
}

func (c *RedisCache) SetInt(ctx context.Context, key string, v int, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, c.prefix+key, strconv.Itoa(v), ttl).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
