package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reflexapp/reflex-backend/internal/config"
)

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

// KeyForLikeCount generates the key for the cached incoming-like count.
func (c *RedisCache) KeyForLikeCount(userID string) string {
	return fmt.Sprintf("likes:count:%s", userID)
}

func (c *RedisCache) UpdateLikeCount(ctx context.Context, userID string, count int64) error {
	return c.Client.Set(ctx, c.KeyForLikeCount(userID), count, time.Hour).Err()
}

func (c *RedisCache) GetLikeCount(ctx context.Context, userID string) (int64, error) {
	val, err := c.Client.Get(ctx, c.KeyForLikeCount(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil // cache miss
	} else if err != nil {
		return 0, err
	}
	// refresh TTL on access
	_ = c.Client.Expire(ctx, c.KeyForLikeCount(userID), time.Hour).Err()
	return strconv.ParseInt(val, 10, 64)
}

func (c *RedisCache) IncrLikeCount(ctx context.Context, userID string) {
	key := c.KeyForLikeCount(userID)
	_, _ = c.Client.Incr(ctx, key).Result()
	_ = c.Client.Expire(ctx, key, time.Hour).Err()
}

// KeyForLikeRate generates the key for the outgoing like-rate counter used
// by the mass-like check.
func (c *RedisCache) KeyForLikeRate(userID string) string {
	return fmt.Sprintf("likes:rate:%s", userID)
}

// BumpLikeRate increments the caller's like-rate counter inside a rolling
// one hour window and returns the new count.
func (c *RedisCache) BumpLikeRate(ctx context.Context, userID string) (int64, error) {
	key := c.KeyForLikeRate(userID)
	n, err := c.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		_ = c.Client.Expire(ctx, key, time.Hour).Err()
	}
	return n, nil
}
