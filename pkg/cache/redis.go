package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matst80/slask-archive/pkg/common/jsoncompat"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const localTTL = time.Minute

// RedisCache shares entries between nodes through redis and keeps a short
// lived local copy in front of it.
type RedisCache[T any] struct {
	client *redis.Client
	local  *MemoryCache[T]
	logger *zap.Logger
}

func NewRedisCache[T any](opts *redis.Options, logger *zap.Logger) *RedisCache[T] {
	return &RedisCache[T]{
		client: redis.NewClient(opts),
		local:  NewMemoryCache[T](),
		logger: logger,
	}
}

func (c *RedisCache[T]) fail(op, key string, err error) {
	cacheErrors.Inc()
	c.logger.Warn("options cache unavailable", zap.String("op", op), zap.String("key", key), zap.Error(err))
}

func (c *RedisCache[T]) Get(ctx context.Context, key string) (T, bool) {
	if v, ok := c.local.Get(ctx, key); ok {
		return v, true
	}
	var out T
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return out, false
	}
	if err != nil {
		c.fail("get", key, err)
		return out, false
	}
	if err = jsoncompat.Unmarshal(data, &out); err != nil {
		c.fail("decode", key, err)
		return out, false
	}
	c.local.Set(ctx, key, out, localTTL)
	return out, true
}

func (c *RedisCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.local.Set(ctx, key, value, min(ttl, localTTL))
	data, err := jsoncompat.Marshal(value)
	if err != nil {
		c.fail("encode", key, err)
		return
	}
	if err = c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.fail("set", key, err)
	}
}

// Invalidate drops the local tier and every prefixed key in redis.
func (c *RedisCache[T]) Invalidate(ctx context.Context) error {
	c.local.Invalidate(ctx)
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, KeyPrefix+"*", 200).Result()
		if err != nil {
			c.fail("scan", KeyPrefix, err)
			return fmt.Errorf("scan options keys: %w", err)
		}
		if len(keys) > 0 {
			if err = c.client.Del(ctx, keys...).Err(); err != nil {
				c.fail("del", KeyPrefix, err)
				return fmt.Errorf("delete options keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (c *RedisCache[T]) Close() error {
	return c.client.Close()
}
