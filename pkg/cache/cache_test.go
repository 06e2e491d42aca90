package cache

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/matst80/slask-archive/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOptionsKeyNormalizes(t *testing.T) {
	a := OptionsKey("topic", "archive", url.Values{"facet-speaker": {"b", "a"}, "s": {"grace"}, "_wpnonce": {"123"}})
	b := OptionsKey("topic", "archive", url.Values{"s": {"grace"}, "facet-speaker": {"a", "b"}, "timestamp": {"99"}})
	assert.Equal(t, a, b)
	assert.Contains(t, a, KeyPrefix)
	assert.Len(t, a, len(KeyPrefix)+64)
}

func TestOptionsKeyDiffers(t *testing.T) {
	base := OptionsKey("topic", "archive", url.Values{"s": {"grace"}})
	assert.NotEqual(t, base, OptionsKey("speaker", "archive", url.Values{"s": {"grace"}}))
	assert.NotEqual(t, base, OptionsKey("topic", "service-type", url.Values{"s": {"grace"}}))
	assert.NotEqual(t, base, OptionsKey("topic", "archive", url.Values{"s": {"hope"}}))
	assert.NotEqual(t, OptionsKey("a", "bc", nil), OptionsKey("ab", "c", nil))
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache[[]types.Option]()
	c.now = func() time.Time { return now }

	opts := []types.Option{{Id: "1", Value: "grace", Title: "Grace", Count: 3}}
	c.Set(ctx, "k", opts, time.Minute)
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, opts, got)

	now = now.Add(time.Minute)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[string]()
	c.Set(ctx, "a", "1", time.Hour)
	c.Set(ctx, "b", "2", 0)
	require.NoError(t, c.Invalidate(ctx))
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestRemember(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[[]types.Option]()
	calls := 0
	compute := func() ([]types.Option, error) {
		calls++
		return []types.Option{{Value: "grace", Count: 3}}, nil
	}

	first, hit, err := Remember(ctx, c, "k", time.Hour, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	second, hit, err := Remember(ctx, c, "k", time.Hour, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestRememberDoesNotCacheFailures(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[int]()
	_, _, err := Remember(ctx, c, "k", time.Hour, func() (int, error) { return 0, errors.New("boom") })
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())

	v, hit, err := Remember[int](ctx, nil, "k", time.Hour, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 7, v)
}

func unreachableRedis() *RedisCache[[]types.Option] {
	return NewRedisCache[[]types.Option](&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	}, zap.NewNop())
}

func TestRedisCacheDegradesToMiss(t *testing.T) {
	ctx := context.Background()
	c := unreachableRedis()
	defer c.Close()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	opts := []types.Option{{Value: "hope", Count: 4}}
	c.Set(ctx, "k", opts, time.Hour)
	got, ok := c.Get(ctx, "k")
	require.True(t, ok, "local tier answers while redis is down")
	assert.Equal(t, opts, got)

	assert.Error(t, c.Invalidate(ctx))
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok, "local tier is cleared even when redis fails")
}
