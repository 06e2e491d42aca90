package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/matst80/slask-archive/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// KeyPrefix namespaces every options entry so invalidation can find them.
	KeyPrefix  = "facet_options:"
	DefaultTTL = time.Hour
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slaskarchive_options_cache_hits_total",
		Help: "The total number of facet option lookups served from cache",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slaskarchive_options_cache_misses_total",
		Help: "The total number of facet option lookups that had to aggregate",
	})
	cacheErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slaskarchive_options_cache_errors_total",
		Help: "The total number of failed cache backend calls",
	})
)

// Cache is an advisory TTL cache. A miss is never an error and backend
// failures surface as misses.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	Set(ctx context.Context, key string, value T, ttl time.Duration)
	Invalidate(ctx context.Context) error
}

type OptionsCache = Cache[[]types.Option]

// OptionsKey derives the cache key for one options request. Request-unique
// vars are dropped; keys and values are sorted so equal requests collide.
func OptionsKey(facetId, contextId string, args url.Values) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		if slices.Contains(types.RequestUniqueVars, k) {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	h := sha256.New()
	h.Write([]byte(facetId))
	h.Write([]byte{0})
	h.Write([]byte(contextId))
	for _, k := range keys {
		values := slices.Clone(args[k])
		slices.Sort(values)
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(strings.Join(values, "\x1f")))
	}
	return KeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Remember returns the cached value for key or computes and stores it. The
// bool reports whether the value came from the cache. Failed computations are
// not cached.
func Remember[T any](ctx context.Context, c Cache[T], key string, ttl time.Duration, fn func() (T, error)) (T, bool, error) {
	if c != nil {
		if v, ok := c.Get(ctx, key); ok {
			cacheHits.Inc()
			return v, true, nil
		}
	}
	cacheMisses.Inc()
	v, err := fn()
	if err != nil {
		return v, false, err
	}
	if c != nil {
		c.Set(ctx, key, v, ttl)
	}
	return v, false, nil
}
