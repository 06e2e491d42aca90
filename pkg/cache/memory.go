package cache

import (
	"context"
	"sync"
	"time"
)

type LocalEntry[T any] struct {
	Expires time.Time
	Data    T
}

// MemoryCache is the in-process tier.
type MemoryCache[T any] struct {
	mu      sync.RWMutex
	entries map[string]LocalEntry[T]
	now     func() time.Time
}

func NewMemoryCache[T any]() *MemoryCache[T] {
	return &MemoryCache[T]{
		entries: make(map[string]LocalEntry[T]),
		now:     time.Now,
	}
}

func (c *MemoryCache[T]) Get(_ context.Context, key string) (T, bool) {
	c.mu.RLock()
	local, found := c.entries[key]
	c.mu.RUnlock()
	if !found {
		var zero T
		return zero, false
	}
	if !c.now().Before(local.Expires) {
		c.mu.Lock()
		if e, ok := c.entries[key]; ok && e.Expires.Equal(local.Expires) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		var zero T
		return zero, false
	}
	return local.Data, true
}

func (c *MemoryCache[T]) Set(_ context.Context, key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = LocalEntry[T]{Expires: c.now().Add(ttl), Data: value}
}

func (c *MemoryCache[T]) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	return nil
}

func (c *MemoryCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
