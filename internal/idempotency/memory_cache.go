package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryCache implements Cache with an in-process map. Default backend when
// Redis is not configured.
type MemoryCache struct {
	mu       sync.RWMutex
	data     map[string]*cacheItem
	stop     chan struct{}
	stopOnce sync.Once
}

type cacheItem struct {
	resp      *CachedResponse
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory cache and starts its cleanup goroutine.
func NewMemoryCache() *MemoryCache {
	c := &MemoryCache{
		data: make(map[string]*cacheItem),
		stop: make(chan struct{}),
	}

	go c.cleanup()

	return c
}

// Get retrieves a cached response.
func (c *MemoryCache) Get(ctx context.Context, key string) (*CachedResponse, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.data[key]
	if !ok || time.Now().After(item.expiresAt) {
		return nil, ErrNotFound
	}
	return item.resp, nil
}

// Set stores a response with TTL.
func (c *MemoryCache) Set(ctx context.Context, key string, resp *CachedResponse, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = &cacheItem{resp: resp, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Delete removes a cached response.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
	return nil
}

// Ping always succeeds for the in-memory backend.
func (c *MemoryCache) Ping(ctx context.Context) error {
	return nil
}

// Close stops the cleanup goroutine.
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	return nil
}

// cleanup periodically removes expired entries.
func (c *MemoryCache) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, item := range c.data {
				if now.After(item.expiresAt) {
					delete(c.data, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
