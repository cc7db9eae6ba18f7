package cache

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUCache is an in-process VectorCache with LRU eviction and TTL expiry
type LRUCache struct {
	cache    *lru.Cache[CacheKey, *CacheEntry]
	config   *CacheConfig
	stats    *CacheStats
	mu       sync.Mutex
	stopOnce sync.Once
	stopChan chan struct{}
}

var _ VectorCache = (*LRUCache)(nil)

// NewLRUCache creates a new LRU cache
func NewLRUCache(config *CacheConfig) (*LRUCache, error) {
	if config == nil {
		config = DefaultCacheConfig()
	}

	cache, err := lru.New[CacheKey, *CacheEntry](config.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	c := &LRUCache{
		cache:    cache,
		config:   config,
		stats:    &CacheStats{MaxSize: config.MaxSize},
		stopChan: make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go c.cleanup()
	}

	return c, nil
}

// Lookup returns the entry for key if it is present and fresh
func (c *LRUCache) Lookup(key CacheKey) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.cache.Get(key)
	if !exists {
		c.stats.Misses++
		return nil, false
	}

	if entry.IsExpired() {
		c.cache.Remove(key)
		c.stats.Expirations++
		c.stats.Misses++
		return nil, false
	}

	entry.Touch()
	c.stats.Hits++
	return entry, true
}

// Get returns a copy of the cached vector
func (c *LRUCache) Get(_ context.Context, key CacheKey) ([]float32, bool, error) {
	entry, ok := c.Lookup(key)
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(entry.Vector), true, nil
}

// Set stores a copy of vector; ttl <= 0 selects the default TTL
func (c *LRUCache) Set(_ context.Context, key CacheKey, vector []float32, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	now := time.Now()
	evicted := c.cache.Add(key, &CacheEntry{
		Vector:       slices.Clone(vector),
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastAccessed: now,
	})
	if evicted {
		c.stats.Evictions++
	}
	c.stats.Size = c.cache.Len()
	return nil
}

// Delete removes a value from the cache
func (c *LRUCache) Delete(_ context.Context, key CacheKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Remove(key)
	c.stats.Size = c.cache.Len()
	return nil
}

// Clear removes all values from the cache
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Purge()
	c.stats.Size = 0
}

// Stats returns cache statistics
func (c *LRUCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := *c.stats
	stats.Size = c.cache.Len()
	stats.CalculateHitRate()
	return stats
}

// Close stops the cleanup goroutine
func (c *LRUCache) Close() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *LRUCache) cleanup() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanupExpired()
		case <-c.stopChan:
			return
		}
	}
}

func (c *LRUCache) cleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	expired := 0
	for _, key := range c.cache.Keys() {
		if entry, exists := c.cache.Peek(key); exists && entry.IsExpired() {
			c.cache.Remove(key)
			expired++
		}
	}

	if expired > 0 {
		c.stats.Expirations += int64(expired)
		c.stats.Size = c.cache.Len()
	}
}

// Len returns the number of items in the cache
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cache.Len()
}
