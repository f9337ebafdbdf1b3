// Package cache provides in-memory caching for compiled record models.
package cache

import (
	"sync"
	"time"

	"github.com/quipubase/quipubase/internal/schema"
)

// Cache is a simple in-memory cache with LRU eviction and per-entry TTL.
type Cache struct {
	capacity int
	ttl      time.Duration
	mu       sync.RWMutex
	items    map[string]*cacheItem
	order    []string // For LRU tracking
}

type cacheItem struct {
	value     interface{}
	expiresAt time.Time
}

// New creates a cache with the given capacity and TTL. A non-positive TTL
// means entries never expire.
func New(capacity int, ttl time.Duration) *Cache {
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*cacheItem),
		order:    make([]string, 0, capacity),
	}
}

// Get retrieves an item, refreshing its recency.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if c.expired(item) {
		c.Delete(key)
		return nil, false
	}

	c.mu.Lock()
	c.moveToEnd(key)
	c.mu.Unlock()

	return item.value, true
}

// Set stores an item, evicting the least recently used entry at capacity.
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; exists {
		c.items[key] = &cacheItem{value: value, expiresAt: c.deadline()}
		c.moveToEnd(key)
		return
	}

	if c.capacity > 0 && len(c.items) >= c.capacity {
		c.evict()
	}

	c.items[key] = &cacheItem{value: value, expiresAt: c.deadline()}
	c.order = append(c.order, key)
}

// Delete removes an item.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	c.removeFromOrder(key)
}

// Clear removes all items.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*cacheItem)
	c.order = make([]string, 0, c.capacity)
}

// Size returns the number of cached items.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache) deadline() time.Time {
	if c.ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.ttl)
}

func (c *Cache) expired(item *cacheItem) bool {
	return !item.expiresAt.IsZero() && time.Now().After(item.expiresAt)
}

func (c *Cache) evict() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.items, oldest)
}

func (c *Cache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *Cache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// ModelCache caches compiled record models keyed by collection ID. Compiling
// a schema is the expensive step on the hot read path; the registry reads
// through this cache and invalidates on collection deletion.
type ModelCache struct {
	cache *Cache
}

// NewModelCache creates a model cache.
func NewModelCache(capacity int, ttl time.Duration) *ModelCache {
	return &ModelCache{cache: New(capacity, ttl)}
}

// Get retrieves a compiled model for a collection.
func (c *ModelCache) Get(collectionID string) (*schema.Compiled, bool) {
	v, ok := c.cache.Get(collectionID)
	if !ok {
		return nil, false
	}
	return v.(*schema.Compiled), true
}

// Set stores a compiled model for a collection.
func (c *ModelCache) Set(collectionID string, compiled *schema.Compiled) {
	c.cache.Set(collectionID, compiled)
}

// Invalidate drops a collection's model.
func (c *ModelCache) Invalidate(collectionID string) {
	c.cache.Delete(collectionID)
}

// Size returns the cache size.
func (c *ModelCache) Size() int {
	return c.cache.Size()
}

// Clear clears the cache.
func (c *ModelCache) Clear() {
	c.cache.Clear()
}
