// Package cache keeps short-lived copies of repository metadata for the
// serve command. Entries expire because a concurrent update may replace the
// index at any time.
package cache

import (
	"strings"
	"sync"
	"time"
)

type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
	Delete(key string)
	// DeletePrefix drops every entry whose key starts with prefix.
	DeletePrefix(prefix string)
	Len() int
	Close()
}

type MemoryCache struct {
	items map[string]*cacheItem
	mu    sync.RWMutex
	stop  chan struct{}
	once  sync.Once
	now   func() time.Time
}

type cacheItem struct {
	value      interface{}
	expiration int64
}

// NewMemoryCache starts a cache that sweeps expired entries every interval.
// A non-positive interval disables the sweeper; expired entries are still
// never returned.
func NewMemoryCache(interval time.Duration) *MemoryCache {
	c := &MemoryCache{
		items: make(map[string]*cacheItem),
		stop:  make(chan struct{}),
		now:   time.Now,
	}

	// 启动清理协程
	if interval > 0 {
		go c.cleanup(interval)
	}

	return c
}

func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || c.expired(item, c.now().UnixNano()) {
		return nil, false
	}
	return item.value, true
}

func (c *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiration int64
	if ttl > 0 {
		expiration = c.now().Add(ttl).UnixNano()
	}
	c.items[key] = &cacheItem{value: value, expiration: expiration}
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

func (c *MemoryCache) DeletePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
}

// Len counts stored entries, including expired ones not yet swept.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

func (c *MemoryCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *MemoryCache) expired(item *cacheItem, now int64) bool {
	return item.expiration > 0 && now > item.expiration
}

func (c *MemoryCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UnixNano()
	for key, item := range c.items {
		if c.expired(item, now) {
			delete(c.items, key)
		}
	}
}

func (c *MemoryCache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}
