// Package memorycache implements cache.Cache as an in-process LRU with TTL.
// It favors predictability over throughput: a plain map plus doubly linked
// list under one mutex, no background goroutines (expired entries are
// dropped lazily on access or eviction).
package memorycache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/bluerp/bluecore/pkg/cache"
)

type entry struct {
	key       string
	value     interface{}
	expiresAt time.Time
}

// Config holds configuration for the memory cache.
type Config struct {
	// MaxEntries bounds the number of cached items; least recently used
	// items are evicted past the bound. Zero means 10000.
	MaxEntries int

	// DefaultTTL applies when Set is called with a zero TTL.
	DefaultTTL time.Duration
}

// Cache is an LRU cache with per-entry TTL.
type Cache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	evictList  *list.List // front = most recently used
	maxEntries int
	defaultTTL time.Duration

	hits, misses, added, evicted uint64
}

// New creates a memory cache.
func New(cfg Config) *Cache {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		items:      make(map[string]*list.Element),
		evictList:  list.New(),
		maxEntries: maxEntries,
		defaultTTL: ttl,
	}
}

// Get retrieves a value and marks it recently used.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	ent := el.Value.(*entry)
	if time.Now().After(ent.expiresAt) {
		c.removeElement(el)
		c.misses++
		return nil, false
	}
	c.evictList.MoveToFront(el)
	c.hits++
	return ent.value, true
}

// Set stores a value, evicting least recently used entries if needed.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	expiresAt := time.Now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry)
		ent.value = value
		ent.expiresAt = expiresAt
		c.evictList.MoveToFront(el)
		return nil
	}

	el := c.evictList.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = el
	c.added++

	for c.evictList.Len() > c.maxEntries {
		if back := c.evictList.Back(); back != nil {
			c.removeElement(back)
			c.evicted++
		}
	}
	return nil
}

// Delete removes a value.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
	return nil
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.evictList.Init()
	return nil
}

// Close is a no-op; the cache holds no external resources.
func (c *Cache) Close() error {
	return c.Clear(context.Background())
}

// Metrics returns a snapshot of cache statistics.
func (c *Cache) Metrics() cache.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cache.Metrics{
		Hits:        c.hits,
		Misses:      c.misses,
		KeysAdded:   c.added,
		KeysEvicted: c.evicted,
		KeysCurrent: len(c.items),
	}
}

// removeElement drops an entry. Caller must hold the lock.
func (c *Cache) removeElement(el *list.Element) {
	c.evictList.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}

var _ cache.Cache = (*Cache)(nil)
