package tenant

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Cache stores resolved tenant records so hot identifiers skip the registry
// and loader on every request.
type Cache interface {
	Get(ctx context.Context, key string) (*Tenant, bool)
	Set(ctx context.Context, key string, t *Tenant, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Close() error
}

// DefaultCacheSize is the default entry cap for the in-memory cache.
const DefaultCacheSize = 1000

type memEntry struct {
	key       string
	tenant    *Tenant
	expiresAt time.Time
}

// memoryCache is a TTL cache with LRU eviction backed by a map plus an
// intrusive list, so both lookups and recency updates are O(1).
type memoryCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // front = most recently used
	maxSize int

	stop   chan struct{}
	done   chan struct{}
	closed bool
}

// NewInMemoryCache creates an in-memory cache with the default size cap and
// a background goroutine that sweeps expired entries once a minute.
func NewInMemoryCache() Cache {
	return NewInMemoryCacheWithSize(DefaultCacheSize)
}

// NewInMemoryCacheWithSize creates an in-memory cache with the given cap.
func NewInMemoryCacheWithSize(maxSize int) Cache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	c := &memoryCache{
		items:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

func (c *memoryCache) Get(ctx context.Context, key string) (*Tenant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*memEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	// Clone so callers never share the stored record, matching the
	// registry's snapshot semantics.
	return entry.tenant.Clone(), true
}

func (c *memoryCache) Set(ctx context.Context, key string, t *Tenant, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		entry := el.Value.(*memEntry)
		entry.tenant = t.Clone()
		entry.expiresAt = time.Now().Add(ttl)
		c.order.MoveToFront(el)
		return
	}

	if len(c.items) >= c.maxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*memEntry).key)
		}
	}
	c.items[key] = c.order.PushFront(&memEntry{
		key:       key,
		tenant:    t.Clone(),
		expiresAt: time.Now().Add(ttl),
	})
}

func (c *memoryCache) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}

func (c *memoryCache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, el := range c.items {
				if now.After(el.Value.(*memEntry).expiresAt) {
					c.order.Remove(el)
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

// Close stops the sweeper goroutine. Safe to call multiple times.
func (c *memoryCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stop)
	<-c.done
	return nil
}

// noopCache disables caching; every lookup goes to the registry.
type noopCache struct{}

// NewNoOpCache returns a cache that stores nothing.
func NewNoOpCache() Cache { return noopCache{} }

func (noopCache) Get(ctx context.Context, key string) (*Tenant, bool) { return nil, false }

func (noopCache) Set(ctx context.Context, key string, t *Tenant, ttl time.Duration) {}

func (noopCache) Delete(ctx context.Context, key string) {}

func (noopCache) Close() error { return nil }
