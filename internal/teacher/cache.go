package teacher

import (
	"context"
	"sync"
	"time"
)

const DefaultCacheTTL = 5 * time.Second

type cacheItem struct {
	teacher *Teacher
	expires time.Time
}

// Cache keeps looked-up teachers for a TTL in front of a Directory.
type Cache struct {
	dir Directory
	ttl time.Duration
	now func() time.Time

	observe func(hit bool)

	mu    sync.Mutex
	items map[string]cacheItem
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithObserver reports every lookup as a hit or a miss.
func WithObserver(fn func(hit bool)) CacheOption {
	return func(c *Cache) { c.observe = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache wraps dir. A non-positive ttl means DefaultCacheTTL.
func NewCache(dir Directory, ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &Cache{dir: dir, ttl: ttl, now: time.Now, items: map[string]cacheItem{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached teacher or looks it up. Expired teachers drop
// their fetched events.
func (c *Cache) Get(ctx context.Context, id string) (*Teacher, error) {
	now := c.now()
	c.mu.Lock()
	item, ok := c.items[id]
	c.mu.Unlock()
	if ok && now.Before(item.expires) {
		c.report(true)
		return item.teacher, nil
	}
	c.report(false)

	t, err := c.dir.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok && item.teacher == t {
		t.Invalidate()
	}
	c.mu.Lock()
	c.items[id] = cacheItem{teacher: t, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return t, nil
}

func (c *Cache) All(ctx context.Context) ([]*Teacher, error) { return c.dir.All(ctx) }

// Reload reloads the directory and empties the cache.
func (c *Cache) Reload(ctx context.Context) error {
	err := c.dir.Reload(ctx)
	c.Purge()
	return err
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.items = map[string]cacheItem{}
	c.mu.Unlock()
}

// Len is the number of cached entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) report(hit bool) {
	if c.observe != nil {
		c.observe(hit)
	}
}
