// Package respcache is a bounded in-process cache for provider responses.
//
// Entries expire after their TTL and, once MaxSize is reached, the least
// recently accessed entry is evicted. Expired entries are dropped lazily on
// lookup and periodically by the sweeper started with Start.
package respcache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultMaxSize       = 1000
	DefaultTTL           = 5 * time.Minute
	DefaultSweepInterval = time.Minute

	// Health thresholds.
	maxUtilization  = 0.9
	minHitRate      = 0.1
	minLookupsForHR = 100
)

// FetchFunc loads a value on a cache miss.
type FetchFunc[V any] func(ctx context.Context) (V, error)

type Options struct {
	MaxSize       int
	DefaultTTL    time.Duration
	SweepInterval time.Duration

	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

type entry[V any] struct {
	key        string
	value      V
	expiresAt  time.Time
	hits       uint64
	lastAccess time.Time
}

type Cache[V any] struct {
	mu    sync.Mutex
	items map[string]*list.Element
	lru   *list.List // front = most recently used

	maxSize       int
	defaultTTL    time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64

	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

func New[V any](opts Options) *Cache[V] {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}

	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}

	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Cache[V]{
		items:         make(map[string]*list.Element, opts.MaxSize),
		lru:           list.New(),
		maxSize:       opts.MaxSize,
		defaultTTL:    opts.DefaultTTL,
		sweepInterval: opts.SweepInterval,
		now:           opts.Now,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Set stores value under key. A non-positive ttl means the default TTL.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	el, ok := c.items[key]
	if ok {
		e := el.Value.(*entry[V]) //nolint:forcetypeassert
		e.value = value
		e.expiresAt = now.Add(ttl)
		e.lastAccess = now
		c.lru.MoveToFront(el)

		return
	}

	for c.lru.Len() >= c.maxSize {
		c.removeElement(c.lru.Back())
		c.evictions++
	}

	c.items[key] = c.lru.PushFront(&entry[V]{
		key:        key,
		value:      value,
		expiresAt:  now.Add(ttl),
		lastAccess: now,
	})
}

// Get returns the value under key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V

	el, ok := c.items[key]
	if !ok {
		c.misses++

		return zero, false
	}

	now := c.now()
	e := el.Value.(*entry[V]) //nolint:forcetypeassert

	if !now.Before(e.expiresAt) {
		c.removeElement(el)
		c.expirations++
		c.misses++

		return zero, false
	}

	e.hits++
	e.lastAccess = now
	c.lru.MoveToFront(el)
	c.hits++

	return e.value, true
}

// GetOrFetch returns the cached value or calls fetch exactly once and caches
// its result. Nothing is stored when fetch fails.
// Concurrent misses on the same key each fetch independently.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, fetch FetchFunc[V], ttl time.Duration) (V, error) {
	v, ok := c.Get(key)
	if ok {
		return v, nil
	}

	v, err := fetch(ctx)
	if err != nil {
		var zero V

		return zero, fmt.Errorf("fetch %q: %w", key, err)
	}

	c.Set(key, v, ttl)

	return v, nil
}

func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}

	c.removeElement(el)

	return true
}

// Clear drops every entry. Counters are kept.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element, c.maxSize)
	c.lru.Init()
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lru.Len()
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0

	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()

		e := el.Value.(*entry[V]) //nolint:forcetypeassert
		if !now.Before(e.expiresAt) {
			c.removeElement(el)
			c.expirations++
			removed++
		}

		el = prev
	}

	return removed
}

// Start runs the periodic sweeper until ctx is done or Close is called.
// Calling it more than once has no effect.
func (c *Cache[V]) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go c.sweepLoop(ctx)
	})
}

func (c *Cache[V]) sweepLoop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Close stops the sweeper and waits for it to exit.
func (c *Cache[V]) Close(ctx context.Context) error {
	started := true

	c.startOnce.Do(func() { started = false })

	c.closeOnce.Do(func() { close(c.stop) })

	if !started {
		return nil
	}

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close cache: %w", ctx.Err())
	}
}

func (c *Cache[V]) removeElement(el *list.Element) {
	e := el.Value.(*entry[V]) //nolint:forcetypeassert
	delete(c.items, e.key)
	c.lru.Remove(el)
}
