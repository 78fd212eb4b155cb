// Package cache provides small in-memory TTL caches.
package cache

import (
	"sync"
	"time"
)

// Cache is a keyed in-memory TTL cache. Expired entries are dropped lazily
// on Get and swept on Set once the map grows past sweepAt.
type Cache[T any] struct {
	mu      sync.RWMutex
	data    map[string]entry[T]
	now     func() time.Time
	sweepAt int
}

type entry[T any] struct {
	value T
	exp   time.Time
}

const defaultSweepAt = 512

func New[T any]() *Cache[T] {
	return &Cache[T]{
		data:    make(map[string]entry[T]),
		now:     time.Now,
		sweepAt: defaultSweepAt,
	}
}

// WithClock replaces the time source, for tests.
func (c *Cache[T]) WithClock(now func() time.Time) *Cache[T] {
	c.now = now
	return c
}

// Get returns the cached value or false if absent/expired.
func (c *Cache[T]) Get(key string) (T, bool) {
	var zero T

	c.mu.RLock()
	item, ok := c.data[key]
	c.mu.RUnlock()
	if !ok || c.now().After(item.exp) {
		return zero, false
	}
	return item.value, true
}

// Set stores a value with the provided TTL.
func (c *Cache[T]) Set(key string, value T, ttl time.Duration) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.data) >= c.sweepAt {
		for k, e := range c.data {
			if now.After(e.exp) {
				delete(c.data, k)
			}
		}
	}
	c.data[key] = entry[T]{value: value, exp: now.Add(ttl)}
}

func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Cell is a single cached value replaced wholesale. The lock only covers
// the swap; concurrent refreshes may race and the last write wins.
type Cell[T any] struct {
	mu  sync.Mutex
	val *cellValue[T]
	ttl time.Duration
	now func() time.Time
}

type cellValue[T any] struct {
	value     T
	fetchedAt time.Time
}

func NewCell[T any](ttl time.Duration) *Cell[T] {
	return &Cell[T]{ttl: ttl, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (c *Cell[T]) WithClock(now func() time.Time) *Cell[T] {
	c.now = now
	return c
}

// Get returns the value if it was stored less than ttl ago.
func (c *Cell[T]) Get() (T, bool) {
	var zero T
	c.mu.Lock()
	v := c.val
	c.mu.Unlock()
	if v == nil || c.now().Sub(v.fetchedAt) >= c.ttl {
		return zero, false
	}
	return v.value, true
}

func (c *Cell[T]) Set(value T) {
	v := &cellValue[T]{value: value, fetchedAt: c.now()}
	c.mu.Lock()
	c.val = v
	c.mu.Unlock()
}
