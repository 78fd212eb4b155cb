package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func TestCache_GetSetExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := New[string]().WithClock(clock.Now)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", "alpha", time.Minute)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "alpha", v)

	clock.Advance(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestCache_SweepsExpired(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := New[int]().WithClock(clock.Now)
	c.sweepAt = 3

	c.Set("a", 1, time.Second)
	c.Set("b", 2, time.Second)
	c.Set("c", 3, time.Hour)
	clock.Advance(time.Minute)
	c.Set("d", 4, time.Hour)

	assert.Equal(t, 2, c.Len())
	v, ok := c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestCell(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cell := NewCell[[]string](5 * time.Minute).WithClock(clock.Now)

	_, ok := cell.Get()
	assert.False(t, ok)

	cell.Set([]string{"x"})
	clock.Advance(4 * time.Minute)
	v, ok := cell.Get()
	assert.True(t, ok)
	assert.Equal(t, []string{"x"}, v)

	clock.Advance(time.Minute)
	_, ok = cell.Get()
	assert.False(t, ok)
}
