package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestCache_PutGet(t *testing.T) {
	c := New[string](10, time.Minute)

	require.True(t, c.Put("k", "c1", "page", 0, c.Epoch()))
	got, ok := c.Get("k")

	require.True(t, ok)
	assert.Equal(t, "page", got)
	_, ok = c.Get("missing")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-9)
}

func TestCache_LRUEviction(t *testing.T) {
	c := New[int](2, time.Minute)

	c.Put("a", "c1", 1, 0, c.Epoch())
	c.Put("b", "c1", 2, 0, c.Epoch())
	_, _ = c.Get("a") // a is now most recent
	c.Put("c", "c1", 3, 0, c.Epoch())

	_, ok := c.Get("b")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCache_PerEntryTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := New[int](10, time.Hour, WithClock(clock.Now))

	c.Put("short", "c1", 1, time.Second, c.Epoch())
	c.Put("long", "c1", 2, 0, c.Epoch())
	clock.Advance(2 * time.Second)

	_, ok := c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("long")
	assert.True(t, ok)
}

func TestCache_InvalidateByChannel(t *testing.T) {
	// Given entries scoped to c1, c2 and to all channels
	c := New[string](10, time.Minute)
	c.Put("q1", "c1", "p1", 0, c.Epoch())
	c.Put("q2", "c2", "p2", 0, c.Epoch())
	c.Put("q3", AllChannels, "p3", 0, c.Epoch())

	// When c1 is written
	c.Invalidate("c1")

	// Then c1 and unscoped entries are gone, c2 survives
	_, ok := c.Get("q1")
	assert.False(t, ok)
	_, ok = c.Get("q3")
	assert.False(t, ok)
	_, ok = c.Get("q2")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Invalidations)
}

func TestCache_InvalidateAll(t *testing.T) {
	c := New[string](10, time.Minute)
	c.Put("q1", "c1", "p1", 0, c.Epoch())
	c.Put("q2", "c2", "p2", 0, c.Epoch())

	c.Purge()

	assert.Equal(t, 0, c.Len())
}

func TestCache_PutAfterInvalidationIsDropped(t *testing.T) {
	c := New[string](10, time.Minute)

	// A query starts, then a write to its channel lands before it finishes.
	epoch := c.Epoch()
	c.Invalidate("c1")

	assert.False(t, c.Put("q", "c1", "stale", 0, epoch))
	assert.False(t, c.Put("q-all", AllChannels, "stale", 0, epoch))
	assert.True(t, c.Put("q2", "c2", "fresh", 0, epoch), "other channels are unaffected")

	_, ok := c.Get("q")
	assert.False(t, ok)
}

func TestCache_ScopeIndexIsSwept(t *testing.T) {
	c := New[int](2, time.Minute)

	for i := 0; i < 50; i++ {
		c.Put(fmt.Sprintf("k%d", i), "c1", i, 0, c.Epoch())
	}

	c.mu.Lock()
	scoped := c.scoped
	c.mu.Unlock()
	assert.LessOrEqual(t, scoped, 5)
}

func TestCache_Concurrent(t *testing.T) {
	c := New[int](64, time.Minute)
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%32)
				ch := fmt.Sprintf("c%d", i%4)
				c.Put(key, ch, i, 0, c.Epoch())
				_, _ = c.Get(key)
				if i%50 == 0 {
					c.Invalidate(ch)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 64)
}
