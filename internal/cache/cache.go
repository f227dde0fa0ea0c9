// Package cache memoizes query result pages in a bounded LRU with TTL
// expiry and channel-scoped invalidation.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Default settings.
const (
	DefaultCapacity = 10000
	DefaultTTL      = 5 * time.Minute
)

// AllChannels is the scope of entries whose query has no channel filter.
// Any write invalidates them.
const AllChannels = ""

type entry[V any] struct {
	value   V
	scope   string
	expires time.Time
}

// Cache is a concurrency-safe LRU cache keyed by query fingerprint.
//
// Entries carry the channel scope of their query. Invalidate(ch) drops
// every entry scoped to ch and every AllChannels entry. A page computed
// before an invalidation of its scope is never stored: Put takes the epoch
// read with Epoch before the page was computed.
type Cache[V any] struct {
	lru        *expirable.LRU[string, entry[V]]
	capacity   int
	defaultTTL time.Duration
	now        func() time.Time

	mu sync.Mutex
	// scopes may hold keys the LRU already evicted; they are dropped on
	// invalidation or by sweep.
	scopes      map[string]map[string]struct{}
	scoped      int
	epoch       uint64
	invalidated map[string]uint64
	lastAny     uint64

	hits          atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock sets the clock used for per-entry expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New creates a cache holding at most capacity entries, each living at
// most ttl.
func New[V any](capacity int, ttl time.Duration, opts ...Option) *Cache[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{
		lru:         expirable.NewLRU[string, entry[V]](capacity, nil, ttl),
		capacity:    capacity,
		defaultTTL:  ttl,
		now:         o.now,
		scopes:      make(map[string]map[string]struct{}),
		invalidated: make(map[string]uint64),
	}
}

// Epoch returns the current invalidation epoch. Read it before computing
// a page and pass it to Put.
func (c *Cache[V]) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Get returns the cached value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	e, ok := c.lru.Get(key)
	if ok && c.now().After(e.expires) {
		c.lru.Remove(key)
		ok = false
	}
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Put stores value under key for ttl (0 means the default TTL). The value
// is dropped, and false returned, if scope was invalidated after epoch.
func (c *Cache[V]) Put(key, scope string, value V, ttl time.Duration, epoch uint64) bool {
	if ttl <= 0 || ttl > c.defaultTTL {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.staleLocked(scope, epoch) {
		return false
	}
	c.lru.Add(key, entry[V]{value: value, scope: scope, expires: c.now().Add(ttl)})

	keys := c.scopes[scope]
	if keys == nil {
		keys = make(map[string]struct{})
		c.scopes[scope] = keys
	}
	if _, ok := keys[key]; !ok {
		keys[key] = struct{}{}
		c.scoped++
	}
	if c.scoped > 2*c.capacity {
		c.sweepLocked()
	}
	return true
}

func (c *Cache[V]) staleLocked(scope string, epoch uint64) bool {
	if scope == AllChannels {
		return c.lastAny > epoch
	}
	return c.invalidated[scope] > epoch || c.invalidated[AllChannels] > epoch
}

// Invalidate drops every entry whose scope intersects channel. An empty
// channel drops everything.
func (c *Cache[V]) Invalidate(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.lastAny = c.epoch
	c.invalidated[channel] = c.epoch
	c.invalidations.Add(1)

	if channel == AllChannels {
		c.lru.Purge()
		c.scopes = make(map[string]map[string]struct{})
		c.scoped = 0
		return
	}
	c.dropScopeLocked(channel)
	c.dropScopeLocked(AllChannels)
}

func (c *Cache[V]) dropScopeLocked(scope string) {
	for key := range c.scopes[scope] {
		c.lru.Remove(key)
	}
	c.scoped -= len(c.scopes[scope])
	delete(c.scopes, scope)
}

// sweepLocked forgets scope entries for keys the LRU has evicted.
func (c *Cache[V]) sweepLocked() {
	c.scoped = 0
	for scope, keys := range c.scopes {
		for key := range keys {
			if e, ok := c.lru.Peek(key); !ok || e.scope != scope {
				delete(keys, key)
			}
		}
		if len(keys) == 0 {
			delete(c.scopes, scope)
		}
		c.scoped += len(keys)
	}
}

// Len returns the number of entries, expired ones included until purged.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.Invalidate(AllChannels)
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Entries       int   `json:"entries"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Invalidations int64 `json:"invalidations"`
}

// HitRate returns hits / (hits + misses), or 0 with no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns current counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Entries:       c.lru.Len(),
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
	}
}
