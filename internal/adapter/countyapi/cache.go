package countyapi

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/case-data-qc/internal/domain"
	"github.com/couchcryptid/case-data-qc/internal/observability"
)

// Source is the lookup being cached.
type Source interface {
	Rollups(ctx context.Context, region string) ([]domain.CountyAggregate, error)
}

// CachedSource wraps a Source with an in-memory LRU cache whose entries
// expire after a TTL, since rollups change at most a few times a day.
type CachedSource struct {
	inner   Source
	cache   *lruCache
	clock   clockwork.Clock
	ttl     time.Duration
	metrics *observability.Metrics
}

// NewCachedSource creates a cache decorator around a rollup source.
func NewCachedSource(inner Source, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedSource {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CachedSource{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		clock:   clock,
		ttl:     ttl,
		metrics: metrics,
	}
}

func (c *CachedSource) Rollups(ctx context.Context, region string) ([]domain.CountyAggregate, error) {
	key := strings.ToUpper(region)
	now := c.clock.Now()
	if e, ok := c.cache.get(key); ok && now.Sub(e.storedAt) <= c.ttl {
		c.metrics.CountyCache.WithLabelValues("hit").Inc()
		return e.rollups, nil
	}
	c.metrics.CountyCache.WithLabelValues("miss").Inc()

	rollups, err := c.inner.Rollups(ctx, region)
	if err != nil {
		return nil, err
	}
	// Only cache non-empty results so a region that is still loading upstream can be retried.
	if len(rollups) > 0 {
		c.cache.put(key, cached{rollups: rollups, storedAt: now})
	}
	return rollups, nil
}

type cached struct {
	rollups  []domain.CountyAggregate
	storedAt time.Time
}

// lruCache is a simple thread-safe LRU cache for rollups.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value cached
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (cached, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return cached{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value cached) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
