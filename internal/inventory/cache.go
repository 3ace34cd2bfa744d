package inventory

import (
	"container/list"
	"context"
	"sync"

	"github.com/couchcryptid/seismic-template-trim/internal/domain"
	"github.com/couchcryptid/seismic-template-trim/internal/observability"
)

// StationResolver is anything that turns a station code into coordinates.
type StationResolver interface {
	Resolve(ctx context.Context, station string) (domain.Coordinates, error)
}

// CachedResolver wraps a StationResolver with an in-memory LRU cache so a
// station is looked up once per run rather than once per day.
type CachedResolver struct {
	inner   StationResolver
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedResolver creates a cache decorator holding up to maxEntries stations.
func NewCachedResolver(inner StationResolver, maxEntries int, metrics *observability.Metrics) *CachedResolver {
	return &CachedResolver{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedResolver) Resolve(ctx context.Context, station string) (domain.Coordinates, error) {
	if coords, ok := c.cache.get(station); ok {
		c.observe("hit")
		return coords, nil
	}
	c.observe("miss")

	coords, err := c.inner.Resolve(ctx, station)
	if err != nil {
		// Misses are not cached; a later day may find the station once a
		// source recovers.
		return coords, err
	}
	c.cache.put(station, coords)
	return coords, nil
}

func (c *CachedResolver) observe(result string) {
	if c.metrics != nil {
		c.metrics.InventoryCache.WithLabelValues(result).Inc()
	}
}

// lruCache is a thread-safe LRU of station coordinates.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	order      *list.List // front is most recently used
	entries    map[string]*list.Element
}

type cacheEntry struct {
	station string
	coords  domain.Coordinates
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

func (c *lruCache) get(station string) (domain.Coordinates, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[station]
	if !ok {
		return domain.Coordinates{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).coords, true
}

func (c *lruCache) put(station string, coords domain.Coordinates) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[station]; ok {
		el.Value.(*cacheEntry).coords = coords
		c.order.MoveToFront(el)
		return
	}

	c.entries[station] = c.order.PushFront(&cacheEntry{station: station, coords: coords})
	if c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).station)
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
