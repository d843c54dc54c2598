package orbitpath

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/orbitrack/internal/metrics"
)

// pathKey identifies a history path: one object, one rounded center.
type pathKey struct {
	id     int
	center time.Time
}

type cacheEntry struct {
	path    Path
	lastUse uint64
}

// PathCache memoizes history paths. Safe for concurrent use. When full, the
// least recently used path is evicted.
type PathCache struct {
	mu       sync.RWMutex
	entries  map[pathKey]*cacheEntry
	step     time.Duration
	capacity int
	logger   *slog.Logger

	clock     atomic.Uint64
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewPathCache creates a cache keyed on centers rounded down to step.
func NewPathCache(step time.Duration, capacity int, logger *slog.Logger) *PathCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &PathCache{
		entries:  make(map[pathKey]*cacheEntry),
		step:     step,
		capacity: capacity,
		logger:   logger,
	}
}

// RoundToStep rounds a timestamp down to the nearest step boundary, in UTC,
// so that nearby centers share one cache entry.
func (c *PathCache) RoundToStep(t time.Time) time.Time {
	return t.UTC().Truncate(c.step)
}

// Get returns the cached path for id around center.
func (c *PathCache) Get(id int, center time.Time) (Path, bool) {
	key := pathKey{id: id, center: c.RoundToStep(center)}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		// lastUse is only an eviction hint; a racy update is harmless.
		atomic.StoreUint64(&entry.lastUse, c.clock.Add(1))
		c.hits.Add(1)
		metrics.IncPathCacheHits()
		return entry.path, true
	}

	c.misses.Add(1)
	metrics.IncPathCacheMisses()
	return Path{}, false
}

// Put stores p, evicting the least recently used entry when full.
func (c *PathCache) Put(p Path) {
	key := pathKey{id: p.ObjectID, center: c.RoundToStep(p.Center)}
	entry := &cacheEntry{path: p, lastUse: c.clock.Add(1)}

	var evicted int
	c.mu.Lock()
	if _, exists := c.entries[key]; !exists {
		for len(c.entries) >= c.capacity {
			c.evictOldestLocked()
			evicted++
		}
	}
	c.entries[key] = entry
	c.mu.Unlock()

	if evicted > 0 {
		c.evictions.Add(int64(evicted))
		metrics.AddPathCacheEvictions(evicted)
	}
}

func (c *PathCache) evictOldestLocked() {
	var (
		oldest   pathKey
		oldestAt uint64
		found    bool
	)
	for k, e := range c.entries {
		use := atomic.LoadUint64(&e.lastUse)
		if !found || use < oldestAt {
			oldest, oldestAt, found = k, use, true
		}
	}
	if found {
		delete(c.entries, oldest)
	}
}

// Forget drops every cached path for the given objects.
func (c *PathCache) Forget(ids ...int) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[int]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	var removed int
	c.mu.Lock()
	for k := range c.entries {
		if drop[k.id] {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.logger.Debug("path cache invalidated", "entries_removed", removed)
	}
}

// CacheStats holds cache statistics.
type CacheStats struct {
	Entries   int   `json:"entries"`
	Capacity  int   `json:"capacity"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// Stats returns current cache statistics.
func (c *PathCache) Stats() CacheStats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()

	return CacheStats{
		Entries:   n,
		Capacity:  c.capacity,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
