package core

import (
	"sync"
	"time"
)

// CacheEntry is an immutable {key, value} snapshot. Entries are replaced,
// never mutated in place, so a reader holding a snapshot never observes a
// partially updated pair.
type CacheEntry struct {
	Key         string
	Value       any
	PublishedAt time.Time
}

// CacheStats is a consistent copy of the cache counters.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Publishes int64
	Entries   int
}

// ResultCache is a keyed memoization layer for task results. A single mutex
// guards the entry map and the hit/miss counters: the counters summarize
// lookups, so a counter update must be atomic with the lookup it counts —
// they form one invariant group.
//
// Long-running computations never run under the cache lock; see
// GetOrCompute.
type ResultCache struct {
	mu        sync.Mutex
	entries   map[string]*CacheEntry
	hits      int64
	misses    int64
	publishes int64
}

func NewResultCache() *ResultCache {
	return &ResultCache{
		entries: make(map[string]*CacheEntry),
	}
}

// Lookup returns the currently published value for key. Readers obtain the
// snapshot reference under the lock; the snapshot itself is immutable, so no
// further synchronization is needed to use it.
func (c *ResultCache) Lookup(key string) (any, bool) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()

	if !ok {
		return nil, false
	}
	return entry.Value, true
}

// Snapshot returns the full published entry for key, if any.
func (c *ResultCache) Snapshot(key string) (CacheEntry, bool) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()

	if !ok {
		return CacheEntry{}, false
	}
	return *entry, true
}

// Publish atomically replaces the entry for key with a fresh immutable
// snapshot.
func (c *ResultCache) Publish(key string, value any) {
	entry := &CacheEntry{Key: key, Value: value, PublishedAt: time.Now()}

	c.mu.Lock()
	c.entries[key] = entry
	c.publishes++
	c.mu.Unlock()
}

// PutIfAbsent publishes value for key only when no entry exists. It returns
// the value that is published after the call and whether this call won the
// publish. Concurrent calls for the same key converge: exactly one wins and
// every later reader observes the winner.
func (c *ResultCache) PutIfAbsent(key string, value any) (any, bool) {
	c.mu.Lock()
	if existing, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return existing.Value, false
	}
	entry := &CacheEntry{Key: key, Value: value, PublishedAt: time.Now()}
	c.entries[key] = entry
	c.publishes++
	c.mu.Unlock()
	return value, true
}

// GetOrCompute returns the published value for key, computing and publishing
// it on a miss. The computation runs outside the cache lock so concurrent
// readers of other keys (or of a stale snapshot) are never blocked by it.
// If several goroutines miss concurrently, each computes, but only one
// result is installed; the losers return the winner's value.
func (c *ResultCache) GetOrCompute(key string, compute func() (any, error)) (any, error) {
	if v, ok := c.Lookup(key); ok {
		return v, nil
	}

	v, err := compute()
	if err != nil {
		return nil, err
	}

	published, _ := c.PutIfAbsent(key, v)
	return published, nil
}

// Invalidate removes the entry for key. Readers holding the old snapshot
// keep a consistent pair.
func (c *ResultCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of published entries.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a consistent copy of the counters.
func (c *ResultCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Publishes: c.publishes,
		Entries:   len(c.entries),
	}
}
