package coordinator

import (
	"sort"
	"strings"
	"sync"
)

// DefaultQueryCacheCapacity is the default number of query embeddings kept
// in memory. At 384 dimensions * 4 bytes * 200 entries ≈ 300KB.
const DefaultQueryCacheCapacity = 200

// normalizeQuery produces the cache key: surrounding whitespace stripped and
// case folded, so "Milk " and "milk" share one entry.
func normalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

type cacheEntry struct {
	vector     []float32
	lastAccess uint64
}

// queryCache holds computed query embeddings keyed by normalized query.
// When the cache grows past capacity the oldest fifth of entries by last
// access is evicted in one sweep, so a burst of fresh queries does not
// thrash the structure one eviction at a time.
type queryCache struct {
	mu       sync.Mutex
	capacity int
	tick     uint64
	entries  map[string]*cacheEntry
}

func newQueryCache(capacity int) *queryCache {
	if capacity <= 0 {
		capacity = DefaultQueryCacheCapacity
	}
	return &queryCache{
		capacity: capacity,
		entries:  make(map[string]*cacheEntry, capacity),
	}
}

// Get returns the cached embedding for the normalized key and refreshes its
// access time.
func (c *queryCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.tick++
	entry.lastAccess = c.tick
	return entry.vector, true
}

// Put stores an embedding, evicting the stalest 20% of entries when the
// cache exceeds capacity.
func (c *queryCache) Put(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick++
	if entry, ok := c.entries[key]; ok {
		entry.vector = vector
		entry.lastAccess = c.tick
		return
	}

	c.entries[key] = &cacheEntry{vector: vector, lastAccess: c.tick}
	if len(c.entries) > c.capacity {
		c.evictOldest()
	}
}

func (c *queryCache) evictOldest() {
	count := c.capacity / 5
	if count < 1 {
		count = 1
	}

	type aged struct {
		key        string
		lastAccess uint64
	}
	all := make([]aged, 0, len(c.entries))
	for key, entry := range c.entries {
		all = append(all, aged{key: key, lastAccess: entry.lastAccess})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].lastAccess < all[j].lastAccess })

	if count > len(all) {
		count = len(all)
	}
	for _, victim := range all[:count] {
		delete(c.entries, victim.key)
	}
}

// Len reports the number of cached entries.
func (c *queryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
