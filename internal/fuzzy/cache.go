package fuzzy

import (
	"container/list"
	"sync"

	"github.com/dshills/cmdpalette/internal/palette"
)

// Cache provides LRU caching for match results.
// It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	lru     *list.List
}

type cacheEntry struct {
	key     string
	results []palette.MatchResult
}

// NewCache creates a new LRU cache with the given maximum size.
func NewCache(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Cache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// Get retrieves cached results for key.
// The second result is false on a miss.
func (c *Cache) Get(key string) ([]palette.MatchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)

	entry := elem.Value.(*cacheEntry) //nolint:errcheck // list only contains *cacheEntry
	return copyResults(entry.results), true
}

// Set stores results for key, evicting the least recently used entry
// when the cache is full.
func (c *Cache) Set(key string, results []palette.MatchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry) //nolint:errcheck // list only contains *cacheEntry
		entry.results = copyResults(results)
		return
	}

	if c.lru.Len() >= c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key) //nolint:errcheck // list only contains *cacheEntry
		}
	}

	c.items[key] = c.lru.PushFront(&cacheEntry{key: key, results: copyResults(results)})
}

// Clear removes all entries from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.lru.Init()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// copyResults creates a deep copy of results so cached spans cannot be
// modified by callers.
func copyResults(results []palette.MatchResult) []palette.MatchResult {
	copied := make([]palette.MatchResult, len(results))
	for i, r := range results {
		copied[i] = r
		if r.Spans != nil {
			copied[i].Spans = append([]palette.Span(nil), r.Spans...)
		}
	}
	return copied
}
