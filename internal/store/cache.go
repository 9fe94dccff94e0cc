package store

import (
	"container/list"
	"sync"
)

// cacheKey identifies a retriever.
type cacheKey struct {
	name string
	k    int
	mode Mode
}

// retrieverCache is an LRU of retrievers keyed by (store name, k, mode).
type retrieverCache struct {
	capacity int
	entries  map[cacheKey]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key       cacheKey
	retriever *Retriever
}

func newRetrieverCache(capacity int) *retrieverCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &retrieverCache{
		capacity: capacity,
		entries:  make(map[cacheKey]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached retriever for key and marks it recently used.
func (c *retrieverCache) Get(key cacheKey) (*Retriever, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).retriever, true
	}
	return nil, false
}

// Add caches r under key unless another retriever got there first, in which
// case that one is returned instead. Entries pushed out by the insert are
// returned for the caller to close.
func (c *retrieverCache) Add(key cacheKey, r *Retriever) (cached *Retriever, evicted []*Retriever) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).retriever, nil
	}

	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, retriever: r})

	for c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		entry := oldest.Value.(*cacheEntry)
		c.lru.Remove(oldest)
		delete(c.entries, entry.key)
		evicted = append(evicted, entry.retriever)
	}
	return r, evicted
}

// InvalidateStore drops every entry for name and returns the dropped
// retrievers.
func (c *retrieverCache) InvalidateStore(name string) []*Retriever {
	c.mu.Lock()
	defer c.mu.Unlock()

	var dropped []*Retriever
	for key, elem := range c.entries {
		if key.name != name {
			continue
		}
		c.lru.Remove(elem)
		delete(c.entries, key)
		dropped = append(dropped, elem.Value.(*cacheEntry).retriever)
	}
	return dropped
}

// Len returns the number of cached retrievers.
func (c *retrieverCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge empties the cache and returns every retriever it held.
func (c *retrieverCache) Purge() []*Retriever {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := make([]*Retriever, 0, c.lru.Len())
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		dropped = append(dropped, elem.Value.(*cacheEntry).retriever)
	}
	c.entries = make(map[cacheKey]*list.Element)
	c.lru.Init()
	return dropped
}
