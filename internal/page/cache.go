package page

import (
	"container/list"
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// CacheEntry represents a single entry in the LRU cache
type CacheEntry struct {
	index PageIndex
	page  *Page
}

// LRUCache is a thread-safe LRU (Least Recently Used) cache of pages.
// Pages are immutable, so a cached page never needs invalidating.
type LRUCache struct {
	mu      sync.Mutex
	maxSize int
	cache   map[PageIndex]*list.Element // Maps index to list element
	lruList *list.List                  // Front is most recently used
	stats   CacheStats
}

// CacheStats tracks cache performance metrics
type CacheStats struct {
	Hits      uint64 // Number of cache hits
	Misses    uint64 // Number of cache misses
	Evictions uint64 // Number of pages evicted
	Size      int    // Current cache size
}

// NewLRUCache creates a new LRU cache holding at most maxSize pages
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &LRUCache{
		maxSize: maxSize,
		cache:   make(map[PageIndex]*list.Element),
		lruList: list.New(),
	}
}

// Get retrieves a page from the cache, moving it to the front.
func (c *LRUCache) Get(index PageIndex) (*Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[index]; ok {
		c.lruList.MoveToFront(elem)
		c.stats.Hits++
		return elem.Value.(*CacheEntry).page, true
	}

	c.stats.Misses++
	return nil, false
}

// Put adds a page to the cache, evicting the least recently used page when full.
func (c *LRUCache) Put(index PageIndex, p *Page) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[index]; ok {
		elem.Value.(*CacheEntry).page = p
		c.lruList.MoveToFront(elem)
		return
	}

	if c.stats.Size >= c.maxSize {
		if back := c.lruList.Back(); back != nil {
			delete(c.cache, back.Value.(*CacheEntry).index)
			c.lruList.Remove(back)
			c.stats.Evictions++
			c.stats.Size--
		}
	}

	c.cache[index] = c.lruList.PushFront(&CacheEntry{index: index, page: p})
	c.stats.Size++
}

// Clear removes all entries from the cache
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[PageIndex]*list.Element)
	c.lruList = list.New()
	c.stats.Size = 0
}

// GetStats returns current cache statistics
func (c *LRUCache) GetStats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// GetMaxSize returns the maximum cache size
func (c *LRUCache) GetMaxSize() int {
	return c.maxSize
}

// ShardedCache spreads pages over independent LRU shards so concurrent
// readers rarely contend on the same lock. The shard count is a power of two.
type ShardedCache struct {
	shards []*LRUCache
	mask   uint64
}

// NewShardedCache splits a capacity of maxSize pages across shards LRU caches.
// The shard count never exceeds maxSize, so every shard holds at least one page.
func NewShardedCache(maxSize, shards int) *ShardedCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	n := ceilPowerOfTwo(max(shards, 1))
	if n > maxSize {
		n = floorPowerOfTwo(maxSize)
	}

	c := &ShardedCache{
		shards: make([]*LRUCache, n),
		mask:   uint64(n - 1),
	}
	per, extra := maxSize/n, maxSize%n
	for i := range c.shards {
		size := per
		if i < extra {
			size++
		}
		c.shards[i] = NewLRUCache(size)
	}
	return c
}

func (c *ShardedCache) shard(index PageIndex) *LRUCache {
	// mix the index so runs of consecutive pages spread over the shards
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], index)
	return c.shards[xxhash.Sum64(b[:])&c.mask]
}

func (c *ShardedCache) Get(index PageIndex) (*Page, bool) { return c.shard(index).Get(index) }

func (c *ShardedCache) Put(index PageIndex, p *Page) { c.shard(index).Put(index, p) }

func (c *ShardedCache) Clear() {
	for _, s := range c.shards {
		s.Clear()
	}
}

// Shards returns the number of shards.
func (c *ShardedCache) Shards() int { return len(c.shards) }

// GetStats sums the statistics of every shard.
func (c *ShardedCache) GetStats() CacheStats {
	var total CacheStats
	for _, s := range c.shards {
		st := s.GetStats()
		total.Hits += st.Hits
		total.Misses += st.Misses
		total.Evictions += st.Evictions
		total.Size += st.Size
	}
	return total
}

// GetMaxSize returns the total capacity over all shards.
func (c *ShardedCache) GetMaxSize() int {
	total := 0
	for _, s := range c.shards {
		total += s.GetMaxSize()
	}
	return total
}

func ceilPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func floorPowerOfTwo(n int) int {
	p := 1
	for p<<1 <= n {
		p <<= 1
	}
	return p
}
