package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCacheBasic(t *testing.T) {
	cache := NewLRUCache(3)
	p1, p2, p3, p4 := filledPage(1), filledPage(2), filledPage(3), filledPage(4)

	cache.Put(1, p1)
	cache.Put(2, p2)
	cache.Put(3, p3)

	got, ok := cache.Get(1)
	require.True(t, ok)
	assert.Same(t, p1, got)

	// page 2 is now the least recently used
	cache.Put(4, p4)

	_, ok = cache.Get(2)
	assert.False(t, ok, "page 2 should have been evicted")

	for index, want := range map[PageIndex]*Page{1: p1, 3: p3, 4: p4} {
		got, ok := cache.Get(index)
		require.True(t, ok, "page %d", index)
		assert.Same(t, want, got)
	}
}

func TestLRUCacheStats(t *testing.T) {
	cache := NewLRUCache(2)

	cache.Put(1, filledPage(1))
	cache.Put(2, filledPage(2))
	cache.Get(1)
	cache.Get(3)
	cache.Put(3, filledPage(3))

	stats := cache.GetStats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Evictions)
	assert.Equal(t, 2, stats.Size)
}

func TestLRUCacheUpdate(t *testing.T) {
	cache := NewLRUCache(3)
	updated := filledPage(9)

	cache.Put(1, filledPage(1))
	cache.Put(1, updated)

	got, ok := cache.Get(1)
	require.True(t, ok)
	assert.Same(t, updated, got)
	assert.Equal(t, 1, cache.GetStats().Size)
}

func TestLRUCacheClear(t *testing.T) {
	cache := NewLRUCache(3)

	cache.Put(1, filledPage(1))
	cache.Put(2, filledPage(2))
	cache.Clear()

	_, ok := cache.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.GetStats().Size)
}

func TestShardedCache_Capacity(t *testing.T) {
	tests := []struct {
		name       string
		maxSize    int
		shards     int
		wantShards int
	}{
		{"defaults", DefaultCacheSize, DefaultCacheShards, 8},
		{"rounds shards up", 64, 5, 8},
		{"never more shards than pages", 3, 16, 2},
		{"single page", 1, 8, 1},
		{"zero size uses default", 0, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewShardedCache(tt.maxSize, tt.shards)
			assert.Equal(t, tt.wantShards, c.Shards())

			want := tt.maxSize
			if want <= 0 {
				want = DefaultCacheSize
			}
			assert.Equal(t, want, c.GetMaxSize())
		})
	}
}

func TestShardedCache_BoundedAndSummed(t *testing.T) {
	c := NewShardedCache(32, 4)
	for i := 0; i < 200; i++ {
		c.Put(PageIndex(i), filledPage(byte(i)))
	}

	stats := c.GetStats()
	assert.LessOrEqual(t, stats.Size, 32)
	assert.Equal(t, uint64(200-stats.Size), stats.Evictions)

	// a page that is still cached comes back intact
	c.Put(500, filledPage(7))
	got, ok := c.Get(500)
	require.True(t, ok)
	assert.Equal(t, byte(7), got[0])

	c.Clear()
	assert.Zero(t, c.GetStats().Size)
}
