package btree

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestSnapshot_IsolatedFromLaterPuts(t *testing.T) {
	tree := openTestTree(t, filepath.Join(t.TempDir(), "test.db"), true)
	for i := 0; i < 300; i++ {
		require.NoError(t, tree.Put(K(i), V(i)))
	}

	snap := tree.Snapshot()
	pinned, ok := snap.Root()
	require.True(t, ok)

	for i := 0; i < 300; i++ {
		require.NoError(t, tree.Put(K(i), []byte("rewritten")))
	}
	for i := 300; i < 600; i++ {
		require.NoError(t, tree.Put(K(i), V(i)))
	}

	current, _ := tree.Root()
	assert.NotEqual(t, pinned, current)

	for i := 0; i < 300; i += 11 {
		got, ok, err := snap.Get(K(i))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, string(V(i)), string(got))
	}
	_, ok, err := snap.Get(K(450))
	require.NoError(t, err)
	assert.False(t, ok)
	requireValue(t, tree, K(0), []byte("rewritten"))

	var seen int
	require.NoError(t, snap.Ascend(nil, func(_, _ []byte) bool {
		seen++
		return true
	}))
	assert.Equal(t, 300, seen)

	old, err := snap.Stats()
	require.NoError(t, err)
	assert.Equal(t, 300, old.Keys)
	now, err := tree.Stats()
	require.NoError(t, err)
	assert.Equal(t, 600, now.Keys)
	assert.Equal(t, old.FilePages, now.FilePages)
	require.NoError(t, snap.Verify())
}

func TestSnapshot_OfEmptyTree(t *testing.T) {
	tree := openTestTree(t, filepath.Join(t.TempDir(), "test.db"), true)
	snap := tree.Snapshot()

	require.NoError(t, tree.Put([]byte("foo"), []byte("bar")))

	_, ok := snap.Root()
	assert.False(t, ok)
	_, found, err := snap.Get([]byte("foo"))
	require.NoError(t, err)
	assert.False(t, found)

	stats, err := snap.Stats()
	require.NoError(t, err)
	assert.True(t, stats.Empty)
}

func TestSnapshot_ReadersDoNotBlockWriter(t *testing.T) {
	tree := openTestTree(t, filepath.Join(t.TempDir(), "test.db"), true)
	for i := 0; i < 300; i++ {
		require.NoError(t, tree.Put(K(i), V(i)))
	}

	var g errgroup.Group
	g.Go(func() error {
		for i := 300; i < 1500; i++ {
			if err := tree.Put(K(i), V(i)); err != nil {
				return err
			}
		}
		return nil
	})
	for r := 0; r < 4; r++ {
		r := r // per-iteration copy (pre-Go 1.22 loop semantics)
		g.Go(func() error {
			last := 0
			for n := 0; n < 50; n++ {
				snap := tree.Snapshot()
				for i := r; i < 300; i += 17 {
					got, ok, err := snap.Get(K(i))
					if err != nil {
						return err
					}
					if !ok || string(got) != string(V(i)) {
						return fmt.Errorf("key %s: got %q, %v", K(i), got, ok)
					}
				}

				count := 0
				if err := snap.Ascend(nil, func(_, _ []byte) bool {
					count++
					return true
				}); err != nil {
					return err
				}
				if count < last {
					return fmt.Errorf("snapshot shrank from %d to %d keys", last, count)
				}
				last = count
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, tree.Verify())
}

func TestBPlusTree_AscendPrefix(t *testing.T) {
	tree := openTestTree(t, filepath.Join(t.TempDir(), "test.db"), true)
	for _, k := range []string{"user_2", "admin", "user_1", "usr", "user", "user_10", "zeta"} {
		require.NoError(t, tree.Put([]byte(k), []byte("v")))
	}
	// spread the prefix over several leaves
	for i := 0; i < 400; i++ {
		require.NoError(t, tree.Put([]byte(fmt.Sprintf("item_%04d", i)), []byte("v")))
	}

	collect := func(prefix string) []string {
		var keys []string
		require.NoError(t, tree.AscendPrefix([]byte(prefix), func(key, _ []byte) bool {
			keys = append(keys, string(key))
			return true
		}))
		return keys
	}

	assert.Equal(t, []string{"user", "user_1", "user_10", "user_2"}, collect("user"))
	assert.Equal(t, []string{"user_1", "user_10"}, collect("user_1"))
	assert.Empty(t, collect("nope"))
	assert.Len(t, collect("item_"), 400)
	assert.Len(t, collect("item_01"), 100)
	assert.Len(t, collect(""), 407)
}

func TestBPlusTree_ClosedTree(t *testing.T) {
	tree, err := NewBPlusTree(filepath.Join(t.TempDir(), "test.db"), true)
	require.NoError(t, err)
	require.NoError(t, tree.Put([]byte("foo"), []byte("bar")))
	snap := tree.Snapshot()

	require.NoError(t, tree.Close())
	require.NoError(t, tree.Close())

	_, _, err = tree.Get([]byte("foo"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, tree.Put([]byte("a"), []byte("b")), ErrClosed)
	_, err = tree.Stats()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, tree.Verify(), ErrClosed)
	assert.ErrorIs(t, tree.Sync(), ErrClosed)
	assert.ErrorIs(t, tree.Scan(func(_, _ []byte) bool { return true }), ErrClosed)

	_, _, err = snap.Get([]byte("foo"))
	assert.ErrorIs(t, err, ErrClosed)
}
