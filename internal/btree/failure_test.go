package btree

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amsdb/internal/dberr"
	"amsdb/internal/page"
)

var errDiskFull = errors.New("no space left on device")

// faultyPager fails AppendPage once appendsLeft successful appends are used up.
// A negative appendsLeft never fails.
type faultyPager struct {
	*page.PageManager
	appendsLeft int
}

func (p *faultyPager) AppendPage(pg *page.Page) (page.PageIndex, error) {
	if p.appendsLeft == 0 {
		return 0, dberr.IO("pager.append_page", errDiskFull)
	}
	if p.appendsLeft > 0 {
		p.appendsLeft--
	}
	return p.PageManager.AppendPage(pg)
}

func TestBPlusTree_FailedAppendKeepsRoot(t *testing.T) {
	tests := []struct {
		name        string
		appendsLeft int
		orphans     uint64
	}{
		{"first page fails", 0, 0},
		{"leaf written, root fails", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "test.db")
			pm, err := page.NewPageManager(path, true)
			require.NoError(t, err)
			pager := &faultyPager{PageManager: pm, appendsLeft: -1}
			tree, err := NewBPlusTreeWithPager(pager)
			require.NoError(t, err)

			// two levels: a put that fits its leaf appends the leaf and the root
			for i := 0; i < 300; i++ {
				require.NoError(t, tree.Put(K(i), V(i)))
			}
			root, _ := tree.Root()
			pages := pm.PageCount()
			puts := tree.Counters().Puts

			pager.appendsLeft = tt.appendsLeft
			err = tree.Put(K(1000), V(1000))
			require.Error(t, err)
			assert.True(t, dberr.IsIO(err))
			assert.ErrorIs(t, err, errDiskFull)

			after, _ := tree.Root()
			assert.Equal(t, root, after)
			assert.Equal(t, pages+tt.orphans, pm.PageCount())
			assert.Equal(t, puts, tree.Counters().Puts)

			_, ok, err := tree.Get(K(1000))
			require.NoError(t, err)
			assert.False(t, ok)
			requireValue(t, tree, K(299), V(299))
			require.NoError(t, tree.Verify())
			require.NoError(t, tree.Sync())
			require.NoError(t, tree.Close())

			// orphaned pages never carry the root flag, so recovery ignores them
			reopened := openTestTree(t, path, false)
			got, ok := reopened.Root()
			require.True(t, ok)
			assert.Equal(t, root, got)

			require.NoError(t, reopened.Put(K(1000), V(1000)))
			requireValue(t, reopened, K(1000), V(1000))
			requireValue(t, reopened, K(0), V(0))
		})
	}
}

func TestBPlusTree_ReadFailureKeepsRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	pm, err := page.NewPageManager(path, true, page.WithCacheSize(1), page.WithCacheShards(1))
	require.NoError(t, err)
	tree, err := NewBPlusTreeWithPager(pm)
	require.NoError(t, err)
	for i := 0; i < 300; i++ {
		require.NoError(t, tree.Put(K(i), V(i)))
	}
	root, _ := tree.Root()
	pages := pm.PageCount()

	// the tree still believes its pager is open
	require.NoError(t, pm.Close())

	err = tree.Put(K(1000), V(1000))
	require.Error(t, err)
	assert.True(t, dberr.IsIO(err))

	after, _ := tree.Root()
	assert.Equal(t, root, after)
	assert.Equal(t, pages, pm.PageCount())
}
