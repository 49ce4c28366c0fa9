package api

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"amsdb/internal/btree"
	"amsdb/internal/dberr"
)

func newTestManager(t *testing.T) *DatabaseManager {
	t.Helper()
	dm := NewDatabaseManager(t.TempDir(), DatabaseConfig{CacheSize: 32, CacheShards: 4}, nil)
	t.Cleanup(func() { _ = dm.CloseAll() })
	return dm
}

func TestDatabaseManager_CreateAndGet(t *testing.T) {
	dm := newTestManager(t)

	db, err := dm.CreateDatabase("users", dm.Defaults())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dm.DataDir(), "users.db"), db.Filename)

	require.NoError(t, db.Put([]byte("foo"), []byte("bar")))
	got, err := dm.GetDatabase("users")
	require.NoError(t, err)
	assert.Same(t, db, got)

	value, ok, err := got.Get([]byte("foo"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bar", string(value))

	_, err = dm.CreateDatabase("users", dm.Defaults())
	assert.ErrorIs(t, err, ErrDatabaseExists)
}

func TestDatabaseManager_ConnectReopensFile(t *testing.T) {
	dm := newTestManager(t)

	db, err := dm.CreateDatabase("orders", dm.Defaults())
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.NoError(t, db.Put([]byte(fmt.Sprintf("o%04d", i)), []byte(fmt.Sprintf("%d", i))))
	}
	require.NoError(t, dm.CloseDatabase("orders"))

	_, err = dm.GetDatabase("orders")
	assert.ErrorIs(t, err, ErrDatabaseNotFound)
	// a closed instance refuses further use
	_, _, err = db.Get([]byte("o0001"))
	assert.ErrorIs(t, err, ErrDatabaseClosed)

	db, err = dm.ConnectDatabase("orders", dm.Defaults())
	require.NoError(t, err)
	value, ok, err := db.Get([]byte("o0042"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", string(value))
}

func TestDatabaseManager_OpenDatabaseIsIdempotent(t *testing.T) {
	dm := newTestManager(t)

	first, err := dm.OpenDatabase("cache")
	require.NoError(t, err)
	second, err := dm.OpenDatabase("cache")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, []string{"cache"}, dm.ListDatabases())
}

func TestDatabaseManager_InvalidName(t *testing.T) {
	dm := newTestManager(t)

	for _, name := range []string{"", "../etc", "has space", "a/b"} {
		_, err := dm.OpenDatabase(name)
		require.Error(t, err, "name %q", name)
		assert.True(t, dberr.IsValidation(err), "name %q", name)
	}
	assert.Empty(t, dm.ListDatabases())
}

func TestDatabaseManager_ListAndInfo(t *testing.T) {
	dm := newTestManager(t)

	for _, name := range []string{"b", "a", "c"} {
		_, err := dm.OpenDatabase(name)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b", "c"}, dm.ListDatabases())

	db, err := dm.GetDatabase("a")
	require.NoError(t, err)
	for i := 0; i < 300; i++ {
		require.NoError(t, db.Put([]byte(fmt.Sprintf("k%07d", i)), []byte(fmt.Sprintf("v%07d", i))))
	}

	info, err := dm.GetDatabaseInfo("a")
	require.NoError(t, err)
	assert.Equal(t, 300, info.Keys)
	assert.Equal(t, 2, info.Height)
	assert.Equal(t, 2, info.LeafNodes)
	assert.Equal(t, uint64(1), info.LeafSplits)
	assert.Equal(t, 32, info.CacheSize)

	_, err = dm.GetDatabaseInfo("missing")
	assert.ErrorIs(t, err, ErrDatabaseNotFound)

	require.NoError(t, dm.CloseAll())
	assert.Empty(t, dm.ListDatabases())
}

func TestDatabaseInstance_ScanLimit(t *testing.T) {
	dm := newTestManager(t)
	db, err := dm.OpenDatabase("scan")
	require.NoError(t, err)
	for _, k := range []string{"d", "a", "c", "b", "e"} {
		require.NoError(t, db.Put([]byte(k), []byte("v"+k)))
	}

	all, err := db.Scan(nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, KeyValue{Key: "a", Value: "va"}, all[0])

	page, err := db.Scan([]byte("b"), 2)
	require.NoError(t, err)
	assert.Equal(t, []KeyValue{{Key: "b", Value: "vb"}, {Key: "c", Value: "vc"}}, page)
}

func TestDatabaseInstance_ConcurrentReadersWithWriter(t *testing.T) {
	dm := newTestManager(t)
	db, err := dm.OpenDatabase("concurrent")
	require.NoError(t, err)
	for i := 0; i < 500; i++ {
		require.NoError(t, db.Put([]byte(fmt.Sprintf("base%04d", i)), []byte("x")))
	}

	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < 500; i++ {
			if err := db.Put([]byte(fmt.Sprintf("new%04d", i)), []byte("y")); err != nil {
				return err
			}
		}
		return nil
	})
	for r := 0; r < 4; r++ {
		r := r // per-iteration copy (pre-Go 1.22 loop semantics)
		g.Go(func() error {
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("base%04d", i)
				value, ok, err := db.Get([]byte(key))
				if err != nil {
					return err
				}
				if !ok || string(value) != "x" {
					return fmt.Errorf("reader %d: key %s got %q, %v", r, key, value, ok)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1000, stats.Keys)
	require.NoError(t, db.Verify())
}

func TestDatabaseInstance_ScanPrefix(t *testing.T) {
	dm := newTestManager(t)
	db, err := dm.OpenDatabase("prefix")
	require.NoError(t, err)
	for _, k := range []string{"user_2", "admin", "user_1", "usr", "user_10"} {
		require.NoError(t, db.Put([]byte(k), []byte("v"+k)))
	}

	entries, err := db.ScanPrefix([]byte("user_"), 0)
	require.NoError(t, err)
	assert.Equal(t, []KeyValue{
		{Key: "user_1", Value: "vuser_1"},
		{Key: "user_10", Value: "vuser_10"},
		{Key: "user_2", Value: "vuser_2"},
	}, entries)

	entries, err = db.ScanPrefix([]byte("user_"), 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	entries, err = db.ScanPrefix([]byte("zzz"), 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDatabaseInstance_SnapshotReads(t *testing.T) {
	dm := newTestManager(t)
	db, err := dm.OpenDatabase("snap")
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("balance"), []byte("100")))

	snap, err := db.Snapshot()
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("balance"), []byte("50")))
	require.NoError(t, db.Put([]byte("audit"), []byte("withdraw")))

	value, ok, err := snap.Get([]byte("balance"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "100", string(value))
	_, ok, err = snap.Get([]byte("audit"))
	require.NoError(t, err)
	assert.False(t, ok)

	value, _, err = db.Get([]byte("balance"))
	require.NoError(t, err)
	assert.Equal(t, "50", string(value))

	require.NoError(t, dm.CloseDatabase("snap"))
	_, _, err = snap.Get([]byte("balance"))
	assert.ErrorIs(t, err, btree.ErrClosed)
	_, err = db.Snapshot()
	assert.ErrorIs(t, err, ErrDatabaseClosed)
}
