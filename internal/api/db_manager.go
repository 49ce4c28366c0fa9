package api

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"amsdb/internal/btree"
	"amsdb/internal/logging"
	"amsdb/internal/page"
)

var (
	// ErrDatabaseNotFound is returned for a name that is not open in the manager.
	ErrDatabaseNotFound = errors.New("database not found")
	// ErrDatabaseExists is returned when opening a name that is already open.
	ErrDatabaseExists = errors.New("database already open")
	// ErrDatabaseClosed is returned by an instance after Close.
	ErrDatabaseClosed = errors.New("database closed")
)

// DatabaseInstance is one open database.
//
// Puts are serialized by writeMu. Reads run against a snapshot of the tree and
// never wait for a put. mu only guards the instance lifecycle: every call holds
// it shared, and Close takes it exclusively.
type DatabaseInstance struct {
	Name     string
	Filename string
	Config   DatabaseConfig

	mu      sync.RWMutex
	writeMu sync.Mutex
	tree    *btree.BPlusTree
}

// Get returns the value stored under key.
func (db *DatabaseInstance) Get(key []byte) ([]byte, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.tree == nil {
		return nil, false, ErrDatabaseClosed
	}
	return db.tree.Snapshot().Get(key)
}

// Put stores value under key.
func (db *DatabaseInstance) Put(key, value []byte) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.tree == nil {
		return ErrDatabaseClosed
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	return db.tree.Put(key, value)
}

// Snapshot pins the current state of the database for a series of reads.
// Reads on the snapshot fail with btree.ErrClosed once the database is closed.
func (db *DatabaseInstance) Snapshot() (*btree.Snapshot, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.tree == nil {
		return nil, ErrDatabaseClosed
	}
	return db.tree.Snapshot(), nil
}

// Scan returns up to limit entries with key >= from in key order. A limit of
// zero or less means no limit.
func (db *DatabaseInstance) Scan(from []byte, limit int) ([]KeyValue, error) {
	return db.scan(limit, func(snap *btree.Snapshot, fn func(key, value []byte) bool) error {
		return snap.Ascend(from, fn)
	})
}

// ScanPrefix returns up to limit entries whose key starts with prefix, in key order.
func (db *DatabaseInstance) ScanPrefix(prefix []byte, limit int) ([]KeyValue, error) {
	return db.scan(limit, func(snap *btree.Snapshot, fn func(key, value []byte) bool) error {
		return snap.AscendPrefix(prefix, fn)
	})
}

func (db *DatabaseInstance) scan(limit int, iterate func(*btree.Snapshot, func(key, value []byte) bool) error) ([]KeyValue, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.tree == nil {
		return nil, ErrDatabaseClosed
	}

	entries := make([]KeyValue, 0)
	err := iterate(db.tree.Snapshot(), func(key, value []byte) bool {
		entries = append(entries, KeyValue{Key: string(key), Value: string(value)})
		return limit <= 0 || len(entries) < limit
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Stats returns the tree statistics.
func (db *DatabaseInstance) Stats() (btree.TreeStats, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.tree == nil {
		return btree.TreeStats{}, ErrDatabaseClosed
	}
	return db.tree.Stats()
}

// Verify checks the tree structure.
func (db *DatabaseInstance) Verify() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.tree == nil {
		return ErrDatabaseClosed
	}
	return db.tree.Verify()
}

// Sync flushes the database file.
func (db *DatabaseInstance) Sync() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.tree == nil {
		return ErrDatabaseClosed
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	return db.tree.Sync()
}

// Close syncs and closes the database instance
func (db *DatabaseInstance) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.tree == nil {
		return nil
	}
	syncErr := db.tree.Sync()
	closeErr := db.tree.Close()
	db.tree = nil
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

// DatabaseManager manages named databases stored as <dataDir>/<name>.db
type DatabaseManager struct {
	dataDir   string
	defaults  DatabaseConfig
	log       *zap.Logger
	treeLog   *zap.Logger
	databases map[string]*DatabaseInstance
	mu        sync.RWMutex
}

// NewDatabaseManager creates a new database manager. Databases opened through
// it use defaults unless a call supplies its own config.
func NewDatabaseManager(dataDir string, defaults DatabaseConfig, log *zap.Logger) *DatabaseManager {
	return &DatabaseManager{
		dataDir:   dataDir,
		defaults:  defaults,
		log:       logging.WithComponent(log, "db_manager"),
		treeLog:   log,
		databases: make(map[string]*DatabaseInstance),
	}
}

// DataDir returns the directory holding the database files.
func (dm *DatabaseManager) DataDir() string {
	return dm.dataDir
}

// Defaults returns the config used when a call does not supply one.
func (dm *DatabaseManager) Defaults() DatabaseConfig {
	return dm.defaults
}

// Filename returns the path of the file backing database name.
func (dm *DatabaseManager) Filename(name string) string {
	return filepath.Join(dm.dataDir, name+".db")
}

func (dm *DatabaseManager) open(name string, config DatabaseConfig, truncate bool) (*DatabaseInstance, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if _, exists := dm.databases[name]; exists {
		return nil, errors.Wrapf(ErrDatabaseExists, "database '%s'", name)
	}
	if err := os.MkdirAll(dm.dataDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create data dir %s", dm.dataDir)
	}

	filename := dm.Filename(name)
	tree, err := btree.NewBPlusTree(filename, truncate,
		btree.WithLogger(logging.WithDatabase(dm.treeLog, name)),
		btree.WithSyncWrites(config.SyncWrites),
		btree.WithPagerOptions(
			page.WithCacheSize(config.CacheSize),
			page.WithCacheShards(config.CacheShards),
		))
	if err != nil {
		return nil, errors.WithMessagef(err, "open database '%s'", name)
	}

	db := &DatabaseInstance{
		Name:     name,
		Filename: filename,
		Config:   config,
		tree:     tree,
	}
	dm.databases[name] = db
	dm.log.Info("database opened", zap.String("database", name), zap.Bool("truncate", truncate))
	return db, nil
}

// CreateDatabase creates a new, empty database, replacing any file of the same name.
func (dm *DatabaseManager) CreateDatabase(name string, config DatabaseConfig) (*DatabaseInstance, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.open(name, config, true)
}

// ConnectDatabase opens an existing database (loads from disk), creating the
// file if it does not exist yet.
func (dm *DatabaseManager) ConnectDatabase(name string, config DatabaseConfig) (*DatabaseInstance, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.open(name, config, false)
}

// OpenDatabase returns the open instance for name, connecting it with the
// manager defaults first when needed.
func (dm *DatabaseManager) OpenDatabase(name string) (*DatabaseInstance, error) {
	dm.mu.RLock()
	db, exists := dm.databases[name]
	dm.mu.RUnlock()
	if exists {
		return db, nil
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()
	if db, exists := dm.databases[name]; exists {
		return db, nil
	}
	return dm.open(name, dm.defaults, false)
}

// GetDatabase retrieves an open database instance by name
func (dm *DatabaseManager) GetDatabase(name string) (*DatabaseInstance, error) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	db, exists := dm.databases[name]
	if !exists {
		return nil, errors.Wrapf(ErrDatabaseNotFound, "database '%s'", name)
	}
	return db, nil
}

// CloseDatabase closes a database connection and removes it from the manager
func (dm *DatabaseManager) CloseDatabase(name string) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	db, exists := dm.databases[name]
	if !exists {
		return errors.Wrapf(ErrDatabaseNotFound, "database '%s'", name)
	}
	delete(dm.databases, name)

	if err := db.Close(); err != nil {
		return errors.WithMessagef(err, "close database '%s'", name)
	}
	dm.log.Info("database closed", zap.String("database", name))
	return nil
}

// ListDatabases returns the names of all open databases, sorted
func (dm *DatabaseManager) ListDatabases() []string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	names := make([]string, 0, len(dm.databases))
	for name := range dm.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetDatabaseInfo returns information about an open database
func (dm *DatabaseManager) GetDatabaseInfo(name string) (*DatabaseInfo, error) {
	db, err := dm.GetDatabase(name)
	if err != nil {
		return nil, err
	}

	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.tree == nil {
		return nil, ErrDatabaseClosed
	}

	stats, err := db.tree.Stats()
	if err != nil {
		return nil, err
	}
	counters := db.tree.Counters()

	return &DatabaseInfo{
		Name:        name,
		Filename:    db.Filename,
		PageSize:    page.PageSize,
		CacheSize:   db.tree.GetPager().GetMaxCacheSize(),
		SyncWrites:  db.Config.SyncWrites,
		Empty:       stats.Empty,
		RootPage:    stats.Root,
		Height:      stats.Height,
		Keys:        stats.Keys,
		LeafNodes:   stats.LeafNodes,
		BranchNodes: stats.BranchNodes,
		FilePages:   stats.FilePages,
		UsedBytes:   stats.UsedBytes,
		LeafSplits:  counters.LeafSplits,
		RootSplits:  counters.RootSplits,
	}, nil
}

// CloseAll closes all database instances
func (dm *DatabaseManager) CloseAll() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	var firstErr error
	for name, db := range dm.databases {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = errors.WithMessagef(err, "close database '%s'", name)
		}
		delete(dm.databases, name)
	}
	return firstErr
}
