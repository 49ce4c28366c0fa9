package page

import (
	"io"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"amsdb/internal/dberr"
)

// DefaultCacheSize is the default maximum number of pages to cache in memory
const DefaultCacheSize = 100

// DefaultCacheShards is the default number of page cache shards
const DefaultCacheShards = 8

var (
	// ErrPageOutOfRange is returned when reading an index at or past the page count.
	ErrPageOutOfRange = errors.New("page index out of range")
	// ErrReadOnly is returned by AppendPage on a pager opened with WithReadOnly.
	ErrReadOnly = errors.New("page file opened read-only")
)

// PageManager is an append-only page store over a single file.
// Pages are appended sequentially and stored in fixed-size slots; page i lives
// at offset i*PageSize. Read pages are kept in a sharded LRU cache.
//
// A PageManager has a single mutator. Reads (ReadPage, ReadPageFromDisk,
// PageCount) may run concurrently with each other and with AppendPage: an
// append only touches bytes past every page a reader can see.
type PageManager struct {
	file      *os.File
	readOnly  bool
	pageCount atomic.Uint64
	cache     *ShardedCache
	loads     singleflight.Group
	log       *zap.Logger
}

type options struct {
	cacheSize   int
	cacheShards int
	readOnly    bool
	log         *zap.Logger
}

// Option configures a PageManager.
type Option func(*options)

// WithCacheSize sets the maximum number of cached pages.
func WithCacheSize(pages int) Option {
	return func(o *options) { o.cacheSize = pages }
}

// WithCacheShards sets the number of cache shards, rounded up to a power of two.
func WithCacheShards(n int) Option {
	return func(o *options) { o.cacheShards = n }
}

// WithReadOnly opens the file without write access. The file is never
// modified: a partial trailing page is ignored instead of padded, and
// AppendPage fails with ErrReadOnly.
func WithReadOnly() Option {
	return func(o *options) { o.readOnly = true }
}

// WithLogger sets the logger used for recovery and I/O events.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// NewPageManager opens or creates the page file.
//
// Algorithm steps:
// 1. Truncate - If requested, remove any existing file (a missing file is fine)
// 2. Open file - Open read/write, creating it if absent
// 3. Pad - If the length is not a whole number of pages (a crash mid-append),
// zero-fill up to the next page boundary and fsync
// 4. Count - pageCount = length / PageSize
func NewPageManager(filename string, truncate bool, opts ...Option) (*PageManager, error) {
	o := options{cacheSize: DefaultCacheSize, cacheShards: DefaultCacheShards}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}

	flag := os.O_RDWR | os.O_CREATE
	if o.readOnly {
		if truncate {
			return nil, dberr.Validationf("pager.open", "cannot truncate %s in read-only mode", filename)
		}
		flag = os.O_RDONLY
	}

	if truncate {
		if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
			return nil, dberr.IO("pager.open", errors.Wrapf(err, "remove %s", filename))
		}
	}

	f, err := os.OpenFile(filename, flag, 0o644)
	if err != nil {
		return nil, dberr.IO("pager.open", errors.Wrapf(err, "open %s", filename))
	}

	pm := &PageManager{
		file:     f,
		readOnly: o.readOnly,
		cache:    NewShardedCache(o.cacheSize, o.cacheShards),
		log:      o.log.With(zap.String("file", filename)),
	}

	if err := pm.padPartialPage(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return pm, nil
}

func (pm *PageManager) padPartialPage() error {
	fi, err := pm.file.Stat()
	if err != nil {
		return dberr.IO("pager.open", errors.Wrap(err, "stat"))
	}

	size := fi.Size()
	if partial := size % PageSize; partial != 0 && pm.readOnly {
		pm.log.Warn("partial page ignored in read-only mode", zap.Int64("partial_bytes", partial))
		size -= partial
	} else if partial != 0 {
		pm.log.Warn("partial page detected, padding to the next page boundary",
			zap.Int64("partial_bytes", partial),
			zap.Int("page_size", PageSize))

		var zero Page
		if _, err := pm.file.WriteAt(zero[partial:], size); err != nil {
			return dberr.IO("pager.open", errors.Wrap(err, "pad partial page"))
		}
		if err := pm.file.Sync(); err != nil {
			return dberr.IO("pager.open", errors.Wrap(err, "sync padding"))
		}
		size += PageSize - partial
	}

	pm.pageCount.Store(uint64(size / PageSize))
	return nil
}

// PageCount returns the number of whole pages in the file.
func (pm *PageManager) PageCount() uint64 {
	return pm.pageCount.Load()
}

// AppendPage writes p at the end of the file and returns its index. The page
// is not cached. On a failed write the file is cut back to its previous length
// so it only ever grows by whole pages.
func (pm *PageManager) AppendPage(p *Page) (PageIndex, error) {
	if pm.readOnly {
		return 0, dberr.IO("pager.append_page", ErrReadOnly)
	}
	index := pm.pageCount.Load()
	offset := int64(index) * PageSize

	if _, err := pm.file.WriteAt(p[:], offset); err != nil {
		if terr := pm.file.Truncate(offset); terr != nil {
			pm.log.Error("failed to cut back partial append", zap.Uint64("page_index", index), zap.Error(terr))
		}
		return 0, dberr.IO("pager.append_page", errors.Wrapf(err, "write page %d", index))
	}

	pm.pageCount.Store(index + 1)
	return index, nil
}

// ReadPage returns the page at index from the cache, or reads and caches it.
// The returned page is shared and must not be modified.
func (pm *PageManager) ReadPage(index PageIndex) (*Page, error) {
	if count := pm.pageCount.Load(); index >= count {
		return nil, dberr.IO("pager.read_page", errors.Wrapf(ErrPageOutOfRange, "index %d, page count %d", index, count))
	}

	if p, ok := pm.cache.Get(index); ok {
		return p, nil
	}

	v, err, _ := pm.loads.Do(strconv.FormatUint(index, 10), func() (any, error) {
		p, err := pm.readPageFromFile(index)
		if err != nil {
			return nil, err
		}
		pm.cache.Put(index, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Page), nil
}

// ReadPageFromDisk reads a page bypassing the cache.
func (pm *PageManager) ReadPageFromDisk(index PageIndex) (*Page, error) {
	if count := pm.pageCount.Load(); index >= count {
		return nil, dberr.IO("pager.read_page", errors.Wrapf(ErrPageOutOfRange, "index %d, page count %d", index, count))
	}
	return pm.readPageFromFile(index)
}

func (pm *PageManager) readPageFromFile(index PageIndex) (*Page, error) {
	p := new(Page)
	if _, err := pm.file.ReadAt(p[:], int64(index)*PageSize); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, dberr.IO("pager.read_page", errors.Wrapf(err, "read page %d", index))
	}
	return p, nil
}

// Sync flushes the file to stable storage. Pages appended before a successful
// Sync survive a crash.
func (pm *PageManager) Sync() error {
	if err := pm.file.Sync(); err != nil {
		return dberr.IO("pager.sync", err)
	}
	return nil
}

// Close closes the underlying file. It does not sync.
func (pm *PageManager) Close() error {
	if pm.file == nil {
		return nil
	}
	err := pm.file.Close()
	pm.file = nil
	pm.cache.Clear()
	if err != nil {
		return dberr.IO("pager.close", err)
	}
	return nil
}

// GetCacheStats returns cache performance statistics
func (pm *PageManager) GetCacheStats() CacheStats {
	return pm.cache.GetStats()
}

// GetMaxCacheSize returns the maximum cache size
func (pm *PageManager) GetMaxCacheSize() int {
	return pm.cache.GetMaxSize()
}
