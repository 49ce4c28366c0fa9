package btree

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"amsdb/internal/dberr"
	"amsdb/internal/page"
)

// MaxEntrySize bounds a single leaf entry (key_len, key, value_len, value) to
// half of a leaf body, so any overfull leaf has a split where both halves fit.
// Values are therefore capped well below page.MaxValueSize.
const MaxEntrySize = (page.PageSize - page.HeaderSize) / 2

var (
	// ErrKeyTooLarge is returned by Put for keys longer than page.MaxKeySize.
	ErrKeyTooLarge = errors.New("key too large")
	// ErrValueTooLarge is returned by Put for values longer than page.MaxValueSize.
	ErrValueTooLarge = errors.New("value too large")
	// ErrEntryTooLarge is returned by Put when key and value together exceed MaxEntrySize.
	ErrEntryTooLarge = errors.New("entry too large")
	// ErrClosed is returned by every operation on a tree after Close.
	ErrClosed = errors.New("tree closed")
)

// Pager is the page store a tree is built on. *page.PageManager implements it.
type Pager interface {
	PageCount() uint64
	AppendPage(p *page.Page) (page.PageIndex, error)
	ReadPage(index page.PageIndex) (*page.Page, error)
	ReadPageFromDisk(index page.PageIndex) (*page.Page, error)
	Sync() error
	Close() error
	GetCacheStats() page.CacheStats
	GetMaxCacheSize() int
}

// BPlusTree is an append-only, copy-on-write B+Tree over a Pager.
//
// Pages are never rewritten. Every Put appends the modified leaf and a fresh
// copy of each ancestor, ending with a new root page. The root in memory only
// moves once all of those appends succeeded, so a failed Put leaves the tree
// as it was.
//
// A BPlusTree has a single writer. Readers never block it: Get, Ascend and
// Snapshot pin the root that was current when they started and read only
// pages reachable from it, which no later Put touches.
type BPlusTree struct {
	pager      Pager
	root       atomic.Pointer[page.PageIndex] // nil while the tree is empty
	closed     atomic.Bool
	syncWrites bool
	counters   counters
	log        *zap.Logger
}

// Counters tracks structural events since the tree was opened.
type Counters struct {
	Puts          uint64
	PagesAppended uint64
	LeafSplits    uint64
	BranchSplits  uint64
	RootSplits    uint64
}

type counters struct {
	puts, pagesAppended, leafSplits, branchSplits, rootSplits atomic.Uint64
}

type options struct {
	syncWrites bool
	log        *zap.Logger
	pagerOpts  []page.Option
}

// Option configures a BPlusTree.
type Option func(*options)

// WithLogger sets the logger for the tree and its pager.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithSyncWrites makes every Put fsync the file before returning.
func WithSyncWrites(enabled bool) Option {
	return func(o *options) { o.syncWrites = enabled }
}

// WithPagerOptions forwards options to the PageManager opened by NewBPlusTree.
func WithPagerOptions(opts ...page.Option) Option {
	return func(o *options) { o.pagerOpts = append(o.pagerOpts, opts...) }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	return o
}

// NewBPlusTree opens the page file at filename and recovers the tree stored in
// it. With truncate set the file starts empty.
func NewBPlusTree(filename string, truncate bool, opts ...Option) (*BPlusTree, error) {
	o := buildOptions(opts)
	pagerOpts := append([]page.Option{page.WithLogger(o.log.With(zap.String("component", "pager")))}, o.pagerOpts...)

	pager, err := page.NewPageManager(filename, truncate, pagerOpts...)
	if err != nil {
		return nil, err
	}
	tree, err := NewBPlusTreeWithPager(pager, opts...)
	if err != nil {
		_ = pager.Close()
		return nil, err
	}
	return tree, nil
}

// NewBPlusTreeWithCacheSize opens a tree whose pager caches at most cacheSize pages.
func NewBPlusTreeWithCacheSize(filename string, truncate bool, cacheSize int) (*BPlusTree, error) {
	return NewBPlusTree(filename, truncate, WithPagerOptions(page.WithCacheSize(cacheSize)))
}

// NewBPlusTreeWithPager builds a tree over an already open pager and recovers
// its root. The tree takes ownership of the pager.
func NewBPlusTreeWithPager(pager Pager, opts ...Option) (*BPlusTree, error) {
	o := buildOptions(opts)
	tree := &BPlusTree{
		pager:      pager,
		syncWrites: o.syncWrites,
		log:        o.log.With(zap.String("component", "btree")),
	}
	if err := tree.recoverRoot(); err != nil {
		return nil, err
	}
	return tree, nil
}

// GetPager returns the page store
func (tree *BPlusTree) GetPager() Pager {
	return tree.pager
}

// Root returns the index of the current root page. ok is false for an empty tree.
func (tree *BPlusTree) Root() (index page.PageIndex, ok bool) {
	if r := tree.root.Load(); r != nil {
		return *r, true
	}
	return 0, false
}

func (tree *BPlusTree) setRoot(index page.PageIndex) {
	tree.root.Store(&index)
}

// Counters returns the structural counters collected since open.
func (tree *BPlusTree) Counters() Counters {
	return Counters{
		Puts:          tree.counters.puts.Load(),
		PagesAppended: tree.counters.pagesAppended.Load(),
		LeafSplits:    tree.counters.leafSplits.Load(),
		BranchSplits:  tree.counters.branchSplits.Load(),
		RootSplits:    tree.counters.rootSplits.Load(),
	}
}

// Sync flushes all appended pages to stable storage.
func (tree *BPlusTree) Sync() error {
	if tree.closed.Load() {
		return ErrClosed
	}
	return tree.pager.Sync()
}

// Close closes the pager. Call Sync first when durability matters. Later
// calls on the tree or on its snapshots return ErrClosed.
func (tree *BPlusTree) Close() error {
	if tree.closed.Swap(true) {
		return nil
	}
	return tree.pager.Close()
}

// -----------------------------
// Root recovery
// -----------------------------

// recoverRoot finds the newest page flagged as a root.
//
// Pages are scanned from the end of the file towards the start and only the
// header is decoded until a root flag shows up. That candidate must then
// decode fully; a torn or garbled root page (a crash during the last append)
// is skipped and the scan carries on to the previous root. A file without any
// valid root is an empty tree.
func (tree *BPlusTree) recoverRoot() error {
	count := tree.pager.PageCount()
	for i := count; i > 0; i-- {
		index := i - 1
		p, err := tree.pager.ReadPageFromDisk(index)
		if err != nil {
			return err
		}

		h, err := page.DecodeHeader(p)
		if err != nil {
			tree.log.Debug("skipping page with invalid header", zap.Uint64("page_index", index), zap.Error(err))
			continue
		}
		if !h.IsRoot {
			continue
		}
		if _, err := page.Decode(p); err != nil {
			tree.log.Warn("skipping torn root page", zap.Uint64("page_index", index), zap.Error(err))
			continue
		}

		tree.setRoot(index)
		tree.log.Info("recovered root", zap.Uint64("root", index), zap.Uint64("page_count", count))
		return nil
	}

	if count > 0 {
		tree.log.Warn("no root page found, starting empty", zap.Uint64("page_count", count))
	}
	return nil
}

// -----------------------------
// Finding the correct leaf
// -----------------------------

// frame is one branch on the path from the root to a leaf: where the branch
// lives, its decoded content and which child the descent followed.
type frame struct {
	index page.PageIndex
	node  *page.BranchNode
	pos   int
}

func (tree *BPlusTree) readNode(index page.PageIndex) (page.Node, error) {
	p, err := tree.pager.ReadPage(index)
	if err != nil {
		return nil, err
	}
	node, err := page.Decode(p)
	if err != nil {
		return nil, errors.WithMessagef(err, "page %d", index)
	}
	return node, nil
}

// findLeaf walks from root to the leaf responsible for key. When path is
// non-nil every branch passed on the way is appended to it, root first.
func (tree *BPlusTree) findLeaf(root page.PageIndex, key []byte, path *[]frame) (*page.LeafNode, page.PageIndex, error) {
	index := root
	for {
		node, err := tree.readNode(index)
		if err != nil {
			return nil, 0, err
		}

		switch n := node.(type) {
		case *page.LeafNode:
			return n, index, nil
		case *page.BranchNode:
			pos, child := n.Route(key)
			if path != nil {
				*path = append(*path, frame{index: index, node: n, pos: pos})
			}
			if child >= index {
				// children are always appended before their parent
				return nil, 0, dberr.Corruptionf("btree.find_leaf", "branch %d points forward to child %d", index, child)
			}
			index = child
		default:
			return nil, 0, dberr.Corruptionf("btree.find_leaf", "page %d decoded to %T", index, node)
		}
	}
}

// Get returns the value stored under key. ok is false when the key is absent.
func (tree *BPlusTree) Get(key []byte) (value []byte, ok bool, err error) {
	return tree.Snapshot().Get(key)
}
