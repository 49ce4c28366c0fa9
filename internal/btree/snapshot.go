package btree

import (
	"bytes"

	"amsdb/internal/page"
)

// Snapshot is a read-only view of the tree as of one root page.
//
// Pages are immutable, so a snapshot stays consistent while the writer keeps
// appending: later puts build new roots and never touch the pages reachable
// from the pinned one. A snapshot needs no release; it is only invalidated
// by closing the tree.
type Snapshot struct {
	tree    *BPlusTree
	root    page.PageIndex
	hasRoot bool
}

// Snapshot pins the current root.
func (tree *BPlusTree) Snapshot() *Snapshot {
	root, ok := tree.Root()
	return &Snapshot{tree: tree, root: root, hasRoot: ok}
}

// Root returns the pinned root page. ok is false when the tree was empty.
func (s *Snapshot) Root() (index page.PageIndex, ok bool) {
	return s.root, s.hasRoot
}

// Get returns the value stored under key as of the snapshot.
func (s *Snapshot) Get(key []byte) (value []byte, ok bool, err error) {
	if s.tree.closed.Load() {
		return nil, false, ErrClosed
	}
	if !s.hasRoot || len(key) > page.MaxKeySize {
		return nil, false, nil
	}
	leaf, _, err := s.tree.findLeaf(s.root, key, nil)
	if err != nil {
		return nil, false, err
	}
	value, ok = leaf.Lookup(key)
	return value, ok, nil
}

// Ascend calls fn for every entry with key >= start in ascending key order,
// until fn returns false. A nil start begins at the smallest key. The slices
// passed to fn belong to the decoded page and must not be modified.
func (s *Snapshot) Ascend(start []byte, fn func(key, value []byte) bool) error {
	if s.tree.closed.Load() {
		return ErrClosed
	}
	if !s.hasRoot {
		return nil
	}
	_, err := s.tree.ascend(s.root, start, fn)
	return err
}

// AscendPrefix calls fn for every entry whose key starts with prefix, in
// ascending key order, until fn returns false.
func (s *Snapshot) AscendPrefix(prefix []byte, fn func(key, value []byte) bool) error {
	return s.Ascend(prefix, func(key, value []byte) bool {
		if !bytes.HasPrefix(key, prefix) {
			return false
		}
		return fn(key, value)
	})
}
