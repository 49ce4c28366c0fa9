package btree

import (
	"bytes"

	"amsdb/internal/dberr"
	"amsdb/internal/page"
)

// -----------------------------
// Ordered iteration
// -----------------------------

// Ascend iterates over the current root. See Snapshot.Ascend.
func (tree *BPlusTree) Ascend(start []byte, fn func(key, value []byte) bool) error {
	return tree.Snapshot().Ascend(start, fn)
}

// AscendPrefix iterates over the keys starting with prefix under the current root.
func (tree *BPlusTree) AscendPrefix(prefix []byte, fn func(key, value []byte) bool) error {
	return tree.Snapshot().AscendPrefix(prefix, fn)
}

// ascend visits the subtree at index. It reports false once fn asked to stop.
func (tree *BPlusTree) ascend(index page.PageIndex, start []byte, fn func(key, value []byte) bool) (bool, error) {
	node, err := tree.readNode(index)
	if err != nil {
		return false, err
	}

	switch n := node.(type) {
	case *page.LeafNode:
		for _, e := range n.Entries {
			if start != nil && bytes.Compare(e.Key, start) < 0 {
				continue
			}
			if !fn(e.Key, e.Value) {
				return false, nil
			}
		}
		return true, nil

	case *page.BranchNode:
		first := 0
		if start != nil {
			first, _ = n.Route(start)
		}
		for _, child := range n.Children[first:] {
			more, err := tree.ascend(child, start, fn)
			if err != nil || !more {
				return false, err
			}
		}
		return true, nil
	}
	return false, dberr.Corruptionf("btree.ascend", "page %d decoded to %T", index, node)
}

// Scan calls fn for every entry in ascending key order until fn returns false.
func (tree *BPlusTree) Scan(fn func(key, value []byte) bool) error {
	return tree.Ascend(nil, fn)
}

// SearchRange returns all entries where startKey <= key <= endKey.
func (tree *BPlusTree) SearchRange(startKey, endKey []byte) ([]page.LeafEntry, error) {
	if bytes.Compare(startKey, endKey) > 0 {
		return nil, dberr.Validationf("btree.search_range", "invalid range: start %q > end %q", startKey, endKey)
	}

	entries := make([]page.LeafEntry, 0)
	err := tree.Ascend(startKey, func(key, value []byte) bool {
		if bytes.Compare(key, endKey) > 0 {
			return false
		}
		entries = append(entries, page.LeafEntry{Key: key, Value: value})
		return true
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// -----------------------------
// Structure checks and statistics
// -----------------------------

// TreeStats describes the shape of the tree reachable from the current root.
type TreeStats struct {
	Root        page.PageIndex
	Empty       bool
	Height      int
	BranchNodes int
	LeafNodes   int
	Keys        int
	UsedBytes   int
	FilePages   uint64
}

// Stats walks the whole tree under the current root and reports its shape.
func (tree *BPlusTree) Stats() (TreeStats, error) {
	return tree.Snapshot().Stats()
}

// Stats walks the whole tree under the pinned root and reports its shape.
func (s *Snapshot) Stats() (TreeStats, error) {
	if s.tree.closed.Load() {
		return TreeStats{}, ErrClosed
	}
	stats := TreeStats{
		Root:      s.root,
		Empty:     !s.hasRoot,
		FilePages: s.tree.pager.PageCount(),
	}
	err := s.Walk(func(_ page.PageIndex, node page.Node, depth int, _, _ []byte) error {
		stats.Height = max(stats.Height, depth+1)
		stats.UsedBytes += node.EncodedSize()
		switch n := node.(type) {
		case *page.LeafNode:
			stats.LeafNodes++
			stats.Keys += len(n.Entries)
		case *page.BranchNode:
			stats.BranchNodes++
		}
		return nil
	})
	return stats, err
}

// Verify checks the tree under the current root. See Snapshot.Verify.
func (tree *BPlusTree) Verify() error {
	return tree.Snapshot().Verify()
}

// Verify checks the structural invariants of the reachable tree: every key
// lies within the range its parent's separators assign to it, children are
// older than their parent, and all leaves sit at the same depth. Problems are
// reported as corruption errors.
func (s *Snapshot) Verify() error {
	leafDepth := -1
	return s.Walk(func(index page.PageIndex, node page.Node, depth int, lo, hi []byte) error {
		for _, k := range node.Keys() {
			if lo != nil && bytes.Compare(k, lo) < 0 {
				return dberr.Corruptionf("btree.verify", "page %d: key %q below lower bound %q", index, k, lo)
			}
			if hi != nil && bytes.Compare(k, hi) >= 0 {
				return dberr.Corruptionf("btree.verify", "page %d: key %q not below upper bound %q", index, k, hi)
			}
		}

		if node.IsBranch() {
			return nil
		}
		if leafDepth == -1 {
			leafDepth = depth
		} else if depth != leafDepth {
			return dberr.Corruptionf("btree.verify", "leaf %d at depth %d, expected %d", index, depth, leafDepth)
		}
		return nil
	})
}

// VisitFunc is called for each node reached by Walk. lo and hi are the
// inclusive lower and exclusive upper key bounds the parent assigns to the
// node; nil means unbounded.
type VisitFunc func(index page.PageIndex, node page.Node, depth int, lo, hi []byte) error

// Walk visits every node under the current root. See Snapshot.Walk.
func (tree *BPlusTree) Walk(visit VisitFunc) error {
	return tree.Snapshot().Walk(visit)
}

// Walk visits every reachable node depth-first, parents before children.
func (s *Snapshot) Walk(visit VisitFunc) error {
	if s.tree.closed.Load() {
		return ErrClosed
	}
	if !s.hasRoot {
		return nil
	}
	return s.tree.walk(s.root, visit)
}

func (tree *BPlusTree) walk(root page.PageIndex, visit VisitFunc) error {
	var rec func(index page.PageIndex, depth int, lo, hi []byte) error
	rec = func(index page.PageIndex, depth int, lo, hi []byte) error {
		node, err := tree.readNode(index)
		if err != nil {
			return err
		}
		if err := visit(index, node, depth, lo, hi); err != nil {
			return err
		}

		branch, ok := node.(*page.BranchNode)
		if !ok {
			return nil
		}
		for i, child := range branch.Children {
			if child >= index {
				return dberr.Corruptionf("btree.verify", "branch %d points forward to child %d", index, child)
			}
			childLo, childHi := lo, hi
			if i > 0 {
				childLo = branch.Separators[i-1]
			}
			if i < len(branch.Separators) {
				childHi = branch.Separators[i]
			}
			if err := rec(child, depth+1, childLo, childHi); err != nil {
				return err
			}
		}
		return nil
	}
	return rec(root, 0, nil, nil)
}
