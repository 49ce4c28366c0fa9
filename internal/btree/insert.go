package btree

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"amsdb/internal/dberr"
	"amsdb/internal/page"
)

// -----------------------------
// Insertion in B+ Tree
// -----------------------------

type resultKind uint8

const (
	singleNode resultKind = iota
	splitNode
)

// insertResult is what rewriting one level of the tree hands to the level
// above: either the single page that replaced the old node, or the two halves
// of a split with the separator between them.
type insertResult struct {
	kind      resultKind
	node      page.PageIndex
	left      page.PageIndex
	right     page.PageIndex
	separator []byte
}

func validateEntry(key, value []byte) error {
	switch {
	case len(key) > page.MaxKeySize:
		return dberr.Validation("btree.put", ErrKeyTooLarge)
	case len(value) > page.MaxValueSize:
		return dberr.Validation("btree.put", ErrValueTooLarge)
	}
	if size := (page.LeafEntry{Key: key, Value: value}).EncodedSize(); size > MaxEntrySize {
		return dberr.Validation("btree.put", errors.Wrapf(ErrEntryTooLarge, "%d bytes, limit %d", size, MaxEntrySize))
	}
	return nil
}

// Put stores value under key, replacing any previous value.
//
// Keys are limited to page.MaxKeySize bytes. Although the value length prefix
// allows page.MaxValueSize, the whole entry (1 + len(key) + 2 + len(value))
// must stay within MaxEntrySize, so a value with an empty key is at most
// MaxEntrySize-3 bytes. Larger entries fail with ErrEntryTooLarge before any
// page is written.
//
// Algorithm steps:
//  1. Validate - reject oversized keys, values and entries before touching the file
//  2. Empty tree - append a single root leaf holding the entry
//  3. Descend - follow separators from the root, remembering each branch and
//     the child position taken
//  4. Leaf - insert into a copy of the leaf; append it, or split it and append
//     both halves when the entry does not fit
//  5. Propagate - walk the remembered branches bottom-up, replacing the child
//     pointer (or inserting the split separator) and appending the copy, which
//     may split again
//  6. Root - the top-level page is written with the root flag; when the old
//     root split, a new root branch over both halves is appended instead
//  7. Publish - switch the in-memory root, then fsync when sync writes are on
func (tree *BPlusTree) Put(key, value []byte) error {
	if tree.closed.Load() {
		return ErrClosed
	}
	if err := validateEntry(key, value); err != nil {
		return err
	}

	current, ok := tree.Root()
	if !ok {
		index, err := tree.appendNode(page.NewLeaf(key, value), true)
		if err != nil {
			return err
		}
		return tree.publish(index)
	}

	var path []frame
	leaf, leafIndex, err := tree.findLeaf(current, key, &path)
	if err != nil {
		return err
	}

	fits := page.Fits(leaf, page.LeafEntry{Key: key, Value: value})
	result, err := tree.writeNode(leaf.Insert(key, value), fits, len(path) == 0)
	if err != nil {
		return err
	}
	if result.kind == splitNode {
		tree.counters.leafSplits.Add(1)
		tree.log.Debug("leaf split",
			zap.Uint64("leaf", leafIndex),
			zap.Uint64("left", result.left),
			zap.Uint64("right", result.right))
	}

	for i := len(path) - 1; i >= 0; i-- {
		f := path[i]
		isRoot := i == 0

		if result.kind == singleNode {
			result, err = tree.writeNode(f.node.ReplaceChild(f.pos, result.node), true, isRoot)
			if err != nil {
				return err
			}
			continue
		}

		fits := page.Fits(f.node, page.BranchEntry{Key: result.separator, Child: result.right})
		next := f.node.ReplaceChildWithSplit(f.pos, result.left, result.right, result.separator)
		if result, err = tree.writeNode(next, fits, isRoot); err != nil {
			return err
		}
		if result.kind == splitNode {
			tree.counters.branchSplits.Add(1)
			tree.log.Debug("branch split", zap.Uint64("branch", f.index), zap.Int("depth", i))
		}
	}

	root := result.node
	if result.kind == splitNode {
		root, err = tree.appendNode(page.NewRootBranch(result.left, result.right, result.separator), true)
		if err != nil {
			return err
		}
		tree.counters.rootSplits.Add(1)
		tree.log.Debug("root split", zap.Uint64("new_root", root))
	}
	return tree.publish(root)
}

// writeNode appends node as a single page when it fits, or splits it and
// appends both halves. Only a single page can carry the root flag; the halves
// of a split root get a new root above them.
func (tree *BPlusTree) writeNode(node page.Node, fits, isRoot bool) (insertResult, error) {
	if fits {
		index, err := tree.appendNode(node, isRoot)
		if err != nil {
			return insertResult{}, err
		}
		return insertResult{kind: singleNode, node: index}, nil
	}

	var left, right page.Node
	var separator []byte
	switch n := node.(type) {
	case *page.LeafNode:
		left, right, separator = n.Split()
	case *page.BranchNode:
		left, right, separator = n.Split()
	}

	leftIndex, err := tree.appendNode(left, false)
	if err != nil {
		return insertResult{}, err
	}
	rightIndex, err := tree.appendNode(right, false)
	if err != nil {
		return insertResult{}, err
	}
	return insertResult{kind: splitNode, left: leftIndex, right: rightIndex, separator: separator}, nil
}

func (tree *BPlusTree) appendNode(node page.Node, isRoot bool) (page.PageIndex, error) {
	p, err := page.Encode(node, isRoot)
	if err != nil {
		return 0, err
	}
	index, err := tree.pager.AppendPage(p)
	if err != nil {
		return 0, err
	}
	tree.counters.pagesAppended.Add(1)
	return index, nil
}

// publish makes index the current root. With sync writes on, a failed fsync
// is reported after the root has moved: the put is applied but not durable.
func (tree *BPlusTree) publish(index page.PageIndex) error {
	tree.setRoot(index)
	tree.counters.puts.Add(1)
	if tree.syncWrites {
		return tree.pager.Sync()
	}
	return nil
}
