package page

// Node is a decoded B+Tree page: either a *LeafNode or a *BranchNode.
//
// Nodes are values. Every operation that changes a node returns a new one
// and leaves the receiver untouched, so a node decoded from a cached page
// can be shared freely.
type Node interface {
	IsBranch() bool
	// EncodedSize is the exact number of bytes the node occupies once
	// encoded, header included.
	EncodedSize() int
	// Keys returns the node's keys (leaf keys or branch separators) in order.
	Keys() [][]byte

	encodeBody(buf []byte)
}

// Entry is a candidate item for a node: a LeafEntry or a BranchEntry.
type Entry interface {
	EncodedSize() int
}

// LeafEntry is a key/value pair stored in a leaf.
type LeafEntry struct {
	Key   []byte
	Value []byte
}

// EncodedSize returns the entry's size in a leaf body: key_len(1) key value_len(2) value.
func (e LeafEntry) EncodedSize() int {
	return 1 + len(e.Key) + 2 + len(e.Value)
}

// BranchEntry is a separator key and the child to its right.
type BranchEntry struct {
	Key   []byte
	Child PageIndex
}

// EncodedSize returns the entry's size in a branch body: key_len(1) key child(8).
func (e BranchEntry) EncodedSize() int {
	return 1 + len(e.Key) + 8
}

// Fits reports whether node, once candidate is applied to it, still encodes
// within PageSize. A LeafEntry whose key is already in the leaf replaces the
// existing value; any other candidate adds one entry.
func Fits(node Node, candidate Entry) bool {
	size := node.EncodedSize() + candidate.EncodedSize()
	if leaf, ok := node.(*LeafNode); ok {
		if le, ok := candidate.(LeafEntry); ok {
			if pos, found := leaf.search(le.Key); found {
				size -= leaf.Entries[pos].EncodedSize()
			}
		}
	}
	return size <= PageSize
}

// splitPoint picks the partition index m in [lo, hi] for a split. sides
// returns the encoded size of both halves for a given m. Among partitions
// where both halves fit in a page the one closest to the median wins;
// when none fits the most balanced one is returned.
func splitPoint(lo, hi, median int, sides func(m int) (left, right int)) int {
	best, bestFits, bestScore := lo, false, int(^uint(0)>>1)
	for m := lo; m <= hi; m++ {
		left, right := sides(m)
		fits := left <= PageSize && right <= PageSize

		var score int
		if fits {
			score = abs(m - median)
		} else {
			score = max(left, right)
		}

		switch {
		case fits && !bestFits:
			best, bestFits, bestScore = m, true, score
		case fits == bestFits && score < bestScore:
			best, bestScore = m, score
		}
	}
	return best
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
