package page

import (
	"encoding/binary"

	"amsdb/internal/dberr"
)

// LeafNode holds key/value pairs sorted by key, keys unique.
//
// Body format: repeated [key_len u8][key][value_len u16 LE][value].
type LeafNode struct {
	Entries []LeafEntry
}

// NewLeaf builds a leaf holding exactly one entry. It is how an empty tree
// gets its first page.
func NewLeaf(key, value []byte) *LeafNode {
	return &LeafNode{Entries: []LeafEntry{{Key: clone(key), Value: clone(value)}}}
}

func (n *LeafNode) IsBranch() bool { return false }

func (n *LeafNode) EncodedSize() int {
	size := HeaderSize
	for _, e := range n.Entries {
		size += e.EncodedSize()
	}
	return size
}

func (n *LeafNode) Keys() [][]byte {
	keys := make([][]byte, len(n.Entries))
	for i, e := range n.Entries {
		keys[i] = e.Key
	}
	return keys
}

func (n *LeafNode) search(key []byte) (int, bool) {
	return binarySearch(len(n.Entries), func(i int) []byte { return n.Entries[i].Key }, key)
}

// Lookup returns the value stored under key.
func (n *LeafNode) Lookup(key []byte) ([]byte, bool) {
	if i, ok := n.search(key); ok {
		return n.Entries[i].Value, true
	}
	return nil, false
}

// Insert returns a new leaf with key set to value, keeping entries sorted.
// An existing key has its value replaced (last write wins). The result may
// not fit in a page; callers check with Fits or EncodedSize and Split.
func (n *LeafNode) Insert(key, value []byte) *LeafNode {
	i, found := n.search(key)
	entry := LeafEntry{Key: clone(key), Value: clone(value)}

	if found {
		entries := make([]LeafEntry, len(n.Entries))
		copy(entries, n.Entries)
		entries[i] = entry
		return &LeafNode{Entries: entries}
	}

	entries := make([]LeafEntry, 0, len(n.Entries)+1)
	entries = append(entries, n.Entries[:i]...)
	entries = append(entries, entry)
	entries = append(entries, n.Entries[i:]...)
	return &LeafNode{Entries: entries}
}

// Split divides the leaf into two. The partition is the median index unless
// that leaves a half too large for a page, in which case the split moves
// toward balancing bytes. The separator is the first key of the right leaf:
// every left key is < separator and every right key is >= separator.
func (n *LeafNode) Split() (left, right *LeafNode, separator []byte) {
	count := len(n.Entries)

	// prefix[i] = encoded bytes of Entries[:i]
	prefix := make([]int, count+1)
	for i, e := range n.Entries {
		prefix[i+1] = prefix[i] + e.EncodedSize()
	}

	m := splitPoint(1, count-1, count/2, func(m int) (int, int) {
		return HeaderSize + prefix[m], HeaderSize + prefix[count] - prefix[m]
	})

	left = &LeafNode{Entries: append([]LeafEntry(nil), n.Entries[:m]...)}
	right = &LeafNode{Entries: append([]LeafEntry(nil), n.Entries[m:]...)}
	return left, right, right.Entries[0].Key
}

func (n *LeafNode) encodeBody(buf []byte) {
	off := 0
	for _, e := range n.Entries {
		buf[off] = byte(len(e.Key))
		off++
		off += copy(buf[off:], e.Key)
		binary.LittleEndian.PutUint16(buf[off:], uint16(len(e.Value)))
		off += 2
		off += copy(buf[off:], e.Value)
	}
}

// decodeLeafBody parses a leaf body. Keys and values are copied out of buf.
func decodeLeafBody(buf []byte) (*LeafNode, error) {
	const op = "codec.decode_leaf"
	n := &LeafNode{}
	off := 0
	for off < len(buf) {
		keyLen := int(buf[off])
		off++
		if off+keyLen+2 > len(buf) {
			return nil, dberr.Corruptionf(op, "key of %d bytes at offset %d runs past used size", keyLen, HeaderSize+off)
		}
		key := clone(buf[off : off+keyLen])
		off += keyLen

		valueLen := int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
		if off+valueLen > len(buf) {
			return nil, dberr.Corruptionf(op, "value of %d bytes at offset %d runs past used size", valueLen, HeaderSize+off)
		}
		value := clone(buf[off : off+valueLen])
		off += valueLen

		n.Entries = append(n.Entries, LeafEntry{Key: key, Value: value})
	}

	if !strictlyAscending(len(n.Entries), func(i int) []byte { return n.Entries[i].Key }) {
		return nil, dberr.Corruptionf(op, "leaf keys are not strictly ascending")
	}
	return n, nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
