package page

import (
	"encoding/binary"

	"amsdb/internal/dberr"
)

// BranchNode routes lookups through N separator keys and N+1 children.
//
// Routing: for a branch with keys K[0..n-1] and children C[0..n], C[i] holds
// the keys k with K[i-1] <= k < K[i], where K[-1] = -inf and K[n] = +inf.
//
// Body format: [child u64 LE] then repeated [key_len u8][key][child u64 LE].
type BranchNode struct {
	Children   []PageIndex
	Separators [][]byte
}

// NewRootBranch builds the branch that replaces a root which split in two.
func NewRootBranch(left, right PageIndex, separator []byte) *BranchNode {
	return &BranchNode{
		Children:   []PageIndex{left, right},
		Separators: [][]byte{clone(separator)},
	}
}

func (n *BranchNode) IsBranch() bool { return true }

func (n *BranchNode) EncodedSize() int {
	size := HeaderSize + 8*len(n.Children)
	for _, k := range n.Separators {
		size += 1 + len(k)
	}
	return size
}

func (n *BranchNode) Keys() [][]byte { return n.Separators }

// Route returns the position and page index of the child whose range holds key.
func (n *BranchNode) Route(key []byte) (int, PageIndex) {
	pos := countLessOrEqual(n.Separators, key)
	return pos, n.Children[pos]
}

// ReplaceChild returns a copy of the branch with the child at pos pointing to idx.
func (n *BranchNode) ReplaceChild(pos int, idx PageIndex) *BranchNode {
	children := make([]PageIndex, len(n.Children))
	copy(children, n.Children)
	children[pos] = idx
	return &BranchNode{Children: children, Separators: n.Separators}
}

// ReplaceChildWithSplit returns a copy of the branch where the child at pos is
// replaced by left and right with separator between them. The separator lands
// at separator position pos, which keeps separators sorted because every key
// under the old child was within [K[pos-1], K[pos]).
func (n *BranchNode) ReplaceChildWithSplit(pos int, left, right PageIndex, separator []byte) *BranchNode {
	children := make([]PageIndex, 0, len(n.Children)+1)
	children = append(children, n.Children[:pos]...)
	children = append(children, left, right)
	children = append(children, n.Children[pos+1:]...)

	seps := make([][]byte, 0, len(n.Separators)+1)
	seps = append(seps, n.Separators[:pos]...)
	seps = append(seps, clone(separator))
	seps = append(seps, n.Separators[pos:]...)

	return &BranchNode{Children: children, Separators: seps}
}

// Split divides an overfull branch. The separator at the partition index is
// removed from both halves and promoted to the parent; left keeps the children
// before it and right the children after it.
func (n *BranchNode) Split() (left, right *BranchNode, promoted []byte) {
	count := len(n.Separators)

	// prefix[i] = encoded bytes of Separators[:i], each with its right child
	prefix := make([]int, count+1)
	for i, k := range n.Separators {
		prefix[i+1] = prefix[i] + 1 + len(k) + 8
	}
	base := HeaderSize + 8 // header + leftmost child

	m := splitPoint(1, count-2, count/2, func(m int) (int, int) {
		return base + prefix[m], base + prefix[count] - prefix[m+1]
	})

	left = &BranchNode{
		Children:   append([]PageIndex(nil), n.Children[:m+1]...),
		Separators: append([][]byte(nil), n.Separators[:m]...),
	}
	right = &BranchNode{
		Children:   append([]PageIndex(nil), n.Children[m+1:]...),
		Separators: append([][]byte(nil), n.Separators[m+1:]...),
	}
	return left, right, n.Separators[m]
}

func (n *BranchNode) encodeBody(buf []byte) {
	binary.LittleEndian.PutUint64(buf, n.Children[0])
	off := 8
	for i, k := range n.Separators {
		buf[off] = byte(len(k))
		off++
		off += copy(buf[off:], k)
		binary.LittleEndian.PutUint64(buf[off:], n.Children[i+1])
		off += 8
	}
}

// decodeBranchBody parses a branch body. Separator keys are copied out of buf.
func decodeBranchBody(buf []byte) (*BranchNode, error) {
	const op = "codec.decode_branch"
	if len(buf) < 8 {
		return nil, dberr.Corruptionf(op, "branch body of %d bytes has no leftmost child", len(buf))
	}

	n := &BranchNode{Children: []PageIndex{binary.LittleEndian.Uint64(buf)}}
	off := 8
	for off < len(buf) {
		keyLen := int(buf[off])
		off++
		if off+keyLen+8 > len(buf) {
			return nil, dberr.Corruptionf(op, "separator of %d bytes at offset %d runs past used size", keyLen, HeaderSize+off)
		}
		n.Separators = append(n.Separators, clone(buf[off:off+keyLen]))
		off += keyLen
		n.Children = append(n.Children, binary.LittleEndian.Uint64(buf[off:]))
		off += 8
	}

	if len(n.Separators) == 0 {
		return nil, dberr.Corruptionf(op, "branch has no separators")
	}
	if !strictlyAscending(len(n.Separators), func(i int) []byte { return n.Separators[i] }) {
		return nil, dberr.Corruptionf(op, "branch separators are not strictly ascending")
	}
	return n, nil
}
