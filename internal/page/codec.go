package page

import (
	"github.com/pkg/errors"

	"amsdb/internal/dberr"
)

// ErrNodeTooLarge is returned by Encode when a node does not fit in a page.
// The tree never lets it escape: an overfull node is split before encoding.
var ErrNodeTooLarge = errors.New("node does not fit in a page")

// Decode parses p into a *LeafNode or *BranchNode according to its header.
// Only the first UsedSize bytes are interpreted.
func Decode(p *Page) (Node, error) {
	h, err := DecodeHeader(p)
	if err != nil {
		return nil, err
	}

	body := p[HeaderSize:h.UsedSize]
	if h.IsBranch {
		branch, err := decodeBranchBody(body)
		if err != nil {
			return nil, err
		}
		return branch, nil
	}
	leaf, err := decodeLeafBody(body)
	if err != nil {
		return nil, err
	}
	return leaf, nil
}

// Encode serializes node into a fresh zeroed page and writes its header.
// Nothing is written when the node is larger than PageSize.
func Encode(node Node, isRoot bool) (*Page, error) {
	size := node.EncodedSize()
	if size > PageSize {
		return nil, dberr.Validation("codec.encode", errors.Wrapf(ErrNodeTooLarge, "%d bytes", size))
	}

	p := new(Page)
	EncodeHeader(p, Header{
		IsRoot:   isRoot,
		IsBranch: node.IsBranch(),
		UsedSize: uint16(size),
	})
	node.encodeBody(p[HeaderSize:size])
	return p, nil
}
