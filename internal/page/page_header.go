package page

import (
	"encoding/binary"

	"amsdb/internal/dberr"
)

// Header layout, packed into the first 8 bytes of every page as a
// little-endian uint64:
//
//	bit 0      is_root
//	bit 1      is_branch
//	bits 2-14  used_size (bytes occupied by the page, header included)
//	bits 15-63 reserved, always zero
const (
	HeaderSize = 8

	rootBit       = uint64(1) << 0
	branchBit     = uint64(1) << 1
	usedSizeShift = 2
	usedSizeBits  = 13
	usedSizeMask  = (uint64(1)<<usedSizeBits - 1) << usedSizeShift
	reservedMask  = ^(rootBit | branchBit | usedSizeMask)
)

// Header is the decoded form of a page's packed header.
type Header struct {
	IsRoot   bool
	IsBranch bool
	UsedSize uint16
}

// EncodeHeader writes h into the first HeaderSize bytes of p.
func EncodeHeader(p *Page, h Header) {
	var word uint64
	if h.IsRoot {
		word |= rootBit
	}
	if h.IsBranch {
		word |= branchBit
	}
	word |= (uint64(h.UsedSize) << usedSizeShift) & usedSizeMask
	binary.LittleEndian.PutUint64(p[:HeaderSize], word)
}

// DecodeHeader reads the header of p. Reserved bits must be zero and the
// used size must cover at least the header and at most the page.
func DecodeHeader(p *Page) (Header, error) {
	word := binary.LittleEndian.Uint64(p[:HeaderSize])
	if word&reservedMask != 0 {
		return Header{}, dberr.Corruptionf("codec.decode_header", "reserved header bits set: %#x", word&reservedMask)
	}

	h := Header{
		IsRoot:   word&rootBit != 0,
		IsBranch: word&branchBit != 0,
		UsedSize: uint16((word & usedSizeMask) >> usedSizeShift),
	}
	if h.UsedSize < HeaderSize || int(h.UsedSize) > PageSize {
		return Header{}, dberr.Corruptionf("codec.decode_header", "used size %d outside [%d, %d]", h.UsedSize, HeaderSize, PageSize)
	}
	return h, nil
}
