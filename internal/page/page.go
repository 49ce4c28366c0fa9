// Package page implements fixed-size page storage over a single file and the
// binary codec that maps pages to B+Tree nodes.
//
// A page is never rewritten once appended: every logical change is encoded
// into a fresh page and appended at the end of the file.
//
// Header format: the used_size field is 13 bits wide (bits 2-14) and the
// reserved region starts at bit 15. A 10-bit field cannot hold 4096, so a
// full page sets bits 12-14; readers that assume 10 bits with bits 12-63
// reserved will reject such pages.
package page

import "bytes"

// PageSize is the size of every page in bytes, and the unit of I/O and caching.
const PageSize = 4096

const (
	MaxKeySize   = 255   // single-byte length prefix
	MaxValueSize = 65535 // two-byte length prefix
)

// Page is a raw page buffer. Pages returned by the PageManager are shared with
// its cache and must not be modified.
type Page [PageSize]byte

// PageIndex is the ordinal of a page in the file: offset = index * PageSize.
type PageIndex = uint64

// Equal reports whether p and other hold the same bytes.
func (p *Page) Equal(other *Page) bool {
	return bytes.Equal(p[:], other[:])
}
