package btree

import (
	"encoding/binary"

	"github.com/notjustinshaw/btree/common"
)

const (
	// PageSize is the fixed on-disk page size. Matches the OS page size.
	PageSize = 4096

	// runHeaderSize is the length prefix of a byte run (big-endian u64).
	runHeaderSize = 8
)

// Page is a fixed 4KB buffer with typed positional accessors. All
// integers are unsigned 64-bit big-endian. Writes that would exceed the
// buffer fail with ErrPageOverflow; reads that run off the end of the
// buffer fail with ErrCorruption.
type Page struct {
	data [PageSize]byte
}

// NewPage returns a zeroed page.
func NewPage() *Page {
	return &Page{}
}

// LoadPage wraps raw bytes read from disk into a page.
func LoadPage(data []byte) (*Page, error) {
	if len(data) != PageSize {
		return nil, common.ErrCorruption
	}
	p := &Page{}
	copy(p.data[:], data)
	return p, nil
}

// Data returns the raw page bytes.
func (p *Page) Data() []byte {
	return p.data[:]
}

// WriteByteAt writes a single byte at offset.
func (p *Page) WriteByteAt(offset int, b byte) error {
	if offset < 0 || offset+1 > PageSize {
		return common.ErrPageOverflow
	}
	p.data[offset] = b
	return nil
}

// ByteAt reads a single byte at offset.
func (p *Page) ByteAt(offset int) (byte, error) {
	if offset < 0 || offset+1 > PageSize {
		return 0, common.ErrCorruption
	}
	return p.data[offset], nil
}

// WriteUint64At writes a big-endian u64 at offset.
func (p *Page) WriteUint64At(offset int, v uint64) error {
	if offset < 0 || offset+8 > PageSize {
		return common.ErrPageOverflow
	}
	binary.BigEndian.PutUint64(p.data[offset:], v)
	return nil
}

// Uint64At reads a big-endian u64 at offset.
func (p *Page) Uint64At(offset int) (uint64, error) {
	if offset < 0 || offset+8 > PageSize {
		return 0, common.ErrCorruption
	}
	return binary.BigEndian.Uint64(p.data[offset:]), nil
}

// WriteRunAt writes a length-prefixed byte run (8-byte big-endian
// length followed by the bytes) at offset. Returns the number of bytes
// written.
func (p *Page) WriteRunAt(offset int, b []byte) (int, error) {
	if offset < 0 || offset+runHeaderSize+len(b) > PageSize {
		return 0, common.ErrPageOverflow
	}
	binary.BigEndian.PutUint64(p.data[offset:], uint64(len(b)))
	copy(p.data[offset+runHeaderSize:], b)
	return runHeaderSize + len(b), nil
}

// RunAt reads a length-prefixed byte run at offset. Returns the bytes
// and the number of bytes consumed.
func (p *Page) RunAt(offset int) ([]byte, int, error) {
	length, err := p.Uint64At(offset)
	if err != nil {
		return nil, 0, err
	}
	if length > PageSize || offset+runHeaderSize+int(length) > PageSize {
		return nil, 0, common.ErrCorruption
	}
	b := make([]byte, length)
	copy(b, p.data[offset+runHeaderSize:])
	return b, runHeaderSize + int(length), nil
}

// writeRawAt copies bytes at offset without a length prefix.
func (p *Page) writeRawAt(offset int, b []byte) (int, error) {
	if offset < 0 || offset+len(b) > PageSize {
		return 0, common.ErrPageOverflow
	}
	copy(p.data[offset:], b)
	return len(b), nil
}

// readRawAt reads n bytes at offset without a length prefix.
func (p *Page) readRawAt(offset, n int) ([]byte, error) {
	if offset < 0 || n < 0 || offset+n > PageSize {
		return nil, common.ErrCorruption
	}
	b := make([]byte, n)
	copy(b, p.data[offset:])
	return b, nil
}
