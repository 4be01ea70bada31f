package btree

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/notjustinshaw/btree/common"
)

const (
	// Header page (offset 0) layout. Reserving page 0 keeps offset 0
	// free as the "no parent" sentinel in node headers.
	headerPageMagic   = 0x434F5742 // "COWB"
	headerPageVersion = 1

	headerPageOffsetMagic   = 0
	headerPageOffsetVersion = 4
)

var ErrDatabaseLocked = errors.New("database locked by another process")

// Pager owns the backing file. It allocates page slots at the file end,
// reads and writes whole pages by byte offset, and flushes to durable
// storage on demand. Pages are never reused or reclaimed; superseded
// pages simply stay allocated. No caching beyond the OS page cache.
//
// The pager holds an exclusive flock on the file for its lifetime, so
// a second process (or a second pager in this one) cannot open the same
// tree.
type Pager struct {
	file *os.File
	path string

	mu   sync.Mutex
	size int64 // file size in bytes, always a multiple of PageSize

	stats struct {
		pageReads    int64
		pageWrites   int64
		bytesWritten int64
	}
}

// OpenPager creates or opens the backing file at path.
func OpenPager(path string) (*Pager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrDatabaseLocked
		}
		return nil, fmt.Errorf("failed to lock data file: %w", err)
	}

	p := &Pager{file: file, path: path}

	stat, err := file.Stat()
	if err != nil {
		p.unlockAndClose()
		return nil, fmt.Errorf("failed to stat data file: %w", err)
	}
	p.size = stat.Size()

	if p.size == 0 {
		if err := p.writeHeaderPage(); err != nil {
			p.unlockAndClose()
			return nil, err
		}
		p.size = PageSize
		return p, nil
	}

	if p.size%PageSize != 0 {
		p.unlockAndClose()
		return nil, common.ErrCorruption
	}
	if err := p.validateHeaderPage(); err != nil {
		p.unlockAndClose()
		return nil, err
	}
	return p, nil
}

func (p *Pager) writeHeaderPage() error {
	header := make([]byte, PageSize)
	binary.BigEndian.PutUint32(header[headerPageOffsetMagic:], headerPageMagic)
	binary.BigEndian.PutUint32(header[headerPageOffsetVersion:], headerPageVersion)
	if _, err := p.file.WriteAt(header, 0); err != nil {
		return fmt.Errorf("failed to write header page: %w", err)
	}
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync header page: %w", err)
	}
	return nil
}

func (p *Pager) validateHeaderPage() error {
	header := make([]byte, PageSize)
	if _, err := p.file.ReadAt(header, 0); err != nil {
		return fmt.Errorf("failed to read header page: %w", err)
	}
	if binary.BigEndian.Uint32(header[headerPageOffsetMagic:]) != headerPageMagic {
		return common.ErrCorruption
	}
	if binary.BigEndian.Uint32(header[headerPageOffsetVersion:]) != headerPageVersion {
		return common.ErrCorruption
	}
	return nil
}

// ReadPage reads exactly one page at the given byte offset.
func (p *Pager) ReadPage(offset uint64) (*Page, error) {
	p.mu.Lock()
	size := p.size
	p.mu.Unlock()

	if offset == 0 || offset%PageSize != 0 || int64(offset) >= size {
		return nil, common.ErrCorruption
	}

	data := make([]byte, PageSize)
	n, err := p.file.ReadAt(data, int64(offset))
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, common.ErrCorruption
		}
		return nil, fmt.Errorf("failed to read page at offset %d: %w", offset, err)
	}
	if n != PageSize {
		return nil, common.ErrCorruption
	}

	p.mu.Lock()
	p.stats.pageReads++
	p.mu.Unlock()

	return LoadPage(data)
}

// WritePage writes exactly one page at the given byte offset.
func (p *Pager) WritePage(offset uint64, page *Page) error {
	p.mu.Lock()
	size := p.size
	p.mu.Unlock()

	if offset == 0 || offset%PageSize != 0 || int64(offset) >= size {
		return common.ErrCorruption
	}

	if _, err := p.file.WriteAt(page.Data(), int64(offset)); err != nil {
		return fmt.Errorf("failed to write page at offset %d: %w", offset, err)
	}

	p.mu.Lock()
	p.stats.pageWrites++
	p.stats.bytesWritten += PageSize
	p.mu.Unlock()

	return nil
}

// Allocate returns a fresh page-aligned offset at the current file end
// and extends the file by one page.
func (p *Pager) Allocate() (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	offset := uint64(p.size)
	if err := p.file.Truncate(p.size + PageSize); err != nil {
		return 0, fmt.Errorf("failed to extend data file: %w", err)
	}
	p.size += PageSize
	return offset, nil
}

// Flush forces the file's data to durable storage.
func (p *Pager) Flush() error {
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync data file: %w", err)
	}
	return nil
}

// Size returns the current file size in bytes.
func (p *Pager) Size() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// NumPages returns the number of allocated pages, header page included.
func (p *Pager) NumPages() int {
	return int(p.Size() / PageSize)
}

// BytesWritten returns the total page bytes written through this pager.
func (p *Pager) BytesWritten() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.bytesWritten
}

func (p *Pager) unlockAndClose() error {
	unix.Flock(int(p.file.Fd()), unix.LOCK_UN)
	return p.file.Close()
}

// Close releases the file lock and closes the backing file.
func (p *Pager) Close() error {
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync data file on close: %w", err)
	}
	return p.unlockAndClose()
}
