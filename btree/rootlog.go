package btree

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/notjustinshaw/btree/common"
)

// RootLog is the write-ahead log tracking the committed root page. It
// is an append log of fixed-size records; the last complete,
// checksum-valid record names the current root. A torn tail record
// (crash remnant) is discarded on open, so readers never observe a
// partially written root offset. Keeping the full record history also
// preserves every committed root offset, which is the hook a future
// multi-version layer would build on.
//
// File format:
//
//	[Magic "BTRL"(4)][Version(4)]
//	Record: [Sequence(8)][RootOffset(8)][CRC32(4)], integers big-endian.
type RootLog struct {
	file *os.File
	path string
	mu   sync.Mutex

	offset int64 // append position (end of last valid record)

	seq     uint64
	root    uint64
	hasRoot bool
}

const (
	rootLogMagic      = "BTRL"
	rootLogVersion    = 1
	rootLogHeaderSize = 8

	rootRecordSize = 20
)

// OpenRootLog creates or opens the root log at path and recovers the
// latest committed root offset from it.
func OpenRootLog(path string) (*RootLog, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open root log: %w", err)
	}

	l := &RootLog{file: file, path: path}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat root log: %w", err)
	}

	if stat.Size() == 0 {
		if err := l.writeHeader(); err != nil {
			file.Close()
			return nil, err
		}
		l.offset = rootLogHeaderSize
		return l, nil
	}

	if err := l.recover(stat.Size()); err != nil {
		file.Close()
		return nil, err
	}
	return l, nil
}

func (l *RootLog) writeHeader() error {
	header := make([]byte, rootLogHeaderSize)
	copy(header[0:4], rootLogMagic)
	binary.BigEndian.PutUint32(header[4:8], rootLogVersion)
	if _, err := l.file.WriteAt(header, 0); err != nil {
		return fmt.Errorf("failed to write root log header: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync root log header: %w", err)
	}
	return nil
}

// recover scans the log and keeps the last complete valid record. An
// invalid record followed by more data means the log itself is bad, not
// merely torn, and fails with ErrUnexpectedWALRecord.
func (l *RootLog) recover(size int64) error {
	if size < rootLogHeaderSize {
		return common.ErrUnexpectedWALRecord
	}

	header := make([]byte, rootLogHeaderSize)
	if _, err := l.file.ReadAt(header, 0); err != nil {
		return fmt.Errorf("failed to read root log header: %w", err)
	}
	if string(header[0:4]) != rootLogMagic {
		return common.ErrUnexpectedWALRecord
	}
	if binary.BigEndian.Uint32(header[4:8]) != rootLogVersion {
		return common.ErrUnexpectedWALRecord
	}

	offset := int64(rootLogHeaderSize)
	for offset+rootRecordSize <= size {
		record := make([]byte, rootRecordSize)
		if _, err := l.file.ReadAt(record, offset); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return fmt.Errorf("failed to read root log record: %w", err)
		}

		seq := binary.BigEndian.Uint64(record[0:8])
		root := binary.BigEndian.Uint64(record[8:16])
		sum := binary.BigEndian.Uint32(record[16:20])

		if crc32.ChecksumIEEE(record[0:16]) != sum {
			if offset+rootRecordSize < size {
				// Garbage in the middle of the log, not a torn tail.
				return common.ErrUnexpectedWALRecord
			}
			break
		}
		if root == 0 || root%PageSize != 0 {
			return common.ErrUnexpectedWALRecord
		}

		l.seq = seq
		l.root = root
		l.hasRoot = true
		offset += rootRecordSize
	}

	l.offset = offset
	if offset < size {
		// Drop the torn tail so the next commit starts on a record
		// boundary.
		if err := l.file.Truncate(offset); err != nil {
			return fmt.Errorf("failed to truncate torn root log tail: %w", err)
		}
	}
	return nil
}

// Latest returns the most recently committed root offset. The second
// return is false when no root has ever been committed (empty tree).
func (l *RootLog) Latest() (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.root, l.hasRoot
}

// Sequence returns the sequence number of the latest committed record.
func (l *RootLog) Sequence() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Commit appends a record naming the new root offset and flushes it to
// durable storage before returning.
func (l *RootLog) Commit(root uint64) error {
	if root == 0 || root%PageSize != 0 {
		return common.ErrUnexpectedWALRecord
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	record := make([]byte, rootRecordSize)
	binary.BigEndian.PutUint64(record[0:8], l.seq+1)
	binary.BigEndian.PutUint64(record[8:16], root)
	binary.BigEndian.PutUint32(record[16:20], crc32.ChecksumIEEE(record[0:16]))

	if _, err := l.file.WriteAt(record, l.offset); err != nil {
		return fmt.Errorf("failed to append root log record: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync root log: %w", err)
	}

	l.offset += rootRecordSize
	l.seq++
	l.root = root
	l.hasRoot = true
	return nil
}

// Close syncs and closes the log file.
func (l *RootLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync root log on close: %w", err)
	}
	return l.file.Close()
}
