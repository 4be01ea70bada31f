package btree

import (
	"os"
	"testing"

	"github.com/notjustinshaw/btree/common"
	"github.com/notjustinshaw/btree/common/testutil"
)

func TestRootLogEmpty(t *testing.T) {
	dir := testutil.TempDir(t)
	log, err := OpenRootLog(dir + "/test.wal")
	if err != nil {
		t.Fatalf("OpenRootLog failed: %v", err)
	}
	defer log.Close()

	if _, ok := log.Latest(); ok {
		t.Fatal("fresh log reported a committed root")
	}
}

func TestRootLogCommitAndRecover(t *testing.T) {
	dir := testutil.TempDir(t)
	path := dir + "/test.wal"

	log, err := OpenRootLog(path)
	if err != nil {
		t.Fatal(err)
	}

	offsets := []uint64{PageSize, 5 * PageSize, 3 * PageSize}
	for _, off := range offsets {
		if err := log.Commit(off); err != nil {
			t.Fatalf("Commit(%d) failed: %v", off, err)
		}
	}
	if root, ok := log.Latest(); !ok || root != 3*PageSize {
		t.Fatalf("Latest = %d, %v", root, ok)
	}
	if log.Sequence() != 3 {
		t.Fatalf("Sequence = %d, want 3", log.Sequence())
	}
	log.Close()

	// Reopen and recover the last record.
	log, err = OpenRootLog(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer log.Close()
	if root, ok := log.Latest(); !ok || root != 3*PageSize {
		t.Fatalf("recovered root = %d, %v", root, ok)
	}
	if log.Sequence() != 3 {
		t.Fatalf("recovered sequence = %d, want 3", log.Sequence())
	}
}

func TestRootLogTornTail(t *testing.T) {
	dir := testutil.TempDir(t)
	path := dir + "/test.wal"

	log, err := OpenRootLog(path)
	if err != nil {
		t.Fatal(err)
	}
	log.Commit(PageSize)
	log.Commit(2 * PageSize)
	log.Close()

	// Chop the last record in half, as a crash mid-append would.
	stat, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(path, stat.Size()-rootRecordSize/2); err != nil {
		t.Fatal(err)
	}

	log, err = OpenRootLog(path)
	if err != nil {
		t.Fatalf("reopen after torn tail failed: %v", err)
	}
	if root, ok := log.Latest(); !ok || root != PageSize {
		t.Fatalf("recovered root = %d, %v; want the prior commit", root, ok)
	}

	// The log is usable again after discarding the torn tail.
	if err := log.Commit(4 * PageSize); err != nil {
		t.Fatalf("Commit after torn tail failed: %v", err)
	}
	log.Close()

	log, err = OpenRootLog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()
	if root, ok := log.Latest(); !ok || root != 4*PageSize {
		t.Fatalf("root after recommit = %d, %v", root, ok)
	}
}

func TestRootLogBadMagic(t *testing.T) {
	dir := testutil.TempDir(t)
	path := dir + "/test.wal"

	if err := os.WriteFile(path, []byte("not a root log at all"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenRootLog(path); err != common.ErrUnexpectedWALRecord {
		t.Fatalf("expected ErrUnexpectedWALRecord, got %v", err)
	}
}

func TestRootLogGarbageMidLog(t *testing.T) {
	dir := testutil.TempDir(t)
	path := dir + "/test.wal"

	log, err := OpenRootLog(path)
	if err != nil {
		t.Fatal(err)
	}
	log.Commit(PageSize)
	log.Commit(2 * PageSize)
	log.Close()

	// Corrupt the first record; the second still follows it, so this is
	// not a torn tail.
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt([]byte{0xFF, 0xFF, 0xFF, 0xFF}, rootLogHeaderSize); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := OpenRootLog(path); err != common.ErrUnexpectedWALRecord {
		t.Fatalf("expected ErrUnexpectedWALRecord, got %v", err)
	}
}

func TestRootLogRejectsBadOffsets(t *testing.T) {
	dir := testutil.TempDir(t)
	log, err := OpenRootLog(dir + "/test.wal")
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	if err := log.Commit(0); err != common.ErrUnexpectedWALRecord {
		t.Fatalf("Commit(0): expected ErrUnexpectedWALRecord, got %v", err)
	}
	if err := log.Commit(PageSize + 1); err != common.ErrUnexpectedWALRecord {
		t.Fatalf("Commit(unaligned): expected ErrUnexpectedWALRecord, got %v", err)
	}
}
