package btree

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/notjustinshaw/btree/common"
	"github.com/notjustinshaw/btree/common/testutil"
)

func TestCrashBeforeRootCommit(t *testing.T) {
	dir := testutil.TempDir(t)
	config := DefaultConfig(dir)
	config.B = 2

	tree, err := New(config)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		key := []byte(fmt.Sprintf("key%d", i))
		if err := tree.Insert(key, []byte(fmt.Sprintf("value%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	if err := tree.Sync(); err != nil {
		t.Fatal(err)
	}

	// Fail the fourth insert after its pages are flushed but before the
	// root log advances, then drop the engine: the crash window the
	// copy-on-write discipline protects.
	injected := errors.New("injected crash before root commit")
	tree.beforeCommit = func() error { return injected }

	if err := tree.Insert([]byte("key3"), []byte("value3")); !errors.Is(err, injected) {
		t.Fatalf("expected injected error, got %v", err)
	}
	tree.beforeCommit = nil
	if err := tree.Close(); err != nil {
		t.Fatal(err)
	}

	tree, err = New(config)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer tree.Close()

	for i := 0; i < 3; i++ {
		key := []byte(fmt.Sprintf("key%d", i))
		value, err := tree.Search(key)
		if err != nil {
			t.Fatalf("Search(key%d) failed after crash: %v", i, err)
		}
		if string(value) != fmt.Sprintf("value%d", i) {
			t.Fatalf("value mismatch for key%d after crash", i)
		}
	}
	if _, err := tree.Search([]byte("key3")); err != common.ErrKeyNotFound {
		t.Fatalf("uncommitted key visible after crash: %v", err)
	}
	checkTree(t, tree)
}

func TestCrashDuringSplitCommit(t *testing.T) {
	dir := testutil.TempDir(t)
	config := DefaultConfig(dir)
	config.B = 2

	tree, err := New(config)
	if err != nil {
		t.Fatal(err)
	}

	// Fill the root leaf; the next insert splits it.
	for _, k := range []string{"a", "b", "c"} {
		if err := tree.Insert([]byte(k), []byte("v-"+k)); err != nil {
			t.Fatal(err)
		}
	}

	injected := errors.New("injected crash")
	tree.beforeCommit = func() error { return injected }
	if err := tree.Insert([]byte("d"), []byte("v-d")); !errors.Is(err, injected) {
		t.Fatalf("expected injected error, got %v", err)
	}
	tree.beforeCommit = nil
	tree.Close()

	tree, err = New(config)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer tree.Close()

	// The previously committed single-leaf tree is intact.
	if depth := treeDepth(t, tree); depth != 1 {
		t.Fatalf("depth after aborted split = %d, want 1", depth)
	}
	for _, k := range []string{"a", "b", "c"} {
		if v, err := tree.Search([]byte(k)); err != nil || string(v) != "v-"+k {
			t.Fatalf("Search(%s) = %s, %v", k, v, err)
		}
	}
	if _, err := tree.Search([]byte("d")); err != common.ErrKeyNotFound {
		t.Fatalf("aborted insert visible: %v", err)
	}
	checkTree(t, tree)

	// The tree accepts the insert cleanly after recovery.
	if err := tree.Insert([]byte("d"), []byte("v-d")); err != nil {
		t.Fatal(err)
	}
	if v, err := tree.Search([]byte("d")); err != nil || string(v) != "v-d" {
		t.Fatalf("Search(d) after retry = %s, %v", v, err)
	}
}

func TestReopenWithTornRootLogTail(t *testing.T) {
	dir := testutil.TempDir(t)
	config := DefaultConfig(dir)
	config.B = 2

	tree, err := New(config)
	if err != nil {
		t.Fatal(err)
	}
	if err := tree.Insert([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	tree.Close()

	// Append half a record to the root log, as a crash mid-commit would.
	walPath := config.Path + ".wal"
	f, err := os.OpenFile(walPath, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(make([]byte, rootRecordSize/2)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	tree, err = New(config)
	if err != nil {
		t.Fatalf("reopen with torn tail failed: %v", err)
	}
	defer tree.Close()

	if v, err := tree.Search([]byte("k")); err != nil || string(v) != "v" {
		t.Fatalf("Search(k) = %s, %v", v, err)
	}
}
