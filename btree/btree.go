package btree

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/notjustinshaw/btree/common"
)

// Config holds configuration for the copy-on-write B+Tree
type Config struct {
	Path    string // backing data file (required)
	WALPath string // root log file; defaults to Path + ".wal"
	B       int    // branching factor, >= 2
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig(dataDir string) Config {
	return Config{
		Path: dataDir + "/cowbtree.db",
		B:    32, // nodes hold 31..63 entries, a good fit for 4KB pages
	}
}

// BTree is a persistent copy-on-write B+Tree. Every mutation rewrites
// the touched path to freshly allocated pages and then commits the new
// root to the root log, so a previously committed tree is never
// overwritten. The engine is single-writer; the mutex is a guard
// against misuse, not a scheduler.
type BTree struct {
	config Config
	pager  *Pager
	wal    *RootLog

	mu   sync.RWMutex
	root uint64 // offset of the committed root page

	stats struct {
		numKeys          int64
		writeCount       atomic.Int64
		readCount        atomic.Int64
		userBytesWritten atomic.Int64
	}

	closed atomic.Bool

	// beforeCommit runs after the operation's pages are flushed and
	// before the root log advances. Tests inject failures here to
	// exercise crash recovery.
	beforeCommit func() error
}

// New creates or opens a tree database
func New(config Config) (*BTree, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("data file path is required")
	}
	if config.B < 2 {
		return nil, fmt.Errorf("branching factor must be at least 2, got %d", config.B)
	}
	if config.WALPath == "" {
		config.WALPath = config.Path + ".wal"
	}

	pager, err := OpenPager(config.Path)
	if err != nil {
		return nil, err
	}

	wal, err := OpenRootLog(config.WALPath)
	if err != nil {
		pager.Close()
		return nil, err
	}

	b := &BTree{
		config: config,
		pager:  pager,
		wal:    wal,
	}

	root, ok := wal.Latest()
	if !ok {
		// Fresh tree: seed and commit an empty root leaf.
		if err := b.seedRoot(); err != nil {
			pager.Close()
			wal.Close()
			return nil, err
		}
	} else {
		if int64(root) >= pager.Size() {
			pager.Close()
			wal.Close()
			return nil, common.ErrCorruption
		}
		b.root = root
		n, err := b.countPairs(root)
		if err != nil {
			pager.Close()
			wal.Close()
			return nil, err
		}
		b.stats.numKeys = n
	}

	return b, nil
}

func (b *BTree) seedRoot() error {
	root := newLeaf()
	root.isRoot = true

	offset, err := b.pager.Allocate()
	if err != nil {
		return err
	}
	root.offset = offset
	return b.commit(map[uint64]*node{offset: root}, root)
}

// countPairs walks the subtree at offset and counts leaf pairs.
func (b *BTree) countPairs(offset uint64) (int64, error) {
	n, err := b.readNode(offset)
	if err != nil {
		return 0, err
	}
	if n.isLeaf() {
		return int64(len(n.pairs)), nil
	}
	var total int64
	for _, child := range n.children {
		sub, err := b.countPairs(child)
		if err != nil {
			return 0, err
		}
		total += sub
	}
	return total, nil
}

// readNode reads and decodes the node stored at offset.
func (b *BTree) readNode(offset uint64) (*node, error) {
	page, err := b.pager.ReadPage(offset)
	if err != nil {
		return nil, err
	}
	n, err := deserializeNode(page)
	if err != nil {
		return nil, err
	}
	n.offset = offset
	return n, nil
}

// pathFrame records one step of a root-to-leaf traversal: the node, the
// page it was read from, and the child index taken to reach the next
// frame. The frame stack is the authoritative parent chain during
// mutation; the on-disk parent hints are not consulted.
type pathFrame struct {
	n        *node
	childIdx int
}

// descend walks from the committed root to the leaf responsible for
// key, recording the path.
func (b *BTree) descend(key []byte) ([]pathFrame, error) {
	path := make([]pathFrame, 0, 4)
	offset := b.root
	for {
		n, err := b.readNode(offset)
		if err != nil {
			return nil, err
		}
		if n.isLeaf() {
			path = append(path, pathFrame{n: n})
			return path, nil
		}
		if len(n.children) != len(n.keys)+1 {
			return nil, common.ErrCorruption
		}
		ci := n.childIndex(key)
		path = append(path, pathFrame{n: n, childIdx: ci})
		offset = n.children[ci]
	}
}

// Search returns the value stored under key
func (b *BTree) Search(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, common.ErrKeyEmpty
	}
	if b.closed.Load() {
		return nil, common.ErrClosed
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	b.stats.readCount.Add(1)

	offset := b.root
	for {
		n, err := b.readNode(offset)
		if err != nil {
			return nil, err
		}
		if n.isLeaf() {
			i, found := n.findPair(key)
			if !found {
				return nil, common.ErrKeyNotFound
			}
			return n.pairs[i].value, nil
		}
		if len(n.children) != len(n.keys)+1 {
			return nil, common.ErrCorruption
		}
		offset = n.children[n.childIndex(key)]
	}
}

// Insert adds or overwrites a key-value pair
func (b *BTree) Insert(key, value []byte) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	// A key must fit both in a one-pair leaf and, promoted, in a
	// two-child internal node.
	if headerSize+2*8+runHeaderSize+len(key) > PageSize {
		return common.ErrKeyOverflow
	}
	if headerSize+leafEntryHeaderSize+len(key)+len(value) > PageSize {
		return common.ErrValueOverflow
	}
	if b.closed.Load() {
		return common.ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.writeCount.Add(1)
	b.stats.userBytesWritten.Add(int64(len(key) + len(value)))

	return b.insert(key, value)
}

// Delete removes a key
func (b *BTree) Delete(key []byte) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	if b.closed.Load() {
		return common.ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.writeCount.Add(1)

	return b.delete(key)
}

// copyNode clones n and assigns the copy a freshly allocated page, per
// the copy-on-write discipline: a page reachable from a committed root
// is never rewritten.
func (b *BTree) copyNode(n *node) (*node, error) {
	c := n.clone()
	offset, err := b.pager.Allocate()
	if err != nil {
		return nil, err
	}
	c.offset = offset
	return c, nil
}

// newNodeAt returns an empty node of the given type on a fresh page.
func (b *BTree) newNodeAt(typ byte) (*node, error) {
	n := &node{typ: typ}
	offset, err := b.pager.Allocate()
	if err != nil {
		return nil, err
	}
	n.offset = offset
	return n, nil
}

// commit makes an operation durable: serialize every dirty node, write
// the pages, flush them, then append the new root to the root log. A
// failure at any point leaves the root log unadvanced and the previous
// tree intact.
func (b *BTree) commit(dirty map[uint64]*node, root *node) error {
	pages := make(map[uint64]*Page, len(dirty))
	for offset, n := range dirty {
		page, err := n.serialize()
		if err != nil {
			return err
		}
		pages[offset] = page
	}

	for offset, page := range pages {
		if err := b.pager.WritePage(offset, page); err != nil {
			return err
		}
	}
	if err := b.pager.Flush(); err != nil {
		return err
	}

	if b.beforeCommit != nil {
		if err := b.beforeCommit(); err != nil {
			return err
		}
	}

	if err := b.wal.Commit(root.offset); err != nil {
		return err
	}
	b.root = root.offset
	return nil
}

// Sync flushes the data file. The root log is not flushed here; every
// commit already syncs it before returning.
func (b *BTree) Sync() error {
	if b.closed.Load() {
		return common.ErrClosed
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.pager.Flush(); err != nil {
		return err
	}
	return nil
}

// Stats returns statistics about the tree
func (b *BTree) Stats() common.Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	numPages := b.pager.NumPages()
	totalDiskSize := b.pager.Size()

	userBytes := b.stats.userBytesWritten.Load()
	writeAmp := 1.0
	if userBytes > 0 {
		writeAmp = float64(b.pager.BytesWritten()) / float64(userBytes)
	}

	logicalSize := userBytes
	if logicalSize == 0 {
		logicalSize = 1
	}

	return common.Stats{
		NumKeys:       b.stats.numKeys,
		NumPages:      numPages,
		TotalDiskSize: totalDiskSize,
		WriteCount:    b.stats.writeCount.Load(),
		ReadCount:     b.stats.readCount.Load(),
		WriteAmp:      writeAmp,
		SpaceAmp:      float64(totalDiskSize) / float64(logicalSize),
	}
}

// Close flushes and closes the data file and root log
func (b *BTree) Close() error {
	if b.closed.Swap(true) {
		return nil // Already closed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.wal.Close(); err != nil {
		return fmt.Errorf("failed to close root log: %w", err)
	}
	return b.pager.Close()
}
