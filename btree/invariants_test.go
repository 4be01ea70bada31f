package btree

import (
	"bytes"
	"testing"
)

// checkTree walks the committed tree and verifies the structural
// invariants: uniform leaf depth, strictly ascending keys, separator
// intervals, occupancy bounds, and consistent root flags.
func checkTree(t *testing.T, b *BTree) {
	t.Helper()

	leafDepth := -1
	bf := b.config.B

	var walk func(offset uint64, depth int, lower, upper []byte)
	walk = func(offset uint64, depth int, lower, upper []byte) {
		n, err := b.readNode(offset)
		if err != nil {
			t.Fatalf("readNode(%d) failed: %v", offset, err)
		}

		isRoot := depth == 0
		if n.isRoot != isRoot {
			t.Fatalf("node at %d: is_root = %v at depth %d", offset, n.isRoot, depth)
		}
		if isRoot && n.parent != 0 {
			t.Fatalf("root at %d has parent offset %d", offset, n.parent)
		}

		if n.entries() > 2*bf-1 {
			t.Fatalf("node at %d has %d entries, above the %d bound", offset, n.entries(), 2*bf-1)
		}
		if !isRoot && n.entries() < bf-1 {
			t.Fatalf("node at %d has %d entries, below the %d bound", offset, n.entries(), bf-1)
		}

		inBounds := func(key []byte) bool {
			if lower != nil && bytes.Compare(key, lower) < 0 {
				return false
			}
			if upper != nil && bytes.Compare(key, upper) >= 0 {
				return false
			}
			return true
		}

		if n.isLeaf() {
			if leafDepth == -1 {
				leafDepth = depth
			} else if depth != leafDepth {
				t.Fatalf("leaf at %d has depth %d, others have %d", offset, depth, leafDepth)
			}
			for i, kv := range n.pairs {
				if i > 0 && bytes.Compare(n.pairs[i-1].key, kv.key) >= 0 {
					t.Fatalf("leaf at %d: keys not strictly ascending", offset)
				}
				if !inBounds(kv.key) {
					t.Fatalf("leaf at %d: key %q outside separator interval", offset, kv.key)
				}
			}
			return
		}

		if len(n.children) != len(n.keys)+1 {
			t.Fatalf("internal at %d: %d children for %d keys", offset, len(n.children), len(n.keys))
		}
		for i, key := range n.keys {
			if i > 0 && bytes.Compare(n.keys[i-1], key) >= 0 {
				t.Fatalf("internal at %d: keys not strictly ascending", offset)
			}
			if !inBounds(key) {
				t.Fatalf("internal at %d: separator %q outside interval", offset, key)
			}
		}
		for i, child := range n.children {
			childLower, childUpper := lower, upper
			if i > 0 {
				childLower = n.keys[i-1]
			}
			if i < len(n.keys) {
				childUpper = n.keys[i]
			}
			walk(child, depth+1, childLower, childUpper)
		}
	}

	walk(b.root, 0, nil, nil)
}

// treeDepth returns the number of levels in the committed tree.
func treeDepth(t *testing.T, b *BTree) int {
	t.Helper()

	depth := 1
	offset := b.root
	for {
		n, err := b.readNode(offset)
		if err != nil {
			t.Fatalf("readNode(%d) failed: %v", offset, err)
		}
		if n.isLeaf() {
			return depth
		}
		offset = n.children[0]
		depth++
	}
}
