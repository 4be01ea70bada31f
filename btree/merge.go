package btree

import (
	"github.com/notjustinshaw/btree/common"
)

// Copy-on-write delete with borrow/merge rebalancing. An underfull node
// first tries to borrow one entry from a sibling that can spare it,
// preferring the left; otherwise it merges with a sibling, again
// preferring the left. A merge drops a separator from the parent, which
// may leave the parent underfull in turn, so the check recurses up the
// path. A root left holding a single child collapses into that child.

// delete removes key, rebalancing on the way back up. Called with the
// write lock held.
func (b *BTree) delete(key []byte) error {
	path, err := b.descend(key)
	if err != nil {
		return err
	}

	leafFrame := path[len(path)-1]
	idx, found := leafFrame.n.findPair(key)
	if !found {
		// Nothing was allocated or written for a miss.
		return common.ErrKeyNotFound
	}

	leaf, err := b.copyNode(leafFrame.n)
	if err != nil {
		return err
	}
	leaf.removePair(idx)

	dirty := map[uint64]*node{leaf.offset: leaf}
	cur := leaf

	for i := len(path) - 1; i > 0; i-- {
		parent, err := b.copyNode(path[i-1].n)
		if err != nil {
			return err
		}
		ci := path[i-1].childIdx
		parent.children[ci] = cur.offset
		cur.parent = parent.offset
		dirty[parent.offset] = parent

		if cur.underfull(b.config.B) {
			if err := b.rebalance(parent, cur, ci, dirty); err != nil {
				return err
			}
		}
		cur = parent
	}

	root := cur
	if !root.isLeaf() && len(root.keys) == 0 {
		// The last separator merged away: the single child becomes the
		// new root and the tree shrinks by one level.
		child := dirty[root.children[0]]
		if child == nil {
			child, err = b.readNode(root.children[0])
			if err != nil {
				return err
			}
			if child, err = b.copyNode(child); err != nil {
				return err
			}
			dirty[child.offset] = child
		}
		child.isRoot = true
		child.parent = 0
		delete(dirty, root.offset)
		root = child
	}

	if err := b.commit(dirty, root); err != nil {
		return err
	}
	b.stats.numKeys--
	return nil
}

// rebalance restores the occupancy bound on cur, the freshly copied
// child at index ci of parent (also a fresh copy). Siblings are read
// from the parent's still-original child offsets; any sibling that
// changes is itself copied to a new page.
func (b *BTree) rebalance(parent, cur *node, ci int, dirty map[uint64]*node) error {
	minEntries := b.config.B - 1

	var leftSib, rightSib *node
	var err error
	if ci > 0 {
		if leftSib, err = b.readNode(parent.children[ci-1]); err != nil {
			return err
		}
	}
	if ci+1 < len(parent.children) {
		if rightSib, err = b.readNode(parent.children[ci+1]); err != nil {
			return err
		}
	}

	if leftSib != nil && leftSib.entries() > minEntries {
		return b.borrowFromLeft(parent, cur, leftSib, ci, dirty)
	}
	if rightSib != nil && rightSib.entries() > minEntries {
		return b.borrowFromRight(parent, cur, rightSib, ci, dirty)
	}
	if leftSib != nil {
		return b.mergeWithLeft(parent, cur, leftSib, ci, dirty)
	}
	if rightSib != nil {
		return b.mergeWithRight(parent, cur, rightSib, ci, dirty)
	}
	// A non-root node always has at least one sibling.
	return common.ErrCorruption
}

// borrowFromLeft moves the left sibling's last entry into cur and
// rotates the parent separator to the new boundary key.
func (b *BTree) borrowFromLeft(parent, cur, leftSib *node, ci int, dirty map[uint64]*node) error {
	l, err := b.copyNode(leftSib)
	if err != nil {
		return err
	}
	dirty[l.offset] = l
	parent.children[ci-1] = l.offset
	l.parent = parent.offset

	if cur.isLeaf() {
		moved := l.pairs[len(l.pairs)-1]
		l.pairs = l.pairs[: len(l.pairs)-1 : len(l.pairs)-1]
		cur.pairs = append([]pair{moved}, cur.pairs...)
		parent.keys[ci-1] = moved.key
		return nil
	}

	// Internal borrow rotates through the parent: the separator comes
	// down in front of cur's keys and the sibling's last key goes up.
	sep := parent.keys[ci-1]
	cur.keys = append([][]byte{sep}, cur.keys...)
	cur.children = append([]uint64{l.children[len(l.children)-1]}, cur.children...)
	parent.keys[ci-1] = l.keys[len(l.keys)-1]
	l.keys = l.keys[: len(l.keys)-1 : len(l.keys)-1]
	l.children = l.children[: len(l.children)-1 : len(l.children)-1]
	return nil
}

// borrowFromRight moves the right sibling's first entry into cur and
// updates the parent separator to the sibling's new first key.
func (b *BTree) borrowFromRight(parent, cur, rightSib *node, ci int, dirty map[uint64]*node) error {
	r, err := b.copyNode(rightSib)
	if err != nil {
		return err
	}
	dirty[r.offset] = r
	parent.children[ci+1] = r.offset
	r.parent = parent.offset

	if cur.isLeaf() {
		moved := r.pairs[0]
		r.pairs = append([]pair(nil), r.pairs[1:]...)
		cur.pairs = append(cur.pairs, moved)
		parent.keys[ci] = r.pairs[0].key
		return nil
	}

	sep := parent.keys[ci]
	cur.keys = append(cur.keys, sep)
	cur.children = append(cur.children, r.children[0])
	parent.keys[ci] = r.keys[0]
	r.keys = append([][]byte(nil), r.keys[1:]...)
	r.children = append([]uint64(nil), r.children[1:]...)
	return nil
}

// mergeWithLeft concatenates the left sibling and cur into one fresh
// node and drops the separator between them from the parent.
func (b *BTree) mergeWithLeft(parent, cur, leftSib *node, ci int, dirty map[uint64]*node) error {
	merged, err := b.newNodeAt(cur.typ)
	if err != nil {
		return err
	}
	merged.parent = parent.offset

	if cur.isLeaf() {
		merged.pairs = append(append([]pair(nil), leftSib.pairs...), cur.pairs...)
	} else {
		merged.keys = append(append([][]byte(nil), leftSib.keys...), parent.keys[ci-1])
		merged.keys = append(merged.keys, cur.keys...)
		merged.children = append(append([]uint64(nil), leftSib.children...), cur.children...)
	}

	parent.keys = append(parent.keys[:ci-1], parent.keys[ci:]...)
	parent.children = append(parent.children[:ci], parent.children[ci+1:]...)
	parent.children[ci-1] = merged.offset

	delete(dirty, cur.offset)
	dirty[merged.offset] = merged
	return nil
}

// mergeWithRight concatenates cur and the right sibling into one fresh
// node and drops the separator between them from the parent.
func (b *BTree) mergeWithRight(parent, cur, rightSib *node, ci int, dirty map[uint64]*node) error {
	merged, err := b.newNodeAt(cur.typ)
	if err != nil {
		return err
	}
	merged.parent = parent.offset

	if cur.isLeaf() {
		merged.pairs = append(append([]pair(nil), cur.pairs...), rightSib.pairs...)
	} else {
		merged.keys = append(append([][]byte(nil), cur.keys...), parent.keys[ci])
		merged.keys = append(merged.keys, rightSib.keys...)
		merged.children = append(append([]uint64(nil), cur.children...), rightSib.children...)
	}

	parent.keys = append(parent.keys[:ci], parent.keys[ci+1:]...)
	parent.children = append(parent.children[:ci+1], parent.children[ci+2:]...)
	parent.children[ci] = merged.offset

	delete(dirty, cur.offset)
	dirty[merged.offset] = merged
	return nil
}
