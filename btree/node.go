package btree

import (
	"bytes"
	"sort"

	"github.com/notjustinshaw/btree/common"
)

// On-disk node layout. Every page holding a node starts with a common
// 18-byte header, followed by a type-specific body:
//
//	[is_root(1)][node_type(1)][parent_offset(8)][count(8)]
//
// Internal body: count child offsets (8 bytes each), then count-1
// length-prefixed keys. count is the number of children.
//
// Leaf body: count entries of [key_len(8)][value_len(8)][key][value].
// count is the number of pairs.
//
// All integers are big-endian u64. Unused tail bytes are ignored.
const (
	nodeTypeInternal byte = 0x01
	nodeTypeLeaf     byte = 0x02

	headerOffsetIsRoot   = 0
	headerOffsetNodeType = 1
	headerOffsetParent   = 2
	headerOffsetCount    = 10
	headerSize           = 18

	// leafEntryHeaderSize is the two length fields of a leaf entry.
	leafEntryHeaderSize = 16
)

// pair is an ordered key-value pair stored in a leaf.
type pair struct {
	key   []byte
	value []byte
}

// node is the in-memory form of a page-resident tree node. Exactly one
// of (keys, children) or pairs is populated, depending on typ.
//
// offset is the page the node will be written to (or was read from).
// parent is the on-disk parent hint; it goes stale the moment the
// parent is copied, so mutation paths carry parents on the traversal
// stack instead of following it.
type node struct {
	typ    byte
	isRoot bool
	parent uint64
	offset uint64

	// Internal nodes: len(children) == len(keys)+1, keys strictly
	// ascending. Every key in children[i] is < keys[i] and >= keys[i-1].
	keys     [][]byte
	children []uint64

	// Leaf nodes: pair keys strictly ascending.
	pairs []pair
}

func newLeaf() *node {
	return &node{typ: nodeTypeLeaf}
}

func newInternal() *node {
	return &node{typ: nodeTypeInternal}
}

func (n *node) isLeaf() bool {
	return n.typ == nodeTypeLeaf
}

// entries is the occupancy measure bounded by the branching factor:
// pairs for a leaf, keys for an internal node.
func (n *node) entries() int {
	if n.isLeaf() {
		return len(n.pairs)
	}
	return len(n.keys)
}

func (n *node) overfull(b int) bool {
	return n.entries() > 2*b-1
}

func (n *node) underfull(b int) bool {
	return n.entries() < b-1
}

// clone deep-copies the node. The copy has no assigned page offset.
func (n *node) clone() *node {
	c := &node{
		typ:    n.typ,
		isRoot: n.isRoot,
		parent: n.parent,
	}
	if n.isLeaf() {
		c.pairs = make([]pair, len(n.pairs))
		for i, kv := range n.pairs {
			c.pairs[i] = pair{
				key:   append([]byte(nil), kv.key...),
				value: append([]byte(nil), kv.value...),
			}
		}
		return c
	}
	c.keys = make([][]byte, len(n.keys))
	for i, k := range n.keys {
		c.keys[i] = append([]byte(nil), k...)
	}
	c.children = append([]uint64(nil), n.children...)
	return c
}

// findPair locates key in a leaf. Returns the index of the pair and
// true, or the insertion position and false.
func (n *node) findPair(key []byte) (int, bool) {
	i := sort.Search(len(n.pairs), func(i int) bool {
		return bytes.Compare(n.pairs[i].key, key) >= 0
	})
	if i < len(n.pairs) && bytes.Equal(n.pairs[i].key, key) {
		return i, true
	}
	return i, false
}

// insertPair inserts or overwrites a pair in sorted position. Returns
// true if the key was new.
func (n *node) insertPair(key, value []byte) bool {
	i, found := n.findPair(key)
	if found {
		n.pairs[i].value = value
		return false
	}
	n.pairs = append(n.pairs, pair{})
	copy(n.pairs[i+1:], n.pairs[i:])
	n.pairs[i] = pair{key: key, value: value}
	return true
}

// removePair deletes the pair at index i.
func (n *node) removePair(i int) {
	n.pairs = append(n.pairs[:i], n.pairs[i+1:]...)
}

// childIndex returns the index of the child to descend into for key.
// The smallest i with key <= keys[i] decides: equality descends right
// of the separator, strict inequality left of it. Keys greater than
// every separator descend into the rightmost child.
func (n *node) childIndex(key []byte) int {
	i := sort.Search(len(n.keys), func(i int) bool {
		return bytes.Compare(key, n.keys[i]) <= 0
	})
	if i < len(n.keys) && bytes.Equal(key, n.keys[i]) {
		return i + 1
	}
	return i
}

// serialize encodes the node into a fresh page.
func (n *node) serialize() (*Page, error) {
	p := NewPage()

	var isRoot byte
	if n.isRoot {
		isRoot = 1
	}
	if err := p.WriteByteAt(headerOffsetIsRoot, isRoot); err != nil {
		return nil, err
	}
	if err := p.WriteByteAt(headerOffsetNodeType, n.typ); err != nil {
		return nil, err
	}
	if err := p.WriteUint64At(headerOffsetParent, n.parent); err != nil {
		return nil, err
	}

	if n.isLeaf() {
		if err := p.WriteUint64At(headerOffsetCount, uint64(len(n.pairs))); err != nil {
			return nil, err
		}
		off := headerSize
		for _, kv := range n.pairs {
			if err := p.WriteUint64At(off, uint64(len(kv.key))); err != nil {
				return nil, common.ErrPageOverflow
			}
			if err := p.WriteUint64At(off+8, uint64(len(kv.value))); err != nil {
				return nil, common.ErrPageOverflow
			}
			off += leafEntryHeaderSize
			m, err := p.writeRawAt(off, kv.key)
			if err != nil {
				return nil, err
			}
			off += m
			m, err = p.writeRawAt(off, kv.value)
			if err != nil {
				return nil, err
			}
			off += m
		}
		return p, nil
	}

	if err := p.WriteUint64At(headerOffsetCount, uint64(len(n.children))); err != nil {
		return nil, err
	}
	off := headerSize
	for _, child := range n.children {
		if err := p.WriteUint64At(off, child); err != nil {
			return nil, common.ErrPageOverflow
		}
		off += 8
	}
	for _, key := range n.keys {
		m, err := p.WriteRunAt(off, key)
		if err != nil {
			return nil, err
		}
		off += m
	}
	return p, nil
}

// deserializeNode decodes a page into a node. Inverse of serialize on
// well-formed input; sequences are read back in stored order and not
// re-validated.
func deserializeNode(p *Page) (*node, error) {
	isRoot, err := p.ByteAt(headerOffsetIsRoot)
	if err != nil {
		return nil, err
	}
	typ, err := p.ByteAt(headerOffsetNodeType)
	if err != nil {
		return nil, err
	}
	if typ != nodeTypeInternal && typ != nodeTypeLeaf {
		return nil, common.ErrUnexpectedNodeType
	}
	parent, err := p.Uint64At(headerOffsetParent)
	if err != nil {
		return nil, err
	}
	count, err := p.Uint64At(headerOffsetCount)
	if err != nil {
		return nil, err
	}
	if count > PageSize {
		return nil, common.ErrCorruption
	}

	n := &node{
		typ:    typ,
		isRoot: isRoot == 1,
		parent: parent,
	}

	if n.isLeaf() {
		n.pairs = make([]pair, 0, count)
		off := headerSize
		for i := uint64(0); i < count; i++ {
			keyLen, err := p.Uint64At(off)
			if err != nil {
				return nil, err
			}
			valueLen, err := p.Uint64At(off + 8)
			if err != nil {
				return nil, err
			}
			if keyLen > PageSize || valueLen > PageSize {
				return nil, common.ErrCorruption
			}
			off += leafEntryHeaderSize
			key, err := p.readRawAt(off, int(keyLen))
			if err != nil {
				return nil, err
			}
			off += int(keyLen)
			value, err := p.readRawAt(off, int(valueLen))
			if err != nil {
				return nil, err
			}
			off += int(valueLen)
			n.pairs = append(n.pairs, pair{key: key, value: value})
		}
		return n, nil
	}

	if count == 0 {
		return nil, common.ErrCorruption
	}
	n.children = make([]uint64, 0, count)
	off := headerSize
	for i := uint64(0); i < count; i++ {
		child, err := p.Uint64At(off)
		if err != nil {
			return nil, err
		}
		n.children = append(n.children, child)
		off += 8
	}
	n.keys = make([][]byte, 0, count-1)
	for i := uint64(0); i < count-1; i++ {
		key, m, err := p.RunAt(off)
		if err != nil {
			return nil, err
		}
		n.keys = append(n.keys, key)
		off += m
	}
	return n, nil
}
