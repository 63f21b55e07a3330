package tilefmt

import (
	"github.com/clarisma/geodesk-go/internal/bits"
	"github.com/clarisma/geodesk-go/internal/mercator"
)

// IndexNodeKind distinguishes a branch (internal node, descend into
// children) from a leaf (enumerate feature offsets) in a tile's
// type-partitioned RTree-like index (spec §3.2, §4.5).
type IndexNodeKind uint8

const (
	IndexLeaf IndexNodeKind = iota
	IndexBranch
)

// indexNodeHeaderSize is bbox(16) + indexBits(4) + kind(1) + count(2).
const indexNodeHeaderSize = 23

// IndexNodePtr is a borrowed view of one node of a tile's spatial index.
type IndexNodePtr struct {
	tile []byte
	off  uint32
}

// NewIndexNodePtr constructs a view at the given offset within tile.
func NewIndexNodePtr(tile []byte, off uint32) IndexNodePtr {
	return IndexNodePtr{tile: tile, off: off}
}

// Bounds returns the node's (and by invariant, all its descendants')
// bounding box.
func (n IndexNodePtr) Bounds() mercator.Bounds {
	raw := n.tile[n.off : n.off+16]
	return mercator.Bounds{
		MinX: bits.I32(raw[0:4]),
		MinY: bits.I32(raw[4:8]),
		MaxX: bits.I32(raw[8:12]),
		MaxY: bits.I32(raw[12:16]),
	}
}

// IndexBits returns the bitwise-OR of the indexBits of every descendant
// feature (spec §3.2): the mask this subtree's pruning test is against.
func (n IndexNodePtr) IndexBits() uint32 {
	return bits.U32(n.tile[n.off+16 : n.off+20])
}

// Kind reports whether this node is a branch or a leaf.
func (n IndexNodePtr) Kind() IndexNodeKind { return IndexNodeKind(n.tile[n.off+20]) }

// Count returns the number of children (branch) or items (leaf).
func (n IndexNodePtr) Count() int {
	return int(bits.U16(n.tile[n.off+21 : n.off+23]))
}

// entryOffset returns the byte offset of entry i's 4-byte uint32 value.
func (n IndexNodePtr) entryOffset(i int) uint32 {
	return n.off + indexNodeHeaderSize + uint32(i)*4
}

func (n IndexNodePtr) entry(i int) uint32 {
	return bits.U32(n.tile[n.entryOffset(i) : n.entryOffset(i)+4])
}

// Child returns the i-th child node of a branch.
func (n IndexNodePtr) Child(i int) IndexNodePtr {
	return NewIndexNodePtr(n.tile, n.entry(i))
}

// Item returns the tile-relative offset of the i-th feature referenced
// by a leaf.
func (n IndexNodePtr) Item(i int) uint32 {
	return n.entry(i)
}
