package tilefmt

import "github.com/clarisma/geodesk-go/internal/bits"

// Tile payload layout offsets (spec §3.2), grounded on the source's
// TileConstants.h: payloadSize(4) | revision(4) | nodeIndex(4) |
// wayIndex(4) | areaIndex(4) | relationIndex(4) | exports(4) | ...data.
const (
	tilePayloadSizeOfs = 0
	tileRevisionOfs    = 4
	tileNodeIndexOfs   = 8
	tileWayIndexOfs    = 12
	tileAreaIndexOfs   = 16
	tileRelationOfs    = 20
	tileExportsOfs     = 24
	// TileHeaderSize is the size of a tile payload's fixed header,
	// before feature/index data begins.
	TileHeaderSize = 28
)

// FeatureIndexType selects one of a tile's four type-partitioned spatial
// indexes (spec §3.2, §4.5).
type FeatureIndexType int

const (
	IndexNodes FeatureIndexType = iota
	IndexWays
	IndexAreas
	IndexRelations
)

// TilePtr is a borrowed view of a tile blob's payload bytes.
type TilePtr struct {
	data []byte
}

// NewTilePtr wraps a tile's payload bytes (the blob's content after its
// BlobPrefixSize-byte (payloadSize,flags) prefix has been stripped by
// the caller).
func NewTilePtr(data []byte) TilePtr { return TilePtr{data: data} }

// PayloadSize returns the tile's declared payload size.
func (t TilePtr) PayloadSize() uint32 { return bits.U32(t.data[tilePayloadSizeOfs:]) }

// Revision returns the tile's revision stamp.
func (t TilePtr) Revision() uint32 { return bits.U32(t.data[tileRevisionOfs:]) }

// IndexRoot returns the byte offset (within t.data) of the root index
// node for the given feature index type.
func (t TilePtr) IndexRoot(idx FeatureIndexType) uint32 {
	switch idx {
	case IndexNodes:
		return bits.U32(t.data[tileNodeIndexOfs:])
	case IndexWays:
		return bits.U32(t.data[tileWayIndexOfs:])
	case IndexAreas:
		return bits.U32(t.data[tileAreaIndexOfs:])
	case IndexRelations:
		return bits.U32(t.data[tileRelationOfs:])
	default:
		return 0
	}
}

// ExportsOffset returns the byte offset of the tile's exports table
// (foreign-tile cross-references), present only in multi-tile datasets.
func (t TilePtr) ExportsOffset() uint32 { return bits.U32(t.data[tileExportsOfs:]) }

// Bytes returns the tile's raw payload bytes, for constructing
// FeaturePtr/IndexNodePtr views at a given offset.
func (t TilePtr) Bytes() []byte { return t.data }

// Feature returns the FeaturePtr at the given offset.
func (t TilePtr) Feature(off uint32) FeaturePtr { return NewFeaturePtr(t.data, off) }
