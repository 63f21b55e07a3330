// Package tilefmt decodes tile blob payloads directly from mapped bytes:
// feature headers, tag tables, way geometry, relation member tables, and
// the node/way/area/relation spatial indexes a tile carries (spec §3.2,
// §3.3, §4.3). Every accessor here is a bounded, non-owning view; nothing
// allocates or copies on the read path.
package tilefmt

import (
	"github.com/clarisma/geodesk-go/internal/bits"
	"github.com/clarisma/geodesk-go/internal/mercator"
)

// FeatureType discriminates the three OSM feature kinds. "Area" is not a
// fourth type — it is a way or relation with AreaFlag set (spec
// Glossary: "An area is a way or relation whose AREA flag is set").
type FeatureType uint8

const (
	TypeNode FeatureType = iota
	TypeWay
	TypeRelation
)

func (t FeatureType) String() string {
	switch t {
	case TypeNode:
		return "node"
	case TypeWay:
		return "way"
	case TypeRelation:
		return "relation"
	default:
		return "unknown"
	}
}

// Feature flag bits packed into FeatureHeader.Flags() (spec §3.3). This
// port defines its own contiguous 10-bit layout rather than reusing the
// source's id/typeCode/flags interleaving verbatim — see DESIGN.md.
const (
	AreaFlag FeatureFlags = 1 << iota
	RelationMemberFlag
	WayNodeFlag
	MultitileWestFlag
	MultitileNorthFlag
	BuiltFromLocalFlag
)

// FeatureFlags is the bitset carried in a feature header's flags field.
type FeatureFlags uint16

// FeatureHeader packs a feature's id, type code and flags into one
// 64-bit word (spec §3.3: "header packs (id:52, typeCode:2, flags:10)"),
// stored as the first 8 bytes of a FeaturePtr's fixed prefix.
type FeatureHeader uint64

// MakeFeatureHeader builds a header word from its constituent fields.
func MakeFeatureHeader(id uint64, typ FeatureType, flags FeatureFlags) FeatureHeader {
	return FeatureHeader(id<<12 | uint64(flags&0x3FF)<<2 | uint64(typ&3))
}

// ID returns the feature's OSM id.
func (h FeatureHeader) ID() uint64 { return uint64(h) >> 12 }

// Type returns the feature's type code.
func (h FeatureHeader) Type() FeatureType { return FeatureType(h & 3) }

// Flags returns the feature's flag bits.
func (h FeatureHeader) Flags() FeatureFlags { return FeatureFlags((h >> 2) & 0x3FF) }

// FeaturePtrSize is the fixed-size prefix every feature occupies:
// header(8) bbox(16) bodyOffset(4) tagTableOffset(4) (spec §3.3).
const FeaturePtrSize = 32

// FeaturePtr is a borrowed view of one feature's fixed-size header block
// within a tile's payload bytes. It carries no lifetime of its own —
// validity is tied to the tile slice it was constructed from (spec §3.6,
// §9 "pointer graphs without raw pointers").
type FeaturePtr struct {
	tile []byte
	off  uint32
}

// NewFeaturePtr constructs a FeaturePtr at the given byte offset within
// tile. The caller is responsible for off being a valid feature boundary.
func NewFeaturePtr(tile []byte, off uint32) FeaturePtr {
	return FeaturePtr{tile: tile, off: off}
}

// IsNull reports whether p carries no backing tile.
func (p FeaturePtr) IsNull() bool { return p.tile == nil }

// Offset returns p's byte offset within its tile, for use as a local
// handle in cross-reference tables.
func (p FeaturePtr) Offset() uint32 { return p.off }

func (p FeaturePtr) raw() []byte { return p.tile[p.off : p.off+FeaturePtrSize] }

// Header returns the feature's packed header word.
func (p FeaturePtr) Header() FeatureHeader { return FeatureHeader(bits.U64(p.raw())) }

// ID returns the feature's OSM id.
func (p FeaturePtr) ID() uint64 { return p.Header().ID() }

// Type returns the feature's type code.
func (p FeaturePtr) Type() FeatureType { return p.Header().Type() }

// Flags returns the feature's flag bits.
func (p FeaturePtr) Flags() FeatureFlags { return p.Header().Flags() }

// IsArea reports whether the AREA flag is set.
func (p FeaturePtr) IsArea() bool { return p.Flags()&AreaFlag != 0 }

// IsWay reports whether this feature is a way.
func (p FeaturePtr) IsWay() bool { return p.Type() == TypeWay }

// IsRelation reports whether this feature is a relation.
func (p FeaturePtr) IsRelation() bool { return p.Type() == TypeRelation }

// IsNode reports whether this feature is a node.
func (p FeaturePtr) IsNode() bool { return p.Type() == TypeNode }

// Bounds returns the feature's bounding box.
func (p FeaturePtr) Bounds() mercator.Bounds {
	raw := p.raw()[8:24]
	return mercator.Bounds{
		MinX: bits.I32(raw[0:4]),
		MinY: bits.I32(raw[4:8]),
		MaxX: bits.I32(raw[8:12]),
		MaxY: bits.I32(raw[12:16]),
	}
}

// BodyOffset returns the offset (within the tile) of the feature's
// variable-length body (way coordinates, relation members, etc).
func (p FeaturePtr) BodyOffset() uint32 { return bits.U32(p.raw()[24:28]) }

// TagTableOffset returns the offset (within the tile) of the feature's
// tag table anchor.
func (p FeaturePtr) TagTableOffset() uint32 { return bits.U32(p.raw()[28:32]) }

// Body returns the feature's variable-length body bytes, from its body
// offset to the end of the tile payload.
func (p FeaturePtr) Body() []byte { return p.tile[p.BodyOffset():] }

// Tags returns the feature's tag table.
func (p FeaturePtr) Tags() TagTablePtr {
	return TagTablePtr{tile: p.tile, anchor: p.TagTableOffset()}
}

// HasRelations reports whether the feature is a member of any relation
// (a relation table follows its body).
func (p FeaturePtr) HasRelations() bool { return p.Flags()&RelationMemberFlag != 0 }
