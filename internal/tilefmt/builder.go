package tilefmt

import (
	"github.com/clarisma/geodesk-go/internal/mercator"
	"github.com/clarisma/geodesk-go/internal/varint"
)

// TileBuilder assembles a tile payload byte-for-byte, the encoder
// counterpart to this package's zero-copy decoders. The GOL build
// pipeline itself is out of scope (spec §1); this builder exists so the
// query engine's testable properties and end-to-end scenarios (spec §8)
// can be exercised against a real, self-consistent tile instead of a
// mocked decoder.
type TileBuilder struct {
	buf        []byte
	stringPool map[string]uint32
}

// NewTileBuilder starts a tile with its fixed header reserved (filled in
// by Finish).
func NewTileBuilder() *TileBuilder {
	return &TileBuilder{buf: make([]byte, TileHeaderSize), stringPool: make(map[string]uint32)}
}

func (b *TileBuilder) write(data []byte) uint32 {
	off := uint32(len(b.buf))
	b.buf = append(b.buf, data...)
	return off
}

func (b *TileBuilder) internLocalKey(key string) uint32 {
	if off, ok := b.stringPool[key]; ok {
		return off
	}
	off := b.write([]byte(key))
	b.stringPool[key] = off
	return off
}

// LocalStringValue interns text into the tile's local string area and
// returns the TagValue referencing it, for building a tag whose value is
// an uninterned (local) string.
func (b *TileBuilder) LocalStringValue(text string) TagValue {
	off := b.internLocalKey(text)
	return TagValue{Kind: ValueLocalStringPtr, LocalOffset: off, LocalLen: uint32(len(text))}
}

// TagSpec describes one tag to encode; set GlobalCode >= 0 for a global
// tag, or LocalKey for a local one.
type TagSpec struct {
	GlobalCode int32
	LocalKey   string
	Value      TagValue
}

func put16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }
func put32(v uint32) []byte { return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)} }

func encodeValue(v TagValue) []byte {
	out := []byte{byte(v.Kind)}
	switch v.Kind {
	case ValueGlobalString:
		out = append(out, put16(uint16(v.GlobalCode))...)
	case ValueLocalStringPtr:
		out = append(out, put16(uint16(v.LocalOffset))...)
		out = append(out, put16(uint16(v.LocalLen))...)
	case ValueNarrowInt:
		out = append(out, put16(uint16(int16(v.Int)))...)
	case ValueWideInt:
		out = append(out, put32(uint32(int32(v.Int)))...)
	case ValueDecimal:
		out = append(out, put32(uint32(v.Mantissa))...)
		out = append(out, byte(v.Exponent))
	}
	return out
}

// BuildTagTable encodes tags into the tile and returns the resulting
// table's anchor offset (the position of the global-entry count; the
// local-entry count immediately precedes it).
func (b *TileBuilder) BuildTagTable(tags []TagSpec) uint32 {
	var globals, locals []TagSpec
	for _, t := range tags {
		if t.LocalKey != "" {
			locals = append(locals, t)
		} else {
			globals = append(globals, t)
		}
	}

	var localBuf []byte
	for _, t := range locals {
		keyOff := b.internLocalKey(t.LocalKey)
		keyLen := uint32(len(t.LocalKey))
		word := (keyLen & 0x1FFF) << 3
		word |= keyOff << 16
		chunk := append(encodeValue(t.Value), put32(word)...)
		localBuf = append(chunk, localBuf...)
	}
	for (len(b.buf)+len(localBuf)+2)%4 != 0 {
		b.buf = append(b.buf, 0) // pad so the anchor is 4-byte aligned
	}
	b.write(localBuf)
	b.write(put16(uint16(len(locals))))
	anchor := uint32(len(b.buf))

	b.write(put16(uint16(len(globals))))
	for _, t := range globals {
		b.write(put16(uint16(t.GlobalCode)))
		b.write(encodeValue(t.Value))
	}
	return anchor
}

// FeatureSpec describes a feature to add to the tile.
type FeatureSpec struct {
	ID     uint64
	Type   FeatureType
	Flags  FeatureFlags
	Bounds mercator.Bounds
	Tags   []TagSpec
	Body   []byte // pre-encoded body bytes (way coords / relation members); nil for a bare node
}

// AddFeature writes a feature's tag table, body, and fixed header block,
// returning the feature's tile-local offset (its FeaturePtr handle).
func (b *TileBuilder) AddFeature(spec FeatureSpec) uint32 {
	tagAnchor := b.BuildTagTable(spec.Tags)
	bodyOffset := b.write(spec.Body)

	hdr := MakeFeatureHeader(spec.ID, spec.Type, spec.Flags)
	block := make([]byte, FeaturePtrSize)
	putU64(block[0:8], uint64(hdr))
	copy(block[8:24], encodeBounds(spec.Bounds))
	copy(block[24:28], put32(bodyOffset))
	copy(block[28:32], put32(tagAnchor))
	return b.write(block)
}

func putU64(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}

func encodeBounds(bnd mercator.Bounds) []byte {
	out := make([]byte, 16)
	copy(out[0:4], put32(uint32(bnd.MinX)))
	copy(out[4:8], put32(uint32(bnd.MinY)))
	copy(out[8:12], put32(uint32(bnd.MaxX)))
	copy(out[12:16], put32(uint32(bnd.MaxY)))
	return out
}

// EncodeWayCoordDeltas encodes coords as signed-varint (dx,dy) deltas
// from anchor (the way's bbox minimum), matching what
// WayCoordinateIterator expects to decode.
func EncodeWayCoordDeltas(anchor mercator.Point, coords []mercator.Point, featureNodeOffsets []uint32) []byte {
	var body []byte
	var tmp [varint.MaxBytes]byte

	n := varint.PutUvarint(tmp[:], uint64(len(coords)))
	body = append(body, tmp[:n]...)

	x, y := anchor.X, anchor.Y
	for _, c := range coords {
		dx := int64(c.X) - int64(x)
		dy := int64(c.Y) - int64(y)
		n := varint.PutVarint(tmp[:], dx)
		body = append(body, tmp[:n]...)
		n = varint.PutVarint(tmp[:], dy)
		body = append(body, tmp[:n]...)
		x, y = c.X, c.Y
	}

	if featureNodeOffsets != nil {
		n := varint.PutUvarint(tmp[:], uint64(len(featureNodeOffsets)))
		body = append(body, tmp[:n]...)
		for _, off := range featureNodeOffsets {
			n := varint.PutUvarint(tmp[:], uint64(off))
			body = append(body, tmp[:n]...)
		}
	}
	return body
}

// MemberSpec describes one relation member to encode.
type MemberSpec struct {
	FeatureOffset uint32
	Type          FeatureType
	RoleCode      int32 // global string code for the role; -1 for none
}

// EncodeRelationBody encodes a relation's member table.
func EncodeRelationBody(members []MemberSpec) []byte {
	var body []byte
	var tmp [varint.MaxBytes]byte
	for i, m := range members {
		var word uint64
		if i == len(members)-1 {
			word |= memberLastFlag
		}
		if m.RoleCode >= 0 {
			word |= memberHasRoleFlag
		}
		word |= uint64(m.Type&3) << 2
		word |= uint64(m.FeatureOffset) << 4
		n := varint.PutUvarint(tmp[:], word)
		body = append(body, tmp[:n]...)
		if m.RoleCode >= 0 {
			n := varint.PutUvarint(tmp[:], uint64(m.RoleCode))
			body = append(body, tmp[:n]...)
		}
	}
	return body
}

// BuildIndexLeaf writes a leaf index node covering the given feature
// offsets and returns its tile-local offset.
func (b *TileBuilder) BuildIndexLeaf(bounds mercator.Bounds, indexBits uint32, items []uint32) uint32 {
	return b.buildIndexNode(bounds, indexBits, IndexLeaf, items)
}

// BuildIndexBranch writes a branch index node over the given child node
// offsets and returns its tile-local offset.
func (b *TileBuilder) BuildIndexBranch(bounds mercator.Bounds, indexBits uint32, children []uint32) uint32 {
	return b.buildIndexNode(bounds, indexBits, IndexBranch, children)
}

func (b *TileBuilder) buildIndexNode(bounds mercator.Bounds, indexBits uint32, kind IndexNodeKind, entries []uint32) uint32 {
	hdr := make([]byte, indexNodeHeaderSize)
	copy(hdr[0:16], encodeBounds(bounds))
	copy(hdr[16:20], put32(indexBits))
	hdr[20] = byte(kind)
	copy(hdr[21:23], put16(uint16(len(entries))))
	off := b.write(hdr)
	for _, e := range entries {
		b.write(put32(e))
	}
	return off
}

// SetIndexRoot patches the tile header's root pointer for the given
// index type. Must be called after the index itself has been built,
// since the header is reserved (zeroed) up front.
func (b *TileBuilder) SetIndexRoot(idx FeatureIndexType, root uint32) {
	var ofs uint32
	switch idx {
	case IndexNodes:
		ofs = tileNodeIndexOfs
	case IndexWays:
		ofs = tileWayIndexOfs
	case IndexAreas:
		ofs = tileAreaIndexOfs
	case IndexRelations:
		ofs = tileRelationOfs
	}
	copy(b.buf[ofs:ofs+4], put32(root))
}

// Finish finalizes the tile, stamping its payload size, and returns the
// completed payload bytes.
func (b *TileBuilder) Finish() []byte {
	copy(b.buf[tilePayloadSizeOfs:tilePayloadSizeOfs+4], put32(uint32(len(b.buf))))
	return b.buf
}
