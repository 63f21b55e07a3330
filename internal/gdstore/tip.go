// Package gdstore specializes internal/blobstore into a FeatureStore:
// the tile index, global string table, indexed-key table, GUID and
// revision metadata a GOL carries on top of the raw blob file (spec §4.2).
package gdstore

import "github.com/clarisma/geodesk-go/internal/mercator"

// TIP is a Tile Index Position: a 24-bit key identifying one tile.
// This port packs it as zoom(4 bits) | column(10 bits) | row(10 bits),
// which addresses 1024 columns and rows, enough for zoom levels 0-10
// (higher zoom levels do not fit) — a concrete choice the
// abstract "24-bit key" in the source left to the store (§9: "some
// index-bit boundaries ... are data-dependent and must be read from the
// store, not hardcoded" applies to indexed keys, not to TIP encoding,
// which is purely an addressing scheme internal to this port).
type TIP uint32

const tipZoomBits = 4
const tipColBits = 10
const tipRowBits = 10

// EncodeTIP packs a zoom/column/row tile coordinate into a TIP.
func EncodeTIP(zoom uint8, col, row uint32) TIP {
	return TIP(uint32(zoom&0xF)<<(tipColBits+tipRowBits) | (col&0x3FF)<<tipRowBits | (row & 0x3FF))
}

// Zoom, Col, Row unpack a TIP's coordinate.
func (t TIP) Zoom() uint8  { return uint8(t >> (tipColBits + tipRowBits) & 0xF) }
func (t TIP) Col() uint32  { return uint32(t>>tipRowBits) & 0x3FF }
func (t TIP) Row() uint32  { return uint32(t) & 0x3FF }

// Bounds returns the Mercator-space bounding box this tile covers, for
// bbox-to-tile-set translation (§4.7 step 1).
func (t TIP) Bounds() mercator.Bounds {
	zoom := t.Zoom()
	span := int64(1) << 32 >> zoom
	minX := int64(t.Col())*span - (1 << 31)
	minY := int64(t.Row())*span - (1 << 31)
	// span-1, not span: an inclusive upper bound. Without the -1 the
	// rightmost/bottommost tile at any zoom (including the sole zoom-0
	// tile spanning the whole world) computes maxX/maxY as exactly 2^31,
	// one past int32's range, which wraps back to int32 min on truncation
	// and collapses the tile's bounds to a single point.
	return mercator.Bounds{
		MinX: int32(minX),
		MinY: int32(minY),
		MaxX: int32(minX + span - 1),
		MaxY: int32(minY + span - 1),
	}
}

// TIPForPoint returns the TIP of the tile at the given zoom that contains
// (x, y) in Mercator fixed-point space.
func TIPForPoint(zoom uint8, x, y int32) TIP {
	span := int64(1) << 32 >> zoom
	ux := int64(x) + (1 << 31)
	uy := int64(y) + (1 << 31)
	return EncodeTIP(zoom, uint32(ux/span), uint32(uy/span))
}
