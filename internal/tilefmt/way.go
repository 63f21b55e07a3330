package tilefmt

import (
	"github.com/clarisma/geodesk-go/internal/mercator"
	"github.com/clarisma/geodesk-go/internal/varint"
)

// WayPtr is a FeaturePtr known to be a way (spec §3.3).
type WayPtr struct{ FeaturePtr }

// AsWay wraps a FeaturePtr as a WayPtr; the caller must have already
// checked p.IsWay().
func AsWay(p FeaturePtr) WayPtr { return WayPtr{p} }

// HasFeatureNodes reports whether the way carries references to node
// features along its geometry (WAYNODE flag).
func (w WayPtr) HasFeatureNodes() bool { return w.Flags()&WayNodeFlag != 0 }

// RawNodeCount reads the way body's stored coordinate count, before
// adding the duplicated closing vertex an area way implies.
func (w WayPtr) RawNodeCount() (uint32, error) {
	body := w.Body()
	n, _, err := varint.SafeUvarint(body, 0, len(body))
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

// NodeCount returns the number of coordinates WayCoordinateIterator will
// yield, including the duplicated closing vertex for an area way (spec
// §3.3: "if the way is an area the first coordinate is duplicated at the
// end").
func (w WayPtr) NodeCount() (uint32, error) {
	raw, err := w.RawNodeCount()
	if err != nil {
		return 0, err
	}
	if w.IsArea() {
		return raw + 1, nil
	}
	return raw, nil
}

// WayCoordinateIterator decodes a way's coordinate run: signed-varint
// (dx,dy) deltas from the way's bbox-min anchor, duplicating the first
// coordinate at the end for areas (spec §3.3, §4.3).
type WayCoordinateIterator struct {
	body          []byte
	pos           int
	remaining     int // raw coordinates left to decode
	duplicateLast bool
	x, y          int32
	firstX, firstY int32
	emittedDup    bool
	haveFirst     bool
	err           error
}

// NewWayCoordinateIterator starts an iterator over w's geometry.
func NewWayCoordinateIterator(w WayPtr) (*WayCoordinateIterator, error) {
	body := w.Body()
	rawCount, n, err := varint.SafeUvarint(body, 0, len(body))
	if err != nil {
		return nil, err
	}
	b := w.Bounds()
	return &WayCoordinateIterator{
		body:          body,
		pos:           n,
		remaining:     int(rawCount),
		duplicateLast: w.IsArea(),
		x:             b.MinX,
		y:             b.MinY,
		firstX:        b.MinX,
		firstY:        b.MinY,
	}, nil
}

// Err returns the first decode error encountered, if any.
func (it *WayCoordinateIterator) Err() error { return it.err }

// Next decodes the next coordinate, reporting false when exhausted.
func (it *WayCoordinateIterator) Next() (mercator.Point, bool) {
	if it.err != nil {
		return mercator.Point{}, false
	}
	if it.remaining == 0 {
		if it.duplicateLast && !it.emittedDup {
			it.emittedDup = true
			return mercator.Point{X: it.firstX, Y: it.firstY}, true
		}
		return mercator.Point{}, false
	}
	dx, n1, err := varint.SafeVarint(it.body, it.pos, len(it.body))
	if err != nil {
		it.err = err
		return mercator.Point{}, false
	}
	dy, n2, err := varint.SafeVarint(it.body, n1, len(it.body))
	if err != nil {
		it.err = err
		return mercator.Point{}, false
	}
	it.pos = n2
	it.x += int32(dx)
	it.y += int32(dy)
	it.remaining--
	if !it.haveFirst {
		it.firstX, it.firstY, it.haveFirst = it.x, it.y, true
	}
	return mercator.Point{X: it.x, Y: it.y}, true
}

// coordsByteSize returns how many bytes the raw coordinate run occupies,
// so callers can locate what follows it (waynode IDs, feature-node
// table, relation table).
func (w WayPtr) coordsByteSize() (int, error) {
	body := w.Body()
	rawCount, pos, err := varint.SafeUvarint(body, 0, len(body))
	if err != nil {
		return 0, err
	}
	for i := uint64(0); i < rawCount*2; i++ {
		_, next, err := varint.SafeVarint(body, pos, len(body))
		if err != nil {
			return 0, err
		}
		pos = next
	}
	return pos, nil
}

// featureNodeTableByteSize returns how many body bytes the feature-node
// table occupies starting at pos, so callers can locate what follows it
// (the relation-membership table).
func featureNodeTableByteSize(body []byte, pos int) (int, error) {
	count, next, err := varint.SafeUvarint(body, pos, len(body))
	if err != nil {
		return 0, err
	}
	pos = next
	for i := uint64(0); i < count; i++ {
		_, next, err := varint.SafeUvarint(body, pos, len(body))
		if err != nil {
			return 0, err
		}
		pos = next
	}
	return pos, nil
}

// bodyTrailerOffset returns the body-relative offset of whatever follows
// a way's geometry and (if present) feature-node table: the start of its
// relation-membership table.
func (w WayPtr) bodyTrailerOffset() (uint32, error) {
	pos, err := w.coordsByteSize()
	if err != nil {
		return 0, err
	}
	if w.HasFeatureNodes() {
		pos, err = featureNodeTableByteSize(w.Body(), pos)
		if err != nil {
			return 0, err
		}
	}
	return uint32(pos), nil
}

// Relations returns the way's parent-relation table, valid only when
// HasRelations() is true.
func (w WayPtr) Relations() (RelationTablePtr, error) {
	trailer, err := w.bodyTrailerOffset()
	if err != nil {
		return RelationTablePtr{}, err
	}
	return NewRelationTablePtr(w.tileBytes(), w.BodyOffset()+trailer), nil
}

// FeatureNodeIterator walks the foreign/local node features referenced
// along a way's geometry (a feature-node table follows the coordinate
// run when HasFeatureNodes is set). Each entry is a tile-local offset
// (this port does not model multi-tile foreign references).
type FeatureNodeIterator struct {
	tile      []byte
	pos       int
	remaining int
	err       error
}

// NewFeatureNodeIterator builds an iterator over w's feature-node table.
// Returns a zero-length iterator if w has no feature nodes.
func NewFeatureNodeIterator(w WayPtr) (*FeatureNodeIterator, error) {
	if !w.HasFeatureNodes() {
		return &FeatureNodeIterator{}, nil
	}
	coordsLen, err := w.coordsByteSize()
	if err != nil {
		return nil, err
	}
	body := w.Body()
	pos := coordsLen
	count, next, err := varint.SafeUvarint(body, pos, len(body))
	if err != nil {
		return nil, err
	}
	return &FeatureNodeIterator{tile: body, pos: next, remaining: int(count)}, nil
}

// Err returns the first decode error encountered, if any.
func (it *FeatureNodeIterator) Err() error { return it.err }

// Next returns the tile-local byte offset of the next referenced node
// feature.
func (it *FeatureNodeIterator) Next() (uint32, bool) {
	if it.err != nil || it.remaining == 0 {
		return 0, false
	}
	off, next, err := varint.SafeUvarint(it.tile, it.pos, len(it.tile))
	if err != nil {
		it.err = err
		return 0, false
	}
	it.pos = next
	it.remaining--
	return uint32(off), true
}
