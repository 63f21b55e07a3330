// Package query implements the tile-parallel spatial-and-tag query
// engine: spatial index traversal (spec §4.5), TileQueryTask (§4.6), and
// the fan-out executor with its submission-ordered result iterator
// (§4.7).
package query

import (
	"github.com/clarisma/geodesk-go/internal/match"
	"github.com/clarisma/geodesk-go/internal/mercator"
	"github.com/clarisma/geodesk-go/internal/tilefmt"
)

// Candidate is a feature offset surviving index descent, paired with its
// decoded FeaturePtr for the caller to run the matcher and any geometric
// filter against.
type Candidate struct {
	Offset  uint32
	Feature tilefmt.FeaturePtr
}

// walkIndex descends a tile's type-partitioned spatial index, applying
// the bbox and index-bits pruning rules of spec §4.5, and invokes visit
// for every leaf item whose own bbox also intersects bbox. indexBits ==
// 0 means the matcher cannot prune by index ("bypassed" per spec).
func walkIndex(tile tilefmt.TilePtr, node tilefmt.IndexNodePtr, bbox mercator.Bounds, indexBits uint32, visit func(offset uint32)) {
	if !node.Bounds().Intersects(bbox) {
		return
	}
	if indexBits != 0 && node.IndexBits()&indexBits == 0 {
		return
	}
	switch node.Kind() {
	case tilefmt.IndexLeaf:
		for i := 0; i < node.Count(); i++ {
			visit(node.Item(i))
		}
	case tilefmt.IndexBranch:
		for i := 0; i < node.Count(); i++ {
			walkIndex(tile, node.Child(i), bbox, indexBits, visit)
		}
	}
}

// scanType walks one FeatureIndexType's root (if present) and yields
// every candidate feature whose own bbox intersects bbox, skipping
// features the matcher's type mask cannot ever accept.
func scanType(tile tilefmt.TilePtr, idx tilefmt.FeatureIndexType, bbox mercator.Bounds, indexBits uint32, out *[]Candidate) {
	root := tile.IndexRoot(idx)
	if root == 0 {
		return
	}
	walkIndex(tile, tilefmt.NewIndexNodePtr(tile.Bytes(), root), bbox, indexBits, func(offset uint32) {
		f := tile.Feature(offset)
		if !f.Bounds().Intersects(bbox) {
			return
		}
		*out = append(*out, Candidate{Offset: offset, Feature: f})
	})
}

// indexTypesFor returns the FeatureIndexType values worth scanning for a
// given accepted-type mask, so a matcher restricted to (say) `w` never
// walks the node or relation indexes.
func indexTypesFor(mask match.FeatureMask) []tilefmt.FeatureIndexType {
	var out []tilefmt.FeatureIndexType
	if mask&match.AcceptNode != 0 {
		out = append(out, tilefmt.IndexNodes)
	}
	if mask&(match.AcceptWay) != 0 {
		out = append(out, tilefmt.IndexWays)
	}
	if mask&match.AcceptArea != 0 {
		out = append(out, tilefmt.IndexAreas)
	}
	if mask&match.AcceptRelation != 0 {
		out = append(out, tilefmt.IndexRelations)
	}
	return out
}

// ScanTile walks every index type relevant to mask within tile, bounded
// by bbox and indexBits, and returns every surviving candidate. Exported
// for tests exercising index traversal directly.
//
// A way or relation with its AREA flag set is indexed only under
// IndexAreas, never also under IndexWays/IndexRelations (grounded on the
// original's tile-build partitioning) — but ScanTile still dedups by offset as a
// safety net against a mask that happens to request both an index and
// its area counterpart (e.g. the `*` selector).
func ScanTile(tile tilefmt.TilePtr, mask match.FeatureMask, bbox mercator.Bounds, indexBits uint32) []Candidate {
	var out []Candidate
	seenType := make(map[tilefmt.FeatureIndexType]bool, 4)
	seenOffset := make(map[uint32]bool, 16)
	for _, idx := range indexTypesFor(mask) {
		if seenType[idx] {
			continue
		}
		seenType[idx] = true
		var scanned []Candidate
		scanType(tile, idx, bbox, indexBits, &scanned)
		for _, c := range scanned {
			if seenOffset[c.Offset] {
				continue
			}
			seenOffset[c.Offset] = true
			out = append(out, c)
		}
	}
	return out
}
