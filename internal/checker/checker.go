// Package checker implements a validation pass over an open store,
// collecting structural problems instead of failing the first one it
// meets (spec §4.10, grounded on original_source's
// include/clarisma/validate/Checker.h and its matching .cpp: "a
// validation pass that collects warnings rather than throwing").
package checker

import (
	"fmt"

	"github.com/clarisma/geodesk-go/internal/gdstore"
	"github.com/clarisma/geodesk-go/internal/geom"
	"github.com/clarisma/geodesk-go/internal/tilefmt"
	"go.uber.org/multierr"
)

// Severity classifies a Finding the way the source's Checker distinguishes
// informational notices from warnings and hard errors.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Finding is one validation result: a byte location (when known), a
// severity, and a human-readable message (spec §4.10/§7 "location +
// severity as in §Checker").
type Finding struct {
	TIP      gdstore.TIP
	Offset   uint32
	Severity Severity
	Message  string
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] tile %d @%d: %s", f.Severity, f.TIP, f.Offset, f.Message)
}

// Run walks every tile in store and reports structural problems: feature
// bodies that fail to decode, tag tables that fail to decode, and
// relations whose multipolygon geometry cannot be assembled. It never
// returns early on the first problem — every tile is checked, and errors
// across tiles are aggregated with multierr the way the source's checker
// folds multiple warnings into one report.
func Run(store *gdstore.Store) ([]Finding, error) {
	var findings []Finding
	var errs error

	for _, tip := range store.AllTiles() {
		tile, ok, err := store.LoadTile(tip)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("tile %d: %w", tip, err))
			continue
		}
		if !ok {
			continue
		}
		findings = append(findings, checkTile(store, tip, tile)...)
	}
	return findings, errs
}

func checkTile(store *gdstore.Store, tip gdstore.TIP, tile tilefmt.TilePtr) []Finding {
	var out []Finding
	for _, idx := range []tilefmt.FeatureIndexType{
		tilefmt.IndexNodes, tilefmt.IndexWays, tilefmt.IndexAreas, tilefmt.IndexRelations,
	} {
		root := tile.IndexRoot(idx)
		if root == 0 {
			continue
		}
		out = append(out, checkIndex(store, tip, tile, tilefmt.NewIndexNodePtr(tile.Bytes(), root))...)
	}
	return out
}

func checkIndex(store *gdstore.Store, tip gdstore.TIP, tile tilefmt.TilePtr, node tilefmt.IndexNodePtr) []Finding {
	var out []Finding
	switch node.Kind() {
	case tilefmt.IndexLeaf:
		for i := 0; i < node.Count(); i++ {
			out = append(out, checkFeature(store, tip, tile, tile.Feature(node.Item(i)))...)
		}
	case tilefmt.IndexBranch:
		for i := 0; i < node.Count(); i++ {
			out = append(out, checkIndex(store, tip, tile, node.Child(i))...)
		}
	}
	return out
}

func checkFeature(store *gdstore.Store, tip gdstore.TIP, tile tilefmt.TilePtr, f tilefmt.FeaturePtr) []Finding {
	var out []Finding

	if f.HasRelations() {
		it := tilefmt.NewParentRelationIterator(relationsOf(f))
		for {
			_, ok := it.Next()
			if !ok {
				break
			}
		}
		if it.Err() != nil {
			out = append(out, Finding{TIP: tip, Offset: f.Offset(), Severity: Error,
				Message: "relation-membership table failed to decode: " + it.Err().Error()})
		}
	}

	if !checkTagTable(f.Tags()) {
		out = append(out, Finding{TIP: tip, Offset: f.Offset(), Severity: Error,
			Message: "tag table failed to decode"})
	}

	switch f.Type() {
	case tilefmt.TypeWay:
		w := tilefmt.AsWay(f)
		if _, err := geom.Way(w); err != nil {
			out = append(out, Finding{TIP: tip, Offset: f.Offset(), Severity: Error,
				Message: "way geometry failed to decode: " + err.Error()})
		}
	case tilefmt.TypeRelation:
		r := tilefmt.AsRelation(f)
		if r.IsArea() {
			if _, err := geom.Relation(tile, r, store.GetGlobalString); err != nil {
				out = append(out, Finding{TIP: tip, Offset: f.Offset(), Severity: Warning,
					Message: "multipolygon geometry could not be assembled: " + err.Error()})
			}
		}
	}

	if !tip.Bounds().Contains(f.Bounds()) {
		out = append(out, Finding{TIP: tip, Offset: f.Offset(), Severity: Warning,
			Message: "feature bounds exceed the tile's own bounds"})
	}

	return out
}

// relationsOf returns f's relation-membership table regardless of
// feature kind, tolerating the zero value when it cannot be located
// (surfaced above as a decode error, not a panic).
func relationsOf(f tilefmt.FeaturePtr) tilefmt.RelationTablePtr {
	switch f.Type() {
	case tilefmt.TypeNode:
		return tilefmt.AsNode(f).Relations()
	case tilefmt.TypeWay:
		rt, _ := tilefmt.AsWay(f).Relations()
		return rt
	default:
		rt, _ := tilefmt.AsRelation(f).Relations()
		return rt
	}
}

// checkTagTable verifies a feature's tag table decodes cleanly by
// iterating it to completion.
func checkTagTable(t tilefmt.TagTablePtr) bool {
	it := t.Iterate()
	for {
		_, ok := it.Next()
		if !ok {
			break
		}
	}
	return it.Err() == nil
}
