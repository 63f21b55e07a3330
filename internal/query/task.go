package query

import (
	"github.com/clarisma/geodesk-go/internal/gdstore"
	"github.com/clarisma/geodesk-go/internal/match"
	"github.com/clarisma/geodesk-go/internal/mercator"
	"github.com/clarisma/geodesk-go/internal/tilefmt"
)

// Ref identifies one query result: the tile it came from and its
// tile-local byte offset, the "(tip, localHandle)" pair of spec §4.6.
// Kept as a tagged identifier rather than a pointer so it survives a
// tile being unloaded and reloaded (spec §9).
type Ref struct {
	TIP    gdstore.TIP
	Offset uint32
}

// segmentSize bounds how many Refs a TileQueryTask batches into one
// channel send, mirroring spec §4.6's "fixed-size page-aligned blocks"
// QueryResults segment without a hand-rolled linked list: Go's buffered
// channels already provide the producer/consumer queue the source builds
// by hand (see DESIGN.md).
const segmentSize = 256

// GeometryResolver decodes a feature's own geometry, bridging
// internal/geom (which needs the store's string resolver for relation
// role text) into the query package without creating an import cycle.
type GeometryResolver interface {
	StringOf(code int32) (string, bool)
}

// runTileTask implements spec §4.6's TileQueryTask: walks every
// index type the matcher's acceptedTypes can match, evaluates the
// matcher and (if present) a geometric Filter on each candidate, and
// hands batches of surviving Refs to send. send returns false once the
// task should stop (the consumer gave up or the query was cancelled),
// mirroring spec §5 "Tasks check a shared cancellation flag between
// leaves" without risking a goroutine leak if nobody drains out any
// longer.
func runTileTask(tip gdstore.TIP, tile tilefmt.TilePtr, bbox mercator.Bounds, matcher *match.Matcher, filter Filter, resolver GeometryResolver, send func([]Ref) bool, cancelled func() bool) {
	typeMask := acceptedTypesOf(matcher)
	candidates := ScanTile(tile, typeMask, bbox, matcher.IndexBits())

	batch := make([]Ref, 0, segmentSize)
	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		ok := send(batch)
		batch = make([]Ref, 0, segmentSize)
		return ok
	}

	for _, c := range candidates {
		if cancelled() {
			return
		}
		mask := match.MaskFor(c.Feature.Type(), c.Feature.IsArea())
		if !matcher.Accept(mask, c.Feature.Tags()) {
			continue
		}
		if filter != nil && !passesFilter(tile, c.Feature, filter, resolver) {
			continue
		}
		batch = append(batch, Ref{TIP: tip, Offset: c.Offset})
		if len(batch) == segmentSize {
			if !flush() {
				return
			}
		}
	}
	flush()
}

// acceptedTypesOf returns the feature kinds matcher could ever accept,
// deciding which of the tile's four spatial indexes are worth scanning
// at all (spec §4.5 "For each requested type, the executor picks the
// corresponding type-partitioned index root").
func acceptedTypesOf(m *match.Matcher) match.FeatureMask {
	return m.AcceptedTypes()
}

// passesFilter decodes candidate's own geometry and runs it through
// filter, the geometric refinement stage of spec §4.5. A feature whose
// geometry cannot be assembled (e.g. a relation with no resolvable
// outer ring) fails the filter rather than propagating an error,
// matching §4.5's framing of the filter step as a pass/fail test.
func passesFilter(tile tilefmt.TilePtr, f tilefmt.FeaturePtr, filter Filter, resolver GeometryResolver) bool {
	g, err := geometryOf(tile, f, resolver)
	if err != nil || g == nil {
		return false
	}
	return filter.Accept(g)
}
