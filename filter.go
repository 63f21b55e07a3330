package geodesk

import (
	"github.com/clarisma/geodesk-go/internal/query"
	"github.com/paulmach/orb"
)

// Filter is a geometric acceptance test a FeatureSet can be refined by
// (spec §6 "Features(filter) — refine by geometric filter (intersects /
// within / containsPoint / crossing / maxMetersFrom)").
type Filter interface {
	internal() query.Filter
}

type filterFunc struct{ f query.Filter }

func (w filterFunc) internal() query.Filter { return w.f }

// Intersects accepts features whose bounding box overlaps g's.
func Intersects(g orb.Geometry) Filter {
	return filterFunc{query.IntersectsFilter{With: g}}
}

// Within accepts point and line features whose every vertex lies inside
// polygon's outer ring (holes are not tested), and other features whose
// bounding box lies inside polygon's bounding box.
func Within(polygon orb.Polygon) Filter {
	return filterFunc{query.WithinFilter{Of: polygon}}
}

// ContainsPoint accepts area features containing point, or node features
// equal to it.
func ContainsPoint(point orb.Point) Filter {
	return filterFunc{query.ContainsPointFilter{Point: point}}
}

// Crossing accepts way/area features that share a segment intersection
// with line.
func Crossing(line orb.LineString) Filter {
	return filterFunc{query.CrossingFilter{With: line}}
}

// MaxMetersFrom accepts features with a vertex within meters of point
// (great-circle distance).
func MaxMetersFrom(point orb.Point, meters float64) Filter {
	return filterFunc{query.MaxMetersFromFilter{Point: point, Meters: meters}}
}
