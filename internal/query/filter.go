package query

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Filter is the geometric acceptance test applied after the matcher, per
// spec §4.5: "if the query carries a Filter, geometry-level acceptance is
// applied (intersects / within / contains-point / crossing / max-
// distance)". Implementations receive the candidate feature's own
// geometry, already decoded by the caller (internal/geom).
type Filter interface {
	Accept(g orb.Geometry) bool
}

// boundOf returns a geometry's bounding box, the common denominator every
// Filter below starts from.
func boundOf(g orb.Geometry) orb.Bound { return g.Bound() }

// IntersectsFilter accepts features whose geometry's bounding box
// overlaps a reference geometry's bounding box. A full topological
// intersection test (ring-vs-ring) is out of scope for this port;
// bbox overlap is the same pruning test the spatial index
// already performs at the tile level (spec §4.5), applied here against
// an arbitrary reference shape rather than only the query bbox.
type IntersectsFilter struct{ With orb.Geometry }

func (f IntersectsFilter) Accept(g orb.Geometry) bool {
	return boundOf(f.With).Intersects(boundOf(g))
}

// WithinFilter accepts features entirely inside a reference polygon's
// bounding box, refined with exact point-in-polygon containment for
// point and line geometries.
type WithinFilter struct{ Of orb.Polygon }

func (f WithinFilter) Accept(g orb.Geometry) bool {
	ring := outerRing(f.Of)
	if ring == nil {
		return false
	}
	switch v := g.(type) {
	case orb.Point:
		return pointInRing(v, ring)
	case orb.LineString:
		for _, p := range v {
			if !pointInRing(p, ring) {
				return false
			}
		}
		return len(v) > 0
	default:
		return boundContains(boundOf(f.Of), boundOf(g))
	}
}

// boundContains reports whether outer fully encloses inner; orb.Bound
// only exposes point containment, not bound-in-bound.
func boundContains(outer, inner orb.Bound) bool {
	return outer.Contains(inner.Min) && outer.Contains(inner.Max)
}

// ContainsPointFilter accepts area/way features whose ring contains
// Point, and node features equal to Point.
type ContainsPointFilter struct{ Point orb.Point }

func (f ContainsPointFilter) Accept(g orb.Geometry) bool {
	switch v := g.(type) {
	case orb.Point:
		return v == f.Point
	case orb.Polygon:
		ring := outerRing(v)
		return ring != nil && pointInRing(f.Point, ring)
	case orb.MultiPolygon:
		for _, poly := range v {
			if ring := outerRing(poly); ring != nil && pointInRing(f.Point, ring) {
				return true
			}
		}
		return false
	default:
		return boundOf(g).Contains(f.Point)
	}
}

// CrossingFilter accepts way/area features whose geometry shares at
// least one segment intersection with a reference line.
type CrossingFilter struct{ With orb.LineString }

func (f CrossingFilter) Accept(g orb.Geometry) bool {
	var ring orb.LineString
	switch v := g.(type) {
	case orb.LineString:
		ring = v
	case orb.Polygon:
		if len(v) == 0 {
			return false
		}
		ring = orb.LineString(v[0])
	default:
		return false
	}
	if !boundOf(ring).Intersects(boundOf(f.With)) {
		return false
	}
	for i := 0; i+1 < len(ring); i++ {
		for j := 0; j+1 < len(f.With); j++ {
			if segmentsIntersect(ring[i], ring[i+1], f.With[j], f.With[j+1]) {
				return true
			}
		}
	}
	return false
}

// MaxMetersFromFilter accepts features whose nearest vertex lies within
// Meters of Point (great-circle distance via github.com/paulmach/orb/geo,
// consistent with SPEC_FULL.md's use of orb for geometry interop).
type MaxMetersFromFilter struct {
	Point  orb.Point
	Meters float64
}

func (f MaxMetersFromFilter) Accept(g orb.Geometry) bool {
	switch v := g.(type) {
	case orb.Point:
		return geo.Distance(f.Point, v) <= f.Meters
	case orb.LineString:
		return nearestVertexWithin(f.Point, v, f.Meters)
	case orb.Polygon:
		if len(v) == 0 {
			return false
		}
		return nearestVertexWithin(f.Point, orb.LineString(v[0]), f.Meters)
	default:
		return false
	}
}

func nearestVertexWithin(p orb.Point, line orb.LineString, meters float64) bool {
	for _, v := range line {
		if geo.Distance(p, v) <= meters {
			return true
		}
	}
	return false
}

func outerRing(p orb.Polygon) orb.Ring {
	if len(p) == 0 {
		return nil
	}
	return p[0]
}

// pointInRing is a standard ray-casting point-in-polygon test.
func pointInRing(pt orb.Point, ring orb.Ring) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := ring[i], ring[j]
		if (pi[1] > pt[1]) != (pj[1] > pt[1]) {
			xint := (pj[0]-pi[0])*(pt[1]-pi[1])/(pj[1]-pi[1]) + pi[0]
			if pt[0] < xint {
				inside = !inside
			}
		}
	}
	return inside
}

// segmentsIntersect reports whether segments (p1,p2) and (p3,p4) share
// any point, via the standard orientation test.
func segmentsIntersect(p1, p2, p3, p4 orb.Point) bool {
	d1 := cross(p4, p3, p1)
	d2 := cross(p4, p3, p2)
	d3 := cross(p2, p1, p3)
	d4 := cross(p2, p1, p4)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	if d1 == 0 && onSegment(p4, p3, p1) {
		return true
	}
	if d2 == 0 && onSegment(p4, p3, p2) {
		return true
	}
	if d3 == 0 && onSegment(p2, p1, p3) {
		return true
	}
	if d4 == 0 && onSegment(p2, p1, p4) {
		return true
	}
	return false
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}
