package geodesk

import (
	"context"
	"iter"

	"github.com/clarisma/geodesk-go/internal/gdstore"
	"github.com/clarisma/geodesk-go/internal/gderr"
	"github.com/clarisma/geodesk-go/internal/match"
	"github.com/clarisma/geodesk-go/internal/mercator"
	"github.com/clarisma/geodesk-go/internal/query"
	"github.com/clarisma/geodesk-go/internal/tilefmt"
	"github.com/paulmach/orb"
)

// relationKind distinguishes the three relationship-based refinements a
// FeatureSet can be narrowed to, each resolved against a single base
// feature rather than a spatial scan (spec §6 "Features(feature) —
// refine to members / parents / nodes of a feature").
type relationKind int

const (
	relationNone relationKind = iota
	relationMembers
	relationParents
	relationNodes
)

// FeatureSet is a chainable, lazily-evaluated query against a Store
// (spec §6). Each refining method returns a new FeatureSet; none mutate
// the receiver, so a FeatureSet can be safely reused as a base for
// several different refinements.
type FeatureSet struct {
	store   *Store
	hasBbox bool
	bbox    mercator.Bounds
	matcher *match.Matcher
	filter  query.Filter
	workers int

	relation relationKind
	base     Feature

	err error // sticky compile/validation error, surfaced by One/First/Count/All
}

func (fs *FeatureSet) clone() *FeatureSet {
	c := *fs
	return &c
}

// Select refines the set by a tag expression string (spec §4.4).
func (fs *FeatureSet) Select(tagExpr string) *FeatureSet {
	c := fs.clone()
	if c.err != nil {
		return c
	}
	m, err := c.store.s.GetMatcher(tagExpr)
	if err != nil {
		c.err = err
		return c
	}
	c.matcher = m
	return c
}

// In refines the set to features whose own bounding box intersects bbox.
func (fs *FeatureSet) In(bbox orb.Bound) *FeatureSet {
	c := fs.clone()
	minX, minY := mercator.LonLatToMercator(bbox.Min[0], bbox.Min[1])
	maxX, maxY := mercator.LonLatToMercator(bbox.Max[0], bbox.Max[1])
	c.hasBbox = true
	c.bbox = mercator.Bounds{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
	return c
}

// Where refines the set by a geometric predicate evaluated against each
// candidate's decoded geometry (spec §6 "Features(filter)").
func (fs *FeatureSet) Where(f Filter) *FeatureSet {
	c := fs.clone()
	c.filter = f.internal()
	return c
}

// MembersOf refines the set to the direct members of parent: a
// relation's tagged members, or a way's referenced node features (spec
// §6 "Features(feature) — refine to members ... of a feature"). Only
// members resolvable within parent's own tile are returned (see
// internal/geom's same-tile limitation note).
func (fs *FeatureSet) MembersOf(parent Feature) *FeatureSet {
	c := fs.clone()
	c.relation = relationMembers
	c.base = parent
	return c
}

// ParentsOf refines the set to the relations listed in child's
// relation-membership table. Ways that reference child as a feature node
// are not included.
func (fs *FeatureSet) ParentsOf(child Feature) *FeatureSet {
	c := fs.clone()
	c.relation = relationParents
	c.base = child
	return c
}

// NodesOf refines the set to the plain coordinate-only nodes along way's
// geometry that are also independently addressable features (its
// "feature nodes", spec Glossary).
func (fs *FeatureSet) NodesOf(way Feature) *FeatureSet {
	c := fs.clone()
	c.relation = relationNodes
	c.base = way
	return c
}

// Workers overrides the query executor's worker-pool size; 0 (the
// default) uses runtime.NumCPU().
func (fs *FeatureSet) Workers(n int) *FeatureSet {
	c := fs.clone()
	c.workers = n
	return c
}

func (fs *FeatureSet) effectiveMatcher() *match.Matcher {
	if fs.matcher != nil {
		return fs.matcher
	}
	return fs.store.s.BorrowAllMatcher()
}

func (fs *FeatureSet) effectiveBbox() mercator.Bounds {
	if fs.hasBbox {
		return fs.bbox
	}
	return mercator.Bounds{MinX: -1 << 31, MinY: -1 << 31, MaxX: 1<<31 - 1, MaxY: 1<<31 - 1}
}

// geodeskResolver adapts gdstore.Store to query.GeometryResolver.
type geodeskResolver struct{ s *gdstore.Store }

func (r geodeskResolver) StringOf(code int32) (string, bool) { return r.s.GetGlobalString(code) }

// All returns a range-over-func iterator over every matching feature, in
// submission (tile) order (spec §6: "FeatureSet.All returns a Go 1.23
// iter.Seq2 range-over-func iterator").
func (fs *FeatureSet) All(ctx context.Context) iter.Seq2[Feature, error] {
	return func(yield func(Feature, error) bool) {
		if fs.err != nil {
			yield(Feature{}, fs.err)
			return
		}
		if fs.relation != relationNone {
			fs.iterateRelation(yield)
			return
		}
		q := query.Query{
			Store:    fs.store.s,
			Bbox:     fs.effectiveBbox(),
			Matcher:  fs.effectiveMatcher(),
			Filter:   fs.filter,
			Resolver: geodeskResolver{fs.store.s},
			Workers:  fs.workers,
		}
		results := query.Run(ctx, q)
		defer results.Close()
		stopped := false
		err := results.All(func(ref query.Ref) error {
			f, ferr := fs.store.featureAt(ref)
			if ferr != nil {
				return ferr
			}
			if !yield(f, nil) {
				stopped = true
				return errYieldStopped
			}
			return nil
		})
		if err != nil && err != errYieldStopped && !stopped {
			yield(Feature{}, err)
		}
	}
}

// errYieldStopped signals that the caller's range-over-func body
// returned false, distinct from a real query failure.
var errYieldStopped = gderr.New(gderr.Internal, "iteration stopped by caller")

// iterateRelation drives MembersOf/ParentsOf/NodesOf, all of which
// resolve against the base feature's own tile rather than a spatial scan.
func (fs *FeatureSet) iterateRelation(yield func(Feature, error) bool) {
	tile := fs.base.tile
	ptr := fs.base.ptr

	emit := func(offset uint32) bool {
		f := Feature{store: fs.store, tip: fs.base.tip, tile: tile, ptr: tile.Feature(offset)}
		if fs.matcher != nil {
			mask := match.MaskFor(f.ptr.Type(), f.ptr.IsArea())
			if !fs.matcher.Accept(mask, f.ptr.Tags()) {
				return true
			}
		}
		return yield(f, nil)
	}

	switch fs.relation {
	case relationMembers:
		switch {
		case ptr.IsRelation():
			members, err := tilefmt.NewMemberIterator(tilefmt.AsRelation(ptr), fs.store.s.GetGlobalString).All()
			if err != nil {
				yield(Feature{}, err)
				return
			}
			for _, m := range members {
				if !emit(m.FeatureOffset) {
					return
				}
			}
		case ptr.IsWay():
			it, err := tilefmt.NewFeatureNodeIterator(tilefmt.AsWay(ptr))
			if err != nil {
				yield(Feature{}, err)
				return
			}
			for {
				off, ok := it.Next()
				if !ok {
					break
				}
				if !emit(off) {
					return
				}
			}
			if it.Err() != nil {
				yield(Feature{}, it.Err())
			}
		}
	case relationParents:
		var rt tilefmt.RelationTablePtr
		var err error
		switch {
		case ptr.IsNode():
			rt = tilefmt.AsNode(ptr).Relations()
		case ptr.IsWay():
			rt, err = tilefmt.AsWay(ptr).Relations()
		case ptr.IsRelation():
			rt, err = tilefmt.AsRelation(ptr).Relations()
		}
		if err != nil {
			yield(Feature{}, err)
			return
		}
		if !ptr.HasRelations() {
			return
		}
		it := tilefmt.NewParentRelationIterator(rt)
		for {
			off, ok := it.Next()
			if !ok {
				break
			}
			if !emit(off) {
				return
			}
		}
		if it.Err() != nil {
			yield(Feature{}, it.Err())
		}
	case relationNodes:
		if !ptr.IsWay() {
			return
		}
		it, err := tilefmt.NewFeatureNodeIterator(tilefmt.AsWay(ptr))
		if err != nil {
			yield(Feature{}, err)
			return
		}
		for {
			off, ok := it.Next()
			if !ok {
				break
			}
			if !emit(off) {
				return
			}
		}
		if it.Err() != nil {
			yield(Feature{}, it.Err())
		}
	}
}

// One returns the set's single matching feature, or TooManyResults if
// more than one feature matches (spec §6 "feature.one()").
func (fs *FeatureSet) One(ctx context.Context) (Feature, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var found Feature
	n := 0
	for f, err := range fs.All(ctx) {
		if err != nil {
			return Feature{}, err
		}
		n++
		if n > 1 {
			return Feature{}, gderr.New(gderr.TooManyResults, "expected exactly one feature")
		}
		found = f
	}
	if n == 0 {
		return Feature{}, gderr.New(gderr.NotFound, "no matching feature")
	}
	return found, nil
}

// First returns the first matching feature, cancelling remaining work
// once found (spec §6 "feature.first()").
func (fs *FeatureSet) First(ctx context.Context) (Feature, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for f, err := range fs.All(ctx) {
		if err != nil {
			return Feature{}, err
		}
		return f, nil
	}
	return Feature{}, gderr.New(gderr.NotFound, "no matching feature")
}

// Count returns the number of matching features (spec §6 "feature.count()").
func (fs *FeatureSet) Count(ctx context.Context) (int, error) {
	n := 0
	for _, err := range fs.All(ctx) {
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// featureAt decodes the feature a query.Ref points to.
func (st *Store) featureAt(ref query.Ref) (Feature, error) {
	tile, ok, err := st.s.LoadTile(ref.TIP)
	if err != nil {
		return Feature{}, err
	}
	if !ok {
		return Feature{}, gderr.New(gderr.Corrupt, "tile went missing mid-query")
	}
	return Feature{store: st, tip: ref.TIP, tile: tile, ptr: tile.Feature(ref.Offset)}, nil
}
