package query

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/clarisma/geodesk-go/internal/gdstore"
	"github.com/clarisma/geodesk-go/internal/mercator"
	"github.com/clarisma/geodesk-go/internal/tilefmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// global string codes assigned by buildS1Store's fixed string table (the
// table below, index order == code).
const (
	scAmenity = iota
	scCafe
	scRestaurant
	scName
	scAda
	scBob
	scHighway
	scPrimary
	scSecondary
	scBuilding
	scYes
)

// worldBbox spans the full Mercator coordinate space, mirroring
// FeatureSet.effectiveBbox's "no In() clause" default at the root package.
var worldBbox = mercator.Bounds{MinX: -1 << 31, MinY: -1 << 31, MaxX: 1<<31 - 1, MaxY: 1<<31 - 1}

// storeResolver adapts a gdstore.Store to GeometryResolver, mirroring the
// root package's geodeskResolver (featureset.go).
type storeResolver struct{ s *gdstore.Store }

func (r storeResolver) StringOf(code int32) (string, bool) { return r.s.GetGlobalString(code) }

// buildS1Store builds the exact feature set from spec §8 S1: a node
// (amenity=cafe, name=Ada), a way (highway=primary), and an area
// (building=yes), each in its own type-partitioned index and spread
// across distinct corners of a single zoom-0 tile, so bbox-based
// scenarios (S2) can isolate one from another.
func buildS1Store(t *testing.T) (st *gdstore.Store, tip gdstore.TIP, nodeOff, wayOff, areaOff uint32) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "s1.gol")

	wst, err := gdstore.Create(path)
	require.NoError(t, err)

	tx, err := wst.Begin()
	require.NoError(t, err)
	tx.Setup(
		[]string{"amenity", "cafe", "restaurant", "name", "Ada", "Bob", "highway", "primary", "secondary", "building", "yes"},
		[]string{"highway", "building"},
	)

	b := tilefmt.NewTileBuilder()

	nodeOff = b.AddFeature(tilefmt.FeatureSpec{
		ID: 1, Type: tilefmt.TypeNode,
		Bounds: mercator.Bounds{MinX: 10, MinY: 10, MaxX: 10, MaxY: 10},
		Tags: []tilefmt.TagSpec{
			{GlobalCode: scAmenity, Value: tilefmt.TagValue{Kind: tilefmt.ValueGlobalString, GlobalCode: scCafe}},
			{GlobalCode: scName, Value: tilefmt.TagValue{Kind: tilefmt.ValueGlobalString, GlobalCode: scAda}},
		},
	})

	wayOff = b.AddFeature(tilefmt.FeatureSpec{
		ID: 10, Type: tilefmt.TypeWay,
		Bounds: mercator.Bounds{MinX: 1000, MinY: 1000, MaxX: 1000, MaxY: 1000},
		Tags: []tilefmt.TagSpec{
			{GlobalCode: scHighway, Value: tilefmt.TagValue{Kind: tilefmt.ValueGlobalString, GlobalCode: scPrimary}},
		},
	})

	areaOff = b.AddFeature(tilefmt.FeatureSpec{
		ID: 20, Type: tilefmt.TypeWay, Flags: tilefmt.AreaFlag,
		Bounds: mercator.Bounds{MinX: 2000, MinY: 2000, MaxX: 2000, MaxY: 2000},
		Tags: []tilefmt.TagSpec{
			{GlobalCode: scBuilding, Value: tilefmt.TagValue{Kind: tilefmt.ValueGlobalString, GlobalCode: scYes}},
		},
	})

	nodeLeaf := b.BuildIndexLeaf(worldBbox, 0, []uint32{nodeOff})
	b.SetIndexRoot(tilefmt.IndexNodes, nodeLeaf)
	wayLeaf := b.BuildIndexLeaf(worldBbox, 1<<0, []uint32{wayOff})
	b.SetIndexRoot(tilefmt.IndexWays, wayLeaf)
	areaLeaf := b.BuildIndexLeaf(worldBbox, 1<<1, []uint32{areaOff})
	b.SetIndexRoot(tilefmt.IndexAreas, areaLeaf)

	payload := b.Finish()
	tip = gdstore.EncodeTIP(0, 0, 0)
	require.NoError(t, tx.PutTile(tip, payload, false))
	require.NoError(t, tx.Commit(true))
	require.NoError(t, wst.Close())

	st, err = gdstore.OpenSingle(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, tip, nodeOff, wayOff, areaOff
}

func runQuery(t *testing.T, st *gdstore.Store, bbox mercator.Bounds, expr string, workers int) []Ref {
	t.Helper()
	m, err := st.GetMatcher(expr)
	require.NoError(t, err)
	q := Query{Store: st, Bbox: bbox, Matcher: m, Resolver: storeResolver{st}, Workers: workers}
	res := Run(context.Background(), q)
	var out []Ref
	require.NoError(t, res.All(func(r Ref) error {
		out = append(out, r)
		return nil
	}))
	return out
}

func sortedOffsets(refs []Ref) []uint32 {
	out := make([]uint32, len(refs))
	for i, r := range refs {
		out[i] = r.Offset
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TestS1TagOnlyQueriesPerType covers spec §8 S1: a tag-only query against
// each feature type, including the bare `[key]` presence form that the
// w[highway] case exercises directly.
func TestS1TagOnlyQueriesPerType(t *testing.T) {
	st, _, nodeOff, wayOff, areaOff := buildS1Store(t)

	cases := []struct {
		name string
		expr string
		want []uint32
	}{
		{"node matched by tag value", "n[amenity=cafe]", []uint32{nodeOff}},
		{"way matched by bare key presence", "w[highway]", []uint32{wayOff}},
		{"area matched by bare key presence", "a[building]", []uint32{areaOff}},
		{"any type selector matches all three", "*", []uint32{nodeOff, wayOff, areaOff}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := sortedOffsets(runQuery(t, st, worldBbox, c.expr, 0))
			want := append([]uint32(nil), c.want...)
			sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
			assert.Equal(t, want, got)
		})
	}
}

// TestS4UntypedSelectorDefaultsToAnyType covers spec §8 S4's missing-type
// shorthand end to end: `[highway]` with no leading type specifier must
// still reach and match the way, not fail to compile.
func TestS4UntypedSelectorDefaultsToAnyType(t *testing.T) {
	st, _, _, wayOff, _ := buildS1Store(t)

	got := runQuery(t, st, worldBbox, "[highway]", 0)
	require.Len(t, got, 1)
	assert.Equal(t, wayOff, got[0].Offset)
}

// TestS2BboxDisjointReturnsEmpty covers spec §8 S2: a bbox that overlaps
// none of the tile's features yields no results, even though the tile
// itself (spanning the whole Mercator world at zoom 0) is still loaded.
func TestS2BboxDisjointReturnsEmpty(t *testing.T) {
	st, _, _, _, _ := buildS1Store(t)

	disjoint := mercator.Bounds{MinX: 50_000, MinY: 50_000, MaxX: 60_000, MaxY: 60_000}
	got := runQuery(t, st, disjoint, "*", 0)
	assert.Empty(t, got)
}

// TestS2BboxIsolatesSingleFeature covers spec §8 S2: a bbox around just
// one feature's own coordinates returns only that feature, regardless of
// the matcher accepting all types.
func TestS2BboxIsolatesSingleFeature(t *testing.T) {
	st, _, nodeOff, _, _ := buildS1Store(t)

	near := mercator.Bounds{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100}
	got := runQuery(t, st, near, "*", 0)
	require.Len(t, got, 1)
	assert.Equal(t, nodeOff, got[0].Offset)
}

// TestQueryDeterminismAcrossWorkerCounts covers testable property #5:
// the result set does not depend on how many workers the pool uses.
func TestQueryDeterminismAcrossWorkerCounts(t *testing.T) {
	st, _, _, _, _ := buildS1Store(t)

	single := sortedOffsets(runQuery(t, st, worldBbox, "*", 1))
	parallel := sortedOffsets(runQuery(t, st, worldBbox, "*", 4))
	assert.Equal(t, single, parallel)
	assert.Len(t, single, 3)
}

// TestCountMatchesCollectedLength covers testable property #6: count()
// equals len(collect(All)) for the same query.
func TestCountMatchesCollectedLength(t *testing.T) {
	st, _, _, _, _ := buildS1Store(t)
	m, err := st.GetMatcher("*")
	require.NoError(t, err)

	collected := runQuery(t, st, worldBbox, "*", 0)

	countRes := Run(context.Background(), Query{Store: st, Bbox: worldBbox, Matcher: m, Resolver: storeResolver{st}})
	n, err := countRes.Count(0)
	require.NoError(t, err)

	assert.Equal(t, len(collected), n)
}
