package geodesk

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/clarisma/geodesk-go/internal/gdstore"
	"github.com/clarisma/geodesk-go/internal/mercator"
	"github.com/clarisma/geodesk-go/internal/tilefmt"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// global string codes assigned by buildRootStore's fixed string table.
const (
	rscAmenity = iota
	rscCafe
	rscName
	rscAda
	rscHighway
	rscPrimary
	rscType
	rscRoute
)

// buildRootStore builds a small, self-consistent GOL with a node, a way
// that references it as a feature node, and a relation that lists the
// way as a member — enough to exercise the root package's chained
// FeatureSet API end to end (spec §6, §8).
func buildRootStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "root.gol")

	wst, err := gdstore.Create(path)
	require.NoError(t, err)

	tx, err := wst.Begin()
	require.NoError(t, err)
	tx.Setup(
		[]string{"amenity", "cafe", "name", "Ada", "highway", "primary", "type", "route"},
		[]string{"highway"},
	)

	b := tilefmt.NewTileBuilder()

	nodeOff := b.AddFeature(tilefmt.FeatureSpec{
		ID: 1, Type: tilefmt.TypeNode,
		Bounds: mercator.Bounds{MinX: 100, MinY: 200, MaxX: 100, MaxY: 200},
		Tags: []tilefmt.TagSpec{
			{GlobalCode: rscAmenity, Value: tilefmt.TagValue{Kind: tilefmt.ValueGlobalString, GlobalCode: rscCafe}},
			{GlobalCode: rscName, Value: tilefmt.TagValue{Kind: tilefmt.ValueGlobalString, GlobalCode: rscAda}},
		},
	})

	wayBody := tilefmt.EncodeWayCoordDeltas(
		mercator.Point{X: 100, Y: 200},
		[]mercator.Point{{X: 100, Y: 200}, {X: 300, Y: 400}},
		[]uint32{nodeOff},
	)
	wayOff := b.AddFeature(tilefmt.FeatureSpec{
		ID: 10, Type: tilefmt.TypeWay, Flags: tilefmt.WayNodeFlag,
		Bounds: mercator.Bounds{MinX: 100, MinY: 200, MaxX: 300, MaxY: 400},
		Tags: []tilefmt.TagSpec{
			{GlobalCode: rscHighway, Value: tilefmt.TagValue{Kind: tilefmt.ValueGlobalString, GlobalCode: rscPrimary}},
		},
		Body: wayBody,
	})

	relBody := tilefmt.EncodeRelationBody([]tilefmt.MemberSpec{
		{FeatureOffset: wayOff, Type: tilefmt.TypeWay, RoleCode: rscRoute},
	})
	relOff := b.AddFeature(tilefmt.FeatureSpec{
		ID: 100, Type: tilefmt.TypeRelation,
		Bounds: mercator.Bounds{MinX: 100, MinY: 200, MaxX: 300, MaxY: 400},
		Tags: []tilefmt.TagSpec{
			{GlobalCode: rscType, Value: tilefmt.TagValue{Kind: tilefmt.ValueGlobalString, GlobalCode: rscRoute}},
		},
		Body: relBody,
	})

	world := mercator.Bounds{MinX: -1 << 30, MinY: -1 << 30, MaxX: 1<<30 - 1, MaxY: 1<<30 - 1}
	b.SetIndexRoot(tilefmt.IndexNodes, b.BuildIndexLeaf(world, 0, []uint32{nodeOff}))
	b.SetIndexRoot(tilefmt.IndexWays, b.BuildIndexLeaf(world, 1<<0, []uint32{wayOff}))
	b.SetIndexRoot(tilefmt.IndexRelations, b.BuildIndexLeaf(world, 0, []uint32{relOff}))

	payload := b.Finish()
	require.NoError(t, tx.PutTile(gdstore.EncodeTIP(0, 0, 0), payload, false))
	require.NoError(t, tx.Commit(true))
	require.NoError(t, wst.Close())

	st, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func collectAll(t *testing.T, fs *FeatureSet) []Feature {
	t.Helper()
	var out []Feature
	for f, err := range fs.All(context.Background()) {
		require.NoError(t, err)
		out = append(out, f)
	}
	return out
}

func TestOpenFeaturesSelectAndCount(t *testing.T) {
	st := buildRootStore(t)
	ctx := context.Background()

	n, err := st.Features().Select("n[amenity=cafe]").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f, err := st.Features().Select("n[amenity=cafe]").One(ctx)
	require.NoError(t, err)
	assert.Equal(t, "node", f.TypeName())
	assert.Equal(t, "Ada", f.Tag("name").String())
}

// TestCountMatchesCollectedLength covers testable property #6 at the
// public API level: count() equals len(collect(All())).
func TestCountMatchesCollectedLength(t *testing.T) {
	st := buildRootStore(t)
	ctx := context.Background()

	all := collectAll(t, st.Features())
	n, err := st.Features().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(all), n)
	assert.Len(t, all, 3) // node + way + relation
}

func TestFeatureAccessorsForWayAndNode(t *testing.T) {
	st := buildRootStore(t)
	ctx := context.Background()

	way, err := st.Features().Select("w[highway=primary]").One(ctx)
	require.NoError(t, err)
	assert.Equal(t, "way", way.TypeName())

	tags, err := way.Tags()
	require.NoError(t, err)
	assert.Equal(t, "primary", tags["highway"])

	g, err := way.Geometry()
	require.NoError(t, err)
	ls, ok := g.(orb.LineString)
	require.True(t, ok)
	assert.Len(t, ls, 2)

	bnd := way.Bounds()
	assert.Less(t, bnd.Min[0], bnd.Max[0])

	node, err := st.Features().Select("n[amenity=cafe]").One(ctx)
	require.NoError(t, err)
	g2, err := node.Geometry()
	require.NoError(t, err)
	_, ok = g2.(orb.Point)
	assert.True(t, ok)
}

// TestNodesOfWayReturnsFeatureNode covers spec §6's Features(way) ->
// feature-node refinement.
func TestNodesOfWayReturnsFeatureNode(t *testing.T) {
	st := buildRootStore(t)
	ctx := context.Background()

	way, err := st.Features().Select("w[highway]").One(ctx)
	require.NoError(t, err)

	nodes := collectAll(t, st.Features().NodesOf(way))
	require.Len(t, nodes, 1)
	assert.Equal(t, "Ada", nodes[0].Tag("name").String())
}

// TestMembersOfRelationReturnsWay covers spec §6's Features(relation) ->
// member refinement.
func TestMembersOfRelationReturnsWay(t *testing.T) {
	st := buildRootStore(t)
	ctx := context.Background()

	rel, err := st.Features().Select("r[type=route]").One(ctx)
	require.NoError(t, err)

	members := collectAll(t, st.Features().MembersOf(rel))
	require.Len(t, members, 1)
	assert.Equal(t, "way", members[0].TypeName())
}

func TestWriteFormatsSmoke(t *testing.T) {
	st := buildRootStore(t)
	ctx := context.Background()
	fs := st.Features().Select("n[amenity=cafe]")

	var csvBuf, jsonBuf, mapBuf bytes.Buffer
	require.NoError(t, fs.WriteCSV(ctx, &csvBuf, []string{"amenity", "name"}))
	assert.Contains(t, csvBuf.String(), "Ada")

	require.NoError(t, fs.WriteGeoJSON(ctx, &jsonBuf))
	assert.Contains(t, jsonBuf.String(), `"name":"Ada"`)

	require.NoError(t, fs.WriteMap(ctx, &mapBuf))
	assert.Contains(t, mapBuf.String(), "name=Ada")
}
