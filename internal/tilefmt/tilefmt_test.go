package tilefmt

import (
	"testing"

	"github.com/clarisma/geodesk-go/internal/mercator"
	"github.com/clarisma/geodesk-go/internal/varint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureHeaderRoundTrip(t *testing.T) {
	hdr := MakeFeatureHeader(123456789, TypeWay, AreaFlag|WayNodeFlag)
	assert.Equal(t, uint64(123456789), hdr.ID())
	assert.Equal(t, TypeWay, hdr.Type())
	assert.Equal(t, AreaFlag|WayNodeFlag, hdr.Flags())
}

func TestFeaturePtrFields(t *testing.T) {
	b := NewTileBuilder()
	bnd := mercator.Bounds{MinX: 10, MinY: 20, MaxX: 30, MaxY: 40}
	off := b.AddFeature(FeatureSpec{
		ID:     42,
		Type:   TypeNode,
		Bounds: bnd,
	})
	tile := b.Finish()

	p := NewFeaturePtr(tile, off)
	assert.Equal(t, uint64(42), p.ID())
	assert.True(t, p.IsNode())
	assert.False(t, p.IsWay())
	assert.Equal(t, bnd, p.Bounds())
}

func TestTagTableEmptyYieldsNoTags(t *testing.T) {
	b := NewTileBuilder()
	off := b.AddFeature(FeatureSpec{ID: 1, Type: TypeNode, Bounds: mercator.Bounds{}})
	tile := b.Finish()

	p := NewFeaturePtr(tile, off)
	tags, err := p.Tags().All()
	require.NoError(t, err)
	assert.Empty(t, tags)
}

// TestTagTableIterationCompleteness exercises Testable Property 3:
// iterating the tag table yields each tag exactly once, and Get/GetLocal
// return the same value iteration would produce.
func TestTagTableIterationCompleteness(t *testing.T) {
	b := NewTileBuilder()
	off := b.AddFeature(FeatureSpec{
		ID:   7,
		Type: TypeNode,
		Tags: []TagSpec{
			{GlobalCode: 3, Value: TagValue{Kind: ValueGlobalString, GlobalCode: 99}},
			{GlobalCode: 5, Value: TagValue{Kind: ValueNarrowInt, Int: -7}},
			{LocalKey: "addr:housenumber", Value: TagValue{Kind: ValueWideInt, Int: 221}},
			{LocalKey: "name:fr", Value: TagValue{Kind: ValueDecimal, Mantissa: 125, Exponent: -1}},
		},
	})
	tile := b.Finish()

	p := NewFeaturePtr(tile, off)
	all, err := p.Tags().All()
	require.NoError(t, err)
	require.Len(t, all, 4)

	v, ok := p.Tags().Get(3)
	require.True(t, ok)
	assert.Equal(t, int32(99), v.GlobalCode)

	v, ok = p.Tags().Get(5)
	require.True(t, ok)
	assert.Equal(t, int64(-7), v.Int)

	v, ok = p.Tags().GetLocal("addr:housenumber")
	require.True(t, ok)
	assert.Equal(t, int64(221), v.Int)

	v, ok = p.Tags().GetLocal("name:fr")
	require.True(t, ok)
	assert.Equal(t, int32(125), v.Mantissa)
	assert.Equal(t, int8(-1), v.Exponent)

	_, ok = p.Tags().GetLocal("nonexistent")
	assert.False(t, ok)

	var globalCodes []int32
	var localKeys []string
	for _, tag := range all {
		if tag.Key >= 0 {
			globalCodes = append(globalCodes, tag.Key)
		} else {
			localKeys = append(localKeys, tag.LocalKey)
		}
	}
	assert.ElementsMatch(t, []int32{3, 5}, globalCodes)
	assert.ElementsMatch(t, []string{"addr:housenumber", "name:fr"}, localKeys)
}

func TestWayCoordinateIteratorDuplicatesClosingVertexForArea(t *testing.T) {
	b := NewTileBuilder()
	coords := []mercator.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	anchor := mercator.Point{X: 0, Y: 0}
	body := EncodeWayCoordDeltas(anchor, coords, nil)
	off := b.AddFeature(FeatureSpec{
		ID:     1,
		Type:   TypeWay,
		Flags:  AreaFlag,
		Bounds: mercator.Bounds{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10},
		Body:   body,
	})
	tile := b.Finish()

	w := AsWay(NewFeaturePtr(tile, off))
	it, err := NewWayCoordinateIterator(w)
	require.NoError(t, err)

	var got []mercator.Point
	for {
		p, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, p)
	}
	require.NoError(t, it.Err())
	require.Len(t, got, 5)
	assert.Equal(t, coords[0], got[0])
	assert.Equal(t, coords[0], got[4]) // duplicated closing vertex
}

func TestWayCoordinateIteratorNonAreaDoesNotDuplicate(t *testing.T) {
	b := NewTileBuilder()
	coords := []mercator.Point{{X: 0, Y: 0}, {X: 10, Y: 5}}
	body := EncodeWayCoordDeltas(coords[0], coords, nil)
	off := b.AddFeature(FeatureSpec{
		ID:     2,
		Type:   TypeWay,
		Bounds: mercator.Bounds{MinX: 0, MinY: 0, MaxX: 10, MaxY: 5},
		Body:   body,
	})
	tile := b.Finish()

	w := AsWay(NewFeaturePtr(tile, off))
	it, err := NewWayCoordinateIterator(w)
	require.NoError(t, err)
	var got []mercator.Point
	for {
		p, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, p)
	}
	require.NoError(t, it.Err())
	assert.Equal(t, coords, got)
}

func TestRelationMemberIterationOrderAndAreaMembers(t *testing.T) {
	b := NewTileBuilder()
	members := []MemberSpec{
		{FeatureOffset: 100, Type: TypeWay, RoleCode: 1},
		{FeatureOffset: 200, Type: TypeWay, RoleCode: 2},
		{FeatureOffset: 300, Type: TypeNode, RoleCode: -1},
	}
	body := EncodeRelationBody(members)
	off := b.AddFeature(FeatureSpec{
		ID:     9,
		Type:   TypeRelation,
		Flags:  AreaFlag,
		Bounds: mercator.Bounds{},
		Body:   body,
	})
	tile := b.Finish()

	strings := map[int32]string{1: "outer", 2: "inner"}
	resolve := func(code int32) (string, bool) { s, ok := strings[code]; return s, ok }

	r := AsRelation(NewFeaturePtr(tile, off))
	all, err := NewMemberIterator(r, resolve).All()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, uint32(100), all[0].FeatureOffset)
	assert.Equal(t, "outer", all[0].Role)
	assert.Equal(t, uint32(200), all[1].FeatureOffset)
	assert.Equal(t, "inner", all[1].Role)
	assert.Equal(t, uint32(300), all[2].FeatureOffset)
	assert.Equal(t, "", all[2].Role)

	areaMembers, err := AreaMembers(r, resolve)
	require.NoError(t, err)
	require.Len(t, areaMembers, 2)
	assert.Equal(t, TypeWay, areaMembers[0].Type)
	assert.Equal(t, TypeWay, areaMembers[1].Type)
}

func TestAreaMembersOnNonAreaRelationIsEmpty(t *testing.T) {
	b := NewTileBuilder()
	body := EncodeRelationBody([]MemberSpec{{FeatureOffset: 1, Type: TypeWay, RoleCode: -1}})
	off := b.AddFeature(FeatureSpec{ID: 1, Type: TypeRelation, Body: body})
	tile := b.Finish()

	r := AsRelation(NewFeaturePtr(tile, off))
	members, err := AreaMembers(r, nil)
	require.NoError(t, err)
	assert.Nil(t, members)
}

func TestRecursionGuardRejectsRootAndRepeats(t *testing.T) {
	b := NewTileBuilder()
	rootOff := b.AddFeature(FeatureSpec{ID: 1, Type: TypeRelation})
	childOff := b.AddFeature(FeatureSpec{ID: 2, Type: TypeRelation})
	tile := b.Finish()

	root := AsRelation(NewFeaturePtr(tile, rootOff))
	child := AsRelation(NewFeaturePtr(tile, childOff))

	guard := NewRecursionGuard(root)
	assert.False(t, guard.CheckAndAdd(root), "guard must reject its own root")
	assert.True(t, guard.CheckAndAdd(child), "first visit to a distinct relation is allowed")
	assert.False(t, guard.CheckAndAdd(child), "second visit to the same relation must be rejected")
}

func TestIndexNodeLeafTraversal(t *testing.T) {
	b := NewTileBuilder()
	f1 := b.AddFeature(FeatureSpec{ID: 1, Type: TypeNode, Bounds: mercator.Bounds{MinX: 0, MinY: 0, MaxX: 0, MaxY: 0}})
	f2 := b.AddFeature(FeatureSpec{ID: 2, Type: TypeNode, Bounds: mercator.Bounds{MinX: 5, MinY: 5, MaxX: 5, MaxY: 5}})
	leafBounds := mercator.Bounds{MinX: 0, MinY: 0, MaxX: 5, MaxY: 5}
	leaf := b.BuildIndexLeaf(leafBounds, 0x3, []uint32{f1, f2})
	b.SetIndexRoot(IndexNodes, leaf)
	tile := b.Finish()

	tp := NewTilePtr(tile)
	root := NewIndexNodePtr(tile, tp.IndexRoot(IndexNodes))
	assert.Equal(t, IndexLeaf, root.Kind())
	assert.Equal(t, 2, root.Count())
	assert.Equal(t, leafBounds, root.Bounds())
	assert.Equal(t, uint32(0x3), root.IndexBits())
	assert.Equal(t, f1, root.Item(0))
	assert.Equal(t, f2, root.Item(1))
}

func TestIndexNodeBranchDescendsToChildren(t *testing.T) {
	b := NewTileBuilder()
	f1 := b.AddFeature(FeatureSpec{ID: 1, Type: TypeNode})
	leaf1 := b.BuildIndexLeaf(mercator.Bounds{}, 0x1, []uint32{f1})
	leaf2 := b.BuildIndexLeaf(mercator.Bounds{}, 0x2, []uint32{f1})
	branch := b.BuildIndexBranch(mercator.Bounds{}, 0x3, []uint32{leaf1, leaf2})
	tile := b.Finish()

	root := NewIndexNodePtr(tile, branch)
	require.Equal(t, IndexBranch, root.Kind())
	require.Equal(t, 2, root.Count())
	assert.Equal(t, IndexLeaf, root.Child(0).Kind())
	assert.Equal(t, uint32(0x1), root.Child(0).IndexBits())
	assert.Equal(t, uint32(0x2), root.Child(1).IndexBits())
}

func TestNodeRelationsAndParentIteration(t *testing.T) {
	b := NewTileBuilder()
	// Build the node's relation-membership body manually: two parent
	// offsets, the low bit of each varint marking the last entry.
	body := encodeParentRelationTable([]uint32{50, 60})
	off := b.AddFeature(FeatureSpec{ID: 1, Type: TypeNode, Flags: RelationMemberFlag, Body: body})
	tile := b.Finish()

	n := AsNode(NewFeaturePtr(tile, off))
	require.True(t, n.HasRelations())
	it := NewParentRelationIterator(n.Relations())
	var got []uint32
	for {
		p, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, p)
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []uint32{50, 60}, got)
}

// encodeParentRelationTable mirrors the format ParentRelationIterator
// expects: each entry is a varint of (offset<<1 | lastFlag).
func encodeParentRelationTable(offsets []uint32) []byte {
	var out []byte
	for i, off := range offsets {
		word := uint64(off) << 1
		if i == len(offsets)-1 {
			word |= 1
		}
		out = varint.AppendUvarint(out, word)
	}
	return out
}
