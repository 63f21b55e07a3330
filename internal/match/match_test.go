package match_test

import (
	"testing"

	"github.com/clarisma/geodesk-go/internal/gdstore"
	. "github.com/clarisma/geodesk-go/internal/match"
	"github.com/clarisma/geodesk-go/internal/tilefmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResolver() gdstore.Resolver {
	strings := gdstore.NewStringTable([]string{"yes", "no", "highway", "primary", "secondary", "residential", "building", "name", "maxspeed"})
	keys := gdstore.NewIndexedKeyTable([]string{"highway", "building"})
	return gdstore.NewResolver(strings, keys)
}

func globalCode(t *testing.T, r gdstore.Resolver, s string) int32 {
	t.Helper()
	code, ok := r.Lookup(s)
	require.True(t, ok)
	return code
}

func buildTileWithTags(t *testing.T, tags []tilefmt.TagSpec, ft tilefmt.FeatureType, isArea bool) (tilefmt.TagTablePtr, tilefmt.FeatureType, bool) {
	b := tilefmt.NewTileBuilder()
	var flags tilefmt.FeatureFlags
	if isArea {
		flags = tilefmt.AreaFlag
	}
	off := b.AddFeature(tilefmt.FeatureSpec{ID: 1, Type: ft, Flags: flags, Tags: tags})
	tile := b.Finish()
	p := tilefmt.NewFeaturePtr(tile, off)
	return p.Tags(), ft, isArea
}

func TestMatcherAcceptsByTypeAndTag(t *testing.T) {
	r := testResolver()
	m, err := Compile("w[highway=primary,secondary]", r)
	require.NoError(t, err)

	tags, ft, isArea := buildTileWithTags(t, []tilefmt.TagSpec{
		{GlobalCode: globalCode(t, r, "highway"), Value: tilefmt.TagValue{Kind: tilefmt.ValueGlobalString, GlobalCode: globalCode(t, r, "secondary")}},
	}, tilefmt.TypeWay, false)

	assert.True(t, m.Accept(MaskFor(ft, isArea), tags))
}

func TestMatcherRejectsWrongType(t *testing.T) {
	r := testResolver()
	m, err := Compile("n[highway=primary]", r)
	require.NoError(t, err)

	tags, ft, isArea := buildTileWithTags(t, []tilefmt.TagSpec{
		{GlobalCode: globalCode(t, r, "highway"), Value: tilefmt.TagValue{Kind: tilefmt.ValueGlobalString, GlobalCode: globalCode(t, r, "primary")}},
	}, tilefmt.TypeWay, false)

	assert.False(t, m.Accept(MaskFor(ft, isArea), tags))
}

func TestMatcherRejectsWrongValue(t *testing.T) {
	r := testResolver()
	m, err := Compile("w[highway=primary]", r)
	require.NoError(t, err)

	tags, ft, isArea := buildTileWithTags(t, []tilefmt.TagSpec{
		{GlobalCode: globalCode(t, r, "highway"), Value: tilefmt.TagValue{Kind: tilefmt.ValueGlobalString, GlobalCode: globalCode(t, r, "residential")}},
	}, tilefmt.TypeWay, false)

	assert.False(t, m.Accept(MaskFor(ft, isArea), tags))
}

func TestMatcherAreaFlagCombinesWithType(t *testing.T) {
	r := testResolver()
	m, err := Compile("a[building]", r)
	require.NoError(t, err)

	tags, ft, isArea := buildTileWithTags(t, []tilefmt.TagSpec{
		{GlobalCode: globalCode(t, r, "building"), Value: tilefmt.TagValue{Kind: tilefmt.ValueGlobalString, GlobalCode: globalCode(t, r, "yes")}},
	}, tilefmt.TypeWay, true)
	assert.True(t, m.Accept(MaskFor(ft, isArea), tags))

	tagsNonArea, ft2, isArea2 := buildTileWithTags(t, []tilefmt.TagSpec{
		{GlobalCode: globalCode(t, r, "building"), Value: tilefmt.TagValue{Kind: tilefmt.ValueGlobalString, GlobalCode: globalCode(t, r, "yes")}},
	}, tilefmt.TypeWay, false)
	assert.False(t, m.Accept(MaskFor(ft2, isArea2), tagsNonArea))
}

func TestMatcherBareKeyPassesWhenKeyPresent(t *testing.T) {
	r := testResolver()
	m, err := Compile("n[name]", r)
	require.NoError(t, err)

	tags, ft, isArea := buildTileWithTags(t, nil, tilefmt.TypeNode, false)
	assert.False(t, m.Accept(MaskFor(ft, isArea), tags))

	tagged, ft2, isArea2 := buildTileWithTags(t, []tilefmt.TagSpec{
		{GlobalCode: globalCode(t, r, "name"), Value: tilefmt.TagValue{Kind: tilefmt.ValueGlobalString, GlobalCode: globalCode(t, r, "yes")}},
	}, tilefmt.TypeNode, false)
	assert.True(t, m.Accept(MaskFor(ft2, isArea2), tagged))
}

func TestMatcherNumericComparison(t *testing.T) {
	r := testResolver()
	m, err := Compile("*[maxspeed>50]", r)
	require.NoError(t, err)

	tags, ft, isArea := buildTileWithTags(t, []tilefmt.TagSpec{
		{GlobalCode: globalCode(t, r, "maxspeed"), Value: tilefmt.TagValue{Kind: tilefmt.ValueNarrowInt, Int: 80}},
	}, tilefmt.TypeWay, false)
	assert.True(t, m.Accept(MaskFor(ft, isArea), tags))

	lowTags, ft2, isArea2 := buildTileWithTags(t, []tilefmt.TagSpec{
		{GlobalCode: globalCode(t, r, "maxspeed"), Value: tilefmt.TagValue{Kind: tilefmt.ValueNarrowInt, Int: 30}},
	}, tilefmt.TypeWay, false)
	assert.False(t, m.Accept(MaskFor(ft2, isArea2), lowTags))
}

func TestMatcherLocalKeyAndLocalStringValue(t *testing.T) {
	r := testResolver()
	m, err := Compile(`n[addr:housenumber='221']`, r)
	require.NoError(t, err)

	b := tilefmt.NewTileBuilder()
	off := b.AddFeature(tilefmt.FeatureSpec{
		ID: 1, Type: tilefmt.TypeNode,
		Tags: []tilefmt.TagSpec{
			{LocalKey: "addr:housenumber", Value: b.LocalStringValue("221")},
		},
	})
	tile := b.Finish()
	tags := tilefmt.NewFeaturePtr(tile, off).Tags()

	assert.True(t, m.Accept(MaskFor(tilefmt.TypeNode, false), tags))
}

func TestMatcherOrAcrossSelectors(t *testing.T) {
	r := testResolver()
	m, err := Compile("n[highway=primary],w[highway=primary]", r)
	require.NoError(t, err)

	nodeTags, ft, isArea := buildTileWithTags(t, []tilefmt.TagSpec{
		{GlobalCode: globalCode(t, r, "highway"), Value: tilefmt.TagValue{Kind: tilefmt.ValueGlobalString, GlobalCode: globalCode(t, r, "primary")}},
	}, tilefmt.TypeNode, false)
	assert.True(t, m.Accept(MaskFor(ft, isArea), nodeTags))

	wayTags, ft2, isArea2 := buildTileWithTags(t, []tilefmt.TagSpec{
		{GlobalCode: globalCode(t, r, "highway"), Value: tilefmt.TagValue{Kind: tilefmt.ValueGlobalString, GlobalCode: globalCode(t, r, "primary")}},
	}, tilefmt.TypeWay, false)
	assert.True(t, m.Accept(MaskFor(ft2, isArea2), wayTags))

	relTags, ft3, isArea3 := buildTileWithTags(t, []tilefmt.TagSpec{
		{GlobalCode: globalCode(t, r, "highway"), Value: tilefmt.TagValue{Kind: tilefmt.ValueGlobalString, GlobalCode: globalCode(t, r, "primary")}},
	}, tilefmt.TypeRelation, false)
	assert.False(t, m.Accept(MaskFor(ft3, isArea3), relTags))
}

func TestMatcherIndexBitsReflectIndexedKeys(t *testing.T) {
	r := testResolver()
	m, err := Compile("w[highway=primary]", r)
	require.NoError(t, err)
	assert.NotZero(t, m.IndexBits())

	m2, err := Compile("w[name=foo]", r)
	require.NoError(t, err)
	assert.Zero(t, m2.IndexBits())
}

func TestCompileRejectsBadExpression(t *testing.T) {
	r := testResolver()
	_, err := Compile("q[highway=primary]", r)
	require.Error(t, err)
}

// TestMatcherMissingTypeSpecDefaultsToAny exercises spec §8 S4's
// `[amenity=cafe,restaurant][name!=Ada]` form directly, with no leading
// type specifier.
func TestMatcherMissingTypeSpecDefaultsToAny(t *testing.T) {
	r := testResolver()
	m, err := Compile("[highway=primary,secondary][name!=Ada]", r)
	require.NoError(t, err)

	build := func(name string) tilefmt.TagTablePtr {
		b := tilefmt.NewTileBuilder()
		off := b.AddFeature(tilefmt.FeatureSpec{
			ID: 1, Type: tilefmt.TypeWay,
			Tags: []tilefmt.TagSpec{
				{GlobalCode: globalCode(t, r, "highway"), Value: tilefmt.TagValue{Kind: tilefmt.ValueGlobalString, GlobalCode: globalCode(t, r, "secondary")}},
				{GlobalCode: globalCode(t, r, "name"), Value: b.LocalStringValue(name)},
			},
		})
		tile := b.Finish()
		return tilefmt.NewFeaturePtr(tile, off).Tags()
	}

	assert.True(t, m.Accept(MaskFor(tilefmt.TypeWay, false), build("Bob")))
	assert.False(t, m.Accept(MaskFor(tilefmt.TypeWay, false), build("Ada")))
}

func TestAcceptAllMatchesEverything(t *testing.T) {
	m, err := Compile("", testResolver())
	require.NoError(t, err)
	assert.Same(t, AcceptAll, m)

	tags, ft, isArea := buildTileWithTags(t, nil, tilefmt.TypeRelation, true)
	assert.True(t, m.Accept(MaskFor(ft, isArea), tags))
}
