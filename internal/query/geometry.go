package query

import (
	"github.com/clarisma/geodesk-go/internal/geom"
	"github.com/clarisma/geodesk-go/internal/tilefmt"
	"github.com/paulmach/orb"
)

// geometryOf decodes f's own geometry within tile, dispatching on
// feature type (spec §6 "geometry accessors").
func geometryOf(tile tilefmt.TilePtr, f tilefmt.FeaturePtr, resolver GeometryResolver) (orb.Geometry, error) {
	switch f.Type() {
	case tilefmt.TypeNode:
		return geom.Node(tilefmt.AsNode(f)), nil
	case tilefmt.TypeWay:
		return geom.Way(tilefmt.AsWay(f))
	case tilefmt.TypeRelation:
		var stringsOf func(int32) (string, bool)
		if resolver != nil {
			stringsOf = resolver.StringOf
		}
		return geom.Relation(tile, tilefmt.AsRelation(f), stringsOf)
	default:
		return nil, nil
	}
}
