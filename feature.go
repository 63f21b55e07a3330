package geodesk

import (
	"github.com/clarisma/geodesk-go/internal/gdstore"
	"github.com/clarisma/geodesk-go/internal/geom"
	"github.com/clarisma/geodesk-go/internal/tilefmt"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
)

// Feature is one decoded node/way/relation, bound to the store it was
// read from (spec §6 "feature.id(), typeName(), bbox(), geometry
// accessors"). A Feature is a lightweight value — it borrows the store's
// mapped tile bytes and must not outlive the store.
type Feature struct {
	store *Store
	tip   gdstore.TIP
	tile  tilefmt.TilePtr
	ptr   tilefmt.FeaturePtr
}

// Tag returns key's value on this feature, or a TagValue with
// IsPresent() == false if the feature does not carry it.
func (f Feature) Tag(key string) TagValue {
	k := f.store.s.LookupKey(key)
	tags := f.ptr.Tags()
	var tv tilefmt.TagValue
	var ok bool
	if k.Code >= 0 {
		tv, ok = tags.Get(k.Code)
	} else {
		tv, ok = tags.GetLocal(key)
	}
	if !ok {
		return noTagValue
	}
	return tagValueOf(tv, tags, f.store.s.GetGlobalString)
}

// rawID returns the feature's bare OSM id, independent of osm.FeatureID's
// internal type/ref encoding (used by the output formatters, which want
// a plain integer rather than a typed identifier).
func (f Feature) rawID() int64 { return int64(f.ptr.ID()) }

// ID returns the feature's OSM identifier, typed by feature kind.
func (f Feature) ID() osm.FeatureID {
	id := int64(f.ptr.ID())
	switch f.ptr.Type() {
	case tilefmt.TypeNode:
		return osm.NodeID(id).FeatureID()
	case tilefmt.TypeWay:
		return osm.WayID(id).FeatureID()
	default:
		return osm.RelationID(id).FeatureID()
	}
}

// TypeName returns "node", "way", or "relation".
func (f Feature) TypeName() string { return f.ptr.Type().String() }

// Tags materializes every tag the feature carries as a key->text map,
// resolving global-string keys via the store's string table. Used by
// the output formatters (internal/format), which work over already
// decoded feature data rather than reaching back into a tile.
func (f Feature) Tags() (map[string]string, error) {
	tags := f.ptr.Tags()
	all, err := tags.All()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(all))
	for _, t := range all {
		key := t.LocalKey
		if t.Key >= 0 {
			key, _ = f.store.s.GetGlobalString(t.Key)
		}
		out[key] = tagValueOf(t.Value, tags, f.store.s.GetGlobalString).String()
	}
	return out, nil
}

// IsArea reports whether the feature's AREA flag is set (an area is a
// way or relation, not a fourth type — spec Glossary).
func (f Feature) IsArea() bool { return f.ptr.IsArea() }

// Bounds returns the feature's WGS84 bounding box.
func (f Feature) Bounds() orb.Bound {
	return geom.Bound(f.ptr.Bounds())
}

// Geometry decodes the feature's own geometry (point, line, or polygon).
// A relation whose outer/inner members cannot be fully resolved within
// its own tile returns an error (see internal/geom.Relation).
func (f Feature) Geometry() (orb.Geometry, error) {
	switch f.ptr.Type() {
	case tilefmt.TypeNode:
		return geom.Node(tilefmt.AsNode(f.ptr)), nil
	case tilefmt.TypeWay:
		return geom.Way(tilefmt.AsWay(f.ptr))
	default:
		return geom.Relation(f.tile, tilefmt.AsRelation(f.ptr), f.store.s.GetGlobalString)
	}
}
