// Package format writes decoded features out as CSV, GeoJSON, or a
// plain key=value text dump (spec §2 "Output formatters (CSV/JSON/Map)
// & geometry builders | Optional"; SPEC_FULL.md §1 keeps a thin
// formatter package rather than dropping the budgeted row entirely).
// It depends only on already-decoded Row values, never on a store or
// tile, so it has no import-cycle back to the root package.
package format

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Row is one feature's already-decoded output data: identity, tags, and
// geometry. Callers (the root package's FeatureSet) build a Row per
// matched feature from Feature.ID/Tag/Geometry rather than this package
// reaching back into tilefmt or gdstore itself.
type Row struct {
	ID       int64
	Type     string // "node", "way", or "relation"
	Tags     map[string]string
	Geometry orb.Geometry // nil if the geometry could not be decoded
}

// WriteCSV writes rows as a header row of "id,type,<keys...>" followed
// by one data row per feature (original_source/include/geodesk/format/
// CsvWriter.h: a fixed id/type prefix plus a schema-selected tag column
// set). Geometry is not represented in CSV output, matching the
// original's column-oriented CsvWriter.
func WriteCSV(w io.Writer, keys []string, rows []Row) error {
	cw := csv.NewWriter(w)
	header := append([]string{"id", "type"}, keys...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, fmt.Sprintf("%d", r.ID), r.Type)
		for _, k := range keys {
			rec = append(rec, r.Tags[k])
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteGeoJSON writes rows as a GeoJSON FeatureCollection, one
// geojson.Feature per Row, with the feature's tags carried as
// properties and "@id"/"@type" added the way the original's
// FeatureRow.h reserves an identity prefix separate from the tag
// namespace.
func WriteGeoJSON(w io.Writer, rows []Row) error {
	fc := geojson.NewFeatureCollection()
	for _, r := range rows {
		if r.Geometry == nil {
			continue // relation whose geometry could not be resolved within its own tile
		}
		gf := geojson.NewFeature(r.Geometry)
		gf.Properties["@id"] = r.ID
		gf.Properties["@type"] = r.Type
		for k, v := range r.Tags {
			gf.Properties[k] = v
		}
		fc.Append(gf)
	}
	b, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// WriteMap writes rows as a plain text dump, one line per feature:
// "type/id key=value key=value ...", sorted by key for determinism.
// Grounded on original_source/include/geodesk/format/MapWriter.h's
// plain key=value text rendering (there used as an HTML/"map" popup
// body; here as the library's one dependency-free text format).
func WriteMap(w io.Writer, rows []Row) error {
	for _, r := range rows {
		keys := make([]string, 0, len(r.Tags))
		for k := range r.Tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s/%d", r.Type, r.ID)
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%s", k, r.Tags[k])
		}
		sb.WriteByte('\n')
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}
