package geodesk

import (
	"context"
	"io"

	"github.com/clarisma/geodesk-go/internal/format"
)

// rows materializes every matching feature into format.Row values, the
// shared intermediate the CSV/GeoJSON/Map writers below all consume.
func (fs *FeatureSet) rows(ctx context.Context) ([]format.Row, error) {
	var out []format.Row
	for f, err := range fs.All(ctx) {
		if err != nil {
			return nil, err
		}
		tags, err := f.Tags()
		if err != nil {
			return nil, err
		}
		geomv, _ := f.Geometry()
		out = append(out, format.Row{
			ID:       f.rawID(),
			Type:     f.TypeName(),
			Tags:     tags,
			Geometry: geomv,
		})
	}
	return out, nil
}

// WriteCSV writes every matching feature as a CSV row, one column per
// key in keys plus a leading id/type pair (spec §2 "Output formatters
// (CSV/JSON/Map) ... Optional", kept as a thin budgeted component).
func (fs *FeatureSet) WriteCSV(ctx context.Context, w io.Writer, keys []string) error {
	rows, err := fs.rows(ctx)
	if err != nil {
		return err
	}
	return format.WriteCSV(w, keys, rows)
}

// WriteGeoJSON writes every matching feature as a GeoJSON
// FeatureCollection.
func (fs *FeatureSet) WriteGeoJSON(ctx context.Context, w io.Writer) error {
	rows, err := fs.rows(ctx)
	if err != nil {
		return err
	}
	return format.WriteGeoJSON(w, rows)
}

// WriteMap writes every matching feature as a plain key=value text dump.
func (fs *FeatureSet) WriteMap(ctx context.Context, w io.Writer) error {
	rows, err := fs.rows(ctx)
	if err != nil {
		return err
	}
	return format.WriteMap(w, rows)
}
