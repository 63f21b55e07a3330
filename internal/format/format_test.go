package format

import (
	"bytes"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRows() []Row {
	return []Row{
		{ID: 1, Type: "node", Tags: map[string]string{"amenity": "cafe", "name": "Ada"}, Geometry: orb.Point{13.4, 52.5}},
		{ID: 10, Type: "way", Tags: map[string]string{"highway": "primary"}, Geometry: orb.LineString{{13.4, 52.5}, {13.5, 52.6}}},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []string{"amenity", "highway"}, sampleRows()))
	out := buf.String()
	assert.Contains(t, out, "id,type,amenity,highway")
	assert.Contains(t, out, "1,node,cafe,")
	assert.Contains(t, out, "10,way,,primary")
}

func TestWriteGeoJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGeoJSON(&buf, sampleRows()))
	out := buf.String()
	assert.Contains(t, out, `"type":"FeatureCollection"`)
	assert.Contains(t, out, `"amenity":"cafe"`)
	assert.Contains(t, out, `"@id":1`)
}

func TestWriteGeoJSONSkipsUnresolvedGeometry(t *testing.T) {
	var buf bytes.Buffer
	rows := []Row{{ID: 30, Type: "relation", Tags: map[string]string{"type": "multipolygon"}, Geometry: nil}}
	require.NoError(t, WriteGeoJSON(&buf, rows))
	assert.NotContains(t, buf.String(), "30")
}

func TestWriteMap(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMap(&buf, sampleRows()))
	lines := buf.String()
	assert.Contains(t, lines, "node/1 amenity=cafe name=Ada")
	assert.Contains(t, lines, "way/10 highway=primary")
}
