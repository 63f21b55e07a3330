package mercator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripApprox(t *testing.T) {
	cases := []struct{ lon, lat float64 }{
		{0, 0}, {-122.4194, 37.7749}, {139.6917, 35.6895}, {-0.1276, 51.5072},
	}
	for _, c := range cases {
		x, y := LonLatToMercator(c.lon, c.lat)
		lon, lat := MercatorToLonLat(x, y)
		require.InDelta(t, c.lon, lon, 1e-4)
		require.InDelta(t, c.lat, lat, 1e-4)
	}
}

func TestBoundsIntersects(t *testing.T) {
	a := Bounds{0, 0, 10, 10}
	b := Bounds{5, 5, 15, 15}
	c := Bounds{20, 20, 30, 30}
	require.True(t, a.Intersects(b))
	require.False(t, a.Intersects(c))
}

func TestBoundsUnion(t *testing.T) {
	a := Bounds{0, 0, 10, 10}
	b := Bounds{-5, 5, 5, 20}
	u := a.Union(b)
	require.Equal(t, Bounds{-5, 0, 10, 20}, u)
}

func TestFromLonLatRoundTrip(t *testing.T) {
	b := FromLonLat(-1, -1, 1, 1)
	minLon, minLat, maxLon, maxLat := b.ToLonLat()
	require.True(t, math.Abs(minLon+1) < 1e-3)
	require.True(t, math.Abs(minLat+1) < 1e-3)
	require.True(t, math.Abs(maxLon-1) < 1e-3)
	require.True(t, math.Abs(maxLat-1) < 1e-3)
}
