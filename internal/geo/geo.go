// Package geo converts geographic coordinates into the projected system used by
// the feature store.
//
// The feature store keeps geometry in EPSG:3857 (spherical web mercator), while
// the transport delivers positions as EPSG:4326 latitude/longitude. Only the
// forward transform is needed; positions never come back out of the store.
package geo

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// earthRadius is the semi-major axis of the WGS 84 spheroid in meters.
const earthRadius = 6378137.0

// ToWebMercator projects a WGS 84 latitude/longitude pair into EPSG:3857
// easting/northing meters.
func ToWebMercator(lat, lon float64) (x, y float64) {
	x = earthRadius * lon * math.Pi / 180
	y = earthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y
}

// PointWKT projects a WGS 84 position and renders it as a WKT POINT in
// EPSG:3857, the form the feature store accepts verbatim.
func PointWKT(lat, lon float64) (string, error) {
	x, y := ToWebMercator(lat, lon)
	point := geom.NewPointFlat(geom.XY, []float64{x, y})
	s, err := wkt.Marshal(point)
	if err != nil {
		return "", fmt.Errorf("failed to encode projected point: %w", err)
	}
	return s, nil
}
