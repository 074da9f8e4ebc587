// Package geo provides coordinate types and great-circle distance.
package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used for all distances.
const EarthRadiusMeters = 6371000.0

// Coordinates is a WGS84 position in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// DistanceMeters returns the haversine distance between a and b.
// Invalid inputs (NaN, out of range) propagate as NaN.
//
// Swapping a and b yields a bit-identical result.
func DistanceMeters(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	sdLat := math.Sin((lat2 - lat1) / 2)
	sdLng := math.Sin((b.Lng - a.Lng) * math.Pi / 180 / 2)

	h := sdLat*sdLat + (math.Cos(lat1)*math.Cos(lat2))*(sdLng*sdLng)
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(math.Min(h, 1)))
}

// Valid reports whether c is a finite position inside the lat/lng ranges.
func (c Coordinates) Valid() bool {
	return s2.LatLngFromDegrees(c.Lat, c.Lng).IsValid()
}

// Offset returns the point north and east meters away from c. It uses a
// flat-earth approximation that is accurate at geofence scales.
func Offset(c Coordinates, north, east float64) Coordinates {
	dLat := north / EarthRadiusMeters * 180 / math.Pi
	dLng := east / (EarthRadiusMeters * math.Cos(c.Lat*math.Pi/180)) * 180 / math.Pi
	return Coordinates{Lat: c.Lat + dLat, Lng: c.Lng + dLng}
}
