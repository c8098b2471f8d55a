// Package geo holds great-circle distance math and the human-facing
// presentation of distances used in place results.
package geo

import (
	"fmt"
	"math"
	"strconv"
)

// EarthRadiusKm is the mean earth radius used by Haversine.
const EarthRadiusKm = 6371.0

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether c lies within the legal latitude/longitude ranges.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// String formats c as "lat,lng", the form map providers accept.
func (c Coordinates) String() string {
	return strconv.FormatFloat(c.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(c.Longitude, 'f', -1, 64)
}

// LatLng is the provider wire shape for a coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Coordinates converts a wire coordinate.
func (l LatLng) Coordinates() Coordinates {
	return Coordinates{Latitude: l.Lat, Longitude: l.Lng}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Haversine returns the great-circle distance between a and b in kilometers.
func Haversine(a, b Coordinates) float64 {
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)
	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Latitude))*math.Cos(toRadians(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
}

// FormatDistance renders km as meters below 1 km, one-decimal kilometers
// below 10 km and whole kilometers above.
func FormatDistance(km float64) string {
	switch {
	case km < 1:
		return fmt.Sprintf("%dm", int64(math.Round(km*1000)))
	case km < 10:
		return fmt.Sprintf("%.1fkm", km)
	default:
		return fmt.Sprintf("%dkm", int64(math.Round(km)))
	}
}

// Band is a qualitative distance bucket.
type Band int

const (
	BandImmediate Band = iota
	BandShortWalk
	BandEasyStroll
	BandWalkOrQuickDrive
	BandShortDrive
	BandModerateDrive
	BandFar
)

// Upper bounds (exclusive, km) for every band but BandFar.
var bandLimits = [...]float64{0.1, 0.5, 1, 2, 5, 10}

// BandFor returns the band containing km.
func BandFor(km float64) Band {
	for i, limit := range bandLimits {
		if km < limit {
			return Band(i)
		}
	}
	return BandFar
}

func (b Band) String() string {
	switch b {
	case BandImmediate:
		return "in the immediate vicinity"
	case BandShortWalk:
		return "a short walk"
	case BandEasyStroll:
		return "an easy stroll"
	case BandWalkOrQuickDrive:
		return "a walk or a quick drive"
	case BandShortDrive:
		return "a short drive"
	case BandModerateDrive:
		return "a moderate drive"
	case BandFar:
		return "far away"
	default:
		return "unknown"
	}
}

// DescribeDistance is BandFor(km).String().
func DescribeDistance(km float64) string {
	return BandFor(km).String()
}
