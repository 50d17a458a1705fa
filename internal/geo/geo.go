// Package geo contains pure geographic computation helpers.
package geo

import (
	"math"

	"github.com/paulmach/orb"

	"bus-tracker/internal/transit"
)

// EarthRadiusKm is the mean Earth radius. orb's own haversine uses the WGS84
// equatorial radius, which does not match the backend's distances.
const EarthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance in kilometres between two points.
func DistanceKm(a, b transit.GeoPoint) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// ToOrb converts to orb's [lng, lat] ordering.
func ToOrb(p transit.GeoPoint) orb.Point { return orb.Point{p.Lng, p.Lat} }

func FromOrb(p orb.Point) transit.GeoPoint { return transit.GeoPoint{Lat: p.Lat(), Lng: p.Lon()} }

// Bounds is an axis-aligned lat/lng box.
type Bounds struct {
	SouthWest transit.GeoPoint `json:"southWest"`
	NorthEast transit.GeoPoint `json:"northEast"`
}

// Bound returns the bounding box of points. ok is false for an empty set.
func Bound(points []transit.GeoPoint) (Bounds, bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	mp := make(orb.MultiPoint, 0, len(points))
	for _, p := range points {
		mp = append(mp, ToOrb(p))
	}
	b := mp.Bound()
	return Bounds{SouthWest: FromOrb(b.Min), NorthEast: FromOrb(b.Max)}, true
}
