// Package geo holds the great-circle and bounding box helpers shared by the
// index, the hierarchy builder and the router.
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusKm is the mean earth radius. orb/geo uses the equatorial radius
// in meters, distances here are kilometers on the mean sphere.
const EarthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometers.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	rlat1 := deg2rad(lat1)
	rlat2 := deg2rad(lat2)
	dlat := rlat2 - rlat1
	dlng := deg2rad(lng2 - lng1)

	a := hsin(dlat) + math.Cos(rlat1)*math.Cos(rlat2)*hsin(dlng)
	if a > 1 {
		a = 1
	}
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// HaversinePoints is Haversine for orb points, X is longitude and Y latitude.
func HaversinePoints(a, b orb.Point) float64 {
	return Haversine(a.Lat(), a.Lon(), b.Lat(), b.Lon())
}

func hsin(theta float64) float64 {
	s := math.Sin(theta / 2)
	return s * s
}

func deg2rad(d float64) float64 {
	return d * math.Pi / 180
}

// ValidLatLng reports whether the coordinate is inside [-90,90]x[-180,180].
func ValidLatLng(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// NewBound builds an orb bound from latitude/longitude limits.
func NewBound(minLat, maxLat, minLng, maxLng float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{minLng, minLat},
		Max: orb.Point{maxLng, maxLat},
	}
}

// BoundValid reports whether the bound is ordered and inside the lat/lng plane.
// Inverted or out of range boxes are treated as empty by callers.
func BoundValid(b orb.Bound) bool {
	if math.IsNaN(b.Min[0]) || math.IsNaN(b.Min[1]) || math.IsNaN(b.Max[0]) || math.IsNaN(b.Max[1]) {
		return false
	}
	if b.Min.Lat() > b.Max.Lat() || b.Min.Lon() > b.Max.Lon() {
		return false
	}
	return ValidLatLng(b.Min.Lat(), b.Min.Lon()) && ValidLatLng(b.Max.Lat(), b.Max.Lon())
}

// Centroid is the arithmetic mean of the points, zero point for empty input.
func Centroid(points []orb.Point) orb.Point {
	if len(points) == 0 {
		return orb.Point{}
	}
	var sx, sy float64
	for _, p := range points {
		sx += p[0]
		sy += p[1]
	}
	n := float64(len(points))
	return orb.Point{sx / n, sy / n}
}
