// Package geo provides great-circle distance calculations on the WGS84 sphere.
package geo

import (
	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used to convert angular
// distances to meters.
const EarthRadiusMeters = 6371008.8

// DistanceMeters returns the great-circle distance in meters between two
// lat/lon points, computed on the unit sphere rather than with a planar
// approximation.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}
