package spatial

import (
	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371000.0

// Distance returns the haversine great-circle distance in meters.
func Distance(lon1, lat1, lon2, lat2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * EarthRadiusMeters
}

// Between returns the distance between two locations in meters.
func Between(a, b domain.Location) float64 {
	return Distance(a.Lon, a.Lat, b.Lon, b.Lat)
}

func unitVector(lon, lat float64) [3]float64 {
	p := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon))
	return [3]float64{p.X, p.Y, p.Z}
}
