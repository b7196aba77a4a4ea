package geospatial

import (
	"math"

	"github.com/samirrijal/studyspot/internal/core/domain"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371000.0

// metersPerDegreeLat approximates one degree of latitude.
const metersPerDegreeLat = 111320.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	// Rounding can push a just past 1 for near-antipodal points.
	a = math.Min(1, math.Max(0, a))

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Distance returns the great-circle distance in meters between a and b.
func Distance(a, b domain.GeoPoint) float64 {
	return Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// BoundingBox returns a bounding box around a point with the given radius in
// meters. A box reaching a pole or the antimeridian spans every longitude.
func BoundingBox(lat, lon, radiusMeters float64) domain.Bounds {
	latDelta := radiusMeters / metersPerDegreeLat
	b := domain.Bounds{
		MinLat: lat - latDelta,
		MaxLat: lat + latDelta,
		MinLon: -180,
		MaxLon: 180,
	}
	if b.MinLat <= -90 || b.MaxLat >= 90 {
		return b
	}

	lonDelta := radiusMeters / (metersPerDegreeLat * math.Cos(toRad(lat)))
	if lon-lonDelta >= -180 && lon+lonDelta <= 180 {
		b.MinLon = lon - lonDelta
		b.MaxLon = lon + lonDelta
	}
	return b
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
