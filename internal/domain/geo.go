package domain

import "math"

// earthRadiusKm is the mean Earth radius used for great-circle distances.
const earthRadiusKm = 6371.0

// kmPerDegreeLat approximates the length of one degree of latitude.
const kmPerDegreeLat = 111.32

// Envelope is an axis-aligned rectangle in WGS84 degrees, used as a coarse
// spatial pre-filter sent to feature services.
type Envelope struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
}

// Haversine returns the great-circle distance between two WGS84 points in
// kilometers. NaN inputs propagate.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// BoundingEnvelope approximates a square region of half-width radiusKm around
// a point using flat-earth degree-per-km constants. The longitude delta is
// corrected by 1/cos(lat), so the approximation degrades toward the poles;
// callers must only use it at the operating region's mid-latitudes. Exact
// filtering happens afterwards via Haversine.
func BoundingEnvelope(lat, lng, radiusKm float64) Envelope {
	dLat := radiusKm / kmPerDegreeLat
	dLng := radiusKm / (kmPerDegreeLat * math.Cos(toRadians(lat)))
	return Envelope{
		XMin: lng - dLng,
		YMin: lat - dLat,
		XMax: lng + dLng,
		YMax: lat + dLat,
	}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
