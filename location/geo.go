package location

import "math"

// EarthRadiusMeters is the mean earth radius used for all distances
const EarthRadiusMeters = 6371008.8

// Haversine returns the great-circle distance in meters between two coordinates
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	if a > 1 {
		a = 1
	}
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(a))
}

// DistanceTo returns the haversine distance from p to q in meters
func (p Point) DistanceTo(q Point) float64 {
	return Haversine(p.Latitude, p.Longitude, q.Latitude, q.Longitude)
}

// IsZeroIsland reports whether the point sits at (0, 0), a common GPS glitch
func (p Point) IsZeroIsland() bool {
	return p.Latitude == 0 && p.Longitude == 0
}
