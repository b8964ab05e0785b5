package geo

import "math"

// EarthRadiusM is the mean Earth radius in meters.
const EarthRadiusM = 6371000.0

// Location represents a geographic coordinate.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Provider defines the interface for obtaining the current location.
type Provider interface {
	GetLocation() (Location, bool)
}

// StaticProvider implements Provider with a fixed location.
type StaticProvider struct {
	Lat float64
	Lng float64
}

// NewStaticProvider creates a provider that always returns the same location.
func NewStaticProvider(lat, lng float64) *StaticProvider {
	return &StaticProvider{Lat: lat, Lng: lng}
}

// GetLocation returns the fixed location.
func (s *StaticProvider) GetLocation() (Location, bool) {
	return Location{Latitude: s.Lat, Longitude: s.Lng}, true
}

// HaversineM returns the great-circle distance between two points in meters.
func HaversineM(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * EarthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// BearingDeg returns the initial bearing from point 1 to point 2 in degrees,
// normalized to [0, 360).
func BearingDeg(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	theta := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(theta+360, 360)
}

// DestinationPoint returns the point at the given distance (meters) along the
// given bearing (degrees) from the start point.
func DestinationPoint(lat, lon, bearingDeg, distanceM float64) (float64, float64) {
	delta := distanceM / EarthRadiusM
	theta := bearingDeg * math.Pi / 180
	phi1 := lat * math.Pi / 180
	lambda1 := lon * math.Pi / 180

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) +
		math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2))

	return phi2 * 180 / math.Pi, math.Mod(lambda2*180/math.Pi+540, 360) - 180
}

// PointInPolygon reports whether (lat, lon) lies inside the polygon given as
// ordered (lat, lon) vertex pairs, using the even-odd ray casting rule.
// Points exactly on an edge may land on either side.
func PointInPolygon(lat, lon float64, poly []Location) bool {
	if len(poly) < 3 {
		return false
	}
	inside := false
	j := len(poly) - 1
	for i := 0; i < len(poly); i++ {
		yi, xi := poly[i].Latitude, poly[i].Longitude
		yj, xj := poly[j].Latitude, poly[j].Longitude
		if (yi > lat) != (yj > lat) &&
			lon < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}
