// Package geo computes great-circle distances and generates sample stops
// around a center point.
package geo

import (
	"fmt"
	"math"
	"math/rand/v2"

	"routeops/internal/models"
)

const (
	// EarthRadiusKm is the mean Earth radius used for great-circle distances
	EarthRadiusKm = 6371.0

	// KmPerDegreeLat is the rough length of one degree of latitude
	KmPerDegreeLat = 111.0

	maxSampleDemand = 25
)

// DefaultCenter is the map center used when there is nothing to show (Ankara)
var DefaultCenter = models.Coordinates{Lat: 39.9334, Lng: 32.8597}

// HaversineKm returns the great-circle distance between two points in kilometers
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push a slightly above 1 for antipodal points
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// DistanceKm returns the great-circle distance between two coordinates
func DistanceKm(a, b models.Coordinates) float64 {
	return HaversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

// GenerateSampleStops creates up to n demo stops scattered around center
func GenerateSampleStops(n int, center models.Coordinates, radiusKm float64) []models.Stop {
	return generateSampleStops(rand.IntN, rand.Float64, n, center, radiusKm)
}

// GenerateSampleStopsWithRand is GenerateSampleStops with an explicit random source
func GenerateSampleStopsWithRand(r *rand.Rand, n int, center models.Coordinates, radiusKm float64) []models.Stop {
	return generateSampleStops(r.IntN, r.Float64, n, center, radiusKm)
}

func generateSampleStops(intN func(int) int, float func() float64, n int, center models.Coordinates, radiusKm float64) []models.Stop {
	if n <= 0 {
		return []models.Stop{}
	}

	latSpan := radiusKm / KmPerDegreeLat
	lngSpan := radiusKm / (KmPerDegreeLat * math.Cos(center.Lat*math.Pi/180))

	stops := make([]models.Stop, 0, n)
	used := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("sample-%d", i+1)
		if used[id] {
			continue
		}
		used[id] = true

		stops = append(stops, models.Stop{
			ID:     id,
			Name:   fmt.Sprintf("Stop %d", i+1),
			Lat:    center.Lat + (float()-0.5)*2*latSpan,
			Lng:    center.Lng + (float()-0.5)*2*lngSpan,
			Demand: float64(intN(maxSampleDemand) + 1),
		})
	}

	return stops
}
