package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStopGetCoords(t *testing.T) {
	s := Stop{
		Lat: 40.7128,
		Lng: -74.0060,
	}

	coords := s.GetCoords()

	assert.Equal(t, 40.7128, coords.Lat)
	assert.Equal(t, -74.0060, coords.Lng)
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	assert.Equal(t, 3, s.Vehicles)
	assert.Equal(t, 100, s.Capacity)
	assert.Empty(t, s.DepotID)
	assert.Equal(t, DistanceMetricHaversine, s.DistanceMetric)
	assert.Equal(t, ObjectiveDistance, s.Objective)
}

func TestStopIndexResolve(t *testing.T) {
	idx := NewStopIndex([]Stop{
		{ID: "A", Name: "Alpha", Lat: 1, Lng: 2, Demand: 3},
		{ID: "A", Name: "Shadowed"},
	})

	s, ok := idx.Resolve("A")
	assert.True(t, ok)
	assert.Equal(t, "Alpha", s.Name)

	s, ok = idx.Resolve("missing")
	assert.False(t, ok)
	assert.Equal(t, Stop{ID: "missing", Name: "missing"}, s)
}
