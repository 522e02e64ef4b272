package models

import "log"

// Coordinates represents a geographic point
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Stop represents a single delivery location with a demand quantity
type Stop struct {
	ID     string  `json:"id" yaml:"id"`
	Name   string  `json:"name" yaml:"name"`
	Lat    float64 `json:"lat" yaml:"lat"`
	Lng    float64 `json:"lng" yaml:"lng"`
	Demand float64 `json:"demand" yaml:"demand"`
}

// GetCoords returns the coordinates of the stop
func (s *Stop) GetCoords() Coordinates {
	return Coordinates{Lat: s.Lat, Lng: s.Lng}
}

// DistanceMetric selects how the solver measures travel between stops
type DistanceMetric string

const (
	DistanceMetricHaversine   DistanceMetric = "haversine"
	DistanceMetricRoadNetwork DistanceMetric = "osrm"
)

// Objective selects what the solver minimizes
type Objective string

const (
	ObjectiveDistance Objective = "distance"
	ObjectiveTime     Objective = "time"
)

// ProblemSettings holds the user-editable solve parameters
type ProblemSettings struct {
	Vehicles       int            `json:"vehicles" yaml:"vehicles" validate:"gte=1,lte=50"`
	Capacity       int            `json:"capacity" yaml:"capacity" validate:"gte=1"`
	DepotID        string         `json:"depotId" yaml:"depotId"`
	DistanceMetric DistanceMetric `json:"distanceMetric" yaml:"distanceMetric" validate:"oneof=haversine osrm"`
	Objective      Objective      `json:"objective" yaml:"objective" validate:"oneof=distance time"`
}

// DefaultSettings returns the settings a fresh session starts with
func DefaultSettings() ProblemSettings {
	return ProblemSettings{
		Vehicles:       3,
		Capacity:       100,
		DistanceMetric: DistanceMetricHaversine,
		Objective:      ObjectiveDistance,
	}
}

// SolveRequest is the exact payload sent to the optimization service
type SolveRequest struct {
	Stops          []Stop         `json:"stops"`
	DepotID        string         `json:"depotId"`
	Vehicles       int            `json:"vehicles"`
	Capacity       int            `json:"capacity"`
	DistanceMetric DistanceMetric `json:"distanceMetric"`
	Objective      Objective      `json:"objective"`
}

// RouteResult represents a single vehicle's route as returned by the solver
type RouteResult struct {
	RouteID    int           `json:"routeId" yaml:"routeId"`
	VehicleID  int           `json:"vehicleId" yaml:"vehicleId"`
	StopIDs    []string      `json:"stopIds" yaml:"stopIds"`
	Load       float64       `json:"load" yaml:"load"`
	DistanceKm float64       `json:"distanceKm" yaml:"distanceKm"`
	TimeMin    float64       `json:"timeMin" yaml:"timeMin"`
	Geometry   []Coordinates `json:"geometry" yaml:"geometry"`
	MatrixUsed string        `json:"matrixUsed,omitempty" yaml:"matrixUsed,omitempty"`
}

// SolveSummary contains aggregate stats for a solve
type SolveSummary struct {
	TotalDistanceKm float64 `json:"totalDistanceKm" yaml:"totalDistanceKm"`
	TotalTimeMin    float64 `json:"totalTimeMin" yaml:"totalTimeMin"`
	Routes          int     `json:"routes" yaml:"routes"`
	StopsServed     int     `json:"stopsServed" yaml:"stopsServed"`
	MatrixUsed      string  `json:"matrixUsed,omitempty" yaml:"matrixUsed,omitempty"`
}

// SolveResponse is the full solver answer
type SolveResponse struct {
	Status          string        `json:"status" yaml:"status"`
	Summary         SolveSummary  `json:"summary" yaml:"summary"`
	Routes          []RouteResult `json:"routes" yaml:"routes"`
	UnservedStopIDs []string      `json:"unservedStopIds" yaml:"unservedStopIds"`
}

// StatusOK is the only status value the solver uses for a usable answer
const StatusOK = "ok"

// StopIndex maps stop ids to stops for lookups during export and rendering
type StopIndex map[string]Stop

// NewStopIndex indexes stops by id. Later duplicates do not replace earlier ones.
func NewStopIndex(stops []Stop) StopIndex {
	idx := make(StopIndex, len(stops))
	for _, s := range stops {
		if _, ok := idx[s.ID]; !ok {
			idx[s.ID] = s
		}
	}
	return idx
}

// Resolve returns the stop for id. Unknown ids resolve to a placeholder named
// after the id with zero coordinates and demand, and a data-integrity warning is logged.
func (idx StopIndex) Resolve(id string) (Stop, bool) {
	if s, ok := idx[id]; ok {
		return s, true
	}
	log.Printf("[INTEGRITY] Unknown stop id referenced by solver result: id=%s", id)
	return Stop{ID: id, Name: id}, false
}
