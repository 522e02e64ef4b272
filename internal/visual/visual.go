// Package visual derives map and table presentation data from a solve result:
// route colors, stop to route lookups, bounds, markers and polylines.
package visual

import (
	"math"
	"slices"

	"github.com/samber/lo"

	"routeops/internal/geo"
	"routeops/internal/models"
)

// Palette is the fixed list of route colors
var Palette = []string{
	"#228be6",
	"#40c057",
	"#fd7e14",
	"#be4bdb",
	"#fa5252",
	"#15aabf",
	"#fab005",
	"#7950f2",
}

// DepotColor marks the depot on the map
const DepotColor = "#e03131"

const (
	focusedWeight   = 4
	focusedOpacity  = 0.9
	unfocusedWeight = 2
	unfocusedOpac   = 0.4
)

// Visualizer answers presentation questions about one solve response.
// It never modifies the response.
type Visualizer struct {
	routes     []models.RouteResult
	colorIndex map[int]int
}

// New assigns palette slots to routes in order of first appearance of their routeId
func New(resp *models.SolveResponse) *Visualizer {
	v := &Visualizer{colorIndex: make(map[int]int)}
	if resp == nil {
		return v
	}

	v.routes = resp.Routes
	ids := lo.Uniq(lo.Map(resp.Routes, func(r models.RouteResult, _ int) int { return r.RouteID }))
	for i, id := range ids {
		v.colorIndex[id] = i
	}
	return v
}

// ColorIndex returns the palette slot of a route. Unknown routes get slot 0.
func (v *Visualizer) ColorIndex(routeID int) int {
	return v.colorIndex[routeID] % len(Palette)
}

// Color returns the palette color of a route
func (v *Visualizer) Color(routeID int) string {
	return Palette[v.ColorIndex(routeID)]
}

// RouteForStop returns the first route in list order whose stops include stopID
func (v *Visualizer) RouteForStop(stopID string) (models.RouteResult, bool) {
	for _, r := range v.routes {
		if slices.Contains(r.StopIDs, stopID) {
			return r, true
		}
	}
	return models.RouteResult{}, false
}

// Sequence returns the 1-based position of stopID within its route, or 0 when
// no route serves it
func (v *Visualizer) Sequence(stopID string) int {
	r, ok := v.RouteForStop(stopID)
	if !ok {
		return 0
	}
	return slices.Index(r.StopIDs, stopID) + 1
}

// Bounds is a geographic bounding box
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// ComputeBounds covers every stop and every route geometry point. It reports
// false when there are no points at all.
func ComputeBounds(stops []models.Stop, routes []models.RouteResult) (Bounds, bool) {
	b := Bounds{South: math.Inf(1), West: math.Inf(1), North: math.Inf(-1), East: math.Inf(-1)}
	n := 0
	extend := func(lat, lng float64) {
		b.South = math.Min(b.South, lat)
		b.North = math.Max(b.North, lat)
		b.West = math.Min(b.West, lng)
		b.East = math.Max(b.East, lng)
		n++
	}

	for _, s := range stops {
		extend(s.Lat, s.Lng)
	}
	for _, r := range routes {
		for _, p := range r.Geometry {
			extend(p.Lat, p.Lng)
		}
	}

	if n == 0 {
		return Bounds{}, false
	}
	return b, true
}

// Center is the mean stop position, or geo.DefaultCenter without stops
func Center(stops []models.Stop) models.Coordinates {
	if len(stops) == 0 {
		return geo.DefaultCenter
	}
	n := float64(len(stops))
	return models.Coordinates{
		Lat: lo.SumBy(stops, func(s models.Stop) float64 { return s.Lat }) / n,
		Lng: lo.SumBy(stops, func(s models.Stop) float64 { return s.Lng }) / n,
	}
}

// Marker is one stop as drawn on the map
type Marker struct {
	StopID   string  `json:"stopId"`
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Demand   float64 `json:"demand"`
	IsDepot  bool    `json:"isDepot"`
	Color    string  `json:"color"`
	Sequence int     `json:"sequence,omitempty"`

	// RouteID and VehicleID are nil for unserved stops
	RouteID   *int `json:"routeId,omitempty"`
	VehicleID *int `json:"vehicleId,omitempty"`

	DistanceFromDepotKm float64 `json:"distanceFromDepotKm"`
}

// Markers builds one marker per stop in dataset order
func (v *Visualizer) Markers(stops []models.Stop, depotID string) []Marker {
	depot, hasDepot := lo.Find(stops, func(s models.Stop) bool { return s.ID == depotID })

	markers := make([]Marker, 0, len(stops))
	for _, s := range stops {
		m := Marker{
			StopID:  s.ID,
			Name:    s.Name,
			Lat:     s.Lat,
			Lng:     s.Lng,
			Demand:  s.Demand,
			IsDepot: s.ID == depotID,
			Color:   Palette[0],
		}
		if hasDepot {
			m.DistanceFromDepotKm = geo.HaversineKm(depot.Lat, depot.Lng, s.Lat, s.Lng)
		}
		if r, ok := v.RouteForStop(s.ID); ok {
			routeID, vehicleID := r.RouteID, r.VehicleID
			m.RouteID = &routeID
			m.VehicleID = &vehicleID
			m.Color = v.Color(r.RouteID)
			m.Sequence = slices.Index(r.StopIDs, s.ID) + 1
		}
		if m.IsDepot {
			m.Color = DepotColor
		}
		markers = append(markers, m)
	}
	return markers
}

// Polyline is one route path as drawn on the map
type Polyline struct {
	RouteID int                  `json:"routeId"`
	Color   string               `json:"color"`
	Weight  int                  `json:"weight"`
	Opacity float64              `json:"opacity"`
	Points  []models.Coordinates `json:"points"`
}

// Polylines builds route paths. With a focused route the others are dimmed.
// Routes with fewer than two geometry points are not drawn.
func (v *Visualizer) Polylines(focused *int) []Polyline {
	lines := make([]Polyline, 0, len(v.routes))
	for _, r := range v.routes {
		if len(r.Geometry) < 2 {
			continue
		}
		p := Polyline{
			RouteID: r.RouteID,
			Color:   v.Color(r.RouteID),
			Weight:  focusedWeight,
			Opacity: focusedOpacity,
			Points:  r.Geometry,
		}
		if focused != nil && *focused != r.RouteID {
			p.Weight = unfocusedWeight
			p.Opacity = unfocusedOpac
		}
		lines = append(lines, p)
	}
	return lines
}

// RouteRow is one line of the routes table
type RouteRow struct {
	RouteID    int     `json:"routeId"`
	VehicleID  int     `json:"vehicleId"`
	Color      string  `json:"color"`
	Stops      int     `json:"stops"`
	Load       float64 `json:"load"`
	Capacity   int     `json:"capacity"`
	DistanceKm float64 `json:"distanceKm"`
	TimeMin    float64 `json:"timeMin"`
	Focused    bool    `json:"focused"`
}

// Rows builds the routes table
func (v *Visualizer) Rows(capacity int, focused *int) []RouteRow {
	return lo.Map(v.routes, func(r models.RouteResult, _ int) RouteRow {
		return RouteRow{
			RouteID:    r.RouteID,
			VehicleID:  r.VehicleID,
			Color:      v.Color(r.RouteID),
			Stops:      len(r.StopIDs),
			Load:       r.Load,
			Capacity:   capacity,
			DistanceKm: r.DistanceKm,
			TimeMin:    r.TimeMin,
			Focused:    focused != nil && *focused == r.RouteID,
		}
	})
}

// HasRoute reports whether the response contains routeID
func (v *Visualizer) HasRoute(routeID int) bool {
	_, ok := v.colorIndex[routeID]
	return ok
}
