package csvcodec

import (
	"strconv"
	"strings"

	"routeops/internal/models"
)

const (
	stopsHeader         = "id,name,lat,lng,demand"
	routesDetailHeader  = "routeId,vehicleId,sequenceIndex,stopId,stopName,lat,lng,demand,loadAfterStop,distanceKm,timeMin"
	routesSummaryHeader = "routeId,vehicleId,distanceKm,timeMin,load,stopIds"
)

// ExportStops renders stops as CSV with the id,name,lat,lng,demand header.
// Fields are quoted only when they contain a separator, quote or line break.
func ExportStops(stops []models.Stop) string {
	lines := make([]string, 0, len(stops)+1)
	lines = append(lines, stopsHeader)
	for _, s := range stops {
		lines = append(lines, strings.Join([]string{
			quoteIfNeeded(s.ID),
			quoteIfNeeded(s.Name),
			formatNumber(s.Lat),
			formatNumber(s.Lng),
			formatNumber(s.Demand),
		}, ","))
	}
	return strings.Join(lines, "\n")
}

// ExportRoutes renders one row per visited stop with a running load that
// restarts at zero for every route. Unknown stop ids are exported with the id
// as name and zero coordinates and demand.
func ExportRoutes(routes []models.RouteResult, stops models.StopIndex) string {
	lines := []string{routesDetailHeader}
	for _, r := range routes {
		var load float64
		for i, stopID := range r.StopIDs {
			stop, _ := stops.Resolve(stopID)
			load += stop.Demand
			lines = append(lines, strings.Join([]string{
				strconv.Itoa(r.RouteID),
				strconv.Itoa(r.VehicleID),
				strconv.Itoa(i),
				stopID,
				quote(stop.Name),
				formatNumber(stop.Lat),
				formatNumber(stop.Lng),
				formatNumber(stop.Demand),
				formatNumber(load),
				formatNumber(r.DistanceKm),
				formatNumber(r.TimeMin),
			}, ","))
		}
	}
	return strings.Join(lines, "\n")
}

// ExportRouteSummary renders one row per route with its stop ids joined by '|'
func ExportRouteSummary(routes []models.RouteResult) string {
	lines := make([]string, 0, len(routes)+1)
	lines = append(lines, routesSummaryHeader)
	for _, r := range routes {
		lines = append(lines, strings.Join([]string{
			strconv.Itoa(r.RouteID),
			strconv.Itoa(r.VehicleID),
			formatNumber(r.DistanceKm),
			formatNumber(r.TimeMin),
			formatNumber(r.Load),
			quote(strings.Join(r.StopIDs, "|")),
		}, ","))
	}
	return strings.Join(lines, "\n")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, ",\"\r\n") {
		return quote(s)
	}
	return s
}
