package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"routeops/internal/dataset"
	"routeops/internal/models"
	"routeops/internal/session"
	"routeops/internal/visual"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
	formatCSV  = "csv"
)

func checkFormat(format string, allowed ...string) error {
	if slices.Contains(allowed, format) {
		return nil
	}
	return fmt.Errorf("-format must be one of: %s", strings.Join(allowed, ", "))
}

// solveReport is the machine-readable solve outcome
type solveReport struct {
	Settings          models.ProblemSettings `json:"settings" yaml:"settings"`
	Summary           models.SolveSummary    `json:"summary" yaml:"summary"`
	Routes            []models.RouteResult   `json:"routes" yaml:"routes"`
	UnservedStopIDs   []string               `json:"unservedStopIds" yaml:"unservedStopIds"`
	IntegrityProblems []string               `json:"integrityProblems,omitempty" yaml:"integrityProblems,omitempty"`

	stops []models.Stop
}

func newSolveReport(view session.View, result *models.SolveResponse) solveReport {
	r := solveReport{
		Settings:        view.Settings,
		Summary:         result.Summary,
		Routes:          result.Routes,
		UnservedStopIDs: result.UnservedStopIDs,
		stops:           view.Stops,
	}
	if r.UnservedStopIDs == nil {
		r.UnservedStopIDs = []string{}
	}
	if view.Integrity != nil {
		r.IntegrityProblems = view.Integrity.Problems()
	}
	return r
}

func encode(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func writeSolveReport(w io.Writer, format string, r solveReport) error {
	if format != formatText {
		return encode(w, format, r)
	}

	re := lipgloss.NewRenderer(w)
	bold := re.NewStyle().Bold(true)
	muted := re.NewStyle().Faint(true)

	s := r.Summary
	headline := fmt.Sprintf("%d routes, %d stops served", s.Routes, s.StopsServed)
	fmt.Fprintln(w, bold.Render(headline))
	totals := fmt.Sprintf("%s km, %s", formatKm(s.TotalDistanceKm), formatMinutes(s.TotalTimeMin))
	if s.MatrixUsed != "" {
		totals += " (road data: " + s.MatrixUsed + ")"
	}
	fmt.Fprintln(w, muted.Render(totals))
	fmt.Fprintln(w)

	v := visual.New(&models.SolveResponse{Routes: r.Routes})
	names := models.NewStopIndex(r.stops)
	for _, route := range r.Routes {
		color := re.NewStyle().Foreground(lipgloss.Color(v.Color(route.RouteID))).Bold(true)
		label := color.Render(fmt.Sprintf("Route %d", route.RouteID))

		fmt.Fprintf(w, "%s  vehicle %d  load %s/%s  %s km  %s\n",
			label,
			route.VehicleID,
			humanize.FtoaWithDigits(route.Load, 2),
			humanize.Comma(int64(r.Settings.Capacity)),
			formatKm(route.DistanceKm),
			formatMinutes(route.TimeMin),
		)

		path := make([]string, 0, len(route.StopIDs))
		for _, id := range route.StopIDs {
			if stop, _ := names.Resolve(id); stop.Name != "" && stop.Name != id {
				path = append(path, fmt.Sprintf("%s (%s)", id, stop.Name))
				continue
			}
			path = append(path, id)
		}
		fmt.Fprintf(w, "  %s\n", strings.Join(path, " -> "))
	}

	if len(r.UnservedStopIDs) > 0 {
		warn := re.NewStyle().Foreground(lipgloss.Color(visual.DepotColor))
		fmt.Fprintln(w)
		fmt.Fprintln(w, warn.Render("Unserved: "+strings.Join(r.UnservedStopIDs, ", ")))
	}
	return nil
}

func printHealth(w io.Writer, baseURL string, online bool, took time.Duration) {
	re := lipgloss.NewRenderer(w)
	status := re.NewStyle().Foreground(lipgloss.Color("#2f9e44")).Render("online")
	if !online {
		status = re.NewStyle().Foreground(lipgloss.Color(visual.DepotColor)).Render("offline")
	}
	if baseURL == "" {
		baseURL = "(no base URL configured)"
	}
	fmt.Fprintf(w, "%s %s (%s)\n", baseURL, status, took.Round(time.Millisecond))
}

func printValidation(w io.Writer, result dataset.ImportResult) {
	re := lipgloss.NewRenderer(w)
	errStyle := re.NewStyle().Foreground(lipgloss.Color(visual.DepotColor))

	for _, hw := range result.HeaderWarnings {
		fmt.Fprintf(w, "warning: %s\n", hw)
	}
	for _, e := range result.Errors {
		fmt.Fprintln(w, errStyle.Render(e))
	}

	total := 0.0
	for _, s := range result.Stops {
		total += s.Demand
	}
	fmt.Fprintf(w, "%s valid stops, total demand %s\n",
		humanize.Comma(int64(len(result.Stops))), humanize.CommafWithDigits(total, 2))
}

func formatKm(km float64) string {
	return humanize.CommafWithDigits(km, 2)
}

func formatMinutes(minutes float64) string {
	d := time.Duration(minutes * float64(time.Minute)).Round(time.Minute)
	if d < time.Hour {
		return fmt.Sprintf("%d min", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh %02dm", int(d.Hours()), int(d.Minutes())%60)
}
