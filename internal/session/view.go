package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"routeops/internal/csvcodec"
	"routeops/internal/models"
	"routeops/internal/solve"
	"routeops/internal/visual"
)

// View is the full session state as the UI renders it
type View struct {
	SessionID       string                  `json:"sessionId"`
	Stops           []models.Stop           `json:"stops"`
	DepotID         string                  `json:"depotId"`
	Settings        models.ProblemSettings  `json:"settings"`
	TotalDemand     float64                 `json:"totalDemand"`
	MaxCarry        int                     `json:"maxCarry"`
	CapacityWarning bool                    `json:"capacityWarning"`
	CSVErrors       []string                `json:"csvErrors"`
	HeaderWarnings  []string                `json:"headerWarnings,omitempty"`
	Backend         BackendStatus           `json:"backend"`
	BaseURL         string                  `json:"baseUrl"`
	FocusedRouteID  *int                    `json:"focusedRouteId,omitempty"`
	Solve           solve.Snapshot          `json:"solve"`
	CanSolve        bool                    `json:"canSolve"`
	Integrity       *visual.IntegrityReport `json:"integrity,omitempty"`
}

// View returns a consistent snapshot of the session
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.settingsLocked()
	snap := s.orch.Snapshot()
	totalDemand := s.data.TotalDemand()
	maxCarry := settings.Vehicles * settings.Capacity

	capacityWarning := s.data.Len() > 0 && settings.Vehicles > 0 && settings.Capacity > 0 &&
		totalDemand > float64(maxCarry)
	canSolve := s.data.Len() > 0 && settings.DepotID != "" &&
		settings.Vehicles >= 1 && settings.Capacity >= 1 && snap.State != solve.StateSolving

	csvErrors := s.csvErrors
	if csvErrors == nil {
		csvErrors = []string{}
	}

	v := View{
		SessionID:       s.ID,
		Stops:           s.data.Stops(),
		DepotID:         settings.DepotID,
		Settings:        settings,
		TotalDemand:     totalDemand,
		MaxCarry:        maxCarry,
		CapacityWarning: capacityWarning,
		CSVErrors:       csvErrors,
		HeaderWarnings:  s.headerWarnings,
		Backend:         s.backend,
		BaseURL:         s.client.BaseURL(),
		Solve:           snap,
		CanSolve:        canSolve,
		Integrity:       s.integrityLocked(snap),
	}
	if s.focused != nil {
		id := *s.focused
		v.FocusedRouteID = &id
	}
	return v
}

// Visualization is everything needed to draw the map and routes table
type Visualization struct {
	Center          models.Coordinates   `json:"center"`
	Bounds          *visual.Bounds       `json:"bounds,omitempty"`
	Markers         []visual.Marker      `json:"markers"`
	Polylines       []visual.Polyline    `json:"polylines"`
	Routes          []visual.RouteRow    `json:"routes"`
	UnservedStopIDs []string             `json:"unservedStopIds"`
	Summary         *models.SolveSummary `json:"summary,omitempty"`
	FocusedRouteID  *int                 `json:"focusedRouteId,omitempty"`
}

// Visualization derives map and table data from the current stops and result
func (s *Session) Visualization() Visualization {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stops := s.data.Stops()
	result, _ := s.orch.Result()
	v := visual.New(result)
	settings := s.settingsLocked()

	out := Visualization{
		Center:          visual.Center(stops),
		Markers:         v.Markers(stops, settings.DepotID),
		Polylines:       v.Polylines(s.focused),
		Routes:          v.Rows(settings.Capacity, s.focused),
		UnservedStopIDs: []string{},
		FocusedRouteID:  s.focused,
	}

	var routes []models.RouteResult
	if result != nil {
		routes = result.Routes
		summary := result.Summary
		out.Summary = &summary
		if result.UnservedStopIDs != nil {
			out.UnservedStopIDs = result.UnservedStopIDs
		}
	}
	if b, ok := visual.ComputeBounds(stops, routes); ok {
		out.Bounds = &b
	}
	return out
}

// Artifact is a downloadable export
type Artifact struct {
	Filename    string
	ContentType string
	Body        []byte
}

const (
	ArtifactSolution     = "solution.json"
	ArtifactRoutes       = "routes.csv"
	ArtifactRoutesDetail = "routes-detailed.csv"
	ArtifactStops        = "stops.csv"
)

const (
	routeArtifactPrefix = "route-"
	routeArtifactSuffix = ".csv"
	csvContentType      = "text/csv; charset=utf-8"
	jsonContentType     = "application/json"
)

// ErrUnknownArtifact is returned for an artifact name that is not exported
var ErrUnknownArtifact = errors.New("unknown artifact")

// Artifact renders the named export. Route exports resolve stop ids against the
// current dataset.
func (s *Session) Artifact(name string) (Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if name == ArtifactStops {
		return Artifact{Filename: name, ContentType: csvContentType, Body: []byte(csvcodec.ExportStops(s.data.Stops()))}, nil
	}

	result, ok := s.orch.Result()
	if !ok {
		switch {
		case name == ArtifactSolution, name == ArtifactRoutes, name == ArtifactRoutesDetail, isRouteArtifact(name):
			return Artifact{}, ErrNoResult
		default:
			return Artifact{}, fmt.Errorf("%w: %s", ErrUnknownArtifact, name)
		}
	}

	switch {
	case name == ArtifactSolution:
		body, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return Artifact{}, fmt.Errorf("failed to encode solution: %w", err)
		}
		return Artifact{Filename: name, ContentType: jsonContentType, Body: body}, nil
	case name == ArtifactRoutes:
		return Artifact{Filename: name, ContentType: csvContentType, Body: []byte(csvcodec.ExportRouteSummary(result.Routes))}, nil
	case name == ArtifactRoutesDetail:
		return Artifact{Filename: name, ContentType: csvContentType, Body: []byte(csvcodec.ExportRoutes(result.Routes, s.data.Index()))}, nil
	case isRouteArtifact(name):
		routeID, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, routeArtifactPrefix), routeArtifactSuffix))
		if err != nil {
			return Artifact{}, fmt.Errorf("%w: %s", ErrUnknownArtifact, name)
		}
		route, found := lo.Find(result.Routes, func(r models.RouteResult) bool { return r.RouteID == routeID })
		if !found {
			return Artifact{}, fmt.Errorf("%w: %d", ErrRouteNotFound, routeID)
		}
		body := csvcodec.ExportRoutes([]models.RouteResult{route}, s.data.Index())
		return Artifact{Filename: name, ContentType: csvContentType, Body: []byte(body)}, nil
	default:
		return Artifact{}, fmt.Errorf("%w: %s", ErrUnknownArtifact, name)
	}
}

// WriteArtifacts writes every export of the current result into dir, creating
// it if needed, and returns the written paths
func (s *Session) WriteArtifacts(dir string) ([]string, error) {
	result, ok := s.orch.Result()
	if !ok {
		return nil, ErrNoResult
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	names := []string{ArtifactSolution, ArtifactRoutes, ArtifactRoutesDetail, ArtifactStops}
	for _, r := range result.Routes {
		names = append(names, routeArtifactPrefix+strconv.Itoa(r.RouteID)+routeArtifactSuffix)
	}

	written := make([]string, 0, len(names))
	for _, name := range names {
		artifact, err := s.Artifact(name)
		if err != nil {
			return written, err
		}
		path := filepath.Join(dir, artifact.Filename)
		if err := os.WriteFile(path, artifact.Body, 0644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}

	log.Printf("[SESSION] Wrote exports: dir=%s files=%d", dir, len(written))
	return written, nil
}

func isRouteArtifact(name string) bool {
	return strings.HasPrefix(name, routeArtifactPrefix) && strings.HasSuffix(name, routeArtifactSuffix) &&
		name != ArtifactRoutes && name != ArtifactRoutesDetail
}
