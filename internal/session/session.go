// Package session holds the single workbench session: the stop dataset, problem
// settings, import errors, backend status, route focus and the solve lifecycle.
// Dependent values such as the effective depot and capacity warning are derived
// on read rather than stored.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"routeops/internal/dataset"
	"routeops/internal/gateway"
	"routeops/internal/geo"
	"routeops/internal/history"
	"routeops/internal/models"
	"routeops/internal/solve"
	"routeops/internal/validation"
	"routeops/internal/visual"
)

// BackendStatus is the last known reachability of the optimization service
type BackendStatus string

const (
	BackendUnknown BackendStatus = "unknown"
	BackendOnline  BackendStatus = "online"
	BackendOffline BackendStatus = "offline"
)

var (
	ErrNoResult      = errors.New("no solve result available")
	ErrRouteNotFound = errors.New("route not found in result")
)

// SampleOptions controls generated demo stops
type SampleOptions struct {
	Count    int
	Center   models.Coordinates
	RadiusKm float64
}

// Options wires a session to its collaborators
type Options struct {
	Client   gateway.Client
	History  *history.Store
	Defaults models.ProblemSettings
	Sample   SampleOptions
	Now      func() time.Time
}

// Session is safe for concurrent use by HTTP handlers and the desktop shell
type Session struct {
	ID string

	client   gateway.Client
	orch     *solve.Orchestrator
	history  *history.Store
	defaults models.ProblemSettings
	sample   SampleOptions
	now      func() time.Time

	mu             sync.RWMutex
	data           *dataset.Dataset
	settings       models.ProblemSettings
	csvErrors      []string
	headerWarnings []string
	backend        BackendStatus
	focused        *int

	// stops and depot the latest attempt was solved for
	solvedAttempt string
	solvedStops   []models.Stop
	solvedDepot   string

	integrityAttempt string
	integrity        visual.IntegrityReport
}

func New(opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Defaults == (models.ProblemSettings{}) {
		opts.Defaults = models.DefaultSettings()
	}
	if opts.Sample.Count <= 0 {
		opts.Sample.Count = 10
	}
	if opts.Sample.RadiusKm <= 0 {
		opts.Sample.RadiusKm = 8
	}
	if opts.Sample.Center == (models.Coordinates{}) {
		opts.Sample.Center = geo.DefaultCenter
	}

	var orchOpts []solve.Option
	if opts.History != nil {
		orchOpts = append(orchOpts, solve.WithRecorder(opts.History))
	}

	s := &Session{
		ID:       uuid.NewString(),
		client:   opts.Client,
		orch:     solve.New(opts.Client, orchOpts...),
		history:  opts.History,
		defaults: opts.Defaults,
		sample:   opts.Sample,
		now:      opts.Now,
		data:     dataset.New(),
		settings: opts.Defaults,
		backend:  BackendUnknown,
	}
	log.Printf("[SESSION] Created session: id=%s base_url=%q", s.ID, opts.Client.BaseURL())
	return s
}

// Orchestrator exposes the solve lifecycle for change notifications
func (s *Session) Orchestrator() *solve.Orchestrator {
	return s.orch
}

// CheckBackend probes the service and records the outcome. A probe whose
// context ends first keeps the previous status.
func (s *Session) CheckBackend(ctx context.Context) BackendStatus {
	s.mu.Lock()
	previous := s.backend
	s.backend = BackendUnknown
	s.mu.Unlock()

	status := BackendOffline
	if s.client.Health(ctx) {
		status = BackendOnline
	}

	if ctx.Err() != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		// another probe may have finished meanwhile
		if s.backend == BackendUnknown {
			s.backend = previous
		}
		log.Printf("[SESSION] Backend probe abandoned: err=%v status=%s", ctx.Err(), s.backend)
		return s.backend
	}

	s.mu.Lock()
	s.backend = status
	s.mu.Unlock()

	log.Printf("[SESSION] Backend status: %s", status)
	return status
}

// Stops returns the dataset in order
func (s *Session) Stops() []models.Stop {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Stops()
}

// ImportCSV replaces the stops with the valid rows of text. When every row was
// valid the first stop becomes the depot.
func (s *Session) ImportCSV(text string) dataset.ImportResult {
	result := dataset.ParseStops(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Replace(result.Stops)
	s.csvErrors = result.Errors
	s.headerWarnings = result.HeaderWarnings
	if len(result.Stops) > 0 && len(result.Errors) == 0 {
		s.data.SetDepot(result.Stops[0].ID)
	}

	log.Printf("[IMPORT] Stops replaced: session=%s stops=%d errors=%d", s.ID, len(result.Stops), len(result.Errors))
	return result
}

// AddStop appends a fully specified stop
func (s *Session) AddStop(stop models.Stop) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Add(stop)
}

// AddBlankStop appends an empty row for manual entry
func (s *Session) AddBlankStop() models.Stop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.AddBlank(s.now())
}

func (s *Session) UpdateStop(id string, patch dataset.StopPatch) (models.Stop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Update(id, patch)
}

func (s *Session) RemoveStop(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Remove(id)
}

// AddSamples merges generated stops whose ids are not already present and
// returns the ones added
func (s *Session) AddSamples() []models.Stop {
	samples := geo.GenerateSampleStops(s.sample.Count, s.sample.Center, s.sample.RadiusKm)

	s.mu.Lock()
	defer s.mu.Unlock()
	added := s.data.Merge(samples)
	log.Printf("[SESSION] Added sample stops: generated=%d added=%d", len(samples), len(added))
	return added
}

// Settings returns the settings with the effective depot filled in
func (s *Session) Settings() models.ProblemSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settingsLocked()
}

func (s *Session) settingsLocked() models.ProblemSettings {
	out := s.settings
	out.DepotID = s.data.DepotID()
	return out
}

// UpdateSettings validates and stores settings. A non-empty depot id must name
// an existing stop.
func (s *Session) UpdateSettings(next models.ProblemSettings) (models.ProblemSettings, error) {
	if err := validation.ValidateSettings(next); err != nil {
		return models.ProblemSettings{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if next.DepotID != "" {
		if err := s.data.SetDepot(next.DepotID); err != nil {
			return models.ProblemSettings{}, err
		}
	}
	next.DepotID = ""
	s.settings = next
	return s.settingsLocked(), nil
}

// SetDepot selects the depot stop
func (s *Session) SetDepot(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.SetDepot(id)
}

// Solve starts an attempt for the current stops and settings. The route focus
// is cleared.
func (s *Session) Solve(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stops := s.data.Stops()
	settings := s.settingsLocked()

	id, err := s.orch.Start(ctx, stops, settings.DepotID, settings)
	if err != nil {
		return "", err
	}

	s.focused = nil
	s.solvedAttempt = id
	s.solvedStops = stops
	s.solvedDepot = settings.DepotID
	return id, nil
}

// Cancel aborts the active attempt
func (s *Session) Cancel() bool {
	return s.orch.Cancel()
}

// Reset clears the stops, settings, errors, focus and any result
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orch.Reset()
	s.data.Reset()
	s.settings = s.defaults
	s.csvErrors = nil
	s.headerWarnings = nil
	s.focused = nil
	s.solvedAttempt = ""
	s.solvedStops = nil
	s.solvedDepot = ""
	log.Printf("[SESSION] Reset complete: session=%s", s.ID)
}

// FocusRoute highlights one route on the map; nil clears the focus
func (s *Session) FocusRoute(routeID *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if routeID == nil {
		s.focused = nil
		return nil
	}

	result, ok := s.orch.Result()
	if !ok {
		return ErrNoResult
	}
	if !visual.New(result).HasRoute(*routeID) {
		return fmt.Errorf("%w: %d", ErrRouteNotFound, *routeID)
	}
	id := *routeID
	s.focused = &id
	return nil
}

// History lists recorded attempts, newest first
func (s *Session) History(ctx context.Context, limit int) ([]history.Entry, error) {
	if s.history == nil {
		return []history.Entry{}, nil
	}
	return s.history.List(ctx, limit)
}

// integrityLocked checks the current result against the stops it was solved
// for, once per attempt. Callers hold s.mu for writing.
func (s *Session) integrityLocked(snap solve.Snapshot) *visual.IntegrityReport {
	if snap.State != solve.StateSucceeded || snap.Result == nil || snap.AttemptID != s.solvedAttempt {
		return nil
	}
	if s.integrityAttempt != snap.AttemptID {
		s.integrity = visual.CheckIntegrity(s.solvedStops, s.solvedDepot, snap.Result)
		s.integrityAttempt = snap.AttemptID
	}
	report := s.integrity
	return &report
}
