package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"routeops/internal/geo"
	"routeops/internal/models"
)

// averageSpeedKmh converts fake route distances into durations
const averageSpeedKmh = 40.0

// FakeSolver is an httptest server that speaks the optimization service's
// /health and /solve protocol. By default it answers with DefaultSolution.
type FakeSolver struct {
	server *httptest.Server

	mu           sync.Mutex
	healthStatus string
	statusCode   int
	rawBody      []byte
	response     *models.SolveResponse
	latency      time.Duration
	gate         chan struct{}
	requests     []models.SolveRequest
	received     chan struct{}
}

// NewFakeSolver starts a fake service that is shut down when the test ends
func NewFakeSolver(t testing.TB) *FakeSolver {
	f := &FakeSolver{
		healthStatus: models.StatusOK,
		statusCode:   http.StatusOK,
		received:     make(chan struct{}, 16),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", f.handleHealth)
	mux.HandleFunc("/solve", f.handleSolve)
	f.server = httptest.NewServer(mux)

	t.Cleanup(func() {
		f.Release()
		f.server.Close()
	})
	return f
}

func (f *FakeSolver) URL() string {
	return f.server.URL
}

// SetHealthStatus changes the status field /health reports
func (f *FakeSolver) SetHealthStatus(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthStatus = status
}

// SetResponse makes /solve return resp instead of the computed solution
func (f *FakeSolver) SetResponse(resp models.SolveResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.response = &resp
	f.rawBody = nil
	f.statusCode = http.StatusOK
}

// SetRawResponse makes /solve answer with the given status code and body verbatim
func (f *FakeSolver) SetRawResponse(statusCode int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCode = statusCode
	f.rawBody = []byte(body)
}

// SetLatency delays every /solve answer
func (f *FakeSolver) SetLatency(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency = d
}

// Hold makes /solve block until Release is called. The held handler ignores
// client disconnects so a late answer can still be written.
func (f *FakeSolver) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate == nil {
		f.gate = make(chan struct{})
	}
}

// Release unblocks every held /solve request
func (f *FakeSolver) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// Received is signalled once per /solve request, after the body is decoded
func (f *FakeSolver) Received() <-chan struct{} {
	return f.received
}

// Requests returns the decoded /solve payloads seen so far
func (f *FakeSolver) Requests() []models.SolveRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.SolveRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *FakeSolver) handleHealth(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	status := f.healthStatus
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (f *FakeSolver) handleSolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, _ := io.ReadAll(r.Body)
	var req models.SolveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"detail": err.Error()})
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	gate := f.gate
	latency := f.latency
	statusCode := f.statusCode
	rawBody := f.rawBody
	override := f.response
	f.mu.Unlock()

	select {
	case f.received <- struct{}{}:
	default:
	}

	if gate != nil {
		<-gate
	}
	if latency > 0 {
		time.Sleep(latency)
	}

	w.Header().Set("Content-Type", "application/json")
	if rawBody != nil {
		w.WriteHeader(statusCode)
		w.Write(rawBody)
		return
	}

	resp := DefaultSolution(req)
	if override != nil {
		resp = *override
	}
	json.NewEncoder(w).Encode(resp)
}

// DefaultSolution fills vehicles in order, stop by stop, until capacity runs
// out. Every route starts with the depot and its geometry returns to it.
// Stops that do not fit are reported unserved.
func DefaultSolution(req models.SolveRequest) models.SolveResponse {
	byID := models.NewStopIndex(req.Stops)
	depot := byID[req.DepotID]

	resp := models.SolveResponse{
		Status:          models.StatusOK,
		Routes:          []models.RouteResult{},
		UnservedStopIDs: []string{},
	}

	vehicle := 0
	var current *models.RouteResult
	flush := func() {
		if current != nil && len(current.StopIDs) > 1 {
			finishRoute(current, byID, depot)
			resp.Routes = append(resp.Routes, *current)
		}
		current = nil
	}

	for _, s := range req.Stops {
		if s.ID == req.DepotID {
			continue
		}
		if s.Demand > float64(req.Capacity) {
			resp.UnservedStopIDs = append(resp.UnservedStopIDs, s.ID)
			continue
		}
		if current != nil && current.Load+s.Demand > float64(req.Capacity) {
			flush()
			vehicle++
		}
		if vehicle >= req.Vehicles {
			resp.UnservedStopIDs = append(resp.UnservedStopIDs, s.ID)
			continue
		}
		if current == nil {
			current = &models.RouteResult{
				RouteID:   vehicle,
				VehicleID: vehicle,
				StopIDs:   []string{depot.ID},
				Load:      depot.Demand,
			}
		}
		current.StopIDs = append(current.StopIDs, s.ID)
		current.Load += s.Demand
	}
	flush()

	for _, r := range resp.Routes {
		resp.Summary.TotalDistanceKm += r.DistanceKm
		resp.Summary.TotalTimeMin += r.TimeMin
		resp.Summary.StopsServed += len(r.StopIDs) - 1
	}
	resp.Summary.Routes = len(resp.Routes)
	resp.Summary.MatrixUsed = string(req.DistanceMetric)
	return resp
}

func finishRoute(r *models.RouteResult, byID models.StopIndex, depot models.Stop) {
	for _, id := range r.StopIDs {
		s := byID[id]
		r.Geometry = append(r.Geometry, s.GetCoords())
	}
	r.Geometry = append(r.Geometry, depot.GetCoords())

	for i := 1; i < len(r.Geometry); i++ {
		r.DistanceKm += geo.DistanceKm(r.Geometry[i-1], r.Geometry[i])
	}
	r.TimeMin = r.DistanceKm / averageSpeedKmh * 60
}
