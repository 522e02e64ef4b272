package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeops/internal/dataset"
	"routeops/internal/gateway"
	"routeops/internal/history"
	"routeops/internal/models"
	"routeops/internal/solve"
	"routeops/internal/testutil"
)

const depotCSV = "id,name,lat,lng,demand\n" +
	"D,Depot,39.93,32.85,0\n" +
	"A,Alpha,39.95,32.87,4\n" +
	"B,\"Bravo, East\",39.91,32.83,6"

func newSession(t *testing.T, fake *testutil.FakeSolver) *Session {
	t.Helper()
	store, err := history.New(history.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return New(Options{
		Client:  gateway.New(gateway.Config{BaseURL: fake.URL()}),
		History: store,
		Now:     func() time.Time { return time.UnixMilli(1700000000000) },
	})
}

func waitForSolve(t *testing.T, s *Session) solve.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Orchestrator().Wait(ctx))
	return s.Orchestrator().Snapshot()
}

func TestImportCSVSetsDepotWhenClean(t *testing.T) {
	s := newSession(t, testutil.NewFakeSolver(t))

	result := s.ImportCSV(depotCSV)
	assert.Equal(t, "Loaded 3 stops", result.Notice())

	v := s.View()
	assert.Len(t, v.Stops, 3)
	assert.Equal(t, "D", v.DepotID)
	assert.Equal(t, "D", v.Settings.DepotID)
	assert.Equal(t, 10.0, v.TotalDemand)
	assert.Equal(t, 300, v.MaxCarry)
	assert.False(t, v.CapacityWarning)
	assert.True(t, v.CanSolve)
	assert.Empty(t, v.CSVErrors)
}

func TestImportCSVWithErrorsKeepsValidRows(t *testing.T) {
	s := newSession(t, testutil.NewFakeSolver(t))

	result := s.ImportCSV("id,name,lat,lng,demand\nA,Stop A,10,20,5\nB,Stop B,91,20,5")
	assert.Equal(t, "1 validation error(s)", result.Notice())

	v := s.View()
	require.Len(t, v.Stops, 1)
	assert.Equal(t, []string{"Row 3: lat must be in [-90, 90]"}, v.CSVErrors)
	// depot still derives from the first stop
	assert.Equal(t, "A", v.DepotID)
}

func TestCapacityWarning(t *testing.T) {
	s := newSession(t, testutil.NewFakeSolver(t))
	s.ImportCSV(depotCSV)

	_, err := s.UpdateSettings(models.ProblemSettings{
		Vehicles: 1, Capacity: 5,
		DistanceMetric: models.DistanceMetricHaversine, Objective: models.ObjectiveDistance,
	})
	require.NoError(t, err)

	v := s.View()
	assert.Equal(t, 5, v.MaxCarry)
	assert.True(t, v.CapacityWarning)
}

func TestUpdateSettings(t *testing.T) {
	s := newSession(t, testutil.NewFakeSolver(t))
	s.ImportCSV(depotCSV)

	next := models.DefaultSettings()
	next.DepotID = "B"
	next.Vehicles = 4
	got, err := s.UpdateSettings(next)
	require.NoError(t, err)
	assert.Equal(t, "B", got.DepotID)
	assert.Equal(t, 4, got.Vehicles)

	next.DepotID = "missing"
	_, err = s.UpdateSettings(next)
	assert.ErrorIs(t, err, dataset.ErrStopNotFound)

	bad := models.DefaultSettings()
	bad.Capacity = 0
	_, err = s.UpdateSettings(bad)
	assert.Error(t, err)
	assert.Equal(t, 4, s.Settings().Vehicles)
}

func TestRemovingDepotFallsBackToFirstStop(t *testing.T) {
	s := newSession(t, testutil.NewFakeSolver(t))
	s.ImportCSV(depotCSV)
	require.NoError(t, s.SetDepot("A"))

	require.NoError(t, s.RemoveStop("A"))
	assert.Equal(t, "D", s.View().DepotID)
}

func TestManualEditing(t *testing.T) {
	s := newSession(t, testutil.NewFakeSolver(t))

	blank := s.AddBlankStop()
	assert.Equal(t, "stop-1700000000000", blank.ID)

	name := "Typed"
	lat := 40.0
	updated, err := s.UpdateStop(blank.ID, dataset.StopPatch{Name: &name, Lat: &lat})
	require.NoError(t, err)
	assert.Equal(t, "Typed", updated.Name)

	require.NoError(t, s.AddStop(models.Stop{ID: "X", Name: "X", Lat: 1, Lng: 1, Demand: 1}))
	assert.Len(t, s.Stops(), 2)
	assert.ErrorIs(t, s.AddStop(models.Stop{ID: "X", Name: "dup"}), dataset.ErrDuplicateID)
}

func TestAddSamplesSkipsExistingIDs(t *testing.T) {
	s := newSession(t, testutil.NewFakeSolver(t))
	require.NoError(t, s.AddStop(models.Stop{ID: "sample-1", Name: "Mine", Lat: 1, Lng: 1}))

	added := s.AddSamples()
	assert.Len(t, added, 9)

	stops := s.Stops()
	assert.Len(t, stops, 10)
	assert.Equal(t, "Mine", stops[0].Name)
}

func TestSolveLifecycle(t *testing.T) {
	fake := testutil.NewFakeSolver(t)
	s := newSession(t, fake)
	s.ImportCSV(depotCSV)

	zero := 0
	assert.ErrorIs(t, s.FocusRoute(&zero), ErrNoResult)

	_, err := s.Solve(context.Background())
	require.NoError(t, err)

	snap := waitForSolve(t, s)
	require.Equal(t, solve.StateSucceeded, snap.State)
	assert.Equal(t, "1 routes, 2 stops served.", snap.Notice())

	v := s.View()
	require.NotNil(t, v.Integrity)
	assert.True(t, v.Integrity.OK())
	assert.True(t, v.CanSolve)

	require.NoError(t, s.FocusRoute(&zero))
	assert.Equal(t, 0, *s.View().FocusedRouteID)

	missing := 42
	assert.True(t, errors.Is(s.FocusRoute(&missing), ErrRouteNotFound))

	vis := s.Visualization()
	require.Len(t, vis.Polylines, 1)
	assert.Equal(t, 4, vis.Polylines[0].Weight)
	require.NotNil(t, vis.Bounds)
	require.NotNil(t, vis.Summary)
	assert.Equal(t, 2, vis.Summary.StopsServed)
	assert.Len(t, vis.Markers, 3)

	entries, err := s.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, solve.StateSucceeded, entries[0].State)

	// a new solve clears the focus
	_, err = s.Solve(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s.View().FocusedRouteID)
	waitForSolve(t, s)
}

func TestSolveRefusedWithoutStops(t *testing.T) {
	s := newSession(t, testutil.NewFakeSolver(t))

	_, err := s.Solve(context.Background())
	var pre *solve.ErrPreconditionNotMet
	assert.True(t, errors.As(err, &pre))
	assert.Equal(t, solve.StateIdle, s.View().Solve.State)
	assert.False(t, s.View().CanSolve)
}

func TestCancelAndReset(t *testing.T) {
	fake := testutil.NewFakeSolver(t)
	fake.Hold()
	s := newSession(t, fake)
	s.ImportCSV(depotCSV)

	_, err := s.Solve(context.Background())
	require.NoError(t, err)
	<-fake.Received()
	assert.False(t, s.View().CanSolve)

	assert.True(t, s.Cancel())
	snap := waitForSolve(t, s)
	assert.Equal(t, solve.StateCancelled, snap.State)

	s.Reset()
	v := s.View()
	assert.Empty(t, v.Stops)
	assert.Equal(t, "", v.DepotID)
	assert.Equal(t, models.DefaultSettings(), v.Settings)
	assert.Equal(t, solve.StateIdle, v.Solve.State)
	assert.Empty(t, v.CSVErrors)
	assert.Nil(t, v.FocusedRouteID)
}

func TestCheckBackend(t *testing.T) {
	fake := testutil.NewFakeSolver(t)
	s := newSession(t, fake)
	assert.Equal(t, BackendUnknown, s.View().Backend)

	assert.Equal(t, BackendOnline, s.CheckBackend(context.Background()))
	assert.Equal(t, BackendOnline, s.View().Backend)

	fake.SetHealthStatus("down")
	assert.Equal(t, BackendOffline, s.CheckBackend(context.Background()))

}

func TestCheckBackendCancelledKeepsPreviousStatus(t *testing.T) {
	fake := testutil.NewFakeSolver(t)
	s := newSession(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, BackendUnknown, s.CheckBackend(ctx))
	assert.Equal(t, BackendUnknown, s.View().Backend)

	require.Equal(t, BackendOnline, s.CheckBackend(context.Background()))

	// a client that disconnects mid-probe must not leave the page on "Checking..."
	assert.Equal(t, BackendOnline, s.CheckBackend(ctx))
	assert.Equal(t, BackendOnline, s.View().Backend)

	fake.SetHealthStatus("down")
	require.Equal(t, BackendOffline, s.CheckBackend(context.Background()))
	assert.Equal(t, BackendOffline, s.CheckBackend(ctx))
	assert.Equal(t, BackendOffline, s.View().Backend)
}

func TestArtifacts(t *testing.T) {
	fake := testutil.NewFakeSolver(t)
	s := newSession(t, fake)
	s.ImportCSV(depotCSV)

	stopsCSV, err := s.Artifact(ArtifactStops)
	require.NoError(t, err)
	assert.Equal(t, "stops.csv", stopsCSV.Filename)
	assert.True(t, strings.HasPrefix(string(stopsCSV.Body), "id,name,lat,lng,demand\n"))
	assert.Contains(t, string(stopsCSV.Body), `B,"Bravo, East",39.91,32.83,6`)

	_, err = s.Artifact(ArtifactSolution)
	assert.ErrorIs(t, err, ErrNoResult)
	_, err = s.Artifact("route-0.csv")
	assert.ErrorIs(t, err, ErrNoResult)
	_, err = s.Artifact("passwords.txt")
	assert.ErrorIs(t, err, ErrUnknownArtifact)

	_, err = s.Solve(context.Background())
	require.NoError(t, err)
	waitForSolve(t, s)

	solution, err := s.Artifact(ArtifactSolution)
	require.NoError(t, err)
	var decoded models.SolveResponse
	require.NoError(t, json.Unmarshal(solution.Body, &decoded))
	assert.Equal(t, models.StatusOK, decoded.Status)
	assert.Contains(t, string(solution.Body), "\n  ")

	summary, err := s.Artifact(ArtifactRoutes)
	require.NoError(t, err)
	assert.Contains(t, string(summary.Body), `"D|A|B"`)

	detailed, err := s.Artifact(ArtifactRoutesDetail)
	require.NoError(t, err)
	lines := strings.Split(string(detailed.Body), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[3], `"Bravo, East"`)

	route, err := s.Artifact("route-0.csv")
	require.NoError(t, err)
	assert.Equal(t, string(detailed.Body), string(route.Body))

	_, err = s.Artifact("route-7.csv")
	assert.ErrorIs(t, err, ErrRouteNotFound)
}

func TestWriteArtifacts(t *testing.T) {
	fake := testutil.NewFakeSolver(t)
	s := newSession(t, fake)
	s.ImportCSV(depotCSV)
	dir := filepath.Join(t.TempDir(), "exports", "run")

	_, err := s.WriteArtifacts(dir)
	assert.ErrorIs(t, err, ErrNoResult)
	assert.NoDirExists(t, dir)

	_, err = s.Solve(context.Background())
	require.NoError(t, err)
	waitForSolve(t, s)

	written, err := s.WriteArtifacts(dir)
	require.NoError(t, err)

	names := make([]string, len(written))
	for i, p := range written {
		names[i] = filepath.Base(p)
	}
	assert.Equal(t, []string{"solution.json", "routes.csv", "routes-detailed.csv", "stops.csv", "route-0.csv"}, names)

	stops, err := os.ReadFile(filepath.Join(dir, "stops.csv"))
	require.NoError(t, err)
	want, err := s.Artifact(ArtifactStops)
	require.NoError(t, err)
	assert.Equal(t, want.Body, stops)
}
