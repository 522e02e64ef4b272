package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeops/internal/models"
	"routeops/internal/solve"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func attempt(id string, state solve.State, started time.Time) solve.Attempt {
	return solve.Attempt{
		ID:    id,
		State: state,
		Request: models.SolveRequest{
			Stops:          []models.Stop{{ID: "D"}, {ID: "A"}, {ID: "B"}},
			DepotID:        "D",
			Vehicles:       2,
			Capacity:       50,
			DistanceMetric: models.DistanceMetricRoadNetwork,
			Objective:      models.ObjectiveTime,
		},
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
	}
}

func TestRecordAndList(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1700000000000)

	ok := attempt("first", solve.StateSucceeded, base)
	ok.Result = &models.SolveResponse{
		Status:          models.StatusOK,
		Summary:         models.SolveSummary{TotalDistanceKm: 12.5, TotalTimeMin: 30, Routes: 1, StopsServed: 1, MatrixUsed: "osrm"},
		Routes:          []models.RouteResult{{RouteID: 0, StopIDs: []string{"D", "A"}}},
		UnservedStopIDs: []string{"B"},
	}
	require.NoError(t, s.RecordAttempt(ctx, ok))

	failed := attempt("second", solve.StateFailed, base.Add(time.Minute))
	failed.Error = "Server error (500)"
	require.NoError(t, s.RecordAttempt(ctx, failed))

	entries, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "second", entries[0].ID)
	assert.Equal(t, solve.StateFailed, entries[0].State)
	assert.Equal(t, "Server error (500)", entries[0].Error)
	assert.Equal(t, 0, entries[0].Routes)

	first := entries[1]
	assert.Equal(t, "first", first.ID)
	assert.Equal(t, solve.StateSucceeded, first.State)
	assert.Equal(t, 3, first.Stops)
	assert.Equal(t, 2, first.Vehicles)
	assert.Equal(t, 50, first.Capacity)
	assert.Equal(t, "D", first.DepotID)
	assert.Equal(t, "osrm", first.DistanceMetric)
	assert.Equal(t, "time", first.Objective)
	assert.Equal(t, 1, first.Routes)
	assert.Equal(t, 1, first.StopsServed)
	assert.Equal(t, 1, first.Unserved)
	assert.Equal(t, 12.5, first.TotalDistanceKm)
	assert.Equal(t, "osrm", first.MatrixUsed)
	assert.Empty(t, first.Error)
	assert.True(t, base.Equal(first.StartedAt))
	assert.Equal(t, 1500*time.Millisecond, first.Duration())
}

func TestListLimit(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1700000000000)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.RecordAttempt(ctx, attempt(id, solve.StateCancelled, base.Add(time.Duration(i)*time.Second))))
	}

	entries, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].ID)
	assert.Equal(t, "b", entries[1].ID)
}

func TestClear(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordAttempt(ctx, attempt("x", solve.StateSucceeded, time.Now())))
	require.NoError(t, s.Clear(ctx))

	entries, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoresAreIndependent(t *testing.T) {
	a := setupStore(t)
	b := setupStore(t)
	ctx := context.Background()

	require.NoError(t, a.RecordAttempt(ctx, attempt("only-a", solve.StateSucceeded, time.Now())))

	entries, err := b.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecorderWiredIntoOrchestrator(t *testing.T) {
	var _ solve.Recorder = (*Store)(nil)
}
