// Package history keeps a log of solve attempts for the lifetime of a session.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"routeops/internal/solve"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryDSN keeps the log in process memory so it disappears with the session
const MemoryDSN = ":memory:"

// Entry is one recorded solve attempt
type Entry struct {
	ID              string      `json:"id"`
	State           solve.State `json:"state"`
	Stops           int         `json:"stops"`
	Vehicles        int         `json:"vehicles"`
	Capacity        int         `json:"capacity"`
	DepotID         string      `json:"depotId"`
	DistanceMetric  string      `json:"distanceMetric"`
	Objective       string      `json:"objective"`
	Routes          int         `json:"routes"`
	StopsServed     int         `json:"stopsServed"`
	Unserved        int         `json:"unserved"`
	TotalDistanceKm float64     `json:"totalDistanceKm"`
	TotalTimeMin    float64     `json:"totalTimeMin"`
	MatrixUsed      string      `json:"matrixUsed,omitempty"`
	Error           string      `json:"error,omitempty"`
	StartedAt       time.Time   `json:"startedAt"`
	FinishedAt      time.Time   `json:"finishedAt"`
}

// Duration is how long the attempt ran
func (e Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// Store is a SQLite-backed attempt log
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens the log at dsn and applies the schema migrations. Use MemoryDSN
// for a session-scoped log.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// An in-memory database exists per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	log.Printf("[HISTORY] Attempt log ready: dsn=%s", dsn)
	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return err
	}
	// m.Close is not called: it would close db, which the store keeps using

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordAttempt stores a finished attempt
func (s *Store) RecordAttempt(ctx context.Context, a solve.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := Entry{
		ID:             a.ID,
		State:          a.State,
		Stops:          len(a.Request.Stops),
		Vehicles:       a.Request.Vehicles,
		Capacity:       a.Request.Capacity,
		DepotID:        a.Request.DepotID,
		DistanceMetric: string(a.Request.DistanceMetric),
		Objective:      string(a.Request.Objective),
		Error:          a.Error,
		StartedAt:      a.StartedAt,
		FinishedAt:     a.FinishedAt,
	}
	if a.Result != nil {
		e.Routes = len(a.Result.Routes)
		e.StopsServed = a.Result.Summary.StopsServed
		e.Unserved = len(a.Result.UnservedStopIDs)
		e.TotalDistanceKm = a.Result.Summary.TotalDistanceKm
		e.TotalTimeMin = a.Result.Summary.TotalTimeMin
		e.MatrixUsed = a.Result.Summary.MatrixUsed
	}

	query := `INSERT OR REPLACE INTO solve_attempts
	          (id, state, stops, vehicles, capacity, depot_id, distance_metric, objective,
	           routes, stops_served, unserved, total_distance_km, total_time_min, matrix_used,
	           error, started_at, finished_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		e.ID, string(e.State), e.Stops, e.Vehicles, e.Capacity, e.DepotID, e.DistanceMetric, e.Objective,
		e.Routes, e.StopsServed, e.Unserved, e.TotalDistanceKm, e.TotalTimeMin, nullString(e.MatrixUsed),
		nullString(e.Error), e.StartedAt.UnixMilli(), e.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	log.Printf("[HISTORY] Recorded attempt: id=%s state=%s stops=%d routes=%d", e.ID, e.State, e.Stops, e.Routes)
	return nil
}

// List returns the most recent attempts first, at most limit of them
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, state, stops, vehicles, capacity, depot_id, distance_metric, objective,
	                 routes, stops_served, unserved, total_distance_km, total_time_min, matrix_used,
	                 error, started_at, finished_at
	          FROM solve_attempts
	          ORDER BY started_at DESC, rowid DESC
	          LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var state string
		var matrixUsed, errMsg sql.NullString
		var startedAt, finishedAt int64
		if err := rows.Scan(&e.ID, &state, &e.Stops, &e.Vehicles, &e.Capacity, &e.DepotID,
			&e.DistanceMetric, &e.Objective, &e.Routes, &e.StopsServed, &e.Unserved,
			&e.TotalDistanceKm, &e.TotalTimeMin, &matrixUsed, &errMsg, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		e.State = solve.State(state)
		e.MatrixUsed = matrixUsed.String
		e.Error = errMsg.String
		e.StartedAt = time.UnixMilli(startedAt)
		e.FinishedAt = time.UnixMilli(finishedAt)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempts: %w", err)
	}

	return entries, nil
}

// Clear removes every recorded attempt
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM solve_attempts`); err != nil {
		return fmt.Errorf("failed to clear attempts: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
