// Package solve runs solve attempts against the optimization service and
// tracks their lifecycle.
package solve

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"routeops/internal/gateway"
	"routeops/internal/models"
	"routeops/internal/validation"
)

// State is the lifecycle state of the orchestrator
type State string

const (
	StateIdle      State = "idle"
	StateSolving   State = "solving"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// ErrSolveInProgress is returned when a solve is started while another is active
var ErrSolveInProgress = errors.New("a solve is already in progress")

// ErrPreconditionNotMet is returned when a solve is refused before any request is sent
type ErrPreconditionNotMet struct {
	Reason string
}

func (e *ErrPreconditionNotMet) Error() string {
	return fmt.Sprintf("cannot solve: %s", e.Reason)
}

// Snapshot is a point-in-time copy of the orchestrator state. Seq grows with
// every transition.
type Snapshot struct {
	Seq        uint64                `json:"seq"`
	State      State                 `json:"state"`
	AttemptID  string                `json:"attemptId,omitempty"`
	Result     *models.SolveResponse `json:"result,omitempty"`
	Error      string                `json:"error,omitempty"`
	StartedAt  *time.Time            `json:"startedAt,omitempty"`
	FinishedAt *time.Time            `json:"finishedAt,omitempty"`
}

// Notice is the message shown when an attempt ends. Cancellation is silent.
func (s Snapshot) Notice() string {
	switch s.State {
	case StateSucceeded:
		if s.Result == nil {
			return ""
		}
		return fmt.Sprintf("%d routes, %d stops served.", s.Result.Summary.Routes, s.Result.Summary.StopsServed)
	case StateFailed:
		return s.Error
	default:
		return ""
	}
}

// Attempt describes a finished solve attempt
type Attempt struct {
	ID         string
	State      State
	Request    models.SolveRequest
	Result     *models.SolveResponse
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Recorder receives every attempt that reaches a terminal state
type Recorder interface {
	RecordAttempt(ctx context.Context, a Attempt) error
}

type attempt struct {
	id        string
	req       models.SolveRequest
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
}

// Orchestrator allows a single solve attempt at a time. A response that
// arrives after the attempt was cancelled or superseded is discarded.
type Orchestrator struct {
	client   gateway.Client
	recorder Recorder
	now      func() time.Time

	mu         sync.Mutex
	state      State
	current    *attempt
	result     *models.SolveResponse
	errMsg     string
	finishedAt time.Time
	seq        uint64
	listeners  []func(Snapshot)

	// deliverMu orders listener calls; delivered is the last Seq handed out
	deliverMu sync.Mutex
	delivered uint64
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithRecorder reports terminal attempts to r
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(client gateway.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client: client,
		now:    time.Now,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OnChange registers fn to be called after every state transition
func (o *Orchestrator) OnChange(fn func(Snapshot)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// BuildRequest checks the solve preconditions and assembles the request payload
func BuildRequest(stops []models.Stop, depotID string, settings models.ProblemSettings) (models.SolveRequest, error) {
	if len(stops) == 0 {
		return models.SolveRequest{}, &ErrPreconditionNotMet{Reason: "no stops"}
	}
	if depotID == "" {
		return models.SolveRequest{}, &ErrPreconditionNotMet{Reason: "no depot selected"}
	}
	if !slices.ContainsFunc(stops, func(s models.Stop) bool { return s.ID == depotID }) {
		return models.SolveRequest{}, &ErrPreconditionNotMet{Reason: fmt.Sprintf("depot %q is not one of the stops", depotID)}
	}
	if err := validation.ValidateSettings(settings); err != nil {
		return models.SolveRequest{}, &ErrPreconditionNotMet{Reason: err.Error()}
	}

	return models.SolveRequest{
		Stops:          slices.Clone(stops),
		DepotID:        depotID,
		Vehicles:       settings.Vehicles,
		Capacity:       settings.Capacity,
		DistanceMetric: settings.DistanceMetric,
		Objective:      settings.Objective,
	}, nil
}

// Start begins a solve attempt and returns its id without waiting for the
// answer. The attempt outlives ctx; only Cancel or Reset stop it.
func (o *Orchestrator) Start(ctx context.Context, stops []models.Stop, depotID string, settings models.ProblemSettings) (string, error) {
	req, err := BuildRequest(stops, depotID, settings)
	if err != nil {
		log.Printf("[SOLVE] Attempt refused: %v", err)
		return "", err
	}

	o.mu.Lock()
	if o.state == StateSolving {
		o.mu.Unlock()
		return "", ErrSolveInProgress
	}

	attemptCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a := &attempt{
		id:        uuid.NewString(),
		req:       req,
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: o.now(),
	}
	o.current = a
	o.state = StateSolving
	o.result = nil
	o.errMsg = ""
	o.finishedAt = time.Time{}
	o.seq++
	snap, listeners := o.snapshotLocked(), slices.Clone(o.listeners)
	o.mu.Unlock()

	log.Printf("[SOLVE] Attempt started: id=%s stops=%d vehicles=%d capacity=%d depot=%s",
		a.id, len(req.Stops), req.Vehicles, req.Capacity, req.DepotID)
	o.notify(listeners, snap)

	go o.run(attemptCtx, a)
	return a.id, nil
}

func (o *Orchestrator) run(ctx context.Context, a *attempt) {
	defer close(a.done)
	resp, err := o.client.Solve(ctx, a.req)
	o.finish(a, resp, err)
}

func (o *Orchestrator) finish(a *attempt, resp *models.SolveResponse, err error) {
	o.mu.Lock()
	if o.current != a || o.state != StateSolving {
		o.mu.Unlock()
		log.Printf("[SOLVE] Discarding stale result: id=%s", a.id)
		return
	}

	switch {
	case err == nil:
		o.state = StateSucceeded
		o.result = resp
	case gateway.IsCancelled(err):
		o.state = StateCancelled
	default:
		o.state = StateFailed
		o.errMsg = gateway.Message(err)
	}
	o.finishedAt = o.now()
	elapsed := o.finishedAt.Sub(a.startedAt)
	a.cancel()

	o.seq++
	snap, listeners := o.snapshotLocked(), slices.Clone(o.listeners)
	o.mu.Unlock()

	if snap.State == StateFailed {
		log.Printf("[ERROR] Solve attempt failed: id=%s err=%v", a.id, err)
	} else {
		log.Printf("[SOLVE] Attempt finished: id=%s state=%s duration=%v", a.id, snap.State, elapsed)
	}

	o.notify(listeners, snap)
	o.record(a, snap)
}

// Cancel aborts the active attempt. It reports false when nothing was solving.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	if o.state != StateSolving || o.current == nil {
		o.mu.Unlock()
		return false
	}

	a := o.current
	a.cancel()
	o.state = StateCancelled
	o.finishedAt = o.now()
	o.seq++
	snap, listeners := o.snapshotLocked(), slices.Clone(o.listeners)
	o.mu.Unlock()

	log.Printf("[SOLVE] Attempt cancelled: id=%s", a.id)
	o.notify(listeners, snap)
	o.record(a, snap)
	return true
}

// Reset aborts any active attempt and returns to Idle, dropping the last result
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	if o.current != nil && o.state == StateSolving {
		o.current.cancel()
		log.Printf("[SOLVE] Attempt aborted by reset: id=%s", o.current.id)
	}
	o.state = StateIdle
	o.current = nil
	o.result = nil
	o.errMsg = ""
	o.finishedAt = time.Time{}
	o.seq++
	snap, listeners := o.snapshotLocked(), slices.Clone(o.listeners)
	o.mu.Unlock()

	o.notify(listeners, snap)
}

// Snapshot returns the current state
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Result returns the retained response while in Succeeded
func (o *Orchestrator) Result() (*models.SolveResponse, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateSucceeded || o.result == nil {
		return nil, false
	}
	return o.result, true
}

// Wait blocks until the goroutine of the latest attempt has returned, which
// may be after the attempt was cancelled
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	a := o.current
	o.mu.Unlock()
	if a == nil {
		return nil
	}

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Seq:    o.seq,
		State:  o.state,
		Result: o.result,
		Error:  o.errMsg,
	}
	if o.current != nil {
		snap.AttemptID = o.current.id
		started := o.current.startedAt
		snap.StartedAt = &started
	}
	if !o.finishedAt.IsZero() {
		finished := o.finishedAt
		snap.FinishedAt = &finished
	}
	return snap
}

func (o *Orchestrator) record(a *attempt, snap Snapshot) {
	if o.recorder == nil {
		return
	}

	rec := Attempt{
		ID:        a.id,
		State:     snap.State,
		Request:   a.req,
		Result:    snap.Result,
		Error:     snap.Error,
		StartedAt: a.startedAt,
	}
	if snap.FinishedAt != nil {
		rec.FinishedAt = *snap.FinishedAt
	}
	if err := o.recorder.RecordAttempt(context.Background(), rec); err != nil {
		log.Printf("[ERROR] Failed to record solve attempt: id=%s err=%v", a.id, err)
	}
}

// notify calls listeners outside o.mu. A snapshot older than one already
// delivered is dropped, so listeners never see the state move backwards.
func (o *Orchestrator) notify(listeners []func(Snapshot), snap Snapshot) {
	o.deliverMu.Lock()
	defer o.deliverMu.Unlock()

	if snap.Seq <= o.delivered {
		log.Printf("[SOLVE] Dropping stale state change: seq=%d delivered=%d state=%s", snap.Seq, o.delivered, snap.State)
		return
	}
	o.delivered = snap.Seq
	for _, fn := range listeners {
		fn(snap)
	}
}
