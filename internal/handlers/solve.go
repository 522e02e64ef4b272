package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"routeops/internal/solve"
)

// SolveStatusResponse is the solve lifecycle with the notice to show for it
type SolveStatusResponse struct {
	solve.Snapshot
	Notice string `json:"notice,omitempty"`
}

func solveStatus(snap solve.Snapshot) SolveStatusResponse {
	return SolveStatusResponse{Snapshot: snap, Notice: snap.Notice()}
}

// HandleGetSolve handles GET /api/v1/solve
func (h *Handler) HandleGetSolve(w http.ResponseWriter, r *http.Request) {
	snap := h.Session.Orchestrator().Snapshot()
	h.writeJSON(w, http.StatusOK, solveStatus(snap))
}

// HandleStartSolve handles POST /api/v1/solve. The attempt runs in the
// background; poll GET /api/v1/solve for the outcome.
func (h *Handler) HandleStartSolve(w http.ResponseWriter, r *http.Request) {
	id, err := h.Session.Solve(r.Context())
	if err != nil {
		log.Printf("[HTTP] POST /api/v1/solve: refused err=%v", err)
		h.handleSessionError(w, err)
		return
	}

	log.Printf("[HTTP] Solve started: attempt=%s", id)
	h.toast(w, "Solving...", "info")
	h.writeJSON(w, http.StatusAccepted, solveStatus(h.Session.Orchestrator().Snapshot()))
}

// HandleCancelSolve handles POST /api/v1/solve/cancel
func (h *Handler) HandleCancelSolve(w http.ResponseWriter, r *http.Request) {
	cancelled := h.Session.Cancel()
	log.Printf("[HTTP] POST /api/v1/solve/cancel: cancelled=%t", cancelled)

	if cancelled {
		h.toast(w, "Solve cancelled", "info")
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"cancelled": cancelled,
		"solve":     solveStatus(h.Session.Orchestrator().Snapshot()),
	})
}

// HandleReset handles POST /api/v1/reset
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	log.Printf("[HTTP] POST /api/v1/reset")
	h.Session.Reset()

	h.toast(w, "Reset complete", "success")
	h.writeJSON(w, http.StatusOK, h.Session.View())
}

// HandleFocusRoute handles POST /api/v1/routes/focus with {"routeId": n}; a
// null routeId clears the focus
func (h *Handler) HandleFocusRoute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RouteID *int `json:"routeId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[HTTP] POST /api/v1/routes/focus: invalid_body err=%v", err)
		h.handleValidationError(w, "Invalid request body")
		return
	}

	if err := h.Session.FocusRoute(req.RouteID); err != nil {
		log.Printf("[HTTP] POST /api/v1/routes/focus: err=%v", err)
		h.handleSessionError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, h.Session.Visualization())
}
