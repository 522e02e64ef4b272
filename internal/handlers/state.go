package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"routeops/internal/session"
)

const exportPathPrefix = "/api/v1/export/"

// HandleHealthCheck handles GET /api/v1/health
func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": "1.0.0",
		"session": h.Session.ID,
	})
}

// HandleBackendHealth handles GET /api/v1/backend/health by probing the
// optimization service
func (h *Handler) HandleBackendHealth(w http.ResponseWriter, r *http.Request) {
	status := h.Session.CheckBackend(r.Context())
	log.Printf("[HTTP] GET /api/v1/backend/health: status=%s", status)

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  string(status),
		"baseUrl": h.Session.View().BaseURL,
	})
}

// HandleGetState handles GET /api/v1/state
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Session.View())
}

// HandleGetVisualization handles GET /api/v1/visualization
func (h *Handler) HandleGetVisualization(w http.ResponseWriter, r *http.Request) {
	vis := h.Session.Visualization()

	if h.isHTMX(r) {
		h.renderTemplate(w, "routes_table", vis)
		return
	}
	h.writeJSON(w, http.StatusOK, vis)
}

// HandleListHistory handles GET /api/v1/history?limit=N
func (h *Handler) HandleListHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.handleValidationError(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := h.Session.History(r.Context(), limit)
	if err != nil {
		h.handleInternalError(w, err)
		return
	}

	log.Printf("[HTTP] GET /api/v1/history: count=%d", len(entries))
	if h.isHTMX(r) {
		h.renderTemplate(w, "history_table", entries)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"attempts": entries,
		"total":    len(entries),
	})
}

// HandleExport handles GET /api/v1/export/{artifact}
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, exportPathPrefix)

	artifact, err := h.Session.Artifact(name)
	if err != nil {
		log.Printf("[HTTP] GET /api/v1/export: artifact=%s err=%v", name, err)
		h.handleSessionError(w, err)
		return
	}

	log.Printf("[HTTP] Exported artifact: name=%s bytes=%d", artifact.Filename, len(artifact.Body))
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write(artifact.Body)
}

// backendLabel is the text shown next to the backend indicator
func backendLabel(status session.BackendStatus) string {
	switch status {
	case session.BackendOnline:
		return "Online"
	case session.BackendOffline:
		return "Offline"
	default:
		return "Checking..."
	}
}
