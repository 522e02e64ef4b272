package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"routeops/internal/models"
)

// HandleGetSettings handles GET /api/v1/settings
func (h *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	log.Printf("[HTTP] GET /api/v1/settings")
	h.writeJSON(w, http.StatusOK, h.Session.Settings())
}

// HandleUpdateSettings handles PUT /api/v1/settings. htmx forms post the same
// fields as form values; missing fields keep their current value.
func (h *Handler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	next := h.Session.Settings()

	if h.isHTMX(r) {
		if err := r.ParseForm(); err != nil {
			log.Printf("[ERROR] Failed to parse form: err=%v", err)
			h.renderError(w, r, err)
			return
		}
		if msg := applySettingsForm(&next, r); msg != "" {
			h.handleValidationErrorHTMX(w, r, msg)
			return
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
			log.Printf("[HTTP] PUT /api/v1/settings: invalid_body err=%v", err)
			h.handleValidationError(w, "Invalid request body")
			return
		}
	}

	settings, err := h.Session.UpdateSettings(next)
	if err != nil {
		log.Printf("[HTTP] PUT /api/v1/settings: rejected err=%v", err)
		if h.isHTMX(r) {
			h.handleValidationErrorHTMX(w, r, err.Error())
			return
		}
		h.handleSessionError(w, err)
		return
	}

	log.Printf("[HTTP] Updated settings: vehicles=%d capacity=%d depot=%s metric=%s objective=%s",
		settings.Vehicles, settings.Capacity, settings.DepotID, settings.DistanceMetric, settings.Objective)
	h.toast(w, "Settings saved", "success")
	h.writeJSON(w, http.StatusOK, settings)
}

func applySettingsForm(s *models.ProblemSettings, r *http.Request) string {
	if v := r.FormValue("vehicles"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return "vehicles must be a whole number"
		}
		s.Vehicles = n
	}
	if v := r.FormValue("capacity"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return "capacity must be a whole number"
		}
		s.Capacity = n
	}
	if v := r.FormValue("depotId"); v != "" {
		s.DepotID = v
	}
	if v := r.FormValue("distanceMetric"); v != "" {
		s.DistanceMetric = models.DistanceMetric(v)
	}
	if v := r.FormValue("objective"); v != "" {
		s.Objective = models.Objective(v)
	}
	return ""
}
