package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"routeops/internal/dataset"
	"routeops/internal/models"
)

const stopsPathPrefix = "/api/v1/stops/"

// StopListResponse represents the list response
type StopListResponse struct {
	Stops   []models.Stop `json:"stops"`
	DepotID string        `json:"depotId"`
	Total   int           `json:"total"`
}

// ImportResponse reports the outcome of a CSV import
type ImportResponse struct {
	dataset.ImportResult
	Notice string `json:"notice"`
}

// HandleListStops handles GET /api/v1/stops
func (h *Handler) HandleListStops(w http.ResponseWriter, r *http.Request) {
	view := h.Session.View()
	log.Printf("[HTTP] GET /api/v1/stops: count=%d", len(view.Stops))

	if h.isHTMX(r) {
		h.renderTemplate(w, "stops_table", view)
		return
	}

	h.writeJSON(w, http.StatusOK, StopListResponse{
		Stops:   view.Stops,
		DepotID: view.DepotID,
		Total:   len(view.Stops),
	})
}

// HandleCreateStop handles POST /api/v1/stops. An empty body adds a blank row
// for manual entry.
func (h *Handler) HandleCreateStop(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		log.Printf("[HTTP] POST /api/v1/stops: read_failed err=%v", err)
		h.handleValidationError(w, "Invalid request body")
		return
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		stop := h.Session.AddBlankStop()
		log.Printf("[HTTP] Added blank stop: id=%s", stop.ID)
		h.writeJSON(w, http.StatusCreated, stop)
		return
	}

	var stop models.Stop
	if err := json.Unmarshal(body, &stop); err != nil {
		log.Printf("[HTTP] POST /api/v1/stops: invalid_body err=%v", err)
		h.handleValidationError(w, "Invalid request body")
		return
	}

	if err := h.Session.AddStop(stop); err != nil {
		log.Printf("[HTTP] POST /api/v1/stops: rejected id=%q err=%v", stop.ID, err)
		h.handleSessionError(w, err)
		return
	}

	log.Printf("[HTTP] Created stop: id=%s", stop.ID)
	h.toast(w, fmt.Sprintf("Stop '%s' added", stop.ID), "success")
	h.writeJSON(w, http.StatusCreated, stop)
}

// HandleUpdateStop handles PUT /api/v1/stops/{id}
func (h *Handler) HandleUpdateStop(w http.ResponseWriter, r *http.Request) {
	id, ok := h.stopIDFromPath(w, r)
	if !ok {
		return
	}

	var patch dataset.StopPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		log.Printf("[HTTP] PUT /api/v1/stops/{id}: invalid_body id=%s err=%v", id, err)
		h.handleValidationError(w, "Invalid request body")
		return
	}

	stop, err := h.Session.UpdateStop(id, patch)
	if err != nil {
		log.Printf("[HTTP] PUT /api/v1/stops/{id}: rejected id=%s err=%v", id, err)
		h.handleSessionError(w, err)
		return
	}

	log.Printf("[HTTP] Updated stop: id=%s new_id=%s", id, stop.ID)
	h.writeJSON(w, http.StatusOK, stop)
}

// HandleDeleteStop handles DELETE /api/v1/stops/{id}
func (h *Handler) HandleDeleteStop(w http.ResponseWriter, r *http.Request) {
	id, ok := h.stopIDFromPath(w, r)
	if !ok {
		return
	}

	if err := h.Session.RemoveStop(id); err != nil {
		log.Printf("[HTTP] DELETE /api/v1/stops/{id}: id=%s err=%v", id, err)
		h.handleSessionError(w, err)
		return
	}

	log.Printf("[HTTP] Deleted stop: id=%s", id)
	h.toast(w, "Stop deleted", "success")
	w.WriteHeader(http.StatusNoContent)
}

// HandleImportStops handles POST /api/v1/stops/import. The CSV may arrive as a
// multipart upload in field "file", a text/csv body or JSON {"csv": "..."}.
func (h *Handler) HandleImportStops(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	text, err := readImportText(r)
	if err != nil {
		log.Printf("[HTTP] POST /api/v1/stops/import: invalid_body err=%v", err)
		h.handleValidationErrorHTMX(w, r, err.Error())
		return
	}

	result := h.Session.ImportCSV(text)
	notice := result.Notice()
	log.Printf("[HTTP] Imported stops: stops=%d errors=%d", len(result.Stops), len(result.Errors))

	kind := "success"
	if len(result.Errors) > 0 {
		kind = "warning"
	}
	if notice != "" {
		h.toast(w, notice, kind)
	}

	if h.isHTMX(r) {
		h.renderTemplate(w, "stops_table", h.Session.View())
		return
	}

	h.writeJSON(w, http.StatusOK, ImportResponse{ImportResult: result, Notice: notice})
}

// HandleSampleStops handles POST /api/v1/stops/sample
func (h *Handler) HandleSampleStops(w http.ResponseWriter, r *http.Request) {
	added := h.Session.AddSamples()
	log.Printf("[HTTP] Added sample stops: count=%d", len(added))

	h.toast(w, fmt.Sprintf("Added %d sample stops", len(added)), "success")
	if h.isHTMX(r) {
		h.renderTemplate(w, "stops_table", h.Session.View())
		return
	}

	h.writeJSON(w, http.StatusCreated, StopListResponse{
		Stops: added,
		Total: len(added),
	})
}

func (h *Handler) stopIDFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := strings.TrimPrefix(r.URL.EscapedPath(), stopsPathPrefix)
	id, err := url.PathUnescape(raw)
	if err != nil || id == "" || strings.Contains(raw, "/") {
		log.Printf("[HTTP] %s %s: invalid_id=%q", r.Method, r.URL.Path, raw)
		h.handleValidationError(w, "Invalid stop ID")
		return "", false
	}
	return id, true
}

func readImportText(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		file, _, err := r.FormFile("file")
		if err != nil {
			return "", errors.New("a CSV file is required")
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", fmt.Errorf("failed to read upload: %w", err)
		}
		return string(data), nil
	case "application/json":
		var req struct {
			CSV string `json:"csv"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", errors.New("invalid request body")
		}
		return req.CSV, nil
	default:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read body: %w", err)
		}
		return string(data), nil
	}
}
