package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"html/template"
	"log"
	"net/http"

	"routeops/internal/dataset"
	"routeops/internal/session"
	"routeops/internal/solve"
)

// maxImportBytes bounds CSV uploads
const maxImportBytes = 10 << 20

// TemplateSet holds base templates and page templates separately
type TemplateSet struct {
	Base  *template.Template
	Pages map[string]string
	Funcs template.FuncMap
}

// Handler provides common handler utilities and dependencies
type Handler struct {
	Session   *session.Session
	Templates *TemplateSet
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// isHTMX checks if the request is an htmx request
func (h *Handler) isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string, details any) {
	h.writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// toast sets the HX-Trigger header the page listens on for notifications
func (h *Handler) toast(w http.ResponseWriter, message, kind string) {
	payload, err := json.Marshal(map[string]any{
		"showToast": map[string]string{"message": message, "type": kind},
	})
	if err != nil {
		return
	}
	w.Header().Set("HX-Trigger", string(payload))
}

func (h *Handler) handleNotFound(w http.ResponseWriter, message string) {
	h.writeError(w, http.StatusNotFound, "NOT_FOUND", message, nil)
}

func (h *Handler) handleValidationError(w http.ResponseWriter, message string) {
	h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

// handleValidationErrorHTMX handles 400 errors with htmx support
func (h *Handler) handleValidationErrorHTMX(w http.ResponseWriter, r *http.Request, message string) {
	if h.isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `<div class="alert alert-warning">%s</div>`, html.EscapeString(message))
		return
	}
	h.handleValidationError(w, message)
}

func (h *Handler) handlePreconditionFailed(w http.ResponseWriter, message string) {
	h.writeError(w, http.StatusPreconditionFailed, "PRECONDITION_FAILED", message, nil)
}

func (h *Handler) handleConflict(w http.ResponseWriter, message string) {
	h.writeError(w, http.StatusConflict, "CONFLICT", message, nil)
}

// handleInternalError handles 500 errors
func (h *Handler) handleInternalError(w http.ResponseWriter, err error) {
	log.Printf("[ERROR] Internal error: %v", err)
	h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An error occurred. Please try again.", nil)
}

// handleSessionError maps session and domain errors onto the error envelope.
// Errors without a known sentinel are input problems.
func (h *Handler) handleSessionError(w http.ResponseWriter, err error) {
	var precondition *solve.ErrPreconditionNotMet
	switch {
	case errors.Is(err, dataset.ErrStopNotFound), errors.Is(err, session.ErrRouteNotFound), errors.Is(err, session.ErrUnknownArtifact):
		h.handleNotFound(w, err.Error())
	case errors.Is(err, dataset.ErrDuplicateID), errors.Is(err, solve.ErrSolveInProgress):
		h.handleConflict(w, err.Error())
	case errors.As(err, &precondition):
		h.handlePreconditionFailed(w, precondition.Reason)
	case errors.Is(err, session.ErrNoResult):
		h.handlePreconditionFailed(w, err.Error())
	default:
		h.handleValidationError(w, err.Error())
	}
}

// renderTemplate renders an HTML template
func (h *Handler) renderTemplate(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	// Always clone to avoid "cannot Clone after executed" error
	tmpl, err := h.Templates.Base.Clone()
	if err != nil {
		log.Printf("[ERROR] Template clone error: template=%s err=%v", name, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if pageContent, ok := h.Templates.Pages[name]; ok {
		// Page templates define "content" and render through layout.html
		if _, err = tmpl.New(name).Parse(pageContent); err != nil {
			log.Printf("[ERROR] Template parse error: template=%s err=%v", name, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if err := tmpl.ExecuteTemplate(w, "layout.html", data); err != nil {
			log.Printf("[ERROR] Template execute error: template=%s err=%v", name, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Printf("[ERROR] Template partial error: template=%s err=%v", name, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// renderError renders an error response (JSON for API, HTML for htmx)
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	if h.isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, `<div class="alert alert-error">%s</div>`, html.EscapeString(err.Error()))
		return
	}
	h.handleInternalError(w, err)
}
