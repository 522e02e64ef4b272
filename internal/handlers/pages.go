package handlers

import (
	"net/http"

	"routeops/internal/history"
	"routeops/internal/session"
	"routeops/internal/visual"
)

// historyPreview is how many attempts the page lists
const historyPreview = 10

// PageData contains everything the workbench page renders
type PageData struct {
	Title         string
	ActivePage    string
	View          session.View
	Visualization session.Visualization
	History       []history.Entry
	BackendLabel  string
	Palette       []string
	Notice        string
}

// HandleIndexPage handles GET /
func (h *Handler) HandleIndexPage(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Session.History(r.Context(), historyPreview)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	view := h.Session.View()
	data := PageData{
		Title:         "Route Planner",
		ActivePage:    "home",
		View:          view,
		Visualization: h.Session.Visualization(),
		History:       entries,
		BackendLabel:  backendLabel(view.Backend),
		Palette:       visual.Palette,
		Notice:        view.Solve.Notice(),
	}

	h.renderTemplate(w, "index.html", data)
}
