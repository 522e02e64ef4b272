package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os/exec"
	"path"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"routeops/internal/handlers"
	"routeops/internal/session"
	"routeops/web"
)

// Server wraps the HTTP server and the session it exposes
type Server struct {
	httpServer *http.Server
	handler    *handlers.Handler
	session    *session.Session
	listener   net.Listener
	addr       string

	probeCancel context.CancelFunc
	probeDone   sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Addr    string // e.g., "127.0.0.1:8080" or "127.0.0.1:0" for random port
	Session *session.Session
}

// New creates and initializes a new server (does not start it)
func New(cfg Config) (*Server, error) {
	if cfg.Session == nil {
		return nil, fmt.Errorf("server requires a session")
	}

	templates, err := loadTemplates(web.Templates)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	handler := &handlers.Handler{
		Session:   cfg.Session,
		Templates: templates,
	}

	mux := setupRoutes(handler, web.Static)

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      loggingMiddleware(corsMiddleware(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		handler:    handler,
		session:    cfg.Session,
		addr:       cfg.Addr,
	}, nil
}

// Handler exposes the routed handler chain, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the server and returns the actual address (useful for random port).
// The optimization service is probed once in the background.
func (s *Server) Start() (string, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = listener
	actualAddr := listener.Addr().String()
	log.Printf("Starting server on %s", actualAddr)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("[ERROR] Server error: %v", err)
		}
	}()

	probeCtx, cancel := context.WithCancel(context.Background())
	s.probeCancel = cancel
	s.probeDone.Add(1)
	go func() {
		defer s.probeDone.Done()
		s.session.CheckBackend(probeCtx)
	}()

	return actualAddr, nil
}

// Shutdown cancels the backend probe and any in-flight solve, then gracefully
// shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.probeCancel != nil {
		s.probeCancel()
		s.probeDone.Wait()
	}
	s.session.Cancel()
	return s.httpServer.Shutdown(ctx)
}

// Template helper functions
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"add": func(a, b int) int {
			return a + b
		},
		"toJSON": func(v any) string {
			b, err := json.Marshal(v)
			if err != nil {
				return "{}"
			}
			return string(b)
		},
		"formatKm": func(km float64) string {
			return humanize.CommafWithDigits(km, 2) + " km"
		},
		"formatMinutes": func(minutes float64) string {
			d := time.Duration(minutes * float64(time.Minute)).Round(time.Second)
			if d < time.Minute {
				return fmt.Sprintf("%ds", int(d.Seconds()))
			}
			h, m := int(d.Hours()), int(d.Minutes())%60
			if h == 0 {
				return fmt.Sprintf("%dm", m)
			}
			return fmt.Sprintf("%dh %dm", h, m)
		},
		"formatNumber": func(v float64) string {
			return humanize.CommafWithDigits(v, 2)
		},
		"formatInt": func(v int) string {
			return humanize.Comma(int64(v))
		},
		"timeAgo": humanize.Time,
		"deref": func(p *int) int {
			if p == nil {
				return -1
			}
			return *p
		},
		"percent": func(load float64, capacity int) int {
			if capacity <= 0 {
				return 0
			}
			pct := int(load / float64(capacity) * 100)
			return min(pct, 100)
		},
	}
}

// loadTemplates parses the layout and partials once. Every other top-level
// template is a page kept as source and parsed into a clone per render.
func loadTemplates(templatesFS fs.FS) (*handlers.TemplateSet, error) {
	funcs := templateFuncs()

	base, err := template.New("").Funcs(funcs).ParseFS(templatesFS, "templates/layout.html", "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout and partials: %w", err)
	}

	files, err := fs.Glob(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}

	pages := make(map[string]string, len(files))
	for _, file := range files {
		name := path.Base(file)
		if name == "layout.html" {
			continue
		}
		content, err := fs.ReadFile(templatesFS, file)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %s: %w", name, err)
		}
		pages[name] = string(content)
	}
	log.Printf("[HTTP] Templates loaded: pages=%d", len(pages))

	return &handlers.TemplateSet{Base: base, Pages: pages, Funcs: funcs}, nil
}

// methods routes a path to one handler per HTTP method
func methods(byMethod map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h, ok := byMethod[r.Method]; ok {
			h(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// setupRoutes configures all HTTP routes
func setupRoutes(handler *handlers.Handler, staticFS fs.FS) *http.ServeMux {
	mux := http.NewServeMux()

	staticSubFS, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatalf("failed to create static sub-filesystem: %v", err)
	}
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSubFS))))

	mux.HandleFunc("/api/v1/health", handler.HandleHealthCheck)

	mux.HandleFunc("/api/v1/backend/health", methods(map[string]http.HandlerFunc{
		http.MethodGet: handler.HandleBackendHealth,
	}))

	mux.HandleFunc("/api/v1/state", methods(map[string]http.HandlerFunc{
		http.MethodGet: handler.HandleGetState,
	}))

	mux.HandleFunc("/api/v1/stops", methods(map[string]http.HandlerFunc{
		http.MethodGet:  handler.HandleListStops,
		http.MethodPost: handler.HandleCreateStop,
	}))

	mux.HandleFunc("/api/v1/stops/import", methods(map[string]http.HandlerFunc{
		http.MethodPost: handler.HandleImportStops,
	}))

	mux.HandleFunc("/api/v1/stops/sample", methods(map[string]http.HandlerFunc{
		http.MethodPost: handler.HandleSampleStops,
	}))

	mux.HandleFunc("/api/v1/stops/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/stops/" {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		switch r.Method {
		case http.MethodPut:
			handler.HandleUpdateStop(w, r)
		case http.MethodDelete:
			handler.HandleDeleteStop(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/settings", methods(map[string]http.HandlerFunc{
		http.MethodGet: handler.HandleGetSettings,
		http.MethodPut: handler.HandleUpdateSettings,
	}))

	mux.HandleFunc("/api/v1/solve", methods(map[string]http.HandlerFunc{
		http.MethodGet:  handler.HandleGetSolve,
		http.MethodPost: handler.HandleStartSolve,
	}))

	mux.HandleFunc("/api/v1/solve/cancel", methods(map[string]http.HandlerFunc{
		http.MethodPost: handler.HandleCancelSolve,
	}))

	mux.HandleFunc("/api/v1/reset", methods(map[string]http.HandlerFunc{
		http.MethodPost: handler.HandleReset,
	}))

	mux.HandleFunc("/api/v1/routes/focus", methods(map[string]http.HandlerFunc{
		http.MethodPost: handler.HandleFocusRoute,
	}))

	mux.HandleFunc("/api/v1/visualization", methods(map[string]http.HandlerFunc{
		http.MethodGet: handler.HandleGetVisualization,
	}))

	mux.HandleFunc("/api/v1/history", methods(map[string]http.HandlerFunc{
		http.MethodGet: handler.HandleListHistory,
	}))

	mux.HandleFunc("/api/v1/export/", methods(map[string]http.HandlerFunc{
		http.MethodGet: handler.HandleExport,
	}))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		handler.HandleIndexPage(w, r)
	})

	return mux
}

// OpenBrowser opens url with the platform's default handler
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Only local pages and the desktop webview may call the API
		if origin == "" || isLocalOrigin(origin) {
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, HX-Request, HX-Target, HX-Current-URL")
			w.Header().Set("Access-Control-Expose-Headers", "HX-Trigger, Content-Disposition")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isLocalOrigin(origin string) bool {
	return strings.HasPrefix(origin, "http://localhost:") ||
		strings.HasPrefix(origin, "http://127.0.0.1:") ||
		strings.HasPrefix(origin, "wails://")
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(lrw, r)

		duration := time.Since(start)
		log.Printf("[HTTP] %s %s %d %v", r.Method, r.URL.Path, lrw.statusCode, duration)
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}
