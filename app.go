package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"routeops/internal/config"
	"routeops/internal/gateway"
	"routeops/internal/history"
	"routeops/internal/server"
	"routeops/internal/session"
	"routeops/internal/solve"
)

// solveStateEvent is emitted to the webview on every solve state change
const solveStateEvent = "solve:state"

// App struct holds the Wails application state
type App struct {
	ctx     context.Context
	server  *server.Server
	session *session.Session
	history *history.Store
	url     string
}

// NewApp creates a new App application struct
func NewApp() *App {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := history.New(cfg.History.DSN)
	if err != nil {
		log.Fatalf("Failed to open history: %v", err)
	}

	sess := session.New(session.Options{
		Client:   gateway.New(cfg.API.Gateway()),
		History:  store,
		Defaults: cfg.Defaults.Settings(),
		Sample: session.SampleOptions{
			Count:    cfg.Sample.Count,
			Center:   cfg.Sample.Center(),
			RadiusKm: cfg.Sample.RadiusKm,
		},
	})

	// Start the HTTP server immediately (before window opens)
	srv, err := server.New(server.Config{
		Addr:    "127.0.0.1:0", // 0 = random available port
		Session: sess,
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	addr, err := srv.Start()
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	app := &App{
		server:  srv,
		session: sess,
		history: store,
		url:     fmt.Sprintf("http://%s", addr),
	}
	log.Printf("Internal HTTP server running at %s", app.url)

	return app
}

// startup is called when the app starts
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	// Listeners run while the session may hold its lock, so only emit here
	a.session.Orchestrator().OnChange(func(snap solve.Snapshot) {
		runtime.EventsEmit(ctx, solveStateEvent, snap)
	})

	// Navigate the WebView to the internal server immediately
	go func() {
		runtime.WindowExecJS(ctx, fmt.Sprintf(`window.location.href = "%s"`, a.url))
	}()
}

// shutdown is called when the app closes
func (a *App) shutdown(ctx context.Context) {
	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := a.server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[ERROR] Error shutting down server: %v", err)
		}
	}
	if a.history != nil {
		a.history.Close()
	}
}

// ServerURL returns the address of the internal HTTP server
func (a *App) ServerURL() string {
	return a.url
}

// SaveExports writes every export of the current result to a new folder under
// ~/.routeops/exports and returns the folder
func (a *App) SaveExports() (string, error) {
	if _, ok := a.session.Orchestrator().Result(); !ok {
		return "", session.ErrNoResult
	}

	dir, err := config.NewExportRunDir(time.Now())
	if err != nil {
		return "", err
	}
	if _, err := a.session.WriteArtifacts(dir); err != nil {
		log.Printf("[ERROR] Failed to save exports: dir=%s err=%v", dir, err)
		return "", err
	}
	return dir, nil
}
