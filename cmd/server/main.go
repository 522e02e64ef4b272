package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"routeops/internal/config"
	"routeops/internal/gateway"
	"routeops/internal/history"
	"routeops/internal/server"
	"routeops/internal/session"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := history.New(cfg.History.DSN)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer store.Close()

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

	srv, err := server.New(server.Config{
		Addr:    cfg.Server.Addr,
		Session: sess,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	actualAddr, err := srv.Start()
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	// Open browser after a short delay to ensure server is ready
	go func() {
		time.Sleep(500 * time.Millisecond)
		url := fmt.Sprintf("http://%s", actualAddr)
		if err := server.OpenBrowser(url); err != nil {
			log.Printf("Could not open browser: %v", err)
		} else {
			log.Printf("Opened browser at %s", url)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	log.Printf("Received signal %v, starting graceful shutdown", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("could not gracefully shutdown the server: %w", err)
	}

	log.Println("Server stopped")
	return nil
}
