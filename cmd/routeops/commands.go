package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"routeops/internal/config"
	"routeops/internal/csvcodec"
	"routeops/internal/dataset"
	"routeops/internal/gateway"
	"routeops/internal/geo"
	"routeops/internal/models"
	"routeops/internal/session"
	"routeops/internal/solve"
)

func runSolve(args []string, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("solve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	csvPath := fs.String("csv", "", "CSV file with id,name,lat,lng,demand columns (required)")
	vehicles := fs.Int("vehicles", cfg.Defaults.Vehicles, "number of vehicles (1-50)")
	capacity := fs.Int("capacity", cfg.Defaults.Capacity, "capacity of each vehicle")
	depot := fs.String("depot", "", "depot stop id (default: first stop)")
	metric := fs.String("metric", cfg.Defaults.DistanceMetric, "distance metric: haversine|osrm")
	objective := fs.String("objective", cfg.Defaults.Objective, "objective: distance|time")
	baseURL := fs.String("url", cfg.API.BaseURL, "optimization service base URL")
	outDir := fs.String("out", "", "directory to write solution.json, routes.csv and per-route CSVs")
	save := fs.Bool("save", false, "write the exports to a new folder under ~/.routeops/exports (ignored with -out)")
	format := fs.String("format", formatText, "output format: text|json|yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *csvPath == "" {
		return errors.New("-csv is required")
	}
	if err := checkFormat(*format, formatText, formatJSON, formatYAML); err != nil {
		return err
	}

	data, err := os.ReadFile(*csvPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", *csvPath, err)
	}

	apiCfg := cfg.API.Gateway()
	apiCfg.BaseURL = gateway.NormalizeBaseURL(*baseURL)
	sess := session.New(session.Options{
		Client:   gateway.New(apiCfg),
		Defaults: cfg.Defaults.Settings(),
	})

	imported := sess.ImportCSV(string(data))
	for _, w := range imported.HeaderWarnings {
		fmt.Fprintf(stderr, "warning: %s\n", w)
	}
	for _, e := range imported.Errors {
		fmt.Fprintln(stderr, e)
	}
	if n := len(imported.Errors); n > 0 {
		fmt.Fprintf(stderr, "%d validation error(s); solving the %d valid stops\n", n, len(imported.Stops))
	}

	if _, err := sess.UpdateSettings(models.ProblemSettings{
		Vehicles:       *vehicles,
		Capacity:       *capacity,
		DepotID:        *depot,
		DistanceMetric: models.DistanceMetric(*metric),
		Objective:      models.Objective(*objective),
	}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := solveAndWait(ctx, sess)
	if err != nil {
		return err
	}

	view := sess.View()
	if view.Integrity != nil {
		for _, p := range view.Integrity.Problems() {
			fmt.Fprintf(stderr, "integrity: %s\n", p)
		}
	}

	if err := writeSolveReport(stdout, *format, newSolveReport(view, snap.Result)); err != nil {
		return err
	}

	dir := *outDir
	if dir == "" && *save {
		if dir, err = config.NewExportRunDir(time.Now()); err != nil {
			return err
		}
	}
	if dir != "" {
		written, err := sess.WriteArtifacts(dir)
		if err != nil {
			return err
		}
		for _, p := range written {
			fmt.Fprintf(stderr, "wrote %s\n", p)
		}
	}
	return nil
}

// solveAndWait runs one attempt to completion. Cancelling ctx cancels the
// in-flight request.
func solveAndWait(ctx context.Context, sess *session.Session) (solve.Snapshot, error) {
	if _, err := sess.Solve(ctx); err != nil {
		return solve.Snapshot{}, err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			sess.Cancel()
		case <-done:
		}
	}()

	if err := sess.Orchestrator().Wait(context.Background()); err != nil {
		return solve.Snapshot{}, err
	}

	snap := sess.Orchestrator().Snapshot()
	switch snap.State {
	case solve.StateSucceeded:
		return snap, nil
	case solve.StateCancelled:
		return snap, errCancelled
	default:
		return snap, errors.New(snap.Error)
	}
}

func runHealth(args []string, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(stdout)
	baseURL := fs.String("url", cfg.API.BaseURL, "optimization service base URL")
	timeout := fs.Duration("timeout", cfg.API.HealthTimeout, "probe timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	apiCfg := cfg.API.Gateway()
	apiCfg.BaseURL = gateway.NormalizeBaseURL(*baseURL)
	apiCfg.HealthTimeout = *timeout
	client := gateway.New(apiCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	online := client.Health(ctx)
	printHealth(stdout, client.BaseURL(), online, time.Since(start))
	if !online {
		return fmt.Errorf("optimization service at %q is not reachable", client.BaseURL())
	}
	return nil
}

func runSample(args []string, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("sample", flag.ContinueOnError)
	fs.SetOutput(stdout)
	n := fs.Int("n", cfg.Sample.Count, "number of stops")
	radius := fs.Float64("radius", cfg.Sample.RadiusKm, "radius around the center in km")
	lat := fs.Float64("lat", cfg.Sample.CenterLat, "center latitude")
	lng := fs.Float64("lng", cfg.Sample.CenterLng, "center longitude")
	seed := fs.Uint64("seed", 0, "random seed for reproducible output (0: random)")
	format := fs.String("format", formatCSV, "output format: csv|json|yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format, formatCSV, formatJSON, formatYAML); err != nil {
		return err
	}

	center := models.Coordinates{Lat: *lat, Lng: *lng}
	var stops []models.Stop
	if *seed != 0 {
		stops = geo.GenerateSampleStopsWithRand(rand.New(rand.NewPCG(*seed, *seed)), *n, center, *radius)
	} else {
		stops = geo.GenerateSampleStops(*n, center, *radius)
	}

	if *format == formatCSV {
		_, err := fmt.Fprintln(stdout, csvcodec.ExportStops(stops))
		return err
	}
	return encode(stdout, *format, stops)
}

func runValidate(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stdout)
	csvPath := fs.String("csv", "", "CSV file to check (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *csvPath == "" {
		return errors.New("-csv is required")
	}

	data, err := os.ReadFile(*csvPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", *csvPath, err)
	}

	result := dataset.ParseStops(string(data))
	printValidation(stdout, result)
	if len(result.Errors) > 0 {
		return errors.New(result.Notice())
	}
	return nil
}
