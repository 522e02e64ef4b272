package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"routeops/internal/testutil"
)

const stopsCSV = "id,name,lat,lng,demand\n" +
	"D,Depot,39.93,32.85,0\n" +
	"A,Alpha,39.95,32.87,4\n" +
	"B,Bravo,39.91,32.83,6\n"

func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("ROUTEOPS_CONFIG", filepath.Join(t.TempDir(), "none.yaml"))
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stops.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	code, _, stderr := runCLI()
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Usage: routeops")

	code, _, stderr = runCLI("frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, `unknown command "frobnicate"`)

	code, stdout, _ := runCLI("help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Commands:")
}

func TestSolveText(t *testing.T) {
	isolateConfig(t)
	fake := testutil.NewFakeSolver(t)
	out := t.TempDir()

	code, stdout, stderr := runCLI("solve", "-csv", writeCSV(t, stopsCSV), "-url", fake.URL(), "-out", out)
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, stdout, "1 routes, 2 stops served")
	assert.Contains(t, stdout, "Route 0")
	assert.Contains(t, stdout, "D (Depot) -> A (Alpha) -> B (Bravo)")
	assert.Contains(t, stdout, "road data: haversine")

	for _, name := range []string{"solution.json", "routes.csv", "routes-detailed.csv", "stops.csv", "route-0.csv"} {
		assert.FileExists(t, filepath.Join(out, name))
	}

	stops, err := os.ReadFile(filepath.Join(out, "stops.csv"))
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSuffix(stopsCSV, "\n"), string(stops))

	require.Len(t, fake.Requests(), 1)
	req := fake.Requests()[0]
	assert.Equal(t, "D", req.DepotID)
	assert.Equal(t, 3, req.Vehicles)
}

func TestSolveSaveWritesToExportDir(t *testing.T) {
	isolateConfig(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	fake := testutil.NewFakeSolver(t)

	code, _, stderr := runCLI("solve", "-csv", writeCSV(t, stopsCSV), "-url", fake.URL(), "-save")
	require.Equal(t, 0, code, stderr)

	runs, err := filepath.Glob(filepath.Join(home, ".routeops", "exports", "solve-*"))
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.FileExists(t, filepath.Join(runs[0], "solution.json"))
	assert.FileExists(t, filepath.Join(runs[0], "route-0.csv"))
	assert.Contains(t, stderr, "wrote "+filepath.Join(runs[0], "routes.csv"))
}

func TestSolveFlagsOverrideDefaults(t *testing.T) {
	isolateConfig(t)
	fake := testutil.NewFakeSolver(t)

	code, stdout, stderr := runCLI("solve", "-csv", writeCSV(t, stopsCSV), "-url", fake.URL(),
		"-vehicles", "2", "-capacity", "5", "-depot", "A", "-metric", "osrm", "-objective", "time", "-format", "json")
	require.Equal(t, 0, code, stderr)

	req := fake.Requests()[0]
	assert.Equal(t, "A", req.DepotID)
	assert.Equal(t, 2, req.Vehicles)
	assert.Equal(t, 5, req.Capacity)
	assert.Equal(t, "osrm", string(req.DistanceMetric))
	assert.Equal(t, "time", string(req.Objective))

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Contains(t, report, "routes")
	assert.Contains(t, report, "unservedStopIds")
	// B's demand of 6 exceeds capacity 5
	assert.Equal(t, []any{"B"}, report["unservedStopIds"])
}

func TestSolveYAML(t *testing.T) {
	isolateConfig(t)
	fake := testutil.NewFakeSolver(t)

	code, stdout, stderr := runCLI("solve", "-csv", writeCSV(t, stopsCSV), "-url", fake.URL(), "-format", "yaml")
	require.Equal(t, 0, code, stderr)

	var report struct {
		Summary struct {
			Routes      int `yaml:"routes"`
			StopsServed int `yaml:"stopsServed"`
		} `yaml:"summary"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, 1, report.Summary.Routes)
	assert.Equal(t, 2, report.Summary.StopsServed)
}

func TestSolveReportsServerError(t *testing.T) {
	isolateConfig(t)
	fake := testutil.NewFakeSolver(t)
	fake.SetRawResponse(500, `{"detail":"solver exploded"}`)

	code, _, stderr := runCLI("solve", "-csv", writeCSV(t, stopsCSV), "-url", fake.URL())
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "solver exploded")
}

func TestSolveRejectsBadInput(t *testing.T) {
	isolateConfig(t)

	code, _, stderr := runCLI("solve")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "-csv is required")

	code, _, stderr = runCLI("solve", "-csv", writeCSV(t, stopsCSV), "-format", "xml")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "-format must be one of")

	code, _, stderr = runCLI("solve", "-csv", writeCSV(t, "id,name,lat,lng,demand\n"), "-url", "http://127.0.0.1:1")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "no stops")
}

func TestHealth(t *testing.T) {
	isolateConfig(t)
	fake := testutil.NewFakeSolver(t)

	code, stdout, _ := runCLI("health", "-url", fake.URL())
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "online")

	fake.SetHealthStatus("down")
	code, stdout, stderr := runCLI("health", "-url", fake.URL())
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "offline")
	assert.Contains(t, stderr, "not reachable")
}

func TestSample(t *testing.T) {
	isolateConfig(t)

	code, first, _ := runCLI("sample", "-n", "5", "-seed", "42")
	require.Equal(t, 0, code)
	_, second, _ := runCLI("sample", "-n", "5", "-seed", "42")
	assert.Equal(t, first, second)

	lines := strings.Split(strings.TrimSpace(first), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "id,name,lat,lng,demand", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "sample-1,Stop 1,"))

	code, out, _ := runCLI("sample", "-n", "2", "-format", "json")
	require.Equal(t, 0, code)
	var stops []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &stops))
	assert.Len(t, stops, 2)
}

func TestValidate(t *testing.T) {
	code, stdout, _ := runCLI("validate", "-csv", writeCSV(t, stopsCSV))
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "3 valid stops, total demand 10")

	code, stdout, stderr := runCLI("validate", "-csv", writeCSV(t, "id,name,lat,lon,demand\nA,x,1,2,3\n"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, `did you mean "lon"?`)
	assert.Contains(t, stdout, "Row 2")
	assert.Contains(t, stderr, "1 validation error(s)")
}

func TestFormatMinutes(t *testing.T) {
	assert.Equal(t, "0 min", formatMinutes(0.2))
	assert.Equal(t, "42 min", formatMinutes(42))
	assert.Equal(t, "1h 05m", formatMinutes(65))
}
