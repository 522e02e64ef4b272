package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeops/internal/models"
)

func TestLoadFileDefaults(t *testing.T) {
	c, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", c.Server.Addr)
	assert.Equal(t, "", c.API.BaseURL)
	assert.Equal(t, 5*time.Second, c.API.HealthTimeout)
	assert.Equal(t, 120*time.Second, c.API.SolveTimeout)
	assert.Equal(t, 10, c.Sample.Count)
	assert.Equal(t, 8.0, c.Sample.RadiusKm)
	assert.Equal(t, models.Coordinates{Lat: 39.9334, Lng: 32.8597}, c.Sample.Center())
	assert.Equal(t, models.DefaultSettings(), c.Defaults.Settings())
	assert.Equal(t, ":memory:", c.History.DSN)
}

func TestLoadFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: 127.0.0.1:9999
api:
  base_url: "http://solver.local:8000/"
  solve_timeout: 30s
defaults:
  vehicles: 5
  distance_metric: osrm
`), 0600))

	c, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", c.Server.Addr)
	assert.Equal(t, "http://solver.local:8000", c.API.BaseURL)
	assert.Equal(t, 30*time.Second, c.API.SolveTimeout)
	assert.Equal(t, 5, c.Defaults.Vehicles)
	assert.Equal(t, 100, c.Defaults.Capacity)
	assert.Equal(t, models.DistanceMetricRoadNetwork, c.Defaults.Settings().DistanceMetric)
}

func TestLoadFileEnvOverrides(t *testing.T) {
	t.Setenv("ROUTEOPS_API_BASE_URL", "http://env-solver:8000")
	t.Setenv("ROUTEOPS_DEFAULTS_CAPACITY", "40")
	t.Setenv("ROUTEOPS_API_HEALTH_TIMEOUT", "2s")

	c, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "http://env-solver:8000", c.API.BaseURL)
	assert.Equal(t, 40, c.Defaults.Capacity)
	assert.Equal(t, 2*time.Second, c.API.HealthTimeout)
	assert.Equal(t, "http://env-solver:8000", c.API.Gateway().BaseURL)
}

func TestLoadFileRejectsInvalidValues(t *testing.T) {
	t.Setenv("ROUTEOPS_DEFAULTS_VEHICLES", "0")

	_, err := LoadFile("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Vehicles")
}

func TestLoadFileRejectsBadMetric(t *testing.T) {
	t.Setenv("ROUTEOPS_DEFAULTS_DISTANCE_METRIC", "manhattan")

	_, err := LoadFile("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DistanceMetric")
}

func TestLoadFileMissingFileIsIgnored(t *testing.T) {
	c, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3, c.Defaults.Vehicles)
}

func TestNewExportRunDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	dir, err := NewExportRunDir(now)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, AppDirName, ExportDirName, "solve-20240309-140507"), dir)
	assert.DirExists(t, dir)

	appDir, err := GetAppDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, AppDirName), appDir)
}
