package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	AppDirName     = ".routeops"
	ConfigFileName = "config.yaml"
	ExportDirName  = "exports"
)

// GetAppDir returns ~/.routeops, creating it if needed
func GetAppDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	appDir := filepath.Join(homeDir, AppDirName)
	if err := os.MkdirAll(appDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create app directory: %w", err)
	}

	return appDir, nil
}

// GetConfigFilePath returns ~/.routeops/config.yaml without creating it
func GetConfigFilePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, AppDirName, ConfigFileName), nil
}

// GetExportDir returns ~/.routeops/exports, creating it if needed
func GetExportDir() (string, error) {
	appDir, err := GetAppDir()
	if err != nil {
		return "", err
	}

	exportDir := filepath.Join(appDir, ExportDirName)
	if err := os.MkdirAll(exportDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	return exportDir, nil
}

// NewExportRunDir creates a folder for one batch of exports under the export
// directory, named after now
func NewExportRunDir(now time.Time) (string, error) {
	exportDir, err := GetExportDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(exportDir, "solve-"+now.Format("20060102-150405"))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create export run directory: %w", err)
	}

	return dir, nil
}
