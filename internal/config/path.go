// Package config loads, saves and watches the launcher configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/graaaaa/scr-multilauncher/internal/appinfo"
)

// EnvDataDir relocates the whole data directory (config, history,
// diagnostic log and saved logs).
const EnvDataDir = "SCRML_DATA_DIR"

// DataDir returns the per-user data directory:
// %LOCALAPPDATA%\scr-multilauncher on Windows and the user config
// directory elsewhere. EnvDataDir takes precedence.
func DataDir() (string, error) {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		return filepath.Clean(dir), nil
	}
	if runtime.GOOS == "windows" {
		if base := os.Getenv("LOCALAPPDATA"); base != "" {
			return filepath.Join(base, appinfo.DirName), nil
		}
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate data dir: %w", err)
	}
	return filepath.Join(base, appinfo.DirName), nil
}

// EnsureDataDir is DataDir, creating the directory if needed.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return dir, nil
}

func inDataDir(name string) (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ConfigPath returns the path to conf.toml.
func ConfigPath() (string, error) { return inDataDir(appinfo.ConfigFileName) }

// DiagnosticLogPath returns the path to the rotating diagnostic log.
func DiagnosticLogPath() (string, error) { return inDataDir(appinfo.DiagnosticLogFileName) }

// DatabasePath returns the path to the SQLite history database.
func DatabasePath() (string, error) { return inDataDir(appinfo.DatabaseFileName) }

// LogDir returns where daily log files are saved: cfg.LogDir when set,
// otherwise the logs directory inside the data directory.
func LogDir(cfg Config) (string, error) {
	if cfg.LogDir != "" {
		return cfg.LogDir, nil
	}
	return inDataDir(appinfo.LogDirName)
}
