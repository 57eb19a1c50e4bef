package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/graaaaa/scr-multilauncher/internal/atomicfile"
	"github.com/graaaaa/scr-multilauncher/internal/handles"
	"github.com/graaaaa/scr-multilauncher/internal/procscan"
	"github.com/graaaaa/scr-multilauncher/internal/registry"
)

// CurrentSchemaVersion is the current config schema version.
const CurrentSchemaVersion = 1

// Environment variable names for config overrides.
// Priority: Environment > Config File > Default
const (
	EnvPath32             = "SCRML_PATH_32"
	EnvPath64             = "SCRML_PATH_64"
	EnvTargetExe          = "SCRML_TARGET_EXE"
	EnvLockSignature      = "SCRML_LOCK_SIGNATURE"
	EnvScanIntervalMs     = "SCRML_SCAN_INTERVAL_MS"
	EnvMaxInspectAttempts = "SCRML_MAX_INSPECT_ATTEMPTS"
	EnvInspectConcurrency = "SCRML_INSPECT_CONCURRENCY"
	EnvLogDir             = "SCRML_LOG_DIR"
	EnvLogLevel           = "SCRML_LOG_LEVEL"
	EnvHistoryEnabled     = "SCRML_HISTORY_ENABLED"
	EnvAPIEnabled         = "SCRML_API_ENABLED"
	EnvAPIPort            = "SCRML_API_PORT"
)

// Limits applied by normalizeConfig.
const (
	MinScanInterval  = 100 * time.Millisecond
	MaxScanInterval  = time.Minute
	MaxConcurrency   = 64
	DefaultLaunchArg = "-launch"
	DefaultAPIPort   = 8765
	DefaultScanMs    = 500
	DefaultLogLevel  = "info"
	ArchX86          = "32"
	ArchX64          = "64"
)

// LoadStatus indicates how the config was loaded.
type LoadStatus int

const (
	// ConfigLoaded means the file was read and parsed.
	ConfigLoaded LoadStatus = iota
	// ConfigMissing means the file does not exist (safe to create).
	ConfigMissing
	// ConfigFallback means the file could not be read or parsed and
	// defaults are in use (unsafe to overwrite without asking).
	ConfigFallback
)

// ErrUnknownArch is returned for an architecture other than "32" or "64".
var ErrUnknownArch = errors.New("unknown architecture")

// Config holds application configuration stored in conf.toml.
type Config struct {
	SchemaVersion int `toml:"schema_version"`

	// Executables started by the launch command.
	Path32     string   `toml:"path_32"`
	Path64     string   `toml:"path_64"`
	LaunchArgs []string `toml:"launch_args"`

	// Detection.
	TargetExe          string   `toml:"target_exe"`
	LockSignature      string   `toml:"lock_signature"`
	SkipTypes          []string `toml:"skip_types"`
	ScanIntervalMs     int      `toml:"scan_interval_ms"`
	MaxInspectAttempts int      `toml:"max_inspect_attempts"`
	InspectConcurrency int      `toml:"inspect_concurrency"`

	// Output.
	LogDir         string `toml:"log_dir"`
	LogLevel       string `toml:"log_level"`
	HistoryEnabled bool   `toml:"history_enabled"`

	// Local control API.
	APIEnabled bool `toml:"api_enabled"`
	APIPort    int  `toml:"api_port"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SchemaVersion:      CurrentSchemaVersion,
		LaunchArgs:         []string{DefaultLaunchArg},
		TargetExe:          procscan.DefaultTarget,
		LockSignature:      handles.DefaultSignature,
		SkipTypes:          slices.Clone(handles.DefaultSkipTypes),
		ScanIntervalMs:     DefaultScanMs,
		MaxInspectAttempts: registry.DefaultMaxAttempts,
		InspectConcurrency: registry.DefaultConcurrency,
		LogDir:             "", // <data dir>/logs
		LogLevel:           DefaultLogLevel,
		HistoryEnabled:     true,
		APIEnabled:         false,
		APIPort:            DefaultAPIPort,
	}
}

// ScanInterval returns the scan period.
func (c Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalMs) * time.Millisecond
}

// ExecutablePath returns the configured executable for arch ("32" or "64").
func (c Config) ExecutablePath(arch string) (string, error) {
	switch arch {
	case ArchX86:
		return c.Path32, nil
	case ArchX64:
		return c.Path64, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownArch, arch)
}

// LoadConfig reads config from the data directory. See LoadConfigFrom.
func LoadConfig() (Config, LoadStatus, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), ConfigFallback, err
	}
	return LoadConfigFrom(path)
}

// LoadConfigFrom reads config from path. A missing file yields defaults
// with ConfigMissing. An unreadable, corrupt or wrong-version file yields
// defaults with ConfigFallback and the reason as error.
func LoadConfigFrom(path string) (Config, LoadStatus, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, ConfigMissing, nil
		}
		slog.Warn("failed to read config file, using defaults", "path", path, "error", err)
		return cfg, ConfigFallback, fmt.Errorf("read config: %w", err)
	}

	md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg)
	if err != nil {
		slog.Warn("config file is corrupt, using defaults", "path", path, "error", err)
		return DefaultConfig(), ConfigFallback, fmt.Errorf("decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		slog.Warn("unknown config keys ignored", "keys", fmt.Sprint(undecoded))
	}

	if cfg.SchemaVersion != CurrentSchemaVersion {
		slog.Warn("config schema version mismatch, using defaults",
			"got", cfg.SchemaVersion, "expected", CurrentSchemaVersion)
		return DefaultConfig(), ConfigFallback, fmt.Errorf("schema mismatch: got %d", cfg.SchemaVersion)
	}

	return normalizeConfig(cfg), ConfigLoaded, nil
}

// normalizeConfig validates and normalizes config values.
func normalizeConfig(cfg Config) Config {
	defaults := DefaultConfig()

	cfg.SchemaVersion = CurrentSchemaVersion

	if strings.TrimSpace(cfg.TargetExe) == "" {
		cfg.TargetExe = defaults.TargetExe
	}
	if cfg.LockSignature == "" {
		cfg.LockSignature = defaults.LockSignature
	}
	if cfg.LaunchArgs == nil {
		cfg.LaunchArgs = defaults.LaunchArgs
	}

	interval := cfg.ScanInterval()
	if interval < MinScanInterval || interval > MaxScanInterval {
		cfg.ScanIntervalMs = defaults.ScanIntervalMs
	}

	if cfg.MaxInspectAttempts < 0 {
		cfg.MaxInspectAttempts = defaults.MaxInspectAttempts
	}

	if cfg.InspectConcurrency < 1 {
		cfg.InspectConcurrency = defaults.InspectConcurrency
	} else if cfg.InspectConcurrency > MaxConcurrency {
		cfg.InspectConcurrency = MaxConcurrency
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
		cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	default:
		cfg.LogLevel = defaults.LogLevel
	}

	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		cfg.APIPort = defaults.APIPort
	}

	return cfg
}

// SaveConfig writes config to the data directory atomically.
func SaveConfig(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveConfigTo(cfg, path)
}

// SaveConfigTo writes config to path atomically.
func SaveConfigTo(cfg Config, path string) error {
	cfg.SchemaVersion = CurrentSchemaVersion

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o600)
}

// ApplyEnvOverrides applies environment variable overrides to the config.
// Environment variables take highest priority over config file values.
func ApplyEnvOverrides(cfg Config) Config {
	if v := os.Getenv(EnvPath32); v != "" {
		cfg.Path32 = v
	}
	if v := os.Getenv(EnvPath64); v != "" {
		cfg.Path64 = v
	}
	if v := os.Getenv(EnvTargetExe); v != "" {
		cfg.TargetExe = v
	}
	if v := os.Getenv(EnvLockSignature); v != "" {
		cfg.LockSignature = v
	}

	if v := os.Getenv(EnvScanIntervalMs); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			d := time.Duration(ms) * time.Millisecond
			if d >= MinScanInterval && d <= MaxScanInterval {
				cfg.ScanIntervalMs = ms
			}
		}
	}
	if v := os.Getenv(EnvMaxInspectAttempts); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxInspectAttempts = n
		}
	}
	if v := os.Getenv(EnvInspectConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= MaxConcurrency {
			cfg.InspectConcurrency = n
		}
	}

	if v := os.Getenv(EnvLogDir); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		switch l := strings.ToLower(strings.TrimSpace(v)); l {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = l
		}
	}
	if v := os.Getenv(EnvHistoryEnabled); v != "" {
		cfg.HistoryEnabled = parseBool(v)
	}

	if v := os.Getenv(EnvAPIEnabled); v != "" {
		cfg.APIEnabled = parseBool(v)
	}
	if v := os.Getenv(EnvAPIPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port <= 65535 {
			cfg.APIPort = port
		}
	}

	return cfg
}

// parseBool parses a boolean from various string representations.
// Accepts: "true", "1", "yes", "on" (case-insensitive) as true.
// All other values are treated as false.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
