package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/graaaaa/scr-multilauncher/internal/config"
)

// ErrInvalidConfig is returned when an update fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// ConfigUsecase defines the configuration management use case.
type ConfigUsecase interface {
	// GetConfig returns the configuration stored on disk.
	GetConfig(ctx context.Context) (ConfigResponse, error)

	// UpdateConfig saves the given changes and applies them to the running
	// engine. Only API settings require a restart.
	UpdateConfig(ctx context.Context, req ConfigUpdateRequest) (ConfigUpdateResponse, error)
}

// ConfigResponse represents the current configuration.
type ConfigResponse struct {
	Path32             string `json:"path_32"`
	Path64             string `json:"path_64"`
	TargetExe          string `json:"target_exe"`
	ScanIntervalMs     int    `json:"scan_interval_ms"`
	MaxInspectAttempts int    `json:"max_inspect_attempts"`
	InspectConcurrency int    `json:"inspect_concurrency"`
	LogDir             string `json:"log_dir"`
	HistoryEnabled     bool   `json:"history_enabled"`
	APIEnabled         bool   `json:"api_enabled"`
	APIPort            int    `json:"api_port"`
}

// ConfigUpdateRequest contains optional fields for updating configuration.
type ConfigUpdateRequest struct {
	Path32             *string `json:"path_32,omitempty"`
	Path64             *string `json:"path_64,omitempty"`
	TargetExe          *string `json:"target_exe,omitempty"`
	ScanIntervalMs     *int    `json:"scan_interval_ms,omitempty"`
	MaxInspectAttempts *int    `json:"max_inspect_attempts,omitempty"`
	InspectConcurrency *int    `json:"inspect_concurrency,omitempty"`
	LogDir             *string `json:"log_dir,omitempty"`
	APIPort            *int    `json:"api_port,omitempty"`
}

// ConfigUpdateResponse indicates the result of a configuration update.
type ConfigUpdateResponse struct {
	Success         bool `json:"success"`
	RestartRequired bool `json:"restart_required"`
	NewPort         int  `json:"new_port,omitempty"`
}

// ConfigApplier receives the saved configuration. *engine.Engine
// implements it.
type ConfigApplier interface {
	UpdateConfig(ctx context.Context, cfg config.Config) error
}

// ConfigService implements ConfigUsecase.
type ConfigService struct {
	ConfigPath string
	// Engine is nil when no engine is running (CLI one-shots).
	Engine ConfigApplier
}

func toConfigResponse(cfg config.Config) ConfigResponse {
	return ConfigResponse{
		Path32:             cfg.Path32,
		Path64:             cfg.Path64,
		TargetExe:          cfg.TargetExe,
		ScanIntervalMs:     cfg.ScanIntervalMs,
		MaxInspectAttempts: cfg.MaxInspectAttempts,
		InspectConcurrency: cfg.InspectConcurrency,
		LogDir:             cfg.LogDir,
		HistoryEnabled:     cfg.HistoryEnabled,
		APIEnabled:         cfg.APIEnabled,
		APIPort:            cfg.APIPort,
	}
}

// GetConfig returns the stored configuration with environment overrides
// applied.
func (s ConfigService) GetConfig(ctx context.Context) (ConfigResponse, error) {
	cfg, status, err := config.LoadConfigFrom(s.ConfigPath)
	if err != nil && status == config.ConfigFallback {
		return ConfigResponse{}, fmt.Errorf("load config: %w", err)
	}
	return toConfigResponse(config.ApplyEnvOverrides(cfg)), nil
}

// UpdateConfig updates the configuration.
func (s ConfigService) UpdateConfig(ctx context.Context, req ConfigUpdateRequest) (ConfigUpdateResponse, error) {
	cfg, status, err := config.LoadConfigFrom(s.ConfigPath)
	if err != nil && status == config.ConfigFallback {
		// Refuse to overwrite a file we could not read.
		return ConfigUpdateResponse{}, fmt.Errorf("load config: %w", err)
	}

	originalPort := cfg.APIPort

	if req.Path32 != nil {
		cfg.Path32 = *req.Path32
	}
	if req.Path64 != nil {
		cfg.Path64 = *req.Path64
	}
	if req.TargetExe != nil {
		if *req.TargetExe == "" {
			return ConfigUpdateResponse{}, fmt.Errorf("%w: target_exe must not be empty", ErrInvalidConfig)
		}
		cfg.TargetExe = *req.TargetExe
	}
	if req.ScanIntervalMs != nil {
		cfg.ScanIntervalMs = *req.ScanIntervalMs
	}
	if req.MaxInspectAttempts != nil {
		if *req.MaxInspectAttempts < 0 {
			return ConfigUpdateResponse{}, fmt.Errorf("%w: max_inspect_attempts must be non-negative", ErrInvalidConfig)
		}
		cfg.MaxInspectAttempts = *req.MaxInspectAttempts
	}
	if req.InspectConcurrency != nil {
		cfg.InspectConcurrency = *req.InspectConcurrency
	}
	if req.LogDir != nil {
		cfg.LogDir = *req.LogDir
	}
	if req.APIPort != nil {
		if *req.APIPort < 1 || *req.APIPort > 65535 {
			return ConfigUpdateResponse{}, fmt.Errorf("%w: api_port must be between 1 and 65535", ErrInvalidConfig)
		}
		cfg.APIPort = *req.APIPort
	}

	if err := config.SaveConfigTo(cfg, s.ConfigPath); err != nil {
		return ConfigUpdateResponse{}, fmt.Errorf("save config: %w", err)
	}

	// Reload to pick up normalization and environment overrides.
	applied, _, err := config.LoadConfigFrom(s.ConfigPath)
	if err != nil {
		return ConfigUpdateResponse{}, fmt.Errorf("reload config: %w", err)
	}
	if s.Engine != nil {
		if err := s.Engine.UpdateConfig(ctx, config.ApplyEnvOverrides(applied)); err != nil {
			return ConfigUpdateResponse{}, fmt.Errorf("apply config: %w", err)
		}
	}

	resp := ConfigUpdateResponse{Success: true}
	if applied.APIPort != originalPort {
		resp.RestartRequired = true
		resp.NewPort = applied.APIPort
	}
	return resp, nil
}
