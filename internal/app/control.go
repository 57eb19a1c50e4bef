package app

import (
	"context"

	"github.com/graaaaa/scr-multilauncher/internal/engine"
)

// ControlUsecase defines the commands a user can issue.
type ControlUsecase interface {
	KillAll(ctx context.Context) (KillResult, error)
	Launch(ctx context.Context, arch string) (engine.LaunchResult, error)
	SaveLogs(ctx context.Context) (engine.SaveResult, error)
	ClearLogs(ctx context.Context) error
}

// KillResult represents the kill-all response.
type KillResult struct {
	Messages []string `json:"messages"`
}

// Controller defines engine operations needed by ControlService.
type Controller interface {
	KillAll(ctx context.Context) ([]string, error)
	Launch(ctx context.Context, arch string) (engine.LaunchResult, error)
	SaveLogs(ctx context.Context) (engine.SaveResult, error)
	ClearLogs(ctx context.Context) error
}

// ControlService implements ControlUsecase.
type ControlService struct {
	Engine Controller
}

// KillAll terminates every tracked process.
func (s ControlService) KillAll(ctx context.Context) (KillResult, error) {
	msgs, err := s.Engine.KillAll(ctx)
	if err != nil {
		return KillResult{}, err
	}
	if msgs == nil {
		msgs = []string{}
	}
	return KillResult{Messages: msgs}, nil
}

// Launch starts the executable configured for arch.
func (s ControlService) Launch(ctx context.Context, arch string) (engine.LaunchResult, error) {
	return s.Engine.Launch(ctx, arch)
}

// SaveLogs writes the current lines to the daily log file.
func (s ControlService) SaveLogs(ctx context.Context) (engine.SaveResult, error) {
	return s.Engine.SaveLogs(ctx)
}

// ClearLogs discards the current lines.
func (s ControlService) ClearLogs(ctx context.Context) error {
	return s.Engine.ClearLogs(ctx)
}
