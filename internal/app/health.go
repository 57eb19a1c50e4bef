// Package app provides application use cases.
package app

import (
	"context"

	"github.com/graaaaa/scr-multilauncher/internal/engine"
)

// Health status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// HealthUsecase defines the health check use case.
type HealthUsecase interface {
	Handle(ctx context.Context) (HealthResult, error)
}

// HealthResult represents the health check response.
type HealthResult struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Target  string `json:"target,omitempty"`
	Tracked int    `json:"tracked"`
	Cycles  uint64 `json:"cycles"`
}

// Snapshotter returns the engine's current view.
type Snapshotter interface {
	Snapshot(ctx context.Context) (engine.Snapshot, error)
}

// HealthService implements HealthUsecase.
type HealthService struct {
	Version string
	Engine  Snapshotter
}

// Handle returns the current health status. A stopped or unresponsive
// engine reports degraded rather than failing the request.
func (s HealthService) Handle(ctx context.Context) (HealthResult, error) {
	res := HealthResult{Status: StatusOK, Version: s.Version}
	if s.Engine == nil {
		return res, nil
	}
	snap, err := s.Engine.Snapshot(ctx)
	if err != nil {
		res.Status = StatusDegraded
		return res, nil
	}
	res.Target = snap.Target
	res.Tracked = len(snap.Processes)
	res.Cycles = snap.Cycles
	return res, nil
}
