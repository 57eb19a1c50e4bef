package app

import (
	"context"

	"github.com/graaaaa/scr-multilauncher/internal/registry"
)

// ProcessesUsecase lists the tracked target processes.
type ProcessesUsecase interface {
	List(ctx context.Context) (ProcessesResult, error)
}

// ProcessesResult represents the processes response.
type ProcessesResult struct {
	Target        string                  `json:"target"`
	Processes     []registry.ProcessEntry `json:"processes"`
	CycleInFlight bool                    `json:"cycle_in_flight"`
	KillPending   bool                    `json:"kill_pending"`
}

// ProcessesService implements ProcessesUsecase.
type ProcessesService struct {
	Engine Snapshotter
}

// List returns the tracked processes ordered by PID.
func (s ProcessesService) List(ctx context.Context) (ProcessesResult, error) {
	snap, err := s.Engine.Snapshot(ctx)
	if err != nil {
		return ProcessesResult{}, err
	}
	procs := snap.Processes
	if procs == nil {
		procs = []registry.ProcessEntry{}
	}
	return ProcessesResult{
		Target:        snap.Target,
		Processes:     procs,
		CycleInFlight: snap.CycleInFlight,
		KillPending:   snap.KillPending,
	}, nil
}
