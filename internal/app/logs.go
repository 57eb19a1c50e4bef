package app

import (
	"context"
	"errors"

	"github.com/graaaaa/scr-multilauncher/internal/store"
)

// ErrHistoryDisabled is returned by history queries when no store is
// configured.
var ErrHistoryDisabled = errors.New("history is disabled")

// LogsUsecase defines the log line query use case.
type LogsUsecase interface {
	// Current returns the lines not saved yet.
	Current(ctx context.Context) (LogsResult, error)
	// History queries lines persisted in the history database.
	History(ctx context.Context, filter store.LineFilter) (store.LineResult, error)
}

// LogsResult represents the current log lines.
type LogsResult struct {
	Lines []string `json:"lines"`
}

// LogStore defines store operations needed by LogsService.
type LogStore interface {
	QueryLogLines(ctx context.Context, filter store.LineFilter) (store.LineResult, error)
}

// LogsService implements LogsUsecase.
type LogsService struct {
	Engine Snapshotter
	// Store is nil when history is disabled.
	Store LogStore
}

// Current returns the in-memory lines in order.
func (s *LogsService) Current(ctx context.Context) (LogsResult, error) {
	snap, err := s.Engine.Snapshot(ctx)
	if err != nil {
		return LogsResult{}, err
	}
	lines := snap.Lines
	if lines == nil {
		lines = []string{}
	}
	return LogsResult{Lines: lines}, nil
}

// History queries persisted lines.
func (s *LogsService) History(ctx context.Context, filter store.LineFilter) (store.LineResult, error) {
	if s.Store == nil {
		return store.LineResult{}, ErrHistoryDisabled
	}
	return s.Store.QueryLogLines(ctx, filter)
}
