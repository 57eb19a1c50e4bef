package store

import (
	"context"
	"fmt"
	"time"
)

// StartRun records a launcher run. Log lines and unlocks reference it.
func (s *Store) StartRun(ctx context.Context, runID, version string, startedAt time.Time) error {
	if runID == "" {
		return fmt.Errorf("%w: run_id is required", ErrInvalidRecord)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, version) VALUES (?, ?, ?)`,
		runID, startedAt.UTC().Format(TimeFormat), version)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// CountRuns returns the number of recorded runs.
func (s *Store) CountRuns(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}
