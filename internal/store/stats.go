package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UnlockStats summarizes the unlocks table for one time window.
type UnlockStats struct {
	Unlocks      int        // unlocks inside the window
	PIDs         int        // distinct processes unlocked inside the window
	TotalUnlocks int        // all time
	StoredLines  int64      // all time
	LastUnlockAt *time.Time // nil when nothing was ever unlocked
}

// UnlockStats counts unlocks inside [since, until) and overall.
func (s *Store) UnlockStats(ctx context.Context, since, until time.Time) (UnlockStats, error) {
	from, to := since.UTC().Format(TimeFormat), until.UTC().Format(TimeFormat)

	var (
		st   UnlockStats
		last sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
SELECT
	COUNT(*) FILTER (WHERE ts >= ?1 AND ts < ?2),
	COUNT(DISTINCT pid) FILTER (WHERE ts >= ?1 AND ts < ?2),
	COUNT(*),
	MAX(ts),
	(SELECT COUNT(*) FROM log_lines)
FROM unlocks`, from, to).Scan(&st.Unlocks, &st.PIDs, &st.TotalUnlocks, &last, &st.StoredLines)
	if err != nil {
		return UnlockStats{}, fmt.Errorf("unlock stats: %w", err)
	}

	if last.Valid {
		t, err := time.Parse(TimeFormat, last.String)
		if err != nil {
			return UnlockStats{}, fmt.Errorf("parse last unlock %q: %w", last.String, err)
		}
		st.LastUnlockAt = &t
	}
	return st, nil
}

// DayBounds returns the local calendar day containing t as [start, end).
// The end is computed by date, so DST days are 23 or 25 hours long.
func DayBounds(t time.Time) (start, end time.Time) {
	y, m, d := t.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}
