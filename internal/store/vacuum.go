package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// VacuumInterval is how long MaybeVacuum waits between runs.
const VacuumInterval = 30 * 24 * time.Hour

const keyLastVacuum = "last_vacuum_at"

// MaybeVacuum compacts the database when it has not been vacuumed for
// VacuumInterval. It reports whether VACUUM ran.
func (s *Store) MaybeVacuum(ctx context.Context) (bool, error) {
	last, ok, err := s.metaTime(ctx, keyLastVacuum)
	if err != nil {
		return false, err
	}
	now := s.now()
	if ok && now.Sub(last) < VacuumInterval {
		return false, nil
	}

	s.logger.Info("vacuuming history database", "last", last)
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return false, fmt.Errorf("vacuum: %w", err)
	}
	s.logger.Info("vacuum finished", "elapsed", s.now().Sub(now))

	if err := s.setMetaTime(ctx, keyLastVacuum, now); err != nil {
		s.logger.Warn("recording vacuum time failed", "error", err)
	}
	return true, nil
}

// metaTime reads a timestamp from the metadata table. A missing or
// unparsable value reports ok=false.
func (s *Store) metaTime(ctx context.Context, key string) (t time.Time, ok bool, err error) {
	var v string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return time.Time{}, false, nil
	case err != nil:
		return time.Time{}, false, fmt.Errorf("read metadata %s: %w", key, err)
	}
	t, err = time.Parse(TimeFormat, v)
	if err != nil {
		return time.Time{}, false, nil
	}
	return t, true, nil
}

func (s *Store) setMetaTime(ctx context.Context, key string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, t.UTC().Format(TimeFormat))
	return err
}
