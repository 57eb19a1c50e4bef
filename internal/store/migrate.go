package store

import (
	"context"
	"fmt"
)

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 1

// migrate runs database migrations.
func (s *Store) migrate(ctx context.Context) error {
	steps := []struct {
		name   string
		schema string
	}{
		{"runs", `
		CREATE TABLE IF NOT EXISTS runs (
			run_id     TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			version    TEXT NOT NULL
		);`},
		{"log_lines", `
		CREATE TABLE IF NOT EXISTS log_lines (
			id          INTEGER PRIMARY KEY,
			line        TEXT NOT NULL,
			dedupe_key  TEXT NOT NULL,
			run_id      TEXT NOT NULL,
			ingested_at TEXT NOT NULL,
			UNIQUE(dedupe_key)
		);

		CREATE INDEX IF NOT EXISTS idx_log_lines_ingested ON log_lines(ingested_at, id);`},
		{"unlocks", `
		CREATE TABLE IF NOT EXISTS unlocks (
			id          INTEGER PRIMARY KEY,
			ts          TEXT NOT NULL,
			run_id      TEXT NOT NULL,
			cycle_id    TEXT NOT NULL,
			pid         INTEGER NOT NULL,
			handle      TEXT NOT NULL,
			object_name TEXT NOT NULL,
			close_error TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_unlocks_ts ON unlocks(ts, id);`},
		{"metadata", `
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`},
	}

	for _, step := range steps {
		if _, err := s.db.ExecContext(ctx, step.schema); err != nil {
			return fmt.Errorf("create %s table: %w", step.name, err)
		}
	}
	return nil
}
