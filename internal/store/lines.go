package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	defaultLimit = 100
	maxLimit     = 500
)

// InsertLogLines stores lines for runID. Lines already stored (by any run)
// are skipped. Returns the number of lines inserted.
func (s *Store) InsertLogLines(ctx context.Context, runID string, lines []string, ingestedAt time.Time) (int, error) {
	if runID == "" {
		return 0, fmt.Errorf("%w: run_id is required", ErrInvalidRecord)
	}
	if len(lines) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO log_lines (line, dedupe_key, run_id, ingested_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(dedupe_key) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	ts := ingestedAt.UTC().Format(TimeFormat)
	inserted := 0
	for _, line := range lines {
		if line == "" {
			continue
		}
		result, err := stmt.ExecContext(ctx, line, sha256Hex(line), runID, ts)
		if err != nil {
			return 0, fmt.Errorf("insert log line: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// LineFilter contains filter options for querying log lines.
type LineFilter struct {
	Since    *time.Time
	Contains *string
	Limit    int
	Cursor   *string
}

// LineResult contains one page of log lines.
type LineResult struct {
	Items      []LogLine
	NextCursor *string
}

// QueryLogLines returns stored lines in ingestion order with cursor-based
// pagination.
func (s *Store) QueryLogLines(ctx context.Context, f LineFilter) (LineResult, error) {
	limit := clampLimit(f.Limit)

	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`
SELECT id, line, run_id, ingested_at
FROM log_lines
WHERE 1=1
`)
	if f.Since != nil {
		sb.WriteString(" AND ingested_at >= ?")
		args = append(args, f.Since.UTC().Format(TimeFormat))
	}
	if f.Contains != nil && *f.Contains != "" {
		sb.WriteString(" AND instr(line, ?) > 0")
		args = append(args, *f.Contains)
	}
	if f.Cursor != nil && *f.Cursor != "" {
		cur, err := parseLineCursor(*f.Cursor)
		if err != nil {
			return LineResult{}, err
		}
		cond, condArgs := cur.where()
		sb.WriteString(" AND " + cond)
		args = append(args, condArgs...)
	}
	sb.WriteString(" ORDER BY ingested_at ASC, id ASC LIMIT ?")
	args = append(args, limit+1) // fetch one extra to detect next page

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return LineResult{}, fmt.Errorf("query log lines: %w", err)
	}
	defer rows.Close()

	items := make([]LogLine, 0, limit+1)
	for rows.Next() {
		var (
			l  LogLine
			ts string
		)
		if err := rows.Scan(&l.ID, &l.Line, &l.RunID, &ts); err != nil {
			return LineResult{}, fmt.Errorf("scan log line: %w", err)
		}
		if l.IngestedAt, err = time.Parse(TimeFormat, ts); err != nil {
			return LineResult{}, fmt.Errorf("parse ingested_at %q: %w", ts, err)
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return LineResult{}, fmt.Errorf("rows error: %w", err)
	}

	var next *string
	if len(items) > limit {
		last := items[limit-1]
		items = items[:limit]
		c := lineCursor{At: last.IngestedAt, ID: last.ID}.String()
		next = &c
	}
	return LineResult{Items: items, NextCursor: next}, nil
}

// CountLogLines returns the number of stored lines.
func (s *Store) CountLogLines(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM log_lines`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count log lines: %w", err)
	}
	return n, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
