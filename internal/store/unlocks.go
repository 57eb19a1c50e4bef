package store

import (
	"context"
	"fmt"
	"time"
)

// InsertUnlock stores one removed lock handle and sets u.ID.
func (s *Store) InsertUnlock(ctx context.Context, u *Unlock) error {
	if err := validateUnlock(u); err != nil {
		return err
	}

	const query = `
	INSERT INTO unlocks (ts, run_id, cycle_id, pid, handle, object_name, close_error)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	row := unlockToRow(u)
	result, err := s.db.ExecContext(ctx, query,
		row.Ts, row.RunID, row.CycleID, row.PID, row.Handle, row.ObjectName, row.CloseError)
	if err != nil {
		return fmt.Errorf("insert unlock: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	u.ID = id
	return nil
}

// RecentUnlocks returns up to limit unlocks at or after since, newest first.
func (s *Store) RecentUnlocks(ctx context.Context, since time.Time, limit int) ([]Unlock, error) {
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, ts, run_id, cycle_id, pid, handle, object_name, close_error
	FROM unlocks
	WHERE ts >= ?
	ORDER BY ts DESC, id DESC
	LIMIT ?
	`, since.UTC().Format(TimeFormat), limit)
	if err != nil {
		return nil, fmt.Errorf("query unlocks: %w", err)
	}
	defer rows.Close()

	out := make([]Unlock, 0)
	for rows.Next() {
		var r unlockRow
		if err := rows.Scan(&r.ID, &r.Ts, &r.RunID, &r.CycleID, &r.PID, &r.Handle, &r.ObjectName, &r.CloseError); err != nil {
			return nil, fmt.Errorf("scan unlock: %w", err)
		}
		u, err := r.toUnlock()
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
