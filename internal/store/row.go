package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// LogLine is a stored user-facing log line.
type LogLine struct {
	ID         int64     `json:"id"`
	Line       string    `json:"line"`
	RunID      string    `json:"run_id"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Unlock is a stored lock handle removal.
type Unlock struct {
	ID         int64     `json:"id"`
	Ts         time.Time `json:"ts"`
	RunID      string    `json:"run_id"`
	CycleID    string    `json:"cycle_id"`
	PID        uint32    `json:"pid"`
	Handle     string    `json:"handle"`
	ObjectName string    `json:"object_name"`
	CloseError *string   `json:"close_error,omitempty"`
}

// unlockRow is the internal type representing an unlocks row.
type unlockRow struct {
	ID         int64
	Ts         string
	RunID      string
	CycleID    string
	PID        int64
	Handle     string
	ObjectName string
	CloseError sql.NullString
}

// toUnlock converts a database row to an Unlock.
func (r *unlockRow) toUnlock() (*Unlock, error) {
	ts, err := time.Parse(TimeFormat, r.Ts)
	if err != nil {
		return nil, fmt.Errorf("parse ts %q: %w", r.Ts, err)
	}
	u := &Unlock{
		ID:         r.ID,
		Ts:         ts,
		RunID:      r.RunID,
		CycleID:    r.CycleID,
		PID:        uint32(r.PID),
		Handle:     r.Handle,
		ObjectName: r.ObjectName,
	}
	if r.CloseError.Valid {
		u.CloseError = &r.CloseError.String
	}
	return u, nil
}

// unlockToRow converts an Unlock to a database row.
func unlockToRow(u *Unlock) *unlockRow {
	r := &unlockRow{
		ID:         u.ID,
		Ts:         u.Ts.UTC().Format(TimeFormat),
		RunID:      u.RunID,
		CycleID:    u.CycleID,
		PID:        int64(u.PID),
		Handle:     u.Handle,
		ObjectName: u.ObjectName,
	}
	if u.CloseError != nil {
		r.CloseError = sql.NullString{String: *u.CloseError, Valid: true}
	}
	return r
}

// validateUnlock checks that required fields are set.
func validateUnlock(u *Unlock) error {
	if u.PID == 0 {
		return fmt.Errorf("%w: pid is required", ErrInvalidRecord)
	}
	if u.Handle == "" {
		return fmt.Errorf("%w: handle is required", ErrInvalidRecord)
	}
	if u.RunID == "" {
		return fmt.Errorf("%w: run_id is required", ErrInvalidRecord)
	}
	if u.Ts.IsZero() {
		return fmt.Errorf("%w: ts is required", ErrInvalidRecord)
	}
	return nil
}

// sha256Hex returns the SHA256 hash of the input string as a hex string.
func sha256Hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
