package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/graaaaa/scr-multilauncher/internal/registry"
	"github.com/graaaaa/scr-multilauncher/internal/store"
)

// Record is what one owner step added: new log lines and, for a scan
// cycle, the lock handles removed in it.
type Record struct {
	CycleID string
	At      time.Time
	Lines   []string
	Unlocks []registry.Unlock
}

// Sink receives every Record. Record is called on the owner goroutine and
// must not block for long.
type Sink interface {
	Record(ctx context.Context, rec Record)
}

// HistoryStore defines store operations needed by StoreSink.
type HistoryStore interface {
	InsertLogLines(ctx context.Context, runID string, lines []string, ingestedAt time.Time) (int, error)
	InsertUnlock(ctx context.Context, u *store.Unlock) error
}

// StoreSink persists records to the history database.
type StoreSink struct {
	store  HistoryStore
	runID  string
	logger *slog.Logger
}

// NewStoreSink creates a sink writing rows tagged with runID.
func NewStoreSink(st HistoryStore, runID string, logger *slog.Logger) *StoreSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSink{store: st, runID: runID, logger: logger}
}

// Record implements Sink. Write failures are logged and dropped.
func (s *StoreSink) Record(ctx context.Context, rec Record) {
	for _, u := range rec.Unlocks {
		row := &store.Unlock{
			Ts:         rec.At,
			RunID:      s.runID,
			CycleID:    rec.CycleID,
			PID:        u.Result.Handle.PID,
			Handle:     u.Result.Handle.String(),
			ObjectName: u.Result.ObjectName,
		}
		if u.Result.CloseErr != nil {
			msg := u.Result.CloseErr.Error()
			row.CloseError = &msg
		}
		if err := s.store.InsertUnlock(ctx, row); err != nil {
			s.logger.Error("failed to insert unlock", "pid", row.PID, "error", err)
		}
	}
	if len(rec.Lines) == 0 {
		return
	}
	if _, err := s.store.InsertLogLines(ctx, s.runID, rec.Lines, rec.At); err != nil {
		s.logger.Error("failed to insert log lines", "count", len(rec.Lines), "error", err)
	}
}
