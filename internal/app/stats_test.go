package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/graaaaa/scr-multilauncher/internal/store"
)

type stubStatsStore struct {
	since, until time.Time
	result       store.UnlockStats
	err          error
}

func (s *stubStatsStore) UnlockStats(_ context.Context, since, until time.Time) (store.UnlockStats, error) {
	s.since, s.until = since, until
	return s.result, s.err
}

func TestStatsService_Stats(t *testing.T) {
	last := time.Date(2026, 10, 17, 3, 0, 0, 0, time.UTC)
	now := time.Date(2026, 10, 17, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		day     time.Time
		wantDay string
	}{
		{"zero day is today", time.Time{}, "2026-10-17"},
		{"explicit day", time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC), "2026-10-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubStatsStore{result: store.UnlockStats{
				Unlocks: 4, PIDs: 3, TotalUnlocks: 10, StoredLines: 25, LastUnlockAt: &last,
			}}
			svc := NewStatsService(stub)
			svc.now = func() time.Time { return now }

			got, err := svc.Stats(context.Background(), tt.day)
			if err != nil {
				t.Fatalf("Stats: %v", err)
			}
			if got.Day != tt.wantDay {
				t.Errorf("Day = %q, want %q", got.Day, tt.wantDay)
			}
			if got.Unlocks != 4 || got.PIDs != 3 || got.TotalUnlocks != 10 || got.StoredLines != 25 {
				t.Errorf("counts = %+v", got)
			}
			if got.LastUnlockAt == nil || !got.LastUnlockAt.Equal(last) {
				t.Errorf("LastUnlockAt = %v, want %v", got.LastUnlockAt, last)
			}
			if stub.since.Format(DayLayout) != tt.wantDay || stub.until.Sub(stub.since) != 24*time.Hour {
				t.Errorf("window = [%v, %v)", stub.since, stub.until)
			}
		})
	}
}

func TestStatsService_StoreError(t *testing.T) {
	boom := errors.New("database error")
	svc := NewStatsService(&stubStatsStore{err: boom})

	if _, err := svc.Stats(context.Background(), time.Time{}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}
