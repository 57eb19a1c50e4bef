package store

import (
	"context"
	"testing"
	"time"
)

func insertTestUnlock(t *testing.T, st *Store, ts time.Time, pid uint32) {
	t.Helper()
	u := &Unlock{
		Ts:         ts,
		RunID:      "run-1",
		CycleID:    "cycle",
		PID:        pid,
		Handle:     "0x1A4",
		ObjectName: "Starcraft Check For Other Instances",
	}
	if err := st.InsertUnlock(context.Background(), u); err != nil {
		t.Fatalf("InsertUnlock: %v", err)
	}
}

func TestUnlockStats_Empty(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()

	since, until := DayBounds(time.Now())
	got, err := st.UnlockStats(context.Background(), since, until)
	if err != nil {
		t.Fatalf("UnlockStats: %v", err)
	}
	if got != (UnlockStats{}) {
		t.Errorf("stats = %+v, want zero value", got)
	}
}

func TestUnlockStats_Counts(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()
	ctx := context.Background()

	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	since, until := DayBounds(now)

	insertTestUnlock(t, st, now.Add(-time.Hour), 100)
	insertTestUnlock(t, st, now, 100)
	insertTestUnlock(t, st, now.Add(time.Minute), 200)
	insertTestUnlock(t, st, now.Add(-24*time.Hour), 300)
	if err := st.StartRun(ctx, "run-1", "dev", now); err != nil {
		t.Fatal(err)
	}
	if _, err := st.InsertLogLines(ctx, "run-1", []string{"a", "b"}, now); err != nil {
		t.Fatal(err)
	}

	got, err := st.UnlockStats(ctx, since, until)
	if err != nil {
		t.Fatalf("UnlockStats: %v", err)
	}
	if got.Unlocks != 3 || got.PIDs != 2 || got.TotalUnlocks != 4 || got.StoredLines != 2 {
		t.Errorf("stats = %+v, want 3 unlocks, 2 pids, 4 total, 2 lines", got)
	}
	if got.LastUnlockAt == nil || !got.LastUnlockAt.Equal(now.Add(time.Minute)) {
		t.Errorf("LastUnlockAt = %v, want %v", got.LastUnlockAt, now.Add(time.Minute))
	}
}

func TestDayBounds(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	start, end := DayBounds(time.Date(2026, 10, 17, 23, 59, 0, 0, jst))

	if want := time.Date(2026, 10, 17, 0, 0, 0, 0, jst); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
	if end.Sub(start) != 24*time.Hour {
		t.Errorf("day length = %v, want 24h", end.Sub(start))
	}
}
