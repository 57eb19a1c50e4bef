package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpen_AppliesPragmas(t *testing.T) {
	// Characters that must survive URL escaping in the DSN.
	dbPath := filepath.Join(t.TempDir(), "my history #1?.sqlite")

	st, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database file not created: %v", err)
	}

	for pragma, want := range map[string]string{
		"journal_mode": "wal",
		"busy_timeout": "5000",
		"synchronous":  "1",
	} {
		got, err := st.pragma(pragma)
		if err != nil {
			t.Fatalf("PRAGMA %s: %v", pragma, err)
		}
		if got != want {
			t.Errorf("%s = %q, want %q", pragma, got, want)
		}
	}
}

func TestOpen_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.sqlite")
	ctx := context.Background()

	st, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.StartRun(ctx, "run-1", "dev", time.Now()); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	st.Close()

	st, err = Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	n, err := st.CountRuns(ctx)
	if err != nil {
		t.Fatalf("CountRuns: %v", err)
	}
	if n != 1 {
		t.Errorf("runs = %d, want 1", n)
	}
}

func TestStartRun_Duplicate(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()
	ctx := context.Background()

	if err := st.StartRun(ctx, "run-1", "dev", time.Now()); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := st.StartRun(ctx, "run-1", "dev", time.Now()); err == nil {
		t.Error("expected error for duplicate run_id")
	}
	if err := st.StartRun(ctx, "", "dev", time.Now()); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestInsertLogLines_Dedupe(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()

	ctx := context.Background()
	now := time.Now()

	lines := []string{
		"[10:00:00.000] Launched C:/Games/StarCraft.exe (PID: 100)",
		"[10:00:01.500] Closed 0x1A4 for starcraft.exe (PID: 100)",
	}

	n, err := st.InsertLogLines(ctx, "run-1", lines, now)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if n != 2 {
		t.Errorf("first insert = %d, want 2", n)
	}

	// Saving the same book again from another run adds nothing.
	n, err = st.InsertLogLines(ctx, "run-2", append(lines, "", lines[0]), now)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if n != 0 {
		t.Errorf("second insert = %d, want 0", n)
	}

	count, err := st.CountLogLines(ctx)
	if err != nil {
		t.Fatalf("CountLogLines: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestInsertLogLines_Validation(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()

	_, err := st.InsertLogLines(context.Background(), "", []string{"x"}, time.Now())
	if !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord, got %v", err)
	}

	n, err := st.InsertLogLines(context.Background(), "run-1", nil, time.Now())
	if err != nil || n != 0 {
		t.Errorf("empty insert = (%d, %v), want (0, nil)", n, err)
	}
}

func TestQueryLogLines_Pagination(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()

	ctx := context.Background()
	base := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		line := fmt.Sprintf("[10:00:0%d.000] line %d", i, i)
		if _, err := st.InsertLogLines(ctx, "run-1", []string{line}, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	page1, err := st.QueryLogLines(ctx, LineFilter{Limit: 2})
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page1.Items) != 2 {
		t.Fatalf("page 1 len = %d, want 2", len(page1.Items))
	}
	if page1.NextCursor == nil {
		t.Fatal("expected next cursor on page 1")
	}

	page2, err := st.QueryLogLines(ctx, LineFilter{Limit: 2, Cursor: page1.NextCursor})
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	page3, err := st.QueryLogLines(ctx, LineFilter{Limit: 2, Cursor: page2.NextCursor})
	if err != nil {
		t.Fatalf("page 3: %v", err)
	}
	if len(page3.Items) != 1 {
		t.Errorf("page 3 len = %d, want 1", len(page3.Items))
	}
	if page3.NextCursor != nil {
		t.Error("expected no cursor on last page")
	}

	var got []string
	for _, p := range []LineResult{page1, page2, page3} {
		for _, l := range p.Items {
			got = append(got, l.Line)
		}
	}
	for i, line := range got {
		want := fmt.Sprintf("[10:00:0%d.000] line %d", i, i)
		if line != want {
			t.Errorf("line %d = %q, want %q", i, line, want)
		}
	}
}

func TestQueryLogLines_Contains(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()

	ctx := context.Background()
	lines := []string{
		"[10:00:00.000] Invalid PID: 42",
		"[10:00:01.000] Closed 0x1A4 for starcraft.exe (PID: 100)",
		"[10:00:02.000] Invalid PID: 100",
	}
	if _, err := st.InsertLogLines(ctx, "run-1", lines, time.Now()); err != nil {
		t.Fatalf("insert: %v", err)
	}

	needle := "Invalid PID"
	res, err := st.QueryLogLines(ctx, LineFilter{Contains: &needle})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res.Items) != 2 {
		t.Errorf("len = %d, want 2", len(res.Items))
	}
}

func TestQueryLogLines_LimitClamping(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, defaultLimit},
		{-5, defaultLimit},
		{10, 10},
		{maxLimit + 1, maxLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestQueryLogLines_BadCursor(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()

	bad := "not-valid-base64!!!"
	_, err := st.QueryLogLines(context.Background(), LineFilter{Cursor: &bad})
	if !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("expected ErrInvalidCursor, got %v", err)
	}
}

func TestInsertUnlock(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	closeErr := "access denied"

	first := &Unlock{Ts: now.Add(-time.Minute), RunID: "run-1", CycleID: "c1", PID: 100, Handle: "0x1A4", ObjectName: `\Sessions\1\BaseNamedObjects\Starcraft Check For Other Instances`}
	second := &Unlock{Ts: now, RunID: "run-1", CycleID: "c2", PID: 200, Handle: "0x2B8", ObjectName: first.ObjectName, CloseError: &closeErr}

	for _, u := range []*Unlock{first, second} {
		if err := st.InsertUnlock(ctx, u); err != nil {
			t.Fatalf("InsertUnlock: %v", err)
		}
		if u.ID == 0 {
			t.Error("expected ID to be set")
		}
	}

	got, err := st.RecentUnlocks(ctx, now.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("RecentUnlocks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].PID != 200 || got[1].PID != 100 {
		t.Errorf("order = %d,%d, want newest first", got[0].PID, got[1].PID)
	}
	if got[0].CloseError == nil || *got[0].CloseError != closeErr {
		t.Errorf("CloseError = %v, want %q", got[0].CloseError, closeErr)
	}
	if got[1].CloseError != nil {
		t.Errorf("CloseError = %v, want nil", *got[1].CloseError)
	}
	if !got[0].Ts.Equal(now) {
		t.Errorf("Ts = %v, want %v", got[0].Ts, now)
	}
}

func TestInsertUnlock_Validation(t *testing.T) {
	st := openTestStore(t)
	defer st.Close()

	now := time.Now()
	tests := []struct {
		name string
		u    Unlock
	}{
		{"missing pid", Unlock{Ts: now, RunID: "r", Handle: "0x4"}},
		{"missing handle", Unlock{Ts: now, RunID: "r", PID: 1}},
		{"missing run", Unlock{Ts: now, PID: 1, Handle: "0x4"}},
		{"missing ts", Unlock{RunID: "r", PID: 1, Handle: "0x4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := st.InsertUnlock(context.Background(), &tt.u)
			if !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("expected ErrInvalidRecord, got %v", err)
			}
		})
	}
}

func TestParseLineCursor_Invalid(t *testing.T) {
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }
	tests := []struct {
		name   string
		cursor string
	}{
		{"not base64", "not-valid-base64!!!"},
		{"missing separator", enc("notimestamp")},
		{"bad timestamp", enc("yesterday|123")},
		{"bad id", enc("2026-10-17T12:00:00.000000000Z|x")},
		{"negative id", enc("2026-10-17T12:00:00.000000000Z|-1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseLineCursor(tt.cursor); !errors.Is(err, ErrInvalidCursor) {
				t.Errorf("expected ErrInvalidCursor, got %v", err)
			}
		})
	}
}

func TestLineCursor_StringParses(t *testing.T) {
	want := lineCursor{At: time.Date(2026, 10, 17, 21, 4, 5, 6, time.UTC), ID: 42}

	got, err := parseLineCursor(want.String())
	if err != nil {
		t.Fatalf("parseLineCursor: %v", err)
	}
	if !got.At.Equal(want.At) || got.ID != want.ID {
		t.Errorf("got %+v, want %+v", got, want)
	}

	// Padded standard encoding, as re-encoded by some clients.
	std := base64.StdEncoding.EncodeToString([]byte(want.At.Format(TimeFormat) + "|42"))
	if got, err := parseLineCursor(std); err != nil || got.ID != 42 {
		t.Errorf("std encoding: got %+v, %v", got, err)
	}
}

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.sqlite")
	store, err := Open(dbPath, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}
