package logbook

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	ts := time.Date(2026, 3, 4, 9, 5, 7, 42_000_000, time.Local)
	assert.Equal(t, "[09:05:07.042] Invalid PID: 12", Format(ts, "Invalid PID: 12"))
}

func TestBook_AddDeduplicatesAndSorts(t *testing.T) {
	b := New()
	ts := time.Date(2026, 3, 4, 10, 0, 0, 0, time.Local)

	added := b.Add(ts, "b", "a")
	assert.Equal(t, []string{"[10:00:00.000] b", "[10:00:00.000] a"}, added)

	added = b.Add(ts, "a")
	assert.Empty(t, added)

	b.Add(ts.Add(-time.Hour), "z")
	assert.Equal(t, []string{
		"[09:00:00.000] z",
		"[10:00:00.000] a",
		"[10:00:00.000] b",
	}, b.Lines())
}

func TestBook_TakeEmpties(t *testing.T) {
	b := New()
	b.Add(time.Now(), "x")

	lines := b.Take()
	assert.Len(t, lines, 1)
	assert.Zero(t, b.Len())
}

func TestSave_MergesWithExistingFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.Local)
	path := filepath.Join(dir, "2026-03-04.txt")
	require.NoError(t, os.WriteFile(path, []byte("[08:00:00.000] old\r\n[10:00:00.000] dup"), 0o644))

	got, err := Save(dir, now, []string{"[10:00:00.000] dup", "[09:00:00.000] new"})
	require.NoError(t, err)
	assert.Equal(t, path, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[08:00:00.000] old\r\n[09:00:00.000] new\r\n[10:00:00.000] dup", string(data))
}

func TestSave_ReplacesFileWhole(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 17, 10, 0, 0, 0, time.Local)
	path := filepath.Join(dir, "2026-10-17.txt")
	require.NoError(t, os.WriteFile(path, []byte("[08:00:00.000] saved earlier"), 0o644))
	before, err := os.Stat(path)
	require.NoError(t, err)

	_, err = Save(dir, now, []string{"[09:00:00.000] new"})
	require.NoError(t, err)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.False(t, os.SameFile(before, after), "daily file is replaced, not truncated in place")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[08:00:00.000] saved earlier\r\n[09:00:00.000] new", string(data))
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs", "nested")
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.Local)

	path, err := Save(dir, now, []string{"line"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line", string(data))
}
