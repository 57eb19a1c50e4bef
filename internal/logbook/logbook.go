// Package logbook holds the user-facing, timestamped log lines and writes
// them to daily text files.
package logbook

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/graaaaa/scr-multilauncher/internal/atomicfile"
)

// TimeLayout is the timestamp prefix of every line.
const TimeLayout = "15:04:05.000"

// Format prefixes msg with the local time of t.
func Format(t time.Time, msg string) string {
	return fmt.Sprintf("[%s] %s", t.Local().Format(TimeLayout), msg)
}

// Book is a deduplicated, lexically ordered set of log lines.
// It is not safe for concurrent use.
type Book struct {
	lines map[string]struct{}
}

// New creates an empty Book.
func New() *Book {
	return &Book{lines: make(map[string]struct{})}
}

// Add formats msgs with now and adds them. It returns the lines that were
// not already present.
func (b *Book) Add(now time.Time, msgs ...string) []string {
	var added []string
	for _, m := range msgs {
		line := Format(now, m)
		if _, ok := b.lines[line]; ok {
			continue
		}
		b.lines[line] = struct{}{}
		added = append(added, line)
	}
	return added
}

// Len returns the number of lines.
func (b *Book) Len() int {
	return len(b.lines)
}

// Lines returns the lines in order.
func (b *Book) Lines() []string {
	out := make([]string, 0, len(b.lines))
	for l := range b.lines {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}

// Take returns the lines in order and empties the book.
func (b *Book) Take() []string {
	out := b.Lines()
	b.Clear()
	return out
}

// Clear removes every line.
func (b *Book) Clear() {
	clear(b.lines)
}

// FileName returns the daily log file name for t.
func FileName(t time.Time) string {
	return t.Local().Format("2006-01-02") + ".txt"
}

// Save merges lines into the daily file for now inside dir and rewrites it
// sorted, joined by CRLF. Lines already in the file are kept once.
func Save(dir string, now time.Time, lines []string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, FileName(now))

	merged := make(map[string]struct{}, len(lines))
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	for _, l := range strings.Split(string(existing), "\n") {
		l = strings.TrimRight(l, "\r")
		if l != "" {
			merged[l] = struct{}{}
		}
	}
	for _, l := range lines {
		if l != "" {
			merged[l] = struct{}{}
		}
	}

	out := make([]string, 0, len(merged))
	for l := range merged {
		out = append(out, l)
	}
	slices.Sort(out)

	if err := atomicfile.Write(path, []byte(strings.Join(out, "\r\n")), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
