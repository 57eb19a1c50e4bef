// Package logging builds the process-wide diagnostic logger.
//
// Diagnostic logs are separate from the timestamped lines shown to the
// user (see package logbook). They go to stderr and to a size-rotated file
// in the data directory.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation settings for the diagnostic log file.
const (
	MaxSizeMB  = 10
	MaxBackups = 3
	MaxAgeDays = 28
)

// Options configures Setup.
type Options struct {
	// Level is one of debug, info, warn or error. Anything else means info.
	Level string
	// FilePath is the diagnostic log file. Empty disables file output.
	FilePath string
	// Console receives human-oriented output. Nil means os.Stderr.
	Console *os.File
}

// ParseLevel maps a config level name to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup creates the logger described by opts and installs it as the slog
// default. The returned closer flushes and closes the log file.
//
// A terminal console gets text output; anything else (a pipe, a service
// log collector) gets JSON.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	level := new(slog.LevelVar)
	level.Set(ParseLevel(opts.Level))
	hopts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if isTerminal(console) {
		handlers = append(handlers, slog.NewTextHandler(console, hopts))
	} else {
		handlers = append(handlers, slog.NewJSONHandler(console, hopts))
	}

	var closer io.Closer = nopCloser{}
	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o700); err != nil {
			return nil, nil, err
		}
		file := NewRotatingFile(opts.FilePath)
		handlers = append(handlers, slog.NewJSONHandler(file, hopts))
		closer = file
	}

	logger := slog.New(fanout(handlers))
	slog.SetDefault(logger)
	return logger, closer, nil
}

// NewRotatingFile returns a writer that rotates path by size.
func NewRotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    MaxSizeMB,
		MaxBackups: MaxBackups,
		MaxAge:     MaxAgeDays,
		Compress:   true,
	}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fanout sends every record to all handlers.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
