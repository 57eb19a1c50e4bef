// Package store provides SQLite persistence for the launcher history:
// saved log lines, removed lock handles and launcher runs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

// TimeFormat is a fixed-width UTC layout, so stored timestamps sort
// lexicographically in time order.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

var (
	// ErrInvalidCursor is returned for a history cursor this package did
	// not produce.
	ErrInvalidCursor = errors.New("invalid cursor format")

	ErrInvalidRecord = errors.New("invalid record")
)

// Store is the history database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for maintenance messages.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNow sets the clock used for maintenance scheduling.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// dsn builds the modernc connection string for path. The pragmas are
// applied to every pooled connection.
func dsn(path string) string {
	q := url.Values{}
	q.Set("mode", "rwc")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "synchronous(NORMAL)")
	return "file:" + url.PathEscape(path) + "?" + q.Encode()
}

// Open opens (creating if needed) the database at path and brings its
// schema up to date.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer (the engine) plus a few API readers.
	db.SetMaxOpenConns(4)
	s.db = db

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database %s: %w", path, err)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) pragma(name string) (string, error) {
	var v string
	err := s.db.QueryRow("PRAGMA " + name).Scan(&v)
	return v, err
}
