// Package procscan enumerates running processes and picks out instances of
// the target executable.
package procscan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/graaaaa/scr-multilauncher/internal/ntbuf"
	"github.com/graaaaa/scr-multilauncher/internal/registry"
	"github.com/graaaaa/scr-multilauncher/internal/sysapi"
)

// DefaultTarget is the executable name of StarCraft: Remastered.
const DefaultTarget = "starcraft.exe"

// The process list grows between the size probe and the real call, so
// every retry asks for some headroom.
const listSlack = 64 * 1024

// Scanner finds target processes in the system process list.
type Scanner struct {
	sys       sysapi.System
	target    string
	logger    *slog.Logger
	queryOpts []ntbuf.Option
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithTarget sets the executable name to match (case-insensitive).
func WithTarget(name string) Option {
	return func(s *Scanner) {
		if name != "" {
			s.target = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithQueryOptions overrides the buffer negotiation options.
func WithQueryOptions(opts ...ntbuf.Option) Option {
	return func(s *Scanner) {
		s.queryOpts = append(s.queryOpts, opts...)
	}
}

// New creates a Scanner.
func New(sys sysapi.System, opts ...Option) *Scanner {
	s := &Scanner{
		sys:       sys,
		target:    DefaultTarget,
		logger:    slog.Default(),
		queryOpts: []ntbuf.Option{ntbuf.WithInitialSize(256 * 1024), ntbuf.WithSlack(listSlack)},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Target returns the executable name being matched.
func (s *Scanner) Target() string {
	return s.target
}

// Scan returns an unprocessed entry for every running target process.
// Enumeration and decoding failures are logged and yield an empty result;
// the next cycle simply tries again.
func (s *Scanner) Scan(ctx context.Context) []registry.ProcessEntry {
	if ctx.Err() != nil {
		return nil
	}
	buf, err := ntbuf.Query(s.sys.QueryProcessList, s.queryOpts...)
	if err != nil {
		s.logger.Warn("process enumeration failed", "error", err)
		return nil
	}
	entries, err := ParseProcessList(ntbuf.NewReader(buf), s.target)
	if err != nil {
		s.logger.Warn("process list decode failed", "error", err)
		return nil
	}
	return entries
}

// ParseProcessList walks a SYSTEM_PROCESS_INFORMATION chain and returns the
// processes whose image name equals target, ignoring case. Each PID is
// returned once.
func ParseProcessList(r *ntbuf.Reader, target string) ([]registry.ProcessEntry, error) {
	layout := sysapi.ProcessInfoLayoutFor(r.PointerSize())
	var out []registry.ProcessEntry
	seen := make(map[uint32]bool)

	off := 0
	for {
		if _, err := r.Slice(off, layout.MinSize); err != nil {
			return nil, fmt.Errorf("process record at %d: %w", off, err)
		}
		next, err := r.Uint32(off + layout.NextEntryOffset)
		if err != nil {
			return nil, err
		}
		pid, err := r.Pointer(off + layout.UniqueProcessID)
		if err != nil {
			return nil, err
		}
		name, err := r.UnicodeString(off + layout.ImageName)
		if err != nil {
			return nil, fmt.Errorf("image name of pid %d: %w", pid, err)
		}

		if pid != 0 && name != "" && strings.EqualFold(name, target) && !seen[uint32(pid)] {
			seen[uint32(pid)] = true
			out = append(out, registry.NewEntry(uint32(pid)))
		}

		if next == 0 {
			break
		}
		off += int(next)
	}
	return out, nil
}
