package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/graaaaa/scr-multilauncher/internal/handles"
	"github.com/graaaaa/scr-multilauncher/internal/sysapi"
)

const (
	// DefaultMaxAttempts is how many cycles an entry is inspected before
	// it is given up on.
	DefaultMaxAttempts = 20

	// DefaultConcurrency bounds parallel inspections.
	DefaultConcurrency = 4

	// TerminateExitCode is the exit code given to killed processes.
	TerminateExitCode = 1
)

// Inspector looks for and removes the lock handle in one process.
type Inspector interface {
	Inspect(ctx context.Context, pid uint32) (*handles.UnlockResult, error)
}

// Unlock pairs an unlock result with the message that was emitted for it.
type Unlock struct {
	Result  handles.UnlockResult
	Message string
}

// Registry is the set of tracked target processes.
//
// A Registry is not safe for concurrent use. It is owned by one goroutine
// at a time; ProcessUnprocessed parallelizes inspections internally but
// only mutates entries after they have all finished.
type Registry struct {
	sys         sysapi.System
	inspector   Inspector
	target      string
	maxAttempts int
	concurrency int
	logger      *slog.Logger

	entries map[uint32]*ProcessEntry
	listed  map[uint32]struct{} // PIDs reported by the latest Observe
}

// Option configures a Registry.
type Option func(*Registry)

// WithTarget sets the executable name used in log lines.
func WithTarget(name string) Option {
	return func(r *Registry) {
		if name != "" {
			r.target = name
		}
	}
}

// WithMaxAttempts sets how many result-less inspections an entry gets
// before it is marked processed. 0 retries forever.
func WithMaxAttempts(n int) Option {
	return func(r *Registry) {
		if n >= 0 {
			r.maxAttempts = n
		}
	}
}

// WithConcurrency bounds the number of parallel inspections.
func WithConcurrency(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithInspector replaces the inspector used by ProcessUnprocessed.
func WithInspector(i Inspector) Option {
	return func(r *Registry) {
		if i != nil {
			r.inspector = i
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates an empty Registry.
func New(sys sysapi.System, inspector Inspector, opts ...Option) *Registry {
	r := &Registry{
		sys:         sys,
		inspector:   inspector,
		target:      "starcraft.exe",
		maxAttempts: DefaultMaxAttempts,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
		entries:     make(map[uint32]*ProcessEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Configure applies opts to an existing registry. Tracked entries are kept.
func (r *Registry) Configure(opts ...Option) {
	for _, opt := range opts {
		opt(r)
	}
}

// Len returns the number of tracked entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Entries returns a PID-ordered snapshot of the tracked entries.
func (r *Registry) Entries() []ProcessEntry {
	out := make([]ProcessEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	SortEntries(out)
	return out
}

// Observe merges the entries found by a process scan and remembers their
// PIDs as running until the next call.
func (r *Registry) Observe(found ...ProcessEntry) {
	r.listed = make(map[uint32]struct{}, len(found))
	for _, e := range found {
		r.listed[e.PID] = struct{}{}
	}
	r.Merge(found...)
}

// Merge adds entries that are not tracked yet. Entries already tracked are
// left as they are, so a rediscovered process is never reset to
// unprocessed.
func (r *Registry) Merge(entries ...ProcessEntry) {
	for _, e := range entries {
		if e.PID == 0 {
			continue
		}
		if _, ok := r.entries[e.PID]; ok {
			continue
		}
		entry := e
		r.entries[e.PID] = &entry
	}
}

func (r *Registry) sortedPIDs() []uint32 {
	pids := make([]uint32, 0, len(r.entries))
	for pid := range r.entries {
		pids = append(pids, pid)
	}
	slices.Sort(pids)
	return pids
}

// Prune removes every entry whose process can no longer be opened and
// returns one message per removed entry. An unprocessed entry that the
// latest scan still listed is running but closed to us (an elevated
// client, say); it is kept and left to ProcessUnprocessed to retry.
func (r *Registry) Prune(ctx context.Context) []string {
	var msgs []string
	for _, pid := range r.sortedPIDs() {
		if ctx.Err() != nil {
			break
		}
		h, err := sysapi.OpenProcess(r.sys, pid)
		if err != nil {
			if _, running := r.listed[pid]; running && !r.entries[pid].Processed {
				r.logger.Debug("process listed but not openable", "pid", pid, "error", err)
				continue
			}
			r.logger.Debug("pruning process", "pid", pid, "error", err)
			delete(r.entries, pid)
			msgs = append(msgs, fmt.Sprintf("Invalid PID: %d", pid))
			continue
		}
		if err := h.Close(); err != nil {
			r.logger.Debug("process handle release failed", "pid", pid, "error", err)
		}
	}
	return msgs
}

type inspection struct {
	pid    uint32
	result *handles.UnlockResult
	err    error
}

// ProcessUnprocessed inspects every unprocessed entry. Successful unlocks
// mark the entry processed and produce a message. Entries without a result
// count an attempt and are marked processed once the attempt limit is
// reached. A definitive unlock failure marks the entry processed at once.
func (r *Registry) ProcessUnprocessed(ctx context.Context) ([]string, []Unlock) {
	var pending []uint32
	for _, pid := range r.sortedPIDs() {
		if !r.entries[pid].Processed {
			pending = append(pending, pid)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	results := make([]inspection, len(pending))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for idx, pid := range pending {
		g.Go(func() error {
			res, err := r.inspector.Inspect(ctx, pid)
			results[idx] = inspection{pid: pid, result: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var msgs []string
	var unlocks []Unlock
	for _, in := range results {
		entry, ok := r.entries[in.pid]
		if !ok {
			continue
		}
		switch {
		case in.result != nil:
			entry.Processed = true
			msg := in.result.Message(r.target)
			msgs = append(msgs, msg)
			unlocks = append(unlocks, Unlock{Result: *in.result, Message: msg})
		case errors.Is(in.err, handles.ErrUnlockFailed):
			entry.Processed = true
			r.logger.Warn("unlock failed", "pid", in.pid, "error", in.err)
			msgs = append(msgs, fmt.Sprintf("Failed to close lock for %s (PID: %d)", r.target, in.pid))
		case errors.Is(in.err, sysapi.ErrProcessUnavailable),
			errors.Is(in.err, context.Canceled),
			errors.Is(in.err, context.DeadlineExceeded):
			// Pruned or retried on a later cycle without using an attempt.
		default:
			if in.err != nil {
				r.logger.Debug("inspection failed", "pid", in.pid, "error", in.err)
			}
			entry.Attempts++
			if r.maxAttempts > 0 && entry.Attempts >= r.maxAttempts {
				entry.Processed = true
				r.logger.Info("giving up on process", "pid", in.pid, "attempts", entry.Attempts)
			}
		}
	}
	return msgs, unlocks
}

// TerminateAll kills every tracked process. Terminated entries and entries
// that can no longer be opened are removed; entries that fail to terminate
// stay tracked for a later attempt. failed counts those entries.
func (r *Registry) TerminateAll(ctx context.Context) (msgs []string, failed int) {
	for _, pid := range r.sortedPIDs() {
		if ctx.Err() != nil {
			break
		}
		h, err := sysapi.OpenProcess(r.sys, pid)
		if err != nil {
			delete(r.entries, pid)
			continue
		}
		err = r.sys.TerminateProcess(h.Raw(), TerminateExitCode)
		if cerr := h.Close(); cerr != nil {
			r.logger.Debug("process handle release failed", "pid", pid, "error", cerr)
		}
		if err != nil {
			r.logger.Warn("terminate failed", "pid", pid, "error", err)
			msgs = append(msgs, fmt.Sprintf("Failed to terminate process with PID %d", pid))
			failed++
			continue
		}
		delete(r.entries, pid)
		msgs = append(msgs, fmt.Sprintf("Successfully terminated process with PID %d", pid))
	}
	return msgs, failed
}
