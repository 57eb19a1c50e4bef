// Package engine runs the periodic scan-and-unlock loop and serializes
// every user command against it.
//
// One goroutine (Run) owns the registry and the logbook and makes no OS
// calls itself. On each tick the registry is handed to a worker goroutine
// that scans, prunes and unlocks, then hands it back; kill-all borrows it
// the same way. Commands arriving from the API or the CLI are queued
// to the owner and answered when done; kill-all issued while a cycle is in
// flight waits for that cycle to come back.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/graaaaa/scr-multilauncher/internal/config"
	"github.com/graaaaa/scr-multilauncher/internal/handles"
	"github.com/graaaaa/scr-multilauncher/internal/logbook"
	"github.com/graaaaa/scr-multilauncher/internal/metrics"
	"github.com/graaaaa/scr-multilauncher/internal/procscan"
	"github.com/graaaaa/scr-multilauncher/internal/registry"
	"github.com/graaaaa/scr-multilauncher/internal/sysapi"
)

var (
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("engine already running")

	// ErrStopped is returned by commands issued after Run has returned.
	ErrStopped = errors.New("engine stopped")
)

// Launcher starts an executable and returns its PID.
type Launcher func(path string, args ...string) (uint32, error)

// SaveFunc writes lines to the daily log file in dir.
type SaveFunc func(dir string, now time.Time, lines []string) (string, error)

// Engine coordinates scanning, unlocking and user commands.
type Engine struct {
	sys       sysapi.System
	logger    *slog.Logger
	clock     Clock
	newTicker TickerFunc
	launch    Launcher
	save      SaveFunc
	metrics   *metrics.Metrics
	sinks     []Sink
	newID     func() string
	startup   []string

	cmds      chan func(context.Context)
	posts     chan func(context.Context)
	cycleDone chan cycleResult
	killDone  chan killResult
	done      chan struct{}
	running   atomic.Bool

	// Owned by the Run goroutine.
	cfg         config.Config
	reg         *registry.Registry // nil while a cycle or kill has it
	scanner     *procscan.Scanner
	book        *logbook.Book
	ticker      Ticker
	kills       []chan []string
	killing     bool
	pending     []registry.ProcessEntry
	pendingCfg  *config.Config
	entries     []registry.ProcessEntry
	cycles      uint64
	lastCycleID string
	lastCycleAt time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the clock (for testing).
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithTicker sets the tick source (for testing).
func WithTicker(f TickerFunc) Option {
	return func(e *Engine) { e.newTicker = f }
}

// WithLauncher replaces sysapi.Launch.
func WithLauncher(l Launcher) Option {
	return func(e *Engine) { e.launch = l }
}

// WithSaveFunc replaces logbook.Save.
func WithSaveFunc(f SaveFunc) Option {
	return func(e *Engine) { e.save = f }
}

// WithMetrics records cycle and command outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSinks adds record sinks.
func WithSinks(sinks ...Sink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, sinks...) }
}

// WithStartupMessages adds log lines emitted when Run starts.
func WithStartupMessages(msgs ...string) Option {
	return func(e *Engine) { e.startup = append(e.startup, msgs...) }
}

// WithIDFunc sets the cycle ID generator (for testing).
func WithIDFunc(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

// New creates an Engine for cfg. Call Run to start it.
func New(sys sysapi.System, cfg config.Config, opts ...Option) *Engine {
	e := &Engine{
		sys:       sys,
		logger:    slog.Default(),
		clock:     realClock{},
		newTicker: newTimeTicker,
		launch:    sysapi.Launch,
		save:      logbook.Save,
		newID:     uuid.NewString,
		cmds:      make(chan func(context.Context)),
		posts:     make(chan func(context.Context)),
		cycleDone: make(chan cycleResult, 1),
		killDone:  make(chan killResult, 1),
		done:      make(chan struct{}),
		cfg:       cfg,
		book:      logbook.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.scanner = e.newScanner(cfg)
	e.reg = registry.New(sys, e.newInspector(cfg), e.registryOptions(cfg)...)
	return e
}

func (e *Engine) newScanner(cfg config.Config) *procscan.Scanner {
	return procscan.New(e.sys,
		procscan.WithTarget(cfg.TargetExe),
		procscan.WithLogger(e.logger),
	)
}

func (e *Engine) newInspector(cfg config.Config) *handles.Inspector {
	return handles.NewInspector(e.sys,
		handles.WithSignature(cfg.LockSignature),
		handles.WithSkipTypes(cfg.SkipTypes...),
		handles.WithLogger(e.logger),
	)
}

func (e *Engine) registryOptions(cfg config.Config) []registry.Option {
	return []registry.Option{
		registry.WithTarget(cfg.TargetExe),
		registry.WithMaxAttempts(cfg.MaxInspectAttempts),
		registry.WithConcurrency(cfg.InspectConcurrency),
		registry.WithLogger(e.logger),
	}
}

// Run drives the engine until ctx is cancelled. It returns ctx.Err().
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(e.done)

	e.ticker = e.newTicker(e.cfg.ScanInterval())
	defer func() { e.ticker.Stop() }()

	e.logger.Info("engine started",
		"target", e.cfg.TargetExe,
		"interval", e.cfg.ScanInterval(),
	)
	defer e.logger.Info("engine stopped")

	e.entries = e.reg.Entries()
	e.emit(ctx, "", e.startup...)

	for {
		select {
		case <-ctx.Done():
			if e.reg == nil {
				// Workers honour ctx between steps.
				select {
				case res := <-e.cycleDone:
					e.reg = res.reg
				case res := <-e.killDone:
					e.reg = res.reg
					answer(res.callers, res.msgs)
				}
			}
			answer(e.kills, nil)
			e.kills = nil
			return ctx.Err()
		case <-e.ticker.C():
			e.startCycle(ctx)
		case res := <-e.cycleDone:
			e.finishCycle(ctx, res)
		case res := <-e.killDone:
			e.finishKill(ctx, res)
		case f := <-e.posts:
			f(ctx)
		case f := <-e.cmds:
			f(ctx)
		}
	}
}

// Done is closed when Run returns.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

func (e *Engine) inFlight() bool {
	return e.reg == nil
}

// emit adds msgs to the logbook and forwards the new lines to the sinks.
func (e *Engine) emit(ctx context.Context, cycleID string, msgs ...string) {
	e.record(ctx, cycleID, msgs, nil)
}

func (e *Engine) record(ctx context.Context, cycleID string, msgs []string, unlocks []registry.Unlock) {
	if len(msgs) == 0 && len(unlocks) == 0 {
		return
	}
	now := e.clock.Now()
	added := e.book.Add(now, msgs...)
	if len(added) == 0 && len(unlocks) == 0 {
		return
	}
	rec := Record{CycleID: cycleID, At: now, Lines: added, Unlocks: unlocks}
	for _, s := range e.sinks {
		s.Record(ctx, rec)
	}
}

// post queues f to run on the owner goroutine. It is used by helper
// goroutines and gives up once Run has returned.
func (e *Engine) post(f func(context.Context)) {
	select {
	case e.posts <- f:
	case <-e.done:
	}
}

// applyConfig rebuilds the config-derived components. The registry and
// its entries are kept.
func (e *Engine) applyConfig(cfg config.Config) {
	old := e.cfg
	e.cfg = cfg
	e.scanner = e.newScanner(cfg)
	e.reg.Configure(append(e.registryOptions(cfg), registry.WithInspector(e.newInspector(cfg)))...)

	if cfg.ScanInterval() != old.ScanInterval() {
		e.ticker.Stop()
		e.ticker = e.newTicker(cfg.ScanInterval())
	}
	e.logger.Info("config applied",
		"target", cfg.TargetExe,
		"interval", cfg.ScanInterval(),
		"max_inspect_attempts", cfg.MaxInspectAttempts,
	)
}
