package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/graaaaa/scr-multilauncher/internal/config"
	"github.com/graaaaa/scr-multilauncher/internal/metrics"
	"github.com/graaaaa/scr-multilauncher/internal/registry"
	"github.com/graaaaa/scr-multilauncher/internal/sysapi"
)

// Snapshot is a point-in-time view of the engine for display.
type Snapshot struct {
	Target        string                  `json:"target"`
	Processes     []registry.ProcessEntry `json:"processes"`
	Lines         []string                `json:"lines"`
	CycleInFlight bool                    `json:"cycle_in_flight"`
	KillPending   bool                    `json:"kill_pending"`
	Cycles        uint64                  `json:"cycles"`
	LastCycleID   string                  `json:"last_cycle_id,omitempty"`
	LastCycleAt   *time.Time              `json:"last_cycle_at,omitempty"`
}

// LaunchResult describes a started executable.
type LaunchResult struct {
	Arch string `json:"arch"`
	Path string `json:"path"`
	PID  uint32 `json:"pid"`
}

// SaveResult describes a saved log file.
type SaveResult struct {
	Path  string `json:"path"`
	Lines int    `json:"lines"`
}

// do runs f on the owner goroutine.
func (e *Engine) do(ctx context.Context, f func(context.Context)) error {
	select {
	case e.cmds <- f:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// await waits for a reply sent by the owner or a helper goroutine.
func await[T any](ctx context.Context, done <-chan struct{}, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-done:
		// Run may have answered just before returning.
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrStopped
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Snapshot returns the tracked processes and the current log lines.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	err := e.do(ctx, func(context.Context) {
		s := Snapshot{
			Target:        e.cfg.TargetExe,
			Processes:     slices.Clone(e.entries),
			Lines:         e.book.Lines(),
			CycleInFlight: e.inFlight() && !e.killing,
			KillPending:   e.killing || len(e.kills) > 0,
			Cycles:        e.cycles,
			LastCycleID:   e.lastCycleID,
		}
		if !e.lastCycleAt.IsZero() {
			at := e.lastCycleAt
			s.LastCycleAt = &at
		}
		reply <- s
	})
	if err != nil {
		return Snapshot{}, err
	}
	return await(ctx, e.done, reply)
}

// KillAll terminates every tracked process on a worker goroutine. While a
// cycle is in flight the kill waits for it to finish and no new cycle
// starts in between. It returns the emitted log messages.
func (e *Engine) KillAll(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	err := e.do(ctx, func(ctx context.Context) {
		e.kills = append(e.kills, reply)
		if e.inFlight() {
			e.logger.Debug("kill-all deferred until the registry returns")
			return
		}
		e.startKill(ctx)
	})
	if err != nil {
		return nil, err
	}
	return await(ctx, e.done, reply)
}

type launchReply struct {
	res LaunchResult
	err error
}

// Launch starts the executable configured for arch ("32" or "64") and
// tracks the new process.
func (e *Engine) Launch(ctx context.Context, arch string) (LaunchResult, error) {
	reply := make(chan launchReply, 1)
	err := e.do(ctx, func(ctx context.Context) {
		path, err := e.cfg.ExecutablePath(arch)
		if err != nil {
			reply <- launchReply{err: err}
			return
		}
		if path == "" {
			e.countLaunch(arch, metrics.ResultFailed)
			e.emit(ctx, "", fmt.Sprintf("No executable configured for %s-bit", arch))
			reply <- launchReply{err: fmt.Errorf("%s-bit: %w", arch, sysapi.ErrNoExecutable)}
			return
		}

		args := slices.Clone(e.cfg.LaunchArgs)
		go func() {
			pid, err := e.launch(path, args...)
			e.post(func(ctx context.Context) {
				e.launched(ctx, arch, path, pid, err, reply)
			})
		}()
	})
	if err != nil {
		return LaunchResult{}, err
	}
	r, err := await(ctx, e.done, reply)
	if err != nil {
		return LaunchResult{}, err
	}
	return r.res, r.err
}

func (e *Engine) launched(ctx context.Context, arch, path string, pid uint32, err error, reply chan<- launchReply) {
	if pid == 0 {
		e.countLaunch(arch, metrics.ResultFailed)
		e.logger.Warn("launch failed", "arch", arch, "path", path, "error", err)
		e.emit(ctx, "", fmt.Sprintf("Failed to launch %s: %v", path, err))
		reply <- launchReply{err: err}
		return
	}
	if err != nil {
		e.logger.Warn("launch completed with error", "pid", pid, "error", err)
	}

	entry := registry.NewEntry(pid)
	if e.inFlight() {
		e.pending = append(e.pending, entry)
	} else {
		e.reg.Merge(entry)
		e.entries = e.reg.Entries()
	}
	e.countLaunch(arch, metrics.ResultOK)
	e.emit(ctx, "", fmt.Sprintf("Launched %s (PID: %d)", path, pid))
	reply <- launchReply{res: LaunchResult{Arch: arch, Path: path, PID: pid}}
}

func (e *Engine) countLaunch(arch, result string) {
	if e.metrics != nil {
		e.metrics.Launches.WithLabelValues(arch, result).Inc()
	}
}

type saveReply struct {
	res SaveResult
	err error
}

// SaveLogs moves the current log lines into the daily file. The book is
// emptied even if writing fails; the failure becomes a log line.
func (e *Engine) SaveLogs(ctx context.Context) (SaveResult, error) {
	reply := make(chan saveReply, 1)
	err := e.do(ctx, func(context.Context) {
		dir, err := config.LogDir(e.cfg)
		if err != nil {
			reply <- saveReply{err: err}
			return
		}
		lines := e.book.Take()
		now := e.clock.Now()
		go func() {
			path, err := e.save(dir, now, lines)
			e.post(func(ctx context.Context) {
				if err != nil {
					e.logger.Error("saving logs failed", "dir", dir, "error", err)
					e.emit(ctx, "", err.Error())
					reply <- saveReply{err: err}
					return
				}
				e.logger.Info("logs saved", "path", path, "lines", len(lines))
				reply <- saveReply{res: SaveResult{Path: path, Lines: len(lines)}}
			})
		}()
	})
	if err != nil {
		return SaveResult{}, err
	}
	r, err := await(ctx, e.done, reply)
	if err != nil {
		return SaveResult{}, err
	}
	return r.res, r.err
}

// ClearLogs discards the current log lines.
func (e *Engine) ClearLogs(ctx context.Context) error {
	reply := make(chan struct{}, 1)
	err := e.do(ctx, func(context.Context) {
		e.book.Clear()
		reply <- struct{}{}
	})
	if err != nil {
		return err
	}
	_, err = await(ctx, e.done, reply)
	return err
}

// UpdateConfig replaces the configuration. Tracked processes are kept.
// While a cycle is in flight the new config is applied when it returns.
func (e *Engine) UpdateConfig(ctx context.Context, cfg config.Config) error {
	reply := make(chan struct{}, 1)
	err := e.do(ctx, func(context.Context) {
		if e.inFlight() {
			e.pendingCfg = &cfg
		} else {
			e.applyConfig(cfg)
		}
		reply <- struct{}{}
	})
	if err != nil {
		return err
	}
	_, err = await(ctx, e.done, reply)
	return err
}

// Config returns the configuration in use.
func (e *Engine) Config(ctx context.Context) (config.Config, error) {
	reply := make(chan config.Config, 1)
	err := e.do(ctx, func(context.Context) {
		if e.pendingCfg != nil {
			reply <- *e.pendingCfg
			return
		}
		reply <- e.cfg
	})
	if err != nil {
		return config.Config{}, err
	}
	return await(ctx, e.done, reply)
}
