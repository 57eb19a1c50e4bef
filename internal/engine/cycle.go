package engine

import (
	"context"
	"time"

	"github.com/graaaaa/scr-multilauncher/internal/metrics"
	"github.com/graaaaa/scr-multilauncher/internal/procscan"
	"github.com/graaaaa/scr-multilauncher/internal/registry"
)

// cycleResult hands the registry back to the owner.
type cycleResult struct {
	id         string
	reg        *registry.Registry
	msgs       []string
	unlocks    []registry.Unlock
	discovered int
	pruned     int
	elapsed    time.Duration
}

// startCycle hands the registry to a worker unless it is already out or
// a kill is waiting for it.
func (e *Engine) startCycle(ctx context.Context) {
	if e.inFlight() || len(e.kills) > 0 {
		return
	}
	reg, scanner := e.reg, e.scanner
	e.reg = nil
	id := e.newID()

	go func() {
		e.cycleDone <- runCycle(ctx, id, reg, scanner, e.clock)
	}()
}

// runCycle scans, merges, prunes and inspects. It owns reg until it
// returns.
func runCycle(ctx context.Context, id string, reg *registry.Registry, scanner *procscan.Scanner, clock Clock) cycleResult {
	start := clock.Now()
	res := cycleResult{id: id, reg: reg}

	found := scanner.Scan(ctx)
	before := reg.Len()
	reg.Observe(found...)
	res.discovered = reg.Len() - before

	if ctx.Err() == nil {
		res.msgs = reg.Prune(ctx)
		res.pruned = len(res.msgs)
	}
	if ctx.Err() == nil {
		msgs, unlocks := reg.ProcessUnprocessed(ctx)
		res.msgs = append(res.msgs, msgs...)
		res.unlocks = unlocks
	}
	res.elapsed = clock.Now().Sub(start)
	return res
}

// takeBack returns the registry to the owner and applies everything that
// queued up while it was out.
func (e *Engine) takeBack(reg *registry.Registry) {
	e.reg = reg
	if len(e.pending) > 0 {
		e.reg.Merge(e.pending...)
		e.pending = nil
	}
	if e.pendingCfg != nil {
		e.applyConfig(*e.pendingCfg)
		e.pendingCfg = nil
	}
	e.entries = e.reg.Entries()
}

// finishCycle takes the registry back, records the cycle and starts a
// deferred kill.
func (e *Engine) finishCycle(ctx context.Context, res cycleResult) {
	e.takeBack(res.reg)

	e.cycles++
	e.lastCycleID = res.id
	e.lastCycleAt = e.clock.Now()

	if m := e.metrics; m != nil {
		m.ObserveCycle(res.elapsed, e.reg.Len())
		m.Discovered.Add(float64(res.discovered))
		m.InvalidPIDs.Add(float64(res.pruned))
		for _, u := range res.unlocks {
			if u.Result.CloseErr != nil {
				m.Unlocks.WithLabelValues(metrics.ResultCloseError).Inc()
			} else {
				m.Unlocks.WithLabelValues(metrics.ResultOK).Inc()
			}
		}
	}
	if len(res.msgs) > 0 || res.discovered > 0 {
		e.logger.Debug("cycle finished",
			"cycle_id", res.id,
			"tracked", e.reg.Len(),
			"discovered", res.discovered,
			"lines", len(res.msgs),
			"elapsed", res.elapsed,
		)
	}
	e.record(ctx, res.id, res.msgs, res.unlocks)

	e.startKill(ctx)
}

// killResult hands the registry back after a kill-all.
type killResult struct {
	reg     *registry.Registry
	msgs    []string
	failed  int
	callers []chan []string
}

// startKill hands the registry to a worker that terminates every tracked
// process, answering the kill requests queued so far. Requests arriving
// while it runs are served by the next kill.
func (e *Engine) startKill(ctx context.Context) {
	if e.inFlight() || len(e.kills) == 0 {
		return
	}
	reg, callers := e.reg, e.kills
	e.reg, e.kills = nil, nil
	e.killing = true

	go func() {
		msgs, failed := reg.TerminateAll(ctx)
		e.killDone <- killResult{reg: reg, msgs: msgs, failed: failed, callers: callers}
	}()
}

func (e *Engine) finishKill(ctx context.Context, res killResult) {
	e.killing = false
	e.takeBack(res.reg)

	if m := e.metrics; m != nil {
		m.Terminations.WithLabelValues(metrics.ResultOK).Add(float64(len(res.msgs) - res.failed))
		m.Terminations.WithLabelValues(metrics.ResultFailed).Add(float64(res.failed))
	}
	e.logger.Info("kill-all finished", "messages", len(res.msgs), "failed", res.failed, "remaining", e.reg.Len())
	e.emit(ctx, "", res.msgs...)
	answer(res.callers, res.msgs)

	e.startKill(ctx)
}

func answer(callers []chan []string, msgs []string) {
	for _, reply := range callers {
		reply <- msgs
	}
}
