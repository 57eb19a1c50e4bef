// Package metrics exposes scan and unlock counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scrml"

// Unlock and termination outcome labels.
const (
	ResultOK         = "ok"
	ResultCloseError = "close_error"
	ResultFailed     = "failed"
)

// Metrics holds the collectors for one process. Use New rather than the
// global registry so tests can create independent instances.
type Metrics struct {
	reg *prometheus.Registry

	Cycles        prometheus.Counter
	CycleDuration prometheus.Histogram
	Tracked       prometheus.Gauge
	Discovered    prometheus.Counter
	InvalidPIDs   prometheus.Counter
	Unlocks       *prometheus.CounterVec
	Terminations  *prometheus.CounterVec
	Launches      *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		Cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_cycles_total",
			Help:      "Completed scan-and-unlock cycles.",
		}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_cycle_duration_seconds",
			Help:      "Wall time of one scan-and-unlock cycle.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		Tracked: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_processes",
			Help:      "Target processes currently tracked.",
		}),
		Discovered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovered_processes_total",
			Help:      "Target processes seen for the first time.",
		}),
		InvalidPIDs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_pids_total",
			Help:      "Tracked processes pruned because they could not be opened.",
		}),
		Unlocks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unlocks_total",
			Help:      "Lock handle removals by result.",
		}, []string{"result"}),
		Terminations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminations_total",
			Help:      "Process terminations by result.",
		}, []string{"result"}),
		Launches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launches_total",
			Help:      "Executable launches by architecture and result.",
		}, []string{"arch", "result"}),
	}
}

// ObserveCycle records one finished cycle.
func (m *Metrics) ObserveCycle(d time.Duration, tracked int) {
	m.Cycles.Inc()
	m.CycleDuration.Observe(d.Seconds())
	m.Tracked.Set(float64(tracked))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
