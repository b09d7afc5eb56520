// Package metrics exposes batch progress as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Recorder counts simulation runs. Each Recorder owns its registry so
// several can live in one process (tests, repeated batches).
type Recorder struct {
	reg *prometheus.Registry

	runs     *prometheus.CounterVec
	trades   *prometheus.CounterVec
	blocked  *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	equity   *prometheus.GaugeVec
	duration *prometheus.HistogramVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barsim_runs_total",
				Help: "Simulation runs by outcome",
			},
			[]string{"status"},
		),
		trades: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barsim_trades_total",
				Help: "Completed trades by pair and exit reason",
			},
			[]string{"pair", "reason"},
		),
		blocked: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barsim_blocked_entries_total",
				Help: "Entry intents rejected by the risk manager, by code",
			},
			[]string{"pair", "code"},
		),
		skipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barsim_skipped_inputs_total",
				Help: "Batch pairs skipped because an input table is missing",
			},
			[]string{"pair"},
		),
		equity: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "barsim_final_equity",
				Help: "Final ledger equity of the last run per pair",
			},
			[]string{"pair"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "barsim_run_duration_seconds",
				Help:    "Wall time of one simulation run",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
	}
}

// RecordRun records a finished run and its wall time.
func (r *Recorder) RecordRun(status string, seconds float64) {
	r.runs.WithLabelValues(status).Inc()
	r.duration.WithLabelValues(status).Observe(seconds)
}

func (r *Recorder) RecordTrade(pair, reason string) {
	r.trades.WithLabelValues(pair, reason).Inc()
}

func (r *Recorder) RecordBlocked(pair, code string, n int) {
	r.blocked.WithLabelValues(pair, code).Add(float64(n))
}

func (r *Recorder) RecordSkipped(pair string) {
	r.skipped.WithLabelValues(pair).Inc()
}

func (r *Recorder) RecordEquity(pair string, equity float64) {
	r.equity.WithLabelValues(pair).Set(equity)
}

// Gatherer exposes the registry, mostly for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
