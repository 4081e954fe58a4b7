package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wonny/aegis-defense/internal/contracts"
)

// Run outcomes
const (
	OutcomeSuccess = "success" // saved, possibly with per-security errors
	OutcomeFailed  = "failed"  // load, benchmark or save failure
	OutcomeSkipped = "skipped" // another run holds the lock
)

// Registry holds all drawdown defense Prometheus metrics
// ⭐ SSOT: 메트릭 이름/라벨은 여기서만 정의
type Registry struct {
	registry *prometheus.Registry

	TickersProcessed        prometheus.Gauge
	TickersSkipped          prometheus.Gauge
	BenchmarkDrawdownMonths prometheus.Gauge
	RunErrors               prometheus.Gauge
	LastRunTimestamp        prometheus.Gauge
	ClassCount              *prometheus.GaugeVec
	SkipCount               *prometheus.GaugeVec
	Runs                    *prometheus.CounterVec
	RunDuration             prometheus.Histogram
}

// NewRegistry creates an isolated registry with all defense metrics
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		TickersProcessed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "defense_tickers_processed",
			Help: "Securities classified in the last run",
		}),
		TickersSkipped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "defense_tickers_skipped",
			Help: "Securities skipped or failed in the last run",
		}),
		BenchmarkDrawdownMonths: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "defense_benchmark_drawdown_months",
			Help: "Benchmark months flagged as drawdown in the last run",
		}),
		RunErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "defense_run_errors",
			Help: "Error messages recorded in the last run",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "defense_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run",
		}),
		ClassCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "defense_class_securities",
			Help: "Securities per defense class in the last run",
		}, []string{"class"}),
		SkipCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "defense_skip_securities",
			Help: "Skipped securities per reason in the last run",
		}, []string{"reason"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "defense_runs_total",
			Help: "Backtest runs by outcome",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "defense_run_duration_seconds",
			Help:    "Wall time of a full backtest run including data loading",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
	}

	r.registry.MustRegister(
		r.TickersProcessed,
		r.TickersSkipped,
		r.BenchmarkDrawdownMonths,
		r.RunErrors,
		r.LastRunTimestamp,
		r.ClassCount,
		r.SkipCount,
		r.Runs,
		r.RunDuration,
	)
	return r
}

// ObserveResult publishes the aggregate counts of a finished run
func (r *Registry) ObserveResult(result *contracts.BacktestResult, elapsed time.Duration) {
	r.TickersProcessed.Set(float64(result.TickersProcessed))
	r.TickersSkipped.Set(float64(result.TickersSkipped))
	r.BenchmarkDrawdownMonths.Set(float64(result.BenchmarkDrawdownMonths))
	r.RunErrors.Set(float64(len(result.Errors)))
	r.LastRunTimestamp.Set(float64(result.RunDate.Unix()))

	for class, n := range result.ClassCounts() {
		r.ClassCount.WithLabelValues(string(class)).Set(float64(n))
	}

	r.SkipCount.Reset()
	for _, reason := range result.Skipped {
		r.SkipCount.WithLabelValues(string(reason)).Inc()
	}

	r.RunDuration.Observe(elapsed.Seconds())
}

// ObserveRun counts a run outcome
func (r *Registry) ObserveRun(outcome string) {
	r.Runs.WithLabelValues(outcome).Inc()
}

// Gatherer exposes the underlying registry
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the registry in Prometheus text format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
