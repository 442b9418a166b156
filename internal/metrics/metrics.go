package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Evaluation outcomes used as the status label.
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// Provider metrics
	fetchesTotal  *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	barsFetched   *prometheus.CounterVec

	// Evaluation metrics
	evaluationsTotal     *prometheus.CounterVec
	evaluationDuration   prometheus.Histogram
	evaluationsInFlight  prometheus.Gauge
	optimizationsTotal   *prometheus.CounterVec
	optimizationDuration prometheus.Histogram
	bestScore            prometheus.Gauge
	tradesTotal          *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		fetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendguard_provider_fetches_total",
				Help: "Total number of history fetches",
			},
			[]string{"provider", "status"},
		),

		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trendguard_provider_fetch_duration_seconds",
				Help:    "History fetch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),

		barsFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendguard_provider_bars_total",
				Help: "Total number of bars returned by providers",
			},
			[]string{"provider"},
		),
	}

	reg.MustRegister(r.fetchesTotal)
	reg.MustRegister(r.fetchDuration)
	reg.MustRegister(r.barsFetched)

	// Evaluation metrics
	r.evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendguard_evaluations_total",
			Help: "Total number of parameter evaluations",
		},
		[]string{"status"},
	)
	r.evaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trendguard_evaluation_duration_seconds",
			Help:    "Single evaluation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
	)
	r.evaluationsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trendguard_evaluations_in_flight",
			Help: "Number of evaluations currently running",
		},
	)
	r.optimizationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendguard_optimizations_total",
			Help: "Total number of optimizer runs",
		},
		[]string{"status"},
	)
	r.optimizationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trendguard_optimization_duration_seconds",
			Help:    "Optimizer run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 900},
		},
	)
	r.bestScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trendguard_best_score",
			Help: "Objective score of the best configuration of the last optimizer run",
		},
	)
	r.tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendguard_trades_total",
			Help: "Total number of simulated trades",
		},
		[]string{"direction", "outcome"},
	)

	reg.MustRegister(r.evaluationsTotal)
	reg.MustRegister(r.evaluationDuration)
	reg.MustRegister(r.evaluationsInFlight)
	reg.MustRegister(r.optimizationsTotal)
	reg.MustRegister(r.optimizationDuration)
	reg.MustRegister(r.bestScore)
	reg.MustRegister(r.tradesTotal)

	return r
}

// RecordFetch records metrics for a provider fetch.
func (r *Registry) RecordFetch(provider string, bars int, err error, duration float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.fetchesTotal.WithLabelValues(provider, status).Inc()
	r.fetchDuration.WithLabelValues(provider).Observe(duration)
	r.barsFetched.WithLabelValues(provider).Add(float64(bars))
}

// InFlightInc increments running evaluations.
func (r *Registry) InFlightInc() {
	r.evaluationsInFlight.Inc()
}

// InFlightDec decrements running evaluations.
func (r *Registry) InFlightDec() {
	r.evaluationsInFlight.Dec()
}

// RecordEvaluation records a finished evaluation.
func (r *Registry) RecordEvaluation(status string, duration float64) {
	r.evaluationsTotal.WithLabelValues(status).Inc()
	r.evaluationDuration.Observe(duration)
}

// RecordOptimization records an optimizer run completion.
func (r *Registry) RecordOptimization(status string, duration float64) {
	r.optimizationsTotal.WithLabelValues(status).Inc()
	r.optimizationDuration.Observe(duration)
}

// SetBestScore sets the best objective score.
func (r *Registry) SetBestScore(score float64) {
	r.bestScore.Set(score)
}

// RecordTrade records a closed trade.
func (r *Registry) RecordTrade(direction string, win bool) {
	outcome := "loss"
	if win {
		outcome = "win"
	}
	r.tradesTotal.WithLabelValues(direction, outcome).Inc()
}

// WriteTextfile writes every gathered metric to path in the text exposition
// format, for node_exporter's textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.Registry); err != nil {
		return fmt.Errorf("metrics: write textfile: %w", err)
	}
	return nil
}
