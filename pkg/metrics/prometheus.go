package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	states     *prometheus.CounterVec
	errors     *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	candidates prometheus.Histogram
	excluded   prometheus.Counter
	cycles     prometheus.Counter
}

// New registers the admission metrics on prometheus.DefaultRegisterer.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg. Tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		states: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admission_evaluations_total",
				Help: "Evaluations by terminal state and action",
			},
			[]string{"state", "action"},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admission_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "admission_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 0.9, 1, 2.5},
			},
			[]string{"operation"},
		),
		candidates: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "admission_cycle_candidates",
			Help:    "Candidates considered per cycle",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		excluded: f.NewCounter(prometheus.CounterOpts{
			Name: "admission_cycle_excluded_total",
			Help: "Tickers dropped because the cycle deadline passed before their data arrived",
		}),
		cycles: f.NewCounter(prometheus.CounterOpts{
			Name: "admission_cycles_total",
			Help: "Completed admission cycles",
		}),
	}
}

func (r *Recorder) RecordState(state, action string) {
	r.states.WithLabelValues(state, action).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errors.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordCycle(candidates, excluded int) {
	r.cycles.Inc()
	r.candidates.Observe(float64(candidates))
	r.excluded.Add(float64(excluded))
}
