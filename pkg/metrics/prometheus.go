package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	simulations    *prometheus.CounterVec
	pathsSimulated prometheus.Counter
	providerErrors *prometheus.CounterVec
	lastQuote      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		simulations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricing_simulations_total",
				Help: "Total number of Monte Carlo simulation runs",
			},
			[]string{"status"},
		),
		pathsSimulated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pricing_paths_simulated_total",
				Help: "Total number of simulated price paths",
			},
		),
		providerErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricing_provider_errors_total",
				Help: "Total number of upstream provider failures",
			},
			[]string{"provider"},
		),
		lastQuote: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricing_last_quote",
				Help: "Last computed futures price per contract",
			},
			[]string{"contract", "currency"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricing_operation_duration_seconds",
				Help:    "Duration of pricing operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordSimulation records one simulation run outcome.
func (r *Recorder) RecordSimulation(status string, paths int) {
	r.simulations.WithLabelValues(status).Inc()
	if paths > 0 {
		r.pathsSimulated.Add(float64(paths))
	}
}

// RecordProviderError records an upstream provider failure.
func (r *Recorder) RecordProviderError(provider string) {
	r.providerErrors.WithLabelValues(provider).Inc()
}

// RecordQuote records the last computed futures price for a contract.
func (r *Recorder) RecordQuote(contract, currency string, price float64) {
	r.lastQuote.WithLabelValues(contract, currency).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
