// Package observability provides the gateway's Prometheus metrics and
// structured-logging setup.
//
// The Metrics struct follows internal/observability/metrics.go's shape: a
// plain struct of promauto-registered vectors built once in a constructor,
// with labels documented alongside each field.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	// ExecutionsTotal counts non-cached executions that reach pool
	// dispatch, by language and outcome (success|user-program-nonzero|
	// timeout|spawn-failed|circuit-open|unsupported). Cache hits and
	// admission-time rejections are not counted.
	ExecutionsTotal *prometheus.CounterVec

	// ExecutionDuration measures Execute latency in seconds, excluding
	// cache hits.
	// Labels: language
	ExecutionDuration *prometheus.HistogramVec

	// CacheHitsTotal and CacheMissesTotal count result-cache lookups.
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// CircuitState is a gauge of 0 (closed), 1 (half_open), 2 (open),
	// per language.
	CircuitState *prometheus.GaugeVec

	// ActiveExecutions tracks in-flight executions per language.
	ActiveExecutions *prometheus.GaugeVec

	// SpawnedTotal counts executions per language whose interpreter
	// process was started (spawn failures excluded).
	SpawnedTotal *prometheus.CounterVec
}

// NewMetrics registers and returns the gateway's metric collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		ExecutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "execgw_executions_total",
				Help: "Total number of non-cached executions by language and outcome",
			},
			[]string{"language", "outcome"},
		),

		ExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "execgw_execution_duration_seconds",
				Help:    "Duration of non-cached Execute calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"language"},
		),

		CacheHitsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "execgw_cache_hits_total",
				Help: "Total number of result cache hits",
			},
		),

		CacheMissesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "execgw_cache_misses_total",
				Help: "Total number of result cache misses",
			},
		),

		CircuitState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "execgw_circuit_state",
				Help: "Circuit breaker state per language: 0=closed 1=half_open 2=open",
			},
			[]string{"language"},
		),

		ActiveExecutions: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "execgw_active_executions",
				Help: "Current in-flight executions per language",
			},
			[]string{"language"},
		),

		SpawnedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "execgw_spawned_total",
				Help: "Total number of interpreter process spawns per language",
			},
			[]string{"language"},
		),
	}
}
