// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the engine's metrics. Construct one per app instance with
// its own registry so tests stay isolated.
type Collector struct {
	ExecutionsTotal   *prometheus.CounterVec
	FailuresTotal     *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	LeasesInUse       prometheus.Gauge
}

// NewCollector registers the engine collectors on the given registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		ExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "compobuild_included_build_executions_total",
				Help: "Total number of included build execution cycles",
			},
			[]string{"build"},
		),
		FailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "compobuild_included_build_failures_total",
				Help: "Total number of failed included build execution cycles",
			},
			[]string{"build"},
		),
		ExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "compobuild_included_build_execution_duration_seconds",
				Help:    "Included build execution duration in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"build"},
		),
		LeasesInUse: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "compobuild_worker_leases_in_use",
				Help: "Worker leases currently held against the global pool",
			},
		),
	}
}
