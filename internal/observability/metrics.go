// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "waybar_location"

// Metrics holds the Prometheus counters, histograms and gauges of the location pipeline.
type Metrics struct {
	Runs             *prometheus.CounterVec // labels: outcome={resolved,unresolved,denied,acquisition_error,geocoding_error}
	RunDuration      prometheus.Histogram
	RunInProgress    prometheus.Gauge
	RejectedTriggers prometheus.Counter
	StageTransitions *prometheus.CounterVec // labels: stage

	// Provider metrics.
	AcquisitionDuration *prometheus.HistogramVec // labels: provider
	GeocodeRequests     *prometheus.CounterVec   // labels: provider, outcome={success,error,empty}
}

// NewMetrics creates all pipeline metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := NewMetricsForTesting()
	reg.MustRegister(
		m.Runs,
		m.RunDuration,
		m.RunInProgress,
		m.RejectedTriggers,
		m.StageTransitions,
		m.AcquisitionDuration,
		m.GeocodeRequests,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already registered" panics when
// called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed location runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete permission, position and address run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RunInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_in_progress",
			Help:      "1 while a location run is active, 0 otherwise.",
		}),
		RejectedTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_triggers_total",
			Help:      "Run triggers ignored because a run was already active.",
		}),
		StageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "State transitions by target stage.",
		}, []string{"stage"}),
		AcquisitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "acquisition_duration_seconds",
			Help:      "Time needed to obtain a position fix.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
	}
}
