// Package observability wires Prometheus metrics for the planning service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters, histograms, and gauges exposed on /metrics.
type Metrics struct {
	CoolingCentersAdded prometheus.Counter
	ParkConversions     prometheus.Counter
	SessionResets       prometheus.Counter

	ParkApplyDuration  prometheus.Histogram
	PrecomputeDuration prometheus.Histogram

	CumulativeCoolingArea   prometheus.Gauge
	CumulativeHeatReduction prometheus.Gauge
	AffectedCells           prometheus.Gauge
}

// NewMetrics creates and registers all service metrics with the default registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		CoolingCentersAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "heatplan",
			Name:      "cooling_centers_added_total",
			Help:      "Total cooling centers committed across all sessions.",
		}),
		ParkConversions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "heatplan",
			Name:      "park_conversions_total",
			Help:      "Total park conversions committed across all sessions.",
		}),
		SessionResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "heatplan",
			Name:      "session_resets_total",
			Help:      "Total session resets.",
		}),
		ParkApplyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "heatplan",
			Name:      "park_apply_duration_seconds",
			Help:      "Duration of a park conversion commit including its neighbor scan.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		PrecomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "heatplan",
			Name:      "grid_impact_precompute_duration_seconds",
			Help:      "Duration of the pairwise grid impact precompute.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		CumulativeCoolingArea: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "heatplan",
			Name:      "cumulative_cooling_area_m2",
			Help:      "Running total of park areas of influence in the active session.",
		}),
		CumulativeHeatReduction: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "heatplan",
			Name:      "cumulative_heat_reduction",
			Help:      "Running total of heat-index reduction in the active session.",
		}),
		AffectedCells: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "heatplan",
			Name:      "affected_cells",
			Help:      "Distinct grid cells touched by any intervention.",
		}),
	}

	prometheus.MustRegister(
		m.CoolingCentersAdded,
		m.ParkConversions,
		m.SessionResets,
		m.ParkApplyDuration,
		m.PrecomputeDuration,
		m.CumulativeCoolingArea,
		m.CumulativeHeatReduction,
		m.AffectedCells,
	)
	return m
}
