package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initHydraulicMetrics() {
	r.HydSolvesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydronet_hyd_solves_total",
			Help: "Total number of steady-state hydraulic solves",
		},
		[]string{"status"},
	)

	r.HydIterations = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hydronet_hyd_iterations",
			Help:    "Gradient iterations per hydraulic solve",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
	)

	r.HydRelativeError = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "hydronet_hyd_relative_flow_error",
			Help: "Relative flow change at the end of the last hydraulic solve",
		},
	)

	r.HydStatusChangesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "hydronet_hyd_status_changes_total",
			Help: "Total number of link status transitions during solves",
		},
	)

	r.FactorizationsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "hydronet_factorizations_total",
			Help: "Total number of numeric matrix factorizations",
		},
	)

	r.ConvergenceFailures = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "hydronet_convergence_failures_total",
			Help: "Hydraulic solves that hit the trial limit without converging",
		},
	)
}
