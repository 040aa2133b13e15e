package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSimulationMetrics() {
	r.StepsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "hydronet_steps_total",
			Help: "Total number of extended-period hydraulic steps completed",
		},
	)

	r.StepDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hydronet_step_duration_seconds",
			Help:    "Wall-clock duration of one extended-period step",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1.0, 10.0},
		},
	)

	r.SimClockSeconds = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "hydronet_sim_clock_seconds",
			Help: "Elapsed simulation time of the current run",
		},
	)

	r.TankEventsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "hydronet_tank_events_total",
			Help: "Step-length truncations caused by tank fill/empty events",
		},
	)

	r.ControlActionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydronet_control_actions_total",
			Help: "Link state changes applied by controls and rules",
		},
		[]string{"source"},
	)

	r.WarningsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "hydronet_warnings_total",
			Help: "Recoverable warnings accumulated across the run",
		},
	)
}

func (r *Registry) initQualityMetrics() {
	r.QualStepsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "hydronet_quality_steps_total",
			Help: "Total number of water-quality transport steps",
		},
	)

	r.QualSegments = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "hydronet_quality_segments",
			Help: "Current number of live pipe/tank segments",
		},
	)

	r.MassBalanceError = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "hydronet_quality_mass_balance_error",
			Help: "Relative constituent mass-balance error of the run",
		},
	)

	r.SourceMassTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "hydronet_quality_source_mass_total",
			Help: "Constituent mass injected by external sources (mg)",
		},
	)
}
