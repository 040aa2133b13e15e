package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for a simulation process
type Registry struct {
	// Hydraulic solver metrics
	HydSolvesTotal        *prometheus.CounterVec
	HydIterations         prometheus.Histogram
	HydRelativeError      prometheus.Gauge
	HydStatusChangesTotal prometheus.Counter
	FactorizationsTotal   prometheus.Counter
	ConvergenceFailures   prometheus.Counter

	// Simulation metrics
	StepsTotal          prometheus.Counter
	StepDuration        prometheus.Histogram
	SimClockSeconds     prometheus.Gauge
	TankEventsTotal     prometheus.Counter
	ControlActionsTotal *prometheus.CounterVec
	WarningsTotal       prometheus.Counter

	// Water quality metrics
	QualStepsTotal       prometheus.Counter
	QualSegments         prometheus.Gauge
	MassBalanceError     prometheus.Gauge
	SourceMassTotal      prometheus.Counter

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initHydraulicMetrics()
	r.initSimulationMetrics()
	r.initQualityMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
