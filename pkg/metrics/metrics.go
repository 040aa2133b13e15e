package metrics

import (
	"time"
)

// RecordHydSolve records the outcome of one steady-state hydraulic solve
func (r *Registry) RecordHydSolve(converged bool, iterations int, relErr float64) {
	status := "converged"
	if !converged {
		status = "unbalanced"
		r.ConvergenceFailures.Inc()
	}
	r.HydSolvesTotal.WithLabelValues(status).Inc()
	r.HydIterations.Observe(float64(iterations))
	r.HydRelativeError.Set(relErr)
}

// RecordStep records a completed extended-period step
func (r *Registry) RecordStep(clock int64, duration time.Duration) {
	r.StepsTotal.Inc()
	r.StepDuration.Observe(duration.Seconds())
	r.SimClockSeconds.Set(float64(clock))
}

// RecordControlAction records a link state change by its source ("control" or "rule")
func (r *Registry) RecordControlAction(source string, n int) {
	if n > 0 {
		r.ControlActionsTotal.WithLabelValues(source).Add(float64(n))
	}
}

// RecordQualityStep records one transport step and the live segment count
func (r *Registry) RecordQualityStep(segments int) {
	r.QualStepsTotal.Inc()
	r.QualSegments.Set(float64(segments))
}
