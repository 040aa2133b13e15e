package config

import "fmt"

// optionsValidator collects cross-field option errors the struct tags
// cannot express, failing with all of them instead of the first.
type optionsValidator struct {
	errors []error
}

func newOptionsValidator() *optionsValidator {
	return &optionsValidator{}
}

// seconds requires a time field to be positive when it is set at all.
func (ov *optionsValidator) seconds(field string, value int64) *optionsValidator {
	if value < 0 {
		ov.errors = append(ov.errors, fmt.Errorf("options.%s: %d seconds is negative", field, value))
	}
	return ov
}

// notAbove requires field to stay at or below the bound when both are set.
func (ov *optionsValidator) notAbove(field string, value int64, boundField string, bound int64) *optionsValidator {
	if value > 0 && bound > 0 && value > bound {
		ov.errors = append(ov.errors, fmt.Errorf("options.%s: %d exceeds %s (%d)", field, value, boundField, bound))
	}
	return ov
}

// above requires value to exceed bound.
func (ov *optionsValidator) above(field string, value float64, boundField string, bound float64) *optionsValidator {
	if value <= bound {
		ov.errors = append(ov.errors, fmt.Errorf("options.%s: %v must exceed %s (%v)", field, value, boundField, bound))
	}
	return ov
}

// required requires a string field to be set.
func (ov *optionsValidator) required(field, value string) *optionsValidator {
	if value == "" {
		ov.errors = append(ov.errors, fmt.Errorf("options.%s: field is required", field))
	}
	return ov
}

// when applies checks only if the condition holds.
func (ov *optionsValidator) when(condition bool, checks func(*optionsValidator)) *optionsValidator {
	if condition {
		checks(ov)
	}
	return ov
}

func (ov *optionsValidator) validate() error {
	switch len(ov.errors) {
	case 0:
		return nil
	case 1:
		return ov.errors[0]
	default:
		return fmt.Errorf("%d option errors, first: %w", len(ov.errors), ov.errors[0])
	}
}

// checkOptions runs the cross-field checks over the run options.
func checkOptions(o *RunOptions) error {
	return newOptionsValidator().
		seconds("duration", o.Duration).
		seconds("hydraulic_step", o.HydStep).
		notAbove("hydraulic_step", o.HydStep, "duration", o.Duration).
		notAbove("quality.step", o.Quality.Step, "hydraulic_step", o.HydStep).
		when(o.DemandModel == "pda" && o.RequiredPressure != 0, func(ov *optionsValidator) {
			ov.above("required_pressure", o.RequiredPressure, "minimum_pressure", o.MinPressure)
		}).
		when(o.Quality.Mode == "trace", func(ov *optionsValidator) {
			ov.required("quality.trace_node", o.Quality.TraceNode)
		}).
		validate()
}
