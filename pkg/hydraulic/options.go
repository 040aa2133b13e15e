package hydraulic

// HeadlossForm selects the pipe friction headloss law
type HeadlossForm int

const (
	// HazenWilliams: h = r·q^1.852 with r from the C-factor
	HazenWilliams HeadlossForm = iota
	// DarcyWeisbach: h = f·r·q² with a Reynolds-dependent friction factor
	DarcyWeisbach
	// ChezyManning: h = r·q² with r from Manning's n
	ChezyManning
)

// DemandModel selects how junction demands respond to pressure
type DemandModel int

const (
	// DemandDriven junctions draw their full demand at any pressure
	DemandDriven DemandModel = iota
	// PressureDriven junction demand scales between zero at MinPressure
	// and the full demand at RequiredPressure
	PressureDriven
)

// Options configures a hydraulic solver
type Options struct {
	Headloss HeadlossForm

	// Trials caps the gradient iterations of one steady-state solve.
	Trials int
	// Accuracy is the convergence limit on the ratio of total absolute
	// flow change to total absolute flow.
	Accuracy float64
	// HeadError, when positive, additionally requires every link's
	// head-balance error to fall below it (ft).
	HeadError float64
	// FlowChange, when positive, additionally requires every link's
	// flow change to fall below it (cfs).
	FlowChange float64
	// AllowUnbalanced accepts a non-converged solve with a warning
	// instead of failing the step.
	AllowUnbalanced bool

	Demand DemandModel
	// MinPressure is the pressure head below which a pressure-driven
	// junction delivers no demand (ft).
	MinPressure float64
	// RequiredPressure is the pressure head at which a pressure-driven
	// junction delivers its full demand (ft).
	RequiredPressure float64
	// PressureExponent is the exponent of the pressure-demand relation.
	PressureExponent float64

	// EmitterExponent is the pressure exponent of junction emitters.
	EmitterExponent float64
	// DemandMultiplier scales every junction demand.
	DemandMultiplier float64
	// Viscosity is the kinematic viscosity (ft²/s), Darcy-Weisbach only.
	Viscosity float64
	// SpecificGravity scales the energy calculation for non-water fluids.
	SpecificGravity float64
	// Efficiency is the global pump efficiency (percent) used when a
	// pump has no efficiency curve.
	Efficiency float64
}

// DefaultOptions returns the solver defaults
func DefaultOptions() Options {
	return Options{
		Headloss:         HazenWilliams,
		Trials:           80,
		Accuracy:         0.001,
		HeadError:        0,
		FlowChange:       0,
		AllowUnbalanced:  true,
		Demand:           DemandDriven,
		MinPressure:      0,
		RequiredPressure: 0.1,
		PressureExponent: 0.5,
		EmitterExponent:  0.5,
		DemandMultiplier: 1.0,
		Viscosity:        1.1e-5,
		SpecificGravity:  1.0,
		Efficiency:       75.0,
	}
}
