package network

import "math"

// NodeType identifies the kind of a network node
type NodeType int

const (
	// Junction is a demand-bearing node with no storage
	Junction NodeType = iota
	// Reservoir is a storage node with fixed head
	Reservoir
	// Tank is a storage node whose head varies with stored volume
	TankNode
)

// String returns the string representation of a node type
func (t NodeType) String() string {
	switch t {
	case Junction:
		return "junction"
	case Reservoir:
		return "reservoir"
	case TankNode:
		return "tank"
	default:
		return "unknown"
	}
}

// LinkType identifies the kind of a network link
type LinkType int

const (
	// CVPipe is a pipe with a check valve preventing reverse flow
	CVPipe LinkType = iota
	// Pipe is an ordinary pipe
	Pipe
	// PumpLink adds head between its end nodes
	PumpLink
	// PRV is a pressure reducing valve (limits downstream pressure)
	PRV
	// PSV is a pressure sustaining valve (maintains upstream pressure)
	PSV
	// PBV is a pressure breaker valve (fixed head drop)
	PBV
	// FCV is a flow control valve (limits flow to its setting)
	FCV
	// TCV is a throttle control valve (adjustable minor loss)
	TCV
	// GPV is a general purpose valve (headloss from a curve)
	GPV
)

// String returns the string representation of a link type
func (t LinkType) String() string {
	switch t {
	case CVPipe:
		return "cvpipe"
	case Pipe:
		return "pipe"
	case PumpLink:
		return "pump"
	case PRV:
		return "prv"
	case PSV:
		return "psv"
	case PBV:
		return "pbv"
	case FCV:
		return "fcv"
	case TCV:
		return "tcv"
	case GPV:
		return "gpv"
	default:
		return "unknown"
	}
}

// IsValve reports whether the link type is one of the valve types
func (t LinkType) IsValve() bool {
	return t >= PRV && t <= GPV
}

// Status is the open/closed/active state of a link
type Status int

const (
	// StatusUnset marks a control or rule action that does not change status
	StatusUnset Status = iota - 1
	// Closed means no flow is allowed through the link
	Closed
	// Open means the link offers no control restriction
	Open
	// Active means a control valve is holding its setting
	Active
)

// String returns the string representation of a link status
func (s Status) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case Active:
		return "active"
	default:
		return "unset"
	}
}

// MixingModel selects how inflow blends with a tank's stored volume
type MixingModel int

const (
	// Mix1 is the complete-mix model
	Mix1 MixingModel = iota
	// Mix2 is the two-compartment model
	Mix2
	// FIFO is the plug-flow model
	FIFO
	// LIFO is the stacked-plug model
	LIFO
)

// SourceType identifies how an external quality source enters the network
type SourceType int

const (
	// Concen sets the concentration of external inflow at the node
	Concen SourceType = iota
	// Mass adds a fixed mass inflow rate at the node
	Mass
	// FlowPaced adds the source strength to the concentration leaving the node
	FlowPaced
	// Setpoint fixes the concentration leaving the node when below it
	Setpoint
)

// PumpType identifies how a pump's head-vs-flow relationship is defined
type PumpType int

const (
	// ConstantPower pumps deliver fixed horsepower at any flow
	ConstantPower PumpType = iota
	// PowerFunc pumps follow a fitted h = h0 - r*q^n function
	PowerFunc
	// CustomCurve pumps interpolate a multi-point head curve
	CustomCurve
)

// NoSetting marks an unspecified control/rule setting value
var NoSetting = math.NaN()

// HasSetting reports whether v carries a real setting value
func HasSetting(v float64) bool {
	return !math.IsNaN(v)
}
