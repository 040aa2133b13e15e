package network

// Demand is one demand record of a junction: a base value scaled by a
// time pattern, with an optional category label.
type Demand struct {
	Base     float64 // cfs
	Pattern  int     // pattern index, -1 for constant
	Category string
}

// Source is an external water-quality source attached to a node.
type Source struct {
	Type     SourceType
	Strength float64 // mg/L, or mg/min for Mass sources
	Pattern  int     // pattern index, -1 for constant
}

// Node is a network node. Junction nodes occupy indices [0, Njunctions);
// tank and reservoir nodes follow them.
type Node struct {
	ID        string
	Type      NodeType
	Elevation float64 // ft
	Demands   []Demand
	Source    *Source
	Emitter   float64 // emitter flow coefficient, 0 for none
	InitQual  float64
	Tank      int // index into Network.Tanks, -1 for junctions
}

// BaseDemand returns the sum of the node's base demand records.
func (n *Node) BaseDemand() float64 {
	total := 0.0
	for _, d := range n.Demands {
		total += d.Base
	}
	return total
}

// Tank holds the storage attributes of a tank or reservoir node.
// A zero cross-sectional area with no volume curve marks a reservoir.
type Tank struct {
	Node     int     // owning node index
	Area     float64 // ft², 0 for reservoirs
	Hmin     float64 // minimum grade, ft
	Hmax     float64 // maximum grade, ft
	H0       float64 // initial grade, ft
	Vmin     float64 // ft³
	Vmax     float64 // ft³
	V0       float64 // ft³
	VolCurve int     // volume-vs-level curve index, -1 for fixed area
	Kb       float64 // bulk reaction coefficient (1/day)
	Mix      MixingModel
	MixFrac  float64 // mixing-zone fraction of total volume (Mix2)
	Overflow bool    // spill when full instead of clamping inflow
}

// IsReservoir reports whether the record describes a fixed-head reservoir.
func (t *Tank) IsReservoir() bool {
	return t.Area == 0 && t.VolCurve < 0
}

// Volume converts a water-surface grade to a stored volume, using the
// volume curve when one is assigned and the fixed-area formula otherwise.
// The curve maps level above the tank bottom (node elevation) to volume.
func (t *Tank) Volume(net *Network, grade float64) float64 {
	if t.VolCurve >= 0 {
		level := grade - net.Nodes[t.Node].Elevation
		return net.Curves[t.VolCurve].Value(level)
	}
	return t.Vmin + t.Area*(grade-t.Hmin)
}

// Grade converts a stored volume back to a water-surface grade.
func (t *Tank) Grade(net *Network, volume float64) float64 {
	if t.VolCurve >= 0 {
		level := net.Curves[t.VolCurve].InverseValue(volume)
		return net.Nodes[t.Node].Elevation + level
	}
	if t.Area == 0 {
		return t.H0
	}
	return t.Hmin + (volume-t.Vmin)/t.Area
}
