package network

import "math"

// NodeField selects a node quantity for the query surface. Values are
// returned in the model's native computation units (ft, cfs); unit
// conversion belongs to the reporting layer.
type NodeField int

const (
	NodeElevation NodeField = iota
	NodeBaseDemand
	NodeHead
	NodePressure // head above elevation, ft
	NodeDemand   // delivered demand, cfs
	NodeQuality
	NodeTankLevel  // ft above tank bottom
	NodeTankVolume // ft³
)

// LinkField selects a link quantity for the query surface.
type LinkField int

const (
	LinkDiameter LinkField = iota
	LinkLength
	LinkRoughness
	LinkMinorLoss
	LinkFlow
	LinkVelocity // ft/s
	LinkHeadloss // head difference across the link, ft
	LinkStatusValue
	LinkSettingValue
	LinkPumpEnergy      // kwh
	LinkEfficiencyCurve // pump efficiency curve index
)

// NodeValue returns one result field for a node. Reading has no side
// effects: repeated queries between solver steps return identical values.
func (n *Network) NodeValue(i int, field NodeField) (float64, error) {
	if i < 0 || i >= len(n.Nodes) {
		return 0, newIndexError("NodeValue", "node", i, ErrInvalidIndex)
	}
	node := n.Nodes[i]
	switch field {
	case NodeElevation:
		return node.Elevation, nil
	case NodeBaseDemand:
		return node.BaseDemand(), nil
	case NodeHead:
		if !n.Initialized() {
			return 0, newIndexError("NodeValue", "node", i, ErrNotInitialized)
		}
		return n.Head[i], nil
	case NodePressure:
		if !n.Initialized() {
			return 0, newIndexError("NodeValue", "node", i, ErrNotInitialized)
		}
		return n.Head[i] - node.Elevation, nil
	case NodeDemand:
		if !n.Initialized() {
			return 0, newIndexError("NodeValue", "node", i, ErrNotInitialized)
		}
		return n.DemandFlow[i], nil
	case NodeQuality:
		if !n.Initialized() {
			return 0, newIndexError("NodeValue", "node", i, ErrNotInitialized)
		}
		return n.Quality[i], nil
	case NodeTankLevel:
		if node.Tank < 0 {
			return 0, newIndexError("NodeValue", "node", i, ErrInvalidParameter)
		}
		return n.Head[i] - node.Elevation, nil
	case NodeTankVolume:
		if node.Tank < 0 {
			return 0, newIndexError("NodeValue", "node", i, ErrInvalidParameter)
		}
		return n.TankVolume[node.Tank], nil
	default:
		return 0, newIndexError("NodeValue", "node", i, ErrInvalidParameter)
	}
}

// LinkValue returns one result field for a link. The efficiency-curve
// field deliberately returns the curve index (or -1 when none is
// assigned) with a nil error; earlier implementations of this API fell
// through to an invalid-parameter error here.
func (n *Network) LinkValue(k int, field LinkField) (float64, error) {
	if k < 0 || k >= len(n.Links) {
		return 0, newIndexError("LinkValue", "link", k, ErrInvalidIndex)
	}
	link := n.Links[k]
	switch field {
	case LinkDiameter:
		return link.Diam, nil
	case LinkLength:
		return link.Length, nil
	case LinkRoughness:
		return link.Roughness, nil
	case LinkMinorLoss:
		return link.MinorLoss, nil
	case LinkFlow:
		if !n.Initialized() {
			return 0, newIndexError("LinkValue", "link", k, ErrNotInitialized)
		}
		return n.Flow[k], nil
	case LinkVelocity:
		if !n.Initialized() {
			return 0, newIndexError("LinkValue", "link", k, ErrNotInitialized)
		}
		a := link.CrossArea()
		if a == 0 {
			return 0, nil
		}
		return math.Abs(n.Flow[k]) / a, nil
	case LinkHeadloss:
		if !n.Initialized() {
			return 0, newIndexError("LinkValue", "link", k, ErrNotInitialized)
		}
		return n.Head[link.N1] - n.Head[link.N2], nil
	case LinkStatusValue:
		if !n.Initialized() {
			return float64(link.InitStatus), nil
		}
		return float64(n.LinkStatus[k]), nil
	case LinkSettingValue:
		if !n.Initialized() {
			return link.InitSetting, nil
		}
		return n.Setting[k], nil
	case LinkPumpEnergy:
		if link.Pump < 0 {
			return 0, newIndexError("LinkValue", "link", k, ErrInvalidParameter)
		}
		return n.Pumps[link.Pump].Energy, nil
	case LinkEfficiencyCurve:
		if link.Pump < 0 {
			return 0, newIndexError("LinkValue", "link", k, ErrInvalidParameter)
		}
		return float64(n.Pumps[link.Pump].ECurve), nil
	default:
		return 0, newIndexError("LinkValue", "link", k, ErrInvalidParameter)
	}
}
