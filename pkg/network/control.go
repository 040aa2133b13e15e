package network

// ControlType identifies the trigger of a simple control
type ControlType int

const (
	// LowLevel triggers when a node's grade drops below the trigger grade
	LowLevel ControlType = iota
	// HighLevel triggers when a node's grade rises above the trigger grade
	HighLevel
	// Timer triggers at a fixed elapsed simulation time
	Timer
	// TimeOfDay triggers at a clock time every day
	TimeOfDay
)

// Control is a simple one-condition control: when its trigger fires it
// sets a link's status and/or setting.
type Control struct {
	Type    ControlType
	Link    int
	Status  Status  // StatusUnset to leave status alone
	Setting float64 // NoSetting to leave setting alone
	Node    int     // trigger node for level controls, -1 otherwise
	Grade   float64 // trigger grade, ft, level controls only
	Time    int64   // trigger time, seconds, time controls only
}

// AddControl appends a simple control after validating its references.
func (n *Network) AddControl(c *Control) (int, error) {
	if c.Link < 0 || c.Link >= len(n.Links) {
		return 0, newIndexError("AddControl", "link", c.Link, ErrInvalidIndex)
	}
	switch c.Type {
	case LowLevel, HighLevel:
		if c.Node < 0 || c.Node >= len(n.Nodes) {
			return 0, newIndexError("AddControl", "node", c.Node, ErrInvalidIndex)
		}
	case Timer, TimeOfDay:
		if c.Time < 0 {
			return 0, newError("AddControl", "control", ErrInvalidParameter)
		}
		c.Node = -1
	default:
		return 0, newError("AddControl", "control", ErrInvalidParameter)
	}
	n.Controls = append(n.Controls, c)
	return len(n.Controls) - 1, nil
}

// DeleteControl removes the control at index i, compacting the rest.
func (n *Network) DeleteControl(i int) error {
	if i < 0 || i >= len(n.Controls) {
		return newIndexError("DeleteControl", "control", i, ErrInvalidIndex)
	}
	n.Controls = append(n.Controls[:i], n.Controls[i+1:]...)
	return nil
}
