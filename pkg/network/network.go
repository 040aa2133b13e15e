package network

// Network is the in-memory model of a pressurized pipe network together
// with the mutable state of the current simulation step. One simulation
// run owns its Network exclusively; there is no internal locking.
type Network struct {
	Title string

	Nodes  []*Node
	Links  []*Link
	Tanks  []*Tank // one per tank/reservoir node, in node order
	Pumps  []*Pump
	Valves []*Valve

	Patterns []*Pattern
	Curves   []*Curve
	Controls []*Control
	Rules    []*Rule

	// Njunctions partitions the node index space: nodes [0, Njunctions)
	// are junctions, the rest are tanks and reservoirs.
	Njunctions int

	// Mutable per-step state, allocated by InitState. Heads and flows are
	// written by the hydraulic solver, statuses by the solver and by
	// controls/rules, qualities by the transport engine.
	Head       []float64 // ft, per node
	DemandFlow []float64 // delivered demand, cfs, per node
	Quality    []float64 // mg/L (or hours in age mode), per node
	Flow       []float64 // cfs, per link
	LinkStatus []Status  // per link
	Setting    []float64 // per link
	TankVolume []float64 // ft³, per tank record

	nodeIndex    map[string]int
	linkIndex    map[string]int
	patternIndex map[string]int
	curveIndex   map[string]int
}

// New creates an empty network model.
func New(title string) *Network {
	return &Network{
		Title:        title,
		nodeIndex:    make(map[string]int),
		linkIndex:    make(map[string]int),
		patternIndex: make(map[string]int),
		curveIndex:   make(map[string]int),
	}
}

// NodeIndex returns the index of the node with the given ID.
func (n *Network) NodeIndex(id string) (int, bool) {
	i, ok := n.nodeIndex[id]
	return i, ok
}

// LinkIndex returns the index of the link with the given ID.
func (n *Network) LinkIndex(id string) (int, bool) {
	i, ok := n.linkIndex[id]
	return i, ok
}

// PatternIndex returns the index of the pattern with the given ID.
func (n *Network) PatternIndex(id string) (int, bool) {
	i, ok := n.patternIndex[id]
	return i, ok
}

// CurveIndex returns the index of the curve with the given ID.
func (n *Network) CurveIndex(id string) (int, bool) {
	i, ok := n.curveIndex[id]
	return i, ok
}

// AddJunction inserts a junction node. Junctions are inserted ahead of
// the tank/reservoir block, so any existing tank and reservoir node
// indices shift up by one; all back-references are renumbered.
func (n *Network) AddJunction(node *Node) (int, error) {
	if _, ok := n.nodeIndex[node.ID]; ok {
		return 0, newIDError("AddJunction", "node", node.ID, ErrDuplicateID)
	}
	node.Type = Junction
	node.Tank = -1

	at := n.Njunctions
	n.Nodes = append(n.Nodes, nil)
	copy(n.Nodes[at+1:], n.Nodes[at:])
	n.Nodes[at] = node
	n.Njunctions++

	// Shift every node reference at or above the insertion point.
	remap := make([]int, len(n.Nodes)-1)
	for i := range remap {
		if i >= at {
			remap[i] = i + 1
		} else {
			remap[i] = i
		}
	}
	n.renumberNodes(remap)
	n.nodeIndex[node.ID] = at
	return at, nil
}

// AddTank appends a tank or reservoir node with its storage record.
// The tank's grade bounds are converted to volumes at creation.
func (n *Network) AddTank(node *Node, tank *Tank) (int, error) {
	if _, ok := n.nodeIndex[node.ID]; ok {
		return 0, newIDError("AddTank", "node", node.ID, ErrDuplicateID)
	}
	if tank.Hmax < tank.Hmin || tank.H0 < tank.Hmin || tank.H0 > tank.Hmax {
		return 0, newIDError("AddTank", "node", node.ID, ErrInvalidParameter)
	}
	if tank.VolCurve >= len(n.Curves) {
		return 0, newIDError("AddTank", "node", node.ID, ErrInvalidIndex)
	}
	if tank.IsReservoir() {
		node.Type = Reservoir
	} else {
		node.Type = TankNode
	}

	i := len(n.Nodes)
	tank.Node = i
	node.Tank = len(n.Tanks)
	n.Nodes = append(n.Nodes, node)
	n.Tanks = append(n.Tanks, tank)
	n.nodeIndex[node.ID] = i

	if !tank.IsReservoir() && tank.VolCurve < 0 {
		// Vmin is taken as given (defaults to an empty tank at Hmin).
		tank.Vmax = tank.Vmin + tank.Area*(tank.Hmax-tank.Hmin)
		tank.V0 = tank.Vmin + tank.Area*(tank.H0-tank.Hmin)
	} else if tank.VolCurve >= 0 {
		c := n.Curves[tank.VolCurve]
		el := node.Elevation
		tank.Vmin = c.Value(tank.Hmin - el)
		tank.Vmax = c.Value(tank.Hmax - el)
		tank.V0 = c.Value(tank.H0 - el)
	}
	return i, nil
}

// AddLink appends a link between two existing nodes. Pump links get a
// Pump record, valve links a Valve record.
func (n *Network) AddLink(link *Link) (int, error) {
	if _, ok := n.linkIndex[link.ID]; ok {
		return 0, newIDError("AddLink", "link", link.ID, ErrDuplicateID)
	}
	if link.N1 < 0 || link.N1 >= len(n.Nodes) || link.N2 < 0 || link.N2 >= len(n.Nodes) || link.N1 == link.N2 {
		return 0, newIDError("AddLink", "link", link.ID, ErrInvalidIndex)
	}

	k := len(n.Links)
	link.Pump = -1
	link.Valve = -1
	switch {
	case link.Type == PumpLink:
		link.Pump = len(n.Pumps)
		n.Pumps = append(n.Pumps, &Pump{Link: k, HCurve: -1, ECurve: -1})
	case link.Type.IsValve():
		link.Valve = len(n.Valves)
		n.Valves = append(n.Valves, &Valve{Link: k, HCurve: -1})
	}
	n.Links = append(n.Links, link)
	n.linkIndex[link.ID] = k
	return k, nil
}

// AddPattern appends a multiplier pattern.
func (n *Network) AddPattern(p *Pattern) (int, error) {
	if _, ok := n.patternIndex[p.ID]; ok {
		return 0, newIDError("AddPattern", "pattern", p.ID, ErrDuplicateID)
	}
	i := len(n.Patterns)
	n.Patterns = append(n.Patterns, p)
	n.patternIndex[p.ID] = i
	return i, nil
}

// AddCurve appends a data curve after validating monotonicity.
func (n *Network) AddCurve(c *Curve) (int, error) {
	if _, ok := n.curveIndex[c.ID]; ok {
		return 0, newIDError("AddCurve", "curve", c.ID, ErrDuplicateID)
	}
	if err := c.Validate(); err != nil {
		return 0, newIDError("AddCurve", "curve", c.ID, err)
	}
	i := len(n.Curves)
	n.Curves = append(n.Curves, c)
	n.curveIndex[c.ID] = i
	return i, nil
}

// Ntanks returns the number of tank/reservoir records.
func (n *Network) Ntanks() int { return len(n.Tanks) }

// IsJunction reports whether node index i is a junction.
func (n *Network) IsJunction(i int) bool { return i < n.Njunctions }

// InitState allocates and initializes the mutable simulation state:
// initial link statuses and settings, initial tank volumes and grades,
// and initial node qualities. It is idempotent and re-runnable between
// simulation runs.
func (n *Network) InitState() {
	nn, nl := len(n.Nodes), len(n.Links)
	n.Head = make([]float64, nn)
	n.DemandFlow = make([]float64, nn)
	n.Quality = make([]float64, nn)
	n.Flow = make([]float64, nl)
	n.LinkStatus = make([]Status, nl)
	n.Setting = make([]float64, nl)
	n.TankVolume = make([]float64, len(n.Tanks))

	for i, node := range n.Nodes {
		n.Head[i] = node.Elevation
		n.Quality[i] = node.InitQual
	}
	for k, link := range n.Links {
		n.LinkStatus[k] = link.InitStatus
		n.Setting[k] = link.InitSetting
	}
	for ti, t := range n.Tanks {
		n.TankVolume[ti] = t.V0
		n.Head[t.Node] = t.H0
	}
}

// Initialized reports whether InitState has been run for the current topology.
func (n *Network) Initialized() bool {
	return len(n.Head) == len(n.Nodes) && len(n.Flow) == len(n.Links)
}
