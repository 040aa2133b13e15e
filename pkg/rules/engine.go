// Package rules evaluates IF/THEN/ELSE operating rules against the
// current network state and resolves the fired actions into one final
// change per link.
package rules

import (
	"math"

	"github.com/dd0wney/cluso-hydronet/pkg/logging"
	"github.com/dd0wney/cluso-hydronet/pkg/network"
)

const secondsPerDay = 86400

// valueTol is the comparison tolerance for premise values, matching
// the resolution of reported results.
const valueTol = 0.001

// Action is one resolved link change produced by an evaluation pass.
type Action struct {
	Rule     string
	Priority float64
	Link     int
	Status   network.Status // StatusUnset leaves status alone
	Setting  float64        // NoSetting leaves the setting alone
}

// Engine evaluates a network's rules. Time premises are interval
// based: an equality on TIME or CLOCKTIME fires when the target moment
// falls inside the window since the previous evaluation, so a rule
// cannot miss its moment when evaluations land between step boundaries.
type Engine struct {
	net        *network.Network
	log        logging.Logger
	startClock int64 // clock time of simulation start, seconds past midnight
	last       int64 // previous evaluation time, -1 before the first
}

// New creates an engine for net. startClock is the wall-clock time of
// simulation start in seconds past midnight.
func New(net *network.Network, startClock int64, log logging.Logger) *Engine {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Engine{
		net:        net,
		log:        log.With(logging.Component("rules")),
		startClock: startClock,
		last:       -1,
	}
}

// Reset clears the evaluation window for a fresh run.
func (e *Engine) Reset() {
	e.last = -1
}

// Evaluate runs every rule at simulation time clock (seconds) and
// returns the conflict-resolved actions: per link, the firing rule
// with the highest priority wins, and on ties the later rule.
func (e *Engine) Evaluate(clock int64) []Action {
	var actions []Action
	byLink := make(map[int]int)

	for _, r := range e.net.Rules {
		fired := e.premisesHold(r, clock)
		list := r.Then
		if !fired {
			list = r.Else
		}
		if len(list) == 0 {
			continue
		}
		e.log.Debug("rule fired",
			logging.String("rule", r.Name),
			logging.Bool("then", fired),
			logging.Clock(clock))
		for _, ra := range list {
			a := Action{
				Rule:     r.Name,
				Priority: r.Priority,
				Link:     ra.Link,
				Status:   ra.Status,
				Setting:  ra.Setting,
			}
			if j, ok := byLink[a.Link]; ok {
				if a.Priority >= actions[j].Priority {
					actions[j] = a
				}
				continue
			}
			byLink[a.Link] = len(actions)
			actions = append(actions, a)
		}
	}

	e.last = clock
	return actions
}

// premisesHold combines premises the way they are declared: an AND
// premise extends the running chain, an OR premise offers an
// alternative that is only consulted when the chain is failing.
func (e *Engine) premisesHold(r *network.Rule, clock int64) bool {
	result := true
	for i := range r.Premises {
		p := &r.Premises[i]
		if p.Logop == network.Or {
			if !result {
				result = e.checkPremise(p, clock)
			}
			continue
		}
		if !result {
			return false
		}
		result = e.checkPremise(p, clock)
	}
	return result
}

func (e *Engine) checkPremise(p *network.Premise, clock int64) bool {
	switch p.Variable {
	case network.VarTime:
		return e.checkElapsed(p, clock)
	case network.VarClockTime:
		return e.checkClock(p, clock)
	case network.VarStatus:
		got := e.net.LinkStatus[p.Index]
		if p.Relop == network.NE {
			return got != p.Status
		}
		return got == p.Status
	default:
		return compare(p.Relop, e.value(p), p.Value)
	}
}

// value reads the premise's variable from the network state. Units
// are the network's internal ones: cfs, ft, hours for fill/drain time.
func (e *Engine) value(p *network.Premise) float64 {
	net := e.net
	switch p.Object {
	case network.RuleSystem:
		// System demand is the only non-time system variable.
		total := 0.0
		for i := 0; i < net.Njunctions; i++ {
			total += net.DemandFlow[i]
		}
		return total
	case network.RuleLink:
		k := p.Index
		switch p.Variable {
		case network.VarFlow:
			return math.Abs(net.Flow[k])
		case network.VarSetting:
			return net.Setting[k]
		}
	case network.RuleNode:
		i := p.Index
		node := net.Nodes[i]
		switch p.Variable {
		case network.VarDemand:
			return net.DemandFlow[i]
		case network.VarHead, network.VarGrade:
			return net.Head[i]
		case network.VarPressure, network.VarLevel:
			return net.Head[i] - node.Elevation
		case network.VarFillTime:
			return e.fillTime(node, false)
		case network.VarDrainTime:
			return e.fillTime(node, true)
		}
	}
	return 0
}

// fillTime projects the hours until the tank hits its volume bound at
// the current net inflow. A tank moving away from the bound never
// reaches it.
func (e *Engine) fillTime(node *network.Node, drain bool) float64 {
	if node.Tank < 0 {
		return 0
	}
	t := e.net.Tanks[node.Tank]
	if t.IsReservoir() {
		return 0
	}
	q := e.net.DemandFlow[t.Node] // net inflow, cfs
	v := e.net.TankVolume[node.Tank]
	if drain {
		if q >= -1e-9 {
			return math.Inf(1)
		}
		return (v - t.Vmin) / -q / 3600.0
	}
	if q <= 1e-9 {
		return math.Inf(1)
	}
	return (t.Vmax - v) / q / 3600.0
}

// checkElapsed tests a premise on elapsed simulation time. Equality
// holds when the target falls inside (previous evaluation, now].
func (e *Engine) checkElapsed(p *network.Premise, clock int64) bool {
	x := int64(p.Value)
	switch p.Relop {
	case network.EQ:
		return e.last < x && x <= clock
	case network.NE:
		return !(e.last < x && x <= clock)
	case network.LT:
		return clock < x
	case network.LE:
		return clock <= x
	case network.GT:
		return clock > x
	case network.GE:
		return clock >= x
	}
	return false
}

// checkClock tests a premise on wall-clock time of day, handling
// evaluation windows that wrap past midnight.
func (e *Engine) checkClock(p *network.Premise, clock int64) bool {
	x := int64(p.Value) % secondsPerDay
	c2 := (clock + e.startClock) % secondsPerDay

	eq := false
	if e.last < 0 {
		eq = x == c2
	} else {
		c1 := (e.last + e.startClock) % secondsPerDay
		if c1 <= c2 {
			eq = c1 < x && x <= c2
		} else {
			eq = x > c1 || x <= c2
		}
	}

	switch p.Relop {
	case network.EQ:
		return eq
	case network.NE:
		return !eq
	case network.LT:
		return c2 < x
	case network.LE:
		return c2 <= x
	case network.GT:
		return c2 > x
	case network.GE:
		return c2 >= x
	}
	return false
}

func compare(op network.Relop, x, value float64) bool {
	switch op {
	case network.EQ:
		return math.Abs(x-value) <= valueTol
	case network.NE:
		return math.Abs(x-value) > valueTol
	case network.LT:
		return x < value+valueTol
	case network.LE:
		return x <= value+valueTol
	case network.GT:
		return x > value-valueTol
	case network.GE:
		return x >= value-valueTol
	}
	return false
}
