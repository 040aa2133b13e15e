// Package quality moves a scalar constituent (chemical concentration,
// water age, or a source trace) through a solved hydraulic state using
// a Lagrangian segment model: each pipe holds an ordered train of
// water plugs, advected by the link flows, reacted in place, and
// blended flow-weighted at nodes.
package quality

import (
	"math"

	"github.com/dd0wney/cluso-hydronet/pkg/logging"
	"github.com/dd0wney/cluso-hydronet/pkg/metrics"
	"github.com/dd0wney/cluso-hydronet/pkg/network"
)

// Mode selects the transported quantity.
type Mode int

const (
	// Chemical transports a reacting constituent in mg/L.
	Chemical Mode = iota
	// Age transports elapsed residence time in hours.
	Age
	// Trace transports the percentage of water originating at one node.
	Trace
)

const (
	litersPerFt3  = 28.3168466
	secondsPerDay = 86400.0
	// traceConc is the fixed concentration at the traced node.
	traceConc = 100.0
)

// Options configures a quality solver.
type Options struct {
	Mode Mode
	// TraceNode is the node whose water is tracked in Trace mode.
	TraceNode int
	// Step is the transport substep in seconds. Zero derives
	// min(hydraulic step / 10, 300).
	Step int64
	// Tolerance is the concentration difference under which adjacent
	// segments merge.
	Tolerance float64
	// LimitConc caps first-order growth or floors first-order decay.
	// Zero disables the limit.
	LimitConc float64
	// PatternStep scales source pattern lookups, seconds.
	PatternStep int64
}

// DefaultOptions returns the quality solver defaults.
func DefaultOptions() Options {
	return Options{
		Mode:        Chemical,
		TraceNode:   -1,
		Tolerance:   0.01,
		PatternStep: 3600,
	}
}

// Balance is the constituent mass ledger of a run, in mg/L·ft³.
type Balance struct {
	Initial float64 // stored in pipes and tanks at Init
	Added   float64 // sources and reservoir discharge
	Removed float64 // demands and reservoir absorption
	Reacted float64 // net loss to reaction (negative for growth)
	Final   float64 // stored in pipes and tanks now
}

// Error returns the relative mass-balance error.
func (b Balance) Error() float64 {
	in := b.Initial + b.Added
	if in < 1e-9 {
		return 0
	}
	return math.Abs(in-b.Removed-b.Reacted-b.Final) / in
}

// Solver advances water quality between hydraulic solutions. Flows and
// demands are read from the network state and held fixed for the span
// of each Advance call.
type Solver struct {
	net *network.Network
	opt Options
	log logging.Logger
	reg *metrics.Registry

	step  int64
	links []segList
	dir   []int8 // +1 when flow last ran N1 -> N2
	tanks []*tankState
	kbulk []float64 // per-link first-order rate, 1/s
	ktank []float64

	volIn, massIn []float64
	bal           Balance
	initialized   bool
}

// New creates a quality solver for net.
func New(net *network.Network, opt Options, log logging.Logger, reg *metrics.Registry) *Solver {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}
	return &Solver{
		net: net,
		opt: opt,
		log: log.With(logging.Component("quality")),
		reg: reg,
	}
}

// Init builds the segment state from the network's initial qualities.
// hydStep is the hydraulic time step, used to derive the transport
// substep when Options.Step is zero.
func (s *Solver) Init(hydStep int64) error {
	if !s.net.Initialized() {
		return network.ErrNotInitialized
	}
	if s.opt.Mode == Trace {
		if s.opt.TraceNode < 0 || s.opt.TraceNode >= len(s.net.Nodes) {
			return network.ErrInvalidIndex
		}
	}

	s.step = s.opt.Step
	if s.step <= 0 {
		s.step = hydStep / 10
		if s.step > 300 {
			s.step = 300
		}
		if s.step < 1 {
			s.step = 1
		}
	}

	nl := len(s.net.Links)
	s.links = make([]segList, nl)
	s.dir = make([]int8, nl)
	s.kbulk = make([]float64, nl)
	for k, l := range s.net.Links {
		s.dir[k] = 1
		c := s.initialConc(s.net.Quality[l.N2])
		if v := l.Length * l.CrossArea(); v > 0 {
			s.links[k].setAll(v, c)
		} else {
			// Pumps and valves hold no water but still pass it through.
			s.links[k].segs = append(s.links[k].segs[:0], segment{v: 0, c: c})
			s.links[k].head = 0
		}
		if s.opt.Mode == Chemical {
			k1 := l.Kb
			if l.Diam > 0 {
				k1 += l.Kw * 4.0 / l.Diam
			}
			s.kbulk[k] = k1 / secondsPerDay
		}
	}

	s.tanks = make([]*tankState, len(s.net.Tanks))
	s.ktank = make([]float64, len(s.net.Tanks))
	for ti, t := range s.net.Tanks {
		c := s.initialConc(s.net.Quality[t.Node])
		s.tanks[ti] = newTankState(s.net, t, c)
		if s.opt.Mode == Chemical {
			s.ktank[ti] = t.Kb / secondsPerDay
		}
	}
	if s.opt.Mode != Chemical {
		for i := range s.net.Quality {
			s.net.Quality[i] = s.initialConc(s.net.Quality[i])
		}
		if s.opt.Mode == Trace {
			s.net.Quality[s.opt.TraceNode] = traceConc
		}
	}

	s.volIn = make([]float64, len(s.net.Nodes))
	s.massIn = make([]float64, len(s.net.Nodes))

	s.bal = Balance{Initial: s.storedMass()}
	s.initialized = true
	s.log.Debug("quality initialized",
		logging.Int64("substep_seconds", s.step),
		logging.Int("links", nl))
	return nil
}

// initialConc maps a configured initial quality into the active mode:
// age and trace runs start from clean water everywhere.
func (s *Solver) initialConc(c float64) float64 {
	if s.opt.Mode == Chemical {
		return c
	}
	return 0
}

// Advance transports quality over dt seconds starting at simulation
// time clock, using the network's current flows and demands.
func (s *Solver) Advance(clock, dt int64) error {
	if !s.initialized {
		return network.ErrNotInitialized
	}
	elapsed := int64(0)
	for elapsed < dt {
		sub := s.step
		if dt-elapsed < sub {
			sub = dt - elapsed
		}
		s.substep(clock+elapsed, float64(sub))
		elapsed += sub
	}
	s.reg.RecordQualityStep(s.segmentCount())
	s.reg.MassBalanceError.Set(s.MassBalance().Error())
	return nil
}

func (s *Solver) substep(clock int64, dt float64) {
	s.react(dt)
	s.orient()
	s.accumulate(dt)
	s.updateNodes(dt)
	s.applySources(clock, dt)
	if s.opt.Mode == Trace {
		s.net.Quality[s.opt.TraceNode] = traceConc
	}
	s.release(dt)
}

// react ages or decays every stored plug, charging the net mass change
// to the ledger.
func (s *Solver) react(dt float64) {
	if s.opt.Mode == Trace {
		return
	}
	age := s.opt.Mode == Age
	before := s.storedMass()
	for k := range s.links {
		sl := &s.links[k]
		if age {
			for i := sl.head; i < len(sl.segs); i++ {
				sl.segs[i].c += dt / 3600.0
			}
			continue
		}
		if s.kbulk[k] == 0 {
			continue
		}
		for i := sl.head; i < len(sl.segs); i++ {
			sl.segs[i].c = firstOrder(sl.segs[i].c, s.kbulk[k], s.opt.LimitConc, dt)
		}
	}
	for ti, ts := range s.tanks {
		if ts.reservoir {
			continue
		}
		ts.react(s.ktank[ti], s.opt.LimitConc, dt, age)
	}
	s.bal.Reacted += before - s.storedMass()
}

// orient reverses a link's plug train when its flow changed direction
// since the previous substep.
func (s *Solver) orient() {
	for k := range s.net.Links {
		d := int8(1)
		if s.net.Flow[k] < 0 {
			d = -1
		}
		if d != s.dir[k] {
			s.links[k].reverse()
			s.dir[k] = d
		}
	}
}

func (s *Solver) flowEnds(k int) (up, dn int) {
	l := s.net.Links[k]
	if s.dir[k] >= 0 {
		return l.N1, l.N2
	}
	return l.N2, l.N1
}

// accumulate drains each link's outlet into its downstream node's
// blending totals.
func (s *Solver) accumulate(dt float64) {
	for i := range s.volIn {
		s.volIn[i] = 0
		s.massIn[i] = 0
	}
	for k := range s.net.Links {
		v := math.Abs(s.net.Flow[k]) * dt
		if v <= 0 {
			continue
		}
		_, dn := s.flowEnds(k)
		s.massIn[dn] += s.links[k].pop(v)
		s.volIn[dn] += v
	}
}

// updateNodes blends each node's inflows. Junction demand withdraws at
// the blended concentration; tanks run their mixing model; reservoirs
// absorb inflow and discharge at their fixed quality.
func (s *Solver) updateNodes(dt float64) {
	nj := s.net.Njunctions
	for i := 0; i < nj; i++ {
		if s.volIn[i] > 0 {
			s.net.Quality[i] = s.massIn[i] / s.volIn[i]
		}
		if d := s.net.DemandFlow[i]; d > 0 {
			s.bal.Removed += s.net.Quality[i] * d * dt
		}
	}

	for ti, ts := range s.tanks {
		n := s.net.Tanks[ti].Node
		if ts.reservoir {
			s.bal.Removed += s.massIn[n]
			s.net.Quality[n] = s.reservoirConc(ti)
			continue
		}
		vnet := s.net.DemandFlow[n] * dt
		vout := s.volIn[n] - vnet
		massOut := ts.update(s.volIn[n], s.massIn[n], vnet, s.opt.Tolerance)
		if vout > 0 {
			// A draw spanning several stored plugs leaves at their
			// blended concentration, the same mass the tank gave up.
			s.net.Quality[n] = massOut / vout
		} else {
			s.net.Quality[n] = ts.outflowConc()
		}
	}
}

// reservoirConc is a reservoir's discharge quality for the active mode.
func (s *Solver) reservoirConc(ti int) float64 {
	t := s.net.Tanks[ti]
	node := s.net.Nodes[t.Node]
	switch s.opt.Mode {
	case Age:
		return 0
	case Trace:
		if t.Node == s.opt.TraceNode {
			return traceConc
		}
		return 0
	}
	if node.Source != nil && node.Source.Type == network.Concen {
		return node.Source.Strength * s.sourceFactor(node.Source, 0)
	}
	return node.InitQual
}

// applySources injects external sources at junctions and tanks.
// Reservoir CONCEN sources are already folded into the discharge
// quality.
func (s *Solver) applySources(clock int64, dt float64) {
	if s.opt.Mode != Chemical {
		return
	}
	for i, node := range s.net.Nodes {
		src := node.Source
		if src == nil || src.Strength == 0 {
			continue
		}
		if node.Type == network.Reservoir {
			continue
		}
		strength := src.Strength * s.sourceFactor(src, clock)
		volOut := s.outflowVolume(i, dt)
		if volOut <= 0 {
			continue
		}

		before := s.net.Quality[i]
		switch src.Type {
		case network.Concen:
			// Applies only to external inflow entering at the node.
			if d := s.net.DemandFlow[i]; d < 0 {
				vin := -d * dt
				s.net.Quality[i] = (before*s.volIn[i] + strength*vin) / (s.volIn[i] + vin)
			}
		case network.Mass:
			// Strength is mg/min.
			added := strength * dt / 60.0 / litersPerFt3
			s.net.Quality[i] = before + added/volOut
		case network.FlowPaced:
			s.net.Quality[i] = before + strength
		case network.Setpoint:
			if before < strength {
				s.net.Quality[i] = strength
			}
		}

		if delta := s.net.Quality[i] - before; delta > 0 {
			mass := delta * volOut
			s.bal.Added += mass
			s.reg.SourceMassTotal.Add(mass * litersPerFt3)
		}
	}
}

func (s *Solver) sourceFactor(src *network.Source, clock int64) float64 {
	if src.Pattern < 0 || s.opt.PatternStep <= 0 {
		return 1
	}
	return s.net.Patterns[src.Pattern].Factor(clock / s.opt.PatternStep)
}

// outflowVolume is the water volume leaving node i during dt through
// links and consumer demand.
func (s *Solver) outflowVolume(i int, dt float64) float64 {
	vol := 0.0
	for k := range s.net.Links {
		if up, _ := s.flowEnds(k); up == i {
			vol += math.Abs(s.net.Flow[k]) * dt
		}
	}
	if i < s.net.Njunctions {
		if d := s.net.DemandFlow[i]; d > 0 {
			vol += d * dt
		}
	}
	return vol
}

// release refills each link's inlet from its upstream node, crediting
// reservoir discharge to the ledger.
func (s *Solver) release(dt float64) {
	for k := range s.net.Links {
		v := math.Abs(s.net.Flow[k]) * dt
		if v <= 0 {
			continue
		}
		up, _ := s.flowEnds(k)
		c := s.net.Quality[up]
		s.links[k].push(v, c, s.opt.Tolerance)
		if s.net.Nodes[up].Type == network.Reservoir {
			s.bal.Added += c * v
		}
	}
}

// MassBalance returns the run's mass ledger so far.
func (s *Solver) MassBalance() Balance {
	b := s.bal
	b.Final = s.storedMass()
	return b
}

func (s *Solver) storedMass() float64 {
	total := 0.0
	for k := range s.links {
		total += s.links[k].mass()
	}
	for _, ts := range s.tanks {
		if !ts.reservoir {
			total += ts.storedMass()
		}
	}
	return total
}

func (s *Solver) segmentCount() int {
	n := 0
	for k := range s.links {
		n += s.links[k].count()
	}
	for _, ts := range s.tanks {
		n += ts.segs.count()
	}
	return n
}
