// Package hydraulic solves for steady-state heads and flows with the
// global gradient algorithm: each trial linearizes every link's
// headloss law, solves the resulting sparse symmetric system for
// junction heads, and corrects link flows until the total flow change
// is a small fraction of the total flow.
package hydraulic

import (
	"context"
	"errors"
	"math"

	"github.com/dd0wney/cluso-hydronet/pkg/logging"
	"github.com/dd0wney/cluso-hydronet/pkg/metrics"
	"github.com/dd0wney/cluso-hydronet/pkg/network"
	"github.com/dd0wney/cluso-hydronet/pkg/sparse"
)

type solverState int

const (
	stateNotOpen solverState = iota
	stateOpened
	stateInitialized
)

// Solver computes steady-state hydraulics for one network. It is not
// safe for concurrent use.
type Solver struct {
	net *network.Network
	opt Options
	log logging.Logger
	reg *metrics.Registry

	state solverState

	sys       *sparse.Solver
	edgeOf    []int   // link -> off-diagonal slot, -1 when an endpoint is fixed
	nodeLinks [][]int // node -> incident links

	aii []float64 // junction diagonal coefficients
	off []float64 // off-diagonal coefficients, one per junction-junction link
	f   []float64 // right-hand side
	h   []float64 // solved junction heads
	x   []float64 // nodal flow imbalance, all nodes

	p, y []float64 // per-link linearization
	res  []float64 // per-link friction resistance

	dfull    []float64 // per-node full demand for the current solve
	emitFlow []float64
	emP, emY []float64 // emitter linearization
	dP, dY   []float64 // pressure-driven demand linearization

	tempClosed []bool // closures imposed by the solver, not the operator

	maxFlowChange float64
	maxHeadError  float64
}

// Result reports the outcome of one steady-state solve.
type Result struct {
	Iterations    int
	RelativeError float64
	MaxHeadError  float64
	MaxFlowChange float64
	StatusChanges int
	Converged     bool
}

// New creates a solver for net. The network must not be structurally
// modified while the solver is open.
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
		log: log.With(logging.Component("hydraulic")),
		reg: reg,
	}
}

// Open validates the network's topology and builds the sparse system
// structure. It must be called before Init and Solve, and again after
// any structural change to the network.
func (s *Solver) Open() error {
	if !s.net.Initialized() {
		s.net.InitState()
	}
	nn := len(s.net.Nodes)
	nl := len(s.net.Links)
	nj := s.net.Njunctions

	s.nodeLinks = make([][]int, nn)
	for k, l := range s.net.Links {
		s.nodeLinks[l.N1] = append(s.nodeLinks[l.N1], k)
		s.nodeLinks[l.N2] = append(s.nodeLinks[l.N2], k)
	}
	for i := 0; i < nj; i++ {
		if len(s.nodeLinks[i]) == 0 {
			return &SolveError{Op: "open", Node: s.net.Nodes[i].ID, Cause: ErrIsolatedNode}
		}
	}
	if err := s.checkValveLayout(); err != nil {
		return err
	}

	s.edgeOf = make([]int, nl)
	var edges []sparse.Edge
	for k, l := range s.net.Links {
		s.edgeOf[k] = -1
		if l.N1 < nj && l.N2 < nj {
			s.edgeOf[k] = len(edges)
			edges = append(edges, sparse.Edge{I: l.N1, J: l.N2})
		}
	}
	s.sys = sparse.New(nj, edges)

	s.aii = make([]float64, nj)
	s.off = make([]float64, len(edges))
	s.f = make([]float64, nj)
	s.h = make([]float64, nj)
	s.x = make([]float64, nn)
	s.p = make([]float64, nl)
	s.y = make([]float64, nl)
	s.res = make([]float64, nl)
	s.dfull = make([]float64, nn)
	s.emitFlow = make([]float64, nj)
	s.emP = make([]float64, nj)
	s.emY = make([]float64, nj)
	s.dP = make([]float64, nj)
	s.dY = make([]float64, nj)
	s.tempClosed = make([]bool, nl)

	for k, l := range s.net.Links {
		if l.Type == network.Pipe || l.Type == network.CVPipe {
			s.res[k] = s.resistance(l)
		}
	}

	s.log.Debug("solver opened",
		logging.Int("junctions", nj),
		logging.Int("links", nl),
		logging.Int("fill", s.sys.Fill()))
	s.state = stateOpened
	return nil
}

// checkValveLayout rejects pressure and flow valve placements whose
// settings cannot be enforced: a controlled node that is a fixed-head
// node, or two valves contending for the same controlled node.
func (s *Solver) checkValveLayout() error {
	nj := s.net.Njunctions
	controlled := make(map[int]string)
	claim := func(node int, k int) error {
		l := s.net.Links[k]
		if node >= nj {
			return &SolveError{Op: "open", Node: s.net.Nodes[node].ID,
				Cause: ErrValveConflict}
		}
		if other, ok := controlled[node]; ok && other != l.ID {
			return &SolveError{Op: "open", Node: s.net.Nodes[node].ID,
				Cause: ErrValveConflict}
		}
		controlled[node] = l.ID
		return nil
	}
	for _, v := range s.net.Valves {
		l := s.net.Links[v.Link]
		switch l.Type {
		case network.PRV:
			if err := claim(l.N2, v.Link); err != nil {
				return err
			}
		case network.PSV:
			if err := claim(l.N1, v.Link); err != nil {
				return err
			}
		case network.FCV:
			if l.N2 >= nj {
				return &SolveError{Op: "open", Node: s.net.Nodes[l.N2].ID,
					Cause: ErrValveConflict}
			}
		}
	}
	return nil
}

// Init resets heads, flows, and statuses to their starting values.
// With initFlows false the current flows are kept, which speeds up
// re-solves within an extended-period run.
func (s *Solver) Init(initFlows bool) error {
	if s.state == stateNotOpen {
		return ErrNotOpen
	}
	nj := s.net.Njunctions

	for k, l := range s.net.Links {
		s.tempClosed[k] = false
		if s.net.LinkStatus[k] == network.StatusUnset {
			if l.Type.IsValve() && network.HasSetting(s.net.Setting[k]) {
				s.net.LinkStatus[k] = network.Active
			} else {
				s.net.LinkStatus[k] = network.Open
			}
		}
		if initFlows {
			s.net.Flow[k] = s.initialFlow(l)
		}
	}
	for i := 0; i < nj; i++ {
		s.emitFlow[i] = 1.0
		s.dfull[i] = s.net.Nodes[i].BaseDemand() * s.opt.DemandMultiplier
		s.net.DemandFlow[i] = s.dfull[i]
	}
	s.state = stateInitialized
	return nil
}

// initialFlow guesses a starting flow: one ft/s through pipes and
// valves, the design point for pumps.
func (s *Solver) initialFlow(l *network.Link) float64 {
	if l.Type == network.PumpLink {
		pump := s.net.Pumps[l.Pump]
		if pump.Ptype == network.ConstantPower || pump.Q0 <= 0 {
			return 1.0
		}
		return pump.Q0
	}
	if a := l.CrossArea(); a > 0 {
		return a
	}
	return qTiny
}

// SetDemands replaces the full junction demands used by subsequent
// solves. Values are in cfs, one per node; entries for fixed-head
// nodes are ignored.
func (s *Solver) SetDemands(d []float64) error {
	if s.state == stateNotOpen {
		return ErrNotOpen
	}
	nj := s.net.Njunctions
	if len(d) < nj {
		return &SolveError{Op: "set demands", Cause: network.ErrInvalidParameter}
	}
	for i := 0; i < nj; i++ {
		s.dfull[i] = d[i] * s.opt.DemandMultiplier
		if s.opt.Demand == DemandDriven || s.dfull[i] <= 0 {
			s.net.DemandFlow[i] = s.dfull[i]
		}
	}
	return nil
}

// Solve iterates to a steady state for the current demands, fixed-head
// grades, statuses, and settings. On return the network state arrays
// hold the solved heads, flows, and demands. A non-converged solve is
// an error only when AllowUnbalanced is off; either way the best
// available state is left in place.
func (s *Solver) Solve(ctx context.Context) (*Result, error) {
	if s.state != stateInitialized {
		return nil, ErrNotOpen
	}
	res := &Result{}

	for iter := 1; ; iter++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Iterations = iter

		s.computeCoeffs()
		if err := s.sys.Factor(s.aii, s.off); err != nil {
			return res, s.wrapSingular(err)
		}
		s.reg.FactorizationsTotal.Inc()
		s.sys.Solve(s.f, s.h)
		copy(s.net.Head[:s.net.Njunctions], s.h)

		res.RelativeError = s.newFlows()
		res.MaxHeadError = s.maxHeadError
		res.MaxFlowChange = s.maxFlowChange

		valveChanges := s.pressureValveStatus()
		res.StatusChanges += valveChanges

		if s.balanced(res) && valveChanges == 0 {
			changes := s.linkStatus()
			res.StatusChanges += changes
			if changes == 0 {
				res.Converged = true
				break
			}
		} else if iter <= 10 && iter%2 == 0 {
			// Early periodic checks keep closed-off pumps and check
			// valves from dragging the iteration far off course.
			res.StatusChanges += s.linkStatus()
		}

		if iter >= s.opt.Trials {
			break
		}
	}

	s.fixedNodeFlows()
	s.reg.RecordHydSolve(res.Converged, res.Iterations, res.RelativeError)

	if !res.Converged {
		s.reg.ConvergenceFailures.Inc()
		if !s.opt.AllowUnbalanced {
			return res, &SolveError{Op: "solve", Cause: ErrConvergence}
		}
		s.reg.WarningsTotal.Inc()
		s.log.Warn("accepting unbalanced solution",
			logging.Iterations(res.Iterations),
			logging.Float64("relative_error", res.RelativeError))
	} else {
		s.log.Debug("solve converged",
			logging.Iterations(res.Iterations),
			logging.Float64("relative_error", res.RelativeError))
	}
	return res, nil
}

func (s *Solver) balanced(res *Result) bool {
	if res.RelativeError > s.opt.Accuracy {
		return false
	}
	if s.opt.HeadError > 0 && res.MaxHeadError > s.opt.HeadError {
		return false
	}
	if s.opt.FlowChange > 0 && res.MaxFlowChange > s.opt.FlowChange {
		return false
	}
	return true
}

func (s *Solver) wrapSingular(err error) error {
	var se *sparse.SingularError
	if errors.As(err, &se) && se.Node < len(s.net.Nodes) {
		return &SolveError{Op: "factor", Node: s.net.Nodes[se.Node].ID, Cause: ErrDisconnected}
	}
	return &SolveError{Op: "factor", Cause: err}
}

func (s *Solver) isActivePressureValve(k int, l *network.Link) bool {
	if l.Type != network.PRV && l.Type != network.PSV {
		return false
	}
	return s.net.LinkStatus[k] == network.Active && network.HasSetting(s.net.Setting[k])
}

// computeCoeffs assembles the junction equations for one trial.
func (s *Solver) computeCoeffs() {
	nj := s.net.Njunctions

	for i := 0; i < nj; i++ {
		s.aii[i] = 0
		s.f[i] = 0
	}
	for e := range s.off {
		s.off[e] = 0
	}
	for i := range s.x {
		s.x[i] = 0
	}

	s.demandCoeffs()
	s.emitterCoeffs()

	for k, l := range s.net.Links {
		if s.isActivePressureValve(k, l) {
			s.p[k], s.y[k] = 0, 0
			continue
		}
		switch {
		case l.Type == network.PumpLink:
			s.p[k], s.y[k] = s.pumpCoeff(k, l)
		case l.Type.IsValve():
			s.p[k], s.y[k] = s.valveCoeff(k, l)
		default:
			s.p[k], s.y[k] = s.pipeCoeff(k, l)
		}
	}

	for k, l := range s.net.Links {
		q := s.net.Flow[k]
		s.x[l.N1] -= q
		s.x[l.N2] += q
	}

	for k, l := range s.net.Links {
		if s.isActivePressureValve(k, l) {
			continue
		}
		n1, n2 := l.N1, l.N2
		p, y := s.p[k], s.y[k]
		if n1 < nj {
			s.aii[n1] += p
			s.f[n1] += y
		} else if n2 < nj {
			s.f[n2] += p * s.net.Head[n1]
		}
		if n2 < nj {
			s.aii[n2] += p
			s.f[n2] -= y
		} else if n1 < nj {
			s.f[n1] += p * s.net.Head[n2]
		}
		if n1 < nj && n2 < nj {
			s.off[s.edgeOf[k]] -= p
		}
	}

	for i := 0; i < nj; i++ {
		s.f[i] += s.x[i]
	}

	// Active pressure valves pin the controlled node's head at the
	// setting. Demand the controlled node cannot satisfy is charged to
	// the far side so the imbalance still steers the iteration.
	for k, l := range s.net.Links {
		if !s.isActivePressureValve(k, l) {
			continue
		}
		set := s.net.Setting[k]
		switch l.Type {
		case network.PRV:
			j := l.N2
			s.aii[j] += cBig
			s.f[j] += cBig * (set + s.net.Nodes[j].Elevation)
			if s.x[j] < 0 && l.N1 < nj {
				s.f[l.N1] += s.x[j]
			}
		case network.PSV:
			i := l.N1
			s.aii[i] += cBig
			s.f[i] += cBig * (set + s.net.Nodes[i].Elevation)
			if s.x[i] > 0 && l.N2 < nj {
				s.f[l.N2] += s.x[i]
			}
		}
	}
}

// newFlows applies the flow corrections implied by the new heads and
// returns the relative flow change.
func (s *Solver) newFlows() float64 {
	nj := s.net.Njunctions
	qsum, dqsum := 0.0, 0.0
	s.maxFlowChange, s.maxHeadError = 0, 0

	for k, l := range s.net.Links {
		if s.isActivePressureValve(k, l) {
			continue
		}
		dh := s.net.Head[l.N1] - s.net.Head[l.N2]
		dq := s.y[k] - s.p[k]*dh
		if l.Type == network.PumpLink {
			pump := s.net.Pumps[l.Pump]
			if pump.Ptype == network.ConstantPower && dq > s.net.Flow[k] {
				dq = s.net.Flow[k] / 2.0
			}
		}
		s.net.Flow[k] -= dq
		qsum += math.Abs(s.net.Flow[k])
		dqsum += math.Abs(dq)
		if math.Abs(dq) > s.maxFlowChange {
			s.maxFlowChange = math.Abs(dq)
		}
		if s.p[k] > 2.0/cBig && s.p[k] < cBig/2.0 {
			if he := math.Abs(dq) / s.p[k]; he > s.maxHeadError {
				s.maxHeadError = he
			}
		}
	}

	for i := 0; i < nj; i++ {
		node := s.net.Nodes[i]
		if node.Emitter <= 0 {
			continue
		}
		dq := s.emY[i] - s.emP[i]*(s.net.Head[i]-node.Elevation)
		s.emitFlow[i] -= dq
		qsum += math.Abs(s.emitFlow[i])
		dqsum += math.Abs(dq)
	}

	if s.opt.Demand == PressureDriven {
		for i := 0; i < nj; i++ {
			if s.dfull[i] <= 0 {
				continue
			}
			href := s.net.Nodes[i].Elevation + s.opt.MinPressure
			dq := s.dY[i] - s.dP[i]*(s.net.Head[i]-href)
			s.net.DemandFlow[i] -= dq
			qsum += math.Abs(s.net.DemandFlow[i])
			dqsum += math.Abs(dq)
		}
	}

	// Active pressure valve flows come from continuity at the
	// controlled node, using the flows just updated.
	for k, l := range s.net.Links {
		if !s.isActivePressureValve(k, l) {
			continue
		}
		n := l.N2
		if l.Type == network.PSV {
			n = l.N1
		}
		need := s.net.DemandFlow[n]
		if s.net.Nodes[n].Emitter > 0 {
			need += s.emitFlow[n]
		}
		for _, k2 := range s.nodeLinks[n] {
			if k2 == k {
				continue
			}
			l2 := s.net.Links[k2]
			if l2.N1 == n {
				need += s.net.Flow[k2]
			} else {
				need -= s.net.Flow[k2]
			}
		}
		qNew := need
		if l.Type == network.PSV {
			qNew = -need
		}
		dq := s.net.Flow[k] - qNew
		s.net.Flow[k] = qNew
		qsum += math.Abs(qNew)
		dqsum += math.Abs(dq)
	}

	if qsum > s.opt.Accuracy {
		return dqsum / qsum
	}
	return 0
}

// fixedNodeFlows records the net inflow at reservoirs and tanks,
// positive when the node is filling.
func (s *Solver) fixedNodeFlows() {
	nj := s.net.Njunctions
	for i := nj; i < len(s.net.Nodes); i++ {
		s.net.DemandFlow[i] = 0
	}
	for k, l := range s.net.Links {
		q := s.net.Flow[k]
		if l.N2 >= nj {
			s.net.DemandFlow[l.N2] += q
		}
		if l.N1 >= nj {
			s.net.DemandFlow[l.N1] -= q
		}
	}
}

// AccumulateEnergy adds dt seconds of operation at the current
// operating point to every running pump's energy total.
func (s *Solver) AccumulateEnergy(dt float64) {
	if s.state != stateInitialized {
		return
	}
	s.pumpEnergy(dt)
}

// EmitterFlow returns the solved emitter outflow at node i, in cfs.
func (s *Solver) EmitterFlow(i int) float64 {
	if i < 0 || i >= len(s.emitFlow) || s.net.Nodes[i].Emitter <= 0 {
		return 0
	}
	return s.emitFlow[i]
}

// Close releases the solver's structures. Open must be called again
// before further use.
func (s *Solver) Close() {
	s.sys = nil
	s.state = stateNotOpen
}
