// Package simulation drives extended-period runs: it applies due
// controls and rules, solves hydraulics, integrates tank storage, and
// advances water quality, choosing each step length from the nearest
// pattern, report, rule, or tank event boundary.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dd0wney/cluso-hydronet/pkg/hydraulic"
	"github.com/dd0wney/cluso-hydronet/pkg/logging"
	"github.com/dd0wney/cluso-hydronet/pkg/metrics"
	"github.com/dd0wney/cluso-hydronet/pkg/network"
	"github.com/dd0wney/cluso-hydronet/pkg/quality"
	"github.com/dd0wney/cluso-hydronet/pkg/rules"
)

// ErrNotOpen is returned when Step or Run is called before Open.
var ErrNotOpen = errors.New("simulator not opened")

const (
	secondsPerDay = 86400
	// flowEps is the net tank inflow below which no event is projected.
	flowEps = 1e-9
	// volTol is the volume slack allowed before a bound clamp warns.
	volTol = 1e-4
)

// Change records one link-state mutation applied at a step boundary,
// kept so a run can be audited or replayed.
type Change struct {
	Link        int
	Source      string // "control" or the firing rule's name
	From, To    network.Status
	FromSetting float64
	ToSetting   float64
}

// StepResult reports one completed step: the time it solved at, the
// step length chosen after it, and the mutations applied before it.
type StepResult struct {
	Clock     int64
	Dt        int64
	Hydraulic *hydraulic.Result
	Changes   []Change
}

// Result summarizes a full run.
type Result struct {
	Steps            int
	Clock            int64
	TotalIterations  int
	MaxRelativeError float64
	Warnings         []string
	MassBalance      *quality.Balance
}

// Recorder receives the network state after each solved step.
// Implementations own the persistence format.
type Recorder interface {
	RecordStep(clock, dt int64, net *network.Network) error
}

// Simulator owns one extended-period run over a network.
type Simulator struct {
	net *network.Network
	opt Options
	log logging.Logger
	reg *metrics.Registry

	hyd   *hydraulic.Solver
	qual  *quality.Solver
	rules *rules.Engine
	rec   Recorder

	clock        int64
	lastControls int64
	demands      []float64
	controlled   []bool
	warnings     []string
	opened       bool
}

// New creates a simulator for net. log and reg may be nil.
func New(net *network.Network, opt Options, log logging.Logger, reg *metrics.Registry) *Simulator {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}
	return &Simulator{
		net: net,
		opt: opt,
		log: log.With(logging.Component("simulation")),
		reg: reg,
	}
}

// SetRecorder attaches a per-step state sink. Must be called before Run.
func (s *Simulator) SetRecorder(r Recorder) { s.rec = r }

// Open resets the network state and prepares the solvers.
func (s *Simulator) Open() error {
	s.net.InitState()

	s.hyd = hydraulic.New(s.net, s.opt.Hydraulic, s.log, s.reg)
	if err := s.hyd.Open(); err != nil {
		return err
	}
	if err := s.hyd.Init(true); err != nil {
		return err
	}
	if len(s.net.Rules) > 0 {
		s.rules = rules.New(s.net, s.opt.StartClock, s.log)
	}
	if s.opt.RunQuality {
		s.qual = quality.New(s.net, s.opt.Quality, s.log, s.reg)
		if err := s.qual.Init(s.opt.HydStep); err != nil {
			return err
		}
	}

	s.demands = make([]float64, s.net.Njunctions)
	s.controlled = make([]bool, len(s.net.Links))
	s.clock = 0
	s.lastControls = -1
	s.warnings = nil
	s.opened = true
	return nil
}

// Close releases solver resources. The network keeps the state of the
// last completed step.
func (s *Simulator) Close() {
	if s.hyd != nil {
		s.hyd.Close()
	}
	s.opened = false
}

// Run executes the whole configured duration and returns the summary.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	if !s.opened {
		if err := s.Open(); err != nil {
			return nil, err
		}
	}
	defer s.Close()

	result := &Result{}
	for {
		sr, err := s.Step(ctx)
		if err != nil {
			result.Clock = s.clock
			result.Warnings = s.warnings
			return result, err
		}
		result.Steps++
		result.TotalIterations += sr.Hydraulic.Iterations
		if sr.Hydraulic.RelativeError > result.MaxRelativeError {
			result.MaxRelativeError = sr.Hydraulic.RelativeError
		}
		if sr.Dt == 0 {
			break
		}
	}
	result.Clock = s.clock
	result.Warnings = s.warnings
	if s.qual != nil {
		b := s.qual.MassBalance()
		result.MassBalance = &b
	}
	s.log.Info("run complete",
		logging.Clock(s.clock),
		logging.Count(result.Steps),
		logging.Int("warnings", len(result.Warnings)))
	return result, nil
}

// Step applies due controls and rules, solves hydraulics at the
// current clock, advances quality and tank storage over the chosen
// step length, and moves the clock forward. A zero Dt in the result
// marks the end of the run.
func (s *Simulator) Step(ctx context.Context) (*StepResult, error) {
	if !s.opened {
		return nil, ErrNotOpen
	}
	start := time.Now()
	sr := &StepResult{Clock: s.clock}

	sr.Changes = s.applyControls()
	sr.Changes = append(sr.Changes, s.applyRules()...)

	s.updateDemands()
	if err := s.hyd.SetDemands(s.demands); err != nil {
		return nil, err
	}
	res, err := s.hyd.Solve(ctx)
	if err != nil {
		return nil, err
	}
	sr.Hydraulic = res
	if !res.Converged {
		s.warnf("hydraulics unbalanced at %ds: relative error %.4g after %d trials",
			s.clock, res.RelativeError, res.Iterations)
	}

	sr.Dt = s.nextStep()
	dt := float64(sr.Dt)

	s.hyd.AccumulateEnergy(dt)
	if s.qual != nil && sr.Dt > 0 {
		if err := s.qual.Advance(s.clock, sr.Dt); err != nil {
			return nil, err
		}
	}
	s.integrateTanks(dt)

	if s.rec != nil {
		if err := s.rec.RecordStep(s.clock, sr.Dt, s.net); err != nil {
			return nil, err
		}
	}
	s.reg.RecordStep(s.clock, time.Since(start))

	s.lastControls = s.clock
	s.clock += sr.Dt
	return sr, nil
}

// updateDemands rescales every junction's demand records by their
// patterns at the current period.
func (s *Simulator) updateDemands() {
	var period int64
	if s.opt.PatternStep > 0 {
		period = (s.clock + s.opt.PatternStart) / s.opt.PatternStep
	}
	for i := 0; i < s.net.Njunctions; i++ {
		d := 0.0
		for _, rec := range s.net.Nodes[i].Demands {
			f := 1.0
			if rec.Pattern >= 0 {
				f = s.net.Patterns[rec.Pattern].Factor(period)
			}
			d += rec.Base * f
		}
		s.demands[i] = d
	}
}

// applyControls fires every due simple control. Level controls apply
// while their condition holds; time controls fire once when their
// moment falls inside the window since the previous step.
func (s *Simulator) applyControls() []Change {
	for k := range s.controlled {
		s.controlled[k] = false
	}
	var changes []Change
	for _, c := range s.net.Controls {
		if !s.controlDue(c) {
			continue
		}
		s.controlled[c.Link] = true
		if ch, changed := s.applyChange(c.Link, c.Status, c.Setting, "control"); changed {
			changes = append(changes, ch)
		}
	}
	if len(changes) > 0 {
		s.reg.RecordControlAction("control", len(changes))
	}
	return changes
}

func (s *Simulator) controlDue(c *network.Control) bool {
	switch c.Type {
	case network.LowLevel:
		return s.net.Head[c.Node] < c.Grade
	case network.HighLevel:
		return s.net.Head[c.Node] > c.Grade
	case network.Timer:
		return c.Time > s.lastControls && c.Time <= s.clock
	case network.TimeOfDay:
		return s.timeOfDayDue(c.Time)
	}
	return false
}

// timeOfDayDue reports whether the daily moment target fell inside the
// window since the previous step, handling midnight wrap.
func (s *Simulator) timeOfDayDue(target int64) bool {
	prev, now := s.lastControls, s.clock
	if now <= prev {
		return false
	}
	if now-prev >= secondsPerDay {
		return true
	}
	p := mod(s.opt.StartClock+prev, secondsPerDay)
	n := mod(s.opt.StartClock+now, secondsPerDay)
	if p <= n {
		return target > p && target <= n
	}
	return target > p || target <= n
}

// applyRules applies this step's rule actions. A rule overrides a
// simple control on the same link only when its priority is above
// zero.
func (s *Simulator) applyRules() []Change {
	if s.rules == nil {
		return nil
	}
	var changes []Change
	for _, a := range s.rules.Evaluate(s.clock) {
		if s.controlled[a.Link] && a.Priority <= 0 {
			continue
		}
		if ch, changed := s.applyChange(a.Link, a.Status, a.Setting, a.Rule); changed {
			changes = append(changes, ch)
		}
	}
	if len(changes) > 0 {
		s.reg.RecordControlAction("rule", len(changes))
	}
	return changes
}

// applyChange mutates one link's status and setting. A new setting
// reactivates a valve and interprets zero pump speed as closed; a
// forced open or closed status clears a valve's setting so the solver
// stops holding its setpoint.
func (s *Simulator) applyChange(k int, status network.Status, setting float64, source string) (Change, bool) {
	l := s.net.Links[k]
	ch := Change{
		Link:        k,
		Source:      source,
		From:        s.net.LinkStatus[k],
		FromSetting: s.net.Setting[k],
	}
	changed := false

	if network.HasSetting(setting) {
		if setting != s.net.Setting[k] {
			s.net.Setting[k] = setting
			changed = true
		}
		switch {
		case l.Type == network.PumpLink:
			if setting == 0 {
				status = network.Closed
			} else if status == network.StatusUnset && s.net.LinkStatus[k] == network.Closed {
				status = network.Open
			}
		case l.Type.IsValve():
			if status == network.StatusUnset {
				status = network.Active
			}
		}
	}

	if status != network.StatusUnset && status != s.net.LinkStatus[k] {
		s.net.LinkStatus[k] = status
		if l.Type.IsValve() && status != network.Active {
			s.net.Setting[k] = network.NoSetting
		}
		changed = true
	}

	if changed {
		ch.To = s.net.LinkStatus[k]
		ch.ToSetting = s.net.Setting[k]
		s.log.Debug("link state changed",
			logging.Link(l.ID),
			logging.String("source", source),
			logging.Int("status", int(ch.To)))
	}
	return ch, changed
}

// nextStep picks the next step length: the nearest of the hydraulic,
// pattern, report, and rule boundaries, pending time controls, and
// projected tank events, capped by the remaining duration.
func (s *Simulator) nextStep() int64 {
	remaining := s.opt.Duration - s.clock
	if remaining <= 0 {
		return 0
	}
	dt := remaining
	take := func(t int64) {
		if t > 0 && t < dt {
			dt = t
		}
	}

	take(boundary(s.clock, s.opt.HydStep, 0))
	take(boundary(s.clock, s.opt.PatternStep, s.opt.PatternStart))
	take(boundary(s.clock, s.opt.ReportStep, s.opt.ReportStart))
	rstep := s.opt.RuleStep
	if rstep <= 0 {
		rstep = s.opt.HydStep
	}
	take(boundary(s.clock, rstep, 0))

	for _, c := range s.net.Controls {
		switch c.Type {
		case network.Timer:
			if c.Time > s.clock {
				take(c.Time - s.clock)
			}
		case network.TimeOfDay:
			delta := mod(c.Time-(s.opt.StartClock+s.clock), secondsPerDay)
			if delta == 0 {
				delta = secondsPerDay
			}
			take(delta)
		}
	}

	return s.tankTimeStep(dt)
}

// boundary returns the time to the next multiple of step past start.
func boundary(clock, step, start int64) int64 {
	if step <= 0 {
		return 0
	}
	return step - mod(clock-start, step)
}

func mod(x, m int64) int64 {
	r := x % m
	if r < 0 {
		r += m
	}
	return r
}

// tankTimeStep shortens dt to the first projected tank event: a tank
// reaching its physical bound, or crossing the trigger grade of a
// level control that would change its link.
func (s *Simulator) tankTimeStep(dt int64) int64 {
	event := false
	project := func(v, target, q float64) {
		t := int64(math.Ceil((target - v) / q))
		if t > 0 && t < dt {
			dt = t
			event = true
		}
	}

	for ti, t := range s.net.Tanks {
		if t.IsReservoir() {
			continue
		}
		q := s.net.DemandFlow[t.Node]
		v := s.net.TankVolume[ti]
		if q > flowEps && v < t.Vmax {
			project(v, t.Vmax, q)
		} else if q < -flowEps && v > t.Vmin {
			project(v, t.Vmin, q)
		}
	}

	for _, c := range s.net.Controls {
		if c.Type != network.LowLevel && c.Type != network.HighLevel {
			continue
		}
		ti := s.net.Nodes[c.Node].Tank
		if ti < 0 || s.net.Tanks[ti].IsReservoir() || !s.wouldChange(c) {
			continue
		}
		t := s.net.Tanks[ti]
		q := s.net.DemandFlow[t.Node]
		v := s.net.TankVolume[ti]
		vt := t.Volume(s.net, c.Grade)
		if c.Type == network.HighLevel && q > flowEps && v < vt {
			project(v, vt, q)
		} else if c.Type == network.LowLevel && q < -flowEps && v > vt {
			project(v, vt, q)
		}
	}

	if event {
		s.reg.TankEventsTotal.Inc()
	}
	return dt
}

func (s *Simulator) wouldChange(c *network.Control) bool {
	if c.Status != network.StatusUnset && c.Status != s.net.LinkStatus[c.Link] {
		return true
	}
	if network.HasSetting(c.Setting) && c.Setting != s.net.Setting[c.Link] {
		return true
	}
	return false
}

// integrateTanks advances tank volumes by their net inflow over dt,
// clamping at the physical bounds and refreshing the water-surface
// grades the next solve will use.
func (s *Simulator) integrateTanks(dt float64) {
	for ti, t := range s.net.Tanks {
		if t.IsReservoir() {
			continue
		}
		v := s.net.TankVolume[ti] + s.net.DemandFlow[t.Node]*dt
		id := s.net.Nodes[t.Node].ID
		if v >= t.Vmax {
			if v > t.Vmax+volTol {
				s.reg.TankEventsTotal.Inc()
				if t.Overflow {
					s.log.Info("tank overflowing",
						logging.Node(id),
						logging.Float64("spill_ft3", v-t.Vmax))
				} else {
					s.warnf("tank %s full at %ds: inflow clamped", id, s.clock)
				}
			}
			v = t.Vmax
		} else if v <= t.Vmin {
			if v < t.Vmin-volTol {
				s.reg.TankEventsTotal.Inc()
				s.warnf("tank %s empty at %ds: outflow clamped", id, s.clock)
			}
			v = t.Vmin
		}
		s.net.TankVolume[ti] = v
		s.net.Head[t.Node] = t.Grade(s.net, v)
	}
}

func (s *Simulator) warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.warnings = append(s.warnings, msg)
	s.reg.WarningsTotal.Inc()
	s.log.Warn(msg)
}
