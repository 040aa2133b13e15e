package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-hydronet/pkg/hydraulic"
	"github.com/dd0wney/cluso-hydronet/pkg/network"
	"github.com/dd0wney/cluso-hydronet/pkg/quality"
	"github.com/dd0wney/cluso-hydronet/pkg/simulation"
)

var (
	// ErrUnknownReference marks a scenario element naming a node, link,
	// pattern, or curve that the scenario never defines.
	ErrUnknownReference = errors.New("unknown reference")
	// ErrInvalidScenario marks a scenario that parses but cannot be built.
	ErrInvalidScenario = errors.New("invalid scenario")
)

// Load reads a YAML scenario file and builds the network model and run
// options it describes.
func Load(path string) (*network.Network, simulation.Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, simulation.Options{}, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Parse builds a scenario from raw YAML bytes.
func Parse(data []byte) (*network.Network, simulation.Options, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, simulation.Options{}, fmt.Errorf("parse scenario: %w", err)
	}
	if err := validate.Struct(&sc); err != nil {
		return nil, simulation.Options{}, fmt.Errorf("%w: %w", ErrInvalidScenario, formatValidationError(err))
	}
	if err := checkOptions(&sc.Options); err != nil {
		return nil, simulation.Options{}, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	net, err := sc.buildNetwork()
	if err != nil {
		return nil, simulation.Options{}, err
	}
	opt, err := sc.buildOptions(net)
	if err != nil {
		return nil, simulation.Options{}, err
	}
	return net, opt, nil
}

func (sc *Scenario) buildNetwork() (*network.Network, error) {
	net := network.New(sc.Title)

	for _, p := range sc.Patterns {
		pat := &network.Pattern{ID: p.ID, Factors: append([]float64(nil), p.Factors...)}
		if _, err := net.AddPattern(pat); err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p.ID, err)
		}
	}
	for _, c := range sc.Curves {
		crv := &network.Curve{ID: c.ID}
		for _, pt := range c.Points {
			crv.X = append(crv.X, pt[0])
			crv.Y = append(crv.Y, pt[1])
		}
		if _, err := net.AddCurve(crv); err != nil {
			return nil, fmt.Errorf("curve %q: %w", c.ID, err)
		}
	}

	for _, j := range sc.Junctions {
		node := &network.Node{
			ID:        j.ID,
			Elevation: j.Elevation,
			Emitter:   j.Emitter,
			InitQual:  j.InitQual,
		}
		if j.Demand != 0 || j.Pattern != "" {
			pi, err := sc.patternRef(net, j.Pattern, "junction", j.ID)
			if err != nil {
				return nil, err
			}
			node.Demands = append(node.Demands, network.Demand{Base: j.Demand, Pattern: pi})
		}
		for _, d := range j.Demands {
			pi, err := sc.patternRef(net, d.Pattern, "junction", j.ID)
			if err != nil {
				return nil, err
			}
			node.Demands = append(node.Demands, network.Demand{Base: d.Base, Pattern: pi, Category: d.Category})
		}
		src, err := sc.buildSource(net, j.Source, j.ID)
		if err != nil {
			return nil, err
		}
		node.Source = src
		if _, err := net.AddJunction(node); err != nil {
			return nil, fmt.Errorf("junction %q: %w", j.ID, err)
		}
	}

	for _, r := range sc.Reservoirs {
		node := &network.Node{ID: r.ID, Elevation: r.Head, InitQual: r.InitQual}
		src, err := sc.buildSource(net, r.Source, r.ID)
		if err != nil {
			return nil, err
		}
		node.Source = src
		tank := &network.Tank{
			Hmin:     r.Head,
			Hmax:     r.Head,
			H0:       r.Head,
			VolCurve: -1,
		}
		if _, err := net.AddTank(node, tank); err != nil {
			return nil, fmt.Errorf("reservoir %q: %w", r.ID, err)
		}
	}

	for _, t := range sc.Tanks {
		node := &network.Node{ID: t.ID, Elevation: t.Elevation, InitQual: t.InitQual}
		tank := &network.Tank{
			Hmin:     t.Elevation + t.MinLevel,
			Hmax:     t.Elevation + t.MaxLevel,
			H0:       t.Elevation + t.InitLevel,
			Vmin:     t.MinVolume,
			VolCurve: -1,
			Kb:       t.BulkCoeff,
			Overflow: t.Overflow,
		}
		if t.VolumeCurve != "" {
			ci, ok := net.CurveIndex(t.VolumeCurve)
			if !ok {
				return nil, fmt.Errorf("tank %q: volume curve %q: %w", t.ID, t.VolumeCurve, ErrUnknownReference)
			}
			tank.VolCurve = ci
		} else {
			tank.Area = math.Pi * t.Diameter * t.Diameter / 4.0
			if tank.Area == 0 {
				return nil, fmt.Errorf("tank %q: needs a diameter or a volume curve: %w", t.ID, ErrInvalidScenario)
			}
		}
		tank.Mix, tank.MixFrac = parseMixing(t.Mixing, t.MixFraction)
		if _, err := net.AddTank(node, tank); err != nil {
			return nil, fmt.Errorf("tank %q: %w", t.ID, err)
		}
	}

	if err := sc.buildLinks(net); err != nil {
		return nil, err
	}
	if err := sc.buildControls(net); err != nil {
		return nil, err
	}
	if err := sc.buildRules(net); err != nil {
		return nil, err
	}
	return net, nil
}

func (sc *Scenario) buildLinks(net *network.Network) error {
	for _, p := range sc.Pipes {
		n1, n2, err := sc.endpoints(net, "pipe", p.ID, p.From, p.To)
		if err != nil {
			return err
		}
		ltype := network.Pipe
		if p.CheckValve {
			ltype = network.CVPipe
		}
		link := &network.Link{
			ID:          p.ID,
			N1:          n1,
			N2:          n2,
			Type:        ltype,
			Diam:        p.Diameter / 12.0, // inches on the wire, ft in the model
			Length:      p.Length,
			Roughness:   p.Roughness,
			MinorLoss:   p.MinorLoss,
			Kb:          p.BulkCoeff,
			Kw:          p.WallCoeff,
			InitStatus:  parseStatus(p.Status, network.Open),
			InitSetting: network.NoSetting,
		}
		if _, err := net.AddLink(link); err != nil {
			return fmt.Errorf("pipe %q: %w", p.ID, err)
		}
	}

	for _, p := range sc.Pumps {
		n1, n2, err := sc.endpoints(net, "pump", p.ID, p.From, p.To)
		if err != nil {
			return err
		}
		speed := p.Speed
		if speed == 0 {
			speed = 1.0
		}
		link := &network.Link{
			ID:          p.ID,
			N1:          n1,
			N2:          n2,
			Type:        network.PumpLink,
			InitStatus:  parseStatus(p.Status, network.Open),
			InitSetting: speed,
		}
		k, err := net.AddLink(link)
		if err != nil {
			return fmt.Errorf("pump %q: %w", p.ID, err)
		}
		pump := net.Pumps[net.Links[k].Pump]
		switch {
		case p.HeadCurve != "":
			ci, ok := net.CurveIndex(p.HeadCurve)
			if !ok {
				return fmt.Errorf("pump %q: head curve %q: %w", p.ID, p.HeadCurve, ErrUnknownReference)
			}
			if err := network.FitPumpCurve(pump, net.Curves[ci]); err != nil {
				return fmt.Errorf("pump %q: head curve %q: %w", p.ID, p.HeadCurve, err)
			}
			pump.HCurve = ci
		case p.Power > 0:
			pump.Ptype = network.ConstantPower
			pump.Power = p.Power
		default:
			return fmt.Errorf("pump %q: needs a head curve or a power rating: %w", p.ID, ErrInvalidScenario)
		}
		if p.EfficiencyCurve != "" {
			ci, ok := net.CurveIndex(p.EfficiencyCurve)
			if !ok {
				return fmt.Errorf("pump %q: efficiency curve %q: %w", p.ID, p.EfficiencyCurve, ErrUnknownReference)
			}
			pump.ECurve = ci
		}
	}

	for _, v := range sc.Valves {
		n1, n2, err := sc.endpoints(net, "valve", v.ID, v.From, v.To)
		if err != nil {
			return err
		}
		vtype, err := parseValveType(v.Type)
		if err != nil {
			return fmt.Errorf("valve %q: %w", v.ID, err)
		}
		status := network.Active
		if v.Status != "" {
			status = parseStatus(v.Status, network.Active)
		}
		link := &network.Link{
			ID:          v.ID,
			N1:          n1,
			N2:          n2,
			Type:        vtype,
			Diam:        v.Diameter / 12.0,
			MinorLoss:   v.MinorLoss,
			InitStatus:  status,
			InitSetting: v.Setting,
		}
		k, err := net.AddLink(link)
		if err != nil {
			return fmt.Errorf("valve %q: %w", v.ID, err)
		}
		if vtype == network.GPV {
			if v.Curve == "" {
				return fmt.Errorf("valve %q: gpv needs a headloss curve: %w", v.ID, ErrInvalidScenario)
			}
			ci, ok := net.CurveIndex(v.Curve)
			if !ok {
				return fmt.Errorf("valve %q: curve %q: %w", v.ID, v.Curve, ErrUnknownReference)
			}
			net.Valves[net.Links[k].Valve].HCurve = ci
			net.Links[k].InitSetting = float64(ci)
		}
	}
	return nil
}

func (sc *Scenario) buildControls(net *network.Network) error {
	for i, c := range sc.Controls {
		k, ok := net.LinkIndex(c.Link)
		if !ok {
			return fmt.Errorf("control %d: link %q: %w", i, c.Link, ErrUnknownReference)
		}
		ctrl := &network.Control{
			Link:    k,
			Status:  parseStatus(c.Status, network.StatusUnset),
			Setting: network.NoSetting,
			Node:    -1,
			Time:    c.Time,
		}
		if c.Setting != nil {
			ctrl.Setting = *c.Setting
		}
		switch c.Type {
		case "low_level", "high_level":
			ni, ok := net.NodeIndex(c.Node)
			if !ok {
				return fmt.Errorf("control %d: node %q: %w", i, c.Node, ErrUnknownReference)
			}
			ctrl.Node = ni
			ctrl.Grade = net.Nodes[ni].Elevation + c.Level
			if c.Type == "low_level" {
				ctrl.Type = network.LowLevel
			} else {
				ctrl.Type = network.HighLevel
			}
		case "timer":
			ctrl.Type = network.Timer
		case "clock":
			ctrl.Type = network.TimeOfDay
		}
		if _, err := net.AddControl(ctrl); err != nil {
			return fmt.Errorf("control %d: %w", i, err)
		}
	}
	return nil
}

func (sc *Scenario) buildRules(net *network.Network) error {
	for _, r := range sc.Rules {
		rule := &network.Rule{Name: r.Name, Priority: r.Priority}
		for _, p := range r.If {
			prem, err := sc.buildPremise(net, r.Name, p)
			if err != nil {
				return err
			}
			rule.Premises = append(rule.Premises, prem)
		}
		var err error
		if rule.Then, err = sc.buildActions(net, r.Name, r.Then); err != nil {
			return err
		}
		if rule.Else, err = sc.buildActions(net, r.Name, r.Else); err != nil {
			return err
		}
		if _, err := net.AddRule(rule); err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	return nil
}

func (sc *Scenario) buildPremise(net *network.Network, rule string, p PremiseDef) (network.Premise, error) {
	prem := network.Premise{
		Status: parseStatus(p.Status, network.StatusUnset),
		Value:  p.Value,
	}
	if p.Join == "or" {
		prem.Logop = network.Or
	}
	switch p.Object {
	case "node":
		prem.Object = network.RuleNode
		ni, ok := net.NodeIndex(p.ID)
		if !ok {
			return prem, fmt.Errorf("rule %q: node %q: %w", rule, p.ID, ErrUnknownReference)
		}
		prem.Index = ni
	case "link":
		prem.Object = network.RuleLink
		k, ok := net.LinkIndex(p.ID)
		if !ok {
			return prem, fmt.Errorf("rule %q: link %q: %w", rule, p.ID, ErrUnknownReference)
		}
		prem.Index = k
	case "system":
		prem.Object = network.RuleSystem
	}
	v, err := parseRuleVariable(p.Variable)
	if err != nil {
		return prem, fmt.Errorf("rule %q: %w", rule, err)
	}
	prem.Variable = v
	op, err := parseRelop(p.Op)
	if err != nil {
		return prem, fmt.Errorf("rule %q: %w", rule, err)
	}
	prem.Relop = op
	return prem, nil
}

func (sc *Scenario) buildActions(net *network.Network, rule string, defs []ActionDef) ([]network.RuleAction, error) {
	var acts []network.RuleAction
	for _, a := range defs {
		k, ok := net.LinkIndex(a.Link)
		if !ok {
			return nil, fmt.Errorf("rule %q: link %q: %w", rule, a.Link, ErrUnknownReference)
		}
		act := network.RuleAction{
			Link:    k,
			Status:  parseStatus(a.Status, network.StatusUnset),
			Setting: network.NoSetting,
		}
		if a.Setting != nil {
			act.Setting = *a.Setting
		}
		acts = append(acts, act)
	}
	return acts, nil
}

func (sc *Scenario) buildOptions(net *network.Network) (simulation.Options, error) {
	opt := simulation.DefaultOptions()
	o := sc.Options

	setInt64 := func(dst *int64, v int64) {
		if v > 0 {
			*dst = v
		}
	}
	opt.Duration = o.Duration
	setInt64(&opt.HydStep, o.HydStep)
	setInt64(&opt.PatternStep, o.PatternStep)
	setInt64(&opt.ReportStep, o.ReportStep)
	setInt64(&opt.RuleStep, o.RuleStep)
	opt.StartClock = o.StartClock

	h := &opt.Hydraulic
	switch o.Headloss {
	case "darcy-weisbach":
		h.Headloss = hydraulic.DarcyWeisbach
	case "chezy-manning":
		h.Headloss = hydraulic.ChezyManning
	}
	if o.DemandModel == "pda" {
		h.Demand = hydraulic.PressureDriven
	}
	if o.Trials > 0 {
		h.Trials = o.Trials
	}
	if o.Accuracy > 0 {
		h.Accuracy = o.Accuracy
	}
	h.HeadError = o.HeadError
	h.FlowChange = o.FlowChange
	if o.Unbalanced == "stop" {
		h.AllowUnbalanced = false
	}
	if o.MinPressure != 0 {
		h.MinPressure = o.MinPressure
	}
	if o.RequiredPressure > 0 {
		h.RequiredPressure = o.RequiredPressure
	}
	if o.PressureExponent > 0 {
		h.PressureExponent = o.PressureExponent
	}
	if o.EmitterExponent > 0 {
		h.EmitterExponent = o.EmitterExponent
	}
	if o.DemandMultiplier > 0 {
		h.DemandMultiplier = o.DemandMultiplier
	}
	if o.Viscosity > 0 {
		h.Viscosity = o.Viscosity
	}
	if o.SpecificGravity > 0 {
		h.SpecificGravity = o.SpecificGravity
	}

	q := o.Quality
	if q.Mode != "" && q.Mode != "none" {
		opt.RunQuality = true
		switch q.Mode {
		case "chemical":
			opt.Quality.Mode = quality.Chemical
		case "age":
			opt.Quality.Mode = quality.Age
		case "trace":
			opt.Quality.Mode = quality.Trace
			ni, ok := net.NodeIndex(q.TraceNode)
			if !ok {
				return opt, fmt.Errorf("quality: trace node %q: %w", q.TraceNode, ErrUnknownReference)
			}
			opt.Quality.TraceNode = ni
		}
		opt.Quality.Step = q.Step
		if q.Tolerance > 0 {
			opt.Quality.Tolerance = q.Tolerance
		}
		opt.Quality.LimitConc = q.Limit
		opt.Quality.PatternStep = opt.PatternStep
	}
	return opt, nil
}

func (sc *Scenario) buildSource(net *network.Network, def *SourceDef, node string) (*network.Source, error) {
	if def == nil {
		return nil, nil
	}
	src := &network.Source{Strength: def.Strength, Pattern: -1}
	switch def.Type {
	case "concen":
		src.Type = network.Concen
	case "mass":
		src.Type = network.Mass
	case "flowpaced":
		src.Type = network.FlowPaced
	case "setpoint":
		src.Type = network.Setpoint
	}
	if def.Pattern != "" {
		pi, ok := net.PatternIndex(def.Pattern)
		if !ok {
			return nil, fmt.Errorf("node %q: source pattern %q: %w", node, def.Pattern, ErrUnknownReference)
		}
		src.Pattern = pi
	}
	return src, nil
}

func (sc *Scenario) patternRef(net *network.Network, id, kind, owner string) (int, error) {
	if id == "" {
		return -1, nil
	}
	pi, ok := net.PatternIndex(id)
	if !ok {
		return 0, fmt.Errorf("%s %q: pattern %q: %w", kind, owner, id, ErrUnknownReference)
	}
	return pi, nil
}

func (sc *Scenario) endpoints(net *network.Network, kind, id, from, to string) (int, int, error) {
	n1, ok := net.NodeIndex(from)
	if !ok {
		return 0, 0, fmt.Errorf("%s %q: node %q: %w", kind, id, from, ErrUnknownReference)
	}
	n2, ok := net.NodeIndex(to)
	if !ok {
		return 0, 0, fmt.Errorf("%s %q: node %q: %w", kind, id, to, ErrUnknownReference)
	}
	return n1, n2, nil
}

func parseStatus(s string, fallback network.Status) network.Status {
	switch s {
	case "open":
		return network.Open
	case "closed":
		return network.Closed
	case "active":
		return network.Active
	default:
		return fallback
	}
}

func parseMixing(s string, frac float64) (network.MixingModel, float64) {
	switch s {
	case "mix2":
		if frac == 0 {
			frac = 1.0
		}
		return network.Mix2, frac
	case "fifo":
		return network.FIFO, 0
	case "lifo":
		return network.LIFO, 0
	default:
		return network.Mix1, 0
	}
}

func parseValveType(s string) (network.LinkType, error) {
	switch s {
	case "prv":
		return network.PRV, nil
	case "psv":
		return network.PSV, nil
	case "pbv":
		return network.PBV, nil
	case "fcv":
		return network.FCV, nil
	case "tcv":
		return network.TCV, nil
	case "gpv":
		return network.GPV, nil
	default:
		return 0, fmt.Errorf("valve type %q: %w", s, ErrInvalidScenario)
	}
}

func parseRuleVariable(s string) (network.RuleVariable, error) {
	switch s {
	case "demand":
		return network.VarDemand, nil
	case "head":
		return network.VarHead, nil
	case "grade":
		return network.VarGrade, nil
	case "level":
		return network.VarLevel, nil
	case "pressure":
		return network.VarPressure, nil
	case "flow":
		return network.VarFlow, nil
	case "status":
		return network.VarStatus, nil
	case "setting":
		return network.VarSetting, nil
	case "fill_time":
		return network.VarFillTime, nil
	case "drain_time":
		return network.VarDrainTime, nil
	case "time":
		return network.VarTime, nil
	case "clock_time":
		return network.VarClockTime, nil
	default:
		return 0, fmt.Errorf("rule variable %q: %w", s, ErrInvalidScenario)
	}
}

func parseRelop(s string) (network.Relop, error) {
	switch s {
	case "=":
		return network.EQ, nil
	case "<>", "!=":
		return network.NE, nil
	case "<":
		return network.LT, nil
	case ">":
		return network.GT, nil
	case "<=":
		return network.LE, nil
	case ">=":
		return network.GE, nil
	default:
		return 0, fmt.Errorf("rule operator %q: %w", s, ErrInvalidScenario)
	}
}
