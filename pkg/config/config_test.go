package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/dd0wney/cluso-hydronet/pkg/hydraulic"
	"github.com/dd0wney/cluso-hydronet/pkg/network"
	"github.com/dd0wney/cluso-hydronet/pkg/quality"
)

const fullScenario = `
title: two zone test system
options:
  duration: 86400
  hydraulic_step: 1800
  headloss: hazen-williams
  demand_model: pda
  required_pressure: 46.2
  trials: 100
  accuracy: 0.0005
  quality:
    mode: chemical
    tolerance: 0.02

patterns:
  - id: daily
    factors: [0.5, 1.0, 1.5, 1.0]

curves:
  - id: pump1
    points: [[2.0, 100.0]]

junctions:
  - id: J1
    elevation: 50
    demand: 1.5
    pattern: daily
  - id: J2
    elevation: 40
    demands:
      - base: 0.5
      - base: 0.25
        pattern: daily
        category: industrial
    emitter: 0.8
    source:
      type: flowpaced
      strength: 0.4

reservoirs:
  - id: R1
    head: 220
    init_quality: 1.0

tanks:
  - id: T1
    elevation: 180
    diameter: 40
    min_level: 2
    max_level: 20
    init_level: 12
    mixing: mix2
    mix_fraction: 0.3
    overflow: true

pipes:
  - id: P1
    from: R1
    to: J1
    length: 2000
    diameter: 12
    roughness: 120
  - id: P2
    from: J1
    to: J2
    length: 1500
    diameter: 8
    roughness: 110
    check_valve: true
  - id: P3
    from: J2
    to: T1
    length: 800
    diameter: 10
    roughness: 120
    status: closed

pumps:
  - id: PU1
    from: R1
    to: J1
    head_curve: pump1
    speed: 1.2

valves:
  - id: V1
    from: J1
    to: J2
    type: prv
    diameter: 8
    setting: 60

controls:
  - link: P3
    type: high_level
    node: T1
    level: 18
    status: closed
  - link: PU1
    type: clock
    time: 21600
    status: open

rules:
  - name: night-shutdown
    priority: 1
    if:
      - object: system
        variable: clock_time
        op: ">="
        value: 79200
      - object: node
        id: T1
        variable: level
        op: ">"
        value: 10
    then:
      - link: PU1
        status: closed
    else:
      - link: PU1
        status: open
`

func TestLoadFullScenario(t *testing.T) {
	net, opt, err := Parse([]byte(fullScenario))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if net.Title != "two zone test system" {
		t.Errorf("title = %q", net.Title)
	}
	if net.Njunctions != 2 || len(net.Nodes) != 4 {
		t.Fatalf("got %d junctions, %d nodes", net.Njunctions, len(net.Nodes))
	}
	if len(net.Links) != 5 {
		t.Fatalf("got %d links", len(net.Links))
	}

	j1i, _ := net.NodeIndex("J1")
	j1 := net.Nodes[j1i]
	if len(j1.Demands) != 1 || j1.Demands[0].Base != 1.5 || j1.Demands[0].Pattern != 0 {
		t.Errorf("J1 demands = %+v", j1.Demands)
	}
	j2i, _ := net.NodeIndex("J2")
	j2 := net.Nodes[j2i]
	if len(j2.Demands) != 2 || j2.Demands[1].Category != "industrial" {
		t.Errorf("J2 demands = %+v", j2.Demands)
	}
	if j2.Emitter != 0.8 {
		t.Errorf("J2 emitter = %v", j2.Emitter)
	}
	if j2.Source == nil || j2.Source.Type != network.FlowPaced || j2.Source.Strength != 0.4 {
		t.Errorf("J2 source = %+v", j2.Source)
	}

	ri, _ := net.NodeIndex("R1")
	if net.Nodes[ri].Type != network.Reservoir {
		t.Errorf("R1 type = %v", net.Nodes[ri].Type)
	}
	if net.Nodes[ri].InitQual != 1.0 {
		t.Errorf("R1 init quality = %v", net.Nodes[ri].InitQual)
	}

	ti, _ := net.NodeIndex("T1")
	tank := net.Tanks[net.Nodes[ti].Tank]
	if tank.Hmin != 182 || tank.Hmax != 200 || tank.H0 != 192 {
		t.Errorf("tank grades = %v/%v/%v", tank.Hmin, tank.H0, tank.Hmax)
	}
	wantArea := math.Pi * 40 * 40 / 4
	if math.Abs(tank.Area-wantArea) > 1e-9 {
		t.Errorf("tank area = %v want %v", tank.Area, wantArea)
	}
	if tank.Mix != network.Mix2 || tank.MixFrac != 0.3 {
		t.Errorf("tank mixing = %v frac %v", tank.Mix, tank.MixFrac)
	}
	if !tank.Overflow {
		t.Error("tank overflow not set")
	}

	p2k, _ := net.LinkIndex("P2")
	if net.Links[p2k].Type != network.CVPipe {
		t.Errorf("P2 type = %v", net.Links[p2k].Type)
	}
	p3k, _ := net.LinkIndex("P3")
	if net.Links[p3k].InitStatus != network.Closed {
		t.Errorf("P3 status = %v", net.Links[p3k].InitStatus)
	}
	p1k, _ := net.LinkIndex("P1")
	if net.Links[p1k].Diam != 1.0 {
		t.Errorf("P1 diameter = %v ft", net.Links[p1k].Diam)
	}

	puk, _ := net.LinkIndex("PU1")
	pump := net.Pumps[net.Links[puk].Pump]
	if pump.Ptype != network.PowerFunc {
		t.Errorf("pump type = %v", pump.Ptype)
	}
	if math.Abs(pump.H0-133.334) > 0.01 || pump.Qmax != 4.0 {
		t.Errorf("pump fit h0=%v qmax=%v", pump.H0, pump.Qmax)
	}
	if net.Links[puk].InitSetting != 1.2 {
		t.Errorf("pump speed = %v", net.Links[puk].InitSetting)
	}

	vk, _ := net.LinkIndex("V1")
	if net.Links[vk].Type != network.PRV || net.Links[vk].InitSetting != 60 {
		t.Errorf("valve = %v setting %v", net.Links[vk].Type, net.Links[vk].InitSetting)
	}
	if net.Links[vk].InitStatus != network.Active {
		t.Errorf("valve status = %v", net.Links[vk].InitStatus)
	}

	if len(net.Controls) != 2 {
		t.Fatalf("got %d controls", len(net.Controls))
	}
	hl := net.Controls[0]
	if hl.Type != network.HighLevel || hl.Node != ti || hl.Grade != 198 {
		t.Errorf("level control = %+v", hl)
	}
	if net.Controls[1].Type != network.TimeOfDay || net.Controls[1].Time != 21600 {
		t.Errorf("clock control = %+v", net.Controls[1])
	}

	if len(net.Rules) != 1 {
		t.Fatalf("got %d rules", len(net.Rules))
	}
	rule := net.Rules[0]
	if rule.Priority != 1 || len(rule.Premises) != 2 || len(rule.Then) != 1 || len(rule.Else) != 1 {
		t.Errorf("rule shape = %+v", rule)
	}
	if rule.Premises[0].Object != network.RuleSystem || rule.Premises[0].Variable != network.VarClockTime {
		t.Errorf("premise 0 = %+v", rule.Premises[0])
	}
	if rule.Premises[1].Variable != network.VarLevel || rule.Premises[1].Relop != network.GT {
		t.Errorf("premise 1 = %+v", rule.Premises[1])
	}

	if opt.Duration != 86400 || opt.HydStep != 1800 {
		t.Errorf("times = %d/%d", opt.Duration, opt.HydStep)
	}
	if opt.Hydraulic.Demand != hydraulic.PressureDriven || opt.Hydraulic.RequiredPressure != 46.2 {
		t.Errorf("demand model = %+v", opt.Hydraulic)
	}
	if opt.Hydraulic.Trials != 100 || opt.Hydraulic.Accuracy != 0.0005 {
		t.Errorf("solver opts = %+v", opt.Hydraulic)
	}
	if !opt.RunQuality || opt.Quality.Mode != quality.Chemical || opt.Quality.Tolerance != 0.02 {
		t.Errorf("quality opts = %+v", opt.Quality)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(fullScenario), 0o644); err != nil {
		t.Fatal(err)
	}
	net, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(net.Nodes) != 4 {
		t.Errorf("got %d nodes", len(net.Nodes))
	}
}

func TestUnknownNodeReference(t *testing.T) {
	const text = `
junctions:
  - id: J1
reservoirs:
  - id: R1
    head: 100
pipes:
  - id: P1
    from: R1
    to: NOPE
    length: 100
    diameter: 12
    roughness: 100
`
	_, _, err := Parse([]byte(text))
	if !errors.Is(err, ErrUnknownReference) {
		t.Fatalf("err = %v, want unknown reference", err)
	}
}

func TestUnknownPatternReference(t *testing.T) {
	const text = `
junctions:
  - id: J1
    demand: 1.0
    pattern: missing
`
	_, _, err := Parse([]byte(text))
	if !errors.Is(err, ErrUnknownReference) {
		t.Fatalf("err = %v, want unknown reference", err)
	}
}

func TestValidationRejectsBadEnum(t *testing.T) {
	const text = `
options:
  headloss: moody
`
	_, _, err := Parse([]byte(text))
	if !errors.Is(err, ErrInvalidScenario) {
		t.Fatalf("err = %v, want invalid scenario", err)
	}
}

func TestValidationRejectsInvertedTankLevels(t *testing.T) {
	const text = `
tanks:
  - id: T1
    elevation: 100
    diameter: 20
    min_level: 10
    max_level: 5
    init_level: 7
`
	_, _, err := Parse([]byte(text))
	if !errors.Is(err, ErrInvalidScenario) {
		t.Fatalf("err = %v, want invalid scenario", err)
	}
}

func TestPumpNeedsCurveOrPower(t *testing.T) {
	const text = `
reservoirs:
  - id: R1
    head: 100
junctions:
  - id: J1
pumps:
  - id: PU1
    from: R1
    to: J1
`
	_, _, err := Parse([]byte(text))
	if !errors.Is(err, ErrInvalidScenario) {
		t.Fatalf("err = %v, want invalid scenario", err)
	}
}

func TestRuleStatusPremiseOnNodeRejected(t *testing.T) {
	const text = `
reservoirs:
  - id: R1
    head: 100
junctions:
  - id: J1
pipes:
  - id: P1
    from: R1
    to: J1
    length: 100
    diameter: 12
    roughness: 100
rules:
  - name: broken
    if:
      - object: node
        id: R1
        variable: status
        op: "="
        status: open
    then:
      - link: P1
        status: closed
`
	_, _, err := Parse([]byte(text))
	if !errors.Is(err, network.ErrInvalidParameter) {
		t.Fatalf("err = %v, want invalid parameter", err)
	}
}

func TestTraceModeNeedsTraceNode(t *testing.T) {
	const text = `
options:
  quality:
    mode: trace
`
	_, _, err := Parse([]byte(text))
	if !errors.Is(err, ErrInvalidScenario) {
		t.Fatalf("err = %v, want invalid scenario", err)
	}
}

func TestHydraulicStepBoundedByDuration(t *testing.T) {
	const text = `
options:
  duration: 600
  hydraulic_step: 3600
`
	_, _, err := Parse([]byte(text))
	if !errors.Is(err, ErrInvalidScenario) {
		t.Fatalf("err = %v, want invalid scenario", err)
	}
}

func TestMalformedYAML(t *testing.T) {
	_, _, err := Parse([]byte("junctions: [what"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}
