package rules

import (
	"math"
	"testing"

	"github.com/dd0wney/cluso-hydronet/pkg/network"
)

// newTestNet builds a reservoir feeding a junction through a pump,
// with a tank hanging off the junction, and initializes state.
func newTestNet(t *testing.T) *network.Network {
	t.Helper()
	net := network.New("rules")
	j, err := net.AddJunction(&network.Node{ID: "J1", Elevation: 50,
		Demands: []network.Demand{{Base: 1.0, Pattern: -1}}})
	if err != nil {
		t.Fatalf("AddJunction failed: %v", err)
	}
	r, err := net.AddTank(&network.Node{ID: "R1", Elevation: 10},
		&network.Tank{Hmin: 10, Hmax: 10, H0: 10, VolCurve: -1})
	if err != nil {
		t.Fatalf("AddTank (reservoir) failed: %v", err)
	}
	tk, err := net.AddTank(&network.Node{ID: "T1", Elevation: 100},
		&network.Tank{Area: 50, Hmin: 102, Hmax: 120, H0: 110, VolCurve: -1})
	if err != nil {
		t.Fatalf("AddTank failed: %v", err)
	}
	if _, err := net.AddLink(&network.Link{ID: "PU1", N1: r, N2: j,
		Type: network.PumpLink, InitStatus: network.Open, InitSetting: 1.0}); err != nil {
		t.Fatalf("AddLink failed: %v", err)
	}
	if _, err := net.AddLink(&network.Link{ID: "P1", N1: j, N2: tk,
		Type: network.Pipe, Length: 500, Diam: 1, Roughness: 100,
		InitStatus: network.Open, InitSetting: network.NoSetting}); err != nil {
		t.Fatalf("AddLink failed: %v", err)
	}
	net.InitState()
	return net
}

func linkIdx(t *testing.T, net *network.Network, id string) int {
	t.Helper()
	k, ok := net.LinkIndex(id)
	if !ok {
		t.Fatalf("link %s not found", id)
	}
	return k
}

func nodeIdx(t *testing.T, net *network.Network, id string) int {
	t.Helper()
	i, ok := net.NodeIndex(id)
	if !ok {
		t.Fatalf("node %s not found", id)
	}
	return i
}

func levelPremise(node int, op network.Relop, level float64) network.Premise {
	return network.Premise{Object: network.RuleNode, Index: node,
		Variable: network.VarLevel, Relop: op, Value: level}
}

func closeAction(link int) []network.RuleAction {
	return []network.RuleAction{{Link: link, Status: network.Closed, Setting: network.NoSetting}}
}

func openAction(link int) []network.RuleAction {
	return []network.RuleAction{{Link: link, Status: network.Open, Setting: network.NoSetting}}
}

func TestTankLevelRuleThenElse(t *testing.T) {
	net := newTestNet(t)
	tk := nodeIdx(t, net, "T1")
	pu := linkIdx(t, net, "PU1")

	if _, err := net.AddRule(&network.Rule{
		Name:     "high-level",
		Premises: []network.Premise{levelPremise(tk, network.GT, 15)},
		Then:     closeAction(pu),
		Else:     openAction(pu),
	}); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}
	e := New(net, 0, nil)

	net.Head[tk] = 118 // level 18
	actions := e.Evaluate(0)
	if len(actions) != 1 || actions[0].Status != network.Closed {
		t.Fatalf("actions = %+v, want one close action", actions)
	}

	net.Head[tk] = 110 // level 10
	actions = e.Evaluate(3600)
	if len(actions) != 1 || actions[0].Status != network.Open {
		t.Fatalf("actions = %+v, want one open action", actions)
	}
}

func TestOrOffersAlternativeWithinAndChain(t *testing.T) {
	net := newTestNet(t)
	tk := nodeIdx(t, net, "T1")
	j := nodeIdx(t, net, "J1")
	pu := linkIdx(t, net, "PU1")

	// Fires when pressure at J1 < 30 AND (level > 15 OR level < 5).
	rule := &network.Rule{
		Name: "band",
		Premises: []network.Premise{
			{Object: network.RuleNode, Index: j, Variable: network.VarPressure,
				Relop: network.LT, Value: 30},
			levelPremise(tk, network.GT, 15),
			func() network.Premise {
				p := levelPremise(tk, network.LT, 5)
				p.Logop = network.Or
				return p
			}(),
		},
		Then: closeAction(pu),
	}
	if _, err := net.AddRule(rule); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	cases := []struct {
		pressure, level float64
		fires           bool
	}{
		{20, 18, true},  // AND holds, first OR branch holds
		{20, 3, true},   // first branch fails, OR alternative holds
		{20, 10, false}, // both branches of the OR group fail
		{40, 18, false}, // leading AND fails
	}
	for _, tc := range cases {
		net.Head[nodeIdx(t, net, "J1")] = 50 + tc.pressure
		net.Head[tk] = 100 + tc.level
		e := New(net, 0, nil)
		actions := e.Evaluate(0)
		if got := len(actions) == 1; got != tc.fires {
			t.Errorf("pressure=%g level=%g: fired=%v, want %v",
				tc.pressure, tc.level, got, tc.fires)
		}
	}
}

func TestConflictResolution(t *testing.T) {
	net := newTestNet(t)
	tk := nodeIdx(t, net, "T1")
	pu := linkIdx(t, net, "PU1")
	net.Head[tk] = 118 // both rules' premises hold

	always := []network.Premise{levelPremise(tk, network.GT, 0)}
	if _, err := net.AddRule(&network.Rule{Name: "low", Priority: 1,
		Premises: always, Then: closeAction(pu)}); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}
	if _, err := net.AddRule(&network.Rule{Name: "high", Priority: 2,
		Premises: always, Then: openAction(pu)}); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	e := New(net, 0, nil)
	actions := e.Evaluate(0)
	if len(actions) != 1 {
		t.Fatalf("len(actions) = %d, want 1 after conflict resolution", len(actions))
	}
	if actions[0].Rule != "high" || actions[0].Status != network.Open {
		t.Errorf("winner = %+v, want the higher-priority rule", actions[0])
	}

	// Equal priorities: the later rule wins.
	net.Rules[1].Priority = 1
	actions = New(net, 0, nil).Evaluate(0)
	if actions[0].Rule != "high" {
		t.Errorf("winner = %s, want the later rule on a priority tie", actions[0].Rule)
	}
}

func TestElapsedTimeEqualityFiresOnce(t *testing.T) {
	net := newTestNet(t)
	pu := linkIdx(t, net, "PU1")
	if _, err := net.AddRule(&network.Rule{
		Name: "at-2h",
		Premises: []network.Premise{{Object: network.RuleSystem,
			Variable: network.VarTime, Relop: network.EQ, Value: 7200}},
		Then: closeAction(pu),
	}); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}
	e := New(net, 0, nil)

	fired := 0
	// Steps straddle the target moment without landing on it.
	for _, clock := range []int64{0, 3000, 6000, 9000, 12000} {
		if len(e.Evaluate(clock)) > 0 {
			fired++
		}
	}
	if fired != 1 {
		t.Errorf("time equality fired %d times, want exactly once", fired)
	}
}

func TestClockTimeWrapsPastMidnight(t *testing.T) {
	net := newTestNet(t)
	pu := linkIdx(t, net, "PU1")
	if _, err := net.AddRule(&network.Rule{
		Name: "at-1am",
		Premises: []network.Premise{{Object: network.RuleSystem,
			Variable: network.VarClockTime, Relop: network.EQ, Value: 3600}},
		Then: closeAction(pu),
	}); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}
	// Simulation starts at 23:00; the window 23:30 -> 01:30 wraps.
	e := New(net, 23*3600, nil)
	if len(e.Evaluate(1800)) != 0 {
		t.Fatal("rule fired before its clock time")
	}
	if len(e.Evaluate(2*3600+1800)) != 1 {
		t.Fatal("rule did not fire inside the wrapped window")
	}
}

func TestFillTimePremise(t *testing.T) {
	net := newTestNet(t)
	tk := nodeIdx(t, net, "T1")
	pu := linkIdx(t, net, "PU1")
	tank := net.Tanks[net.Nodes[tk].Tank]

	// Half full, filling at 0.1 cfs.
	net.TankVolume[net.Nodes[tk].Tank] = (tank.Vmin + tank.Vmax) / 2
	net.DemandFlow[tk] = 0.1
	wantHours := (tank.Vmax - net.TankVolume[net.Nodes[tk].Tank]) / 0.1 / 3600

	if _, err := net.AddRule(&network.Rule{
		Name: "filling-soon",
		Premises: []network.Premise{{Object: network.RuleNode, Index: tk,
			Variable: network.VarFillTime, Relop: network.LT, Value: wantHours + 1}},
		Then: closeAction(pu),
	}); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}
	if len(New(net, 0, nil).Evaluate(0)) != 1 {
		t.Error("fill-time premise did not fire while filling")
	}

	// Draining: fill time is infinite and the premise cannot hold.
	net.DemandFlow[tk] = -0.1
	if len(New(net, 0, nil).Evaluate(0)) != 0 {
		t.Error("fill-time premise fired while draining")
	}
	if ft := New(net, 0, nil).fillTime(net.Nodes[tk], true); math.IsInf(ft, 1) {
		t.Error("drain time must be finite while draining")
	}
}

func TestStatusPremise(t *testing.T) {
	net := newTestNet(t)
	pu := linkIdx(t, net, "PU1")
	p1 := linkIdx(t, net, "P1")

	if _, err := net.AddRule(&network.Rule{
		Name: "pump-off-closes-main",
		Premises: []network.Premise{{Object: network.RuleLink, Index: pu,
			Variable: network.VarStatus, Relop: network.EQ, Status: network.Closed}},
		Then: closeAction(p1),
	}); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	if len(New(net, 0, nil).Evaluate(0)) != 0 {
		t.Error("rule fired while the pump is open")
	}
	net.LinkStatus[pu] = network.Closed
	if len(New(net, 0, nil).Evaluate(0)) != 1 {
		t.Error("rule did not fire on the closed pump")
	}
}
