package quality

import (
	"math"
	"testing"

	"github.com/dd0wney/cluso-hydronet/pkg/logging"
	"github.com/dd0wney/cluso-hydronet/pkg/metrics"
	"github.com/dd0wney/cluso-hydronet/pkg/network"
)

func addReservoir(t *testing.T, net *network.Network, id string, head, initQual float64) int {
	t.Helper()
	i, err := net.AddTank(&network.Node{ID: id, Elevation: head, InitQual: initQual},
		&network.Tank{Hmin: head, Hmax: head, H0: head, VolCurve: -1})
	if err != nil {
		t.Fatalf("AddTank(%s) failed: %v", id, err)
	}
	return i
}

func addJunction(t *testing.T, net *network.Network, id string, initQual float64) int {
	t.Helper()
	i, err := net.AddJunction(&network.Node{ID: id, Elevation: 0, InitQual: initQual})
	if err != nil {
		t.Fatalf("AddJunction(%s) failed: %v", id, err)
	}
	return i
}

func addPipe(t *testing.T, net *network.Network, id string, n1, n2 int, length, diam float64) int {
	t.Helper()
	k, err := net.AddLink(&network.Link{
		ID: id, N1: n1, N2: n2, Type: network.Pipe,
		Length: length, Diam: diam, Roughness: 100,
		InitStatus: network.Open, InitSetting: network.NoSetting,
	})
	if err != nil {
		t.Fatalf("AddLink(%s) failed: %v", id, err)
	}
	return k
}

// newQualSolver builds a solver over an already-initialized network whose
// flows and demands the test has set by hand, with a one-second substep.
func newQualSolver(t *testing.T, net *network.Network, opt Options) *Solver {
	t.Helper()
	opt.Step = 1
	s := New(net, opt, logging.NewNopLogger(), metrics.NewRegistry())
	if err := s.Init(3600); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return s
}

func advance(t *testing.T, s *Solver, clock, dt int64) {
	t.Helper()
	if err := s.Advance(clock, dt); err != nil {
		t.Fatalf("Advance(%d, %d) failed: %v", clock, dt, err)
	}
}

// singleMain is a reservoir feeding one junction through a pipe holding
// about 78.5 ft³, so a 1 cfs flow has a 79 second travel time.
func singleMain(t *testing.T, sourceQual float64) (*network.Network, int, int) {
	t.Helper()
	net := network.New("main")
	j := addJunction(t, net, "J1", 0)
	r := addReservoir(t, net, "R1", 100, sourceQual)
	p := addPipe(t, net, "P1", r, j, 100, 1.0)
	net.InitState()
	net.Flow[p] = 1.0
	net.DemandFlow[j] = 1.0
	return net, r, j
}

func TestPlugFlowTravelTime(t *testing.T) {
	net, _, j := singleMain(t, 1.0)
	s := newQualSolver(t, net, DefaultOptions())

	advance(t, s, 0, 70)
	if got := net.Quality[j]; got != 0 {
		t.Fatalf("source water arrived early: junction quality %g before travel time", got)
	}
	advance(t, s, 70, 30)
	if got := net.Quality[j]; math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("junction quality = %g after travel time, want 1.0", got)
	}
}

func TestFirstOrderDecayAlongPipe(t *testing.T) {
	net, _, j := singleMain(t, 1.0)
	// k = -0.01/s over a ~79 s travel time gives e^-0.79 at the outlet.
	net.Links[0].Kb = -864.0
	s := newQualSolver(t, net, DefaultOptions())

	advance(t, s, 0, 200)
	want := math.Exp(-0.79)
	if got := net.Quality[j]; math.Abs(got-want) > 0.03 {
		t.Fatalf("decayed outlet quality = %g, want about %g", got, want)
	}
}

func TestGrowthStopsAtLimit(t *testing.T) {
	net, _, j := singleMain(t, 0.2)
	net.Links[0].Kb = 864.0
	opt := DefaultOptions()
	opt.LimitConc = 0.5
	s := newQualSolver(t, net, opt)

	advance(t, s, 0, 400)
	if got := net.Quality[j]; got > 0.5+1e-6 {
		t.Fatalf("outlet quality %g exceeds growth limit 0.5", got)
	}
	if got := net.Quality[j]; got < 0.3 {
		t.Fatalf("outlet quality %g shows no growth toward the limit", got)
	}
}

func TestAgeMatchesTravelTime(t *testing.T) {
	net, _, j := singleMain(t, 1.0)
	opt := DefaultOptions()
	opt.Mode = Age
	s := newQualSolver(t, net, opt)

	advance(t, s, 0, 500)
	want := 79.0 / 3600.0
	if got := net.Quality[j]; math.Abs(got-want) > 3.0/3600.0 {
		t.Fatalf("steady-state age = %g h, want about %g h", got, want)
	}
}

func TestJunctionBlendsInflows(t *testing.T) {
	net := network.New("blend")
	j := addJunction(t, net, "J1", 0)
	r1 := addReservoir(t, net, "R1", 100, 2.0)
	r2 := addReservoir(t, net, "R2", 100, 6.0)
	p1 := addPipe(t, net, "P1", r1, j, 10, 1.0)
	p2 := addPipe(t, net, "P2", r2, j, 10, 1.0)
	net.InitState()
	net.Flow[p1] = 3.0
	net.Flow[p2] = 1.0
	net.DemandFlow[j] = 4.0

	s := newQualSolver(t, net, DefaultOptions())
	advance(t, s, 0, 60)
	if got := net.Quality[j]; math.Abs(got-3.0) > 1e-6 {
		t.Fatalf("blended quality = %g, want 3.0 (flow-weighted)", got)
	}
}

func TestFlowReversalTurnsSegments(t *testing.T) {
	net := network.New("reversal")
	j := addJunction(t, net, "J1", 0)
	r := addReservoir(t, net, "R1", 100, 1.0)
	p := addPipe(t, net, "P1", r, j, 100, 1.0)
	net.InitState()
	net.Flow[p] = 1.0
	net.DemandFlow[j] = 1.0

	s := newQualSolver(t, net, DefaultOptions())
	advance(t, s, 0, 40)

	// Push the half-filled pipe back: the freshest plugs leave first, so
	// the reservoir end sees quality 1.0 immediately, not the stale front.
	net.Flow[p] = -1.0
	net.DemandFlow[j] = -1.0
	advance(t, s, 40, 10)
	if got := s.links[p].front().c; math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("outlet plug after reversal has quality %g, want 1.0", got)
	}
}

func TestCompletelyMixedTank(t *testing.T) {
	net := network.New("mix1")
	j := addJunction(t, net, "J1", 0)
	r := addReservoir(t, net, "R1", 120, 1.0)
	ti, err := net.AddTank(&network.Node{ID: "T1", Elevation: 0},
		&network.Tank{
			Area: 50, Hmin: 0, Hmax: 10, H0: 2,
			Vmin: 0, Vmax: 500, V0: 100,
			VolCurve: -1, Mix: network.Mix1,
		})
	if err != nil {
		t.Fatalf("AddTank(T1) failed: %v", err)
	}
	pin := addPipe(t, net, "PIN", r, ti, 10, 0.5)
	pout := addPipe(t, net, "POUT", ti, j, 10, 0.5)
	net.InitState()
	net.Flow[pin] = 1.0
	net.Flow[pout] = 1.0
	net.DemandFlow[j] = 1.0
	net.DemandFlow[ti] = 0.0

	s := newQualSolver(t, net, DefaultOptions())
	advance(t, s, 0, 100)

	// One turnover of a 100 ft³ mixed volume: c = 1 - e^-1, shifted a
	// little by the inlet pipe's flush time.
	got := net.Quality[ti]
	if got < 0.55 || got > 0.66 {
		t.Fatalf("mixed tank quality = %g after one turnover, want near %g", got, 1-math.Exp(-1))
	}
}

func TestFIFOTankDisplacesOldWaterFirst(t *testing.T) {
	net := network.New("fifo")
	j := addJunction(t, net, "J1", 0)
	r := addReservoir(t, net, "R1", 120, 1.0)
	ti, err := net.AddTank(&network.Node{ID: "T1", Elevation: 0},
		&network.Tank{
			Area: 50, Hmin: 0, Hmax: 10, H0: 2,
			Vmin: 0, Vmax: 500, V0: 100,
			VolCurve: -1, Mix: network.FIFO,
		})
	if err != nil {
		t.Fatalf("AddTank(T1) failed: %v", err)
	}
	pin := addPipe(t, net, "PIN", r, ti, 10, 0.5)
	pout := addPipe(t, net, "POUT", ti, j, 10, 0.5)
	net.InitState()
	net.Flow[pin] = 1.0
	net.Flow[pout] = 1.0
	net.DemandFlow[j] = 1.0

	s := newQualSolver(t, net, DefaultOptions())

	// For the first 100 ft³ the outlet draws the original stored water.
	advance(t, s, 0, 60)
	if got := net.Quality[ti]; got > 1e-9 {
		t.Fatalf("FIFO tank released new water early: outflow quality %g", got)
	}
	// After a full displacement only source water remains.
	advance(t, s, 60, 120)
	if got := net.Quality[ti]; math.Abs(got-1.0) > 0.05 {
		t.Fatalf("FIFO tank outflow quality = %g after displacement, want near 1.0", got)
	}
}

func TestTankDrawSpanningPlugsBlendsOutflow(t *testing.T) {
	net := network.New("plug-draw")
	j := addJunction(t, net, "J1", 0)
	ti, err := net.AddTank(&network.Node{ID: "T1", Elevation: 0},
		&network.Tank{
			Area: 50, Hmin: 0, Hmax: 10, H0: 2,
			Vmin: 0, VolCurve: -1, Mix: network.FIFO,
		})
	if err != nil {
		t.Fatalf("AddTank(T1) failed: %v", err)
	}
	p := addPipe(t, net, "P1", ti, j, 100, 1.0)
	net.InitState()
	net.Flow[p] = 1.0
	net.DemandFlow[j] = 1.0
	net.DemandFlow[ti] = -1.0

	opt := DefaultOptions()
	opt.Step = 60
	s := New(net, opt, logging.NewNopLogger(), metrics.NewRegistry())
	if err := s.Init(3600); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	// Stored water in two plugs: 50 ft³ at 2.0 at the outlet, 50 ft³ of
	// clean water behind it. One 60 ft³ substep draw crosses the boundary.
	ts := s.tanks[net.Nodes[ti].Tank]
	ts.segs.setAll(50, 2.0)
	ts.segs.push(50, 0.0, 0)
	s.bal = Balance{Initial: s.storedMass()}

	advance(t, s, 0, 60)

	want := 100.0 / 60.0
	if got := net.Quality[ti]; math.Abs(got-want) > 1e-9 {
		t.Fatalf("tank outflow quality = %g, want blended %g", got, want)
	}
	if got := s.MassBalance().Error(); got > 1e-9 {
		t.Fatalf("ledger error = %g after a plug-spanning draw", got)
	}
}

func TestFlowPacedAndSetpointSources(t *testing.T) {
	net, _, j := singleMain(t, 0.5)
	net.Nodes[j].Source = &network.Source{Type: network.FlowPaced, Strength: 0.3, Pattern: -1}
	s := newQualSolver(t, net, DefaultOptions())
	advance(t, s, 0, 150)
	if got := net.Quality[j]; math.Abs(got-0.8) > 1e-6 {
		t.Fatalf("flow-paced source: junction quality = %g, want 0.8", got)
	}

	net2, _, j2 := singleMain(t, 0.5)
	net2.Nodes[j2].Source = &network.Source{Type: network.Setpoint, Strength: 2.0, Pattern: -1}
	s2 := newQualSolver(t, net2, DefaultOptions())
	advance(t, s2, 0, 150)
	if got := net2.Quality[j2]; math.Abs(got-2.0) > 1e-6 {
		t.Fatalf("setpoint source: junction quality = %g, want 2.0", got)
	}
}

func TestMassSourceRaisesOutflowConcentration(t *testing.T) {
	net, _, j := singleMain(t, 0)
	// 1698 mg/min into 1 cfs is 1 mg/L: 1698/60/28.3168 ≈ 1.0 mg per ft³.
	net.Nodes[j].Source = &network.Source{Type: network.Mass, Strength: 1698.0, Pattern: -1}
	s := newQualSolver(t, net, DefaultOptions())
	advance(t, s, 0, 150)
	if got := net.Quality[j]; math.Abs(got-1.0) > 0.01 {
		t.Fatalf("mass source: junction quality = %g mg/L, want about 1.0", got)
	}
}

func TestTraceReportsSourcePercentage(t *testing.T) {
	net := network.New("trace")
	j := addJunction(t, net, "J1", 0)
	r1 := addReservoir(t, net, "R1", 100, 0)
	r2 := addReservoir(t, net, "R2", 100, 0)
	p1 := addPipe(t, net, "P1", r1, j, 10, 1.0)
	p2 := addPipe(t, net, "P2", r2, j, 10, 1.0)
	net.InitState()
	net.Flow[p1] = 1.0
	net.Flow[p2] = 3.0
	net.DemandFlow[j] = 4.0

	opt := DefaultOptions()
	opt.Mode = Trace
	opt.TraceNode = r1
	s := newQualSolver(t, net, opt)
	advance(t, s, 0, 60)
	if got := net.Quality[j]; math.Abs(got-25.0) > 1e-6 {
		t.Fatalf("trace: junction = %g%%, want 25%% of traced source", got)
	}
}

func TestMassBalanceCloses(t *testing.T) {
	net, _, _ := singleMain(t, 1.0)
	s := newQualSolver(t, net, DefaultOptions())
	advance(t, s, 0, 600)

	b := s.MassBalance()
	if b.Added == 0 {
		t.Fatal("balance recorded no source inflow")
	}
	if err := b.Error(); err > 0.02 {
		t.Fatalf("mass balance error = %g, want under 2%%: %+v", err, b)
	}
}

func TestAdvanceBeforeInitFails(t *testing.T) {
	net, _, _ := singleMain(t, 1.0)
	s := New(net, DefaultOptions(), logging.NewNopLogger(), metrics.NewRegistry())
	if err := s.Advance(0, 60); err != network.ErrNotInitialized {
		t.Fatalf("Advance before Init returned %v, want ErrNotInitialized", err)
	}
}
