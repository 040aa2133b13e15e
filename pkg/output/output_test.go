package output

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dd0wney/cluso-hydronet/pkg/network"
)

func testNet(t *testing.T) *network.Network {
	t.Helper()
	net := network.New("output-test")
	if _, err := net.AddJunction(&network.Node{ID: "J1", Elevation: 50}); err != nil {
		t.Fatalf("AddJunction failed: %v", err)
	}
	r, err := net.AddTank(&network.Node{ID: "R1", Elevation: 100},
		&network.Tank{Hmin: 100, Hmax: 100, H0: 100, VolCurve: -1})
	if err != nil {
		t.Fatalf("AddTank failed: %v", err)
	}
	if _, err := net.AddLink(&network.Link{
		ID: "P1", N1: r, N2: 0, Type: network.Pipe,
		Length: 500, Diam: 1.0, Roughness: 100,
		InitStatus: network.Open, InitSetting: network.NoSetting,
	}); err != nil {
		t.Fatalf("AddLink failed: %v", err)
	}
	net.InitState()
	return net
}

func TestRecordRoundTrip(t *testing.T) {
	net := testNet(t)
	l, err := NewLog(t.TempDir(), net)
	if err != nil {
		t.Fatalf("NewLog failed: %v", err)
	}
	defer l.Close()

	clocks := []int64{0, 3600, 7200}
	for i, c := range clocks {
		net.Head[0] = 90 + float64(i)
		net.Flow[0] = 1.5 * float64(i+1)
		net.Quality[0] = 0.1 * float64(i)
		net.TankVolume[0] = float64(1000 - i)
		if err := l.RecordStep(c, 3600, net); err != nil {
			t.Fatalf("RecordStep(%d) failed: %v", c, err)
		}
	}

	records, err := l.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(records) != len(clocks) {
		t.Fatalf("read %d records, want %d", len(records), len(clocks))
	}
	for i, rec := range records {
		if rec.Seq != uint64(i+1) || rec.Clock != clocks[i] || rec.Dt != 3600 {
			t.Errorf("record %d header = {seq %d, clock %d, dt %d}", i, rec.Seq, rec.Clock, rec.Dt)
		}
		if rec.Head[0] != 90+float64(i) {
			t.Errorf("record %d head = %g, want %g", i, rec.Head[0], 90+float64(i))
		}
		if rec.Flow[0] != 1.5*float64(i+1) {
			t.Errorf("record %d flow = %g, want %g", i, rec.Flow[0], 1.5*float64(i+1))
		}
		if rec.Status[0] != network.Open {
			t.Errorf("record %d status = %v, want Open", i, rec.Status[0])
		}
		if rec.TankVolume[0] != float64(1000-i) {
			t.Errorf("record %d tank volume = %g", i, rec.TankVolume[0])
		}
	}

	stats := l.Statistics()
	if stats.TotalWrites != 3 || stats.BytesUncompressed == 0 {
		t.Fatalf("unexpected statistics: %+v", stats)
	}
}

func TestReopenResumesSequence(t *testing.T) {
	net := testNet(t)
	dir := t.TempDir()

	l, err := NewLog(dir, net)
	if err != nil {
		t.Fatalf("NewLog failed: %v", err)
	}
	runID := l.RunID()
	for _, c := range []int64{0, 3600} {
		if err := l.RecordStep(c, 3600, net); err != nil {
			t.Fatalf("RecordStep failed: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	l2, err := NewLog(dir, net)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer l2.Close()
	if l2.RunID() != runID {
		t.Fatalf("run ID changed on reopen: %s vs %s", l2.RunID(), runID)
	}
	if l2.Seq() != 2 {
		t.Fatalf("resumed sequence = %d, want 2", l2.Seq())
	}
	if err := l2.RecordStep(7200, 0, net); err != nil {
		t.Fatalf("RecordStep after resume failed: %v", err)
	}
	records, err := l2.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(records) != 3 || records[2].Seq != 3 {
		t.Fatalf("got %d records ending at seq %d, want 3 ending at 3",
			len(records), records[len(records)-1].Seq)
	}
}

func TestTopologyGuardRejectsChangedNetwork(t *testing.T) {
	net := testNet(t)
	dir := t.TempDir()

	l, err := NewLog(dir, net)
	if err != nil {
		t.Fatalf("NewLog failed: %v", err)
	}
	if err := l.RecordStep(0, 3600, net); err != nil {
		t.Fatalf("RecordStep failed: %v", err)
	}
	l.Close()

	changed := testNet(t)
	if _, err := changed.AddJunction(&network.Node{ID: "J2", Elevation: 40}); err != nil {
		t.Fatalf("AddJunction failed: %v", err)
	}
	changed.InitState()
	if _, err := NewLog(dir, changed); !errors.Is(err, ErrTopologyMismatch) {
		t.Fatalf("reopen with changed topology returned %v, want ErrTopologyMismatch", err)
	}
}

func TestCorruptRecordDetected(t *testing.T) {
	net := testNet(t)
	dir := t.TempDir()

	l, err := NewLog(dir, net)
	if err != nil {
		t.Fatalf("NewLog failed: %v", err)
	}
	if err := l.RecordStep(0, 3600, net); err != nil {
		t.Fatalf("RecordStep failed: %v", err)
	}
	l.Close()

	path := filepath.Join(dir, logName)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	// Flip a byte inside the compressed payload.
	data[len(data)-10] ^= 0xFF
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := NewLog(dir, net); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("reopen of corrupted log returned %v, want ErrCorrupt", err)
	}
}

func TestTruncateStartsFreshRun(t *testing.T) {
	net := testNet(t)
	l, err := NewLog(t.TempDir(), net)
	if err != nil {
		t.Fatalf("NewLog failed: %v", err)
	}
	defer l.Close()

	if err := l.RecordStep(0, 3600, net); err != nil {
		t.Fatalf("RecordStep failed: %v", err)
	}
	oldID := l.RunID()
	if err := l.Truncate(); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	if l.Seq() != 0 {
		t.Fatalf("sequence = %d after truncate, want 0", l.Seq())
	}
	if l.RunID() == oldID {
		t.Fatal("run ID unchanged after truncate")
	}
	records, err := l.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("got %d records after truncate, want none", len(records))
	}
}
