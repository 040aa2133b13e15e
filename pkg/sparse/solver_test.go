package sparse

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

// residual computes max |A·x - b| for the symmetric system described by
// diag/off over the given edges.
func residual(n int, edges []Edge, diag, off, x, b []float64) float64 {
	ax := make([]float64, n)
	for i := 0; i < n; i++ {
		ax[i] = diag[i] * x[i]
	}
	for e, ed := range edges {
		ax[ed.I] += off[e] * x[ed.J]
		ax[ed.J] += off[e] * x[ed.I]
	}
	worst := 0.0
	for i := 0; i < n; i++ {
		if r := math.Abs(ax[i] - b[i]); r > worst {
			worst = r
		}
	}
	return worst
}

func TestSolveSmallSystem(t *testing.T) {
	// 3-junction chain: tridiagonal SPD system.
	edges := []Edge{{0, 1}, {1, 2}}
	s := New(3, edges)

	diag := []float64{4, 5, 4}
	off := []float64{-1, -2}
	if err := s.Factor(diag, off); err != nil {
		t.Fatalf("Factor failed: %v", err)
	}

	b := []float64{3, 2, 2}
	x := make([]float64, 3)
	s.Solve(b, x)

	if r := residual(3, edges, diag, off, x, b); r > 1e-12 {
		t.Errorf("Residual %g too large, x=%v", r, x)
	}
}

func TestRefactorReusesStructure(t *testing.T) {
	edges := []Edge{{0, 1}, {1, 2}, {0, 2}}
	s := New(3, edges)

	b := []float64{1, 0, -1}
	x := make([]float64, 3)
	fill := -1

	// Coefficients change every hydraulic iteration; the symbolic
	// structure must hold across repeated factorizations.
	for trial := 1; trial <= 4; trial++ {
		f := float64(trial)
		diag := []float64{3 * f, 4 * f, 5 * f}
		off := []float64{-f, -f, -0.5 * f}
		if err := s.Factor(diag, off); err != nil {
			t.Fatalf("Factor trial %d failed: %v", trial, err)
		}
		if fill < 0 {
			fill = s.Fill()
		} else if s.Fill() != fill {
			t.Fatalf("Fill changed between factorizations: %d vs %d", s.Fill(), fill)
		}
		s.Solve(b, x)
		if r := residual(3, edges, diag, off, x, b); r > 1e-10 {
			t.Errorf("Trial %d residual %g too large", trial, r)
		}
	}
}

func TestParallelEdgesAccumulate(t *testing.T) {
	// Two links joining the same pair of junctions share one matrix
	// position; their coefficients must sum.
	dup := []Edge{{0, 1}, {0, 1}}
	s := New(2, dup)
	diag := []float64{5, 5}
	off := []float64{-1, -2}
	if err := s.Factor(diag, off); err != nil {
		t.Fatalf("Factor failed: %v", err)
	}
	b := []float64{1, 1}
	x := make([]float64, 2)
	s.Solve(b, x)

	// Equivalent single-edge system.
	single := []Edge{{0, 1}}
	s2 := New(2, single)
	if err := s2.Factor(diag, []float64{-3}); err != nil {
		t.Fatalf("Factor failed: %v", err)
	}
	x2 := make([]float64, 2)
	s2.Solve(b, x2)

	for i := range x {
		if math.Abs(x[i]-x2[i]) > 1e-12 {
			t.Errorf("x[%d] = %v, want %v", i, x[i], x2[i])
		}
	}
}

func TestSingularDetection(t *testing.T) {
	// A pure graph Laplacian with no grounding diagonal is singular:
	// the hydraulic analog of junctions with no path to a fixed head.
	edges := []Edge{{0, 1}}
	s := New(2, edges)
	diag := []float64{1, 1}
	off := []float64{-1}

	err := s.Factor(diag, off)
	if err == nil {
		t.Fatal("Expected singular system error")
	}
	if !errors.Is(err, ErrSingular) {
		t.Fatalf("Expected ErrSingular, got %v", err)
	}
	var se *SingularError
	if !errors.As(err, &se) {
		t.Fatalf("Expected SingularError, got %T", err)
	}
	if se.Node != 0 && se.Node != 1 {
		t.Errorf("SingularError names node %d, want 0 or 1", se.Node)
	}
}

func TestRandomGroundedLaplacian(t *testing.T) {
	// Random connected networks with at least one grounded junction must
	// factor and solve to small residuals.
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 25; trial++ {
		n := 4 + rng.Intn(20)
		var edges []Edge
		for i := 1; i < n; i++ {
			edges = append(edges, Edge{rng.Intn(i), i})
		}
		for e := 0; e < n/2; e++ {
			i, j := rng.Intn(n), rng.Intn(n)
			if i != j {
				edges = append(edges, Edge{i, j})
			}
		}

		diag := make([]float64, n)
		off := make([]float64, len(edges))
		for e, ed := range edges {
			w := 0.1 + rng.Float64()
			off[e] = -w
			diag[ed.I] += w
			diag[ed.J] += w
		}
		// Ground a few rows, the way links to fixed-head nodes do.
		for g := 0; g < 2; g++ {
			diag[rng.Intn(n)] += 1.0 + rng.Float64()
		}

		s := New(n, edges)
		if err := s.Factor(diag, off); err != nil {
			t.Fatalf("Trial %d: Factor failed: %v", trial, err)
		}
		b := make([]float64, n)
		for i := range b {
			b[i] = rng.NormFloat64()
		}
		x := make([]float64, n)
		s.Solve(b, x)
		if r := residual(n, edges, diag, off, x, b); r > 1e-8 {
			t.Errorf("Trial %d: residual %g too large (n=%d)", trial, r, n)
		}
	}
}
