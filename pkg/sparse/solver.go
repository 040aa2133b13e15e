// Package sparse factors and solves the symmetric positive-definite
// linear systems produced by the hydraulic solver's gradient iterations.
// The symbolic work (fill-reducing order, elimination tree, factor
// pattern) is done once per topology; only the numeric LDLᵀ
// factorization repeats as the linearized coefficients change.
package sparse

import "math"

// Edge is one symmetric off-diagonal coupling between two rows of the
// system (for a network, a link joining two junctions). Parallel edges
// between the same pair are allowed; their coefficients accumulate.
type Edge struct {
	I, J int
}

type colEntry struct {
	row  int // permuted row index, < column index
	edge int // caller's edge index supplying the coefficient
}

// Solver holds the reusable symbolic structure and the numeric factor
// of one system. It is sized once from the topology and reused across
// factor/solve cycles.
type Solver struct {
	n    int
	perm []int // original row -> elimination position
	invp []int // elimination position -> original row

	cols [][]colEntry // upper-triangular pattern of permuted A, by column

	parent []int // elimination tree
	lp     []int // column pointers of L
	li     []int // row indices of L
	lx     []float64 // values of L
	d      []float64 // diagonal of D
	lnz    []int     // filled entries per column during numeric pass

	flag    []int
	pattern []int
	y       []float64
	work    []float64
}

// pivotTol scales the near-zero pivot test relative to the largest
// input diagonal.
const pivotTol = 1e-10

// New builds the symbolic structure for an n-row system coupled by the
// given edges: fill-reducing order, elimination tree, and the nonzero
// pattern of the factor.
func New(n int, edges []Edge) *Solver {
	adj := make([]map[int]bool, n)
	for i := range adj {
		adj[i] = make(map[int]bool)
	}
	for _, e := range edges {
		if e.I != e.J {
			adj[e.I][e.J] = true
			adj[e.J][e.I] = true
		}
	}
	perm, invp := minDegreeOrder(n, adj)

	s := &Solver{
		n:       n,
		perm:    perm,
		invp:    invp,
		cols:    make([][]colEntry, n),
		parent:  make([]int, n),
		lp:      make([]int, n+1),
		d:       make([]float64, n),
		lnz:     make([]int, n),
		flag:    make([]int, n),
		pattern: make([]int, n),
		y:       make([]float64, n),
		work:    make([]float64, n),
	}

	for ei, e := range edges {
		pi, pj := perm[e.I], perm[e.J]
		if pi == pj {
			continue
		}
		row, col := pi, pj
		if row > col {
			row, col = col, row
		}
		s.cols[col] = append(s.cols[col], colEntry{row: row, edge: ei})
	}

	s.symbolic()
	return s
}

// symbolic computes the elimination tree and per-column factor counts,
// then allocates the factor arrays.
func (s *Solver) symbolic() {
	n := s.n
	counts := make([]int, n)
	for k := 0; k < n; k++ {
		s.parent[k] = -1
		s.flag[k] = k
		for _, ce := range s.cols[k] {
			for i := ce.row; s.flag[i] != k; i = s.parent[i] {
				if s.parent[i] == -1 {
					s.parent[i] = k
				}
				counts[i]++
				s.flag[i] = k
			}
		}
	}
	s.lp[0] = 0
	for k := 0; k < n; k++ {
		s.lp[k+1] = s.lp[k] + counts[k]
	}
	nz := s.lp[n]
	s.li = make([]int, nz)
	s.lx = make([]float64, nz)
}

// Factor performs the numeric LDLᵀ factorization for the current
// coefficients: diag holds the diagonal by original row index, off the
// off-diagonal value of each edge passed to New. A near-zero pivot
// returns a SingularError naming the unpermuted row.
func (s *Solver) Factor(diag, off []float64) error {
	n := s.n
	scale := 1.0
	for i := 0; i < n; i++ {
		if a := math.Abs(diag[i]); a > scale {
			scale = a
		}
		s.y[i] = 0
		s.lnz[i] = 0
	}
	tol := pivotTol * scale

	for k := 0; k < n; k++ {
		// Scatter column k of the permuted matrix and collect the
		// row pattern by walking the elimination tree.
		top := n
		s.flag[k] = k
		s.y[k] += diag[s.invp[k]]
		for _, ce := range s.cols[k] {
			s.y[ce.row] += off[ce.edge]
			length := 0
			for i := ce.row; s.flag[i] != k; i = s.parent[i] {
				s.pattern[length] = i
				length++
				s.flag[i] = k
			}
			for length > 0 {
				length--
				top--
				s.pattern[top] = s.pattern[length]
			}
		}

		dk := s.y[k]
		s.y[k] = 0
		for ; top < n; top++ {
			i := s.pattern[top]
			yi := s.y[i]
			s.y[i] = 0
			p2 := s.lp[i] + s.lnz[i]
			for p := s.lp[i]; p < p2; p++ {
				s.y[s.li[p]] -= s.lx[p] * yi
			}
			lki := yi / s.d[i]
			dk -= lki * yi
			s.li[p2] = k
			s.lx[p2] = lki
			s.lnz[i]++
		}

		if math.Abs(dk) <= tol {
			return &SingularError{Node: s.invp[k], Pivot: dk}
		}
		s.d[k] = dk
	}
	return nil
}

// Solve computes x for the factored system and right-hand side b, both
// indexed by original row. Forward substitution, diagonal scaling, then
// back substitution, all on the permuted ordering.
func (s *Solver) Solve(b, x []float64) {
	n := s.n
	w := s.work
	for k := 0; k < n; k++ {
		w[k] = b[s.invp[k]]
	}
	for k := 0; k < n; k++ {
		wk := w[k]
		p2 := s.lp[k] + s.lnz[k]
		for p := s.lp[k]; p < p2; p++ {
			w[s.li[p]] -= s.lx[p] * wk
		}
	}
	for k := 0; k < n; k++ {
		w[k] /= s.d[k]
	}
	for k := n - 1; k >= 0; k-- {
		wk := w[k]
		p2 := s.lp[k] + s.lnz[k]
		for p := s.lp[k]; p < p2; p++ {
			wk -= s.lx[p] * w[s.li[p]]
		}
		w[k] = wk
	}
	for k := 0; k < n; k++ {
		x[s.invp[k]] = w[k]
	}
}

// N returns the system size.
func (s *Solver) N() int { return s.n }

// Fill returns the number of nonzeros in the factor, for diagnostics.
func (s *Solver) Fill() int { return s.lp[s.n] }
