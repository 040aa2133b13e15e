package hydraulic

import "math"

// demandCoeffs charges junction demands to the nodal imbalance and,
// under pressure-driven analysis, adds the linearized pressure-demand
// relation as a virtual link to a fixed head at elevation plus the
// minimum pressure.
func (s *Solver) demandCoeffs() {
	nj := s.net.Njunctions

	if s.opt.Demand == DemandDriven {
		for i := 0; i < nj; i++ {
			s.net.DemandFlow[i] = s.dfull[i]
			s.x[i] -= s.dfull[i]
		}
		return
	}

	n := 1.0 / s.opt.PressureExponent
	dp := s.opt.RequiredPressure - s.opt.MinPressure
	if dp < rqTol {
		dp = rqTol
	}

	for i := 0; i < nj; i++ {
		dfull := s.dfull[i]
		// Non-positive demands are external inflows and stay fixed.
		if dfull <= 0 {
			s.net.DemandFlow[i] = dfull
			s.x[i] -= dfull
			continue
		}

		d := s.net.DemandFlow[i]
		hloss, hgrad := demandHeadloss(d, dfull, dp, n)
		p := 1.0 / hgrad
		y := hloss / hgrad

		s.aii[i] += p
		s.f[i] += y + p*(s.net.Nodes[i].Elevation+s.opt.MinPressure)
		s.x[i] -= d
		s.dP[i], s.dY[i] = p, y
	}
}

// demandHeadloss inverts the pressure-demand relation around the
// current delivered demand d: the pressure above the minimum needed to
// deliver d, and its gradient. Outside the (0, dfull) range the curve
// is extended with a near-vertical and a near-flat segment so the
// iteration is pulled back toward the feasible band.
func demandHeadloss(d, dfull, dp, n float64) (hloss, hgrad float64) {
	r := d / dfull
	switch {
	case r <= 0:
		hgrad = cBig
		hloss = cBig * d
	case r >= 1:
		hgrad = rqTol
		hloss = dp + rqTol*(d-dfull)
	default:
		hgrad = dp * n * math.Pow(r, n-1.0) / dfull
		hloss = dp * math.Pow(r, n)
		if hgrad < rqTol {
			hgrad = rqTol
		}
	}
	return hloss, hgrad
}

// emitterCoeffs adds each emitter as a virtual link discharging to a
// fixed head at the node's elevation, with loss exponent 1/γ.
func (s *Solver) emitterCoeffs() {
	nj := s.net.Njunctions
	gamma := s.opt.EmitterExponent
	if gamma <= 0 {
		gamma = 0.5
	}
	exp := 1.0 / gamma

	for i := 0; i < nj; i++ {
		node := s.net.Nodes[i]
		if node.Emitter <= 0 {
			continue
		}
		q := s.emitFlow[i]
		aq := math.Max(math.Abs(q), qTiny)
		r := math.Pow(1.0/node.Emitter, exp)

		hloss := r * math.Pow(aq, exp)
		hgrad := exp * hloss / aq
		if hgrad < rqTol {
			hgrad = rqTol
		}

		p := 1.0 / hgrad
		y := sign(q) * hloss / hgrad

		s.aii[i] += p
		s.f[i] += y + p*node.Elevation
		s.x[i] -= q
		s.emP[i], s.emY[i] = p, y
	}
}

// FullDemand returns the pattern-scaled demand requested at node i for
// the current solve, before any pressure-driven shortfall.
func (s *Solver) FullDemand(i int) float64 {
	if i < 0 || i >= len(s.dfull) {
		return 0
	}
	return s.dfull[i]
}
