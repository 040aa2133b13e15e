package hydraulic

import (
	"math"

	"github.com/dd0wney/cluso-hydronet/pkg/network"
)

// Numerical guards shared by the coefficient routines.
const (
	// cBig stands in for an infinite resistance (closed links) and an
	// infinite conductance (pinned heads).
	cBig = 1e8
	// rqTol is the smallest headloss gradient allowed, keeping the
	// linearization invertible at zero flow.
	rqTol = 1e-7
	// qTiny floors flow magnitudes in gradient formulas.
	qTiny = 1e-6
	// hwExp is the Hazen-Williams flow exponent.
	hwExp = 1.852
)

// resistance precomputes a pipe's friction resistance coefficient for
// the selected headloss law (ft, cfs units).
func (s *Solver) resistance(l *network.Link) float64 {
	if l.Diam <= 0 || l.Length <= 0 {
		return 0
	}
	switch s.opt.Headloss {
	case HazenWilliams:
		return 4.727 * l.Length / (math.Pow(l.Roughness, hwExp) * math.Pow(l.Diam, 4.871))
	case DarcyWeisbach:
		// Friction factor applied per-iteration; this is L/(2g·d·A²).
		return l.Length / (2.0 * 32.174 * l.Diam * l.CrossArea() * l.CrossArea())
	case ChezyManning:
		a := l.CrossArea()
		rh := l.Diam / 4.0
		c := l.Roughness / (1.49 * a * math.Pow(rh, 2.0/3.0))
		return l.Length * c * c
	default:
		return 0
	}
}

// minorLossCoeff converts a minor loss coefficient K to the q² form.
func minorLossCoeff(k, diam float64) float64 {
	if k <= 0 || diam <= 0 {
		return 0
	}
	return 0.025173 * k / math.Pow(diam, 4)
}

// frictionFactor computes the Darcy-Weisbach friction factor for the
// given pipe and flow, covering laminar, transitional, and turbulent
// regimes (Swamee-Jain form in the turbulent range).
func (s *Solver) frictionFactor(l *network.Link, q float64) float64 {
	re := 4.0 * math.Abs(q) / (math.Pi * l.Diam * s.opt.Viscosity)
	switch {
	case re < 2000:
		if re < 1 {
			re = 1
		}
		return 64.0 / re
	case re < 4000:
		// Blend linearly across the transitional band.
		fLam := 64.0 / 2000.0
		fTurb := swameeJain(l.Roughness/l.Diam, 4000)
		t := (re - 2000) / 2000
		return fLam + t*(fTurb-fLam)
	default:
		return swameeJain(l.Roughness/l.Diam, re)
	}
}

func swameeJain(relRough, re float64) float64 {
	d := math.Log10(relRough/3.7 + 5.74/math.Pow(re, 0.9))
	return 0.25 / (d * d)
}

// closedCoeff produces the linearization of a fully closed link: a huge
// resistance that drives its flow to zero.
func closedCoeff(q float64) (p, y float64) {
	return 1.0 / cBig, q
}

// pipeCoeff linearizes a pipe's headloss law around flow q, returning
// the inverse gradient p and the flow correction y such that the
// updated flow is q - (y - p·Δh).
func (s *Solver) pipeCoeff(k int, l *network.Link) (p, y float64) {
	q := s.net.Flow[k]
	if s.net.LinkStatus[k] == network.Closed || s.tempClosed[k] {
		return closedCoeff(q)
	}

	aq := math.Abs(q)
	r := s.res[k]
	ml := minorLossCoeff(l.MinorLoss, l.Diam)

	var hloss, hgrad float64
	switch s.opt.Headloss {
	case HazenWilliams:
		hgrad = hwExp * r * math.Pow(aq, hwExp-1.0)
		hloss = hgrad * aq / hwExp
	case DarcyWeisbach:
		f := s.frictionFactor(l, q)
		hgrad = 2.0 * f * r * aq
		hloss = hgrad * aq / 2.0
	case ChezyManning:
		hgrad = 2.0 * r * aq
		hloss = hgrad * aq / 2.0
	}
	if ml > 0 {
		hloss += ml * aq * aq
		hgrad += 2.0 * ml * aq
	}
	if hgrad < rqTol {
		hgrad = rqTol
	}

	p = 1.0 / hgrad
	y = sign(q) * hloss / hgrad
	return p, y
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}
