package hydraulic

import (
	"math"

	"github.com/dd0wney/cluso-hydronet/pkg/network"
)

// valveCoeff computes the matrix coefficients for a valve link. Active
// PRVs and PSVs are handled separately in the assembly pass because
// they pin a node's head rather than contributing a normal link row.
func (s *Solver) valveCoeff(k int, l *network.Link) (p, y float64) {
	q := s.net.Flow[k]

	if s.net.LinkStatus[k] == network.Closed || s.tempClosed[k] {
		return closedCoeff(q)
	}

	switch l.Type {
	case network.TCV:
		return s.tcvCoeff(k, l)
	case network.GPV:
		return s.gpvCoeff(k, l)
	case network.FCV:
		if s.net.LinkStatus[k] == network.Active {
			return s.fcvCoeff(k, l)
		}
	case network.PBV:
		if s.net.LinkStatus[k] == network.Active {
			return s.pbvCoeff(k, l)
		}
	}

	// Open (not active) valves act as a short pipe with only the
	// valve's minor loss.
	return s.openValveCoeff(k, l)
}

func (s *Solver) openValveCoeff(k int, l *network.Link) (p, y float64) {
	q := s.net.Flow[k]
	aq := math.Abs(q)
	km := minorLossCoeff(l.MinorLoss, l.Diam)
	if km < rqTol {
		km = rqTol
	}
	hgrad := 2.0 * km * aq
	if hgrad < rqTol {
		hgrad = rqTol
	}
	p = 1.0 / hgrad
	y = sign(q) * km * aq * aq / hgrad
	return p, y
}

// tcvCoeff treats a throttle control valve as an adjustable minor loss.
// The setting is the loss coefficient applied when the valve is active.
func (s *Solver) tcvCoeff(k int, l *network.Link) (p, y float64) {
	coeff := l.MinorLoss
	if s.net.LinkStatus[k] == network.Active && network.HasSetting(s.net.Setting[k]) {
		coeff = s.net.Setting[k]
	}
	q := s.net.Flow[k]
	aq := math.Abs(q)
	km := minorLossCoeff(coeff, l.Diam)
	if km < rqTol {
		km = rqTol
	}
	hgrad := 2.0 * km * aq
	if hgrad < rqTol {
		hgrad = rqTol
	}
	p = 1.0 / hgrad
	y = sign(q) * km * aq * aq / hgrad
	return p, y
}

// gpvCoeff uses the valve's headloss curve to linearize the loss.
func (s *Solver) gpvCoeff(k int, l *network.Link) (p, y float64) {
	q := s.net.Flow[k]
	aq := math.Max(math.Abs(q), qTiny)
	valve := s.net.Valves[l.Valve]
	c := s.net.Curves[valve.HCurve]
	h, slope := c.Gradient(aq)
	if slope < rqTol {
		slope = rqTol
	}
	p = 1.0 / slope
	y = sign(q) * h / slope
	return p, y
}

// fcvCoeff forces the flow toward the valve's setting. A stiff
// coefficient makes the flow correction drive q to the setpoint while
// still letting head difference resolve freely.
func (s *Solver) fcvCoeff(k int, l *network.Link) (p, y float64) {
	q := s.net.Flow[k]
	set := s.net.Setting[k]
	p = 1.0 / cBig
	y = q - set
	return p, y
}

// pbvCoeff fixes the head drop across the valve at its setting.
func (s *Solver) pbvCoeff(k int, l *network.Link) (p, y float64) {
	q := s.net.Flow[k]
	set := s.net.Setting[k]
	p = cBig
	y = sign(q) * set * cBig
	return p, y
}
