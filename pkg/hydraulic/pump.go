package hydraulic

import (
	"math"

	"github.com/dd0wney/cluso-hydronet/pkg/network"
)

// pumpCoeff linearizes a pump's head-gain relationship. Head gain is
// modeled as a negative headloss, so the same update formula applies.
// Speed scaling follows the affinity laws: h = w²·H(q/w).
func (s *Solver) pumpCoeff(k int, l *network.Link) (p, y float64) {
	q := s.net.Flow[k]
	pump := s.net.Pumps[l.Pump]
	w := s.net.Setting[k] // relative speed
	if !network.HasSetting(w) {
		w = 1.0
	}

	if s.net.LinkStatus[k] == network.Closed || s.tempClosed[k] || w == 0 {
		return closedCoeff(q)
	}

	aq := math.Max(math.Abs(q), qTiny)

	var hloss, hgrad float64
	switch pump.Ptype {
	case network.ConstantPower:
		// h = 8.814·hp/q; the gain falls off with flow.
		hgrad = 8.814 * pump.Power * s.opt.SpecificGravity / (aq * aq)
		hloss = -8.814 * pump.Power * s.opt.SpecificGravity / aq
	case network.PowerFunc:
		n := pump.N
		r := pump.R * math.Pow(w, 2.0-n)
		hgrad = n * r * math.Pow(aq, n-1.0)
		hloss = -(w*w*pump.H0 - r*math.Pow(aq, n))
	case network.CustomCurve:
		c := s.net.Curves[pump.HCurve]
		h, slope := c.Gradient(aq / w)
		hgrad = -slope * w // head curves fall with flow, so the loss gradient is positive
		hloss = -(w * w * h)
	}
	if hgrad < rqTol {
		hgrad = rqTol
	}

	p = 1.0 / hgrad
	y = hloss / hgrad
	return p, y
}

// pumpEnergy accrues energy use over dt seconds at the pump's current
// operating point.
func (s *Solver) pumpEnergy(dt float64) {
	for _, pump := range s.net.Pumps {
		k := pump.Link
		l := s.net.Links[k]
		q := s.net.Flow[k]
		if s.net.LinkStatus[k] == network.Closed || s.tempClosed[k] || q <= qTiny {
			continue
		}
		hGain := s.net.Head[l.N2] - s.net.Head[l.N1]
		if hGain <= 0 {
			continue
		}
		eff := s.opt.Efficiency
		if pump.ECurve >= 0 {
			if e := s.net.Curves[pump.ECurve].Value(q); e > 1 {
				eff = e
			}
		}
		// kw = γ·q·h / (550·e) · 0.7457, with γ = 62.4·SG lb/ft³
		kw := 62.4 * s.opt.SpecificGravity * q * hGain / (550.0 * eff / 100.0) * 0.7457
		pump.Energy += kw * dt / 3600.0
		pump.Hours += dt / 3600.0
	}
}
