package network

import "math"

// Link is a network link: pipe, pump, or valve.
type Link struct {
	ID          string
	N1, N2      int // endpoint node indices (positive flow runs N1 -> N2)
	Type        LinkType
	Diam        float64 // ft (unused for pumps)
	Length      float64 // ft
	Roughness   float64 // Hazen-Williams C, Darcy-Weisbach roughness (ft), or Manning n
	MinorLoss   float64 // minor loss coefficient K
	Kb          float64 // bulk reaction coefficient (1/day)
	Kw          float64 // wall reaction coefficient (ft/day)
	InitStatus  Status
	InitSetting float64
	Pump        int // index into Network.Pumps, -1 otherwise
	Valve       int // index into Network.Valves, -1 otherwise
}

// CrossArea returns the flow cross-sectional area in ft².
func (l *Link) CrossArea() float64 {
	return math.Pi * l.Diam * l.Diam / 4.0
}

// Pump holds the pump-specific attributes of a pump link.
// The head added at relative speed w follows h = w²·(H0 − R·(q/w)^N)
// for fitted pumps, the head curve for custom-curve pumps, or
// h = 8.814·Power/q for constant-power pumps (ft, cfs, hp).
type Pump struct {
	Link   int // owning link index
	Ptype  PumpType
	Power  float64 // horsepower, ConstantPower only
	H0     float64 // shutoff head, ft
	R      float64 // fitted resistance coefficient
	N      float64 // fitted flow exponent
	Q0     float64 // design flow, cfs
	Qmax   float64 // maximum operating flow, cfs
	Hmax   float64 // maximum head, ft
	HCurve int     // head curve index, -1 for none
	ECurve int     // efficiency curve index, -1 for none
	Energy float64 // accumulated energy use, kwh
	Hours  float64 // accumulated running time, hr
}

// FitPumpCurve derives a pump's operating parameters from its head curve.
// A single-point curve is extended the standard way: shutoff head 133% of
// design head, maximum flow twice design flow. A three-point curve is fit
// to h = H0 - R*q^N exactly. Curves with more points are kept as custom
// curves evaluated by interpolation.
func FitPumpCurve(p *Pump, c *Curve) error {
	switch len(c.X) {
	case 1:
		q1, h1 := c.X[0], c.Y[0]
		if q1 <= 0 || h1 <= 0 {
			return ErrInvalidParameter
		}
		p.Ptype = PowerFunc
		p.H0 = 1.33334 * h1
		p.Q0 = q1
		p.Qmax = 2.0 * q1
		p.Hmax = p.H0
		p.N = 2.0
		p.R = (p.H0 - h1) / (q1 * q1)
		return nil
	case 3:
		h0 := c.Y[0]
		q1, h1 := c.X[1], c.Y[1]
		q2, h2 := c.X[2], c.Y[2]
		if c.X[0] != 0 || q1 <= 0 || q2 <= q1 || h0 <= h1 || h1 <= h2 {
			return ErrInvalidParameter
		}
		p.Ptype = PowerFunc
		p.H0 = h0
		p.N = math.Log((h0-h1)/(h0-h2)) / math.Log(q1/q2)
		if p.N <= 0 || p.N > 6 {
			return ErrInvalidParameter
		}
		p.R = (h0 - h1) / math.Pow(q1, p.N)
		p.Q0 = q1
		p.Qmax = math.Pow(h0/p.R, 1.0/p.N)
		p.Hmax = h0
		return nil
	default:
		if len(c.X) < 2 {
			return ErrInvalidParameter
		}
		p.Ptype = CustomCurve
		p.Q0 = (c.X[0] + c.X[len(c.X)-1]) / 2.0
		p.Qmax = c.X[len(c.X)-1]
		p.Hmax = c.Y[0]
		for _, y := range c.Y {
			p.Hmax = math.Max(p.Hmax, y)
		}
		return nil
	}
}

// Valve holds the valve-specific attributes of a valve link. The meaning
// of the owning link's setting depends on the link type: pressure (psi
// equivalent head, ft) for PRV/PSV/PBV, flow (cfs) for FCV, a loss
// coefficient for TCV, and a headloss curve index for GPV.
type Valve struct {
	Link   int // owning link index
	HCurve int // headloss curve index, GPV only, -1 otherwise
}
