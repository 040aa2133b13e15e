package quality

import (
	"math"

	"github.com/dd0wney/cluso-hydronet/pkg/network"
)

// tankState is the quality engine's view of one tank: its own volume
// track (advanced per quality substep, not per hydraulic step) and the
// stored water's quality under the tank's mixing model.
type tankState struct {
	model     network.MixingModel
	reservoir bool

	v float64 // total stored volume
	c float64 // mixed concentration (Mix1) or mixing-zone concentration (Mix2)

	v1max float64 // Mix2 mixing-zone capacity
	v2    float64 // Mix2 stagnant-zone volume
	c2    float64 // Mix2 stagnant-zone concentration

	segs segList // FIFO/LIFO plugs
}

func newTankState(net *network.Network, t *network.Tank, initQual float64) *tankState {
	ts := &tankState{
		model:     t.Mix,
		reservoir: t.IsReservoir(),
		v:         net.TankVolume[net.Nodes[t.Node].Tank],
		c:         initQual,
	}
	switch t.Mix {
	case network.Mix2:
		frac := t.MixFrac
		if frac <= 0 || frac > 1 {
			frac = 1
		}
		ts.v1max = frac * t.Vmax
		if ts.v > ts.v1max {
			ts.v2 = ts.v - ts.v1max
			ts.c2 = initQual
		}
	case network.FIFO, network.LIFO:
		ts.segs.setAll(ts.v, initQual)
	}
	return ts
}

// outflowConc is the concentration of water currently leaving the tank.
func (ts *tankState) outflowConc() float64 {
	switch ts.model {
	case network.FIFO:
		if !ts.segs.empty() {
			return ts.segs.front().c
		}
	case network.LIFO:
		if !ts.segs.empty() {
			return ts.segs.back().c
		}
	}
	return ts.c
}

// update advances the tank over one quality substep. vin/win are the
// volume and mass arriving through links, vnet the net volume change.
// It returns the mass drawn out through outflow links.
func (ts *tankState) update(vin, win, vnet, tol float64) (massOut float64) {
	vout := vin - vnet
	if vout < 0 {
		vout = 0
	}

	switch ts.model {
	case network.Mix2:
		massOut = ts.updateMix2(vin, win, vout)
	case network.FIFO:
		ts.segs.push(vin, safeConc(win, vin), tol)
		massOut = ts.segs.pop(vout)
		ts.c = ts.outflowConc()
	case network.LIFO:
		ts.segs.push(vin, safeConc(win, vin), tol)
		massOut = ts.segs.popBack(vout)
		ts.c = ts.outflowConc()
	default: // Mix1, complete mixing
		if ts.v+vin > 0 {
			ts.c = (ts.c*ts.v + win) / (ts.v + vin)
		}
		massOut = vout * ts.c
	}

	ts.v += vnet
	if ts.v < 0 {
		ts.v = 0
	}
	return massOut
}

// updateMix2 runs the two-compartment model: inflow and outflow move
// through the mixing zone, and only its spill interacts with the
// stagnant zone.
func (ts *tankState) updateMix2(vin, win, vout float64) (massOut float64) {
	v1 := ts.v - ts.v2
	if v1 < 0 {
		v1 = 0
	}
	if vin > 0 {
		ts.c = (ts.c*v1 + win) / (v1 + vin)
		v1 += vin
	}
	massOut = vout * ts.c
	v1 -= vout

	if v1 > ts.v1max {
		vt := v1 - ts.v1max
		if ts.v2+vt > 0 {
			ts.c2 = (ts.c2*ts.v2 + ts.c*vt) / (ts.v2 + vt)
		}
		ts.v2 += vt
	} else if ts.v2 > 0 {
		vt := math.Min(ts.v2, ts.v1max-v1)
		if v1+vt > 0 {
			ts.c = (ts.c*v1 + ts.c2*vt) / (v1 + vt)
		}
		ts.v2 -= vt
	}
	return massOut
}

// react applies first-order bulk reaction (or aging) to the stored
// water over dt seconds.
func (ts *tankState) react(kb, climit, dt float64, age bool) {
	if age {
		grow := dt / 3600.0
		ts.c += grow
		ts.c2 += grow
		for i := ts.segs.head; i < len(ts.segs.segs); i++ {
			ts.segs.segs[i].c += grow
		}
		return
	}
	if kb == 0 {
		return
	}
	ts.c = firstOrder(ts.c, kb, climit, dt)
	ts.c2 = firstOrder(ts.c2, kb, climit, dt)
	for i := ts.segs.head; i < len(ts.segs.segs); i++ {
		ts.segs.segs[i].c = firstOrder(ts.segs.segs[i].c, kb, climit, dt)
	}
}

// storedMass is the constituent mass currently held by the tank.
func (ts *tankState) storedMass() float64 {
	switch ts.model {
	case network.FIFO, network.LIFO:
		return ts.segs.mass()
	case network.Mix2:
		return ts.c*(ts.v-ts.v2) + ts.c2*ts.v2
	default:
		return ts.c * ts.v
	}
}

// firstOrder advances c by dc/dt = k·(climit − c) when a limiting
// concentration is set, plain dc/dt = k·c otherwise. k is per second.
func firstOrder(c, k, climit, dt float64) float64 {
	if climit != 0 {
		// Limited growth (k > 0) and floored decay (k < 0) both relax
		// toward climit at rate |k|.
		return climit + (c-climit)*math.Exp(-math.Abs(k)*dt)
	}
	return c * math.Exp(k*dt)
}

func safeConc(mass, vol float64) float64 {
	if vol <= 0 {
		return 0
	}
	return mass / vol
}
