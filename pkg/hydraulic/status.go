package hydraulic

import (
	"math"

	"github.com/dd0wney/cluso-hydronet/pkg/logging"
	"github.com/dd0wney/cluso-hydronet/pkg/network"
)

// Hysteresis bands for status transitions, in ft of head and cfs.
const (
	htol = 0.0005
	qtol = 0.0001
)

// pressureValveStatus runs the PRV and PSV state machines and returns
// the number of status changes. These are evaluated every trial since
// an active valve rewrites its node's equation.
func (s *Solver) pressureValveStatus() int {
	changes := 0
	for _, v := range s.net.Valves {
		k := v.Link
		l := s.net.Links[k]
		if l.Type != network.PRV && l.Type != network.PSV {
			continue
		}
		// A valve whose setting was displaced by a forced status stays
		// in that status until a new setting arrives.
		if !network.HasSetting(s.net.Setting[k]) {
			continue
		}

		var next network.Status
		if l.Type == network.PRV {
			next = s.prvStatus(k, l)
		} else {
			next = s.psvStatus(k, l)
		}
		if next != s.net.LinkStatus[k] {
			s.recordStatusChange(l, s.net.LinkStatus[k], next)
			s.net.LinkStatus[k] = next
			if next == network.Closed {
				s.net.Flow[k] = qTiny
			}
			changes++
		}
	}
	return changes
}

func (s *Solver) prvStatus(k int, l *network.Link) network.Status {
	q := s.net.Flow[k]
	hu := s.net.Head[l.N1]
	hd := s.net.Head[l.N2]
	hset := s.net.Setting[k] + s.net.Nodes[l.N2].Elevation
	hml := minorLossCoeff(l.MinorLoss, l.Diam) * q * q

	switch s.net.LinkStatus[k] {
	case network.Active:
		switch {
		case q < -qtol:
			return network.Closed
		case hu < hset+hml-htol:
			return network.Open
		default:
			return network.Active
		}
	case network.Open:
		switch {
		case q < -qtol:
			return network.Closed
		case hu >= hset+hml+htol:
			return network.Active
		default:
			return network.Open
		}
	default: // Closed
		switch {
		case hu >= hset+htol && hd < hset-htol:
			return network.Active
		case hu < hset-htol && hu > hd+htol:
			return network.Open
		default:
			return network.Closed
		}
	}
}

func (s *Solver) psvStatus(k int, l *network.Link) network.Status {
	q := s.net.Flow[k]
	hu := s.net.Head[l.N1]
	hd := s.net.Head[l.N2]
	hset := s.net.Setting[k] + s.net.Nodes[l.N1].Elevation
	hml := minorLossCoeff(l.MinorLoss, l.Diam) * q * q

	switch s.net.LinkStatus[k] {
	case network.Active:
		switch {
		case q < -qtol:
			return network.Closed
		case hd+hml > hset+htol:
			return network.Open
		default:
			return network.Active
		}
	case network.Open:
		switch {
		case q < -qtol:
			return network.Closed
		case hd+hml < hset-htol:
			return network.Active
		default:
			return network.Open
		}
	default: // Closed
		switch {
		case hd > hset+htol && hu > hd+htol:
			return network.Open
		case hu >= hset+htol && hu > hd+htol:
			return network.Active
		default:
			return network.Closed
		}
	}
}

// linkStatus re-examines check valves, pumps, and flow control valves
// once a trial has tentatively converged, and returns the number of
// changes. Any change forces further trials.
func (s *Solver) linkStatus() int {
	changes := 0
	for k, l := range s.net.Links {
		if s.net.LinkStatus[k] == network.Closed {
			continue
		}
		switch {
		case l.Type == network.CVPipe:
			if s.cvStatusChange(k, l) {
				changes++
			}
		case l.Type == network.PumpLink:
			if s.pumpStatusChange(k, l) {
				changes++
			}
		case l.Type == network.FCV:
			if s.fcvStatusChange(k, l) {
				changes++
			}
		}
	}
	return changes
}

// cvStatusChange closes a check valve on reverse head or reverse flow
// and reopens it when forward head returns.
func (s *Solver) cvStatusChange(k int, l *network.Link) bool {
	dh := s.net.Head[l.N1] - s.net.Head[l.N2]
	q := s.net.Flow[k]

	shouldClose := dh < -htol || q < -qtol
	if shouldClose == s.tempClosed[k] {
		return false
	}
	s.tempClosed[k] = shouldClose
	if shouldClose {
		s.net.Flow[k] = qTiny
		s.recordTempChange(l, network.Closed)
	} else {
		s.recordTempChange(l, network.Open)
	}
	return true
}

// pumpStatusChange shuts a pump down when the head it would have to
// supply exceeds its shutoff head, and restarts it when the required
// gain drops back inside the curve.
func (s *Solver) pumpStatusChange(k int, l *network.Link) bool {
	pump := s.net.Pumps[l.Pump]
	gain := s.net.Head[l.N2] - s.net.Head[l.N1]
	q := s.net.Flow[k]

	w := s.net.Setting[k]
	if !network.HasSetting(w) {
		w = 1.0
	}
	hmax := math.Inf(1)
	if pump.Ptype != network.ConstantPower {
		hmax = w * w * pump.Hmax
	}

	shouldClose := w == 0 || gain > hmax+htol || q < -qtol
	if shouldClose == s.tempClosed[k] {
		return false
	}
	s.tempClosed[k] = shouldClose
	if shouldClose {
		s.net.Flow[k] = qTiny
		s.recordTempChange(l, network.Closed)
	} else {
		s.recordTempChange(l, network.Open)
	}
	return true
}

// fcvStatusChange moves a flow control valve between Active and Open.
// The valve can only hold its setpoint while forward head is available
// and the system asks for at least the setting; it cannot limit
// reverse flow, so it falls open rather than closing.
func (s *Solver) fcvStatusChange(k int, l *network.Link) bool {
	if !network.HasSetting(s.net.Setting[k]) {
		return false
	}
	hu := s.net.Head[l.N1]
	hd := s.net.Head[l.N2]
	q := s.net.Flow[k]
	set := s.net.Setting[k]
	cur := s.net.LinkStatus[k]

	next := cur
	switch {
	case hu-hd < -htol:
		next = network.Open
	case q < -qtol:
		next = network.Open
	case cur == network.Open && q >= set:
		next = network.Active
	case cur == network.Active && q < set-qtol:
		next = network.Open
	}
	if next == cur {
		return false
	}
	s.recordStatusChange(l, cur, next)
	s.net.LinkStatus[k] = next
	return true
}

func (s *Solver) recordStatusChange(l *network.Link, from, to network.Status) {
	s.reg.HydStatusChangesTotal.Inc()
	s.log.Debug("link status change",
		logging.Link(l.ID),
		logging.Int("from", int(from)),
		logging.Int("to", int(to)))
}

func (s *Solver) recordTempChange(l *network.Link, to network.Status) {
	s.reg.HydStatusChangesTotal.Inc()
	s.log.Debug("link status change",
		logging.Link(l.ID),
		logging.Int("to", int(to)))
}
