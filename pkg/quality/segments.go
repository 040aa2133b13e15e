package quality

// segment is a plug of water with uniform quality.
type segment struct {
	v float64 // volume, ft³
	c float64 // constituent concentration (mg/L, hours, or percent)
}

// segList holds the plugs en route through one link or stacked inside
// a tank. Index 0 is the outlet end: water leaves the front and enters
// at the back.
type segList struct {
	segs []segment
	head int
}

func (s *segList) count() int { return len(s.segs) - s.head }

func (s *segList) empty() bool { return s.count() == 0 }

// front returns the outlet segment.
func (s *segList) front() *segment {
	return &s.segs[s.head]
}

// back returns the inlet segment.
func (s *segList) back() *segment {
	return &s.segs[len(s.segs)-1]
}

// push adds volume v at concentration c to the inlet end, merging into
// the inlet segment when the quality difference is within tol.
func (s *segList) push(v, c, tol float64) {
	if v <= 0 {
		return
	}
	if !s.empty() {
		b := s.back()
		if diff := b.c - c; diff <= tol && -diff <= tol {
			b.c = (b.c*b.v + c*v) / (b.v + v)
			b.v += v
			return
		}
	}
	s.segs = append(s.segs, segment{v: v, c: c})
}

// pop removes volume v from the outlet end and returns the mass
// carried out. The final segment is never dropped: zero-volume links
// (pumps, valves) and over-drained pipes keep supplying water at the
// last stored concentration.
func (s *segList) pop(v float64) (mass float64) {
	remaining := v
	for remaining > 0 && s.count() > 1 {
		f := s.front()
		if f.v > remaining {
			mass += remaining * f.c
			f.v -= remaining
			s.compact()
			return mass
		}
		mass += f.v * f.c
		remaining -= f.v
		s.head++
	}
	if remaining > 0 && !s.empty() {
		f := s.front()
		mass += remaining * f.c
		f.v -= remaining
		if f.v < 0 {
			f.v = 0
		}
	}
	s.compact()
	return mass
}

// popBack removes volume v from the inlet end, for last-in-first-out
// storage draws. Like pop it retains the final segment.
func (s *segList) popBack(v float64) (mass float64) {
	remaining := v
	for remaining > 0 && s.count() > 1 {
		b := s.back()
		if b.v > remaining {
			mass += remaining * b.c
			b.v -= remaining
			return mass
		}
		mass += b.v * b.c
		remaining -= b.v
		s.segs = s.segs[:len(s.segs)-1]
	}
	if remaining > 0 && !s.empty() {
		b := s.back()
		mass += remaining * b.c
		b.v -= remaining
		if b.v < 0 {
			b.v = 0
		}
	}
	return mass
}

// reverse flips the list when the carrying flow changes direction.
func (s *segList) reverse() {
	s.compact()
	for i, j := 0, len(s.segs)-1; i < j; i, j = i+1, j-1 {
		s.segs[i], s.segs[j] = s.segs[j], s.segs[i]
	}
}

// volume returns the total stored volume.
func (s *segList) volume() float64 {
	total := 0.0
	for i := s.head; i < len(s.segs); i++ {
		total += s.segs[i].v
	}
	return total
}

// mass returns the total stored mass.
func (s *segList) mass() float64 {
	total := 0.0
	for i := s.head; i < len(s.segs); i++ {
		total += s.segs[i].v * s.segs[i].c
	}
	return total
}

// scale multiplies every concentration by f.
func (s *segList) scale(f float64) {
	for i := s.head; i < len(s.segs); i++ {
		s.segs[i].c *= f
	}
}

// setAll resets the list to a single segment.
func (s *segList) setAll(v, c float64) {
	s.segs = s.segs[:0]
	s.head = 0
	if v > 0 {
		s.segs = append(s.segs, segment{v: v, c: c})
	}
}

func (s *segList) compact() {
	if s.head == 0 {
		return
	}
	n := copy(s.segs, s.segs[s.head:])
	s.segs = s.segs[:n]
	s.head = 0
}
