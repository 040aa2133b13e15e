package network

// Pattern is a named sequence of multipliers repeated cyclically across
// the simulation duration at the pattern time step.
type Pattern struct {
	ID      string
	Factors []float64
}

// Factor returns the multiplier for period p, cycling past the end.
// A pattern with no factors multiplies by 1.
func (p *Pattern) Factor(period int64) float64 {
	if len(p.Factors) == 0 {
		return 1.0
	}
	i := period % int64(len(p.Factors))
	if i < 0 {
		i += int64(len(p.Factors))
	}
	return p.Factors[i]
}

// Curve is a named piecewise-linear function through ordered (x, y)
// points, monotonically increasing in x. Lookups clamp at the endpoints;
// there is no extrapolation.
type Curve struct {
	ID string
	X  []float64
	Y  []float64
}

// Validate checks that the curve is non-empty and increasing in x.
func (c *Curve) Validate() error {
	if len(c.X) == 0 || len(c.X) != len(c.Y) {
		return ErrInvalidParameter
	}
	for i := 1; i < len(c.X); i++ {
		if c.X[i] <= c.X[i-1] {
			return ErrNotMonotonic
		}
	}
	return nil
}

// Value interpolates the curve at x, clamped to the endpoint values.
func (c *Curve) Value(x float64) float64 {
	n := len(c.X)
	if n == 0 {
		return 0
	}
	if x <= c.X[0] {
		return c.Y[0]
	}
	if x >= c.X[n-1] {
		return c.Y[n-1]
	}
	for i := 1; i < n; i++ {
		if x <= c.X[i] {
			t := (x - c.X[i-1]) / (c.X[i] - c.X[i-1])
			return c.Y[i-1] + t*(c.Y[i]-c.Y[i-1])
		}
	}
	return c.Y[n-1]
}

// InverseValue interpolates x for a given y. It assumes y is also
// monotonically increasing, which holds for the volume and head curves
// the solver inverts.
func (c *Curve) InverseValue(y float64) float64 {
	n := len(c.Y)
	if n == 0 {
		return 0
	}
	if y <= c.Y[0] {
		return c.X[0]
	}
	if y >= c.Y[n-1] {
		return c.X[n-1]
	}
	for i := 1; i < n; i++ {
		if y <= c.Y[i] {
			t := (y - c.Y[i-1]) / (c.Y[i] - c.Y[i-1])
			return c.X[i-1] + t*(c.X[i]-c.X[i-1])
		}
	}
	return c.X[n-1]
}

// Gradient returns the value and slope of the curve at x, for use in
// the solver's linearization of curve-driven links. Outside the curve's
// range the endpoint segment's slope is retained so the linearization
// stays invertible.
func (c *Curve) Gradient(x float64) (y, slope float64) {
	n := len(c.X)
	if n < 2 {
		return c.Value(x), 0
	}
	i := 1
	for i < n-1 && x > c.X[i] {
		i++
	}
	slope = (c.Y[i] - c.Y[i-1]) / (c.X[i] - c.X[i-1])
	y = c.Y[i-1] + (x-c.X[i-1])*slope
	return y, slope
}
