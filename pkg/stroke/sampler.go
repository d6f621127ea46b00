package stroke

import "math"

// DefaultMinDistance is the smallest gap, in CSS pixels, between two recorded points.
const DefaultMinDistance = 0.5

// Sampler reduces a stream of pointer positions into a quantized path. It is owned by a
// single stroke at a time and is not safe for concurrent use.
type Sampler struct {
	Quant       int
	MinDistance float64

	points  []Point
	last    Point
	hasLast bool
}

// NewSampler fills non-positive arguments with DefaultQuant and DefaultMinDistance.
func NewSampler(quant int, minDistance float64) *Sampler {
	if quant <= 0 {
		quant = DefaultQuant
	}
	if minDistance <= 0 {
		minDistance = DefaultMinDistance
	}
	return &Sampler{Quant: quant, MinDistance: minDistance}
}

// Start resets the buffer for a new stroke.
func (s *Sampler) Start() {
	s.points = nil
	s.hasLast = false
}

// Push records p unless it lies closer than MinDistance to the previously recorded point.
// The distance is measured on the raw positions; the stored point is quantized.
func (s *Sampler) Push(p Point) bool {
	if s.hasLast && math.Hypot(p.X-s.last.X, p.Y-s.last.Y) < s.MinDistance {
		return false
	}
	s.last = p
	s.hasLast = true
	s.points = append(s.points, Quantize(p, s.quant()).Point(s.quant()))
	return true
}

// Len is the number of points recorded since Start.
func (s *Sampler) Len() int {
	return len(s.points)
}

// Drain returns the recorded path and clears the sampler. A single-point path (a tap with no
// motion) gets a second point one quantum away so that it still draws as a dot.
func (s *Sampler) Drain() []Point {
	out := s.points
	if len(out) == 1 {
		step := 1 / float64(s.quant())
		out = append(out, Point{X: out[0].X + step, Y: out[0].Y + step})
	}
	s.Start()
	return out
}

func (s *Sampler) quant() int {
	if s.Quant <= 0 {
		return DefaultQuant
	}
	return s.Quant
}
