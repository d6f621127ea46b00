// Package stroke holds the captured-path types and the sampling and quantization used to
// shrink a pointer gesture before it is sent.
package stroke

import (
	"math"
	"time"
)

// DefaultQuant is the quantization scale shared by senders and decoders of a session.
const DefaultQuant = 100

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type QuantizedPoint struct {
	QX int
	QY int
}

// Quantize scales p by quant and rounds half away from zero on each axis.
func Quantize(p Point, quant int) QuantizedPoint {
	q := float64(quant)
	return QuantizedPoint{QX: int(math.Round(p.X * q)), QY: int(math.Round(p.Y * q))}
}

func (q QuantizedPoint) Point(quant int) Point {
	return Point{X: float64(q.QX) / float64(quant), Y: float64(q.QY) / float64(quant)}
}

// Stroke is one completed gesture as stored by the remote store. ID is assigned by the store.
type Stroke struct {
	ID        string
	Path      []Point
	OwnerID   string
	CreatedAt time.Time
}
