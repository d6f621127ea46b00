package stroke

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptyStroke      = errors.New("stroke has no points")
	ErrMalformedPayload = errors.New("malformed stroke payload")
)

// Payload is the schema-free column stored for each stroke: {"p": [[qx, qy], ...]}.
type Payload struct {
	P [][2]int `json:"p"`
}

func (p Payload) Validate() error {
	if len(p.P) == 0 {
		return ErrEmptyStroke
	}
	return nil
}

// Encode quantizes path into integer pairs.
func Encode(path []Point, quant int) Payload {
	out := Payload{P: make([][2]int, 0, len(path))}
	for _, pt := range path {
		q := Quantize(pt, quant)
		out.P = append(out.P, [2]int{q.QX, q.QY})
	}
	return out
}

// Decode turns integer pairs back into coordinates with 1/quant precision.
func Decode(payload Payload, quant int) []Point {
	out := make([]Point, 0, len(payload.P))
	for _, pair := range payload.P {
		out = append(out, QuantizedPoint{QX: pair[0], QY: pair[1]}.Point(quant))
	}
	return out
}

// ParsePayload reads a stored payload leniently: numbers may carry fractions (they are
// rounded) but every pair must hold exactly two finite numbers.
func ParsePayload(raw json.RawMessage) (Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Payload{}, fmt.Errorf("%w: empty column", ErrMalformedPayload)
	}
	var loose struct {
		P []json.RawMessage `json:"p"`
	}
	if err := json.Unmarshal(raw, &loose); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if loose.P == nil {
		return Payload{}, fmt.Errorf("%w: missing point array", ErrMalformedPayload)
	}
	out := Payload{P: make([][2]int, 0, len(loose.P))}
	for i, rawPair := range loose.P {
		var pair []float64
		if err := json.Unmarshal(rawPair, &pair); err != nil {
			return Payload{}, fmt.Errorf("%w: pair %d: %v", ErrMalformedPayload, i, err)
		}
		if len(pair) != 2 {
			return Payload{}, fmt.Errorf("%w: pair %d has %d values", ErrMalformedPayload, i, len(pair))
		}
		if math.IsNaN(pair[0]) || math.IsInf(pair[0], 0) || math.IsNaN(pair[1]) || math.IsInf(pair[1], 0) {
			return Payload{}, fmt.Errorf("%w: pair %d is not finite", ErrMalformedPayload, i)
		}
		out.P = append(out.P, [2]int{int(math.Round(pair[0])), int(math.Round(pair[1]))})
	}
	return out, nil
}
