// Package perspective derives the homography pair that maps a user-drawn
// quadrilateral onto the unit square and back.
package perspective

import (
	"encoding/json"
	"fmt"
)

// Point is an (x, y) pair, normally in normalized [0, 1] coordinates.
type Point struct {
	X, Y float64
}

// Quad is ordered top-left, top-right, bottom-right, bottom-left.
type Quad [4]Point

// UnitSquare is the canonical target of the forward mapping.
var UnitSquare = Quad{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

// ValidationError describes a quad that could not be parsed.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "perspective: " + e.Msg
}

// Validation messages, worded the way API clients already expect.
const (
	msgNotAList   = "Did not find valid quad data!"
	msgNotPairs   = "quad entries are not xy pairs"
	msgBadFormat  = "quad is not properly formatted (must be 4 xy pairs)"
	msgNotNumeric = "xy pairs must be floating point values (or integers)"

	quadPointCount = 4
	coordsPerPoint = 2
)

// ParseQuadJSON decodes raw JSON and validates it with ParseQuad.
func ParseQuadJSON(data []byte) (Quad, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Quad{}, &ValidationError{Msg: fmt.Sprintf("%s (%v)", msgNotAList, err)}
	}
	return ParseQuad(raw)
}

// ParseQuad validates a loosely typed value (as produced by encoding/json)
// and converts it into a Quad. It requires a list of exactly 4 entries, each
// a list of exactly 2 numbers.
func ParseQuad(raw any) (Quad, error) {
	entries, ok := raw.([]any)
	if !ok {
		return Quad{}, &ValidationError{Msg: msgNotAList}
	}

	pairs := make([][]any, 0, len(entries))
	for _, e := range entries {
		pair, ok := e.([]any)
		if !ok {
			return Quad{}, &ValidationError{Msg: msgNotPairs}
		}
		pairs = append(pairs, pair)
	}

	if len(pairs) != quadPointCount {
		return Quad{}, &ValidationError{Msg: msgBadFormat}
	}
	for _, pair := range pairs {
		if len(pair) != coordsPerPoint {
			return Quad{}, &ValidationError{Msg: msgBadFormat}
		}
	}

	var q Quad
	for i, pair := range pairs {
		x, okX := toFloat(pair[0])
		y, okY := toFloat(pair[1])
		if !okX || !okY {
			return Quad{}, &ValidationError{Msg: msgNotNumeric}
		}
		q[i] = Point{X: x, Y: y}
	}
	return q, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
