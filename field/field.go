package field

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrFieldEvaluation reports a field that is undefined at a coordinate
	ErrFieldEvaluation = errors.New("field evaluation failed")
	// ErrDimensionMismatch reports a field value of the wrong spatial dimension
	ErrDimensionMismatch = errors.New("field dimension mismatch")
	// ErrNilField reports evaluation of a field that was never set
	ErrNilField = errors.New("field is not set")
)

// Coordinate locates a field evaluation in the mesh. It is a value type so
// every evaluation receives its own copy.
type Coordinate struct {
	Element int // element being assembled, -1 outside an element loop
	Node    int // global node index
	X       [3]float64
	Dim     int
}

// NewCoordinate builds a coordinate from a node position of dimension 2 or 3
func NewCoordinate(element, node int, x []float64) Coordinate {
	c := Coordinate{Element: element, Node: node, Dim: len(x)}
	copy(c.X[:], x)
	return c
}

// Position returns the spatial position as a slice of length Dim
func (c Coordinate) Position() []float64 {
	p := make([]float64, c.Dim)
	copy(p, c.X[:c.Dim])
	return p
}

// VectorField maps a mesh coordinate to a vector of the mesh dimension
type VectorField interface {
	Evaluate(c Coordinate) ([]float64, error)
}

// Func adapts an ordinary function to a VectorField
type Func func(c Coordinate) ([]float64, error)

func (f Func) Evaluate(c Coordinate) ([]float64, error) { return f(c) }

type constant []float64

func (v constant) Evaluate(Coordinate) ([]float64, error) { return v, nil }

// Constant returns a field with the same value everywhere
func Constant(v ...float64) VectorField {
	return constant(append([]float64(nil), v...))
}

type radial []float64

func (center radial) Evaluate(c Coordinate) ([]float64, error) {
	if len(center) != c.Dim {
		return nil, fmt.Errorf("radial center has %d components, coordinate has %d",
			len(center), c.Dim)
	}
	v := c.Position()
	for i := range v {
		v[i] -= center[i]
	}
	return v, nil
}

// Radial returns the field x - center, the outward normal of an annulus or
// spherical shell centered at center
func Radial(center ...float64) VectorField {
	return radial(append([]float64(nil), center...))
}

// Evaluate evaluates f at c and checks the result against the coordinate
// dimension. The returned slice is a copy owned by the caller.
func Evaluate(name string, f VectorField, c Coordinate) ([]float64, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrNilField, name)
	}
	v, err := f.Evaluate(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %s at node %d, element %d: %w",
			ErrFieldEvaluation, name, c.Node, c.Element, err)
	}
	if len(v) != c.Dim {
		return nil, fmt.Errorf("%w: %s at node %d returned %d components, expected %d",
			ErrDimensionMismatch, name, c.Node, len(v), c.Dim)
	}
	for i, vi := range v {
		if math.IsNaN(vi) || math.IsInf(vi, 0) {
			return nil, fmt.Errorf("%w: %s at node %d, element %d: component %d is %v",
				ErrFieldEvaluation, name, c.Node, c.Element, i, vi)
		}
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out, nil
}
