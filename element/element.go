package element

import "fmt"

// Dimensionality represents the spatial dimension of an element
type Dimensionality uint8

const (
	D0 Dimensionality = iota // 0D elements (points)
	D1                       // 1D elements (lines, edges)
	D2                       // 2D elements (triangles, quadrilaterals)
	D3                       // 3D elements (tetrahedra, hexahedra, etc.)
)

// Int returns the dimension as a DOF count per vector-valued node
func (d Dimensionality) Int() int { return int(d) }

func (d Dimensionality) String() string {
	return fmt.Sprintf("%dD", int(d))
}

// GeometryType identifies the shape of an element
type GeometryType uint8

const (
	// 3D element types
	Tet     GeometryType = iota // Tetrahedron
	Hex                         // Hexahedron
	Prism                       // Triangular prism
	Pyramid                     // Square-based pyramid

	// 2D element types
	Tri       // Triangle
	Rectangle // Rectangle/Quadrilateral

	// 1D element type
	Line // Line segment
)

var geometryNames = [...]string{
	Tet:       "Tet",
	Hex:       "Hex",
	Prism:     "Prism",
	Pyramid:   "Pyramid",
	Tri:       "Tri",
	Rectangle: "Rectangle",
	Line:      "Line",
}

func (g GeometryType) String() string {
	if int(g) < len(geometryNames) {
		return geometryNames[g]
	}
	return fmt.Sprintf("GeometryType(%d)", uint8(g))
}

// Dimensions returns the spatial dimension spanned by the element shape
func (g GeometryType) Dimensions() Dimensionality {
	switch g {
	case Tet, Hex, Prism, Pyramid:
		return D3
	case Tri, Rectangle:
		return D2
	case Line:
		return D1
	}
	return D0
}

// NumVertices returns the vertex count of the linear element of this shape
func (g GeometryType) NumVertices() int {
	switch g {
	case Tet:
		return 4
	case Hex:
		return 8
	case Prism:
		return 6
	case Pyramid:
		return 5
	case Tri:
		return 3
	case Rectangle:
		return 4
	case Line:
		return 2
	}
	return 0
}

// GeometryForVertexCount infers the linear element shape from its vertex count.
// A count of 4 is ambiguous between Tet and Rectangle, dim resolves it.
func GeometryForVertexCount(dim Dimensionality, n int) (GeometryType, error) {
	switch {
	case dim == D3 && n == 4:
		return Tet, nil
	case dim == D3 && n == 8:
		return Hex, nil
	case dim == D3 && n == 6:
		return Prism, nil
	case dim == D3 && n == 5:
		return Pyramid, nil
	case dim == D2 && n == 3:
		return Tri, nil
	case dim == D2 && n == 4:
		return Rectangle, nil
	case dim == D1 && n == 2:
		return Line, nil
	}
	return 0, fmt.Errorf("no %v element with %d vertices", dim, n)
}

// Incidence is the ordered list of global node indices touched by one element.
// It is shared with the element loop driver and only ever read here.
type Incidence []int

// DOF maps local node i, component c to the global degree of freedom index
// for a field carrying dofsPerNode components per node
func (inc Incidence) DOF(i, c, dofsPerNode int) int {
	return inc[i]*dofsPerNode + c
}

// Contains reports whether the global node appears in the incidence list
func (inc Incidence) Contains(node int) bool {
	for _, n := range inc {
		if n == node {
			return true
		}
	}
	return false
}
