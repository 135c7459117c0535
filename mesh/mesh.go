package mesh

import (
	"fmt"
	"math"
	"strings"

	"github.com/notargets/rotdof/element"
)

// Mesh holds the nodal geometry and element-to-vertex incidence of a linear
// finite element mesh. Velocity DOFs live on the vertices, Dim components each.
type Mesh struct {
	Dim          element.Dimensionality
	Vertices     [][]float64 // [NumVertices][Dim]
	EToV         [][]int     // [NumElements][nodes of element]
	ElementTypes []element.GeometryType
}

// NewMesh validates the geometry and incidence and infers element shapes
func NewMesh(dim element.Dimensionality, vertices [][]float64, eToV [][]int) (*Mesh, error) {
	if dim != element.D2 && dim != element.D3 {
		return nil, fmt.Errorf("unsupported mesh dimension %v", dim)
	}
	for i, v := range vertices {
		if len(v) != int(dim) {
			return nil, fmt.Errorf("vertex %d has %d coordinates, expected %d", i, len(v), dim)
		}
	}
	types := make([]element.GeometryType, len(eToV))
	for k, nodes := range eToV {
		gt, err := element.GeometryForVertexCount(dim, len(nodes))
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", k, err)
		}
		for _, n := range nodes {
			if n < 0 || n >= len(vertices) {
				return nil, fmt.Errorf("element %d references vertex %d outside [0,%d)",
					k, n, len(vertices))
			}
		}
		types[k] = gt
	}
	return &Mesh{
		Dim:          dim,
		Vertices:     vertices,
		EToV:         eToV,
		ElementTypes: types,
	}, nil
}

// Dimension returns the spatial dimension, which is also the DOFs per node
func (m *Mesh) Dimension() int { return int(m.Dim) }

func (m *Mesh) NumElements() int { return len(m.EToV) }

func (m *Mesh) NumVertices() int { return len(m.Vertices) }

// NumDOF returns the length of a global velocity vector on this mesh
func (m *Mesh) NumDOF() int { return len(m.Vertices) * int(m.Dim) }

// Coordinate returns the position of a node. The slice is owned by the mesh.
func (m *Mesh) Coordinate(node int) []float64 {
	return m.Vertices[node]
}

// Incidence returns the global node list of element k
func (m *Mesh) Incidence(k int) element.Incidence {
	return element.Incidence(m.EToV[k])
}

// MaxNodesPerElement is the largest incidence list length in the mesh
func (m *Mesh) MaxNodesPerElement() int {
	var nmax int
	for _, nodes := range m.EToV {
		if len(nodes) > nmax {
			nmax = len(nodes)
		}
	}
	return nmax
}

// BoundingBox returns the per-axis minimum and maximum vertex coordinates
func (m *Mesh) BoundingBox() (lo, hi []float64) {
	d := int(m.Dim)
	lo = make([]float64, d)
	hi = make([]float64, d)
	for i := 0; i < d; i++ {
		lo[i] = math.Inf(1)
		hi[i] = math.Inf(-1)
	}
	for _, v := range m.Vertices {
		for i := 0; i < d; i++ {
			lo[i] = math.Min(lo[i], v[i])
			hi[i] = math.Max(hi[i], v[i])
		}
	}
	return
}

// String returns a summary of the mesh properties
func (m *Mesh) String() string {
	var sb strings.Builder

	sb.WriteString("=== Mesh Summary ===\n")
	sb.WriteString(fmt.Sprintf("  Dimensions: %v\n", m.Dim))
	sb.WriteString(fmt.Sprintf("  Number of elements: %d\n", m.NumElements()))
	sb.WriteString(fmt.Sprintf("  Number of vertices: %d\n", m.NumVertices()))
	sb.WriteString(fmt.Sprintf("  Velocity degrees of freedom: %d\n", m.NumDOF()))

	counts := make(map[element.GeometryType]int)
	for _, gt := range m.ElementTypes {
		counts[gt]++
	}
	for gt := element.Tet; gt <= element.Line; gt++ {
		if n := counts[gt]; n > 0 {
			sb.WriteString(fmt.Sprintf("  %s elements: %d\n", gt, n))
		}
	}
	if m.NumVertices() > 0 {
		lo, hi := m.BoundingBox()
		sb.WriteString(fmt.Sprintf("  Bounding box: %v -> %v\n", lo, hi))
	}
	sb.WriteString("====================\n")
	return sb.String()
}
