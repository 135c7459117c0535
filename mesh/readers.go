package mesh

import (
	"fmt"

	"github.com/notargets/gocfd/DG3D/mesh/readers"
	"github.com/notargets/rotdof/element"
)

// ReadMeshFile reads a 3D mesh file (Gambit neutral, Gmsh, SU2) and converts
// it to a Mesh carrying only vertex geometry and element incidence
func ReadMeshFile(meshfile string) (*Mesh, error) {
	msh, err := readers.ReadMeshFile(meshfile)
	if err != nil {
		return nil, fmt.Errorf("reading mesh file %s: %w", meshfile, err)
	}

	vertices := make([][]float64, len(msh.Vertices))
	for i, v := range msh.Vertices {
		vertices[i] = []float64{v[0], v[1], v[2]}
	}

	eToV := make([][]int, len(msh.EtoV))
	for k, ev := range msh.EtoV {
		nodes := make([]int, len(ev))
		for i, n := range ev {
			nodes[i] = int(n)
		}
		eToV[k] = nodes
	}

	m, err := NewMesh(element.D3, vertices, eToV)
	if err != nil {
		return nil, fmt.Errorf("mesh file %s: %w", meshfile, err)
	}
	return m, nil
}
