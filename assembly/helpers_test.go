package assembly

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/rotdof/element"
	"github.com/notargets/rotdof/mesh"
)

// squareElement is the single quad (0,0),(1,0),(1,1),(0,1)
func squareElement(t *testing.T) *mesh.Mesh {
	t.Helper()
	m, err := mesh.NewMesh(element.D2,
		[][]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
		[][]int{{0, 1, 2, 3}})
	require.NoError(t, err)
	return m
}

// quadGrid is an n x n grid of unit quads on [-n/2, n/2]^2
func quadGrid(t *testing.T, n int) *mesh.Mesh {
	t.Helper()
	var verts [][]float64
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			verts = append(verts, []float64{float64(i) - float64(n)/2, float64(j) - float64(n)/2})
		}
	}
	id := func(i, j int) int { return j*(n+1) + i }
	var eToV [][]int
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			eToV = append(eToV, []int{id(i, j), id(i+1, j), id(i+1, j+1), id(i, j+1)})
		}
	}
	m, err := mesh.NewMesh(element.D2, verts, eToV)
	require.NoError(t, err)
	return m
}

// boundaryNodes selects the nodes on the bounding box of m
func boundaryNodes(m *mesh.Mesh) *mesh.NodeSet {
	lo, hi := m.BoundingBox()
	return mesh.SelectNodes(m, func(_ int, x []float64) bool {
		for i := range x {
			if math.Abs(x[i]-lo[i]) < 1e-12 || math.Abs(x[i]-hi[i]) < 1e-12 {
				return true
			}
		}
		return false
	})
}

// symmetricMatrix returns B B^T for a random B
func symmetricMatrix(rng *rand.Rand, n int) *mat.Dense {
	B := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			B.Set(i, j, rng.NormFloat64())
		}
	}
	K := mat.NewDense(n, n, nil)
	K.Mul(B, B.T())
	return K
}

func randomVec(rng *rand.Rand, n int) *mat.VecDense {
	v := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v.SetVec(i, rng.NormFloat64())
	}
	return v
}

func symmetryError(A mat.Matrix) float64 {
	r, _ := A.Dims()
	var worst float64
	for i := 0; i < r; i++ {
		for j := i + 1; j < r; j++ {
			worst = math.Max(worst, math.Abs(A.At(i, j)-A.At(j, i)))
		}
	}
	return worst
}

// blockRotation embeds node frames into a dense block diagonal matrix of
// size nodes*d, identity elsewhere
func blockRotation(d, nodes int, frames map[int]*mat.Dense) *mat.Dense {
	Rb := mat.NewDense(nodes*d, nodes*d, nil)
	for n := 0; n < nodes; n++ {
		for a := 0; a < d; a++ {
			Rb.Set(n*d+a, n*d+a, 1)
		}
		if R, ok := frames[n]; ok {
			Rb.Slice(n*d, (n+1)*d, n*d, (n+1)*d).(*mat.Dense).Copy(R)
		}
	}
	return Rb
}

func sandwich(Rb, K mat.Matrix) *mat.Dense {
	var RK, out mat.Dense
	RK.Mul(Rb, K)
	out.Mul(&RK, Rb.T())
	return &out
}
