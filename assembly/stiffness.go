package assembly

import (
	"fmt"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/rotdof/element"
)

// GlobalMatrix is a square system matrix that accepts element contributions.
// Both *mat.Dense and *sparse.DOK satisfy it.
type GlobalMatrix interface {
	mat.Matrix
	Set(i, j int, v float64)
}

// NewSparseMatrix allocates an empty n x n sparse stiffness in dictionary of
// keys format, convertible to CSR with ToCSR once assembly is complete
func NewSparseMatrix(n int) *sparse.DOK {
	return sparse.NewDOK(n, n)
}

// BlockLayout describes one side (rows or columns) of a local block: the
// element incidence, the number of DOFs each node carries and whether those
// DOFs take part in the rotation
type BlockLayout struct {
	Incidence   element.Incidence
	DofsPerNode int
	Rotate      bool
}

// NewLayout returns a rotated layout of dim DOFs per node
func NewLayout(inc element.Incidence, dim int) BlockLayout {
	return BlockLayout{Incidence: inc, DofsPerNode: dim, Rotate: true}
}

// Size is the block dimension along this side
func (l BlockLayout) Size() int { return len(l.Incidence) * l.DofsPerNode }

// GlobalDOF maps local DOF index i of the block to the global index
func (l BlockLayout) GlobalDOF(i int) int {
	return l.Incidence.DOF(i/l.DofsPerNode, i%l.DofsPerNode, l.DofsPerNode)
}

// Scatter adds block into g, using rows and cols as the index maps. Entries
// accumulate since neighboring elements share nodes.
func Scatter(g GlobalMatrix, block mat.Matrix, rows, cols BlockLayout) error {
	r, c := block.Dims()
	if r != rows.Size() || c != cols.Size() {
		return fmt.Errorf("%w: block is %dx%d, layout is %dx%d",
			ErrBlockShape, r, c, rows.Size(), cols.Size())
	}
	gr, gc := g.Dims()
	rowDOF := make([]int, r)
	for i := range rowDOF {
		rowDOF[i] = rows.GlobalDOF(i)
		if rowDOF[i] >= gr {
			return fmt.Errorf("%w: row dof %d outside global matrix of %d rows",
				ErrDimensionMismatch, rowDOF[i], gr)
		}
	}
	colDOF := make([]int, c)
	for j := range colDOF {
		colDOF[j] = cols.GlobalDOF(j)
		if colDOF[j] >= gc {
			return fmt.Errorf("%w: column dof %d outside global matrix of %d columns",
				ErrDimensionMismatch, colDOF[j], gc)
		}
	}
	for i, gi := range rowDOF {
		for j, gj := range colDOF {
			v := block.At(i, j)
			if v == 0 {
				continue
			}
			g.Set(gi, gj, g.At(gi, gj)+v)
		}
	}
	return nil
}

// addInto accumulates every non-zero of src into dst
func addInto(dst GlobalMatrix, src *sparse.DOK) {
	src.DoNonZero(func(i, j int, v float64) {
		dst.Set(i, j, dst.At(i, j)+v)
	})
}
