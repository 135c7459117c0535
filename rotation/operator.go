package rotation

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Operator is the block diagonal rotation over a global DOF vector laid out
// node-major (dof = node*Dim + component). Nodes without a frame are identity.
type Operator struct {
	Dim    int
	frames map[int]*mat.Dense
}

func NewOperator(dim int) *Operator {
	return &Operator{Dim: dim, frames: make(map[int]*mat.Dense)}
}

// Set installs the frame for a node
func (op *Operator) Set(node int, R *mat.Dense) error {
	if r, c := R.Dims(); r != op.Dim || c != op.Dim {
		return fmt.Errorf("%w: node %d frame is %dx%d, operator is %dD",
			ErrDimensionMismatch, node, r, c, op.Dim)
	}
	op.frames[node] = R
	return nil
}

// Frame returns the rotation of node, ok is false for identity nodes
func (op *Operator) Frame(node int) (R *mat.Dense, ok bool) {
	R, ok = op.frames[node]
	return
}

func (op *Operator) Len() int { return len(op.frames) }

// Nodes returns the rotated nodes in ascending order
func (op *Operator) Nodes() []int {
	nodes := make([]int, 0, len(op.frames))
	for n := range op.frames {
		nodes = append(nodes, n)
	}
	sort.Ints(nodes)
	return nodes
}

// Rotate replaces v by R v
func (op *Operator) Rotate(v []float64) error {
	return op.apply(v, false)
}

// Unrotate replaces v by R^T v, undoing Rotate
func (op *Operator) Unrotate(v []float64) error {
	return op.apply(v, true)
}

func (op *Operator) apply(v []float64, transpose bool) error {
	if len(v)%op.Dim != 0 {
		return fmt.Errorf("%w: vector length %d is not a multiple of %d",
			ErrDimensionMismatch, len(v), op.Dim)
	}
	nodes := op.Nodes()
	if len(nodes) > 0 {
		if last := nodes[len(nodes)-1]; (last+1)*op.Dim > len(v) {
			return fmt.Errorf("%w: node %d outside vector of length %d",
				ErrDimensionMismatch, last, len(v))
		}
	}
	var (
		buf = make([]float64, op.Dim)
		tmp = mat.NewVecDense(op.Dim, buf)
	)
	for _, n := range nodes {
		lo, hi := n*op.Dim, (n+1)*op.Dim
		block := mat.NewVecDense(op.Dim, v[lo:hi])
		R := op.frames[n]
		if transpose {
			tmp.MulVec(R.T(), block)
		} else {
			tmp.MulVec(R, block)
		}
		copy(v[lo:hi], buf)
	}
	return nil
}
