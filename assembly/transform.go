package assembly

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/rotdof/rotation"
)

// GlobalTransform rotates an assembled system A x = y into the local node
// frames, (R A R^T)(R x) = R y, and undoes it after the solve. It remembers
// the system it rotated so the same rotation is never applied twice.
type GlobalTransform struct {
	op      *rotation.Operator
	applied bool
	A       GlobalMatrix
	x, y    *mat.VecDense
}

func NewGlobalTransform(op *rotation.Operator) *GlobalTransform {
	return &GlobalTransform{op: op}
}

// Operator returns the block diagonal rotation this transform applies
func (t *GlobalTransform) Operator() *rotation.Operator { return t.op }

func (t *GlobalTransform) Applied() bool { return t.applied }

// Apply rotates A, x and y in place. x or y may be nil.
func (t *GlobalTransform) Apply(A GlobalMatrix, x, y *mat.VecDense) error {
	if t.applied {
		return ErrAlreadyApplied
	}
	if err := t.check(A, x, y); err != nil {
		return err
	}
	if err := RotateMatrix(A, t.op, t.op, false); err != nil {
		return err
	}
	for _, v := range []*mat.VecDense{x, y} {
		if err := rotateVec(t.op, v, false); err != nil {
			return err
		}
	}
	t.A, t.x, t.y = A, x, y
	t.applied = true
	return nil
}

// Unapply restores the system given to Apply to physical coordinates. x then
// holds whatever the solver left there, rotated back.
func (t *GlobalTransform) Unapply() error {
	if !t.applied {
		return ErrNotApplied
	}
	if err := RotateMatrix(t.A, t.op, t.op, true); err != nil {
		return err
	}
	for _, v := range []*mat.VecDense{t.y, t.x} {
		if err := rotateVec(t.op, v, true); err != nil {
			return err
		}
	}
	t.A, t.x, t.y = nil, nil, nil
	t.applied = false
	return nil
}

// RecoverSolution returns the physical solution R^T xr of a rotated solution
// without changing the transform state
func (t *GlobalTransform) RecoverSolution(xr *mat.VecDense) (*mat.VecDense, error) {
	x := mat.VecDenseCopyOf(xr)
	if err := rotateVec(t.op, x, true); err != nil {
		return nil, err
	}
	return x, nil
}

func (t *GlobalTransform) check(A GlobalMatrix, x, y *mat.VecDense) error {
	r, c := A.Dims()
	if r != c {
		return fmt.Errorf("%w: global matrix is %dx%d", ErrDimensionMismatch, r, c)
	}
	for name, v := range map[string]*mat.VecDense{"solution": x, "load": y} {
		if v != nil && v.Len() != r {
			return fmt.Errorf("%w: %s vector has length %d, matrix has %d rows",
				ErrDimensionMismatch, name, v.Len(), r)
		}
	}
	if nodes := t.op.Nodes(); len(nodes) > 0 {
		if last := nodes[len(nodes)-1]; (last+1)*t.op.Dim > r {
			return fmt.Errorf("%w: node %d outside system of %d dofs",
				ErrDimensionMismatch, last, r)
		}
	}
	return nil
}

// RotateMatrix replaces g by Rrow g Rcol^T, or by Rrow^T g Rcol when
// transpose is set. A nil operator is the identity on that side, so a
// coupling block G of velocity rows and pressure columns is rotated with
// RotateMatrix(G, op, nil, false). Sparse matrices implementing
// mat.NonZeroDoer are visited only on their non-zeros.
func RotateMatrix(g GlobalMatrix, rowOp, colOp *rotation.Operator, transpose bool) error {
	r, c := g.Dims()
	if rowOp != nil {
		if err := checkOperator(rowOp, r); err != nil {
			return err
		}
		for node, others := range pattern(g, rowOp, true) {
			R, _ := rowOp.Frame(node)
			rotateLines(g, R, node*rowOp.Dim, others, true, transpose)
		}
	}
	if colOp != nil {
		if err := checkOperator(colOp, c); err != nil {
			return err
		}
		for node, others := range pattern(g, colOp, false) {
			R, _ := colOp.Frame(node)
			rotateLines(g, R, node*colOp.Dim, others, false, transpose)
		}
	}
	return nil
}

func checkOperator(op *rotation.Operator, n int) error {
	nodes := op.Nodes()
	if len(nodes) > 0 && (nodes[len(nodes)-1]+1)*op.Dim > n {
		return fmt.Errorf("%w: node %d outside matrix side of %d",
			ErrDimensionMismatch, nodes[len(nodes)-1], n)
	}
	return nil
}

// pattern lists, for each rotated node, the indices along the other side that
// can be non-zero in that node's rows (byRow) or columns
func pattern(g GlobalMatrix, op *rotation.Operator, byRow bool) map[int][]int {
	r, c := g.Dims()
	out := make(map[int][]int, op.Len())
	nz, isSparse := g.(mat.NonZeroDoer)
	if !isSparse {
		n := c
		if !byRow {
			n = r
		}
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		for _, node := range op.Nodes() {
			out[node] = all
		}
		return out
	}

	seen := make(map[int]map[int]struct{}, op.Len())
	nz.DoNonZero(func(i, j int, _ float64) {
		line, other := i, j
		if !byRow {
			line, other = j, i
		}
		node := line / op.Dim
		if _, ok := op.Frame(node); !ok {
			return
		}
		s := seen[node]
		if s == nil {
			s = make(map[int]struct{})
			seen[node] = s
		}
		s[other] = struct{}{}
	})
	for node, s := range seen {
		idx := make([]int, 0, len(s))
		for k := range s {
			idx = append(idx, k)
		}
		sort.Ints(idx)
		out[node] = idx
	}
	return out
}

// rotateLines applies R (or R^T) to the d rows (or columns) starting at
// first, one cross section at a time
func rotateLines(g GlobalMatrix, R *mat.Dense, first int, others []int, byRow, transpose bool) {
	d, _ := R.Dims()
	var M mat.Matrix = R
	if transpose {
		M = R.T()
	}
	in := mat.NewVecDense(d, nil)
	out := mat.NewVecDense(d, nil)
	at := func(a, o int) (int, int) {
		if byRow {
			return first + a, o
		}
		return o, first + a
	}
	for _, o := range others {
		zero := true
		for a := 0; a < d; a++ {
			v := g.At(at(a, o))
			in.SetVec(a, v)
			zero = zero && v == 0
		}
		if zero {
			continue
		}
		out.MulVec(M, in)
		for a := 0; a < d; a++ {
			i, j := at(a, o)
			g.Set(i, j, out.AtVec(a))
		}
	}
}

func rotateVec(op *rotation.Operator, v *mat.VecDense, transpose bool) error {
	if v == nil {
		return nil
	}
	data := make([]float64, v.Len())
	for i := range data {
		data[i] = v.AtVec(i)
	}
	var err error
	if transpose {
		err = op.Unrotate(data)
	} else {
		err = op.Rotate(data)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDimensionMismatch, err)
	}
	for i, x := range data {
		v.SetVec(i, x)
	}
	return nil
}
