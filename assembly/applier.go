package assembly

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/rotdof/element"
)

// RotationLookup resolves the frame of a global node. ok is false for nodes
// that are not rotated.
type RotationLookup interface {
	Rotation(node int) (R *mat.Dense, ok bool, err error)
}

// LookupFunc adapts a plain function to a RotationLookup
type LookupFunc func(node int) (*mat.Dense, bool, error)

func (f LookupFunc) Rotation(node int) (*mat.Dense, bool, error) { return f(node) }

// Applier rotates local element blocks in place. It owns scratch storage
// and is not safe for concurrent use: give each worker its own Applier.
type Applier struct {
	ni, mi       []float64 // row and column panel scratch
	rowR, colR   []*mat.Dense
	maxNodesSeen int
}

func NewApplier() *Applier { return &Applier{} }

// Apply replaces block by R_block * block * R_block^T, where R_block is block
// diagonal over inc with the node frames from lookup and identity elsewhere
func (a *Applier) Apply(block *mat.Dense, inc element.Incidence, dim int, lookup RotationLookup) error {
	l := NewLayout(inc, dim)
	return a.ApplyLayout(block, l, l, lookup)
}

// ApplyLayout rotates the rows of block by the frames of the row layout and
// its columns by the transposed frames of the column layout. A side whose
// DofsPerNode differs from a node frame dimension is left untouched there.
func (a *Applier) ApplyLayout(block *mat.Dense, rows, cols BlockLayout, lookup RotationLookup) error {
	r, c := block.Dims()
	if r != rows.Size() || c != cols.Size() {
		return fmt.Errorf("%w: block is %dx%d, layout is %dx%d",
			ErrBlockShape, r, c, rows.Size(), cols.Size())
	}
	a.grow(len(rows.Incidence), len(cols.Incidence), rows.DofsPerNode, cols.DofsPerNode, r, c)

	var err error
	if a.rowR, err = frames(a.rowR[:0], rows, lookup); err != nil {
		return err
	}
	if a.colR, err = frames(a.colR[:0], cols, lookup); err != nil {
		return err
	}

	d := rows.DofsPerNode
	for i, R := range a.rowR {
		if R == nil {
			continue
		}
		rowPanel := block.Slice(i*d, (i+1)*d, 0, c).(*mat.Dense)
		tmp := mat.NewDense(d, c, a.ni[:d*c])
		tmp.Mul(R, rowPanel)
		rowPanel.Copy(tmp)
	}

	d = cols.DofsPerNode
	for j, R := range a.colR {
		if R == nil {
			continue
		}
		colPanel := block.Slice(0, r, j*d, (j+1)*d).(*mat.Dense)
		tmp := mat.NewDense(r, d, a.mi[:r*d])
		tmp.Mul(colPanel, R.T())
		colPanel.Copy(tmp)
	}
	return nil
}

// frames resolves the frame of each node of a layout, nil for identity
func frames(dst []*mat.Dense, l BlockLayout, lookup RotationLookup) ([]*mat.Dense, error) {
	for _, node := range l.Incidence {
		if !l.Rotate {
			dst = append(dst, nil)
			continue
		}
		R, ok, err := lookup.Rotation(node)
		if err != nil {
			return dst, err
		}
		if !ok {
			dst = append(dst, nil)
			continue
		}
		if n, _ := R.Dims(); n != l.DofsPerNode {
			dst = append(dst, nil)
			continue
		}
		dst = append(dst, R)
	}
	return dst, nil
}

// grow sizes the scratch to the largest element seen so far, never shrinking
func (a *Applier) grow(rowNodes, colNodes, rowDofs, colDofs, r, c int) {
	if n := max(rowNodes, colNodes); n > a.maxNodesSeen {
		a.maxNodesSeen = n
		a.rowR = make([]*mat.Dense, 0, n)
		a.colR = make([]*mat.Dense, 0, n)
	}
	if need := rowDofs * c; need > len(a.ni) {
		a.ni = make([]float64, need)
	}
	if need := r * colDofs; need > len(a.mi) {
		a.mi = make([]float64, need)
	}
}
