package assembly

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/rotdof/element"
	"github.com/notargets/rotdof/field"
	"github.com/notargets/rotdof/partitions"
)

func TestParallelMatchesSerial(t *testing.T) {
	m := quadGrid(t, 6)
	local := TrussStiffness(m)

	serialTerm := NewRotationDofTerm("slip", m, WithSelector(boundaryNodes(m)))
	serialTerm.SetNormalFunction(field.Radial(0, 0))
	serial := NewSparseMatrix(m.NumDOF())
	for k := 0; k < m.NumElements(); k++ {
		K, err := local(k, m.Incidence(k))
		require.NoError(t, err)
		require.NoError(t, serialTerm.AssembleElementInto(serial, k, m.Incidence(k), K))
	}

	for _, strategy := range []partitions.PartitionStrategy{partitions.BlockPartition, partitions.RoundRobin} {
		t.Run(strategy.String(), func(t *testing.T) {
			var calls atomic.Int64
			term := NewRotationDofTerm("slip", m, WithSelector(boundaryNodes(m)))
			term.SetNormalFunction(field.Func(func(c field.Coordinate) ([]float64, error) {
				calls.Add(1)
				return c.Position(), nil
			}))
			as := NewAssembler(term)
			as.Strategy = strategy
			as.PartitionSize = 5
			as.Workers = 4

			g := mat.NewDense(m.NumDOF(), m.NumDOF(), nil)
			require.NoError(t, as.Assemble(context.Background(), m, local, g))

			assert.EqualValues(t, boundaryNodes(m).Len(), calls.Load())
			for i := 0; i < m.NumDOF(); i++ {
				for j := 0; j < m.NumDOF(); j++ {
					assert.InDelta(t, serial.At(i, j), g.At(i, j), 1e-12, "entry (%d,%d)", i, j)
				}
			}
			assert.Less(t, symmetryError(g), 1e-12)
		})
	}
}

func TestParallelDeterministic(t *testing.T) {
	m := quadGrid(t, 5)
	local := TrussStiffness(m)
	assemble := func() *mat.Dense {
		term := NewRotationDofTerm("slip", m, WithSelector(boundaryNodes(m)))
		term.SetNormalFunction(field.Radial(0, 0))
		as := NewAssembler(term)
		as.PartitionSize = 3
		g := mat.NewDense(m.NumDOF(), m.NumDOF(), nil)
		require.NoError(t, as.Assemble(context.Background(), m, local, g))
		return g
	}
	first := assemble()
	for i := 0; i < 3; i++ {
		assert.True(t, mat.Equal(first, assemble()), "bitwise identical reduction")
	}
}

func TestParallelAbortsOnError(t *testing.T) {
	m := quadGrid(t, 4)
	term := NewRotationDofTerm("slip", m, WithSelector(boundaryNodes(m)))
	term.SetNormalFunction(field.Radial(0, 0))
	as := NewAssembler(term)
	as.PartitionSize = 2

	boom := errors.New("quadrature failure")
	local := func(k int, inc element.Incidence) (*mat.Dense, error) {
		if k == 9 {
			return nil, boom
		}
		return TrussStiffness(m)(k, inc)
	}
	g := NewSparseMatrix(m.NumDOF())
	err := as.Assemble(context.Background(), m, local, g)
	assert.ErrorIs(t, err, boom)
	var ae *AssemblyError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 9, ae.Element)
	assert.Equal(t, 0, g.NNZ(), "global matrix untouched by an aborted pass")
}

func TestParallelPrecomputeFailure(t *testing.T) {
	m := quadGrid(t, 2)
	term := NewRotationDofTerm("slip", m) // every node, including the center
	term.SetNormalFunction(field.Radial(0, 0))

	err := NewAssembler(term).Assemble(context.Background(), m, TrussStiffness(m), NewSparseMatrix(m.NumDOF()))
	assert.ErrorContains(t, err, "node 4")
	var ae *AssemblyError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 4, ae.Node)
}

func TestParallelCancelled(t *testing.T) {
	m := quadGrid(t, 2)
	term := NewRotationDofTerm("slip", m, WithSelector(boundaryNodes(m)))
	term.SetNormalFunction(field.Radial(0, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewAssembler(term).Assemble(ctx, m, TrussStiffness(m), NewSparseMatrix(m.NumDOF()))
	assert.ErrorIs(t, err, context.Canceled)
}
