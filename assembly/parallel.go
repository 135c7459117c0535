package assembly

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/james-bowman/sparse"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/rotdof/element"
	"github.com/notargets/rotdof/mesh"
	"github.com/notargets/rotdof/partitions"
)

// ElementSource enumerates the elements of an assembly pass. *mesh.Mesh
// satisfies it.
type ElementSource interface {
	NumElements() int
	Incidence(k int) element.Incidence
}

// LocalStiffness produces the unrotated local block of element k from the
// base term. It is called concurrently and must not share mutable state.
type LocalStiffness func(k int, inc element.Incidence) (*mat.Dense, error)

// Assembler runs a rotated assembly pass over element partitions. All frames
// are built before the workers start, after which the cache is only read.
// Each worker owns its Applier and its sparse accumulator, and the
// accumulators are summed into the global matrix in partition order.
type Assembler struct {
	Term          *RotationDofTerm
	Strategy      partitions.PartitionStrategy
	PartitionSize int // elements per partition
	Workers       int // concurrent partitions, GOMAXPROCS when zero
	Logger        *slog.Logger
}

func NewAssembler(term *RotationDofTerm) *Assembler {
	return &Assembler{
		Term:          term,
		Strategy:      partitions.BlockPartition,
		PartitionSize: 256,
		Logger:        term.logger,
	}
}

// Assemble adds the rotated local blocks of every element of src into g. The
// first error cancels the pass and g is left untouched.
func (as *Assembler) Assemble(ctx context.Context, src ElementSource, local LocalStiffness, g GlobalMatrix) error {
	start := time.Now()
	logger := as.Logger
	if logger == nil {
		logger = slog.Default()
	}

	nodes := mesh.NewNodeSet(0)
	for k := 0; k < src.NumElements(); k++ {
		for _, n := range src.Incidence(k) {
			nodes.Add(n)
		}
	}
	if err := as.Term.Precompute(nodes.Nodes()); err != nil {
		return err
	}

	pb := &partitions.PartitionBuilder{
		NumElements:         src.NumElements(),
		TargetPartitionSize: as.PartitionSize,
		Strategy:            as.Strategy,
	}
	layout, err := pb.BuildPartitions()
	if err != nil {
		return fmt.Errorf("partitioning %d elements: %w", src.NumElements(), err)
	}

	r, c := g.Dims()
	accum := make([]*sparse.DOK, layout.NumPartitions)
	eg, ctx := errgroup.WithContext(ctx)
	workers := as.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	eg.SetLimit(workers)

	dim := as.Term.Dimension()
	for _, p := range layout.Partitions {
		eg.Go(func() error {
			acc := sparse.NewDOK(r, c)
			applier := NewApplier()
			for _, k := range p.Elements {
				if err := ctx.Err(); err != nil {
					return err
				}
				inc := src.Incidence(k)
				block, err := local(k, inc)
				if err != nil {
					return withElement(k, err)
				}
				if err = applier.Apply(block, inc, dim, as.Term); err != nil {
					return withElement(k, err)
				}
				l := NewLayout(inc, dim)
				if err = Scatter(acc, block, l, l); err != nil {
					return withElement(k, err)
				}
			}
			accum[p.ID] = acc
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for _, acc := range accum {
		addInto(g, acc)
	}

	stats := layout.PartitionStatistics()
	logger.Debug("rotated assembly pass complete",
		"term", as.Term.Name(),
		"elements", src.NumElements(),
		"partitions", layout.NumPartitions,
		"imbalance", stats.Imbalance,
		"frames", as.Term.Frames().Len(),
		"elapsed", time.Since(start))
	return nil
}
