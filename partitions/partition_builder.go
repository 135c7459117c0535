package partitions

import (
	"fmt"
	"math"
)

// PartitionBuilder splits the elements of an assembly pass into partitions
type PartitionBuilder struct {
	NumElements int

	// Partitioning parameters
	TargetPartitionSize int // Desired elements per partition
	Strategy            PartitionStrategy
}

// PartitionStrategy defines how elements are grouped
type PartitionStrategy int

const (
	// Simple strategies
	BlockPartition PartitionStrategy = iota // Consecutive elements
	RoundRobin                              // Distribute cyclically

	// Graph-based strategies
	GraphPartition    // Use METIS or similar
	SpaceFillingCurve // Hilbert/Morton curve ordering
)

var strategyNames = map[string]PartitionStrategy{
	"block":       BlockPartition,
	"round_robin": RoundRobin,
	"graph":       GraphPartition,
	"sfc":         SpaceFillingCurve,
}

// ParseStrategy maps a configuration name to a PartitionStrategy
func ParseStrategy(name string) (PartitionStrategy, error) {
	s, ok := strategyNames[name]
	if !ok {
		return 0, fmt.Errorf("unknown partition strategy %q", name)
	}
	return s, nil
}

func (s PartitionStrategy) String() string {
	for name, v := range strategyNames {
		if v == s {
			return name
		}
	}
	return fmt.Sprintf("PartitionStrategy(%d)", int(s))
}

// BuildPartitions creates a partition layout for NumElements elements
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.NumElements < 0 {
		return nil, fmt.Errorf("negative element count %d", pb.NumElements)
	}
	if pb.TargetPartitionSize <= 0 {
		return nil, fmt.Errorf("target partition size must be positive, got %d", pb.TargetPartitionSize)
	}

	// Determine number of partitions needed
	numPartitions := pb.calculateNumPartitions()

	// Partition the elements
	eToP := pb.partitionElements(numPartitions)

	// Create partition structures
	partitions := pb.createPartitions(eToP, numPartitions)

	// Calculate KpartMax for OCCA
	kpartMax := calculateKpartMax(partitions)

	// Set MaxElements for all partitions
	for i := range partitions {
		partitions[i].MaxElements = kpartMax
	}

	layout := &PartitionLayout{
		Partitions:    partitions,
		KpartMax:      kpartMax,
		TotalElements: pb.NumElements,
		NumPartitions: numPartitions,
		EToP:          eToP,
	}

	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}

	return layout, nil
}

// calculateNumPartitions determines optimal partition count
func (pb *PartitionBuilder) calculateNumPartitions() int {
	numPartitions := int(math.Ceil(float64(pb.NumElements) / float64(pb.TargetPartitionSize)))

	// Ensure at least one partition
	if numPartitions < 1 {
		numPartitions = 1
	}

	return numPartitions
}

// partitionElements assigns elements to partitions
func (pb *PartitionBuilder) partitionElements(numPartitions int) []int {
	eToP := make([]int, pb.NumElements)

	switch pb.Strategy {
	case RoundRobin:
		// Distribute elements cyclically
		for i := 0; i < pb.NumElements; i++ {
			eToP[i] = i % numPartitions
		}

	default:
		// Graph and curve orderings have no implementation here, they fall
		// back to block partitioning
		elementsPerPartition := int(math.Ceil(float64(pb.NumElements) / float64(numPartitions)))
		for i := 0; i < pb.NumElements; i++ {
			eToP[i] = i / elementsPerPartition
			if eToP[i] >= numPartitions {
				eToP[i] = numPartitions - 1
			}
		}
	}

	return eToP
}

// createPartitions builds partition structures from element assignments
func (pb *PartitionBuilder) createPartitions(eToP []int, numPartitions int) []Partition {
	partitions := make([]Partition, numPartitions)

	for i := range partitions {
		partitions[i] = Partition{
			ID:       i,
			Elements: make([]int, 0),
		}
	}

	for elem, part := range eToP {
		partitions[part].Elements = append(partitions[part].Elements, elem)
		partitions[part].NumElements++
	}

	return partitions
}

// calculateKpartMax finds maximum elements across all partitions
func calculateKpartMax(partitions []Partition) int {
	kpartMax := 0
	for _, p := range partitions {
		if p.NumElements > kpartMax {
			kpartMax = p.NumElements
		}
	}
	return kpartMax
}

// AllocatePartitionedArray creates zeroed storage of stride values per element,
// each partition padded to KpartMax elements for uniform @inner loops
func AllocatePartitionedArray(layout *PartitionLayout, stride int) *PartitionedArray {
	offsets := make([]int, layout.NumPartitions+1)
	for i := range layout.Partitions {
		offsets[i+1] = offsets[i] + layout.KpartMax*stride
	}
	totalSize := offsets[layout.NumPartitions]

	return &PartitionedArray{
		GlobalData:    make([]float64, totalSize),
		Offsets:       offsets,
		Stride:        stride,
		AllocatedSize: totalSize,
	}
}

// PackPartitioned gathers per-element data into partition order. data(k)
// must return exactly stride values for global element k.
func PackPartitioned(layout *PartitionLayout, stride int, data func(k int) []float64) (*PartitionedArray, error) {
	pa := AllocatePartitionedArray(layout, stride)
	for _, p := range layout.Partitions {
		for local, k := range p.Elements {
			src := data(k)
			if len(src) != stride {
				return nil, fmt.Errorf("element %d supplies %d values, stride is %d", k, len(src), stride)
			}
			copy(pa.ElementData(p.ID, local), src)
		}
	}
	return pa, nil
}

// UnpackPartitioned scatters partition-ordered data back to global elements
func UnpackPartitioned(layout *PartitionLayout, pa *PartitionedArray, dst func(k int, values []float64)) {
	for _, p := range layout.Partitions {
		for local, k := range p.Elements {
			dst(k, pa.ElementData(p.ID, local))
		}
	}
}
