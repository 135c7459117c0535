package partitions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPartitionsBlock(t *testing.T) {
	pb := &PartitionBuilder{NumElements: 10, TargetPartitionSize: 4, Strategy: BlockPartition}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)

	assert.Equal(t, 3, layout.NumPartitions)
	assert.Equal(t, 4, layout.KpartMax)
	assert.Equal(t, []int{4, 4, 2}, layout.KCounts())
	assert.Equal(t, []int{0, 1, 2, 3}, layout.Partitions[0].Elements)
	assert.Equal(t, []int{8, 9}, layout.Partitions[2].Elements)
	assert.Equal(t, 2, layout.GetPartition(9))
	assert.Equal(t, -1, layout.GetPartition(10))
}

func TestBuildPartitionsRoundRobin(t *testing.T) {
	pb := &PartitionBuilder{NumElements: 7, TargetPartitionSize: 3, Strategy: RoundRobin}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)

	assert.Equal(t, 3, layout.NumPartitions)
	assert.Equal(t, []int{0, 3, 6}, layout.Partitions[0].Elements)
	assert.Equal(t, []int{1, 4}, layout.Partitions[1].Elements)
	assert.Equal(t, 3, layout.KpartMax)

	stats := layout.PartitionStatistics()
	assert.Equal(t, 2, stats.MinElements)
	assert.Equal(t, 3, stats.MaxElements)
	assert.InDelta(t, 7.0/3.0, stats.AvgElements, 1e-15)
}

func TestBuildPartitionsFallbackStrategies(t *testing.T) {
	for _, s := range []PartitionStrategy{GraphPartition, SpaceFillingCurve} {
		pb := &PartitionBuilder{NumElements: 5, TargetPartitionSize: 2, Strategy: s}
		layout, err := pb.BuildPartitions()
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1}, layout.Partitions[0].Elements, s.String())
	}
}

func TestBuildPartitionsEdgeCases(t *testing.T) {
	layout, err := (&PartitionBuilder{NumElements: 0, TargetPartitionSize: 4}).BuildPartitions()
	require.NoError(t, err)
	assert.Equal(t, 1, layout.NumPartitions)
	assert.Equal(t, 0, layout.KpartMax)

	_, err = (&PartitionBuilder{NumElements: 4, TargetPartitionSize: 0}).BuildPartitions()
	assert.Error(t, err)
	_, err = (&PartitionBuilder{NumElements: -1, TargetPartitionSize: 2}).BuildPartitions()
	assert.Error(t, err)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("round_robin")
	require.NoError(t, err)
	assert.Equal(t, RoundRobin, s)
	assert.Equal(t, "block", BlockPartition.String())

	_, err = ParseStrategy("metis")
	assert.Error(t, err)
}

func TestValidateLayoutDetectsCorruption(t *testing.T) {
	layout, err := (&PartitionBuilder{NumElements: 6, TargetPartitionSize: 3}).BuildPartitions()
	require.NoError(t, err)

	layout.EToP[0] = 1
	assert.ErrorContains(t, layout.ValidateLayout(), "element 0")
}

func TestPackUnpackPartitioned(t *testing.T) {
	layout, err := (&PartitionBuilder{NumElements: 5, TargetPartitionSize: 2, Strategy: RoundRobin}).BuildPartitions()
	require.NoError(t, err)

	data := func(k int) []float64 { return []float64{float64(k), float64(10 * k)} }
	pa, err := PackPartitioned(layout, 2, data)
	require.NoError(t, err)

	// 3 partitions padded to KpartMax=2 elements of stride 2
	assert.Equal(t, 12, pa.AllocatedSize)
	assert.Equal(t, []int{0, 4, 8, 12}, pa.Offsets)
	assert.Equal(t, []float64{0, 0, 3, 30}, pa.GetPartitionData(0))
	assert.Equal(t, []float64{2, 20, 0, 0}, pa.GetPartitionData(2), "padding stays zero")
	assert.Nil(t, pa.GetPartitionData(3))

	got := make(map[int][]float64)
	UnpackPartitioned(layout, pa, func(k int, v []float64) {
		got[k] = append([]float64(nil), v...)
	})
	for k := 0; k < 5; k++ {
		assert.Equal(t, data(k), got[k])
	}

	_, err = PackPartitioned(layout, 3, data)
	assert.ErrorContains(t, err, "stride is 3")
}
