package rotation

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

func randomVector(rng *rand.Rand, dim int, scale float64) []float64 {
	v := make([]float64, dim)
	for i := range v {
		v[i] = scale * (2*rng.Float64() - 1)
	}
	return v
}

func assertOrthonormal(t *testing.T, R *mat.Dense) {
	t.Helper()
	n, _ := R.Dims()
	for i := 0; i < n; i++ {
		ri := mat.Row(nil, i, R)
		assert.InDelta(t, 1.0, floats.Norm(ri, 2), 1e-10, "row %d norm", i)
		for j := i + 1; j < n; j++ {
			rj := mat.Row(nil, j, R)
			assert.InDelta(t, 0.0, floats.Dot(ri, rj), 1e-10, "rows %d,%d", i, j)
		}
	}
}

func TestBuildOrthonormal(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	scales := []float64{1e-6, 1, 1e6}

	for _, dim := range []int{2, 3} {
		for _, withRadial := range []bool{false, true} {
			t.Run(fmt.Sprintf("%dD/radial=%v", dim, withRadial), func(t *testing.T) {
				for trial := 0; trial < 200; trial++ {
					scale := scales[trial%len(scales)]
					normal := randomVector(rng, dim, scale)
					var radial []float64
					if withRadial {
						radial = randomVector(rng, dim, 1)
					}
					R, err := Build(normal, radial, dim)
					require.NoError(t, err)
					assertOrthonormal(t, R)

					// Row 0 is the unit normal
					nhat := make([]float64, dim)
					floats.ScaleTo(nhat, 1/floats.Norm(normal, 2), normal)
					assert.InDeltaSlice(t, nhat, mat.Row(nil, 0, R), 1e-12)
				}
			})
		}
	}
}

func TestBuildRightHanded3D(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		var radial []float64
		if trial%2 == 0 {
			radial = randomVector(rng, 3, 2)
		}
		R, err := Build(randomVector(rng, 3, 1), radial, 3)
		require.NoError(t, err)

		r0 := r3.Vec{X: R.At(0, 0), Y: R.At(0, 1), Z: R.At(0, 2)}
		r1 := r3.Vec{X: R.At(1, 0), Y: R.At(1, 1), Z: R.At(1, 2)}
		cross := r3.Cross(r0, r1)
		assert.InDeltaSlice(t, []float64{cross.X, cross.Y, cross.Z}, mat.Row(nil, 2, R), 1e-12)
		assert.InDelta(t, 1.0, mat.Det(R), 1e-10)
	}
}

func TestBuildRadialOrientation3D(t *testing.T) {
	// Normal along z, radial tilted toward z: the tangent row is the radial
	// with its normal component removed
	R, err := Build([]float64{0, 0, 2}, []float64{3, 0, 5}, 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0, 1}, mat.Row(nil, 0, R), 1e-15)
	assert.InDeltaSlice(t, []float64{1, 0, 0}, mat.Row(nil, 1, R), 1e-15)
	assert.InDeltaSlice(t, []float64{0, 1, 0}, mat.Row(nil, 2, R), 1e-15)
}

func TestBuild2DIgnoresRadial(t *testing.T) {
	normal := []float64{3, 4}
	R0, err := Build(normal, nil, 2)
	require.NoError(t, err)
	R1, err := Build(normal, []float64{3, 4}, 2)
	require.NoError(t, err)

	assert.True(t, mat.Equal(R0, R1))
	// +90 degree convention
	assert.InDeltaSlice(t, []float64{0.6, 0.8, -0.8, 0.6}, R0.RawMatrix().Data, 1e-15)
}

func TestBuildFallbackSeed(t *testing.T) {
	for _, axis := range [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 1}} {
		R, err := Build(axis, nil, 3)
		require.NoError(t, err)
		assertOrthonormal(t, R)
	}
}

func TestBuildNearlyParallelRadial(t *testing.T) {
	normal := []float64{1, 1, 1}
	for _, delta := range []float64{1e-6, 1e-7, 1e-8, 1e-9, 1e-10} {
		t.Run(fmt.Sprintf("delta=%g", delta), func(t *testing.T) {
			R, err := Build(normal, []float64{1 + delta, 1 - delta, 1}, 3)
			require.NoError(t, err)
			assertOrthonormal(t, R)
			assert.Less(t, OrthonormalityError(R), 1e-10)
			// Tangent follows the in-plane part of the radial, (1,-1,0)/sqrt2
			assert.InDeltaSlice(t, []float64{1 / math.Sqrt2, -1 / math.Sqrt2, 0},
				mat.Row(nil, 1, R), 1e-4)
		})
	}
}

func TestBuildRadialResidualIsAbsolute(t *testing.T) {
	// |r| is large but the residual 1e-11 is still above the threshold
	R, err := Build([]float64{0, 0, 1}, []float64{0, 1e-11, 1e3}, 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 1, 0}, mat.Row(nil, 1, R), 1e-15)

	_, err = Build([]float64{0, 0, 1}, []float64{0, 1e-13, 1e3}, 3)
	assert.ErrorIs(t, err, ErrDegenerateRadial)
}

func TestBuildErrors(t *testing.T) {
	testCases := []struct {
		name   string
		normal []float64
		radial []float64
		dim    int
		want   error
	}{
		{"ZeroNormal2D", []float64{0, 0}, nil, 2, ErrDegenerateNormal},
		{"TinyNormal3D", []float64{1e-13, 0, 0}, nil, 3, ErrDegenerateNormal},
		{"NaNNormal", []float64{math.NaN(), 1, 0}, nil, 3, ErrDegenerateNormal},
		{"ParallelRadial", []float64{0, 0, 1}, []float64{0, 0, 2}, 3, ErrDegenerateRadial},
		{"AntiParallelRadial", []float64{1, 1, 0}, []float64{-3, -3, 0}, 3, ErrDegenerateRadial},
		{"ZeroRadial", []float64{0, 1, 0}, []float64{0, 0, 0}, 3, ErrDegenerateRadial},
		{"Dim4", []float64{1, 0, 0, 0}, nil, 4, ErrDimensionMismatch},
		{"ShortNormal", []float64{1, 0}, nil, 3, ErrDimensionMismatch},
		{"ShortRadial", []float64{1, 0, 0}, []float64{0, 1}, 3, ErrDimensionMismatch},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			R, err := Build(tc.normal, tc.radial, tc.dim)
			assert.ErrorIs(t, err, tc.want)
			assert.Nil(t, R)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, dim := range []int{2, 3} {
		R, err := Build(randomVector(rng, dim, 1), nil, dim)
		require.NoError(t, err)

		v := mat.NewVecDense(dim, randomVector(rng, dim, 10))
		var rv, back mat.VecDense
		rv.MulVec(R, v)
		back.MulVec(R.T(), &rv)
		assert.InDeltaSlice(t, v.RawVector().Data, back.RawVector().Data, 1e-12)
		assert.Less(t, OrthonormalityError(R), 1e-14)
	}
}

func TestCheckOrthonormal(t *testing.T) {
	assert.NoError(t, CheckOrthonormal(mat.NewDense(2, 2, []float64{0, 1, -1, 0}), 1e-12))
	assert.ErrorIs(t, CheckOrthonormal(mat.NewDense(2, 2, []float64{1, 0, 1, 1}), 1e-12), ErrNotOrthonormal)
	assert.ErrorIs(t, CheckOrthonormal(mat.NewDense(2, 2, []float64{2, 0, 0, 1}), 1e-12), ErrNotOrthonormal)
	assert.ErrorIs(t, CheckOrthonormal(mat.NewDense(2, 3, nil), 1e-12), ErrDimensionMismatch)
}
