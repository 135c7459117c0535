package rotation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// DegenerateTolerance is the smallest normal or orthogonalised radial
	// norm accepted when building a frame
	DegenerateTolerance = 1e-12
	// OrthonormalTolerance bounds row norms and pairwise dot products of a frame
	OrthonormalTolerance = 1e-10
)

var (
	ErrDegenerateNormal  = errors.New("degenerate normal vector")
	ErrDegenerateRadial  = errors.New("degenerate radial vector")
	ErrDimensionMismatch = errors.New("rotation dimension mismatch")
	ErrNotOrthonormal    = errors.New("frame is not orthonormal")
)

// Build returns the node rotation for a normal and optional radial hint.
// Row 0 of the result is the unit normal, the remaining rows span its
// orthogonal complement. In 3D the frame is right handed.
func Build(normal, radial []float64, dim int) (*mat.Dense, error) {
	return BuildWithTolerance(normal, radial, dim, DegenerateTolerance)
}

// BuildWithTolerance is Build with an explicit degeneracy threshold
func BuildWithTolerance(normal, radial []float64, dim int, eps float64) (R *mat.Dense, err error) {
	if dim != 2 && dim != 3 {
		return nil, fmt.Errorf("%w: frames exist in 2D and 3D only, got %dD", ErrDimensionMismatch, dim)
	}
	if len(normal) != dim {
		return nil, fmt.Errorf("%w: normal has %d components in %dD", ErrDimensionMismatch, len(normal), dim)
	}
	if radial != nil && len(radial) != dim {
		return nil, fmt.Errorf("%w: radial has %d components in %dD", ErrDimensionMismatch, len(radial), dim)
	}

	nmag := floats.Norm(normal, 2)
	if nmag < eps || math.IsNaN(nmag) {
		return nil, fmt.Errorf("%w: |n| = %.3e", ErrDegenerateNormal, nmag)
	}

	R = mat.NewDense(dim, dim, nil)
	switch dim {
	case 2:
		// Tangent is the normal rotated by +90 degrees, radial plays no part
		nx, ny := normal[0]/nmag, normal[1]/nmag
		R.SetRow(0, []float64{nx, ny})
		R.SetRow(1, []float64{-ny, nx})
	case 3:
		n := r3.Scale(1/nmag, r3.Vec{X: normal[0], Y: normal[1], Z: normal[2]})
		var seed r3.Vec
		if radial != nil {
			seed = r3.Vec{X: radial[0], Y: radial[1], Z: radial[2]}
		} else {
			seed = leastAlignedAxis(n)
		}
		// Gram-Schmidt: strip the normal component from the seed
		tv := r3.Sub(seed, r3.Scale(r3.Dot(seed, n), n))
		tmag := r3.Norm(tv)
		if tmag < eps || math.IsNaN(tmag) {
			return nil, fmt.Errorf("%w: residual |r - (r.n)n| = %.3e", ErrDegenerateRadial, tmag)
		}
		// A seed nearly parallel to n cancels in the first pass, reorthogonalise
		tv = r3.Scale(1/tmag, tv)
		tv = r3.Sub(tv, r3.Scale(r3.Dot(tv, n), n))
		tv = r3.Unit(tv)
		b := r3.Cross(n, tv)
		R.SetRow(0, []float64{n.X, n.Y, n.Z})
		R.SetRow(1, []float64{tv.X, tv.Y, tv.Z})
		R.SetRow(2, []float64{b.X, b.Y, b.Z})
	}

	if err = CheckOrthonormal(R, OrthonormalTolerance); err != nil {
		return nil, err
	}
	return R, nil
}

// leastAlignedAxis returns the coordinate axis with the smallest projection
// onto the unit vector n, which is never parallel to n
func leastAlignedAxis(n r3.Vec) r3.Vec {
	ax, ay, az := math.Abs(n.X), math.Abs(n.Y), math.Abs(n.Z)
	switch {
	case ax <= ay && ax <= az:
		return r3.Vec{X: 1}
	case ay <= az:
		return r3.Vec{Y: 1}
	default:
		return r3.Vec{Z: 1}
	}
}

// CheckOrthonormal verifies that every row of R has unit norm and that rows
// are pairwise orthogonal, each within tol
func CheckOrthonormal(R mat.Matrix, tol float64) error {
	nr, nc := R.Dims()
	if nr != nc {
		return fmt.Errorf("%w: frame is %dx%d", ErrDimensionMismatch, nr, nc)
	}
	rows := make([][]float64, nr)
	for i := range rows {
		rows[i] = mat.Row(nil, i, R)
	}
	for i := 0; i < nr; i++ {
		if d := math.Abs(floats.Norm(rows[i], 2) - 1); d > tol || math.IsNaN(d) {
			return fmt.Errorf("%w: row %d norm deviates by %.3e", ErrNotOrthonormal, i, d)
		}
		for j := i + 1; j < nr; j++ {
			if d := math.Abs(floats.Dot(rows[i], rows[j])); d > tol {
				return fmt.Errorf("%w: rows %d,%d dot = %.3e", ErrNotOrthonormal, i, j, d)
			}
		}
	}
	return nil
}

// OrthonormalityError returns max |R R^T - I| over all entries
func OrthonormalityError(R mat.Matrix) float64 {
	n, _ := R.Dims()
	var rrt mat.Dense
	rrt.Mul(R, R.T())
	var emax float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			emax = math.Max(emax, math.Abs(rrt.At(i, j)-want))
		}
	}
	return emax
}
