package assembly

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/rotdof/element"
)

// TrussStiffness is a base term connecting every node pair of an element by
// a linear spring of unit axial stiffness. Its blocks are symmetric positive
// semi-definite, which makes it a convenient stand-in for an elasticity or
// viscous term when exercising the rotation.
func TrussStiffness(geom Geometry) LocalStiffness {
	d := geom.Dimension()
	return func(k int, inc element.Incidence) (*mat.Dense, error) {
		n := len(inc)
		K := mat.NewDense(n*d, n*d, nil)
		e := make([]float64, d)
		for a := 0; a < n; a++ {
			xa := geom.Coordinate(inc[a])
			for b := a + 1; b < n; b++ {
				floats.SubTo(e, geom.Coordinate(inc[b]), xa)
				L := floats.Norm(e, 2)
				if L == 0 {
					return nil, fmt.Errorf("element %d: nodes %d and %d coincide", k, inc[a], inc[b])
				}
				floats.Scale(1/L, e)
				for i := 0; i < d; i++ {
					for j := 0; j < d; j++ {
						s := e[i] * e[j] / L
						K.Set(a*d+i, a*d+j, K.At(a*d+i, a*d+j)+s)
						K.Set(b*d+i, b*d+j, K.At(b*d+i, b*d+j)+s)
						K.Set(a*d+i, b*d+j, K.At(a*d+i, b*d+j)-s)
						K.Set(b*d+i, a*d+j, K.At(b*d+i, a*d+j)-s)
					}
				}
			}
		}
		return K, nil
	}
}
