/*
package recip evaluates the reciprocal-space part of a sliced PME
force: charge spreading onto per-subset grids, batched 3-D transforms,
convolution with per-slice energy accumulation, and the self-energy
and exclusion corrections that complete the Ewald sum.
*/
package recip

import (
	"fmt"
	"math"
)

const (
	// Order is the cardinal B-spline interpolation order.
	Order = 5

	// one4PiEps0 is Coulomb's constant in kJ mol^-1 nm e^-2.
	one4PiEps0 = 138.935456

	// maxGridDim bounds the legal-dimension search.
	maxGridDim = 1 << 20
)

// GridSpec fixes the Ewald split and mesh of one PME calculation.
type GridSpec struct {
	Alpha      float64
	Nx, Ny, Nz int
}

func (g GridSpec) size() int { return g.Nx * g.Ny * g.Nz }

// EwaldAlpha returns the Ewald splitting parameter for which the
// direct-space error at the cutoff matches tol.
func EwaldAlpha(tol, cutoff float64) float64 {
	return math.Sqrt(-math.Log(2*tol)) / cutoff
}

// FindLegalDimension returns the smallest even integer >= minimum
// whose prime factors are all <= maxPrime. Even dimensions keep the
// half-complex packing of real transforms available.
func FindLegalDimension(minimum, maxPrime int) int {
	if minimum < 2 {
		minimum = 2
	}
	start := minimum
	if start%2 == 1 {
		start++
	}
	for dim := start; dim <= maxGridDim; dim += 2 {
		n := dim
		for f := 2; f <= maxPrime; f++ {
			for n%f == 0 {
				n /= f
			}
		}
		if n == 1 {
			return dim
		}
	}
	panic(fmt.Sprintf(
		"recip: no legal grid dimension >= %d with factors <= %d",
		minimum, maxPrime,
	))
}

// PlanGrid derives the Ewald split and mesh dimensions from the error
// tolerance and cell edge lengths. Explicit values in override take
// precedence where nonzero.
func PlanGrid(
	tol, cutoff float64, lx, ly, lz float64, maxPrime int, override GridSpec,
) (GridSpec, error) {
	if tol <= 0 || tol >= 0.5 {
		return GridSpec{}, fmt.Errorf("error tolerance %g outside (0, 0.5)", tol)
	}
	if cutoff <= 0 {
		return GridSpec{}, fmt.Errorf("cutoff %g is not positive", cutoff)
	}

	spec := GridSpec{Alpha: override.Alpha}
	if spec.Alpha == 0 {
		spec.Alpha = EwaldAlpha(tol, cutoff)
	}

	scale := 2 * spec.Alpha / (3 * math.Pow(tol, 0.2))
	dims := [3]int{override.Nx, override.Ny, override.Nz}
	for i, l := range [3]float64{lx, ly, lz} {
		if dims[i] == 0 {
			minDim := int(math.Ceil(scale * l))
			if minDim < Order {
				minDim = Order
			}
			dims[i] = FindLegalDimension(minDim, maxPrime)
		} else if dims[i] < Order {
			return GridSpec{}, fmt.Errorf(
				"grid dimension %d smaller than the interpolation order %d",
				dims[i], Order,
			)
		}
	}
	spec.Nx, spec.Ny, spec.Nz = dims[0], dims[1], dims[2]
	return spec, nil
}
