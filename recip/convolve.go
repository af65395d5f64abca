package recip

import (
	"math"
	"sync"

	"slicedpme"
	"slicedpme/slice"
)

// convolve applies a reciprocal-space kernel to the transformed
// subset grids. It returns the raw per-slice energies, i.e. the
// unscaled dE/dlambda of each slice, and fills pot with the
// lambda-weighted potential grids from which forces are gathered:
// pot_a(k) = kernel(k) * sum_b lambda_{ab} grid_b(k).
//
// The kernel is evaluated once per wavevector. When includeZero is
// false the k = 0 entry is skipped and its potential zeroed, which is
// required for the Coulomb kernel where the neutralizing background
// cancels it. The dispersion kernel is finite at k = 0 and keeps the
// term.
func convolve(
	grids, pot []complex128, spec GridSpec, box *slicedpme.Box,
	moduli [3][]float64, lambdas []float64, nSubsets int,
	kernel func(m2 float64) float64, includeZero bool, workers int,
) []float64 {
	ra, rb, rc := box.Reciprocal()
	gridSize := spec.size()
	nSlices := slice.Count(nSubsets)

	partial := make([][]float64, workers)
	wg := sync.WaitGroup{}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			e := make([]float64, nSlices)
			partial[w] = e
			for kx := w; kx < spec.Nx; kx += workers {
				mx := float64(kx)
				if kx >= (spec.Nx+1)/2 {
					mx = float64(kx - spec.Nx)
				}
				for ky := 0; ky < spec.Ny; ky++ {
					my := float64(ky)
					if ky >= (spec.Ny+1)/2 {
						my = float64(ky - spec.Ny)
					}
					for kz := 0; kz < spec.Nz; kz++ {
						idx := (kx*spec.Ny+ky)*spec.Nz + kz
						if kx == 0 && ky == 0 && kz == 0 && !includeZero {
							for a := 0; a < nSubsets; a++ {
								pot[a*gridSize+idx] = 0
							}
							continue
						}
						mz := float64(kz)
						if kz >= (spec.Nz+1)/2 {
							mz = float64(kz - spec.Nz)
						}
						mhx := mx*ra[0] + my*rb[0] + mz*rc[0]
						mhy := my*rb[1] + mz*rc[1]
						mhz := mz * rc[2]
						m2 := mhx*mhx + mhy*mhy + mhz*mhz

						eterm := kernel(m2) /
							(moduli[0][kx] * moduli[1][ky] * moduli[2][kz])

						for a := 0; a < nSubsets; a++ {
							fa := grids[a*gridSize+idx]
							re, im := real(fa), imag(fa)
							e[slice.Diagonal(a)] +=
								0.5 * eterm * (re*re + im*im)
							for b := 0; b < a; b++ {
								fb := grids[b*gridSize+idx]
								e[slice.Index(b, a)] += eterm *
									(re*real(fb) + im*imag(fb))
							}

							sum := complex(0, 0)
							for b := 0; b < nSubsets; b++ {
								l := lambdas[slice.Index(a, b)]
								sum += complex(l, 0) * grids[b*gridSize+idx]
							}
							pot[a*gridSize+idx] = complex(eterm, 0) * sum
						}
					}
				}
			}
		}(w)
	}
	wg.Wait()

	raw := make([]float64, nSlices)
	for _, e := range partial {
		for s, v := range e {
			raw[s] += v
		}
	}
	return raw
}

// coulombKernel returns the electrostatic influence function without
// the B-spline moduli, for squared wavevector magnitude m2.
func coulombKernel(alpha, volume float64) func(m2 float64) float64 {
	expFactor := math.Pi * math.Pi / (alpha * alpha)
	scale := one4PiEps0 / (math.Pi * volume)
	return func(m2 float64) float64 {
		return scale * math.Exp(-expFactor*m2) / m2
	}
}

// dispersionKernel is the r^-6 analog. The b -> 0 limit is finite, so
// no division by m2 appears.
func dispersionKernel(alpha, volume float64) func(m2 float64) float64 {
	bFactor := math.Pi / alpha
	scale := -math.Pow(math.Pi, 1.5) * alpha * alpha * alpha / (3 * volume)
	return func(m2 float64) float64 {
		b := bFactor * math.Sqrt(m2)
		b2 := b * b
		f := (1-2*b2)*math.Exp(-b2) + 2*math.SqrtPi*b2*b*math.Erfc(b)
		return scale * f
	}
}
