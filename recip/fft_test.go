package recip

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func randomGrid(n int, seed int64) []complex128 {
	rng := rand.New(rand.NewSource(seed))
	g := make([]complex128, n)
	for i := range g {
		g[i] = complex(rng.Float64()*2-1, rng.Float64()*2-1)
	}
	return g
}

func TestFFT3RoundTrip(t *testing.T) {
	nx, ny, nz, batch := 4, 6, 8, 3
	n := nx * ny * nz
	f := NewFFT3(nx, ny, nz, 3)

	grids := randomGrid(batch*n, 42)
	orig := make([]complex128, len(grids))
	copy(orig, grids)

	f.Forward(grids, batch)
	f.Inverse(grids, batch)

	scale := float64(n)
	for i := range grids {
		assert.InDelta(t, scale*real(orig[i]), real(grids[i]), 1e-9)
		assert.InDelta(t, scale*imag(orig[i]), imag(grids[i]), 1e-9)
	}
}

func TestFFT3ForwardMatchesDFT(t *testing.T) {
	nx, ny, nz := 4, 3, 5
	grid := randomGrid(nx*ny*nz, 7)
	want := make([]complex128, len(grid))
	for kx := 0; kx < nx; kx++ {
		for ky := 0; ky < ny; ky++ {
			for kz := 0; kz < nz; kz++ {
				sum := complex(0, 0)
				for x := 0; x < nx; x++ {
					for y := 0; y < ny; y++ {
						for z := 0; z < nz; z++ {
							arg := -2 * math.Pi * (float64(kx*x)/float64(nx) +
								float64(ky*y)/float64(ny) +
								float64(kz*z)/float64(nz))
							w := complex(math.Cos(arg), math.Sin(arg))
							sum += grid[(x*ny+y)*nz+z] * w
						}
					}
				}
				want[(kx*ny+ky)*nz+kz] = sum
			}
		}
	}

	NewFFT3(nx, ny, nz, 2).Forward(grid, 1)
	for i := range grid {
		assert.InDelta(t, real(want[i]), real(grid[i]), 1e-10)
		assert.InDelta(t, imag(want[i]), imag(grid[i]), 1e-10)
	}
}
