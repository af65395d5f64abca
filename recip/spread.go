package recip

import (
	"math"
	"sync"
	"sync/atomic"

	"slicedpme"
)

// fixedScale converts grid weights to the 64-bit fixed-point
// representation used during spreading. Integer addition commutes, so
// the accumulated grid is identical no matter how particles are
// distributed across goroutines.
const fixedScale = float64(1 << 32)

// bsplines fills w with the order-5 spline weights for fractional
// offset dr in [0, 1) and dw with their derivatives. w[j] is the
// weight of grid point floor(u) - Order + 1 + j.
func bsplines(dr float64, w, dw *[Order]float64) {
	w[Order-1] = 0
	w[1] = dr
	w[0] = 1 - dr
	for j := 3; j < Order; j++ {
		div := 1.0 / float64(j-1)
		w[j-1] = div * dr * w[j-2]
		for k := 1; k < j-1; k++ {
			w[j-k-1] = div * ((dr+float64(k))*w[j-k-2] +
				(float64(j-k)-dr)*w[j-k-1])
		}
		w[0] = div * (1 - dr) * w[0]
	}

	// Differentiate at order 4, then take the last recursion step.
	dw[0] = -w[0]
	for j := 1; j < Order; j++ {
		dw[j] = w[j-1] - w[j]
	}

	div := 1.0 / float64(Order-1)
	w[Order-1] = div * dr * w[Order-2]
	for k := 1; k < Order-1; k++ {
		w[Order-k-1] = div * ((dr+float64(k))*w[Order-k-2] +
			(float64(Order-k)-dr)*w[Order-k-1])
	}
	w[0] = div * (1 - dr) * w[0]
}

// gridCoords returns the leftmost stencil grid point and fractional
// offset of a position along each axis.
func gridCoords(
	pos [3]float64, box *slicedpme.Box, spec GridSpec,
) (k0 [3]int, dr [3]float64) {
	ra, rb, rc := box.Reciprocal()
	dims := [3]int{spec.Nx, spec.Ny, spec.Nz}
	for d, r := range [3][3]float64{ra, rb, rc} {
		t := pos[0]*r[0] + pos[1]*r[1] + pos[2]*r[2]
		t -= math.Floor(t)
		u := t * float64(dims[d])
		ki := int(u)
		if ki >= dims[d] {
			ki = dims[d] - 1
		}
		k0[d] = ki
		dr[d] = u - float64(ki)
	}
	return k0, dr
}

// spread scatters val[i] for each particle onto its subset's
// fixed-point grid.
func spread(
	pos [][3]float64, val []float64, subset []int,
	box *slicedpme.Box, spec GridSpec, fixed []int64, workers int,
) {
	gridSize := spec.size()
	wg := sync.WaitGroup{}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			var wx, wy, wz, dwx, dwy, dwz [Order]float64
			for i := w; i < len(pos); i += workers {
				if val[i] == 0 {
					continue
				}
				k0, dr := gridCoords(pos[i], box, spec)
				bsplines(dr[0], &wx, &dwx)
				bsplines(dr[1], &wy, &dwy)
				bsplines(dr[2], &wz, &dwz)

				base := subset[i] * gridSize
				for jx := 0; jx < Order; jx++ {
					gx := (k0[0] - Order + 1 + jx + spec.Nx) % spec.Nx
					vx := val[i] * wx[jx]
					for jy := 0; jy < Order; jy++ {
						gy := (k0[1] - Order + 1 + jy + spec.Ny) % spec.Ny
						vxy := vx * wy[jy]
						row := base + (gx*spec.Ny+gy)*spec.Nz
						for jz := 0; jz < Order; jz++ {
							gz := (k0[2] - Order + 1 + jz + spec.Nz) % spec.Nz
							add := int64(vxy * wz[jz] * fixedScale)
							atomic.AddInt64(&fixed[row+gz], add)
						}
					}
				}
			}
		}(w)
	}
	wg.Wait()
}

// unfix converts the fixed-point grids into the complex work grids.
func unfix(fixed []int64, grids []complex128, workers int) {
	wg := sync.WaitGroup{}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < len(fixed); i += workers {
				grids[i] = complex(float64(fixed[i])/fixedScale, 0)
			}
		}(w)
	}
	wg.Wait()
}

// interpolate gathers forces from the real-space potential grids:
// force_i -= val_i * grad of the spline-interpolated potential at
// particle i, read off its subset's grid only.
func interpolate(
	pos [][3]float64, val []float64, subset []int,
	box *slicedpme.Box, spec GridSpec, pot []complex128,
	forces [][3]float64, workers int,
) {
	ra, rb, rc := box.Reciprocal()
	gridSize := spec.size()
	wg := sync.WaitGroup{}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			var wx, wy, wz, dwx, dwy, dwz [Order]float64
			for i := w; i < len(pos); i += workers {
				if val[i] == 0 {
					continue
				}
				k0, dr := gridCoords(pos[i], box, spec)
				bsplines(dr[0], &wx, &dwx)
				bsplines(dr[1], &wy, &dwy)
				bsplines(dr[2], &wz, &dwz)

				base := subset[i] * gridSize
				fx, fy, fz := 0.0, 0.0, 0.0
				for jx := 0; jx < Order; jx++ {
					gx := (k0[0] - Order + 1 + jx + spec.Nx) % spec.Nx
					for jy := 0; jy < Order; jy++ {
						gy := (k0[1] - Order + 1 + jy + spec.Ny) % spec.Ny
						row := base + (gx*spec.Ny+gy)*spec.Nz
						for jz := 0; jz < Order; jz++ {
							gz := (k0[2] - Order + 1 + jz + spec.Nz) % spec.Nz
							p := real(pot[row+gz])
							fx += p * dwx[jx] * wy[jy] * wz[jz]
							fy += p * wx[jx] * dwy[jy] * wz[jz]
							fz += p * wx[jx] * wy[jy] * dwz[jz]
						}
					}
				}

				// Chain rule from scaled fractional coordinates back
				// to Cartesian ones.
				sx := fx * float64(spec.Nx)
				sy := fy * float64(spec.Ny)
				sz := fz * float64(spec.Nz)
				for k := 0; k < 3; k++ {
					grad := sx*ra[k] + sy*rb[k] + sz*rc[k]
					forces[i][k] -= val[i] * grad
				}
			}
		}(w)
	}
	wg.Wait()
}
