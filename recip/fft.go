package recip

import (
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// FFT3 performs batched complex 3-D transforms on a stack of
// contiguous nx*ny*nz grids, composed from 1-D transforms along each
// axis in turn. Forward and Inverse are both unnormalized, so
// Inverse(Forward(x)) == nx*ny*nz * x.
type FFT3 struct {
	nx, ny, nz int
	workers    int
	axes       [3]fftAxis
}

type fftAxis struct {
	n, stride int
	bases     []int
}

func NewFFT3(nx, ny, nz, workers int) *FFT3 {
	if workers < 1 {
		workers = 1
	}
	f := &FFT3{nx: nx, ny: ny, nz: nz, workers: workers}

	zBases := make([]int, nx*ny)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			zBases[x*ny+y] = (x*ny + y) * nz
		}
	}
	yBases := make([]int, nx*nz)
	for x := 0; x < nx; x++ {
		for z := 0; z < nz; z++ {
			yBases[x*nz+z] = x*ny*nz + z
		}
	}
	xBases := make([]int, ny*nz)
	for y := 0; y < ny; y++ {
		for z := 0; z < nz; z++ {
			xBases[y*nz+z] = y*nz + z
		}
	}

	f.axes = [3]fftAxis{
		{n: nz, stride: 1, bases: zBases},
		{n: ny, stride: nz, bases: yBases},
		{n: nx, stride: ny * nz, bases: xBases},
	}
	return f
}

// Forward transforms batch grids in place with the e^{-i} kernel.
func (f *FFT3) Forward(grids []complex128, batch int) {
	f.run(grids, batch, true)
}

// Inverse transforms batch grids in place with the e^{+i} kernel,
// without dividing by the grid size.
func (f *FFT3) Inverse(grids []complex128, batch int) {
	f.run(grids, batch, false)
}

func (f *FFT3) run(grids []complex128, batch int, forward bool) {
	gridSize := f.nx * f.ny * f.nz
	for _, axis := range f.axes {
		lines := batch * len(axis.bases)
		wg := sync.WaitGroup{}
		for w := 0; w < f.workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				tr := fourier.NewCmplxFFT(axis.n)
				line := make([]complex128, axis.n)
				for li := w; li < lines; li += f.workers {
					base := (li/len(axis.bases))*gridSize +
						axis.bases[li%len(axis.bases)]
					for i := 0; i < axis.n; i++ {
						line[i] = grids[base+i*axis.stride]
					}
					if forward {
						tr.Coefficients(line, line)
					} else {
						tr.Sequence(line, line)
					}
					for i := 0; i < axis.n; i++ {
						grids[base+i*axis.stride] = line[i]
					}
				}
			}(w)
		}
		wg.Wait()
	}
}
