package recip

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slicedpme"
)

func TestBSplineWeights(t *testing.T) {
	var w, dw [Order]float64
	for _, dr := range []float64{0, 0.1, 0.25, 0.5, 0.75, 0.999} {
		bsplines(dr, &w, &dw)

		sumW, sumDW := 0.0, 0.0
		for j := 0; j < Order; j++ {
			assert.GreaterOrEqual(t, w[j], 0.0, "dr=%g j=%d", dr, j)
			sumW += w[j]
			sumDW += dw[j]
		}
		// Partition of unity and its derivative.
		assert.InDelta(t, 1.0, sumW, 1e-12, "dr=%g", dr)
		assert.InDelta(t, 0.0, sumDW, 1e-12, "dr=%g", dr)
	}
}

func TestBSplineDerivatives(t *testing.T) {
	h := 1e-6
	var wp, wm, w, dw, scratch [Order]float64
	for _, dr := range []float64{0.1, 0.4, 0.7} {
		bsplines(dr, &w, &dw)
		bsplines(dr+h, &wp, &scratch)
		bsplines(dr-h, &wm, &scratch)
		for j := 0; j < Order; j++ {
			fd := (wp[j] - wm[j]) / (2 * h)
			assert.InDelta(t, fd, dw[j], 1e-8, "dr=%g j=%d", dr, j)
		}
	}
}

func TestBSplineModuli(t *testing.T) {
	for _, n := range []int{16, 27, 30} {
		moduli := BSplineModuli(n)
		require.Len(t, moduli, n)
		for k, m := range moduli {
			assert.Greater(t, m, 0.0, "n=%d k=%d", n, k)
		}
		// The stencil is real, so the transform magnitude is even.
		for k := 1; k < n; k++ {
			assert.InDelta(t, moduli[n-k], moduli[k], 1e-9, "n=%d k=%d", n, k)
		}
	}
}

func TestSpreadConservesCharge(t *testing.T) {
	box, err := slicedpme.NewOrthorhombicBox(2, 2, 2)
	require.NoError(t, err)
	spec := GridSpec{Alpha: 3, Nx: 16, Ny: 18, Nz: 20}

	rng := rand.New(rand.NewSource(11))
	nParticles, nSubsets := 40, 3
	pos := make([][3]float64, nParticles)
	q := make([]float64, nParticles)
	subset := make([]int, nParticles)
	for i := range pos {
		for d := 0; d < 3; d++ {
			pos[i][d] = rng.Float64()*6 - 2
		}
		q[i] = rng.Float64()*2 - 1
		subset[i] = rng.Intn(nSubsets)
	}

	fixed := make([]int64, nSubsets*spec.size())
	spread(pos, q, subset, box, spec, fixed, 4)

	total := make([]float64, nSubsets)
	for s := 0; s < nSubsets; s++ {
		for _, v := range fixed[s*spec.size() : (s+1)*spec.size()] {
			total[s] += float64(v) / fixedScale
		}
	}
	want := make([]float64, nSubsets)
	for i := range q {
		want[subset[i]] += q[i]
	}
	for s := 0; s < nSubsets; s++ {
		assert.InDelta(t, want[s], total[s], 1e-6, "subset %d", s)
	}
}

func TestSpreadDeterministic(t *testing.T) {
	box, _ := slicedpme.NewOrthorhombicBox(2, 2, 2)
	spec := GridSpec{Alpha: 3, Nx: 12, Ny: 12, Nz: 12}

	rng := rand.New(rand.NewSource(3))
	pos := make([][3]float64, 100)
	q := make([]float64, 100)
	subset := make([]int, 100)
	for i := range pos {
		for d := 0; d < 3; d++ {
			pos[i][d] = rng.Float64() * 2
		}
		q[i] = rng.Float64()*2 - 1
	}

	ref := make([]int64, spec.size())
	spread(pos, q, subset, box, spec, ref, 1)
	for _, workers := range []int{2, 5, 16} {
		fixed := make([]int64, spec.size())
		spread(pos, q, subset, box, spec, fixed, workers)
		assert.Equal(t, ref, fixed, "workers=%d", workers)
	}
}
