package recip

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindLegalDimension(t *testing.T) {
	tests := []struct {
		min, maxPrime, want int
	}{
		{100, 7, 100},
		{101, 7, 108},
		{1, 7, 2},
		{5, 7, 6},
		{121, 5, 128},
		{97, 2, 128},
	}
	for _, test := range tests {
		got := FindLegalDimension(test.min, test.maxPrime)
		if got != test.want {
			t.Errorf(
				"FindLegalDimension(%d, %d) = %d, want %d",
				test.min, test.maxPrime, got, test.want,
			)
		}
	}
}

func TestEwaldAlpha(t *testing.T) {
	alpha := EwaldAlpha(5e-4, 1.0)
	assert.InDelta(t, math.Sqrt(-math.Log(1e-3)), alpha, 1e-12)
	// Tighter tolerance, wider Gaussian split.
	assert.Greater(t, EwaldAlpha(1e-6, 1.0), alpha)
	// Longer cutoff, smaller alpha.
	assert.Less(t, EwaldAlpha(5e-4, 1.5), alpha)
}

func TestPlanGrid(t *testing.T) {
	spec, err := PlanGrid(5e-4, 1.0, 2, 3, 4, 7, GridSpec{})
	require.NoError(t, err)
	assert.InDelta(t, EwaldAlpha(5e-4, 1.0), spec.Alpha, 1e-12)
	assert.True(t, spec.Nx <= spec.Ny && spec.Ny <= spec.Nz)
	for _, n := range []int{spec.Nx, spec.Ny, spec.Nz} {
		assert.Equal(t, n, FindLegalDimension(n, 7))
	}

	// A box much smaller than the cutoff must still get a grid wide
	// enough for the order-5 stencil.
	spec, err = PlanGrid(5e-4, 1.0, 0.2, 0.2, 0.2, 7, GridSpec{})
	require.NoError(t, err)
	for _, n := range []int{spec.Nx, spec.Ny, spec.Nz} {
		assert.GreaterOrEqual(t, n, Order)
	}

	spec, err = PlanGrid(5e-4, 1.0, 2, 2, 2, 7,
		GridSpec{Alpha: 3.0, Nx: 30, Ny: 30, Nz: 30})
	require.NoError(t, err)
	assert.Equal(t, GridSpec{Alpha: 3.0, Nx: 30, Ny: 30, Nz: 30}, spec)

	_, err = PlanGrid(0, 1.0, 2, 2, 2, 7, GridSpec{})
	assert.Error(t, err)
	_, err = PlanGrid(5e-4, -1, 2, 2, 2, 7, GridSpec{})
	assert.Error(t, err)
	_, err = PlanGrid(5e-4, 1.0, 2, 2, 2, 7, GridSpec{Nx: 3, Ny: 30, Nz: 30})
	assert.Error(t, err)
}
