package slicedpme

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBox(t *testing.T) {
	_, err := NewBox(
		[3]float64{2, 1, 0}, [3]float64{0, 2, 0}, [3]float64{0, 0, 2},
	)
	assert.Error(t, err)
	_, err = NewOrthorhombicBox(2, -1, 2)
	assert.Error(t, err)

	b, err := NewOrthorhombicBox(2, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, 24.0, b.Volume())
}

func TestReciprocal(t *testing.T) {
	b, err := NewBox(
		[3]float64{4, 0, 0}, [3]float64{1, 3, 0}, [3]float64{0.5, 1, 2},
	)
	require.NoError(t, err)

	ra, rb, rc := b.Reciprocal()
	vecs := [3][3]float64{b.A, b.B, b.C}
	recip := [3][3]float64{ra, rb, rc}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			dot := vecs[i][0]*recip[j][0] +
				vecs[i][1]*recip[j][1] +
				vecs[i][2]*recip[j][2]
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(t, want, dot, 1e-12, "i=%d j=%d", i, j)
		}
	}
}

func TestMinImage(t *testing.T) {
	b, _ := NewOrthorhombicBox(2, 2, 2)
	d := b.MinImage([3]float64{1.9, 0.1, 0.0}, [3]float64{0.1, 1.9, 0.0})
	assert.InDelta(t, -0.2, d[0], 1e-12)
	assert.InDelta(t, 0.2, d[1], 1e-12)
	assert.InDelta(t, 0.0, d[2], 1e-12)
}
