package slicedpme

import (
	"fmt"
	"math"
)

// Box is a periodic simulation cell in reduced triclinic form: the
// first vector lies along x, the second in the xy plane. All lengths
// are in nm.
type Box struct {
	A, B, C [3]float64
}

// NewBox creates a periodic box from three cell vectors. The vectors
// must be in reduced form and span a positive volume.
func NewBox(a, b, c [3]float64) (*Box, error) {
	if a[1] != 0 || a[2] != 0 || b[2] != 0 {
		return nil, fmt.Errorf(
			"box vectors not in reduced form: a = %v, b = %v", a, b,
		)
	}
	box := &Box{a, b, c}
	if box.Volume() <= 0 {
		return nil, fmt.Errorf("box volume %g is not positive", box.Volume())
	}
	return box, nil
}

// NewOrthorhombicBox creates a rectangular periodic box with the
// given side lengths.
func NewOrthorhombicBox(lx, ly, lz float64) (*Box, error) {
	return NewBox(
		[3]float64{lx, 0, 0}, [3]float64{0, ly, 0}, [3]float64{0, 0, lz},
	)
}

// Volume returns the cell volume. The reduced form makes this the
// product of the diagonal elements.
func (b *Box) Volume() float64 {
	return b.A[0] * b.B[1] * b.C[2]
}

// Reciprocal returns the rows of the inverse cell matrix. A position
// r maps to fractional coordinates (r·ra, r·rb, r·rc).
func (b *Box) Reciprocal() (ra, rb, rc [3]float64) {
	scale := 1.0 / b.Volume()
	ra = [3]float64{b.B[1] * b.C[2] * scale, 0, 0}
	rb = [3]float64{-b.B[0] * b.C[2] * scale, b.A[0] * b.C[2] * scale, 0}
	rc = [3]float64{
		(b.B[0]*b.C[1] - b.B[1]*b.C[0]) * scale,
		-b.A[0] * b.C[1] * scale,
		b.A[0] * b.B[1] * scale,
	}
	return ra, rb, rc
}

// MinImage returns the minimum-image displacement from x2 to x1.
func (b *Box) MinImage(x1, x2 [3]float64) [3]float64 {
	d := [3]float64{x1[0] - x2[0], x1[1] - x2[1], x1[2] - x2[2]}
	vecs := [3][3]float64{b.A, b.B, b.C}
	for j := 2; j >= 0; j-- {
		v := vecs[j]
		n := math.Round(d[j] / v[j])
		d[0] -= n * v[0]
		d[1] -= n * v[1]
		d[2] -= n * v[2]
	}
	return d
}
