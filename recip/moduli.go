package recip

import "math"

// bsplineKnots returns the order-5 cardinal B-spline evaluated at its
// interior integer knots, the quantities the grid influence function
// is built from.
func bsplineKnots() [Order]float64 {
	var data [Order]float64
	data[0] = 1
	for i := 3; i <= Order; i++ {
		div := 1.0 / float64(i-1)
		data[i-1] = 0
		for j := 1; j < i-1; j++ {
			data[i-j-1] = div * (float64(j)*data[i-j-2] +
				float64(i-j)*data[i-j-1])
		}
		data[0] = div * data[0]
	}
	return data
}

// BSplineModuli returns the squared DFT magnitudes of the spreading
// stencil along one axis of length n. Entries where the transform
// nearly vanishes are replaced by the mean of their neighbors so the
// convolution never divides by zero.
func BSplineModuli(n int) []float64 {
	knots := bsplineKnots()
	support := make([]float64, n)
	for i := 1; i <= Order; i++ {
		support[i] = knots[i-1]
	}

	moduli := make([]float64, n)
	for k := 0; k < n; k++ {
		sc, ss := 0.0, 0.0
		for j := 1; j <= Order; j++ {
			arg := 2 * math.Pi * float64(k) * float64(j) / float64(n)
			sc += support[j] * math.Cos(arg)
			ss += support[j] * math.Sin(arg)
		}
		moduli[k] = sc*sc + ss*ss
	}
	for k := 0; k < n; k++ {
		if moduli[k] < 1e-7 {
			prev := moduli[(k-1+n)%n]
			next := moduli[(k+1)%n]
			moduli[k] = 0.5 * (prev + next)
		}
	}
	return moduli
}
