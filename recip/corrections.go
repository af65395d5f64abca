package recip

import (
	"math"

	"slicedpme"
)

// minExclusionDistance is the substitution threshold for coincident
// excluded pairs: below it the r -> 0 limits of the correction terms
// are used and the pair exerts no force.
const minExclusionDistance = 1e-6

// selfEnergies returns the raw per-subset Coulomb self-energy
// corrections, -kCoulomb * alpha/sqrt(pi) * sum q^2. Each enters the
// total weighted by its subset's diagonal slice lambda.
func selfEnergies(q []float64, subset []int, alpha float64, nSubsets int) []float64 {
	raw := make([]float64, nSubsets)
	for i, qi := range q {
		raw[subset[i]] += qi * qi
	}
	scale := -one4PiEps0 * alpha / math.SqrtPi
	for s := range raw {
		raw[s] *= scale
	}
	return raw
}

// dispersionSelfEnergies is the r^-6 analog: the spread coefficient
// c = 2 sigma^3 sqrt(eps) interacting with its own images contributes
// -c^2 alpha^6 / 12 per particle, corrected here with opposite sign.
func dispersionSelfEnergies(c []float64, subset []int, alpha float64, nSubsets int) []float64 {
	raw := make([]float64, nSubsets)
	for i, ci := range c {
		raw[subset[i]] += ci * ci
	}
	a2 := alpha * alpha
	scale := a2 * a2 * a2 / 12
	for s := range raw {
		raw[s] *= scale
	}
	return raw
}

// exclusionPair is one excluded interaction whose full-lattice
// reciprocal contribution must be cancelled.
type exclusionPair struct {
	p1, p2 int
	sl     int
}

// coulombExclusions removes the reciprocal-space interaction of each
// excluded pair: raw energy -kCoulomb*q1*q2*erf(alpha r)/r per pair,
// accumulated per slice, with the matching force complement scaled by
// the slice lambda applied directly to forces.
func coulombExclusions(
	pairs []exclusionPair, pos [][3]float64, q []float64,
	box *slicedpme.Box, alpha float64, lambdas []float64, nSlices int,
	forces [][3]float64,
) []float64 {
	raw := make([]float64, nSlices)
	for _, pr := range pairs {
		qq := one4PiEps0 * q[pr.p1] * q[pr.p2]
		if qq == 0 {
			continue
		}
		d := box.MinImage(pos[pr.p1], pos[pr.p2])
		r2 := d[0]*d[0] + d[1]*d[1] + d[2]*d[2]
		r := math.Sqrt(r2)
		if r < minExclusionDistance {
			raw[pr.sl] -= qq * 2 * alpha / math.SqrtPi
			continue
		}

		ar := alpha * r
		erfAR := math.Erf(ar)
		raw[pr.sl] -= qq * erfAR / r

		// d/dr of -qq*erf(alpha r)/r, divided by r.
		dEdrOverR := -qq * (2*alpha/math.SqrtPi*math.Exp(-ar*ar)/r -
			erfAR/r2) / r
		scale := lambdas[pr.sl] * dEdrOverR
		for k := 0; k < 3; k++ {
			forces[pr.p1][k] -= scale * d[k]
			forces[pr.p2][k] += scale * d[k]
		}
	}
	return raw
}

// dispersionExclusions cancels the reciprocal r^-6 term of each
// excluded pair: the grids contributed -c1*c2*glr(r) with
// glr(r) = (1 - (1 + a2 + a4/2) e^{-a2})/r^6, so the correction adds
// it back.
func dispersionExclusions(
	pairs []exclusionPair, pos [][3]float64, c []float64,
	box *slicedpme.Box, alpha float64, lambdas []float64, nSlices int,
	forces [][3]float64,
) []float64 {
	raw := make([]float64, nSlices)
	a2f := alpha * alpha
	for _, pr := range pairs {
		cc := c[pr.p1] * c[pr.p2]
		if cc == 0 {
			continue
		}
		d := box.MinImage(pos[pr.p1], pos[pr.p2])
		r2 := d[0]*d[0] + d[1]*d[1] + d[2]*d[2]
		r := math.Sqrt(r2)
		if r < minExclusionDistance {
			raw[pr.sl] += cc * a2f * a2f * a2f / 6
			continue
		}

		a2 := a2f * r2
		p := 1 + a2 + 0.5*a2*a2
		expA := math.Exp(-a2)
		r6 := r2 * r2 * r2
		glr := (1 - p*expA) / r6
		raw[pr.sl] += cc * glr

		// d/dr of cc*glr(r), divided by r.
		dEdrOverR := cc * (-6*glr/r + a2f*r*a2*a2*expA/r6) / r
		scale := lambdas[pr.sl] * dEdrOverR
		for k := 0; k < 3; k++ {
			forces[pr.p1][k] -= scale * d[k]
			forces[pr.p2][k] += scale * d[k]
		}
	}
	return raw
}
