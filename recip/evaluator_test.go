package recip

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slicedpme"
)

var testPositions = [][3]float64{
	{0.3, 0.4, 0.5},
	{0.9, 0.5, 0.6},
	{1.2, 1.4, 0.2},
	{0.5, 1.1, 1.6},
}

func testBox(t *testing.T) *slicedpme.Box {
	box, err := slicedpme.NewOrthorhombicBox(2, 2, 2)
	require.NoError(t, err)
	return box
}

// testForce builds a force with a fixed mesh so energies stay
// comparable across different subset assignments.
func testForce(t *testing.T, nSubsets int, charges []float64, subsets []int) *slicedpme.Force {
	f, err := slicedpme.NewForce(nSubsets)
	require.NoError(t, err)
	f.SetPMEParameters(3.0, 24, 24, 24)
	for i := range charges {
		_, err := f.AddParticle(charges[i], 0.3, 0, subsets[i])
		require.NoError(t, err)
	}
	return f
}

func execEnergy(t *testing.T, ev *Evaluator, pos [][3]float64, params map[string]float64) float64 {
	e, _, err := ev.Execute(pos, nil, Options{IncludeEnergy: true}, params)
	require.NoError(t, err)
	return e
}

// Splitting the classical four-charge system across two subsets with
// every lambda at its default must not change anything.
func TestSlicedMatchesSingleSubset(t *testing.T) {
	box := testBox(t)
	charges := []float64{1, -1, 1, -1}

	single := testForce(t, 1, charges, []int{0, 0, 0, 0})
	sliced := testForce(t, 2, charges, []int{0, 0, 1, 1})

	evA, err := NewEvaluator(single, box, 2)
	require.NoError(t, err)
	evB, err := NewEvaluator(sliced, box, 3)
	require.NoError(t, err)

	forcesA := make([][3]float64, 4)
	forcesB := make([][3]float64, 4)
	opts := Options{IncludeEnergy: true, IncludeForces: true}
	eA, _, err := evA.Execute(testPositions, forcesA, opts, nil)
	require.NoError(t, err)
	eB, _, err := evB.Execute(testPositions, forcesB, opts, nil)
	require.NoError(t, err)

	assert.InDelta(t, eA, eB, 1e-8)
	for i := range forcesA {
		for d := 0; d < 3; d++ {
			assert.InDelta(t, forcesA[i][d], forcesB[i][d], 1e-8,
				"particle %d component %d", i, d)
		}
	}
}

// With the cross slice scaled to zero, the system must fall apart
// into two independent subsystems: the energy is the sum of the two
// systems in which the other subset's charges are zeroed, and the
// diagonal contributions are untouched.
func TestZeroLambdaDecouplesSubsets(t *testing.T) {
	box := testBox(t)

	sliced := testForce(t, 2, []float64{1, -1, 1, -1}, []int{0, 0, 1, 1})
	_, err := sliced.AddGlobalParameter("lambda_01", 1)
	require.NoError(t, err)
	_, err = sliced.AddScalingParameter("lambda_01", 0, 1, true, false)
	require.NoError(t, err)
	ev, err := NewEvaluator(sliced, box, 2)
	require.NoError(t, err)

	forces := make([][3]float64, 4)
	opts := Options{IncludeEnergy: true, IncludeForces: true}
	e0, _, err := ev.Execute(
		testPositions, forces, opts, map[string]float64{"lambda_01": 0},
	)
	require.NoError(t, err)

	only0 := testForce(t, 2, []float64{1, -1, 0, 0}, []int{0, 0, 1, 1})
	only1 := testForce(t, 2, []float64{0, 0, 1, -1}, []int{0, 0, 1, 1})
	ev0, err := NewEvaluator(only0, box, 2)
	require.NoError(t, err)
	ev1, err := NewEvaluator(only1, box, 2)
	require.NoError(t, err)

	f0 := make([][3]float64, 4)
	f1 := make([][3]float64, 4)
	eOnly0, _, err := ev0.Execute(testPositions, f0, opts, nil)
	require.NoError(t, err)
	eOnly1, _, err := ev1.Execute(testPositions, f1, opts, nil)
	require.NoError(t, err)

	assert.InDelta(t, eOnly0+eOnly1, e0, 1e-8)
	for i := 0; i < 2; i++ {
		for d := 0; d < 3; d++ {
			assert.InDelta(t, f0[i][d], forces[i][d], 1e-8,
				"particle %d component %d", i, d)
		}
	}
	for i := 2; i < 4; i++ {
		for d := 0; d < 3; d++ {
			assert.InDelta(t, f1[i][d], forces[i][d], 1e-8,
				"particle %d component %d", i, d)
		}
	}
}

// The energy is linear in each scaling parameter, so the reported
// derivative must match a central difference essentially exactly.
func TestDerivativeMatchesFiniteDifference(t *testing.T) {
	box := testBox(t)
	f := testForce(t, 2, []float64{1, -1, 1, -1}, []int{0, 0, 1, 1})
	f.AddGlobalParameter("lambda_01", 1)
	f.AddScalingParameter("lambda_01", 0, 1, true, false)
	require.NoError(t, f.AddScalingParameterDerivative("lambda_01"))

	ev, err := NewEvaluator(f, box, 2)
	require.NoError(t, err)

	e, derivs, err := ev.Execute(
		testPositions, nil, Options{IncludeEnergy: true},
		map[string]float64{"lambda_01": 0.7},
	)
	require.NoError(t, err)
	require.Contains(t, derivs, "lambda_01")

	h := 1e-3
	ep := execEnergy(t, ev, testPositions, map[string]float64{"lambda_01": 0.7 + h})
	em := execEnergy(t, ev, testPositions, map[string]float64{"lambda_01": 0.7 - h})
	fd := (ep - em) / (2 * h)
	assert.InDelta(t, fd, derivs["lambda_01"], 1e-7)

	// Linearity: the derivative times the parameter span recovers the
	// energy difference.
	assert.InDelta(t, ep-e, derivs["lambda_01"]*h, 1e-9)
}

// The analytic forces are the exact gradient of the mesh energy, so a
// central difference on the positions must reproduce them.
func TestForcesMatchFiniteDifference(t *testing.T) {
	box := testBox(t)
	f := testForce(t, 2, []float64{1, -1, 1, -1}, []int{0, 0, 1, 1})
	f.AddGlobalParameter("lambda_01", 1)
	f.AddScalingParameter("lambda_01", 0, 1, true, false)
	// An excluded pair exercises the correction forces as well.
	_, err := f.AddException(
		slicedpme.Exception{Particle1: 0, Particle2: 1, Sigma: 0.3}, false,
	)
	require.NoError(t, err)

	ev, err := NewEvaluator(f, box, 2)
	require.NoError(t, err)

	params := map[string]float64{"lambda_01": 0.6}
	forces := make([][3]float64, 4)
	_, _, err = ev.Execute(
		testPositions, forces,
		Options{IncludeEnergy: true, IncludeForces: true}, params,
	)
	require.NoError(t, err)

	h := 1e-3
	pos := make([][3]float64, 4)
	copy(pos, testPositions)
	for i := range pos {
		for d := 0; d < 3; d++ {
			orig := pos[i][d]
			pos[i][d] = orig + h
			ep := execEnergy(t, ev, pos, params)
			pos[i][d] = orig - h
			em := execEnergy(t, ev, pos, params)
			pos[i][d] = orig

			fd := -(ep - em) / (2 * h)
			assert.InDelta(t, fd, forces[i][d], 1e-3,
				"particle %d component %d", i, d)
		}
	}
}

// A particle whose charge rides on a global parameter must behave
// exactly like a particle with the literal charge, self energy
// included.
func TestSelfEnergyTracksOffsets(t *testing.T) {
	box := testBox(t)
	pos := testPositions[:2]

	f := testForce(t, 2, []float64{0.5, -0.5}, []int{0, 1})
	f.AddGlobalParameter("dq", 0)
	_, err := f.AddParticleOffset(slicedpme.ParticleOffset{
		Parameter: "dq", Particle: 0, ChargeScale: 1,
	})
	require.NoError(t, err)
	ev, err := NewEvaluator(f, box, 2)
	require.NoError(t, err)

	for _, dq := range []float64{0.4, -0.7} {
		lit := testForce(t, 2, []float64{0.5 + dq, -0.5}, []int{0, 1})
		evLit, err := NewEvaluator(lit, box, 2)
		require.NoError(t, err)

		got := execEnergy(t, ev, pos, map[string]float64{"dq": dq})
		want := execEnergy(t, evLit, pos, nil)
		assert.InDelta(t, want, got, 1e-9, "dq=%g", dq)
	}
}

func TestUpdateForce(t *testing.T) {
	box := testBox(t)
	f := testForce(t, 2, []float64{1, -1, 1, -1}, []int{0, 0, 1, 1})
	_, err := f.AddException(
		slicedpme.Exception{Particle1: 0, Particle2: 1, ChargeProd: 0.5, Sigma: 0.3},
		false,
	)
	require.NoError(t, err)
	_, err = f.AddException(
		slicedpme.Exception{Particle1: 2, Particle2: 3, Sigma: 0.3}, false,
	)
	require.NoError(t, err)

	ev, err := NewEvaluator(f, box, 2)
	require.NoError(t, err)
	execEnergy(t, ev, testPositions, nil)

	// Numeric changes pass through.
	p, _ := f.Particle(0)
	p.Charge = 0.25
	require.NoError(t, f.SetParticle(0, p))
	require.NoError(t, ev.UpdateForce(f))

	fresh, err := NewEvaluator(f, box, 2)
	require.NoError(t, err)
	assert.InDelta(t,
		execEnergy(t, fresh, testPositions, nil),
		execEnergy(t, ev, testPositions, nil), 1e-10)

	// A fully excluded pair may move.
	require.NoError(t, f.SetException(1,
		slicedpme.Exception{Particle1: 1, Particle2: 3, Sigma: 0.3}))
	require.NoError(t, ev.UpdateForce(f))

	// An interacting pair may not.
	require.NoError(t, f.SetException(0,
		slicedpme.Exception{Particle1: 0, Particle2: 2, ChargeProd: 0.5, Sigma: 0.3}))
	assert.Error(t, ev.UpdateForce(f))

	// Neither may the particle count change.
	f2 := testForce(t, 2, []float64{1, -1, 1, -1, 1}, []int{0, 0, 1, 1, 0})
	assert.Error(t, ev.UpdateForce(f2))
}

func TestExecuteValidation(t *testing.T) {
	box := testBox(t)
	f := testForce(t, 1, []float64{1, -1}, []int{0, 0})
	ev, err := NewEvaluator(f, box, 1)
	require.NoError(t, err)

	_, _, err = ev.Execute(testPositions, nil, Options{IncludeEnergy: true}, nil)
	assert.Error(t, err)

	_, _, err = ev.Execute(testPositions[:2], nil, Options{IncludeEnergy: true},
		map[string]float64{"nope": 1})
	assert.Error(t, err)

	_, _, err = ev.Execute(testPositions[:2], nil,
		Options{IncludeEnergy: true, IncludeForces: true}, nil)
	assert.Error(t, err)
}

func TestDispersionForcesMatchFiniteDifference(t *testing.T) {
	box := testBox(t)
	f, err := slicedpme.NewForce(2)
	require.NoError(t, err)
	f.SetPMEParameters(3.0, 24, 24, 24)
	f.SetDispersionPMEParameters(3.0, 24, 24, 24)
	f.SetUseDispersion(true)

	charges := []float64{0.4, -0.4, 0.4, -0.4}
	sigmas := []float64{0.30, 0.25, 0.32, 0.28}
	epsilons := []float64{0.6, 0.8, 0.5, 0.7}
	subsets := []int{0, 0, 1, 1}
	for i := range charges {
		_, err := f.AddParticle(charges[i], sigmas[i], epsilons[i], subsets[i])
		require.NoError(t, err)
	}
	_, err = f.AddException(
		slicedpme.Exception{Particle1: 0, Particle2: 1, Sigma: 0.3}, false,
	)
	require.NoError(t, err)

	ev, err := NewEvaluator(f, box, 2)
	require.NoError(t, err)

	forces := make([][3]float64, 4)
	e, _, err := ev.Execute(
		testPositions, forces,
		Options{IncludeEnergy: true, IncludeForces: true}, nil,
	)
	require.NoError(t, err)
	require.False(t, math.IsNaN(e))

	h := 1e-4
	pos := make([][3]float64, 4)
	copy(pos, testPositions)
	for i := range pos {
		for d := 0; d < 3; d++ {
			orig := pos[i][d]
			pos[i][d] = orig + h
			ep := execEnergy(t, ev, pos, nil)
			pos[i][d] = orig - h
			em := execEnergy(t, ev, pos, nil)
			pos[i][d] = orig

			fd := -(ep - em) / (2 * h)
			assert.InDelta(t, fd, forces[i][d], 1e-3,
				"particle %d component %d", i, d)
		}
	}
}

// latticeImageShifts enumerates the cubic image offsets used by the
// brute-force reference sums below.
func latticeImageShifts(nMax int, l float64) [][3]float64 {
	shifts := [][3]float64{}
	for nx := -nMax; nx <= nMax; nx++ {
		for ny := -nMax; ny <= nMax; ny++ {
			for nz := -nMax; nz <= nMax; nz++ {
				shifts = append(shifts,
					[3]float64{float64(nx) * l, float64(ny) * l, float64(nz) * l})
			}
		}
	}
	return shifts
}

// The CsCl structure has a known Madelung constant, so the evaluator's
// reciprocal energy plus a directly summed erfc complement must
// reproduce the full lattice sum. Unlike the consistency tests above,
// this anchors the absolute scale of the Coulomb channel.
func TestCoulombMatchesMadelungEnergy(t *testing.T) {
	const (
		l        = 1.0
		alpha    = 5.0
		madelung = 1.76267477307099
	)
	box, err := slicedpme.NewOrthorhombicBox(l, l, l)
	require.NoError(t, err)

	pos := [][3]float64{{0, 0, 0}, {l / 2, l / 2, l / 2}}
	charges := []float64{1, -1}

	f, err := slicedpme.NewForce(1)
	require.NoError(t, err)
	f.SetPMEParameters(alpha, 64, 64, 64)
	for i := range charges {
		_, err := f.AddParticle(charges[i], 0.3, 0, 0)
		require.NoError(t, err)
	}
	ev, err := NewEvaluator(f, box, 2)
	require.NoError(t, err)
	recip := execEnergy(t, ev, pos, nil)

	direct := 0.0
	for _, s := range latticeImageShifts(3, l) {
		for i := range pos {
			for j := range pos {
				if i == j && s == [3]float64{} {
					continue
				}
				dx := pos[j][0] + s[0] - pos[i][0]
				dy := pos[j][1] + s[1] - pos[i][1]
				dz := pos[j][2] + s[2] - pos[i][2]
				r := math.Sqrt(dx*dx + dy*dy + dz*dz)
				direct += 0.5 * one4PiEps0 * charges[i] * charges[j] *
					math.Erfc(alpha*r) / r
			}
		}
	}

	nearest := math.Sqrt(3) * l / 2
	expected := -madelung * one4PiEps0 / nearest
	assert.InDelta(t, expected, recip+direct, 1e-4)
}

// The dispersion channel has no tabulated constant to lean on, but the
// bare sum of -c_i c_j / r^6 over lattice images converges absolutely
// and never touches the mesh machinery. The reciprocal energy plus the
// short-range complement must reproduce it, including the finite k = 0
// term, which carries most of the total here.
func TestDispersionMatchesLatticeSum(t *testing.T) {
	const (
		l     = 2.0
		alpha = 4.0
	)
	box, err := slicedpme.NewOrthorhombicBox(l, l, l)
	require.NoError(t, err)

	pos := [][3]float64{{0.35, 0.40, 0.45}, {1.25, 1.10, 0.80}}
	sigmas := []float64{0.30, 0.25}
	epsilons := []float64{1.0, 0.6}
	c := make([]float64, 2)
	for i := range c {
		c[i] = 2 * math.Pow(sigmas[i], 3) * math.Sqrt(epsilons[i])
	}

	f, err := slicedpme.NewForce(1)
	require.NoError(t, err)
	f.SetPMEParameters(3.0, 24, 24, 24)
	f.SetDispersionPMEParameters(alpha, 64, 64, 64)
	f.SetUseDispersion(true)
	for i := range pos {
		_, err := f.AddParticle(0, sigmas[i], epsilons[i], 0)
		require.NoError(t, err)
	}
	ev, err := NewEvaluator(f, box, 2)
	require.NoError(t, err)
	recip := execEnergy(t, ev, pos, nil)

	short, expected := 0.0, 0.0
	for _, s := range latticeImageShifts(10, l) {
		for i := range pos {
			for j := range pos {
				if i == j && s == [3]float64{} {
					continue
				}
				dx := pos[j][0] + s[0] - pos[i][0]
				dy := pos[j][1] + s[1] - pos[i][1]
				dz := pos[j][2] + s[2] - pos[i][2]
				r2 := dx*dx + dy*dy + dz*dz
				r6 := r2 * r2 * r2
				a2 := alpha * alpha * r2
				cc := 0.5 * c[i] * c[j]
				expected -= cc / r6
				short -= cc * (1 + a2 + a2*a2/2) * math.Exp(-a2) / r6
			}
		}
	}

	assert.InDelta(t, expected, recip+short, 1e-5)
}
