/*
package slicedpme defines a periodic electrostatics force whose
particles are partitioned into disjoint subsets, with an independently
scalable interaction strength for every unordered pair of subsets.

The package holds only the force definition: particles, exceptions,
global and scaling parameters, and parameter offsets. The
reciprocal-space evaluation itself lives in slicedpme/recip, the
direct-space exception evaluation in slicedpme/direct.
*/
package slicedpme

import (
	"fmt"
	"math"

	"slicedpme/slice"
)

const (
	// DefaultCutoff is the direct-space cutoff distance in nm.
	DefaultCutoff = 1.0
	// DefaultEwaldTolerance is the target fractional error in the
	// Ewald force split.
	DefaultEwaldTolerance = 5e-4
)

// Force describes a sliced PME electrostatics (optionally plus LJPME
// dispersion) force. All mutators validate their arguments and leave
// the force unchanged on error.
type Force struct {
	numSubsets int

	cutoff         float64
	ewaldTolerance float64
	useDispersion  bool

	// Explicit PME parameter overrides. Zero means "derive from the
	// tolerance".
	alpha           float64
	nx, ny, nz      int
	dispersionAlpha float64
	dnx, dny, dnz   int

	recipForceGroup       int
	includeDirectSpace    bool
	exceptionsUsePeriodic bool

	particles  []Particle
	exceptions []Exception
	// Unordered pair -> exception index.
	exceptionMap map[[2]int]int

	globals          []GlobalParameter
	scaling          []ScalingParameter
	scalingDerivs    []int
	particleOffsets  []ParticleOffset
	exceptionOffsets []ExceptionOffset
}

// NewForce creates a force with the given number of particle subsets.
func NewForce(numSubsets int) (*Force, error) {
	if numSubsets <= 0 {
		return nil, fmt.Errorf("invalid number of subsets: %d", numSubsets)
	}
	return &Force{
		numSubsets:         numSubsets,
		cutoff:             DefaultCutoff,
		ewaldTolerance:     DefaultEwaldTolerance,
		recipForceGroup:    -1,
		includeDirectSpace: true,
		exceptionMap:       make(map[[2]int]int),
	}, nil
}

func (f *Force) NumSubsets() int { return f.numSubsets }

// NumSlices returns the number of subset-pair interaction channels.
func (f *Force) NumSlices() int { return slice.Count(f.numSubsets) }

func (f *Force) Cutoff() float64               { return f.cutoff }
func (f *Force) SetCutoff(d float64)           { f.cutoff = d }
func (f *Force) EwaldTolerance() float64       { return f.ewaldTolerance }
func (f *Force) SetEwaldTolerance(tol float64) { f.ewaldTolerance = tol }

// UseDispersion reports whether the dispersion (LJPME) grids are
// evaluated alongside the electrostatic ones.
func (f *Force) UseDispersion() bool       { return f.useDispersion }
func (f *Force) SetUseDispersion(use bool) { f.useDispersion = use }

func (f *Force) IncludeDirectSpace() bool       { return f.includeDirectSpace }
func (f *Force) SetIncludeDirectSpace(inc bool) { f.includeDirectSpace = inc }

func (f *Force) ExceptionsUsePeriodic() bool       { return f.exceptionsUsePeriodic }
func (f *Force) SetExceptionsUsePeriodic(use bool) { f.exceptionsUsePeriodic = use }

// PMEParameters returns the explicit parameter override (alpha and
// grid dimensions). All zeros means they are derived from the error
// tolerance at evaluator construction.
func (f *Force) PMEParameters() (alpha float64, nx, ny, nz int) {
	return f.alpha, f.nx, f.ny, f.nz
}

func (f *Force) SetPMEParameters(alpha float64, nx, ny, nz int) {
	f.alpha, f.nx, f.ny, f.nz = alpha, nx, ny, nz
}

// DispersionPMEParameters is the LJPME analog of PMEParameters.
func (f *Force) DispersionPMEParameters() (alpha float64, nx, ny, nz int) {
	return f.dispersionAlpha, f.dnx, f.dny, f.dnz
}

func (f *Force) SetDispersionPMEParameters(alpha float64, nx, ny, nz int) {
	f.dispersionAlpha, f.dnx, f.dny, f.dnz = alpha, nx, ny, nz
}

// ReciprocalForceGroup returns the force group the reciprocal-space
// part evaluates in, or -1 to follow the direct-space group.
func (f *Force) ReciprocalForceGroup() int { return f.recipForceGroup }

func (f *Force) SetReciprocalForceGroup(group int) error {
	if group < -1 || group > 31 {
		return fmt.Errorf("force group %d outside [-1, 31]", group)
	}
	f.recipForceGroup = group
	return nil
}

func (f *Force) checkSubset(subset int) error {
	if subset < 0 || subset >= f.numSubsets {
		return fmt.Errorf(
			"subset index %d out of range [0, %d)", subset, f.numSubsets,
		)
	}
	return nil
}

func (f *Force) checkParticle(i int) error {
	if i < 0 || i >= len(f.particles) {
		return fmt.Errorf(
			"particle index %d out of range [0, %d)", i, len(f.particles),
		)
	}
	return nil
}

// AddParticle appends a particle and returns its index.
func (f *Force) AddParticle(charge, sigma, epsilon float64, subset int) (int, error) {
	if err := f.checkSubset(subset); err != nil {
		return -1, err
	}
	f.particles = append(f.particles, Particle{charge, sigma, epsilon, subset})
	return len(f.particles) - 1, nil
}

func (f *Force) NumParticles() int { return len(f.particles) }

func (f *Force) Particle(i int) (Particle, error) {
	if err := f.checkParticle(i); err != nil {
		return Particle{}, err
	}
	return f.particles[i], nil
}

func (f *Force) SetParticle(i int, p Particle) error {
	if err := f.checkParticle(i); err != nil {
		return err
	}
	if err := f.checkSubset(p.Subset); err != nil {
		return err
	}
	f.particles[i] = p
	return nil
}

func (f *Force) SetParticleSubset(i, subset int) error {
	if err := f.checkParticle(i); err != nil {
		return err
	}
	if err := f.checkSubset(subset); err != nil {
		return err
	}
	f.particles[i].Subset = subset
	return nil
}

// AddException adds a pair override and returns its index. At most
// one exception may exist per unordered pair: re-adding fails unless
// replace is set, in which case the old entry is overwritten in
// place.
func (f *Force) AddException(e Exception, replace bool) (int, error) {
	if err := f.checkParticle(e.Particle1); err != nil {
		return -1, err
	}
	if err := f.checkParticle(e.Particle2); err != nil {
		return -1, err
	}
	key := pairKey(e.Particle1, e.Particle2)
	if idx, ok := f.exceptionMap[key]; ok {
		if !replace {
			return -1, fmt.Errorf(
				"there is already an exception for particles %d and %d",
				e.Particle1, e.Particle2,
			)
		}
		f.exceptions[idx] = e
		return idx, nil
	}
	f.exceptions = append(f.exceptions, e)
	f.exceptionMap[key] = len(f.exceptions) - 1
	return len(f.exceptions) - 1, nil
}

func (f *Force) NumExceptions() int { return len(f.exceptions) }

func (f *Force) ExceptionAt(i int) (Exception, error) {
	if i < 0 || i >= len(f.exceptions) {
		return Exception{}, fmt.Errorf(
			"exception index %d out of range [0, %d)", i, len(f.exceptions),
		)
	}
	return f.exceptions[i], nil
}

// SetException overwrites an exception's parameters. The particle
// pair may change, so the pair map is rebuilt for the entry.
func (f *Force) SetException(i int, e Exception) error {
	if i < 0 || i >= len(f.exceptions) {
		return fmt.Errorf(
			"exception index %d out of range [0, %d)", i, len(f.exceptions),
		)
	}
	if err := f.checkParticle(e.Particle1); err != nil {
		return err
	}
	if err := f.checkParticle(e.Particle2); err != nil {
		return err
	}
	old := f.exceptions[i]
	delete(f.exceptionMap, pairKey(old.Particle1, old.Particle2))
	f.exceptions[i] = e
	f.exceptionMap[pairKey(e.Particle1, e.Particle2)] = i
	return nil
}

func pairKey(p1, p2 int) [2]int {
	if p1 > p2 {
		p1, p2 = p2, p1
	}
	return [2]int{p1, p2}
}

// CreateExceptionsFromBonds adds exceptions for every particle pair
// separated by one, two, or three bonds. Pairs separated by one or
// two bonds are fully excluded; pairs separated by three bonds keep a
// scaled 1-4 interaction built from the particles' own parameters.
func (f *Force) CreateExceptionsFromBonds(
	bonds [][2]int, coulomb14Scale, lj14Scale float64,
) error {
	for _, bond := range bonds {
		if err := f.checkParticle(bond[0]); err != nil {
			return fmt.Errorf("illegal particle index in bond list: %v", err)
		}
		if err := f.checkParticle(bond[1]); err != nil {
			return fmt.Errorf("illegal particle index in bond list: %v", err)
		}
	}

	bonded12 := make([][]int, len(f.particles))
	for _, bond := range bonds {
		bonded12[bond[0]] = append(bonded12[bond[0]], bond[1])
		bonded12[bond[1]] = append(bonded12[bond[1]], bond[0])
	}

	exclusions := make([]map[int]bool, len(f.particles))
	for i := range exclusions {
		exclusions[i] = make(map[int]bool)
		addNeighborsToSet(bonded12, exclusions[i], i, i, 2)
	}

	for i := range exclusions {
		bonded13 := make(map[int]bool)
		addNeighborsToSet(bonded12, bonded13, i, i, 1)
		for j := range exclusions[i] {
			if j >= i {
				continue
			}
			if bonded13[j] {
				// Separated by one or two bonds: fully excluded.
				_, err := f.AddException(
					Exception{Particle1: j, Particle2: i, Sigma: 1.0}, false,
				)
				if err != nil {
					return err
				}
				continue
			}
			// A 1-4 interaction.
			p1, p2 := f.particles[j], f.particles[i]
			e := Exception{
				Particle1:  j,
				Particle2:  i,
				ChargeProd: coulomb14Scale * p1.Charge * p2.Charge,
				Sigma:      0.5 * (p1.Sigma + p2.Sigma),
				Epsilon:    lj14Scale * geometricMean(p1.Epsilon, p2.Epsilon),
			}
			if _, err := f.AddException(e, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func addNeighborsToSet(
	bonded12 [][]int, set map[int]bool, base, from, level int,
) {
	for _, i := range bonded12[from] {
		if i != base {
			set[i] = true
		}
		if level > 0 {
			addNeighborsToSet(bonded12, set, base, i, level-1)
		}
	}
}

func geometricMean(a, b float64) float64 {
	if a < 0 || b < 0 {
		return 0
	}
	prod := a * b
	if prod == 0 {
		return 0
	}
	return math.Sqrt(prod)
}
