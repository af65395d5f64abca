package recip

import (
	"fmt"
	"math"
	"runtime"

	"slicedpme"
	"slicedpme/slice"
)

// maxFFTPrime limits grid dimensions to products of small primes,
// the sizes every mixed-radix transform handles efficiently.
const maxFFTPrime = 7

// Options selects which outputs one Execute call produces.
type Options struct {
	IncludeEnergy bool
	IncludeForces bool
}

// Evaluator computes the reciprocal-space energy, forces, and scaling
// parameter derivatives of a sliced PME force. Construction freezes
// the particle count, grids, and parameter structure; numeric values
// follow the globals passed to Execute.
type Evaluator struct {
	box     *slicedpme.Box
	workers int

	nParticles int
	nSubsets   int
	nSlices    int

	spec    GridSpec
	moduli  [3][]float64
	fft     *FFT3
	useDisp bool
	dspec   GridSpec
	dmoduli [3][]float64
	dfft    *FFT3

	// Frozen copies of the definition.
	baseCharge []float64
	baseSigma  []float64
	baseEps    []float64
	subset     []int
	exclusions []exclusionPair
	scaling    []slicedpme.ScalingParameter
	derivNames []string
	// Per-particle offsets, grouped by target particle.
	offsets map[int][]slicedpme.ParticleOffset
	// Exception pair identity for UpdateForce checks.
	pairs    [][2]int
	livePair map[[2]int]bool

	globals map[string]float64
	dirty   bool

	// Derived parameter state.
	lambdaC []float64
	lambdaL []float64
	charge  []float64
	coeff   []float64
	selfC   []float64
	selfL   []float64

	// Raw per-slice energies of the most recent Execute call.
	lastRawC []float64
	lastRawL []float64

	// Work grids.
	fixed  []int64
	grids  []complex128
	pot    []complex128
	dfixed []int64
	dgrids []complex128
	dpot   []complex128
}

// NewEvaluator plans grids and freezes the force's structure. A
// workers count below 1 uses every CPU.
func NewEvaluator(
	f *slicedpme.Force, box *slicedpme.Box, workers int,
) (*Evaluator, error) {
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	alpha, nx, ny, nz := f.PMEParameters()
	spec, err := PlanGrid(
		f.EwaldTolerance(), f.Cutoff(),
		box.A[0], box.B[1], box.C[2], maxFFTPrime,
		GridSpec{Alpha: alpha, Nx: nx, Ny: ny, Nz: nz},
	)
	if err != nil {
		return nil, err
	}

	ev := &Evaluator{
		box:        box,
		workers:    workers,
		nParticles: f.NumParticles(),
		nSubsets:   f.NumSubsets(),
		nSlices:    f.NumSlices(),
		spec:       spec,
		useDisp:    f.UseDispersion(),
		globals:    make(map[string]float64),
		offsets:    make(map[int][]slicedpme.ParticleOffset),
		livePair:   make(map[[2]int]bool),
		dirty:      true,
	}
	ev.moduli = [3][]float64{
		BSplineModuli(spec.Nx), BSplineModuli(spec.Ny), BSplineModuli(spec.Nz),
	}
	ev.fft = NewFFT3(spec.Nx, spec.Ny, spec.Nz, workers)

	if ev.useDisp {
		dalpha, dnx, dny, dnz := f.DispersionPMEParameters()
		ev.dspec, err = PlanGrid(
			f.EwaldTolerance(), f.Cutoff(),
			box.A[0], box.B[1], box.C[2], maxFFTPrime,
			GridSpec{Alpha: dalpha, Nx: dnx, Ny: dny, Nz: dnz},
		)
		if err != nil {
			return nil, err
		}
		ev.dmoduli = [3][]float64{
			BSplineModuli(ev.dspec.Nx),
			BSplineModuli(ev.dspec.Ny),
			BSplineModuli(ev.dspec.Nz),
		}
		ev.dfft = NewFFT3(ev.dspec.Nx, ev.dspec.Ny, ev.dspec.Nz, workers)
	}

	if err := ev.copyDefinition(f, false); err != nil {
		return nil, err
	}

	for i := 0; i < f.NumGlobalParameters(); i++ {
		g, _ := f.GlobalParameterAt(i)
		ev.globals[g.Name] = g.DefaultValue
	}

	n := ev.nSubsets * spec.size()
	ev.fixed = make([]int64, n)
	ev.grids = make([]complex128, n)
	ev.pot = make([]complex128, n)
	if ev.useDisp {
		dn := ev.nSubsets * ev.dspec.size()
		ev.dfixed = make([]int64, dn)
		ev.dgrids = make([]complex128, dn)
		ev.dpot = make([]complex128, dn)
	}

	ev.lambdaC = make([]float64, ev.nSlices)
	ev.lambdaL = make([]float64, ev.nSlices)
	ev.charge = make([]float64, ev.nParticles)
	ev.coeff = make([]float64, ev.nParticles)
	return ev, nil
}

// copyDefinition snapshots the numeric content of f. With check set,
// it first verifies that f still has the structure the evaluator was
// built for.
func (ev *Evaluator) copyDefinition(f *slicedpme.Force, check bool) error {
	if check {
		if f.NumParticles() != ev.nParticles {
			return fmt.Errorf(
				"particle count changed from %d to %d",
				ev.nParticles, f.NumParticles(),
			)
		}
		if f.NumSubsets() != ev.nSubsets {
			return fmt.Errorf(
				"subset count changed from %d to %d",
				ev.nSubsets, f.NumSubsets(),
			)
		}
		if f.NumExceptions() != len(ev.pairs) {
			return fmt.Errorf(
				"exception count changed from %d to %d",
				len(ev.pairs), f.NumExceptions(),
			)
		}
	}

	offsetPairs := make(map[[2]int]bool)
	for i := 0; i < f.NumExceptionOffsets(); i++ {
		o, _ := f.ExceptionOffsetAt(i)
		e, _ := f.ExceptionAt(o.Exception)
		offsetPairs[orderedPair(e.Particle1, e.Particle2)] = true
	}

	pairs := make([][2]int, f.NumExceptions())
	livePair := make(map[[2]int]bool)
	for i := range pairs {
		e, _ := f.ExceptionAt(i)
		key := orderedPair(e.Particle1, e.Particle2)
		pairs[i] = key
		if e.ChargeProd != 0 || e.Epsilon != 0 || offsetPairs[key] {
			livePair[key] = true
		}
	}
	if check {
		// Fully excluded pairs may move or change freely; pairs that
		// interact (or may, through an offset) must keep their
		// identity, since the direct-space collaborator was built
		// around them.
		for key := range livePair {
			if !ev.livePair[key] {
				return fmt.Errorf(
					"exception between particles %d and %d changed identity",
					key[0], key[1],
				)
			}
		}
		for key := range ev.livePair {
			if !livePair[key] {
				return fmt.Errorf(
					"exception between particles %d and %d changed identity",
					key[0], key[1],
				)
			}
		}
	}

	ev.baseCharge = make([]float64, f.NumParticles())
	ev.baseSigma = make([]float64, f.NumParticles())
	ev.baseEps = make([]float64, f.NumParticles())
	ev.subset = make([]int, f.NumParticles())
	for i := range ev.baseCharge {
		p, _ := f.Particle(i)
		ev.baseCharge[i] = p.Charge
		ev.baseSigma[i] = p.Sigma
		ev.baseEps[i] = p.Epsilon
		ev.subset[i] = p.Subset
	}

	ev.pairs = pairs
	ev.livePair = livePair
	ev.exclusions = make([]exclusionPair, len(pairs))
	for i, key := range pairs {
		ev.exclusions[i] = exclusionPair{
			p1: key[0], p2: key[1],
			sl: slice.Index(ev.subset[key[0]], ev.subset[key[1]]),
		}
	}

	ev.scaling = make([]slicedpme.ScalingParameter, f.NumScalingParameters())
	for i := range ev.scaling {
		ev.scaling[i], _ = f.ScalingParameterAt(i)
	}
	ev.derivNames = f.ScalingParameterDerivativeNames()

	ev.offsets = make(map[int][]slicedpme.ParticleOffset)
	for i := 0; i < f.NumParticleOffsets(); i++ {
		o, _ := f.ParticleOffsetAt(i)
		ev.offsets[o.Particle] = append(ev.offsets[o.Particle], o)
	}

	ev.dirty = true
	return nil
}

// UpdateForce re-reads numeric parameters from f. The structure must
// match the one the evaluator was constructed with.
func (ev *Evaluator) UpdateForce(f *slicedpme.Force) error {
	return ev.copyDefinition(f, true)
}

// PMEParameters reports the Ewald split and mesh actually in use.
func (ev *Evaluator) PMEParameters() GridSpec { return ev.spec }

// DispersionPMEParameters reports the dispersion mesh, or a zero spec
// when dispersion is off.
func (ev *Evaluator) DispersionPMEParameters() GridSpec { return ev.dspec }

func orderedPair(p1, p2 int) [2]int {
	if p1 > p2 {
		p1, p2 = p2, p1
	}
	return [2]int{p1, p2}
}

// refresh rebuilds the derived parameter state from the current
// global values.
func (ev *Evaluator) refresh() {
	for s := 0; s < ev.nSlices; s++ {
		ev.lambdaC[s] = 1
		ev.lambdaL[s] = 1
	}
	for _, sp := range ev.scaling {
		v := ev.globals[sp.Parameter]
		s := slice.Index(sp.Subset1, sp.Subset2)
		if sp.IncludeCoulomb {
			ev.lambdaC[s] = v
		}
		if sp.IncludeLJ {
			ev.lambdaL[s] = v
		}
	}

	copy(ev.charge, ev.baseCharge)
	for i := range ev.coeff {
		ev.coeff[i] = dispersionCoefficient(ev.baseSigma[i], ev.baseEps[i])
	}
	for i, offs := range ev.offsets {
		sigma, eps := ev.baseSigma[i], ev.baseEps[i]
		for _, o := range offs {
			v := ev.globals[o.Parameter]
			ev.charge[i] += v * o.ChargeScale
			sigma += v * o.SigmaScale
			eps += v * o.EpsilonScale
		}
		ev.coeff[i] = dispersionCoefficient(sigma, eps)
	}

	ev.selfC = selfEnergies(ev.charge, ev.subset, ev.spec.Alpha, ev.nSubsets)
	if ev.useDisp {
		ev.selfL = dispersionSelfEnergies(
			ev.coeff, ev.subset, ev.dspec.Alpha, ev.nSubsets,
		)
	}
	ev.dirty = false
}

func dispersionCoefficient(sigma, eps float64) float64 {
	if eps <= 0 {
		return 0
	}
	s3 := sigma * sigma * sigma
	return 2 * s3 * math.Sqrt(eps)
}

// Execute runs the reciprocal-space pipeline for one configuration.
// Forces are accumulated into the forces slice; energy and the
// requested scaling parameter derivatives are returned when asked
// for. params overrides global parameter values; omitted names keep
// their current value.
func (ev *Evaluator) Execute(
	pos, forces [][3]float64, opts Options, params map[string]float64,
) (float64, map[string]float64, error) {
	if len(pos) != ev.nParticles {
		return 0, nil, fmt.Errorf(
			"got %d positions for %d particles", len(pos), ev.nParticles,
		)
	}
	if opts.IncludeForces && len(forces) != ev.nParticles {
		return 0, nil, fmt.Errorf(
			"got %d force slots for %d particles", len(forces), ev.nParticles,
		)
	}
	for name, v := range params {
		old, ok := ev.globals[name]
		if !ok {
			return 0, nil, fmt.Errorf("unknown global parameter %q", name)
		}
		if v != old {
			ev.globals[name] = v
			ev.dirty = true
		}
	}
	if ev.dirty {
		ev.refresh()
	}

	rawC := ev.runPipeline(
		pos, forces, opts, ev.charge, ev.spec, ev.moduli, ev.fft,
		ev.fixed, ev.grids, ev.pot, ev.lambdaC,
		coulombKernel(ev.spec.Alpha, ev.box.Volume()), false,
	)
	for s := 0; s < ev.nSubsets; s++ {
		rawC[slice.Diagonal(s)] += ev.selfC[s]
	}
	exC := coulombExclusions(
		ev.exclusions, pos, ev.charge, ev.box, ev.spec.Alpha,
		ev.lambdaC, ev.nSlices, ev.forceSink(forces, opts),
	)
	for s, v := range exC {
		rawC[s] += v
	}

	var rawL []float64
	if ev.useDisp {
		rawL = ev.runPipeline(
			pos, forces, opts, ev.coeff, ev.dspec, ev.dmoduli, ev.dfft,
			ev.dfixed, ev.dgrids, ev.dpot, ev.lambdaL,
			dispersionKernel(ev.dspec.Alpha, ev.box.Volume()), true,
		)
		for s := 0; s < ev.nSubsets; s++ {
			rawL[slice.Diagonal(s)] += ev.selfL[s]
		}
		exL := dispersionExclusions(
			ev.exclusions, pos, ev.coeff, ev.box, ev.dspec.Alpha,
			ev.lambdaL, ev.nSlices, ev.forceSink(forces, opts),
		)
		for s, v := range exL {
			rawL[s] += v
		}
	}

	ev.lastRawC = rawC
	ev.lastRawL = rawL

	energy := 0.0
	var derivs map[string]float64
	if opts.IncludeEnergy {
		for s := 0; s < ev.nSlices; s++ {
			energy += ev.lambdaC[s] * rawC[s]
			if ev.useDisp {
				energy += ev.lambdaL[s] * rawL[s]
			}
		}

		if len(ev.derivNames) > 0 {
			derivs = make(map[string]float64, len(ev.derivNames))
			for _, name := range ev.derivNames {
				derivs[name] = 0
			}
			for _, sp := range ev.scaling {
				if _, ok := derivs[sp.Parameter]; !ok {
					continue
				}
				s := slice.Index(sp.Subset1, sp.Subset2)
				if sp.IncludeCoulomb {
					derivs[sp.Parameter] += rawC[s]
				}
				if sp.IncludeLJ && ev.useDisp {
					derivs[sp.Parameter] += rawL[s]
				}
			}
		}
	}
	return energy, derivs, nil
}

// runPipeline is one clear/spread/transform/convolve/transform/gather
// pass over a grid stack. It returns the raw per-slice energies.
func (ev *Evaluator) runPipeline(
	pos, forces [][3]float64, opts Options, val []float64,
	spec GridSpec, moduli [3][]float64, fft *FFT3,
	fixed []int64, grids, pot []complex128, lambdas []float64,
	kernel func(m2 float64) float64, includeZero bool,
) []float64 {
	for i := range fixed {
		fixed[i] = 0
	}
	spread(pos, val, ev.subset, ev.box, spec, fixed, ev.workers)
	unfix(fixed, grids, ev.workers)
	fft.Forward(grids, ev.nSubsets)
	raw := convolve(
		grids, pot, spec, ev.box, moduli, lambdas, ev.nSubsets,
		kernel, includeZero, ev.workers,
	)
	if opts.IncludeForces {
		// The energy is quadratic in the grid values, so its gradient
		// with respect to each grid point is exactly the unnormalized
		// inverse transform of the kernel-weighted grids. No 1/N
		// appears anywhere.
		fft.Inverse(pot, ev.nSubsets)
		interpolate(
			pos, val, ev.subset, ev.box, spec, pot, forces, ev.workers,
		)
	}
	return raw
}

// RawSliceEnergies reports the unscaled per-slice Coulomb and
// dispersion energies of the most recent Execute call. The dispersion
// slice is nil when dispersion is off.
func (ev *Evaluator) RawSliceEnergies() (coulomb, dispersion []float64) {
	return ev.lastRawC, ev.lastRawL
}

// SliceLambdas reports the per-slice scaling factors currently in
// effect for each channel.
func (ev *Evaluator) SliceLambdas() (coulomb, lj []float64) {
	if ev.dirty {
		ev.refresh()
	}
	return ev.lambdaC, ev.lambdaL
}

// forceSink returns the caller's force slice when forces are wanted
// and a throwaway buffer otherwise, so the correction loops stay
// uniform.
func (ev *Evaluator) forceSink(forces [][3]float64, opts Options) [][3]float64 {
	if opts.IncludeForces {
		return forces
	}
	return make([][3]float64, ev.nParticles)
}
