/*
package direct evaluates the direct-space part of the exceptions of
a sliced PME force: the explicitly parameterized pair interactions
that replace the mesh treatment for bonded neighbors. Fully excluded
pairs carry no direct term; their reciprocal-space cancellation lives
in slicedpme/recip.
*/
package direct

import (
	"fmt"
	"math"

	"slicedpme"
	"slicedpme/slice"
)

const (
	one4PiEps0 = 138.935456

	// minDistance substitutes for the separation of coincident
	// interacting pairs, which would otherwise produce infinities.
	minDistance = 1e-6
)

// Options selects which outputs one Execute call produces.
type Options struct {
	IncludeEnergy bool
	IncludeForces bool
}

type pairTerm struct {
	p1, p2         int
	chargeProd     float64
	sigma, epsilon float64
	sl             int
	offsets        []slicedpme.ExceptionOffset
}

// Evaluator computes exception energies and forces. Construction
// freezes the pair list and parameter structure; the Ewald splitting
// alpha must match the reciprocal-space evaluator it complements.
type Evaluator struct {
	box      *slicedpme.Box
	alpha    float64
	periodic bool

	nParticles int
	nSlices    int
	pairs      []pairTerm

	scaling    []slicedpme.ScalingParameter
	derivNames []string
	globals    map[string]float64
	dirty      bool

	lambdaC []float64
	lambdaL []float64

	lastRawC []float64
	lastRawL []float64
	// Effective pair parameters after offsets.
	chargeProd []float64
	sigma      []float64
	epsilon    []float64
}

// NewEvaluator snapshots the interacting exceptions of f.
func NewEvaluator(f *slicedpme.Force, box *slicedpme.Box, alpha float64) (*Evaluator, error) {
	if alpha <= 0 {
		return nil, fmt.Errorf("ewald alpha %g is not positive", alpha)
	}

	ev := &Evaluator{
		box:        box,
		alpha:      alpha,
		periodic:   f.ExceptionsUsePeriodic(),
		nParticles: f.NumParticles(),
		nSlices:    f.NumSlices(),
		globals:    make(map[string]float64),
		dirty:      true,
	}

	offsets := make(map[int][]slicedpme.ExceptionOffset)
	for i := 0; i < f.NumExceptionOffsets(); i++ {
		o, _ := f.ExceptionOffsetAt(i)
		offsets[o.Exception] = append(offsets[o.Exception], o)
	}

	for i := 0; i < f.NumExceptions(); i++ {
		e, _ := f.ExceptionAt(i)
		if e.ChargeProd == 0 && e.Epsilon == 0 && len(offsets[i]) == 0 {
			continue
		}
		p1, _ := f.Particle(e.Particle1)
		p2, _ := f.Particle(e.Particle2)
		ev.pairs = append(ev.pairs, pairTerm{
			p1: e.Particle1, p2: e.Particle2,
			chargeProd: e.ChargeProd,
			sigma:      e.Sigma, epsilon: e.Epsilon,
			sl:      slice.Index(p1.Subset, p2.Subset),
			offsets: offsets[i],
		})
	}

	ev.scaling = make([]slicedpme.ScalingParameter, f.NumScalingParameters())
	for i := range ev.scaling {
		ev.scaling[i], _ = f.ScalingParameterAt(i)
	}
	ev.derivNames = f.ScalingParameterDerivativeNames()
	for i := 0; i < f.NumGlobalParameters(); i++ {
		g, _ := f.GlobalParameterAt(i)
		ev.globals[g.Name] = g.DefaultValue
	}

	ev.lambdaC = make([]float64, ev.nSlices)
	ev.lambdaL = make([]float64, ev.nSlices)
	ev.chargeProd = make([]float64, len(ev.pairs))
	ev.sigma = make([]float64, len(ev.pairs))
	ev.epsilon = make([]float64, len(ev.pairs))
	return ev, nil
}

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
	for i, pr := range ev.pairs {
		cp, sg, eps := pr.chargeProd, pr.sigma, pr.epsilon
		for _, o := range pr.offsets {
			v := ev.globals[o.Parameter]
			cp += v * o.ChargeProdScale
			sg += v * o.SigmaScale
			eps += v * o.EpsilonScale
		}
		ev.chargeProd[i] = cp
		ev.sigma[i] = sg
		ev.epsilon[i] = eps
	}
	ev.dirty = false
}

// Execute accumulates exception forces into forces and returns the
// energy and the requested scaling parameter derivatives.
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

	rawC := ev.lastRawC
	rawL := ev.lastRawL
	if rawC == nil {
		rawC = make([]float64, ev.nSlices)
		rawL = make([]float64, ev.nSlices)
	}
	for s := 0; s < ev.nSlices; s++ {
		rawC[s], rawL[s] = 0, 0
	}
	for i, pr := range ev.pairs {
		var d [3]float64
		if ev.periodic {
			d = ev.box.MinImage(pos[pr.p1], pos[pr.p2])
		} else {
			for k := 0; k < 3; k++ {
				d[k] = pos[pr.p1][k] - pos[pr.p2][k]
			}
		}
		r2 := d[0]*d[0] + d[1]*d[1] + d[2]*d[2]
		r := math.Sqrt(r2)
		if r < minDistance {
			r = minDistance
			r2 = r * r
		}

		// d(E)/dr / r for each channel, applied with its lambda.
		dCdrOverR, dLdrOverR := 0.0, 0.0

		if cp := ev.chargeProd[i]; cp != 0 {
			ar := ev.alpha * r
			erfcAR := math.Erfc(ar)
			e := one4PiEps0 * cp * erfcAR / r
			rawC[pr.sl] += e
			dCdrOverR = -(e + one4PiEps0*cp*2*ev.alpha/math.SqrtPi*
				math.Exp(-ar*ar)) / r2
		}

		if eps := ev.epsilon[i]; eps != 0 {
			sr2 := ev.sigma[i] * ev.sigma[i] / r2
			sr6 := sr2 * sr2 * sr2
			rawL[pr.sl] += 4 * eps * sr6 * (sr6 - 1)
			dLdrOverR = -24 * eps * sr6 * (2*sr6 - 1) / r2
		}

		if opts.IncludeForces {
			scale := ev.lambdaC[pr.sl]*dCdrOverR + ev.lambdaL[pr.sl]*dLdrOverR
			for k := 0; k < 3; k++ {
				forces[pr.p1][k] -= scale * d[k]
				forces[pr.p2][k] += scale * d[k]
			}
		}
	}

	ev.lastRawC = rawC
	ev.lastRawL = rawL

	energy := 0.0
	var derivs map[string]float64
	if opts.IncludeEnergy {
		for s := 0; s < ev.nSlices; s++ {
			energy += ev.lambdaC[s]*rawC[s] + ev.lambdaL[s]*rawL[s]
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
				if sp.IncludeLJ {
					derivs[sp.Parameter] += rawL[s]
				}
			}
		}
	}
	return energy, derivs, nil
}

// NumPairs reports how many exceptions carry a direct-space term.
func (ev *Evaluator) NumPairs() int { return len(ev.pairs) }

// RawSliceEnergies reports the unscaled per-slice Coulomb and
// Lennard-Jones energies of the most recent Execute call.
func (ev *Evaluator) RawSliceEnergies() (coulomb, lj []float64) {
	return ev.lastRawC, ev.lastRawL
}
