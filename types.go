package slicedpme

// Particle holds the interaction parameters of one particle. Charge
// is in units of e, Sigma in nm, Epsilon in kJ/mol. Subset selects
// the slice grid the particle's reciprocal-space contribution lands
// on.
type Particle struct {
	Charge         float64
	Sigma, Epsilon float64
	Subset         int
}

// Exception overrides the combination rule for one particle pair. A
// ChargeProd and Epsilon of exactly zero marks a fully excluded pair:
// it contributes no direct-space interaction, but its reciprocal-space
// part must still be subtracted.
type Exception struct {
	Particle1, Particle2 int
	ChargeProd           float64
	Sigma, Epsilon       float64
}

// GlobalParameter is a named context-wide scalar. Scaling parameters
// and offsets refer to globals by name.
type GlobalParameter struct {
	Name         string
	DefaultValue float64
}

// ScalingParameter couples a global parameter to one slice: the
// slice's Coulomb (and optionally Lennard-Jones) energy and forces
// are multiplied by the parameter's current value.
type ScalingParameter struct {
	Parameter        string
	Subset1, Subset2 int
	IncludeCoulomb   bool
	IncludeLJ        bool
}

// ParticleOffset adds scale*parameter to a particle's base charge,
// sigma, and epsilon. Multiple offsets on one particle sum.
type ParticleOffset struct {
	Parameter                             string
	Particle                              int
	ChargeScale, SigmaScale, EpsilonScale float64
}

// ExceptionOffset is the exception analog of ParticleOffset,
// targeting chargeProd, sigma, and epsilon.
type ExceptionOffset struct {
	Parameter                                 string
	Exception                                 int
	ChargeProdScale, SigmaScale, EpsilonScale float64
}
