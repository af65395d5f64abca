package slicedpme

import (
	"fmt"

	"slicedpme/slice"
)

func (f *Force) globalIndex(name string) (int, error) {
	for i := range f.globals {
		if f.globals[i].Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("unknown global parameter %q", name)
}

// AddGlobalParameter declares a named parameter that scaling
// parameters and offsets may reference, with its default value.
func (f *Force) AddGlobalParameter(name string, defaultValue float64) (int, error) {
	if name == "" {
		return -1, fmt.Errorf("global parameter name must not be empty")
	}
	if _, err := f.globalIndex(name); err == nil {
		return -1, fmt.Errorf("global parameter %q already defined", name)
	}
	f.globals = append(f.globals, GlobalParameter{name, defaultValue})
	return len(f.globals) - 1, nil
}

func (f *Force) NumGlobalParameters() int { return len(f.globals) }

func (f *Force) GlobalParameterAt(i int) (GlobalParameter, error) {
	if i < 0 || i >= len(f.globals) {
		return GlobalParameter{}, fmt.Errorf(
			"global parameter index %d out of range [0, %d)", i, len(f.globals),
		)
	}
	return f.globals[i], nil
}

func (f *Force) SetGlobalParameterDefault(name string, value float64) error {
	i, err := f.globalIndex(name)
	if err != nil {
		return err
	}
	f.globals[i].DefaultValue = value
	return nil
}

// AddScalingParameter binds an existing global parameter to the slice
// {subset1, subset2} so its current value multiplies that slice's
// Coulomb and/or Lennard-Jones contribution. Each slice admits at
// most one scaling parameter per interaction channel.
func (f *Force) AddScalingParameter(
	name string, subset1, subset2 int, includeCoulomb, includeLJ bool,
) (int, error) {
	if _, err := f.globalIndex(name); err != nil {
		return -1, err
	}
	if err := f.checkSubset(subset1); err != nil {
		return -1, err
	}
	if err := f.checkSubset(subset2); err != nil {
		return -1, err
	}
	if !includeCoulomb && !includeLJ {
		return -1, fmt.Errorf(
			"scaling parameter %q applies to neither interaction channel", name,
		)
	}
	s := slice.Index(subset1, subset2)
	for _, sp := range f.scaling {
		if slice.Index(sp.Subset1, sp.Subset2) != s {
			continue
		}
		if (includeCoulomb && sp.IncludeCoulomb) || (includeLJ && sp.IncludeLJ) {
			return -1, fmt.Errorf(
				"a scaling parameter has already been defined for slice (%d, %d)",
				subset1, subset2,
			)
		}
	}
	f.scaling = append(f.scaling, ScalingParameter{
		Parameter: name, Subset1: subset1, Subset2: subset2,
		IncludeCoulomb: includeCoulomb, IncludeLJ: includeLJ,
	})
	return len(f.scaling) - 1, nil
}

func (f *Force) NumScalingParameters() int { return len(f.scaling) }

func (f *Force) ScalingParameterAt(i int) (ScalingParameter, error) {
	if i < 0 || i >= len(f.scaling) {
		return ScalingParameter{}, fmt.Errorf(
			"scaling parameter index %d out of range [0, %d)", i, len(f.scaling),
		)
	}
	return f.scaling[i], nil
}

// AddScalingParameterDerivative requests that the derivative of the
// energy with respect to the named scaling parameter be computed.
func (f *Force) AddScalingParameterDerivative(name string) error {
	idx := -1
	for i, sp := range f.scaling {
		if sp.Parameter == name {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("unknown scaling parameter %q", name)
	}
	for _, d := range f.scalingDerivs {
		if f.scaling[d].Parameter == name {
			return fmt.Errorf(
				"derivative of scaling parameter %q was already requested", name,
			)
		}
	}
	f.scalingDerivs = append(f.scalingDerivs, idx)
	return nil
}

func (f *Force) NumScalingParameterDerivatives() int { return len(f.scalingDerivs) }

// ScalingParameterDerivativeNames lists the requested derivatives in
// the order they were added.
func (f *Force) ScalingParameterDerivativeNames() []string {
	names := make([]string, len(f.scalingDerivs))
	for i, d := range f.scalingDerivs {
		names[i] = f.scaling[d].Parameter
	}
	return names
}

// AddParticleOffset makes a particle's charge, sigma, and epsilon
// depend linearly on a global parameter's current value.
func (f *Force) AddParticleOffset(o ParticleOffset) (int, error) {
	if _, err := f.globalIndex(o.Parameter); err != nil {
		return -1, err
	}
	if err := f.checkParticle(o.Particle); err != nil {
		return -1, err
	}
	f.particleOffsets = append(f.particleOffsets, o)
	return len(f.particleOffsets) - 1, nil
}

func (f *Force) NumParticleOffsets() int { return len(f.particleOffsets) }

func (f *Force) ParticleOffsetAt(i int) (ParticleOffset, error) {
	if i < 0 || i >= len(f.particleOffsets) {
		return ParticleOffset{}, fmt.Errorf(
			"particle offset index %d out of range [0, %d)",
			i, len(f.particleOffsets),
		)
	}
	return f.particleOffsets[i], nil
}

// AddExceptionOffset is the exception analog of AddParticleOffset.
func (f *Force) AddExceptionOffset(o ExceptionOffset) (int, error) {
	if _, err := f.globalIndex(o.Parameter); err != nil {
		return -1, err
	}
	if o.Exception < 0 || o.Exception >= len(f.exceptions) {
		return -1, fmt.Errorf(
			"exception index %d out of range [0, %d)",
			o.Exception, len(f.exceptions),
		)
	}
	f.exceptionOffsets = append(f.exceptionOffsets, o)
	return len(f.exceptionOffsets) - 1, nil
}

func (f *Force) NumExceptionOffsets() int { return len(f.exceptionOffsets) }

func (f *Force) ExceptionOffsetAt(i int) (ExceptionOffset, error) {
	if i < 0 || i >= len(f.exceptionOffsets) {
		return ExceptionOffset{}, fmt.Errorf(
			"exception offset index %d out of range [0, %d)",
			i, len(f.exceptionOffsets),
		)
	}
	return f.exceptionOffsets[i], nil
}
