// Package annotate matches observed feature masses against a reference table
// and turns the matches into ranked formula predictions.
package annotate

import (
	"fmt"

	"github.com/ChrisMcGann/vkmz/pkg/config"
	"github.com/ChrisMcGann/vkmz/pkg/core"
)

// Adjuster converts an observed m/z into the mass compared against the
// reference table.
type Adjuster struct {
	AdductMass    float64
	ChargeScaling bool // multiply by charge: z*(mz -/+ adduct)
	Neutral       bool // inputs are already neutral masses
}

// NewAdjuster returns the adjuster described by cfg.
func NewAdjuster(cfg config.Config) Adjuster {
	return Adjuster{
		AdductMass:    cfg.AdductMass,
		ChargeScaling: cfg.ChargeScaling,
		Neutral:       cfg.Neutral,
	}
}

// Adjust removes the ionization adduct: it is subtracted in positive mode and
// added back in negative mode. A charge below one is treated as one.
func (a Adjuster) Adjust(mz float64, polarity core.Polarity, charge int) (float64, error) {
	var mass float64
	switch polarity {
	case core.Positive:
		mass = mz - a.AdductMass
	case core.Negative:
		mass = mz + a.AdductMass
	default:
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidPolarity, polarity)
	}

	if a.Neutral {
		return mz, nil
	}
	if a.ChargeScaling && charge > 1 {
		mass *= float64(charge)
	}
	return mass, nil
}
