package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidPolarity is returned for any polarity other than positive or negative
// (or "both" where a fan-out selection is accepted).
var ErrInvalidPolarity = errors.New("invalid polarity")

// Polarity is the ionization mode a feature was observed in.
type Polarity string

const (
	Positive Polarity = "positive"
	Negative Polarity = "negative"
	// Both is only meaningful as a dispatch selection, never on a feature.
	Both Polarity = "both"
)

// ParsePolarity normalizes the accepted spellings of an ionization mode.
func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "pos", "+":
		return Positive, nil
	case "negative", "neg", "-":
		return Negative, nil
	case "both":
		return Both, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolarity, s)
	}
}

// IsIonMode reports whether p is a concrete ionization mode.
func (p Polarity) IsIonMode() bool {
	return p == Positive || p == Negative
}

// ReferenceRecord is a known compound from a reference database.
type ReferenceRecord struct {
	Formula  string
	Mass     float64 // monoisotopic neutral mass
	Elements ElementCount
}

// CanonicalFormula returns the Hill-notation formula derived from the element
// counts, falling back to the formula as loaded.
func (r ReferenceRecord) CanonicalFormula() string {
	if h := r.Elements.Hill(); h != "" {
		return h
	}
	return r.Formula
}

// RawFeature is one observation of a feature in one sample, as read from input.
type RawFeature struct {
	Sample    string
	Name      string
	Polarity  Polarity
	MZ        float64
	RT        float64
	Intensity float64
	Charge    int // defaults to 1 when unset
}

// EffectiveCharge returns the charge, treating zero as singly charged.
func (f RawFeature) EffectiveCharge() int {
	if f.Charge == 0 {
		return 1
	}
	return f.Charge
}

// Prediction is a candidate formula assigned to a feature.
type Prediction struct {
	Formula  string
	Mass     float64 // predicted neutral mass
	Delta    float64 // adjusted observed mass minus predicted mass
	Elements ElementCount
	HC       float64
	OC       float64
	NC       float64
	Extra    map[string]float64 // configured X/C ratios keyed by element
}

// Equivalent reports whether two predictions name the same candidate with the
// same mass error.
func (p Prediction) Equivalent(other Prediction) bool {
	return p.Formula == other.Formula &&
		p.Mass == other.Mass &&
		p.Delta == other.Delta &&
		p.Elements.Equal(other.Elements)
}

// ValidationError represents an error found during feature validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Validate checks that a raw feature can be annotated.
func (f *RawFeature) Validate() error {
	var errs []string

	if f.Sample == "" {
		errs = append(errs, "sample name is required")
	}
	if f.Name == "" {
		errs = append(errs, "feature name is required")
	}
	if !f.Polarity.IsIonMode() {
		errs = append(errs, fmt.Sprintf("polarity %q must be positive or negative", f.Polarity))
	}
	if math.IsNaN(f.MZ) || math.IsInf(f.MZ, 0) {
		errs = append(errs, "m/z is not finite")
	} else if f.MZ <= 0 {
		errs = append(errs, "m/z must be positive")
	}
	if math.IsNaN(f.RT) || math.IsInf(f.RT, 0) {
		errs = append(errs, "retention time is not finite")
	}
	if math.IsNaN(f.Intensity) || f.Intensity < 0 {
		errs = append(errs, "intensity must be non-negative")
	}
	if f.Charge < 0 {
		errs = append(errs, "charge must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{
			Field:   "Feature " + f.Name,
			Message: strings.Join(errs, "; "),
		}
	}

	return nil
}
