// Package config holds the immutable annotation settings and their layered
// loading from flags, environment and a YAML file.
package config

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/ChrisMcGann/vkmz/pkg/core"
)

var (
	// ErrInvalidTolerance is returned for an unknown tolerance kind or a non-positive value.
	ErrInvalidTolerance = errors.New("invalid tolerance")
	// ErrInvalidParallelism is returned when parallelism is below one.
	ErrInvalidParallelism = errors.New("parallelism must be at least 1")
)

// ToleranceKind selects how a tolerance value is interpreted.
type ToleranceKind string

const (
	// Absolute tolerances are a fixed window in daltons.
	Absolute ToleranceKind = "absolute"
	// Relative tolerances are a fraction of the target mass (3e-6 is 3 ppm).
	Relative ToleranceKind = "relative"
)

// Tolerance is the allowed mass window for declaring a match.
type Tolerance struct {
	Kind  ToleranceKind `yaml:"kind" mapstructure:"kind"`
	Value float64       `yaml:"value" mapstructure:"value"`
}

// Window returns the half-width of the match window around target.
func (t Tolerance) Window(target float64) float64 {
	if t.Kind == Relative {
		return math.Abs(target * t.Value)
	}
	return t.Value
}

func (t Tolerance) String() string {
	if t.Kind == Relative {
		return fmt.Sprintf("%g ppm", core.RoundFloat(t.Value*1e6, 6))
	}
	return fmt.Sprintf("%g Da", t.Value)
}

// Config is the full set of annotation settings. It is built once and passed
// by value; nothing mutates it after Validate.
type Config struct {
	Polarity      core.Polarity `yaml:"polarity" mapstructure:"polarity"`
	Tolerance     Tolerance     `yaml:"tolerance" mapstructure:"tolerance"`
	Parallelism   int           `yaml:"parallelism" mapstructure:"parallelism"`
	AdductMass    float64       `yaml:"adduct_mass" mapstructure:"adduct_mass"`
	ChargeScaling bool          `yaml:"charge_scaling" mapstructure:"charge_scaling"`
	Neutral       bool          `yaml:"neutral" mapstructure:"neutral"`
	AbsoluteDelta bool          `yaml:"absolute_delta" mapstructure:"absolute_delta"`
	ExtraRatios   []string      `yaml:"ratios" mapstructure:"ratios"`
	Alternates    bool          `yaml:"alternates" mapstructure:"alternates"`
}

// Default returns the built-in configuration: both polarities, 3 ppm, one
// worker per CPU and a proton adduct scaled by charge.
func Default() Config {
	return Config{
		Polarity:      core.Both,
		Tolerance:     Tolerance{Kind: Relative, Value: 3e-6},
		Parallelism:   runtime.NumCPU(),
		AdductMass:    core.ProtonMass,
		ChargeScaling: true,
	}
}

var elementSymbol = regexp.MustCompile(`^[A-Z][a-z]?$`)

// Validate checks the configuration and normalizes the polarity spelling.
func (c Config) Validate() (Config, error) {
	p, err := core.ParsePolarity(string(c.Polarity))
	if err != nil {
		return c, err
	}
	c.Polarity = p

	switch c.Tolerance.Kind {
	case Absolute, Relative:
	default:
		return c, fmt.Errorf("%w: unknown kind %q", ErrInvalidTolerance, c.Tolerance.Kind)
	}
	if math.IsNaN(c.Tolerance.Value) || math.IsInf(c.Tolerance.Value, 0) || c.Tolerance.Value <= 0 {
		return c, fmt.Errorf("%w: value %v must be positive", ErrInvalidTolerance, c.Tolerance.Value)
	}
	if c.Tolerance.Kind == Relative && c.Tolerance.Value >= 1 {
		return c, fmt.Errorf("%w: relative value %v must be a fraction below 1", ErrInvalidTolerance, c.Tolerance.Value)
	}

	if c.Parallelism < 1 {
		return c, fmt.Errorf("%w: got %d", ErrInvalidParallelism, c.Parallelism)
	}
	if math.IsNaN(c.AdductMass) || math.IsInf(c.AdductMass, 0) || c.AdductMass < 0 {
		return c, fmt.Errorf("adduct mass must be a non-negative number, got %v", c.AdductMass)
	}

	ratios := make([]string, 0, len(c.ExtraRatios))
	for _, el := range c.ExtraRatios {
		el = strings.TrimSpace(el)
		if el == "" {
			continue
		}
		if !elementSymbol.MatchString(el) {
			return c, fmt.Errorf("invalid ratio element %q", el)
		}
		ratios = append(ratios, el)
	}
	c.ExtraRatios = ratios

	return c, nil
}

// Viper keys
const (
	KeyPolarity       = "polarity"
	KeyToleranceKind  = "tolerance.kind"
	KeyToleranceValue = "tolerance.value"
	KeyParallelism    = "parallelism"
	KeyAdductMass     = "adduct_mass"
	KeyChargeScaling  = "charge_scaling"
	KeyNeutral        = "neutral"
	KeyAbsoluteDelta  = "absolute_delta"
	KeyRatios         = "ratios"
	KeyAlternates     = "alternates"
)

// SetDefaults registers Default() as the lowest configuration layer.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyPolarity, string(d.Polarity))
	v.SetDefault(KeyToleranceKind, string(d.Tolerance.Kind))
	v.SetDefault(KeyToleranceValue, d.Tolerance.Value)
	v.SetDefault(KeyParallelism, d.Parallelism)
	v.SetDefault(KeyAdductMass, d.AdductMass)
	v.SetDefault(KeyChargeScaling, d.ChargeScaling)
	v.SetDefault(KeyNeutral, d.Neutral)
	v.SetDefault(KeyAbsoluteDelta, d.AbsoluteDelta)
	v.SetDefault(KeyRatios, d.ExtraRatios)
	v.SetDefault(KeyAlternates, d.Alternates)
}

// FromViper resolves the effective configuration from v (flags, environment,
// config file and defaults, in viper's precedence order) and validates it.
func FromViper(v *viper.Viper) (Config, error) {
	c := Default()
	if v.IsSet(KeyPolarity) {
		c.Polarity = core.Polarity(v.GetString(KeyPolarity))
	}
	if v.IsSet(KeyToleranceKind) {
		c.Tolerance.Kind = ToleranceKind(strings.ToLower(v.GetString(KeyToleranceKind)))
	}
	if v.IsSet(KeyToleranceValue) {
		c.Tolerance.Value = v.GetFloat64(KeyToleranceValue)
	}
	if v.IsSet(KeyParallelism) {
		c.Parallelism = v.GetInt(KeyParallelism)
	}
	if v.IsSet(KeyAdductMass) {
		c.AdductMass = v.GetFloat64(KeyAdductMass)
	}
	if v.IsSet(KeyChargeScaling) {
		c.ChargeScaling = v.GetBool(KeyChargeScaling)
	}
	if v.IsSet(KeyNeutral) {
		c.Neutral = v.GetBool(KeyNeutral)
	}
	if v.IsSet(KeyAbsoluteDelta) {
		c.AbsoluteDelta = v.GetBool(KeyAbsoluteDelta)
	}
	if v.IsSet(KeyRatios) {
		c.ExtraRatios = v.GetStringSlice(KeyRatios)
	}
	if v.IsSet(KeyAlternates) {
		c.Alternates = v.GetBool(KeyAlternates)
	}

	return c.Validate()
}
