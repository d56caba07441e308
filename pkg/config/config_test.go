package config

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/vkmz/pkg/core"
)

func TestDefaultIsValid(t *testing.T) {
	cfg, err := Default().Validate()
	require.NoError(t, err)
	assert.Equal(t, core.Both, cfg.Polarity)
	assert.Equal(t, Relative, cfg.Tolerance.Kind)
	assert.GreaterOrEqual(t, cfg.Parallelism, 1)
	assert.InDelta(t, 1.007276, cfg.AdductMass, 1e-6)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"pos shorthand", func(c *Config) { c.Polarity = "pos" }, nil},
		{"bad polarity", func(c *Config) { c.Polarity = "neutral" }, core.ErrInvalidPolarity},
		{"bad tolerance kind", func(c *Config) { c.Tolerance.Kind = "ppb" }, ErrInvalidTolerance},
		{"zero tolerance", func(c *Config) { c.Tolerance.Value = 0 }, ErrInvalidTolerance},
		{"NaN tolerance", func(c *Config) { c.Tolerance.Value = math.NaN() }, ErrInvalidTolerance},
		{"relative above one", func(c *Config) { c.Tolerance.Value = 2 }, ErrInvalidTolerance},
		{"absolute above one", func(c *Config) { c.Tolerance = Tolerance{Kind: Absolute, Value: 2} }, nil},
		{"zero parallelism", func(c *Config) { c.Parallelism = 0 }, ErrInvalidParallelism},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			_, err := c.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}
}

func TestValidateNormalizesRatios(t *testing.T) {
	c := Default()
	c.ExtraRatios = []string{" S", "", "P "}
	got, err := c.Validate()
	require.NoError(t, err)
	assert.Equal(t, []string{"S", "P"}, got.ExtraRatios)

	c.ExtraRatios = []string{"sulfur"}
	_, err = c.Validate()
	assert.Error(t, err)
}

func TestToleranceWindow(t *testing.T) {
	abs := Tolerance{Kind: Absolute, Value: 0.01}
	assert.Equal(t, 0.01, abs.Window(180))

	rel := Tolerance{Kind: Relative, Value: 5e-6}
	assert.InDelta(t, 0.0009, rel.Window(180), 1e-12)
	assert.Equal(t, "5 ppm", rel.String())
	assert.Equal(t, "0.01 Da", abs.String())
}

func TestFromViperLayers(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
polarity: negative
tolerance:
  kind: absolute
  value: 0.01
ratios: [S, P]
parallelism: 2
`)))

	v.SetEnvPrefix("VKMZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	t.Setenv("VKMZ_PARALLELISM", "7")

	v.Set(KeyAdductMass, 1.0073)

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, core.Negative, cfg.Polarity)
	assert.Equal(t, Tolerance{Kind: Absolute, Value: 0.01}, cfg.Tolerance)
	assert.Equal(t, []string{"S", "P"}, cfg.ExtraRatios)
	assert.Equal(t, 7, cfg.Parallelism, "environment overrides file")
	assert.Equal(t, 1.0073, cfg.AdductMass, "explicit set overrides everything")
	assert.True(t, cfg.ChargeScaling, "default kept")
}

func TestFromViperRejectsBadPolarity(t *testing.T) {
	v := viper.New()
	v.Set(KeyPolarity, "sideways")
	_, err := FromViper(v)
	assert.ErrorIs(t, err, core.ErrInvalidPolarity)
}
