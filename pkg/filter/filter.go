// Package filter provides feature filtering applied before annotation
package filter

import (
	"sort"

	"github.com/ChrisMcGann/vkmz/pkg/core"
)

// Config holds filtering configuration
type Config struct {
	MinIntensity    float64  // Keep only features at or above this intensity (0 = no minimum)
	IntensityCutoff float64  // Keep only features above this % of the sample's base feature (0 = no cutoff)
	TopN            int      // Keep only the N most intense features per sample (0 = no limit)
	RTMin           float64  // Keep only features eluting at or after this time (0 = no bound)
	RTMax           float64  // Keep only features eluting at or before this time (0 = no bound)
	Samples         []string // Keep only these samples (nil = all)
}

// IsZero reports whether c filters nothing.
func (c *Config) IsZero() bool {
	return c.MinIntensity == 0 && c.IntensityCutoff == 0 && c.TopN == 0 &&
		c.RTMin == 0 && c.RTMax == 0 && len(c.Samples) == 0
}

// Apply applies all configured filters and returns the kept features in
// input order. The input slice is not modified.
func (c *Config) Apply(features []core.RawFeature) []core.RawFeature {
	kept := make([]core.RawFeature, 0, len(features))
	for _, f := range features {
		if c.keep(f) {
			kept = append(kept, f)
		}
	}

	// Per-sample filters run after the per-feature ones
	if c.IntensityCutoff > 0 {
		kept = c.filterByIntensity(kept)
	}
	if c.TopN > 0 {
		kept = c.filterTopN(kept)
	}

	return kept
}

func (c *Config) keep(f core.RawFeature) bool {
	if c.MinIntensity > 0 && f.Intensity < c.MinIntensity {
		return false
	}
	if c.RTMin > 0 && f.RT < c.RTMin {
		return false
	}
	if c.RTMax > 0 && f.RT > c.RTMax {
		return false
	}
	if len(c.Samples) > 0 && !contains(c.Samples, f.Sample) {
		return false
	}
	return true
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// filterByIntensity removes features below the intensity cutoff percentage
// of the most intense feature in the same sample
func (c *Config) filterByIntensity(features []core.RawFeature) []core.RawFeature {
	maxIntensity := make(map[string]float64)
	for _, f := range features {
		if f.Intensity > maxIntensity[f.Sample] {
			maxIntensity[f.Sample] = f.Intensity
		}
	}

	var filtered []core.RawFeature
	for _, f := range features {
		threshold := (c.IntensityCutoff / 100.0) * maxIntensity[f.Sample]
		if f.Intensity >= threshold {
			filtered = append(filtered, f)
		}
	}
	return filtered
}

// filterTopN keeps only the N most intense features of each sample
func (c *Config) filterTopN(features []core.RawFeature) []core.RawFeature {
	bySample := make(map[string][]int)
	for i, f := range features {
		bySample[f.Sample] = append(bySample[f.Sample], i)
	}

	keep := make([]bool, len(features))
	for _, idx := range bySample {
		sort.SliceStable(idx, func(i, j int) bool {
			return features[idx[i]].Intensity > features[idx[j]].Intensity
		})
		if len(idx) > c.TopN {
			idx = idx[:c.TopN]
		}
		for _, i := range idx {
			keep[i] = true
		}
	}

	var filtered []core.RawFeature
	for i, f := range features {
		if keep[i] {
			filtered = append(filtered, f)
		}
	}
	return filtered
}

// RemoveZeroIntensity removes features with zero or negative intensity
func RemoveZeroIntensity(features []core.RawFeature) []core.RawFeature {
	var filtered []core.RawFeature
	for _, f := range features {
		if f.Intensity > 0 {
			filtered = append(filtered, f)
		}
	}
	return filtered
}
