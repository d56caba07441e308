package filter

import (
	"testing"

	"github.com/ChrisMcGann/vkmz/pkg/core"
)

func feat(sample, name string, rt, intensity float64) core.RawFeature {
	return core.RawFeature{Sample: sample, Name: name, Polarity: core.Positive, MZ: 100, RT: rt, Intensity: intensity}
}

func names(features []core.RawFeature) []string {
	out := make([]string, len(features))
	for i, f := range features {
		out[i] = f.Name
	}
	return out
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestApply(t *testing.T) {
	input := []core.RawFeature{
		feat("S1", "a", 10, 1000),
		feat("S1", "b", 20, 50),
		feat("S1", "c", 30, 400),
		feat("S2", "d", 40, 10),
		feat("S2", "e", 50, 5),
	}

	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{"no filters", Config{}, []string{"a", "b", "c", "d", "e"}},
		{"min intensity", Config{MinIntensity: 50}, []string{"a", "b", "c"}},
		{"rt window", Config{RTMin: 20, RTMax: 40}, []string{"b", "c", "d"}},
		{"rt min only", Config{RTMin: 35}, []string{"d", "e"}},
		{"samples", Config{Samples: []string{"S2"}}, []string{"d", "e"}},
		{"cutoff per sample", Config{IntensityCutoff: 30}, []string{"a", "c", "d", "e"}},
		{"top n per sample keeps order", Config{TopN: 1}, []string{"a", "d"}},
		{"top n 2", Config{TopN: 2}, []string{"a", "c", "d", "e"}},
		{"combined", Config{RTMin: 15, TopN: 1}, []string{"c", "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := names(tt.cfg.Apply(input))
			if !equalNames(got, tt.want) {
				t.Errorf("Apply() = %v, want %v", got, tt.want)
			}
		})
	}

	if input[0].Name != "a" || len(input) != 5 {
		t.Error("Apply modified its input")
	}
}

func TestIsZero(t *testing.T) {
	if !(&Config{}).IsZero() {
		t.Error("empty config should be zero")
	}
	if (&Config{TopN: 3}).IsZero() {
		t.Error("config with TopN should not be zero")
	}
}

func TestRemoveZeroIntensity(t *testing.T) {
	input := []core.RawFeature{
		feat("S1", "a", 1, 0),
		feat("S1", "b", 1, 12),
		feat("S1", "c", 1, -3),
	}
	got := names(RemoveZeroIntensity(input))
	if !equalNames(got, []string{"b"}) {
		t.Errorf("RemoveZeroIntensity() = %v, want [b]", got)
	}
}
