// Package model assembles annotation results into the Sample, Feature,
// Prediction and SampleFeatureIntensity records read by the exporters.
//
// A Model is read-only once built. Accessors hand out copies of anything
// mutable, so one consumer cannot change what another sees.
package model

import (
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/ChrisMcGann/vkmz/pkg/annotate"
	"github.com/ChrisMcGann/vkmz/pkg/core"
)

// ErrEmptyPredictions is returned by Build for a result without predictions.
var ErrEmptyPredictions = errors.New("annotation result has no predictions")

// FeatureKey identifies a physical feature across samples.
type FeatureKey struct {
	Name     string
	Polarity core.Polarity
	MZ       float64
	RT       float64
}

func (k FeatureKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Name, k.Polarity,
		strconv.FormatFloat(k.MZ, 'g', -1, 64), strconv.FormatFloat(k.RT, 'g', -1, 64))
}

// Feature is a detected signal with its ranked formula predictions.
type Feature struct {
	id          int
	key         FeatureKey
	charge      int
	predictions []core.Prediction
}

// ID is the 1-based position of the feature in creation order.
func (f *Feature) ID() int { return f.id }
func (f *Feature) Key() FeatureKey { return f.key }
func (f *Feature) Name() string { return f.key.Name }
func (f *Feature) Polarity() core.Polarity { return f.key.Polarity }
func (f *Feature) MZ() float64 { return f.key.MZ }
func (f *Feature) RT() float64 { return f.key.RT }
func (f *Feature) Charge() int { return f.charge }

// Predictions returns a copy of the predictions, best first.
func (f *Feature) Predictions() []core.Prediction {
	return clonePredictions(f.predictions)
}

// Primary returns the best prediction.
func (f *Feature) Primary() core.Prediction {
	return clonePrediction(f.predictions[0])
}

// Alternates returns every prediction after the primary one.
func (f *Feature) Alternates() []core.Prediction {
	return clonePredictions(f.predictions[1:])
}

// Sample is one input source and the features observed in it.
type Sample struct {
	id   int
	name string
	sfis []*SampleFeatureIntensity
	seen map[*Feature]bool
}

// ID is the 1-based position of the sample in creation order.
func (s *Sample) ID() int { return s.id }
func (s *Sample) Name() string { return s.name }

// SFIs returns the sample's feature observations in input order.
func (s *Sample) SFIs() []*SampleFeatureIntensity {
	out := make([]*SampleFeatureIntensity, len(s.sfis))
	copy(out, s.sfis)
	return out
}

// SampleFeatureIntensity links a feature to a sample with the intensity
// observed there.
type SampleFeatureIntensity struct {
	sample    *Sample
	feature   *Feature
	intensity float64
}

func (sfi *SampleFeatureIntensity) Sample() *Sample { return sfi.sample }
func (sfi *SampleFeatureIntensity) Feature() *Feature { return sfi.feature }
func (sfi *SampleFeatureIntensity) Intensity() float64 { return sfi.intensity }

// ConflictKind classifies an IntegrityConflict.
type ConflictKind string

const (
	// DivergentPredictions: the same feature key arrived with a different prediction list.
	DivergentPredictions ConflictKind = "divergent_predictions"
	// DuplicateObservation: the same feature was observed twice in one sample.
	DuplicateObservation ConflictKind = "duplicate_observation"
)

// IntegrityConflict records a non-fatal inconsistency found while building.
// The first-seen data is kept.
type IntegrityConflict struct {
	Kind    ConflictKind
	Sample  string
	Feature FeatureKey
	Index   int // input position of the offending result
}

func (c IntegrityConflict) Error() string {
	return fmt.Sprintf("integrity conflict (%s): feature %s in sample %s at input %d",
		c.Kind, c.Feature, c.Sample, c.Index)
}

// Model is the relational record set built from annotation results.
type Model struct {
	samples      []*Sample
	sampleIndex  map[string]*Sample
	features     []*Feature
	featureIndex map[FeatureKey]*Feature
	conflicts    []IntegrityConflict
}

type buildOptions struct {
	log *zap.Logger
}

// Option configures Build.
type Option func(*buildOptions)

// WithLogger logs integrity conflicts as warnings.
func WithLogger(log *zap.Logger) Option {
	return func(o *buildOptions) {
		if log != nil {
			o.log = log
		}
	}
}

// Build assembles a model from results in order. Samples and features are
// created on first sight; a feature seen again in another sample gains one
// more SampleFeatureIntensity.
func Build(results []annotate.Result, opts ...Option) (*Model, error) {
	o := &buildOptions{log: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	m := &Model{
		sampleIndex:  make(map[string]*Sample),
		featureIndex: make(map[FeatureKey]*Feature),
	}

	for _, r := range results {
		if len(r.Predictions) == 0 {
			return nil, fmt.Errorf("input %d (%s): %w", r.Index, r.Feature.Name, ErrEmptyPredictions)
		}

		s := m.sampleIndex[r.Feature.Sample]
		if s == nil {
			s = &Sample{
				id:   len(m.samples) + 1,
				name: r.Feature.Sample,
				seen: make(map[*Feature]bool),
			}
			m.samples = append(m.samples, s)
			m.sampleIndex[s.name] = s
		}

		key := FeatureKey{Name: r.Feature.Name, Polarity: r.Feature.Polarity, MZ: r.Feature.MZ, RT: r.Feature.RT}
		f := m.featureIndex[key]
		if f == nil {
			f = &Feature{
				id:          len(m.features) + 1,
				key:         key,
				charge:      r.Feature.EffectiveCharge(),
				predictions: clonePredictions(r.Predictions),
			}
			m.features = append(m.features, f)
			m.featureIndex[key] = f
		} else if !equivalent(f.predictions, r.Predictions) {
			m.conflict(o.log, IntegrityConflict{Kind: DivergentPredictions, Sample: s.name, Feature: key, Index: r.Index})
		}

		if s.seen[f] {
			m.conflict(o.log, IntegrityConflict{Kind: DuplicateObservation, Sample: s.name, Feature: key, Index: r.Index})
			continue
		}
		s.seen[f] = true
		s.sfis = append(s.sfis, &SampleFeatureIntensity{sample: s, feature: f, intensity: r.Feature.Intensity})
	}

	o.log.Debug("model built",
		zap.Int("samples", len(m.samples)),
		zap.Int("features", len(m.features)),
		zap.Int("conflicts", len(m.conflicts)),
	)
	return m, nil
}

func (m *Model) conflict(log *zap.Logger, c IntegrityConflict) {
	m.conflicts = append(m.conflicts, c)
	log.Warn("integrity conflict, keeping first-seen data",
		zap.String("kind", string(c.Kind)),
		zap.String("sample", c.Sample),
		zap.Stringer("feature", c.Feature),
		zap.Int("input", c.Index),
	)
}

// Samples returns the samples in creation order.
func (m *Model) Samples() []*Sample {
	out := make([]*Sample, len(m.samples))
	copy(out, m.samples)
	return out
}

// Sample looks up a sample by name.
func (m *Model) Sample(name string) (*Sample, bool) {
	s, ok := m.sampleIndex[name]
	return s, ok
}

// Features returns the features in creation order.
func (m *Model) Features() []*Feature {
	out := make([]*Feature, len(m.features))
	copy(out, m.features)
	return out
}

// Feature looks up a feature by identity.
func (m *Model) Feature(key FeatureKey) (*Feature, bool) {
	f, ok := m.featureIndex[key]
	return f, ok
}

// Conflicts returns the integrity conflicts found during Build.
func (m *Model) Conflicts() []IntegrityConflict {
	out := make([]IntegrityConflict, len(m.conflicts))
	copy(out, m.conflicts)
	return out
}

// SFICount returns the total number of sample/feature observations.
func (m *Model) SFICount() int {
	n := 0
	for _, s := range m.samples {
		n += len(s.sfis)
	}
	return n
}

func equivalent(a, b []core.Prediction) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equivalent(b[i]) {
			return false
		}
	}
	return true
}

func clonePrediction(p core.Prediction) core.Prediction {
	p.Elements = p.Elements.Clone()
	if p.Extra != nil {
		extra := make(map[string]float64, len(p.Extra))
		for k, v := range p.Extra {
			extra[k] = v
		}
		p.Extra = extra
	}
	return p
}

func clonePredictions(ps []core.Prediction) []core.Prediction {
	out := make([]core.Prediction, len(ps))
	for i, p := range ps {
		out[i] = clonePrediction(p)
	}
	return out
}
