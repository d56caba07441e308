// Package jsonout writes annotation results as a JSON array with one object
// per sample/feature observation.
package jsonout

import (
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"

	"github.com/ChrisMcGann/vkmz/pkg/core"
	"github.com/ChrisMcGann/vkmz/pkg/model"
)

// Observation is one sample/feature pair with the feature's predictions.
type Observation struct {
	SampleName  string       `json:"sample_name"`
	FeatureName string       `json:"feature_name"`
	Polarity    string       `json:"polarity"`
	MZ          float64      `json:"mz"`
	RT          float64      `json:"rt"`
	Charge      int          `json:"charge"`
	Intensity   float64      `json:"intensity"`
	Predictions []Prediction `json:"prediction"`
}

// Prediction is a formula prediction, best first within an Observation.
type Prediction struct {
	Mass         float64            `json:"mass"`
	Delta        float64            `json:"delta"`
	Formula      string             `json:"formula"`
	HC           float64            `json:"hc"`
	OC           float64            `json:"oc"`
	NC           float64            `json:"nc"`
	ElementCount map[string]int     `json:"element_count"`
	Ratios       map[string]float64 `json:"ratios,omitempty"`
}

// Observations flattens m into Observation records, samples in creation order.
func Observations(m *model.Model) []Observation {
	out := make([]Observation, 0, m.SFICount())
	for _, s := range m.Samples() {
		for _, sfi := range s.SFIs() {
			f := sfi.Feature()
			o := Observation{
				SampleName:  s.Name(),
				FeatureName: f.Name(),
				Polarity:    string(f.Polarity()),
				MZ:          f.MZ(),
				RT:          f.RT(),
				Charge:      f.Charge(),
				Intensity:   sfi.Intensity(),
			}
			for _, p := range f.Predictions() {
				o.Predictions = append(o.Predictions, prediction(p))
			}
			out = append(out, o)
		}
	}
	return out
}

func prediction(p core.Prediction) Prediction {
	return Prediction{
		Mass:         p.Mass,
		Delta:        p.Delta,
		Formula:      p.Formula,
		HC:           p.HC,
		OC:           p.OC,
		NC:           p.NC,
		ElementCount: map[string]int(p.Elements),
		Ratios:       p.Extra,
	}
}

// Write encodes m to out as an indented JSON array.
func Write(out io.Writer, m *model.Model) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "    ")
	if err := enc.Encode(Observations(m)); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}

// WriteFile writes m to path.
func WriteFile(path string, m *model.Model) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create json file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close json file: %w", cerr)
		}
	}()

	return Write(f, m)
}
