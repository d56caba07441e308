// Package tabular writes annotation results as a tab-separated table with
// one row per sample/feature observation.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/vkmz/pkg/core"
	"github.com/ChrisMcGann/vkmz/pkg/model"
)

// Header lists the output columns, without the optional alternates column.
var Header = []string{
	"sample_name",
	"feature_name",
	"polarity",
	"mz",
	"rt",
	"intensity",
	"predicted_mass",
	"predicted_delta",
	"predicted_formula",
	"predicted_element_count",
	"predicted_hc",
	"predicted_oc",
	"predicted_nc",
}

// AlternatesColumn is appended to Header when alternates are written.
const AlternatesColumn = "alternate_predictions"

// Writer writes a model to a tab-separated stream
type Writer struct {
	cw         *csv.Writer
	alternates bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithAlternates adds the alternate_predictions column.
func WithAlternates(on bool) Option {
	return func(w *Writer) { w.alternates = on }
}

// NewWriter creates a new tabular writer
func NewWriter(out io.Writer, opts ...Option) *Writer {
	cw := csv.NewWriter(out)
	cw.Comma = '\t'
	w := &Writer{cw: cw}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteModel writes the header and one row per SFI, samples in creation order.
func (w *Writer) WriteModel(m *model.Model) error {
	header := Header
	if w.alternates {
		header = append(append([]string(nil), Header...), AlternatesColumn)
	}
	if err := w.cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, s := range m.Samples() {
		for _, sfi := range s.SFIs() {
			if err := w.cw.Write(w.row(s, sfi)); err != nil {
				return fmt.Errorf("failed to write row for %s in %s: %w", sfi.Feature().Key(), s.Name(), err)
			}
		}
	}

	w.cw.Flush()
	return w.cw.Error()
}

func (w *Writer) row(s *model.Sample, sfi *model.SampleFeatureIntensity) []string {
	f := sfi.Feature()
	p := f.Primary()
	row := []string{
		s.Name(),
		f.Name(),
		string(f.Polarity()),
		formatFloat(f.MZ()),
		formatFloat(f.RT()),
		formatFloat(sfi.Intensity()),
		formatFloat(p.Mass),
		formatDelta(p.Delta),
		p.Formula,
		p.Elements.String(),
		formatFloat(p.HC),
		formatFloat(p.OC),
		formatFloat(p.NC),
	}
	if w.alternates {
		row = append(row, formatAlternates(f.Alternates()))
	}
	return row
}

// formatAlternates renders alternates as "[(mass, formula, delta), ...]",
// empty when there are none.
func formatAlternates(alts []core.Prediction) string {
	if len(alts) == 0 {
		return ""
	}
	parts := make([]string, len(alts))
	for i, a := range alts {
		parts[i] = fmt.Sprintf("(%s, %s, %s)", formatFloat(a.Mass), a.Formula, formatDelta(a.Delta))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// deltas are tiny, so allow exponent notation
func formatDelta(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteFile writes m to path.
func WriteFile(path string, m *model.Model, opts ...Option) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create tabular file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close tabular file: %w", cerr)
		}
	}()

	return NewWriter(f, opts...).WriteModel(m)
}
