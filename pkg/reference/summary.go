package reference

import (
	"math"

	"github.com/ChrisMcGann/vkmz/pkg/core"
)

// Summary describes a loaded table.
type Summary struct {
	Records  int
	MinMass  float64
	MaxMass  float64
	Elements map[string]int // number of records containing each element

	// MaxDeviation is the largest |stated mass - computed mass| over records
	// whose elements all have a known monoisotopic mass.
	MaxDeviation     float64
	MaxDeviationFrom string
	Unscored         int // records skipped for an unknown element
}

// Summarize computes record count, mass range and the consistency of stated
// masses against the element counts.
func (t *Table) Summarize() Summary {
	s := Summary{
		Records:  t.Len(),
		Elements: make(map[string]int),
	}
	s.MinMass, s.MaxMass = t.MassRange()

	for _, r := range t.records {
		for _, el := range r.Elements.Symbols() {
			s.Elements[el]++
		}

		computed, err := core.MonoisotopicMass(r.Elements)
		if err != nil {
			s.Unscored++
			continue
		}
		if dev := math.Abs(r.Mass - computed); dev > s.MaxDeviation {
			s.MaxDeviation = dev
			s.MaxDeviationFrom = r.Formula
		}
	}
	return s
}
