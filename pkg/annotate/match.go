package annotate

import (
	"math"
	"sort"

	"github.com/ChrisMcGann/vkmz/pkg/config"
	"github.com/ChrisMcGann/vkmz/pkg/core"
	"github.com/ChrisMcGann/vkmz/pkg/reference"
)

// Candidate is a reference record within tolerance of an adjusted mass.
type Candidate struct {
	Record core.ReferenceRecord
	Delta  float64 // adjusted mass minus record mass
}

// Match returns every record within tolerance of mass, closest first.
// Equal distances are ordered by canonical formula, then by record mass, so
// the primary candidate is the same on every run. An empty result means no match.
func Match(mass float64, tol config.Tolerance, table *reference.Table) []Candidate {
	window := tol.Window(mass)
	records := table.Candidates(mass, window)
	if len(records) == 0 {
		return nil
	}

	type keyed struct {
		Candidate
		abs     float64
		formula string
	}
	ks := make([]keyed, 0, len(records))
	for _, r := range records {
		delta := mass - r.Mass
		abs := math.Abs(delta)
		// the table scan is inclusive on both ends; rounding at the
		// boundary must not let a record past the window through
		if abs > window {
			continue
		}
		ks = append(ks, keyed{
			Candidate: Candidate{Record: r, Delta: delta},
			abs:       abs,
			formula:   r.CanonicalFormula(),
		})
	}

	sort.SliceStable(ks, func(i, j int) bool {
		if ks[i].abs != ks[j].abs {
			return ks[i].abs < ks[j].abs
		}
		if ks[i].formula != ks[j].formula {
			return ks[i].formula < ks[j].formula
		}
		return ks[i].Record.Mass < ks[j].Record.Mass
	})

	out := make([]Candidate, len(ks))
	for i, k := range ks {
		out[i] = k.Candidate
	}
	return out
}
