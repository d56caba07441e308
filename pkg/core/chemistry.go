// Package core provides chemistry calculations and the record types shared by the
// annotation pipeline.
package core

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Atomic masses (monoisotopic)
const (
	MassH  = 1.0078250321
	MassC  = 12.0000000000
	MassN  = 14.0030740052
	MassO  = 15.9949146221
	MassS  = 31.9720706900
	MassP  = 30.9737615100
	MassF  = 18.9984032000
	MassCl = 34.9688527100
	MassBr = 78.9183376000
	MassI  = 126.9044680000
	MassNa = 22.9897692800
	MassK  = 38.9637066800
	MassSi = 27.9769265300
	MassSe = 79.9165213000

	// Proton mass for charge calculations
	ProtonMass = 1.00727646688
)

// ElementMasses maps element symbols to their most abundant isotope mass.
var ElementMasses = map[string]float64{
	"H":  MassH,
	"C":  MassC,
	"N":  MassN,
	"O":  MassO,
	"S":  MassS,
	"P":  MassP,
	"F":  MassF,
	"Cl": MassCl,
	"Br": MassBr,
	"I":  MassI,
	"Na": MassNa,
	"K":  MassK,
	"Si": MassSi,
	"Se": MassSe,
}

// ElementCount maps an element symbol to the number of atoms of that element.
type ElementCount map[string]int

// Get returns the count for an element, zero when absent.
func (ec ElementCount) Get(element string) int {
	return ec[element]
}

// Clone returns an independent copy.
func (ec ElementCount) Clone() ElementCount {
	if ec == nil {
		return nil
	}
	out := make(ElementCount, len(ec))
	for k, v := range ec {
		out[k] = v
	}
	return out
}

// Equal reports whether both counts describe the same composition.
// Zero entries are ignored, so {C:6, N:0} equals {C:6}.
func (ec ElementCount) Equal(other ElementCount) bool {
	for k, v := range ec {
		if other[k] != v {
			return false
		}
	}
	for k, v := range other {
		if ec[k] != v {
			return false
		}
	}
	return true
}

// Symbols returns the elements with a non-zero count in Hill order:
// carbon, hydrogen, then the rest alphabetically. Without carbon the
// order is purely alphabetical.
func (ec ElementCount) Symbols() []string {
	var rest []string
	hasC := ec["C"] > 0
	for k, v := range ec {
		if v == 0 {
			continue
		}
		if hasC && (k == "C" || k == "H") {
			continue
		}
		rest = append(rest, k)
	}
	sort.Strings(rest)
	if !hasC {
		return rest
	}
	symbols := []string{"C"}
	if ec["H"] > 0 {
		symbols = append(symbols, "H")
	}
	return append(symbols, rest...)
}

// Hill returns the canonical Hill-notation formula, e.g. "C6H12O6".
func (ec ElementCount) Hill() string {
	var b strings.Builder
	for _, el := range ec.Symbols() {
		b.WriteString(el)
		if n := ec[el]; n != 1 {
			b.WriteString(strconv.Itoa(n))
		}
	}
	return b.String()
}

// String returns the serialized form used by tabular and SQL exports,
// e.g. "C:6,H:12,O:6".
func (ec ElementCount) String() string {
	parts := make([]string, 0, len(ec))
	for _, el := range ec.Symbols() {
		parts = append(parts, fmt.Sprintf("%s:%d", el, ec[el]))
	}
	return strings.Join(parts, ",")
}

// ParseFormula parses a plain molecular formula such as "C6H12O6" or "C2H3Cl".
// Repeated elements are summed. Parentheses and charges are not supported.
func ParseFormula(formula string) (ElementCount, error) {
	formula = strings.TrimSpace(formula)
	if formula == "" {
		return nil, fmt.Errorf("empty formula")
	}

	counts := make(ElementCount)
	runes := []rune(formula)
	for i := 0; i < len(runes); {
		if !unicode.IsUpper(runes[i]) {
			return nil, fmt.Errorf("invalid formula %q: unexpected %q at position %d", formula, runes[i], i)
		}
		j := i + 1
		for j < len(runes) && unicode.IsLower(runes[j]) {
			j++
		}
		symbol := string(runes[i:j])

		k := j
		for k < len(runes) && unicode.IsDigit(runes[k]) {
			k++
		}
		n := 1
		if k > j {
			v, err := strconv.Atoi(string(runes[j:k]))
			if err != nil {
				return nil, fmt.Errorf("invalid formula %q: %w", formula, err)
			}
			n = v
		}
		counts[symbol] += n
		i = k
	}

	return counts, nil
}

// MonoisotopicMass computes the neutral monoisotopic mass of an elemental composition.
func MonoisotopicMass(counts ElementCount) (float64, error) {
	mass := 0.0
	for _, el := range counts.Symbols() {
		m, ok := ElementMasses[el]
		if !ok {
			return 0, fmt.Errorf("no monoisotopic mass for element %q", el)
		}
		mass += float64(counts[el]) * m
	}
	return mass, nil
}

// VanKrevelen holds the elemental ratios plotted on a Van Krevelen diagram.
type VanKrevelen struct {
	HC float64
	OC float64
	NC float64
}

// Ratios computes H/C, O/C and N/C. A composition without carbon yields
// all-zero ratios rather than NaN or Inf.
func Ratios(counts ElementCount) VanKrevelen {
	return VanKrevelen{
		HC: ElementRatio(counts, "H"),
		OC: ElementRatio(counts, "O"),
		NC: ElementRatio(counts, "N"),
	}
}

// ElementRatio returns count(element)/count(C), or zero when carbon is absent.
func ElementRatio(counts ElementCount, element string) float64 {
	c := counts.Get("C")
	if c == 0 {
		return 0
	}
	return float64(counts.Get(element)) / float64(c)
}

// RoundFloat rounds a float to n decimal places
func RoundFloat(val float64, precision int) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}
