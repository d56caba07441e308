// Package reference loads and queries the read-only table of known compounds
// that features are matched against.
package reference

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/vkmz/pkg/core"
)

// LoadError reports an unreadable or malformed reference source.
type LoadError struct {
	Source string
	Line   int // 0 when the failure is not tied to a line
	Err    error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("load reference %s: line %d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("load reference %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

var elementColumn = regexp.MustCompile(`^[A-Z][a-z]?$`)

// Table is an immutable set of reference records sorted by mass.
// A Table is safe for concurrent use by multiple readers.
type Table struct {
	records []core.ReferenceRecord
	masses  []float64
}

type loadOptions struct {
	source    string
	delimiter rune
}

// Option configures Load.
type Option func(*loadOptions)

// WithSource names the source in LoadError messages.
func WithSource(name string) Option {
	return func(o *loadOptions) { o.source = name }
}

// WithDelimiter forces the field delimiter instead of detecting it from the header.
func WithDelimiter(d rune) Option {
	return func(o *loadOptions) { o.delimiter = d }
}

// LoadFile loads a reference table from a tab- or comma-separated file.
func LoadFile(path string, opts ...Option) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	defer f.Close()

	return Load(f, append([]Option{WithSource(path)}, opts...)...)
}

// Load reads reference records. The header must contain "formula" and "mass"
// columns. Columns named by an element symbol (C, H, N, O, ...) supply the element
// counts; when none are present the counts are parsed from the formula.
func Load(r io.Reader, opts ...Option) (*Table, error) {
	o := &loadOptions{source: "<reader>"}
	for _, opt := range opts {
		opt(o)
	}

	br := bufio.NewReader(r)
	if o.delimiter == 0 {
		header, err := br.Peek(4096)
		if err != nil && err != io.EOF && !errors.Is(err, bufio.ErrBufferFull) {
			return nil, &LoadError{Source: o.source, Err: err}
		}
		o.delimiter = core.DetectDelimiter(header)
	}

	cr := csv.NewReader(br)
	cr.Comma = o.delimiter
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &LoadError{Source: o.source, Err: errors.New("empty reference source")}
	}
	if err != nil {
		return nil, &LoadError{Source: o.source, Line: 1, Err: err}
	}

	formulaCol, massCol := -1, -1
	elementCols := make(map[int]string)
	for i, name := range header {
		name = strings.TrimSpace(name)
		switch strings.ToLower(name) {
		case "formula":
			formulaCol = i
			continue
		case "mass", "monoisotopic_mass", "exact_mass":
			massCol = i
			continue
		}
		if elementColumn.MatchString(name) {
			elementCols[i] = name
		}
	}
	if formulaCol < 0 || massCol < 0 {
		return nil, &LoadError{Source: o.source, Line: 1, Err: errors.New("missing required columns formula and mass")}
	}

	var records []core.ReferenceRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			line := 0
			if errors.As(err, &pe) {
				line = pe.Line
			}
			return nil, &LoadError{Source: o.source, Line: line, Err: err}
		}
		line, _ := cr.FieldPos(0)
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}

		rec, err := parseRecord(row, formulaCol, massCol, elementCols)
		if err != nil {
			return nil, &LoadError{Source: o.source, Line: line, Err: err}
		}
		records = append(records, rec)
	}

	return newTable(records), nil
}

func parseRecord(row []string, formulaCol, massCol int, elementCols map[int]string) (core.ReferenceRecord, error) {
	if formulaCol >= len(row) || massCol >= len(row) {
		return core.ReferenceRecord{}, fmt.Errorf("expected at least %d fields, got %d", max(formulaCol, massCol)+1, len(row))
	}

	formula := strings.TrimSpace(row[formulaCol])
	massStr := strings.TrimSpace(row[massCol])
	mass, err := strconv.ParseFloat(massStr, 64)
	if err != nil {
		return core.ReferenceRecord{}, fmt.Errorf("invalid mass value '%s': %w", massStr, err)
	}
	if mass <= 0 {
		return core.ReferenceRecord{}, fmt.Errorf("mass must be positive, got %v", mass)
	}

	var counts core.ElementCount
	filled := 0
	if len(elementCols) > 0 {
		counts = make(core.ElementCount, len(elementCols))
		for i, el := range elementCols {
			if i >= len(row) {
				continue
			}
			v := strings.TrimSpace(row[i])
			if v == "" {
				continue
			}
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return core.ReferenceRecord{}, fmt.Errorf("invalid %s count '%s'", el, v)
			}
			counts[el] = n
			filled++
		}
	}
	// rows with no element cells filled fall back to the formula
	if filled == 0 {
		counts, err = core.ParseFormula(formula)
		if err != nil {
			return core.ReferenceRecord{}, fmt.Errorf("no element counts and %w", err)
		}
	}
	if formula == "" {
		formula = counts.Hill()
	}
	if formula == "" {
		return core.ReferenceRecord{}, errors.New("record has neither formula nor element counts")
	}

	return core.ReferenceRecord{Formula: formula, Mass: mass, Elements: counts}, nil
}

func newTable(records []core.ReferenceRecord) *Table {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Mass < records[j].Mass
	})
	masses := make([]float64, len(records))
	for i, r := range records {
		masses[i] = r.Mass
	}
	return &Table{records: records, masses: masses}
}

// New builds a table from in-memory records. The records are copied.
func New(records []core.ReferenceRecord) *Table {
	cp := make([]core.ReferenceRecord, len(records))
	for i, r := range records {
		cp[i] = cloneRecord(r)
	}
	return newTable(cp)
}

// Merge combines several tables into a new one.
func Merge(tables ...*Table) *Table {
	var all []core.ReferenceRecord
	for _, t := range tables {
		if t == nil {
			continue
		}
		all = append(all, t.records...)
	}
	return New(all)
}

// Candidates returns every record whose mass lies within [target-tol, target+tol],
// in ascending mass order. The records are copies.
func (t *Table) Candidates(target, tol float64) []core.ReferenceRecord {
	if tol < 0 {
		tol = -tol
	}
	lo, hi := target-tol, target+tol
	start := sort.SearchFloat64s(t.masses, lo)

	var out []core.ReferenceRecord
	for i := start; i < len(t.records) && t.masses[i] <= hi; i++ {
		out = append(out, cloneRecord(t.records[i]))
	}
	return out
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.records)
}

// MassRange returns the lowest and highest record mass.
func (t *Table) MassRange() (lo, hi float64) {
	if len(t.masses) == 0 {
		return 0, 0
	}
	return t.masses[0], t.masses[len(t.masses)-1]
}

// Records returns a copy of all records in mass order.
func (t *Table) Records() []core.ReferenceRecord {
	out := make([]core.ReferenceRecord, len(t.records))
	for i, r := range t.records {
		out[i] = cloneRecord(r)
	}
	return out
}

// cloneRecord detaches r from the table's element map.
func cloneRecord(r core.ReferenceRecord) core.ReferenceRecord {
	r.Elements = r.Elements.Clone()
	return r
}
