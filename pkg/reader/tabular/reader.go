// Package tabular provides a streaming reader for feature tables
// (one detected feature per sample per row).
package tabular

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/vkmz/pkg/core"
)

// Column names accepted in the header, with their aliases.
var columnAliases = map[string]string{
	"sample_name":  "sample",
	"sample":       "sample",
	"feature_name": "feature",
	"feature":      "feature",
	"name":         "feature",
	"polarity":     "polarity",
	"mz":           "mz",
	"m/z":          "mz",
	"rt":           "rt",
	"retention":    "rt",
	"intensity":    "intensity",
	"charge":       "charge",
}

var requiredColumns = []string{"polarity", "mz", "rt", "intensity"}

// Reader provides streaming access to feature tables
type Reader struct {
	br            *bufio.Reader
	cr            *csv.Reader
	cols          map[string]int
	defaultSample string
	current       core.RawFeature
	err           error
}

// Option configures a Reader.
type Option func(*Reader)

// WithSample sets the sample name used when the table has no sample column.
func WithSample(name string) Option {
	return func(r *Reader) { r.defaultSample = name }
}

// NewReader creates a new feature table reader. The delimiter (tab or comma)
// is detected from the header line.
func NewReader(r io.Reader, opts ...Option) *Reader {
	rd := &Reader{br: bufio.NewReader(r)}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// Next advances to the next feature. Returns false when no more features or error.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	if r.cr == nil {
		if err := r.readHeader(); err != nil {
			if err != io.EOF {
				r.err = err
			}
			return false
		}
	}

	row, err := r.cr.Read()
	if err == io.EOF {
		return false
	}
	if err != nil {
		r.err = err
		return false
	}
	line, _ := r.cr.FieldPos(0)

	f, err := r.parseRow(row)
	if err != nil {
		r.err = fmt.Errorf("line %d: %w", line, err)
		return false
	}
	if err := f.Validate(); err != nil {
		r.err = fmt.Errorf("line %d: %w", line, err)
		return false
	}

	r.current = f
	return true
}

// Feature returns the current feature
func (r *Reader) Feature() core.RawFeature {
	return r.current
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) readHeader() error {
	sample, err := r.br.Peek(4096)
	if err != nil && err != io.EOF && !errors.Is(err, bufio.ErrBufferFull) {
		return err
	}

	r.cr = csv.NewReader(r.br)
	r.cr.Comma = core.DetectDelimiter(sample)
	r.cr.Comment = '#'
	r.cr.FieldsPerRecord = -1
	r.cr.TrimLeadingSpace = true

	header, err := r.cr.Read()
	if err != nil {
		return err
	}

	r.cols = make(map[string]int)
	for i, h := range header {
		if col, ok := columnAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, dup := r.cols[col]; !dup {
				r.cols[col] = i
			}
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := r.cols[col]; !ok {
			missing = append(missing, col)
		}
	}
	if _, ok := r.cols["sample"]; !ok && r.defaultSample == "" {
		missing = append(missing, "sample_name")
	}
	if len(missing) > 0 {
		line, _ := r.cr.FieldPos(0)
		return fmt.Errorf("line %d: missing required columns: %s", line, strings.Join(missing, ", "))
	}
	return nil
}

func (r *Reader) field(row []string, col string) (string, bool) {
	i, ok := r.cols[col]
	if !ok || i >= len(row) {
		return "", false
	}
	return strings.TrimSpace(row[i]), true
}

func (r *Reader) float(row []string, col string) (float64, error) {
	v, ok := r.field(row, col)
	if !ok {
		return 0, fmt.Errorf("missing %s value", col)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value '%s': %w", col, v, err)
	}
	return f, nil
}

func (r *Reader) parseRow(row []string) (core.RawFeature, error) {
	var f core.RawFeature
	var err error

	f.Sample = r.defaultSample
	if v, ok := r.field(row, "sample"); ok && v != "" {
		f.Sample = v
	}

	pol, _ := r.field(row, "polarity")
	if f.Polarity, err = core.ParsePolarity(pol); err != nil {
		return f, err
	}
	if f.Polarity == core.Both {
		return f, fmt.Errorf("%w: a feature cannot have polarity %q", core.ErrInvalidPolarity, pol)
	}

	if f.MZ, err = r.float(row, "mz"); err != nil {
		return f, err
	}
	if f.RT, err = r.float(row, "rt"); err != nil {
		return f, err
	}
	if f.Intensity, err = r.float(row, "intensity"); err != nil {
		return f, err
	}

	if v, ok := r.field(row, "charge"); ok && v != "" {
		c, err := strconv.Atoi(v)
		if err != nil || c < 1 {
			return f, fmt.Errorf("invalid charge value '%s'", v)
		}
		f.Charge = c
	} else {
		f.Charge = 1
	}

	if v, ok := r.field(row, "feature"); ok && v != "" {
		f.Name = v
	} else {
		// unnamed features are identified by their coordinates
		f.Name = fmt.Sprintf("%s-%g-%g", f.Polarity, f.MZ, f.RT)
	}

	return f, nil
}

// ReadAll reads every feature from r.
func ReadAll(r io.Reader, opts ...Option) ([]core.RawFeature, error) {
	rd := NewReader(r, opts...)
	var out []core.RawFeature
	for rd.Next() {
		out = append(out, rd.Feature())
	}
	if err := rd.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadFile reads every feature from a file. Without a sample column the file
// name (minus extension) is used as the sample name.
func ReadFile(path string) ([]core.RawFeature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature file: %w", err)
	}
	defer f.Close()

	sample := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	features, err := ReadAll(f, WithSample(sample))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return features, nil
}
