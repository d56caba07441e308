// Package metadata describes one annotation run and writes it alongside the results.
package metadata

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ChrisMcGann/vkmz/pkg/config"
)

// Run records the parameters an output set was produced with.
type Run struct {
	ID        uuid.UUID
	Version   string
	Started   time.Time
	Inputs    []string
	Databases []string
	Output    string
	Config    config.Config
}

// NewRun stamps a run with a fresh id and the current time.
func NewRun(version string, cfg config.Config) Run {
	return Run{
		ID:      uuid.New(),
		Version: version,
		Started: time.Now().UTC(),
		Config:  cfg,
	}
}

// Fields returns the run as ordered name/value pairs, shared by the tabular
// and SQL outputs.
func (r Run) Fields() [][2]string {
	c := r.Config
	return [][2]string{
		{"RunId", r.ID.String()},
		{"Version", r.Version},
		{"Started", r.Started.Format(time.RFC3339)},
		{"Input", strings.Join(r.Inputs, ",")},
		{"Database", strings.Join(r.Databases, ",")},
		{"Output", r.Output},
		{"Polarity", string(c.Polarity)},
		{"ToleranceKind", string(c.Tolerance.Kind)},
		{"Tolerance", strconv.FormatFloat(c.Tolerance.Value, 'g', -1, 64)},
		{"AdductMass", strconv.FormatFloat(c.AdductMass, 'g', -1, 64)},
		{"ChargeScaling", strconv.FormatBool(c.ChargeScaling)},
		{"Neutral", strconv.FormatBool(c.Neutral)},
		{"AbsoluteDelta", strconv.FormatBool(c.AbsoluteDelta)},
		{"Ratios", strings.Join(c.ExtraRatios, ",")},
		{"Alternates", strconv.FormatBool(c.Alternates)},
		{"Parallelism", strconv.Itoa(c.Parallelism)},
	}
}

// WriteFile writes the run as a two-line tab-separated file: names, then values.
func WriteFile(path string, r Run) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metadata file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close metadata file: %w", cerr)
		}
	}()

	fields := r.Fields()
	names := make([]string, len(fields))
	values := make([]string, len(fields))
	for i, kv := range fields {
		names[i] = kv[0]
		values[i] = kv[1]
	}
	if _, err = fmt.Fprintf(f, "%s\n%s\n", strings.Join(names, "\t"), strings.Join(values, "\t")); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}
