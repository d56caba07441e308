package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ChrisMcGann/vkmz/pkg/annotate"
	"github.com/ChrisMcGann/vkmz/pkg/config"
	"github.com/ChrisMcGann/vkmz/pkg/core"
	"github.com/ChrisMcGann/vkmz/pkg/filter"
	"github.com/ChrisMcGann/vkmz/pkg/model"
	featurereader "github.com/ChrisMcGann/vkmz/pkg/reader/tabular"
	"github.com/ChrisMcGann/vkmz/pkg/reference"
	"github.com/ChrisMcGann/vkmz/pkg/writer/jsonout"
	"github.com/ChrisMcGann/vkmz/pkg/writer/metadata"
	"github.com/ChrisMcGann/vkmz/pkg/writer/sqlite"
	"github.com/ChrisMcGann/vkmz/pkg/writer/tabular"
)

var (
	// Flags for annotate command
	inputFiles    []string
	databaseFiles []string
	outputPrefix  string
	writeJSON     bool
	writeSQL      bool
	writeMetadata bool
	minIntensity  float64
	cutoffPercent float64
	topN          int
	rtMin         float64
	rtMax         float64
	samples       []string
	keepZero      bool
)

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Predict formulas for a feature table",
	Long: `Predict molecular formulas for every feature in one or more feature tables
by matching the feature's neutral mass against reference databases.

Feature tables are tab- or comma-separated with the columns sample_name,
feature_name, polarity, mz, rt, intensity and an optional charge.

Features with zero intensity are removed before annotation and
reported as "Removed"; pass --keep-zero-intensity to annotate them anyway.
The --min-intensity, --cutoff, --top-n, --rt-min, --rt-max and --sample
filters run afterwards and are reported as "Filtered".

Examples:
  # Annotate with defaults (both polarities, 3 ppm)
  vkmz annotate --in features.tsv --database bmrb.tsv --out results/run1

  # Negative mode only, 0.002 Da window, all outputs
  vkmz annotate --in features.tsv --database bmrb.tsv --out run1 --polarity negative \
    --tolerance-kind absolute --tolerance 0.002 --json --sql --metadata

  # Keep alternate predictions and add S/C and P/C ratios
  vkmz annotate --in features.tsv --database bmrb.tsv --out run1 --alternate --ratios S,P`,
	RunE: runAnnotate,
}

func init() {
	d := config.Default()
	f := annotateCmd.Flags()

	f.StringSliceVarP(&inputFiles, "in", "i", nil, "Feature table(s) (required)")
	f.StringSliceVarP(&databaseFiles, "database", "d", nil, "Reference database(s) (required)")
	f.StringVarP(&outputPrefix, "out", "o", "", "Output path prefix (required)")
	f.BoolVar(&writeJSON, "json", false, "Also write <out>.json")
	f.BoolVar(&writeSQL, "sql", false, "Also write <out>.db")
	f.BoolVar(&writeMetadata, "metadata", false, "Write run parameters to <out>_metadata.tabular (and the Metadata table with --sql)")
	f.Float64Var(&minIntensity, "min-intensity", 0, "Drop features below this intensity (0 = no minimum)")
	f.Float64Var(&cutoffPercent, "cutoff", 0, "Drop features below this % of the sample's most intense feature (0 = no cutoff)")
	f.IntVar(&topN, "top-n", 0, "Keep only the N most intense features per sample (0 = no limit)")
	f.Float64Var(&rtMin, "rt-min", 0, "Drop features eluting before this retention time (0 = no bound)")
	f.Float64Var(&rtMax, "rt-max", 0, "Drop features eluting after this retention time (0 = no bound)")
	f.StringSliceVar(&samples, "sample", nil, "Annotate only these samples")
	f.BoolVar(&keepZero, "keep-zero-intensity", false, "Annotate features with zero intensity instead of removing them")

	// Annotation settings, layered with VKMZ_* and the config file
	f.String("polarity", string(d.Polarity), "Polarity to annotate: positive, negative or both")
	f.String("tolerance-kind", string(d.Tolerance.Kind), "Tolerance kind: relative or absolute")
	f.Float64("tolerance", d.Tolerance.Value, "Tolerance value (fraction of mass when relative, e.g. 3e-6; daltons when absolute)")
	f.IntP("threads", "t", d.Parallelism, "Number of worker threads")
	f.Float64("adduct", d.AdductMass, "Adduct mass removed (positive) or added (negative)")
	f.Bool("charge-scaling", d.ChargeScaling, "Multiply the adjusted mass by the feature charge")
	f.Bool("neutral", d.Neutral, "Feature m/z values are already neutral masses")
	f.Bool("absolute-delta", d.AbsoluteDelta, "Report |delta| instead of the signed delta")
	f.StringSlice("ratios", d.ExtraRatios, "Extra element/carbon ratios to compute (e.g. S,P)")
	f.Bool("alternate", d.Alternates, "Write alternate predictions")

	bind := map[string]string{
		config.KeyPolarity:       "polarity",
		config.KeyToleranceKind:  "tolerance-kind",
		config.KeyToleranceValue: "tolerance",
		config.KeyParallelism:    "threads",
		config.KeyAdductMass:     "adduct",
		config.KeyChargeScaling:  "charge-scaling",
		config.KeyNeutral:        "neutral",
		config.KeyAbsoluteDelta:  "absolute-delta",
		config.KeyRatios:         "ratios",
		config.KeyAlternates:     "alternate",
	}
	for key, flag := range bind {
		_ = viper.BindPFlag(key, f.Lookup(flag))
	}

	annotateCmd.MarkFlagRequired("in")
	annotateCmd.MarkFlagRequired("database")
	annotateCmd.MarkFlagRequired("out")
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	run := metadata.NewRun(Version, cfg)
	run.Inputs = inputFiles
	run.Databases = databaseFiles
	run.Output = outputPrefix
	runLog := log.With(zap.Stringer("run", run.ID))

	fmt.Printf("Annotating %d feature table(s) against %d database(s)...\n", len(inputFiles), len(databaseFiles))
	fmt.Printf("Polarity: %s\n", cfg.Polarity)
	fmt.Printf("Tolerance: %s\n", cfg.Tolerance)
	fmt.Printf("Threads: %d\n", cfg.Parallelism)

	table, err := loadDatabases(databaseFiles)
	if err != nil {
		return err
	}

	features, err := loadFeatures(inputFiles)
	if err != nil {
		return err
	}

	features, removed, filtered := applyFilters(features, keepZero, &filter.Config{
		MinIntensity:    minIntensity,
		IntensityCutoff: cutoffPercent,
		TopN:            topN,
		RTMin:           rtMin,
		RTMax:           rtMax,
		Samples:         samples,
	})
	if removed > 0 {
		fmt.Printf("Removed: %d zero-intensity feature(s)\n", removed)
	}
	if filtered > 0 {
		fmt.Printf("Filtered: %d feature(s)\n", filtered)
	}
	runLog.Debug("features selected",
		zap.Int("kept", len(features)),
		zap.Int("zero_intensity", removed),
		zap.Int("filtered", filtered))

	dispatcher, err := annotate.NewDispatcher(cfg, table, annotate.WithLogger(runLog))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	started := time.Now()
	results, err := dispatcher.Annotate(ctx, features)
	if err != nil {
		return fmt.Errorf("annotation failed: %w", err)
	}
	runLog.Debug("annotation finished", zap.Duration("elapsed", time.Since(started)))

	m, err := model.Build(results, model.WithLogger(runLog))
	if err != nil {
		return fmt.Errorf("failed to build results: %w", err)
	}
	if n := len(m.Conflicts()); n > 0 {
		runLog.Warn("results contain integrity conflicts", zap.Int("conflicts", n))
	}

	if err := writeOutputs(m, run, cfg); err != nil {
		return err
	}

	fmt.Printf("\nAnnotation complete!\n")
	fmt.Printf("Matched: %d of %d feature(s)\n", len(results), len(features))
	fmt.Printf("Samples: %d, unique features: %d\n", len(m.Samples()), len(m.Features()))
	fmt.Printf("Output: %s.tabular\n", outputPrefix)

	return nil
}

// applyFilters drops zero-intensity features unless keepZero is set, then
// applies fc. It returns the kept features and how many each step removed.
func applyFilters(features []core.RawFeature, keepZero bool, fc *filter.Config) (kept []core.RawFeature, removed, filtered int) {
	kept = features
	if !keepZero {
		kept = filter.RemoveZeroIntensity(kept)
		removed = len(features) - len(kept)
	}
	if !fc.IsZero() {
		n := len(kept)
		kept = fc.Apply(kept)
		filtered = n - len(kept)
	}
	return kept, removed, filtered
}

func loadDatabases(paths []string) (*reference.Table, error) {
	tables := make([]*reference.Table, 0, len(paths))
	for _, path := range paths {
		t, err := reference.LoadFile(path)
		if err != nil {
			return nil, err
		}
		fmt.Printf("Loaded %d reference records from %s\n", t.Len(), path)
		tables = append(tables, t)
	}
	if len(tables) == 1 {
		return tables[0], nil
	}
	return reference.Merge(tables...), nil
}

func loadFeatures(paths []string) ([]core.RawFeature, error) {
	var features []core.RawFeature
	for _, path := range paths {
		fs, err := featurereader.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading input file: %w", err)
		}
		fmt.Printf("Read %d features from %s\n", len(fs), path)
		features = append(features, fs...)
	}
	return features, nil
}

func writeOutputs(m *model.Model, run metadata.Run, cfg config.Config) error {
	if dir := filepath.Dir(outputPrefix); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if err := tabular.WriteFile(outputPrefix+".tabular", m, tabular.WithAlternates(cfg.Alternates)); err != nil {
		return err
	}

	if writeJSON {
		if err := jsonout.WriteFile(outputPrefix+".json", m); err != nil {
			return err
		}
		fmt.Printf("Output: %s.json\n", outputPrefix)
	}

	if writeSQL {
		if err := writeDatabase(outputPrefix+".db", m, run); err != nil {
			return err
		}
		fmt.Printf("Output: %s.db\n", outputPrefix)
	}

	if writeMetadata {
		if err := metadata.WriteFile(outputPrefix+"_metadata.tabular", run); err != nil {
			return err
		}
		fmt.Printf("Output: %s_metadata.tabular\n", outputPrefix)
	}

	return nil
}

func writeDatabase(path string, m *model.Model, run metadata.Run) error {
	// a rerun replaces the previous database rather than colliding with its ids
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing database: %w", err)
	}

	writer, err := sqlite.NewWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create output database: %w", err)
	}
	defer writer.Close()

	if err := writer.WriteModel(m); err != nil {
		return fmt.Errorf("failed to write database: %w", err)
	}
	if writeMetadata {
		if err := writer.WriteMetadata(run); err != nil {
			return fmt.Errorf("failed to write database metadata: %w", err)
		}
	}
	return writer.Close()
}
