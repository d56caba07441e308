package annotate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/vkmz/pkg/config"
	"github.com/ChrisMcGann/vkmz/pkg/core"
	"github.com/ChrisMcGann/vkmz/pkg/reference"
)

func glucoseTable() *reference.Table {
	return reference.New([]core.ReferenceRecord{
		{Formula: "C6H12O6", Mass: 180.0634, Elements: core.ElementCount{"C": 6, "H": 12, "O": 6, "N": 0}},
	})
}

func scenarioConfig(adduct, tol float64) config.Config {
	cfg := config.Default()
	cfg.Polarity = core.Positive
	cfg.AdductMass = adduct
	cfg.Tolerance = config.Tolerance{Kind: config.Absolute, Value: tol}
	cfg.Parallelism = 1
	return cfg
}

var glucoseFeature = core.RawFeature{
	Sample: "S1", Name: "F1", Polarity: core.Positive, MZ: 181.0707, RT: 120, Intensity: 1000,
}

func TestAnnotateGlucose(t *testing.T) {
	d, err := NewDispatcher(scenarioConfig(1.0073, 0.01), glucoseTable())
	require.NoError(t, err)

	results, err := d.Annotate(context.Background(), []core.RawFeature{glucoseFeature})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Predictions, 1)

	p := results[0].Predictions[0]
	assert.Equal(t, "C6H12O6", p.Formula)
	assert.InDelta(t, 0.0, p.Delta, 1e-9)
	assert.Equal(t, 2.0, p.HC)
	assert.Equal(t, 1.0, p.OC)
	assert.Equal(t, 0.0, p.NC)
	assert.Nil(t, p.Extra)
	assert.Equal(t, 0, results[0].Index)
}

func TestAnnotateWrongAdductDropsFeature(t *testing.T) {
	d, err := NewDispatcher(scenarioConfig(2.0, 0.001), glucoseTable())
	require.NoError(t, err)

	results, err := d.Annotate(context.Background(), []core.RawFeature{glucoseFeature})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPredictionDoesNotAliasTable(t *testing.T) {
	table := glucoseTable()
	d, err := NewDispatcher(scenarioConfig(1.0073, 0.01), table)
	require.NoError(t, err)

	preds, err := d.Predict(glucoseFeature)
	require.NoError(t, err)
	preds[0].Elements["C"] = 0

	assert.Equal(t, 6, table.Records()[0].Elements["C"])
}

func TestAnnotateAbsoluteDeltaAndExtraRatios(t *testing.T) {
	table := reference.New([]core.ReferenceRecord{
		{Formula: "C3H7NO2S", Mass: 121.0197, Elements: core.ElementCount{"C": 3, "H": 7, "N": 1, "O": 2, "S": 1}},
	})
	cfg := scenarioConfig(core.ProtonMass, 0.01)
	cfg.Polarity = core.Negative
	cfg.AbsoluteDelta = true
	cfg.ExtraRatios = []string{"S"}

	d, err := NewDispatcher(cfg, table)
	require.NoError(t, err)

	preds, err := d.Predict(core.RawFeature{Sample: "S", Name: "cys", Polarity: core.Negative, MZ: 120.0100})
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.GreaterOrEqual(t, preds[0].Delta, 0.0)
	assert.InDelta(t, 1.0/3.0, preds[0].Extra["S"], 1e-12)
	assert.InDelta(t, 1.0/3.0, preds[0].NC, 1e-12)
}

func TestAnnotatePolaritySelection(t *testing.T) {
	table := glucoseTable()
	features := []core.RawFeature{
		{Sample: "S1", Name: "neg", Polarity: core.Negative, MZ: 179.0561, Intensity: 5},
		{Sample: "S1", Name: "pos", Polarity: core.Positive, MZ: 181.0707, Intensity: 10},
		{Sample: "S2", Name: "pos2", Polarity: core.Positive, MZ: 181.0707, Intensity: 20},
	}

	tests := []struct {
		polarity core.Polarity
		want     []string
	}{
		{core.Both, []string{"pos", "pos2", "neg"}},
		{core.Positive, []string{"pos", "pos2"}},
		{core.Negative, []string{"neg"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.polarity), func(t *testing.T) {
			cfg := scenarioConfig(1.0073, 0.01)
			cfg.Polarity = tt.polarity
			d, err := NewDispatcher(cfg, table)
			require.NoError(t, err)

			results, err := d.Annotate(context.Background(), features)
			require.NoError(t, err)
			var names []string
			for _, r := range results {
				names = append(names, r.Feature.Name)
				assert.Equal(t, r.Feature, features[r.Index])
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestNewDispatcherInvalidConfig(t *testing.T) {
	cfg := scenarioConfig(1.0073, 0.01)
	cfg.Polarity = "sideways"
	_, err := NewDispatcher(cfg, glucoseTable())
	assert.ErrorIs(t, err, core.ErrInvalidPolarity)

	_, err = NewDispatcher(scenarioConfig(1.0073, 0.01), nil)
	assert.Error(t, err)
}

func TestAnnotateInvalidFeaturePolarityIsFatal(t *testing.T) {
	d, err := NewDispatcher(scenarioConfig(1.0073, 0.01), glucoseTable())
	require.NoError(t, err)

	bad := glucoseFeature
	bad.Polarity = "unknown"
	results, err := d.Annotate(context.Background(), []core.RawFeature{glucoseFeature, bad})
	assert.ErrorIs(t, err, core.ErrInvalidPolarity)
	assert.Nil(t, results)
}

func TestAnnotateWorkerFault(t *testing.T) {
	for _, parallelism := range []int{1, 4} {
		t.Run(fmt.Sprintf("parallelism=%d", parallelism), func(t *testing.T) {
			cfg := scenarioConfig(1.0073, 0.01)
			cfg.Parallelism = parallelism
			d, err := NewDispatcher(cfg, glucoseTable())
			require.NoError(t, err)

			features := make([]core.RawFeature, 50)
			for i := range features {
				features[i] = glucoseFeature
				features[i].Name = fmt.Sprintf("F%d", i)
			}
			features[17].MZ = math.NaN()

			results, err := d.Annotate(context.Background(), features)
			require.Error(t, err)
			assert.Nil(t, results, "no partial results on fault")

			var fault *WorkerFault
			require.True(t, errors.As(err, &fault))
			assert.GreaterOrEqual(t, fault.Failed, 1)
			var verr *core.ValidationError
			assert.True(t, errors.As(err, &verr))
			assert.Contains(t, err.Error(), "F17")
		})
	}
}

func TestAnnotateCancelled(t *testing.T) {
	cfg := scenarioConfig(1.0073, 0.01)
	cfg.Parallelism = 4
	d, err := NewDispatcher(cfg, glucoseTable())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := d.Annotate(ctx, []core.RawFeature{glucoseFeature})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, results)
}

func TestAnnotateParallelMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	records := make([]core.ReferenceRecord, 3000)
	for i := range records {
		counts := core.ElementCount{
			"C": 1 + rng.Intn(30),
			"H": rng.Intn(60),
			"N": rng.Intn(5),
			"O": rng.Intn(15),
		}
		mass, err := core.MonoisotopicMass(counts)
		require.NoError(t, err)
		records[i] = core.ReferenceRecord{Formula: counts.Hill(), Mass: mass, Elements: counts}
	}
	table := reference.New(records)

	features := make([]core.RawFeature, 1000)
	for i := range features {
		pol := core.Positive
		shift := core.ProtonMass
		if rng.Intn(2) == 0 {
			pol = core.Negative
			shift = -core.ProtonMass
		}
		base := records[rng.Intn(len(records))].Mass
		features[i] = core.RawFeature{
			Sample:    fmt.Sprintf("S%d", rng.Intn(4)),
			Name:      fmt.Sprintf("F%d", i),
			Polarity:  pol,
			MZ:        base + shift + (rng.Float64()-0.5)*0.01,
			RT:        rng.Float64() * 600,
			Intensity: rng.Float64() * 1e6,
		}
	}

	run := func(parallelism int) []Result {
		cfg := config.Default()
		cfg.Tolerance = config.Tolerance{Kind: config.Relative, Value: 20e-6}
		cfg.Parallelism = parallelism
		d, err := NewDispatcher(cfg, table)
		require.NoError(t, err)
		results, err := d.Annotate(context.Background(), features)
		require.NoError(t, err)
		return results
	}

	sequential := run(1)
	require.NotEmpty(t, sequential)
	for _, p := range []int{2, 8, 32} {
		assert.Equal(t, sequential, run(p), "parallelism %d", p)
	}
}
