package jsonout

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/vkmz/pkg/annotate"
	"github.com/ChrisMcGann/vkmz/pkg/core"
	"github.com/ChrisMcGann/vkmz/pkg/model"
)

func buildModel(t *testing.T) *model.Model {
	t.Helper()
	glucose := core.Prediction{
		Formula:  "C6H12O6",
		Mass:     180.0634,
		Delta:    0.00001,
		Elements: core.ElementCount{"C": 6, "H": 12, "O": 6},
		HC:       2, OC: 1,
		Extra:    map[string]float64{"S": 0},
	}
	f := core.RawFeature{Sample: "S1", Name: "F1", Polarity: core.Negative, MZ: 179.0561, RT: 60, Intensity: 42, Charge: 1}

	m, err := model.Build([]annotate.Result{
		{Index: 0, Feature: f, Predictions: []core.Prediction{glucose}},
	})
	require.NoError(t, err)
	return m
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, buildModel(t)))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)

	obs := got[0]
	assert.Equal(t, "S1", obs["sample_name"])
	assert.Equal(t, "negative", obs["polarity"])
	assert.Equal(t, 42.0, obs["intensity"])

	preds := obs["prediction"].([]any)
	require.Len(t, preds, 1)
	p := preds[0].(map[string]any)
	assert.Equal(t, "C6H12O6", p["formula"])
	assert.Equal(t, map[string]any{"C": 6.0, "H": 12.0, "O": 6.0}, p["element_count"])
	assert.Equal(t, map[string]any{"S": 0.0}, p["ratios"])
}

func TestWriteEmptyIsArray(t *testing.T) {
	m, err := model.Build(nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, m))
	assert.JSONEq(t, "[]", buf.String())
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, WriteFile(path, buildModel(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got []Observation
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Charge)
	assert.Equal(t, 2.0, got[0].Predictions[0].HC)
}
