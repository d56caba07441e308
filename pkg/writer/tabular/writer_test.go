package tabular

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
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
	}
	alt := core.Prediction{
		Formula:  "C7H16O5",
		Mass:     180.0998,
		Delta:    -0.0003,
		Elements: core.ElementCount{"C": 7, "H": 16, "O": 5},
	}
	f := core.RawFeature{Sample: "S1", Name: "F1", Polarity: core.Positive, MZ: 181.0707, RT: 120, Intensity: 1000}
	g := f
	g.Sample = "S2"
	g.Intensity = 2500

	m, err := model.Build([]annotate.Result{
		{Index: 0, Feature: f, Predictions: []core.Prediction{glucose, alt}},
		{Index: 1, Feature: g, Predictions: []core.Prediction{glucose, alt}},
	})
	require.NoError(t, err)
	return m
}

func lines(buf *bytes.Buffer) [][]string {
	var out [][]string
	for _, l := range strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n") {
		out = append(out, strings.Split(l, "\t"))
	}
	return out
}

func TestWriteModel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).WriteModel(buildModel(t)))

	rows := lines(&buf)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{
		"S1", "F1", "positive", "181.0707", "120", "1000",
		"180.0634", "1e-05", "C6H12O6", "C:6,H:12,O:6", "2", "1", "0",
	}, rows[1])
	assert.Equal(t, "S2", rows[2][0])
	assert.Equal(t, "2500", rows[2][5])
}

func TestWriteModelAlternates(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf, WithAlternates(true)).WriteModel(buildModel(t)))

	rows := lines(&buf)
	require.Len(t, rows[0], len(Header)+1)
	assert.Equal(t, AlternatesColumn, rows[0][len(Header)])
	assert.Equal(t, "[(180.0998, C7H16O5, -0.0003)]", rows[1][len(Header)])
	// Header itself is not mutated
	assert.Len(t, Header, 13)
}

func TestWriteModelEmpty(t *testing.T) {
	m, err := model.Build(nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).WriteModel(m))
	assert.Equal(t, strings.Join(Header, "\t")+"\n", buf.String())
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.tabular")
	require.NoError(t, WriteFile(path, buildModel(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "sample_name\tfeature_name"))

	err = WriteFile(filepath.Join(t.TempDir(), "missing", "out.tabular"), buildModel(t))
	assert.Error(t, err)
}
