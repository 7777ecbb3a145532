package features

import (
	"testing"

	"TWSignal/internal/domain/models"
	"TWSignal/internal/testutil"
	"TWSignal/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultFeatures() config.FeatureConfig {
	return config.Default().Features
}

func TestBuild_NoLookAhead(t *testing.T) {
	cfg := defaultFeatures()
	cfg.KD = true
	bars := testutil.Bars(160, 7)

	_, full, err := Build(bars, nil, cfg)
	require.NoError(t, err)

	for _, p := range []int{MinBars(cfg), 75, 100, 159} {
		_, prefix, err := Build(bars[:p], nil, cfg)
		require.NoError(t, err, "prefix %d", p)
		require.LessOrEqual(t, len(prefix), len(full))
		for i, row := range prefix {
			assert.Equal(t, full[i].Date, row.Date)
			assert.InDeltaSlice(t, full[i].Values, row.Values, 1e-12, "prefix %d row %d", p, i)
		}
		assert.Equal(t, bars[p-1].Date, prefix[len(prefix)-1].Date)
	}
}

func TestBuild_DropsLeadingRows(t *testing.T) {
	cfg := defaultFeatures()
	bars := testutil.Bars(100, 3)

	schema, rows, err := Build(bars, nil, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	assert.Equal(t, bars[MinBars(cfg)-1].Date, rows[0].Date)
	assert.Len(t, rows, len(bars)-MinBars(cfg)+1)
	for _, r := range rows {
		assert.Len(t, r.Values, len(schema.Columns))
	}
}

func TestBuild_InsufficientHistory(t *testing.T) {
	withKD := defaultFeatures()
	withKD.KD = true

	tests := []struct {
		name string
		cfg  config.FeatureConfig
		n    int
	}{
		{"one short of warm-up", defaultFeatures(), MinBars(defaultFeatures()) - 1},
		{"kd with three bars", withKD, 3},
		{"kd with one bar", withKD, 1},
		{"no bars", withKD, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rows, err := Build(testutil.Bars(tt.n, 1), nil, tt.cfg)

			require.Error(t, err)
			assert.Empty(t, rows)
			var ih *models.InsufficientHistoryError
			require.ErrorAs(t, err, &ih)
			assert.Equal(t, MinBars(tt.cfg), ih.Need)
			assert.Equal(t, tt.n, ih.Have)
		})
	}
}

func TestSchema_ColumnsEmbedWindows(t *testing.T) {
	a := defaultFeatures()
	b := defaultFeatures()
	b.MAWindows = []int{10, 30}

	sa, sb := Schema(a), Schema(b)
	assert.Equal(t, models.FeatureSchemaVersion, sa.Version)
	assert.Contains(t, sa.Columns, "bias_60")
	assert.Contains(t, sb.Columns, "bias_30")
	assert.False(t, sa.Equal(sb))
	assert.Equal(t, 0, sa.Index("bias_5"))
	assert.Contains(t, sa.Columns, "volatility_20d")
	assert.Contains(t, sa.Columns, "ret_1d_lag3")
}

func TestBuild_FlowsNormalisedByVolume(t *testing.T) {
	cfg := defaultFeatures()
	cfg.Flows = true
	bars := testutil.Bars(80, 5)
	last := bars[len(bars)-1]
	flows := []models.FlowRecord{{Date: last.Date, Foreign: last.Volume / 2, Trust: -last.Volume / 4}}

	schema, rows, err := Build(bars, flows, cfg)
	require.NoError(t, err)

	lastRow := rows[len(rows)-1]
	assert.InDelta(t, 0.5, lastRow.Values[schema.Index("flow_foreign")], 1e-9)
	assert.InDelta(t, -0.25, lastRow.Values[schema.Index("flow_trust")], 1e-9)
	assert.Zero(t, rows[0].Values[schema.Index("flow_dealer")])
}

func TestRSI_Extremes(t *testing.T) {
	up := []float64{1, 2, 3, 4, 5, 6}
	flat := []float64{5, 5, 5, 5, 5, 5}

	assert.Equal(t, 100.0, RSI(up, 3)[5])
	assert.Equal(t, 50.0, RSI(flat, 3)[5])
	assert.True(t, isNaN(RSI(up, 3)[2]))
}

func TestStochastic_FlatRange(t *testing.T) {
	x := []float64{10, 10, 10, 10}
	k, d := Stochastic(x, x, x, 2, 2)
	assert.Equal(t, 50.0, k[3])
	assert.Equal(t, 50.0, d[3])
	assert.True(t, isNaN(d[1]))
}

func TestStochastic_ShorterThanWindow(t *testing.T) {
	x := []float64{10, 11, 12}
	k, d := Stochastic(x, x, x, 9, 3)
	require.Len(t, k, 3)
	require.Len(t, d, 3)
	for i := range x {
		assert.True(t, isNaN(k[i]))
		assert.True(t, isNaN(d[i]))
	}
}

func TestEMA_SeededWithFirstValue(t *testing.T) {
	e := EMA([]float64{10, 20}, 3)
	assert.Equal(t, 10.0, e[0])
	assert.Equal(t, 15.0, e[1])
}

func TestLabels(t *testing.T) {
	bars := testutil.Trend(70, 0.01)
	cfg := defaultFeatures()
	_, rows, err := Build(bars, nil, cfg)
	require.NoError(t, err)

	labelled, y := Labels(bars, rows, 2, 0)
	assert.Len(t, labelled, len(rows)-2)
	assert.Len(t, y, len(labelled))
	for _, v := range y {
		assert.Equal(t, 1, v)
	}
	assert.Equal(t, bars[len(bars)-3].Date, labelled[len(labelled)-1].Date)

	_, y = Labels(bars, rows, 1, 0.05)
	for _, v := range y {
		assert.Equal(t, 0, v)
	}
}

func isNaN(v float64) bool { return v != v }
