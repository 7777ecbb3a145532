package analytics

import (
	"testing"

	"TWSignal/internal/domain/models"
	"TWSignal/internal/testutil"
	"TWSignal/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestTechScorer_Trends(t *testing.T) {
	s := NewTechnicalScorer(config.Default().Features)

	up := testutil.Trend(120, 0.01)
	shortUp, ind, err := s.Score(up, models.HorizonShort)
	require.NoError(t, err)
	assert.Greater(t, shortUp, 0.5)
	assert.Contains(t, ind.Signals, "close above MA5")
	assert.Greater(t, ind.MA[5], ind.MA[20])
	assert.Greater(t, ind.BBUpper, ind.BBLower)

	longUp, _, err := s.Score(up, models.HorizonLong)
	require.NoError(t, err)
	assert.Greater(t, longUp, 0.9)

	down := testutil.Trend(120, -0.01)
	shortDown, _, err := s.Score(down, models.HorizonShort)
	require.NoError(t, err)
	assert.Less(t, shortDown, shortUp)

	longDown, _, err := s.Score(down, models.HorizonLong)
	require.NoError(t, err)
	assert.Less(t, longDown, 0.1)
}

func TestTechScorer_FlatSeriesIsNeutralRSI(t *testing.T) {
	s := NewTechnicalScorer(config.Default().Features)
	_, ind, err := s.Score(testutil.Trend(80, 0), models.HorizonShort)
	require.NoError(t, err)
	assert.Equal(t, 50.0, ind.RSI)
}

func TestTechScorer_InsufficientHistory(t *testing.T) {
	s := NewTechnicalScorer(config.Default().Features)
	_, _, err := s.Score(testutil.Bars(30, 1), models.HorizonShort)
	assert.True(t, models.IsInsufficientHistory(err))
}

func TestFundScorer(t *testing.T) {
	s := NewFundamentalScorer()

	cheap, ok := s.Score(&models.Fundamentals{PE: 10, DividendYield: 5, PB: 1.2}, models.HorizonShort)
	require.True(t, ok)
	assert.Equal(t, 1.0, cheap)

	rich, ok := s.Score(&models.Fundamentals{PE: 40, DividendYield: 1, PB: 6}, models.HorizonShort)
	require.True(t, ok)
	assert.InDelta(t, 1.0/6, rich, 1e-9)

	_, ok = s.Score(&models.Fundamentals{}, models.HorizonLong)
	assert.False(t, ok)
	_, ok = s.Score(nil, models.HorizonLong)
	assert.False(t, ok)
}

func TestComposite_RenormalisesOverPresent(t *testing.T) {
	w := config.Weights{Technical: 0.4, Fundamental: 0.1, Model: 0.5}

	score, ok := Composite(models.Components{Technical: ptr(0.8)}, w)
	require.True(t, ok)
	assert.InDelta(t, 0.8, score, 1e-12)

	score, ok = Composite(models.Components{Technical: ptr(0.8), Model: ptr(0.2)}, w)
	require.True(t, ok)
	assert.InDelta(t, (0.8*0.4+0.2*0.5)/0.9, score, 1e-12)

	_, ok = Composite(models.Components{}, w)
	assert.False(t, ok)
}

func TestLabelFor_InclusiveBands(t *testing.T) {
	assert.Equal(t, models.LabelBuy, LabelFor(0.60, 0.60, 0.40))
	assert.Equal(t, models.LabelHold, LabelFor(0.59, 0.60, 0.40))
	assert.Equal(t, models.LabelSell, LabelFor(0.40, 0.60, 0.40))
}

func TestDirectionAndConfidence(t *testing.T) {
	assert.Equal(t, "UP", Direction(0.5))
	assert.Equal(t, "DOWN", Direction(0.49))
	assert.InDelta(t, 0.6, Confidence(0.8), 1e-12)
	assert.InDelta(t, 1.0, Confidence(0), 1e-12)
}

func TestKeyMetrics(t *testing.T) {
	bars := testutil.Trend(30, 0.01)
	m := KeyMetrics(bars)

	require.NotNil(t, m.Return1D)
	assert.Equal(t, 1.0, *m.Return1D)
	require.NotNil(t, m.Return5D)
	assert.Equal(t, 5.1, *m.Return5D)
	require.NotNil(t, m.Volatility20D)
	assert.Equal(t, 0.0, *m.Volatility20D)
	require.NotNil(t, m.VolumeRatio20D)
	assert.Equal(t, 1.0, *m.VolumeRatio20D)

	assert.Nil(t, KeyMetrics(bars[:1]).Return1D)
}
