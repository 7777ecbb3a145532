package usecase

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TWSignal/internal/domain/models"
	"TWSignal/internal/services/analytics"
	"TWSignal/internal/services/ml"
	"TWSignal/internal/testutil"
	"TWSignal/pkg/config"
)

func newAnalysis(f *fixture, pub *recordingPublisher, modelPath string) *Analysis {
	cfg := f.cfg
	a := NewAnalysis(f.md,
		analytics.NewTechnicalScorer(cfg.Features),
		analytics.NewFundamentalScorer(),
		ml.NewRegistry(nil),
		f.cache, pub, nil, nil,
		AnalysisConfig{
			Features:     cfg.Features,
			Weights:      cfg.Analysis.Weights,
			BuyBand:      cfg.Analysis.BuyBand,
			SellBand:     cfg.Analysis.SellBand,
			Universes:    map[string][]string{"test": {"2330.TW", "9999.TW", "2317.TW"}},
			ModelPath:    modelPath,
			Period:       "6mo",
			TopN:         5,
			ScanCacheTTL: time.Minute,
		})
	a.now = func() time.Time { return f.now }
	return a
}

func scanFixture(t *testing.T) *fixture {
	t.Helper()
	a := testutil.Bars(300, 11)
	f := newFixture(t, a[len(a)-1].Date)
	f.quotes.bars["2330.TW"] = a
	f.quotes.bars["2317.TW"] = testutil.Bars(300, 12)
	f.universe.names = map[string]string{"台積電": "2330"}
	return f
}

func TestDailyScan_SkipsBrokenTicker(t *testing.T) {
	f := scanFixture(t)
	pub := &recordingPublisher{}
	a := newAnalysis(f, pub, "")
	ctx := context.Background()

	var seen []string
	res, err := a.DailyScan(ctx, ScanParams{Universe: "test", Horizon: models.HorizonShort, Progress: func(_, _ int, tk string) {
		seen = append(seen, tk)
	}})
	require.NoError(t, err)

	require.Len(t, res.Ranked, 2)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "9999.TW", res.Skipped[0].Ticker)
	assert.Equal(t, "data_unavailable", res.Skipped[0].Kind)
	assert.NotEmpty(t, res.Skipped[0].Reason)
	assert.GreaterOrEqual(t, res.Ranked[0].Score, res.Ranked[1].Score)
	for _, r := range res.Ranked {
		assert.Equal(t, analytics.LabelFor(r.Score, 0.6, 0.4), r.Label)
		assert.False(t, r.ModelUsed)
		assert.Nil(t, r.Indicators, "scan keeps recommendations light")
	}
	assert.Equal(t, "台積電", findRec(res.Ranked, "2330.TW").Name)
	assert.Equal(t, []string{"2330.TW", "9999.TW", "2317.TW", ""}, seen)
	require.Len(t, pub.scans, 1)

	calls := f.quotes.historyCalls()
	cached, err := a.DailyScan(ctx, ScanParams{Universe: "test", Horizon: models.HorizonShort})
	require.NoError(t, err)
	assert.Len(t, cached.Ranked, 2)
	assert.Equal(t, calls, f.quotes.historyCalls(), "second scan served from the result cache")
	assert.Len(t, pub.scans, 1)
}

func TestDailyScan_Universes(t *testing.T) {
	f := scanFixture(t)
	a := newAnalysis(f, &recordingPublisher{}, "")
	ctx := context.Background()

	_, err := a.DailyScan(ctx, ScanParams{Universe: "nope"})
	assert.ErrorIs(t, err, ErrUnknownUniverse)

	_, err = a.DailyScan(ctx, ScanParams{Universe: "test", Horizon: "weekly"})
	assert.Error(t, err)

	f.universe.entries = []models.UniverseEntry{
		{Ticker: "2330.TW", IsActive: true},
		{Ticker: "2317.TW", IsActive: false},
	}
	res, err := a.DailyScan(ctx, ScanParams{Universe: UniverseListed, Horizon: models.HorizonLong, Refresh: true})
	require.NoError(t, err)
	require.Len(t, res.Ranked, 1)
	assert.Equal(t, models.HorizonLong, res.Ranked[0].Horizon)

	assert.Equal(t, []string{"test", UniverseListed}, a.Universes())
}

func TestRank(t *testing.T) {
	rec := func(tk string, score float64, l models.Label) *models.Recommendation {
		return &models.Recommendation{Ticker: tk, Score: score, Label: l}
	}
	res := &models.ScanResult{Ranked: []*models.Recommendation{
		rec("A", 0.2, models.LabelSell),
		rec("B", 0.7, models.LabelBuy),
		rec("C", 0.65, models.LabelBuy),
		rec("D", 0.7, models.LabelBuy),
		rec("E", 0.5, models.LabelHold),
		rec("F", 0.35, models.LabelSell),
	}}
	rank(res, 2)

	var order []string
	for _, r := range res.Ranked {
		order = append(order, r.Ticker)
	}
	assert.Equal(t, []string{"B", "D", "C", "E", "F", "A"}, order)
	require.Len(t, res.TopPicks, 2)
	assert.Equal(t, "B", res.TopPicks[0].Ticker)
	assert.Equal(t, "D", res.TopPicks[1].Ticker)
	require.Len(t, res.Warnings, 2)
	assert.Equal(t, "A", res.Warnings[0].Ticker, "lowest score first")
}

func TestDiagnose(t *testing.T) {
	f := scanFixture(t)
	a := newAnalysis(f, &recordingPublisher{}, "")
	ctx := context.Background()

	rec, err := a.Diagnose(ctx, "2330", models.HorizonShort, "")
	require.NoError(t, err)
	assert.Equal(t, "2330.TW", rec.Ticker)
	require.NotNil(t, rec.Indicators)
	assert.NotNil(t, rec.Components.Technical)
	assert.Nil(t, rec.Components.Model)
	assert.Equal(t, 0.5, rec.ProbUp)
	assert.Equal(t, "UP", rec.Direction)
	assert.InDelta(t, *rec.Components.Technical, rec.Score, 1e-9, "technical is the only component")

	_, err = a.Diagnose(ctx, "9999", models.HorizonShort, "")
	assert.True(t, models.IsNotFound(err))
}

func TestDiagnose_InsufficientHistory(t *testing.T) {
	f := scanFixture(t)
	bars := testutil.Bars(300, 5)
	f.quotes.bars["1234.TW"] = bars[270:]
	a := newAnalysis(f, &recordingPublisher{}, "")

	_, err := a.Diagnose(context.Background(), "1234.TW", models.HorizonShort, "")
	var ih *models.InsufficientHistoryError
	require.ErrorAs(t, err, &ih)
	assert.Equal(t, "1234.TW", ih.Ticker)
	assert.Equal(t, 30, ih.Have)
}

func TestModelMismatch_DiagnoseFailsScanWarns(t *testing.T) {
	f := scanFixture(t)
	path := filepath.Join(t.TempDir(), "old.json")
	forest, err := ml.TrainForest([][]float64{{0, 1}, {1, 0}, {0, 0}, {1, 1}}, []int{0, 1, 0, 1},
		config.Forest{Trees: 2, MaxDepth: 2, MinLeaf: 1}, 1)
	require.NoError(t, err)
	require.NoError(t, ml.Save(path, &ml.Artifact{
		Schema: models.FeatureSchema{Version: "v0", Columns: []string{"a", "b"}},
		Forest: forest,
	}))
	a := newAnalysis(f, &recordingPublisher{}, path)
	ctx := context.Background()

	_, err = a.Diagnose(ctx, "2330.TW", models.HorizonShort, "")
	assert.True(t, models.IsModelMismatch(err))

	res, err := a.DailyScan(ctx, ScanParams{Universe: "test"})
	require.NoError(t, err)
	assert.Len(t, res.Ranked, 2)
	require.Len(t, res.Notes, 1)
	assert.Contains(t, res.Notes[0], "schema mismatch")
}

func findRec(recs []*models.Recommendation, ticker string) *models.Recommendation {
	for _, r := range recs {
		if r.Ticker == ticker {
			return r
		}
	}
	return &models.Recommendation{}
}
