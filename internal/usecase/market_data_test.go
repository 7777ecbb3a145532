package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TWSignal/internal/domain/models"
	"TWSignal/internal/testutil"
	"TWSignal/pkg/util"
)

func TestResolveTicker_ListedThenOTC(t *testing.T) {
	bars := testutil.Bars(10, 1)
	f := newFixture(t, bars[9].Date)
	f.quotes.probeOK = map[string]bool{"2330.TW": true, "2330.TWO": true, "4772.TWO": true}
	ctx := context.Background()

	got, err := f.md.ResolveTicker(ctx, "2330")
	require.NoError(t, err)
	assert.Equal(t, "2330.TW", got.String())

	got, err = f.md.ResolveTicker(ctx, " 4772 ")
	require.NoError(t, err)
	assert.Equal(t, "4772.TWO", got.String())

	got, err = f.md.ResolveTicker(ctx, "6488.two")
	require.NoError(t, err)
	assert.Equal(t, "6488.TWO", got.String())

	_, err = f.md.ResolveTicker(ctx, "9999")
	var nf *models.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "9999", nf.Query)
}

func TestResolveTicker_MemoSurvivesNetworkFailure(t *testing.T) {
	f := newFixture(t, testutil.Start)
	f.quotes.probeOK = map[string]bool{"4772.TWO": true}
	ctx := context.Background()

	_, err := f.md.ResolveTicker(ctx, "4772")
	require.NoError(t, err)

	f.quotes.err = errNetwork
	got, err := f.md.ResolveTicker(ctx, "4772")
	require.NoError(t, err)
	assert.Equal(t, "4772.TWO", got.String())

	_, err = f.md.ResolveTicker(ctx, "1234")
	assert.True(t, models.IsDataUnavailable(err), "network failure is not a not-found: %v", err)
}

func TestResolveTicker_ByName(t *testing.T) {
	f := newFixture(t, testutil.Start)
	f.quotes.probeOK = map[string]bool{"2330.TW": true, "3045.TW": true}
	f.universe.names = map[string]string{"台積電": "2330", "台灣大": "3045"}
	ctx := context.Background()

	got, err := f.md.ResolveTicker(ctx, "台積電")
	require.NoError(t, err)
	assert.Equal(t, "2330.TW", got.String())

	got, err = f.md.ResolveTicker(ctx, "台灣")
	require.NoError(t, err)
	assert.Equal(t, "3045.TW", got.String())

	_, err = f.md.ResolveTicker(ctx, "鴻海")
	assert.True(t, models.IsNotFound(err))

	assert.Equal(t, "台積電", f.md.NameFor(models.MustTicker("2330.TW")))
	assert.Empty(t, f.md.NameFor(models.MustTicker("2317.TW")))
}

func TestGetHistory_FreshCacheSkipsNetwork(t *testing.T) {
	bars := testutil.Bars(300, 1)
	f := newFixture(t, bars[len(bars)-1].Date)
	require.NoError(t, f.bars.Save(testutil.Series("2330.TW", bars)))

	res, err := f.md.GetHistory(context.Background(), models.MustTicker("2330.TW"), "6mo")
	require.NoError(t, err)
	assert.Equal(t, "cache", res.Source)
	assert.False(t, res.Stale)
	assert.Zero(t, f.quotes.historyCalls())

	from, err := util.PeriodStart("6mo", f.now)
	require.NoError(t, err)
	assert.False(t, res.Series.Bars[0].Date.Before(from))
	assert.Equal(t, bars[len(bars)-1], res.Series.Bars[res.Series.Len()-1])
}

func TestGetHistory_IncrementalFetch(t *testing.T) {
	bars := testutil.Bars(300, 1)
	f := newFixture(t, bars[len(bars)-1].Date)
	tk := models.MustTicker("2330.TW")
	require.NoError(t, f.bars.Save(testutil.Series("2330.TW", bars[:297])))
	f.quotes.bars["2330.TW"] = bars

	res, err := f.md.GetHistory(context.Background(), tk, "6mo")
	require.NoError(t, err)
	assert.Equal(t, "network", res.Source)
	require.Equal(t, 1, f.quotes.historyCalls())
	assert.Equal(t, bars[296].Date.AddDate(0, 0, 1), f.quotes.calls[0], "fetch starts after the last cached day")

	cached, err := f.bars.Load(tk)
	require.NoError(t, err)
	assert.Equal(t, bars, cached.Bars)
	assert.Equal(t, bars[299], res.Series.Bars[res.Series.Len()-1])
}

func TestGetHistory_CachedRowsMatchFetchedRows(t *testing.T) {
	bars := testutil.Bars(300, 2)
	f := newFixture(t, bars[len(bars)-1].Date)
	f.quotes.bars["2330.TW"] = bars
	tk := models.MustTicker("2330.TW")
	ctx := context.Background()

	fetched, err := f.md.GetHistory(ctx, tk, "1y")
	require.NoError(t, err)
	assert.Equal(t, "network", fetched.Source)

	again, err := f.md.GetHistory(ctx, tk, "1y")
	require.NoError(t, err)
	assert.Equal(t, "cache", again.Source)
	assert.Equal(t, fetched.Series.Bars, again.Series.Bars)
	assert.Equal(t, 1, f.quotes.historyCalls())
}

func TestGetHistory_StaleFallback(t *testing.T) {
	bars := testutil.Bars(300, 1)
	f := newFixture(t, bars[len(bars)-1].Date)
	require.NoError(t, f.bars.Save(testutil.Series("2330.TW", bars[:298])))
	f.quotes.err = errNetwork

	res, err := f.md.GetHistory(context.Background(), models.MustTicker("2330.TW"), "6mo")
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Equal(t, "cache", res.Source)
	assert.Contains(t, res.Warning, "using cached data through "+bars[297].Date.Format("2006-01-02"))
	assert.Equal(t, bars[297], res.Series.Bars[res.Series.Len()-1])
}

func TestGetHistory_ArchiveFallback(t *testing.T) {
	bars := testutil.Bars(300, 1)
	f := newFixture(t, bars[len(bars)-1].Date)
	f.md.Archive = &fakeArchive{bars: map[string][]models.Bar{"2330.TW": bars[:250]}}
	f.quotes.err = errNetwork

	res, err := f.md.GetHistory(context.Background(), models.MustTicker("2330.TW"), "6mo")
	require.NoError(t, err)
	assert.Equal(t, "archive", res.Source)
	assert.True(t, res.Stale)
}

func TestGetHistory_NoFallback(t *testing.T) {
	f := newFixture(t, testutil.Bars(1, 1)[0].Date)
	f.quotes.err = errNetwork

	_, err := f.md.GetHistory(context.Background(), models.MustTicker("2330.TW"), "6mo")
	var du *models.DataUnavailableError
	require.ErrorAs(t, err, &du)
	assert.Equal(t, "history", du.Op)
	assert.True(t, errors.Is(err, errNetwork))
}

func TestGetHistory_ArchivesFreshBars(t *testing.T) {
	bars := testutil.Bars(200, 1)
	f := newFixture(t, bars[len(bars)-1].Date)
	arch := &fakeArchive{}
	f.md.Archive = arch
	f.quotes.bars["2330.TW"] = bars

	_, err := f.md.GetHistory(context.Background(), models.MustTicker("2330.TW"), "max")
	require.NoError(t, err)
	assert.Equal(t, 200, arch.stored)
}

func TestGetFlows(t *testing.T) {
	bars := testutil.Bars(30, 1)
	f := newFixture(t, bars[len(bars)-1].Date)
	days := util.RecentWeekdays(bars[len(bars)-1].Date, 5)
	for i, d := range days {
		f.flows.tables[d] = map[string]models.FlowRecord{"2330": {Foreign: float64(100 * (i + 1)), Trust: -1}}
	}
	ctx := context.Background()
	tk := models.MustTicker("2330.TW")

	got, err := f.md.GetFlows(ctx, tk, 5)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, days[0], got[0].Date)
	assert.Equal(t, 500.0, got[4].Foreign)

	f.flows.err = errNetwork
	got, err = f.md.GetFlows(ctx, tk, 5)
	require.NoError(t, err, "served from the flow cache")
	assert.Len(t, got, 5)

	otc, err := f.md.GetFlows(ctx, models.MustTicker("6488.TWO"), 5)
	require.NoError(t, err)
	assert.Empty(t, otc)

	// whole-market tables are shared through the cache
	none, err := f.md.GetFlows(ctx, models.MustTicker("2317.TW"), 5)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, f.cache.DeleteByPattern(ctx, "flows:*"))
	_, err = f.md.GetFlows(ctx, models.MustTicker("2317.TW"), 5)
	assert.True(t, models.IsDataUnavailable(err))
}

func TestGetFundamentals(t *testing.T) {
	f := newFixture(t, testutil.Bars(5, 1)[4].Date)
	f.fund.table = map[string]models.Fundamentals{"2330": {Ticker: "2330.TW", PE: 12, DividendYield: 4.5, PB: 1.2}}
	ctx := context.Background()

	got, err := f.md.GetFundamentals(ctx, models.MustTicker("2330.TW"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 12.0, got.PE)

	for _, tk := range []string{"0050.TW", "6488.TWO", "2317.TW"} {
		got, err := f.md.GetFundamentals(ctx, models.MustTicker(tk))
		require.NoError(t, err, tk)
		assert.Nil(t, got, tk)
	}
}

func TestSyncUniverse(t *testing.T) {
	bars := testutil.Bars(50, 1)
	f := newFixture(t, bars[49].Date)
	ctx := context.Background()

	_, err := f.md.SyncUniverse(ctx, SyncOptions{})
	require.Error(t, err)

	f.universe.entries = []models.UniverseEntry{
		{Ticker: "2330.TW", IsActive: true},
		{Ticker: "2317.TW", IsActive: true},
		{Ticker: "9999.TW", IsActive: true},
		{Ticker: "1101.TW", IsActive: false},
	}
	f.quotes.bars["2330.TW"] = bars
	require.NoError(t, f.bars.Save(testutil.Series("2317.TW", bars)))

	var progress []string
	rep, err := f.md.SyncUniverse(ctx, SyncOptions{Progress: func(_, _ int, tk string) {
		progress = append(progress, tk)
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Success)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, rep.Failed)
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, "9999.TW", rep.Errors[0].Ticker)
	assert.Equal(t, []string{"2330.TW", "2317.TW", "9999.TW", ""}, progress)
	assert.True(t, f.bars.Exists(models.MustTicker("2330.TW")))

	rep, err = f.md.SyncUniverse(ctx, SyncOptions{MaxTickers: 1, Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Success)
}

func TestRefreshUniverseAndClearCache(t *testing.T) {
	f := newFixture(t, testutil.Start)
	f.listing.entries = []models.UniverseEntry{
		{Code: "2330", Name: "台積電", Ticker: "2330.TW", Market: "TW", IsActive: true},
		{Code: "6488", Name: "環球晶", Ticker: "6488.TWO", Market: "TWO", IsActive: true},
	}
	ctx := context.Background()

	n, err := f.md.RefreshUniverse(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, map[string]string{"台積電": "2330", "環球晶": "6488"}, f.universe.Names())

	f.listing.err = errNetwork
	_, err = f.md.RefreshUniverse(ctx)
	assert.True(t, models.IsDataUnavailable(err))

	require.NoError(t, f.bars.Save(testutil.Series("2330.TW", testutil.Bars(3, 1))))
	require.NoError(t, f.flowFile.Save(models.MustTicker("2330.TW"), []models.FlowRecord{{Date: testutil.Start}}))
	require.NoError(t, f.cache.Set(ctx, "resolve:2330", "2330.TW", 0))

	rep, err := f.md.ClearCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, &ClearReport{OHLCV: 1, Flows: 1}, rep)
	ok, err := f.cache.Exists(ctx, "resolve:2330")
	require.NoError(t, err)
	assert.False(t, ok)
}
