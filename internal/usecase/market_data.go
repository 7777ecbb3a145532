package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"TWSignal/internal/domain/models"
	domrepo "TWSignal/internal/domain/repository"
	"TWSignal/pkg/cache"
	"TWSignal/pkg/logger"
	"TWSignal/pkg/util"
)

// MarketDataConfig carries the data-layer settings from pkg/config.
type MarketDataConfig struct {
	DefaultPeriod   string
	PublishHour     int
	SyncStart       time.Time
	FlowLookback    int
	ResolveTTL      time.Duration
	FundamentalsTTL time.Duration
	FlowDayTTL      time.Duration
}

// MarketDataDeps groups the collaborators of MarketData. Archive may be nil.
type MarketDataDeps struct {
	Quotes       domrepo.QuoteSource
	Flows        domrepo.FlowSource
	Fundamentals domrepo.FundamentalSource
	Listing      domrepo.ListingSource
	Bars         domrepo.BarCache
	FlowCache    domrepo.FlowCache
	Universe     domrepo.UniverseStore
	Archive      domrepo.BarArchive
	Cache        cache.Service
	Metrics      domrepo.Metrics
	Log          *logger.Logger
}

// MarketData resolves tickers and serves cached market data with incremental refresh.
type MarketData struct {
	MarketDataDeps
	cfg MarketDataConfig
	now func() time.Time
}

func NewMarketData(deps MarketDataDeps, cfg MarketDataConfig) *MarketData {
	if deps.Metrics == nil {
		deps.Metrics = domrepo.NopMetrics{}
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if cfg.DefaultPeriod == "" {
		cfg.DefaultPeriod = "6mo"
	}
	if cfg.ResolveTTL <= 0 {
		cfg.ResolveTTL = 24 * time.Hour
	}
	if cfg.FundamentalsTTL <= 0 {
		cfg.FundamentalsTTL = 12 * time.Hour
	}
	if cfg.FlowDayTTL <= 0 {
		cfg.FlowDayTTL = 12 * time.Hour
	}
	if cfg.FlowLookback <= 0 {
		cfg.FlowLookback = 20
	}
	if cfg.SyncStart.IsZero() {
		cfg.SyncStart = time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &MarketData{MarketDataDeps: deps, cfg: cfg, now: time.Now}
}

// HistoryResult is the outcome of GetHistory.
type HistoryResult struct {
	Series  *models.Series `json:"series"`
	Source  string         `json:"source"` // cache, network or archive
	Stale   bool           `json:"stale"`
	Warning string         `json:"warning,omitempty"`
}

// ResolveTicker turns a code, a suffixed ticker or a company name into a ticker.
// Bare codes are probed on the listed market first, then OTC.
func (m *MarketData) ResolveTicker(ctx context.Context, query string) (models.Ticker, error) {
	raw := strings.TrimSpace(query)
	q := strings.ToUpper(raw)
	if q == "" {
		return models.Ticker{}, &models.NotFoundError{Query: query}
	}
	if strings.Contains(q, ".") {
		t, err := models.ParseTicker(q)
		if err != nil {
			return models.Ticker{}, &models.NotFoundError{Query: query}
		}
		return t, nil
	}

	key := cache.GenerateKey("resolve", q)
	var memo string
	if err := m.Cache.Get(ctx, key, &memo); err == nil {
		if t, err := models.ParseTicker(memo); err == nil {
			m.Metrics.RecordCacheLookup("resolve", true)
			return t, nil
		}
	}
	m.Metrics.RecordCacheLookup("resolve", false)

	code := q
	if !models.IsCode(q) {
		var ok bool
		if code, ok = m.lookupName(raw); !ok {
			return models.Ticker{}, &models.NotFoundError{Query: query}
		}
	}

	t, err := m.probe(ctx, code)
	if err != nil {
		if models.IsNotFound(err) {
			return models.Ticker{}, &models.NotFoundError{Query: query}
		}
		return models.Ticker{}, err
	}
	if err := m.Cache.Set(ctx, key, t.String(), m.cfg.ResolveTTL); err != nil {
		m.Log.Warn("resolve memo not stored", logger.String("query", q), logger.Error(err))
	}
	return t, nil
}

// probe tries code.TW then code.TWO.
func (m *MarketData) probe(ctx context.Context, code string) (models.Ticker, error) {
	var netErr error
	for _, market := range []models.Market{models.MarketListed, models.MarketOTC} {
		t := models.Ticker{Code: code, Market: market}
		ok, err := m.Quotes.Probe(ctx, t)
		if err != nil {
			m.Log.Warn("probe failed", logger.String("ticker", t.String()), logger.Error(err))
			netErr = err
			continue
		}
		if ok {
			return t, nil
		}
	}
	if netErr != nil {
		return models.Ticker{}, &models.DataUnavailableError{Ticker: code, Op: "resolve", Err: netErr}
	}
	return models.Ticker{}, &models.NotFoundError{Query: code}
}

// lookupName matches the name table exactly, then by substring. Partial
// matches are taken in name order so repeated queries agree.
func (m *MarketData) lookupName(q string) (string, bool) {
	names := m.Universe.Names()
	if code, ok := names[q]; ok && models.IsCode(code) {
		return code, true
	}
	lq := strings.ToLower(q)
	var hits []string
	for name, code := range names {
		if models.IsCode(code) && strings.Contains(strings.ToLower(name), lq) {
			hits = append(hits, name)
		}
	}
	if len(hits) == 0 {
		return "", false
	}
	sort.Strings(hits)
	return names[hits[0]], true
}

// NameFor returns the display name of t, or "" when unknown.
func (m *MarketData) NameFor(t models.Ticker) string {
	best := ""
	for name, code := range m.Universe.Names() {
		if code == t.Code && (best == "" || name < best) {
			best = name
		}
	}
	return best
}

// GetHistory returns bars covering period, refreshing the local cache incrementally.
func (m *MarketData) GetHistory(ctx context.Context, t models.Ticker, period string) (*HistoryResult, error) {
	if period == "" {
		period = m.cfg.DefaultPeriod
	}
	now := m.now()
	from, err := util.PeriodStart(period, now)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { m.Metrics.RecordLatency("history", time.Since(start).Seconds()) }()

	cached, err := m.Bars.Load(t)
	if err != nil {
		if !errors.Is(err, domrepo.ErrNotCached) {
			m.Log.Warn("ohlcv cache unreadable", logger.String("ticker", t.String()), logger.Error(err))
		}
		cached = nil
	}

	latest := util.LatestTradingDay(now, m.cfg.PublishHour)
	if cached != nil && cached.Len() > 0 {
		first := cached.Bars[0].Date
		last := cached.Bars[cached.Len()-1].Date
		fresh := !last.Before(latest)
		covers := m.covers(first, from)
		if fresh && covers {
			m.Metrics.RecordCacheLookup("ohlcv", true)
			return m.result(t, cached.Between(from, time.Time{}), "cache", nil)
		}
		m.Metrics.RecordCacheLookup("ohlcv", false)

		var fetched []models.Bar
		var fetchErr error
		if !fresh {
			bars, err := m.Quotes.History(ctx, t, last.AddDate(0, 0, 1), time.Time{})
			switch {
			case errors.Is(err, domrepo.ErrNoData):
				// holiday or not yet published
			case err != nil:
				fetchErr = err
			default:
				fetched = append(fetched, bars...)
			}
		}
		if !covers && fetchErr == nil {
			bars, err := m.Quotes.History(ctx, t, from, first.AddDate(0, 0, -1))
			switch {
			case errors.Is(err, domrepo.ErrNoData):
			case err != nil:
				fetchErr = err
			default:
				fetched = append(fetched, bars...)
			}
		}
		if fetchErr != nil {
			return m.fallback(ctx, t, from, cached, fetchErr)
		}
		m.store(ctx, cached, fetched)
		return m.result(t, cached.Between(from, time.Time{}), "network", nil)
	}

	m.Metrics.RecordCacheLookup("ohlcv", false)
	bars, err := m.Quotes.History(ctx, t, from, time.Time{})
	if err != nil {
		return m.fallback(ctx, t, from, nil, err)
	}
	s := &models.Series{Ticker: t}
	m.store(ctx, s, bars)
	return m.result(t, s.Between(from, time.Time{}), "network", nil)
}

// covers reports whether a cache starting at first spans a window starting at
// from. Holidays can delay the first session, so ten days of slack are allowed.
// The open-ended window counts as covered from the sync start.
func (m *MarketData) covers(first, from time.Time) bool {
	if from.IsZero() {
		from = m.cfg.SyncStart
	}
	return !first.After(from.AddDate(0, 0, 10))
}

// store merges fresh bars into s, then writes the cache and the archive.
// Persistence failures are logged; the caller still gets the merged series.
func (m *MarketData) store(ctx context.Context, s *models.Series, fresh []models.Bar) {
	if s.Merge(fresh) == 0 {
		return
	}
	if err := m.Bars.Save(s); err != nil {
		m.Log.Warn("ohlcv cache write failed", logger.String("ticker", s.Ticker.String()), logger.Error(err))
	}
	if m.Archive != nil {
		if err := m.Archive.StoreBars(ctx, s.Ticker, fresh); err != nil {
			m.Log.Warn("bar archive write failed", logger.String("ticker", s.Ticker.String()), logger.Error(err))
		}
	}
}

// fallback serves cached or archived rows after a failed fetch.
func (m *MarketData) fallback(ctx context.Context, t models.Ticker, from time.Time, cached *models.Series, fetchErr error) (*HistoryResult, error) {
	m.Log.Warn("history fetch failed", logger.String("ticker", t.String()), logger.Error(fetchErr))
	if cached != nil && cached.Len() > 0 {
		last, _ := cached.Last()
		warn := fmt.Sprintf("fetch failed, using cached data through %s: %v", last.Date.Format("2006-01-02"), fetchErr)
		return m.result(t, cached.Between(from, time.Time{}), "cache", &warn)
	}
	if m.Archive != nil && !errors.Is(fetchErr, domrepo.ErrNoData) {
		bars, err := m.Archive.Bars(ctx, t, from, time.Time{})
		if err != nil {
			m.Log.Warn("bar archive read failed", logger.String("ticker", t.String()), logger.Error(err))
		} else if len(bars) > 0 {
			last := bars[len(bars)-1].Date
			warn := fmt.Sprintf("fetch failed, using archived data through %s: %v", last.Format("2006-01-02"), fetchErr)
			return m.result(t, &models.Series{Ticker: t, Bars: bars}, "archive", &warn)
		}
	}
	m.Metrics.RecordError("data_unavailable")
	return nil, &models.DataUnavailableError{Ticker: t.String(), Op: "history", Err: fetchErr}
}

func (m *MarketData) result(t models.Ticker, s *models.Series, source string, warning *string) (*HistoryResult, error) {
	if s.Len() == 0 {
		return nil, &models.DataUnavailableError{Ticker: t.String(), Op: "history", Err: domrepo.ErrNoData}
	}
	last, _ := s.Last()
	m.Metrics.RecordLastClose(t.String(), last.Close)
	res := &HistoryResult{Series: s, Source: source}
	if warning != nil {
		res.Stale = true
		res.Warning = *warning
	}
	return res, nil
}

// GetFlows returns up to days institutional flow records ending at the latest
// trading day. OTC tickers are not covered by T86 and yield nothing.
func (m *MarketData) GetFlows(ctx context.Context, t models.Ticker, days int) ([]models.FlowRecord, error) {
	if t.Market != models.MarketListed {
		return []models.FlowRecord{}, nil
	}
	if days <= 0 {
		days = m.cfg.FlowLookback
	}

	cached, err := m.FlowCache.Load(t)
	if err != nil && !errors.Is(err, domrepo.ErrNotCached) {
		m.Log.Warn("flow cache unreadable", logger.String("ticker", t.String()), logger.Error(err))
	}
	have := make(map[time.Time]bool, len(cached))
	for _, f := range cached {
		have[f.Date] = true
	}

	wanted := util.RecentWeekdays(util.LatestTradingDay(m.now(), m.cfg.PublishHour), days)
	var added []models.FlowRecord
	var fetchErr error
	for _, day := range wanted {
		if have[day] {
			continue
		}
		table, err := m.flowDay(ctx, day)
		if errors.Is(err, domrepo.ErrNoData) {
			continue
		}
		if err != nil {
			fetchErr = err
			break
		}
		if rec, ok := table[t.Code]; ok {
			rec.Date = day
			added = append(added, rec)
		}
	}
	if fetchErr != nil {
		m.Log.Warn("flow fetch failed", logger.String("ticker", t.String()), logger.Error(fetchErr))
		if len(cached) == 0 && len(added) == 0 {
			return nil, &models.DataUnavailableError{Ticker: t.String(), Op: "flows", Err: fetchErr}
		}
	}

	all := append(cached, added...)
	sort.Slice(all, func(i, j int) bool { return all[i].Date.Before(all[j].Date) })
	if len(added) > 0 {
		if err := m.FlowCache.Save(t, all); err != nil {
			m.Log.Warn("flow cache write failed", logger.String("ticker", t.String()), logger.Error(err))
		}
	}

	cutoff := wanted[0]
	out := make([]models.FlowRecord, 0, days)
	for _, f := range all {
		if !f.Date.Before(cutoff) {
			out = append(out, f)
		}
	}
	return out, nil
}

// flowDay loads the whole-market T86 table for day, shared across tickers through the cache.
func (m *MarketData) flowDay(ctx context.Context, day time.Time) (map[string]models.FlowRecord, error) {
	key := cache.GenerateKey("flows", day.Format("20060102"))
	return cache.GetOrLoad(ctx, m.Cache, key, m.cfg.FlowDayTTL, func(ctx context.Context) (map[string]models.FlowRecord, error) {
		return m.Flows.DailyFlows(ctx, day)
	})
}

// GetFundamentals returns valuation ratios for listed stocks. OTC tickers and
// ETFs have none and return nil without error.
func (m *MarketData) GetFundamentals(ctx context.Context, t models.Ticker) (*models.Fundamentals, error) {
	if t.Market != models.MarketListed || t.IsETF() {
		return nil, nil
	}
	day := util.LatestTradingDay(m.now(), m.cfg.PublishHour)
	// The report can lag a session behind; walk back a few weekdays.
	for i := 0; i < 3; i++ {
		key := cache.GenerateKey("fundamentals", day.Format("20060102"))
		table, err := cache.GetOrLoad(ctx, m.Cache, key, m.cfg.FundamentalsTTL, func(ctx context.Context) (map[string]models.Fundamentals, error) {
			return m.Fundamentals.DailyFundamentals(ctx, day)
		})
		if errors.Is(err, domrepo.ErrNoData) {
			day = util.PrevWeekday(day)
			continue
		}
		if err != nil {
			return nil, &models.DataUnavailableError{Ticker: t.String(), Op: "fundamentals", Err: err}
		}
		f, ok := table[t.Code]
		if !ok {
			return nil, nil
		}
		return &f, nil
	}
	return nil, nil
}

// SyncOptions controls SyncUniverse.
type SyncOptions struct {
	MaxTickers int
	Force      bool
	Progress   func(done, total int, ticker string)
}

// SyncReport counts SyncUniverse outcomes.
type SyncReport struct {
	Success int    `json:"success"`
	Failed  int    `json:"failed"`
	Skipped int    `json:"skipped"`
	Errors  []Skip `json:"errors,omitempty"`
}

// Skip aliases the domain skip record for use-case callers.
type Skip = models.Skip

// SyncUniverse downloads full history from the sync start for every universe
// ticker. Cached tickers are skipped unless Force is set.
func (m *MarketData) SyncUniverse(ctx context.Context, opts SyncOptions) (*SyncReport, error) {
	entries, err := m.Universe.Load()
	if errors.Is(err, domrepo.ErrNotCached) {
		return nil, fmt.Errorf("no universe file; refresh the universe first")
	}
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
	}
	var tickers []models.Ticker
	for _, e := range entries {
		if !e.IsActive {
			continue
		}
		t, err := models.ParseTicker(e.Ticker)
		if err != nil {
			continue
		}
		tickers = append(tickers, t)
	}
	if opts.MaxTickers > 0 && len(tickers) > opts.MaxTickers {
		tickers = tickers[:opts.MaxTickers]
	}

	rep := &SyncReport{}
	for i, t := range tickers {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if opts.Progress != nil {
			opts.Progress(i, len(tickers), t.String())
		}
		if !opts.Force && m.Bars.Exists(t) {
			rep.Skipped++
			continue
		}
		bars, err := m.Quotes.History(ctx, t, m.cfg.SyncStart, time.Time{})
		if err != nil {
			rep.Failed++
			rep.Errors = append(rep.Errors, Skip{Ticker: t.String(), Kind: "data_unavailable", Reason: err.Error()})
			m.Log.Warn("sync failed", logger.String("ticker", t.String()), logger.Error(err))
			continue
		}
		s := &models.Series{Ticker: t}
		m.store(ctx, s, bars)
		rep.Success++
	}
	if opts.Progress != nil {
		opts.Progress(len(tickers), len(tickers), "")
	}
	m.Log.Info("sync done",
		logger.Int("success", rep.Success),
		logger.Int("failed", rep.Failed),
		logger.Int("skipped", rep.Skipped))
	return rep, nil
}

// RefreshUniverse scrapes the exchange listing and rewrites the universe and name table.
func (m *MarketData) RefreshUniverse(ctx context.Context) (int, error) {
	entries, err := m.Listing.Listing(ctx)
	if err != nil {
		return 0, &models.DataUnavailableError{Ticker: "*", Op: "listing", Err: err}
	}
	if err := m.Universe.Save(entries); err != nil {
		return 0, fmt.Errorf("save universe: %w", err)
	}
	names := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.Name != "" {
			names[e.Name] = e.Code
		}
	}
	if err := m.Universe.SaveNames(names); err != nil {
		return 0, fmt.Errorf("save names: %w", err)
	}
	m.Log.Info("universe refreshed", logger.Int("entries", len(entries)))
	return len(entries), nil
}

// ClearReport counts removed cache files.
type ClearReport struct {
	OHLCV int `json:"ohlcv"`
	Flows int `json:"flows"`
}

// ClearCache deletes cached OHLCV and flow files and the resolution memo.
func (m *MarketData) ClearCache(ctx context.Context) (*ClearReport, error) {
	rep := &ClearReport{}
	var err error
	if rep.OHLCV, err = m.Bars.Clear(); err != nil {
		return rep, fmt.Errorf("clear ohlcv: %w", err)
	}
	if rep.Flows, err = m.FlowCache.Clear(); err != nil {
		return rep, fmt.Errorf("clear flows: %w", err)
	}
	for _, prefix := range []string{"resolve", "flows", "fundamentals"} {
		if err := m.Cache.DeleteByPattern(ctx, cache.BuildPattern(prefix)); err != nil {
			m.Log.Warn("cache pattern delete failed", logger.String("prefix", prefix), logger.Error(err))
		}
	}
	m.Log.Info("cache cleared", logger.Int("ohlcv", rep.OHLCV), logger.Int("flows", rep.Flows))
	return rep, nil
}
