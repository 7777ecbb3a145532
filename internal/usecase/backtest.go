package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"TWSignal/internal/domain/models"
	domrepo "TWSignal/internal/domain/repository"
	domsvc "TWSignal/internal/domain/service"
	svcmetrics "TWSignal/internal/service/metrics"
	"TWSignal/internal/services/features"
	"TWSignal/pkg/config"
	"TWSignal/pkg/logger"
	"TWSignal/pkg/util"
)

// BacktestConfig selects what to replay. From/To override Period when From is set.
type BacktestConfig struct {
	Tickers       []string
	Period        string
	From          time.Time
	To            time.Time
	Strategy      models.Strategy
	BuyThreshold  float64
	SellThreshold float64
	ModelPath     string
	Horizon       models.Horizon
}

// BacktestSettings are the defaults from pkg/config.
type BacktestSettings struct {
	Features      config.FeatureConfig
	MinBars       int
	Period        string
	BuyThreshold  float64
	SellThreshold float64
	ModelPath     string
}

// Backtester replays signals day by day without look-ahead.
type Backtester struct {
	data      *MarketData
	tech      domsvc.TechnicalScorer
	models    ModelSource
	publisher domrepo.SignalPublisher
	metrics   domrepo.Metrics
	log       *logger.Logger
	cfg       BacktestSettings
	now       func() time.Time
	newID     func() string
}

func NewBacktester(data *MarketData, tech domsvc.TechnicalScorer, models ModelSource, pub domrepo.SignalPublisher,
	m domrepo.Metrics, log *logger.Logger, cfg BacktestSettings) *Backtester {
	if pub == nil {
		pub = domrepo.NopPublisher{}
	}
	if m == nil {
		m = domrepo.NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.MinBars < 2 {
		cfg.MinBars = 50
	}
	if cfg.Period == "" {
		cfg.Period = "1y"
	}
	if cfg.BuyThreshold == 0 {
		cfg.BuyThreshold = 0.6
	}
	if cfg.SellThreshold == 0 {
		cfg.SellThreshold = 0.4
	}
	return &Backtester{data: data, tech: tech, models: models, publisher: pub, metrics: m, log: log,
		cfg: cfg, now: time.Now, newID: uuid.NewString}
}

// warmup widens a replay period so indicators are defined on its first day.
var warmup = map[string]string{
	"1mo": "6mo",
	"3mo": "1y",
	"6mo": "1y",
	"1y":  "2y",
	"2y":  "5y",
	"5y":  "max",
	"max": "max",
}

// decider returns the probability for the last visible bar and the date of
// the newest input it consumed.
type decider func(visible []models.Bar, flows []models.FlowRecord) (p float64, asOf time.Time, err error)

// RunBacktest replays every ticker of c. With one ticker its error is returned;
// with several, failing tickers are skipped with their reason.
func (b *Backtester) RunBacktest(ctx context.Context, c BacktestConfig) (*models.BacktestResult, error) {
	if len(c.Tickers) == 0 {
		return nil, errors.New("backtest: no tickers")
	}
	c = b.withDefaults(c)
	if c.SellThreshold >= c.BuyThreshold {
		return nil, fmt.Errorf("backtest: sell threshold %.2f must be below buy threshold %.2f", c.SellThreshold, c.BuyThreshold)
	}
	decide, err := b.decider(c)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res := &models.BacktestResult{
		RunID:         b.newID(),
		Strategy:      c.Strategy,
		BuyThreshold:  c.BuyThreshold,
		SellThreshold: c.SellThreshold,
		StartedAt:     b.now().UTC(),
		Tickers:       []models.TickerBacktest{},
		Skipped:       []models.Skip{},
	}
	for _, raw := range c.Tickers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tb, err := b.runTicker(ctx, raw, c, decide)
		if err != nil {
			if len(c.Tickers) == 1 {
				return nil, err
			}
			kind := models.ErrorKind(err)
			res.Skipped = append(res.Skipped, models.Skip{Ticker: raw, Kind: kind, Reason: err.Error()})
			b.metrics.RecordSkip("backtest", kind)
			b.log.Warn("backtest skipped ticker",
				logger.String("ticker", raw),
				logger.String("kind", kind),
				logger.Error(err))
			continue
		}
		res.Tickers = append(res.Tickers, *tb)
	}
	res.Summary = pooled(res.Tickers)

	b.observe(res)
	b.metrics.RecordLatency("backtest", time.Since(start).Seconds())
	b.log.Info("backtest done",
		logger.String("run_id", res.RunID),
		logger.String("strategy", string(res.Strategy)),
		logger.Int("tickers", len(res.Tickers)),
		logger.Int("skipped", len(res.Skipped)),
		logger.Int("signal_days", res.Summary.SignalDays),
		logger.Float64("hit_rate", res.Summary.HitRate),
		logger.Duration("took", time.Since(start)))
	if err := b.publisher.PublishBacktest(ctx, res); err != nil {
		b.log.Warn("backtest publish failed", logger.String("run_id", res.RunID), logger.Error(err))
	}
	return res, nil
}

func (b *Backtester) withDefaults(c BacktestConfig) BacktestConfig {
	if c.Period == "" {
		c.Period = b.cfg.Period
	}
	if c.Strategy == "" {
		c.Strategy = models.StrategyModel
	}
	if c.BuyThreshold == 0 {
		c.BuyThreshold = b.cfg.BuyThreshold
	}
	if c.SellThreshold == 0 {
		c.SellThreshold = b.cfg.SellThreshold
	}
	if c.ModelPath == "" {
		c.ModelPath = b.cfg.ModelPath
	}
	if c.Horizon == "" {
		c.Horizon = models.HorizonShort
	}
	return c
}

// decider builds the per-day probability function for the strategy.
// A model that is missing or trained on another schema fails the whole run.
func (b *Backtester) decider(c BacktestConfig) (decider, error) {
	switch c.Strategy {
	case models.StrategyRules:
		return func(visible []models.Bar, _ []models.FlowRecord) (float64, time.Time, error) {
			p, _, err := b.tech.Score(visible, c.Horizon)
			return p, visible[len(visible)-1].Date, err
		}, nil
	case models.StrategyModel:
		if c.ModelPath == "" || b.models == nil {
			return nil, errors.New("backtest: model strategy needs a model path")
		}
		art, err := b.models.Get(c.ModelPath)
		if err != nil {
			return nil, err
		}
		if err := art.Check(features.Schema(b.cfg.Features)); err != nil {
			return nil, err
		}
		return func(visible []models.Bar, flows []models.FlowRecord) (float64, time.Time, error) {
			_, rows, err := features.Build(visible, flows, b.cfg.Features)
			if err != nil {
				return 0, time.Time{}, err
			}
			row := rows[len(rows)-1]
			return art.PredictProba(row.Values), row.Date, nil
		}, nil
	default:
		return nil, fmt.Errorf("backtest: unknown strategy %q", c.Strategy)
	}
}

func (b *Backtester) runTicker(ctx context.Context, raw string, c BacktestConfig, decide decider) (*models.TickerBacktest, error) {
	t, err := models.ParseTicker(raw)
	if err != nil {
		if t, err = b.data.ResolveTicker(ctx, raw); err != nil {
			return nil, err
		}
	}

	from, fetch := c.From, "max"
	if from.IsZero() {
		if from, err = util.PeriodStart(c.Period, b.now()); err != nil {
			return nil, err
		}
		var ok bool
		if fetch, ok = warmup[c.Period]; !ok {
			return nil, fmt.Errorf("backtest: unknown period %q", c.Period)
		}
	}
	hist, err := b.data.GetHistory(ctx, t, fetch)
	if err != nil {
		return nil, err
	}
	bars := hist.Series.Between(time.Time{}, c.To).Bars

	var flows []models.FlowRecord
	if c.Strategy == models.StrategyModel && b.cfg.Features.Flows {
		// Cached flows only; a year of daily exchange tables is not fetched per run.
		if flows, err = b.data.FlowCache.Load(t); err != nil && !errors.Is(err, domrepo.ErrNotCached) {
			b.log.Warn("backtest flows unavailable", logger.String("ticker", t.String()), logger.Error(err))
		}
	}

	tb, err := replay(bars, flows, from, b.cfg.MinBars, c, decide)
	if err != nil {
		var ih *models.InsufficientHistoryError
		if errors.As(err, &ih) {
			ih.Ticker = t.String()
		}
		return nil, err
	}
	tb.Ticker = t.String()
	return tb, nil
}

// cursor exposes the bars a decision on day i may read.
type cursor struct {
	bars []models.Bar
	i    int
}

// visible is bars[:i+1] with its capacity clipped so later bars cannot be reached.
func (c cursor) visible() []models.Bar { return c.bars[: c.i+1 : c.i+1] }

func (c cursor) date() time.Time { return c.bars[c.i].Date }

// flowsThrough keeps the flow records dated on or before day.
func flowsThrough(flows []models.FlowRecord, day time.Time) []models.FlowRecord {
	i := sort.Search(len(flows), func(i int) bool { return flows[i].Date.After(day) })
	return flows[:i:i]
}

// replay walks the bars dated on or after from. Day i decides on bars[:i+1] and,
// while long, earns close[i] to close[i+1].
func replay(bars []models.Bar, flows []models.FlowRecord, from time.Time, minBars int, c BacktestConfig, decide decider) (*models.TickerBacktest, error) {
	first := sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(from) })
	if have := len(bars) - first; have < minBars {
		return nil, &models.InsufficientHistoryError{Need: minBars, Have: have}
	}
	flows = append([]models.FlowRecord(nil), flows...)
	sort.Slice(flows, func(i, j int) bool { return flows[i].Date.Before(flows[j].Date) })

	last := len(bars) - 1
	tb := &models.TickerBacktest{
		From:   bars[first].Date,
		To:     bars[last].Date,
		Trades: []models.Trade{},
		Days:   make([]models.BacktestDay, 0, last-first),
	}

	var (
		holding bool
		open    models.Trade
	)
	for i := first; i < last; i++ {
		cur := cursor{bars: bars, i: i}
		day := models.BacktestDay{Date: cur.date(), Close: bars[i].Close}

		p, asOf, err := decide(cur.visible(), flowsThrough(flows, cur.date()))
		switch {
		case models.IsInsufficientHistory(err):
			// warm-up not complete; no decision possible yet
			if !holding {
				continue
			}
			p = math.NaN()
		case err != nil:
			return nil, err
		case !asOf.Equal(cur.date()):
			return nil, fmt.Errorf("%w: decision for %s read data through %s",
				models.ErrLookAhead, cur.date().Format("2006-01-02"), asOf.Format("2006-01-02"))
		}
		if !math.IsNaN(p) {
			day.Prob = p
		}

		exit := false
		switch {
		case !holding && p > c.BuyThreshold:
			day.Action = models.ActionBuy
			holding = true
			open = models.Trade{EntryDate: bars[i].Date, EntryPrice: bars[i].Close}
		case holding && p < c.SellThreshold:
			day.Action = models.ActionSell
			exit = true
		}
		if holding {
			day.Held = true
			day.FwdReturn = bars[i+1].Close/bars[i].Close - 1
		}
		if exit {
			open.ExitDate, open.ExitPrice = bars[i+1].Date, bars[i+1].Close
			open.Return = open.ExitPrice/open.EntryPrice - 1
			tb.Trades = append(tb.Trades, open)
			holding = false
		}
		tb.Days = append(tb.Days, day)
	}
	if holding {
		open.ExitDate, open.ExitPrice = bars[last].Date, bars[last].Close
		open.Return = open.ExitPrice/open.EntryPrice - 1
		tb.Trades = append(tb.Trades, open)
	}
	tb.Summary = summarize(tb.Days, tb.Trades)
	tb.Summary.MaxDrawdown = maxDrawdown(tb.Days)
	return tb, nil
}

// summarize computes everything but the drawdown, which depends on day order per ticker.
func summarize(days []models.BacktestDay, trades []models.Trade) models.BacktestSummary {
	var s models.BacktestSummary
	rets := make([]float64, 0, len(days))
	hits := 0
	for _, d := range days {
		if !d.Held {
			continue
		}
		rets = append(rets, d.FwdReturn)
		if d.FwdReturn > 0 {
			hits++
		}
	}
	s.SignalDays = len(rets)
	if s.SignalDays > 0 {
		s.HitRate = float64(hits) / float64(s.SignalDays)
		s.AvgReturn = mean(rets)
		s.Distribution = distribution(rets)
	}

	s.NumTrades = len(trades)
	compound, wins := 1.0, 0
	for _, tr := range trades {
		s.TotalReturn += tr.Return
		compound *= 1 + tr.Return
		if tr.Return > 0 {
			wins++
		}
	}
	s.CompoundReturn = compound - 1
	if s.NumTrades > 0 {
		s.WinRate = float64(wins) / float64(s.NumTrades)
	}
	return s
}

// maxDrawdown is the largest peak-to-trough fall of the equity curve, as a positive fraction.
func maxDrawdown(days []models.BacktestDay) float64 {
	equity, peak, mdd := 1.0, 1.0, 0.0
	for _, d := range days {
		if !d.Held {
			continue
		}
		equity *= 1 + d.FwdReturn
		peak = math.Max(peak, equity)
		mdd = math.Max(mdd, (peak-equity)/peak)
	}
	return mdd
}

// pooled merges per-ticker replays. Drawdown is the worst single-ticker drawdown.
func pooled(tickers []models.TickerBacktest) models.BacktestSummary {
	var days []models.BacktestDay
	var trades []models.Trade
	mdd := 0.0
	for _, t := range tickers {
		days = append(days, t.Days...)
		trades = append(trades, t.Trades...)
		mdd = math.Max(mdd, t.Summary.MaxDrawdown)
	}
	s := summarize(days, trades)
	s.MaxDrawdown = mdd
	return s
}

func distribution(rets []float64) models.ReturnDistribution {
	sorted := append([]float64(nil), rets...)
	sort.Float64s(sorted)
	return models.ReturnDistribution{
		P10:    quantile(sorted, 0.10),
		P50:    quantile(sorted, 0.50),
		P90:    quantile(sorted, 0.90),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Stddev: stddev(rets),
	}
}

// quantile interpolates linearly between closest ranks of an ascending slice.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func mean(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

// stddev is the sample standard deviation; a single value gives 0.
func stddev(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	m := mean(x)
	var ss float64
	for _, v := range x {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(x)-1))
}

func (b *Backtester) observe(res *models.BacktestResult) {
	s := res.Summary
	for figure, v := range map[string]float64{
		"hit_rate":     s.HitRate,
		"avg_return":   s.AvgReturn,
		"total_return": s.TotalReturn,
		"max_drawdown": s.MaxDrawdown,
		"signal_days":  float64(s.SignalDays),
		"trades":       float64(s.NumTrades),
	} {
		svcmetrics.BacktestSummary.WithLabelValues(string(res.Strategy), figure).Set(v)
	}
}
