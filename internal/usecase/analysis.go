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
	domsvc "TWSignal/internal/domain/service"
	svcmetrics "TWSignal/internal/service/metrics"
	"TWSignal/internal/services/analytics"
	"TWSignal/internal/services/features"
	"TWSignal/internal/services/ml"
	"TWSignal/pkg/cache"
	"TWSignal/pkg/config"
	"TWSignal/pkg/logger"
)

// ErrUnknownUniverse is returned for a scan universe that is neither configured nor "listed".
var ErrUnknownUniverse = errors.New("unknown universe")

// UniverseListed scans every active entry of the universe file.
const UniverseListed = "listed"

const (
	flowSummaryDays = 5
	maxWarnings     = 5
)

// ModelSource hands out the trained artifact for a path.
type ModelSource interface {
	Get(path string) (*ml.Artifact, error)
}

// AnalysisConfig carries scoring settings from pkg/config.
type AnalysisConfig struct {
	Features     config.FeatureConfig
	Weights      map[string]config.Weights
	BuyBand      float64
	SellBand     float64
	Universes    map[string][]string
	ModelPath    string
	Period       string // history fetched per ticker
	TopN         int
	ScanCacheTTL time.Duration
}

// Analysis scores tickers and runs the daily scan.
type Analysis struct {
	data      *MarketData
	tech      domsvc.TechnicalScorer
	fund      domsvc.FundamentalScorer
	models    ModelSource
	cache     cache.Service
	publisher domrepo.SignalPublisher
	metrics   domrepo.Metrics
	log       *logger.Logger
	cfg       AnalysisConfig
	now       func() time.Time
}

func NewAnalysis(data *MarketData, tech domsvc.TechnicalScorer, fund domsvc.FundamentalScorer, models ModelSource,
	c cache.Service, pub domrepo.SignalPublisher, m domrepo.Metrics, log *logger.Logger, cfg AnalysisConfig) *Analysis {
	if pub == nil {
		pub = domrepo.NopPublisher{}
	}
	if m == nil {
		m = domrepo.NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Period == "" {
		cfg.Period = "6mo"
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	return &Analysis{data: data, tech: tech, fund: fund, models: models, cache: c, publisher: pub,
		metrics: m, log: log, cfg: cfg, now: time.Now}
}

// modelView is the model state shared by every ticker of one run.
type modelView struct {
	art     *ml.Artifact
	schema  models.FeatureSchema
	warning string
	err     error // mismatch, surfaced by Diagnose
}

func (a *Analysis) loadModel() modelView {
	if a.cfg.ModelPath == "" || a.models == nil {
		return modelView{}
	}
	schema := features.Schema(a.cfg.Features)
	art, err := a.models.Get(a.cfg.ModelPath)
	if err != nil {
		return modelView{warning: fmt.Sprintf("model unavailable: %v", err)}
	}
	if err := art.Check(schema); err != nil {
		return modelView{warning: err.Error(), err: err}
	}
	return modelView{art: art, schema: schema}
}

// Diagnose resolves query and returns the full recommendation including indicators.
func (a *Analysis) Diagnose(ctx context.Context, query string, h models.Horizon, period string) (*models.Recommendation, error) {
	if err := validHorizon(h); err != nil {
		return nil, err
	}
	t, err := a.data.ResolveTicker(ctx, query)
	if err != nil {
		return nil, err
	}
	mv := a.loadModel()
	if mv.err != nil {
		return nil, mv.err
	}
	if period == "" {
		period = a.cfg.Period
	}
	return a.evaluate(ctx, t, h, period, mv, true)
}

// evaluate scores one ticker. detail adds indicators and flows.
func (a *Analysis) evaluate(ctx context.Context, t models.Ticker, h models.Horizon, period string, mv modelView, detail bool) (*models.Recommendation, error) {
	hist, err := a.data.GetHistory(ctx, t, period)
	if err != nil {
		return nil, err
	}
	bars := hist.Series.Bars
	last, _ := hist.Series.Last()

	rec := &models.Recommendation{
		Ticker:     t.String(),
		Name:       a.data.NameFor(t),
		Horizon:    h,
		AsOf:       last.Date,
		LastClose:  last.Close,
		KeyMetrics: analytics.KeyMetrics(bars),
		Stale:      hist.Stale,
		ProbUp:     0.5,
	}
	if hist.Warning != "" {
		rec.Warnings = append(rec.Warnings, hist.Warning)
	}

	techScore, ind, err := a.tech.Score(bars, h)
	if err != nil {
		var ih *models.InsufficientHistoryError
		if errors.As(err, &ih) {
			ih.Ticker = t.String()
		}
		return nil, err
	}
	rec.Components.Technical = &techScore
	if detail {
		rec.Indicators = ind
	}

	f, err := a.data.GetFundamentals(ctx, t)
	if err != nil {
		rec.Warnings = append(rec.Warnings, err.Error())
	} else if f != nil {
		if s, ok := a.fund.Score(f, h); ok {
			rec.Components.Fundamental = &s
		}
		rec.Fundamentals = f
		if rec.Name == "" {
			rec.Name = f.Name
		}
	}

	var flows []models.FlowRecord
	if detail || (mv.art != nil && a.cfg.Features.Flows) {
		flows, err = a.data.GetFlows(ctx, t, 0)
		if err != nil {
			rec.Warnings = append(rec.Warnings, err.Error())
		}
		if detail {
			rec.Flows = models.SummarizeFlows(flows, flowSummaryDays)
		}
	}

	if mv.art != nil {
		p, err := a.predict(bars, flows, mv)
		if err != nil {
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("model skipped: %v", err))
		} else {
			rec.Components.Model = &p
			rec.ProbUp = p
			rec.ModelUsed = true
		}
	} else if mv.warning != "" {
		rec.Warnings = append(rec.Warnings, mv.warning)
	}
	rec.Direction = analytics.Direction(rec.ProbUp)
	rec.Confidence = analytics.Confidence(rec.ProbUp)

	score, _ := analytics.Composite(rec.Components, a.cfg.Weights[string(h)])
	rec.Score = score
	rec.Label = analytics.LabelFor(score, a.cfg.BuyBand, a.cfg.SellBand)
	return rec, nil
}

// predict scores the feature row of the last bar.
func (a *Analysis) predict(bars []models.Bar, flows []models.FlowRecord, mv modelView) (float64, error) {
	schema, rows, err := features.Build(bars, flows, a.cfg.Features)
	if err != nil {
		return 0, err
	}
	if !schema.Equal(mv.schema) {
		return 0, &models.ModelMismatchError{Want: schema, Got: mv.art.Schema}
	}
	row := rows[len(rows)-1]
	if !row.Date.Equal(bars[len(bars)-1].Date) {
		return 0, models.ErrLookAhead
	}
	return mv.art.PredictProba(row.Values), nil
}

// ScanParams selects the scan universe and output size.
type ScanParams struct {
	Universe string
	Horizon  models.Horizon
	TopN     int
	Refresh  bool // bypass the result cache
	Progress func(done, total int, ticker string)
}

// DailyScan scores every ticker of a universe. Broken tickers are skipped with
// their reason and never fail the scan.
func (a *Analysis) DailyScan(ctx context.Context, p ScanParams) (*models.ScanResult, error) {
	if p.Universe == "" {
		p.Universe = "all"
	}
	if p.Horizon == "" {
		p.Horizon = models.HorizonShort
	}
	if err := validHorizon(p.Horizon); err != nil {
		return nil, err
	}
	if p.TopN <= 0 {
		p.TopN = a.cfg.TopN
	}

	key := cache.GenerateKeyWithParams("scan", p.Universe, p.Horizon, p.TopN)
	if !p.Refresh {
		var cached models.ScanResult
		if err := a.cache.Get(ctx, key, &cached); err == nil {
			a.metrics.RecordCacheLookup("scan", true)
			return &cached, nil
		}
		a.metrics.RecordCacheLookup("scan", false)
	}

	tickers, err := a.universe(p.Universe)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res := &models.ScanResult{
		Universe:    p.Universe,
		Horizon:     p.Horizon,
		GeneratedAt: a.now().UTC(),
		Ranked:      []*models.Recommendation{},
		TopPicks:    []*models.Recommendation{},
		Warnings:    []*models.Recommendation{},
		Skipped:     []models.Skip{},
	}
	mv := a.loadModel()
	if mv.warning != "" {
		res.Notes = append(res.Notes, mv.warning)
		mv.warning = ""
	}

	for i, raw := range tickers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.Progress != nil {
			p.Progress(i, len(tickers), raw)
		}
		rec, err := a.scanOne(ctx, raw, p.Horizon, mv)
		if err != nil {
			kind := models.ErrorKind(err)
			res.Skipped = append(res.Skipped, models.Skip{Ticker: raw, Kind: kind, Reason: err.Error()})
			a.metrics.RecordSkip("scan", kind)
			a.log.Warn("scan skipped ticker",
				logger.String("ticker", raw),
				logger.String("kind", kind),
				logger.Error(err))
			continue
		}
		res.Ranked = append(res.Ranked, rec)
	}
	if p.Progress != nil {
		p.Progress(len(tickers), len(tickers), "")
	}

	rank(res, p.TopN)
	a.observe(res)
	a.metrics.RecordLatency("scan", time.Since(start).Seconds())
	a.log.Info("scan done",
		logger.String("universe", p.Universe),
		logger.String("horizon", string(p.Horizon)),
		logger.Int("ranked", len(res.Ranked)),
		logger.Int("skipped", len(res.Skipped)),
		logger.Duration("took", time.Since(start)))

	if err := a.cache.Set(ctx, key, res, a.cfg.ScanCacheTTL); err != nil {
		a.log.Warn("scan result not cached", logger.Error(err))
	}
	if err := a.publisher.PublishScan(ctx, res); err != nil {
		a.log.Warn("scan publish failed", logger.Error(err))
	}
	return res, nil
}

func (a *Analysis) scanOne(ctx context.Context, raw string, h models.Horizon, mv modelView) (*models.Recommendation, error) {
	t, err := models.ParseTicker(raw)
	if err != nil {
		if t, err = a.data.ResolveTicker(ctx, raw); err != nil {
			return nil, err
		}
	}
	return a.evaluate(ctx, t, h, a.cfg.Period, mv, false)
}

// rank orders by score and fills the pick and warning lists.
func rank(res *models.ScanResult, topN int) {
	sort.SliceStable(res.Ranked, func(i, j int) bool {
		if res.Ranked[i].Score != res.Ranked[j].Score {
			return res.Ranked[i].Score > res.Ranked[j].Score
		}
		return res.Ranked[i].Ticker < res.Ranked[j].Ticker
	})
	for _, r := range res.Ranked {
		if r.Label == models.LabelBuy && len(res.TopPicks) < topN {
			res.TopPicks = append(res.TopPicks, r)
		}
	}
	for i := len(res.Ranked) - 1; i >= 0 && len(res.Warnings) < maxWarnings; i-- {
		if r := res.Ranked[i]; r.Label == models.LabelSell {
			res.Warnings = append(res.Warnings, r)
		}
	}
}

func (a *Analysis) observe(res *models.ScanResult) {
	counts := map[models.Label]int{models.LabelBuy: 0, models.LabelHold: 0, models.LabelSell: 0}
	for _, r := range res.Ranked {
		counts[r.Label]++
	}
	for label, n := range counts {
		svcmetrics.ScanLabels.WithLabelValues(res.Universe, string(res.Horizon), string(label)).Set(float64(n))
	}
}

// universe returns the tickers of a configured sector list or of the universe file.
func (a *Analysis) universe(name string) ([]string, error) {
	if name == UniverseListed {
		entries, err := a.data.Universe.Load()
		if err != nil {
			return nil, fmt.Errorf("load universe: %w", err)
		}
		out := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsActive {
				out = append(out, e.Ticker)
			}
		}
		return out, nil
	}
	if list, ok := a.cfg.Universes[strings.ToLower(name)]; ok {
		return list, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownUniverse, name)
}

// Universes lists the configured universe names plus "listed".
func (a *Analysis) Universes() []string {
	out := make([]string, 0, len(a.cfg.Universes)+1)
	for name := range a.cfg.Universes {
		out = append(out, name)
	}
	sort.Strings(out)
	return append(out, UniverseListed)
}

func validHorizon(h models.Horizon) error {
	switch h {
	case models.HorizonShort, models.HorizonLong:
		return nil
	default:
		return fmt.Errorf("unknown horizon %q", h)
	}
}
