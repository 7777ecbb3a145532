package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"TWSignal/internal/domain/models"
	domrepo "TWSignal/internal/domain/repository"
	svcmetrics "TWSignal/internal/service/metrics"
	"TWSignal/internal/services/features"
	"TWSignal/internal/services/ml"
	"TWSignal/pkg/config"
	"TWSignal/pkg/logger"
)

// TrainingConfig carries model settings from pkg/config.
type TrainingConfig struct {
	Features   config.FeatureConfig
	ModelPath  string
	Period     string
	TestSize   float64
	MinRows    int
	Horizon    int
	Threshold  float64
	Seed       int64
	Small      config.Forest
	Large      config.Forest
	LargeAbove int
}

// TrainParams selects the training data. Series, when set, is used as is and
// Tickers is ignored.
type TrainParams struct {
	Tickers    []string
	Series     []*models.Series
	Period     string
	OutputPath string
}

// TrainResult reports a training run. A run without enough data carries empty
// Metrics and a reason in Error; no artifact is written.
type TrainResult struct {
	Metrics   map[string]float64 `json:"metrics"`
	Error     string             `json:"error,omitempty"`
	ModelPath string             `json:"model_path,omitempty"`
	Rows      int                `json:"rows"`
	TrainRows int                `json:"train_rows"`
	TestRows  int                `json:"test_rows"`
	Cutoff    time.Time          `json:"cutoff,omitempty"`
	Params    config.Forest      `json:"params"`
	Tickers   []string           `json:"tickers"`
	Skipped   []models.Skip      `json:"skipped"`
}

// invalidator drops a cached artifact after a new one is written.
type invalidator interface {
	Invalidate()
}

// Trainer fits the direction classifier on pooled history.
type Trainer struct {
	data    *MarketData
	models  invalidator
	metrics domrepo.Metrics
	log     *logger.Logger
	cfg     TrainingConfig
	now     func() time.Time
}

func NewTrainer(data *MarketData, reg invalidator, m domrepo.Metrics, log *logger.Logger, cfg TrainingConfig) *Trainer {
	if m == nil {
		m = domrepo.NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Period == "" {
		cfg.Period = "2y"
	}
	if cfg.TestSize <= 0 || cfg.TestSize >= 1 {
		cfg.TestSize = 0.2
	}
	if cfg.MinRows <= 0 {
		cfg.MinRows = 50
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = 1
	}
	if cfg.LargeAbove <= 0 {
		cfg.LargeAbove = 1000
	}
	return &Trainer{data: data, models: reg, metrics: m, log: log, cfg: cfg, now: time.Now}
}

// sample is one labelled feature row. end is the date of the bar its label reads.
type sample struct {
	date time.Time
	end  time.Time
	x    []float64
	y    int
}

// TrainModel pools labelled rows, splits them by time, fits a forest and saves it.
func (tr *Trainer) TrainModel(ctx context.Context, p TrainParams) (*TrainResult, error) {
	out := p.OutputPath
	if out == "" {
		out = tr.cfg.ModelPath
	}
	if out == "" {
		return nil, errors.New("train: no output path")
	}
	res := &TrainResult{Metrics: map[string]float64{}, Tickers: []string{}, Skipped: []models.Skip{}}

	series, err := tr.collect(ctx, p, res)
	if err != nil {
		return nil, err
	}

	var pool []sample
	for _, s := range series {
		rows, err := tr.samples(s)
		if err != nil {
			kind := models.ErrorKind(err)
			res.Skipped = append(res.Skipped, models.Skip{Ticker: s.Ticker.String(), Kind: kind, Reason: err.Error()})
			tr.metrics.RecordSkip("train", kind)
			continue
		}
		pool = append(pool, rows...)
		res.Tickers = append(res.Tickers, s.Ticker.String())
	}
	res.Rows = len(pool)
	if len(pool) < tr.cfg.MinRows {
		res.Error = fmt.Sprintf("too few rows: %d", len(pool))
		tr.log.Warn("training skipped", logger.Int("rows", len(pool)), logger.Int("min_rows", tr.cfg.MinRows))
		return res, nil
	}

	train, test, cutoff := split(pool, tr.cfg.TestSize)
	res.TrainRows, res.TestRows, res.Cutoff = len(train), len(test), cutoff
	if len(train) == 0 || len(test) == 0 {
		res.Error = fmt.Sprintf("time split left %d train and %d test rows", len(train), len(test))
		return res, nil
	}

	params := tr.cfg.Small
	if len(train) >= tr.cfg.LargeAbove {
		params = tr.cfg.Large
	}
	res.Params = params

	start := time.Now()
	x, y := matrix(train)
	forest, err := ml.TrainForest(x, y, params, tr.cfg.Seed)
	if err != nil {
		return nil, err
	}
	probs := make([]float64, len(test))
	labels := make([]int, len(test))
	for i, s := range test {
		probs[i] = forest.PredictProba(s.x)
		labels[i] = s.y
	}
	res.Metrics = ml.Evaluate(probs, labels)

	art := &ml.Artifact{
		Schema: features.Schema(tr.cfg.Features),
		Forest: forest,
		Meta: ml.Meta{
			TrainedAt:      tr.now().UTC(),
			Rows:           res.Rows,
			TrainRows:      res.TrainRows,
			TestRows:       res.TestRows,
			Cutoff:         cutoff,
			LabelHorizon:   tr.cfg.Horizon,
			LabelThreshold: tr.cfg.Threshold,
			Params:         params,
			Seed:           tr.cfg.Seed,
			Metrics:        res.Metrics,
			Tickers:        res.Tickers,
		},
	}
	if err := ml.Save(out, art); err != nil {
		return nil, err
	}
	res.ModelPath = out
	if tr.models != nil {
		tr.models.Invalidate()
	}

	for name, v := range res.Metrics {
		svcmetrics.ModelScore.WithLabelValues(name).Set(v)
	}
	tr.metrics.RecordLatency("train", time.Since(start).Seconds())
	tr.log.Info("model trained",
		logger.String("path", out),
		logger.Int("train_rows", res.TrainRows),
		logger.Int("test_rows", res.TestRows),
		logger.Int("trees", params.Trees),
		logger.Float64("accuracy", res.Metrics[ml.MetricAccuracy]),
		logger.Duration("took", time.Since(start)))
	return res, nil
}

// collect returns p.Series or fetches history for p.Tickers. Fetch failures are skipped.
func (tr *Trainer) collect(ctx context.Context, p TrainParams, res *TrainResult) ([]*models.Series, error) {
	if len(p.Series) > 0 {
		return p.Series, nil
	}
	if len(p.Tickers) == 0 {
		return nil, errors.New("train: no tickers")
	}
	period := p.Period
	if period == "" {
		period = tr.cfg.Period
	}
	out := make([]*models.Series, 0, len(p.Tickers))
	for _, raw := range p.Tickers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := tr.fetch(ctx, raw, period)
		if err != nil {
			kind := models.ErrorKind(err)
			res.Skipped = append(res.Skipped, models.Skip{Ticker: raw, Kind: kind, Reason: err.Error()})
			tr.metrics.RecordSkip("train", kind)
			tr.log.Warn("training skipped ticker", logger.String("ticker", raw), logger.Error(err))
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (tr *Trainer) fetch(ctx context.Context, raw, period string) (*models.Series, error) {
	t, err := models.ParseTicker(raw)
	if err != nil {
		if t, err = tr.data.ResolveTicker(ctx, raw); err != nil {
			return nil, err
		}
	}
	hist, err := tr.data.GetHistory(ctx, t, period)
	if err != nil {
		return nil, err
	}
	return hist.Series, nil
}

// samples builds the labelled rows of one series.
func (tr *Trainer) samples(s *models.Series) ([]sample, error) {
	var flows []models.FlowRecord
	if tr.cfg.Features.Flows && tr.data != nil && tr.data.FlowCache != nil {
		var err error
		if flows, err = tr.data.FlowCache.Load(s.Ticker); err != nil && !errors.Is(err, domrepo.ErrNotCached) {
			tr.log.Warn("training flows unavailable", logger.String("ticker", s.Ticker.String()), logger.Error(err))
		}
	}
	_, rows, err := features.Build(s.Bars, flows, tr.cfg.Features)
	if err != nil {
		var ih *models.InsufficientHistoryError
		if errors.As(err, &ih) {
			ih.Ticker = s.Ticker.String()
		}
		return nil, err
	}
	rows, y := features.Labels(s.Bars, rows, tr.cfg.Horizon, tr.cfg.Threshold)

	idx := make(map[time.Time]int, len(s.Bars))
	for i, b := range s.Bars {
		idx[b.Date] = i
	}
	out := make([]sample, len(rows))
	for i, r := range rows {
		out[i] = sample{date: r.Date, end: s.Bars[idx[r.Date]+tr.cfg.Horizon].Date, x: r.Values, y: y[i]}
	}
	return out, nil
}

// split cuts pooled rows at the (1-testSize) date quantile. Train rows end
// before the cutoff, label horizon included; test rows start on or after it.
func split(pool []sample, testSize float64) (train, test []sample, cutoff time.Time) {
	dates := make([]time.Time, len(pool))
	for i, s := range pool {
		dates[i] = s.date
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	k := int(math.Floor(float64(len(dates)) * (1 - testSize)))
	k = min(max(k, 0), len(dates)-1)
	cutoff = dates[k]

	for _, s := range pool {
		switch {
		case !s.date.Before(cutoff):
			test = append(test, s)
		case s.end.Before(cutoff):
			train = append(train, s)
		}
	}
	return train, test, cutoff
}

func matrix(rows []sample) ([][]float64, []int) {
	x := make([][]float64, len(rows))
	y := make([]int, len(rows))
	for i, s := range rows {
		x[i], y[i] = s.x, s.y
	}
	return x, y
}
