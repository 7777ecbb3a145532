package di

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	domrepo "TWSignal/internal/domain/repository"
	"TWSignal/internal/handler/api"
	internalrepo "TWSignal/internal/repository"
	svcmetrics "TWSignal/internal/service/metrics"
	"TWSignal/internal/service/ratelimit"
	"TWSignal/internal/service/twse"
	"TWSignal/internal/service/yahoo"
	"TWSignal/internal/services/analytics"
	"TWSignal/internal/services/ml"
	"TWSignal/internal/usecase"
	"TWSignal/pkg/cache"
	pkgch "TWSignal/pkg/clickhouse"
	"TWSignal/pkg/config"
	xhttp "TWSignal/pkg/http"
	pkgkafka "TWSignal/pkg/kafka"
	"TWSignal/pkg/logger"
	"TWSignal/pkg/metrics"
	"TWSignal/pkg/server"
)

// Services is everything the CLI needs; the HTTP app is built on top of it.
type Services struct {
	Config   *config.Config
	Log      *logger.Logger
	Cache    cache.Service
	Data     *usecase.MarketData
	Analysis *usecase.Analysis
	Backtest *usecase.Backtester
	Trainer  *usecase.Trainer
}

// ProvideLogger creates the zerolog-backed application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	svcmetrics.Register()
	return metrics.New()
}

// ProvideCache returns an in-process cache, or a layered memory+Redis cache when Redis is enabled.
func ProvideCache(cfg *config.Config, log *logger.Logger) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		c := cache.NewMemoryCache()
		return c, func() { _ = c.Close() }, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	c := cache.NewLayeredCache(rc, cache.WithLayeredL1TTL(time.Minute))
	log.Info("redis cache enabled", logger.String("host", cfg.Redis.Host), logger.Int("port", cfg.Redis.Port))
	return c, func() { _ = c.Close() }, nil
}

// ProvideLimiter shares one token-bucket table between upstream clients and the API.
func ProvideLimiter() *ratelimit.Limiter { return ratelimit.New() }

func ProvideHTTPClient(cfg *config.Config) *xhttp.Client {
	return xhttp.NewClient(
		xhttp.WithTimeout(cfg.Sources.Timeout),
		xhttp.WithUserAgent(cfg.Sources.UserAgent),
	)
}

func ProvideYahoo(cfg *config.Config, hc *xhttp.Client, rl *ratelimit.Limiter, log *logger.Logger, m domrepo.Metrics) *yahoo.Client {
	return yahoo.New(cfg.Sources.YahooURL, hc,
		yahoo.WithRateLimit(rl, cfg.Sources.YahooBurst, cfg.Sources.YahooPerSec),
		yahoo.WithLogger(log),
		yahoo.WithMetrics(m),
	)
}

func ProvideTWSE(cfg *config.Config, hc *xhttp.Client, rl *ratelimit.Limiter, log *logger.Logger, m domrepo.Metrics) *twse.Client {
	return twse.New(cfg.Sources.TWSEURL, cfg.Sources.ISINURL, hc,
		twse.WithRateLimit(rl, cfg.Sources.TWSEBurst, cfg.Sources.TWSEPerSec),
		twse.WithLogger(log),
		twse.WithMetrics(m),
	)
}

func ProvideBarCache(cfg *config.Config) *internalrepo.ParquetBarCache {
	return internalrepo.NewParquetBarCache(cfg.Data.Dir)
}

func ProvideFlowCache(cfg *config.Config) *internalrepo.ParquetFlowCache {
	return internalrepo.NewParquetFlowCache(cfg.Data.Dir)
}

func ProvideUniverseStore(cfg *config.Config, log *logger.Logger) *internalrepo.FileUniverseStore {
	return internalrepo.NewFileUniverseStore(cfg.Data.Dir, cfg.Data.NameTable, log)
}

// ProvideClickHouseClient connects and creates the archive schema. Returns nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.BarArchiveSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideBarArchive returns the ClickHouse archive, or nil when ClickHouse is disabled.
func ProvideBarArchive(ch *pkgch.Client, cfg *config.Config, log *logger.Logger) domrepo.BarArchive {
	if ch == nil {
		return nil
	}
	a := internalrepo.NewCHBarArchive(ch, cfg.ClickHouse.Database)
	a.SetLogger(log)
	return a
}

// ProvideKafkaProducer creates a Kafka producer. Returns nil when disabled. With a logs
// topic configured, warn and error events are aggregated onto it.
func ProvideKafkaProducer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.WriteTimeout),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	if cfg.Kafka.LogsTopic != "" {
		log.AddCollector(&logger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      producer,
		})
	}
	return producer, func() {
		log.RemoveCollector()
		_ = producer.Close()
	}, nil
}

// ProvideSignalPublisher publishes scan and backtest results to Kafka, or nowhere.
func ProvideSignalPublisher(p *pkgkafka.Producer, cfg *config.Config) domrepo.SignalPublisher {
	if p == nil {
		return domrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaSignalPublisher(p, cfg.Kafka.SignalsTopic)
}

func ProvideModelRegistry(log *logger.Logger) *ml.Registry {
	return ml.NewRegistry(log)
}

func ProvideMarketData(
	cfg *config.Config,
	yc *yahoo.Client,
	tc *twse.Client,
	bars *internalrepo.ParquetBarCache,
	flows *internalrepo.ParquetFlowCache,
	universe *internalrepo.FileUniverseStore,
	archive domrepo.BarArchive,
	c cache.Service,
	m domrepo.Metrics,
	log *logger.Logger,
) *usecase.MarketData {
	syncStart, _ := time.Parse("2006-01-02", cfg.Data.SyncStart)
	return usecase.NewMarketData(usecase.MarketDataDeps{
		Quotes:       yc,
		Flows:        tc,
		Fundamentals: tc,
		Listing:      tc,
		Bars:         bars,
		FlowCache:    flows,
		Universe:     universe,
		Archive:      archive,
		Cache:        c,
		Metrics:      m,
		Log:          log,
	}, usecase.MarketDataConfig{
		DefaultPeriod: cfg.Data.DefaultPeriod,
		PublishHour:   cfg.Data.PublishHour,
		SyncStart:     syncStart,
		FlowLookback:  cfg.Sources.FlowLookback,
	})
}

func ProvideAnalysis(
	cfg *config.Config,
	data *usecase.MarketData,
	reg *ml.Registry,
	c cache.Service,
	pub domrepo.SignalPublisher,
	m domrepo.Metrics,
	log *logger.Logger,
) *usecase.Analysis {
	return usecase.NewAnalysis(data,
		analytics.NewTechnicalScorer(cfg.Features),
		analytics.NewFundamentalScorer(),
		reg, c, pub, m, log,
		usecase.AnalysisConfig{
			Features:     cfg.Features,
			Weights:      cfg.Analysis.Weights,
			BuyBand:      cfg.Analysis.BuyBand,
			SellBand:     cfg.Analysis.SellBand,
			Universes:    cfg.Analysis.Universes,
			ModelPath:    cfg.Model.Path,
			Period:       cfg.Scan.Period,
			TopN:         cfg.Scan.TopN,
			ScanCacheTTL: cfg.Scan.CacheTTL,
		})
}

func ProvideBacktester(
	cfg *config.Config,
	data *usecase.MarketData,
	reg *ml.Registry,
	pub domrepo.SignalPublisher,
	m domrepo.Metrics,
	log *logger.Logger,
) *usecase.Backtester {
	return usecase.NewBacktester(data, analytics.NewTechnicalScorer(cfg.Features), reg, pub, m, log,
		usecase.BacktestSettings{
			Features:      cfg.Features,
			MinBars:       cfg.Backtest.MinBars,
			Period:        cfg.Backtest.Period,
			BuyThreshold:  cfg.Backtest.BuyThreshold,
			SellThreshold: cfg.Backtest.SellThreshold,
			ModelPath:     cfg.Model.Path,
		})
}

func ProvideTrainer(cfg *config.Config, data *usecase.MarketData, reg *ml.Registry, m domrepo.Metrics, log *logger.Logger) *usecase.Trainer {
	return usecase.NewTrainer(data, reg, m, log, usecase.TrainingConfig{
		Features:   cfg.Features,
		ModelPath:  cfg.Model.Path,
		TestSize:   cfg.Model.TestSize,
		MinRows:    cfg.Model.MinRows,
		Horizon:    cfg.Model.Horizon,
		Threshold:  cfg.Model.Threshold,
		Seed:       cfg.Model.Seed,
		Small:      cfg.Model.Small,
		Large:      cfg.Model.Large,
		LargeAbove: cfg.Model.LargeAbove,
	})
}

// ProvideHandler creates the Echo route handler.
func ProvideHandler(cfg *config.Config, log *logger.Logger, rl *ratelimit.Limiter, svc *Services) *api.MarketEchoHandler {
	return api.NewMarketEchoHandler(log, svc.Data, svc.Analysis, svc.Backtest, svc.Trainer, filepath.Dir(cfg.Model.Path), api.RateLimit{
		Limiter: rl,
		Burst:   cfg.Server.RateLimitBurst,
		PerSec:  cfg.Server.RateLimitPerSec,
	})
}

// ProvideApp creates the application server.
func ProvideApp(cfg *config.Config, svc *Services, h *api.MarketEchoHandler) *server.App {
	return server.New(cfg, svc.Log, h, svc.Analysis, svc.Cache)
}
