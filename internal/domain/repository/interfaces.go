package repository

import (
	"context"
	"time"

	"TWSignal/internal/domain/models"
)

// QuoteSource fetches daily bars from a market data vendor.
type QuoteSource interface {
	// History returns bars with from <= date <= to, ascending. A zero to means now.
	History(ctx context.Context, t models.Ticker, from, to time.Time) ([]models.Bar, error)
	// Probe reports whether the vendor has any recent data for t.
	Probe(ctx context.Context, t models.Ticker) (bool, error)
}

// FlowSource returns institutional net flows for every listed code on one trading day.
type FlowSource interface {
	DailyFlows(ctx context.Context, day time.Time) (map[string]models.FlowRecord, error)
}

// FundamentalSource returns valuation ratios for every listed code on one trading day.
type FundamentalSource interface {
	DailyFundamentals(ctx context.Context, day time.Time) (map[string]models.Fundamentals, error)
}

// ListingSource enumerates listed and OTC securities.
type ListingSource interface {
	Listing(ctx context.Context) ([]models.UniverseEntry, error)
}

// BarCache persists one OHLCV file per ticker.
type BarCache interface {
	Load(t models.Ticker) (*models.Series, error) // ErrNotCached when absent
	Save(s *models.Series) error
	Exists(t models.Ticker) bool
	Clear() (int, error)
}

// FlowCache persists one flow file per ticker.
type FlowCache interface {
	Load(t models.Ticker) ([]models.FlowRecord, error) // ErrNotCached when absent
	Save(t models.Ticker, flows []models.FlowRecord) error
	Clear() (int, error)
}

// UniverseStore holds the scan universe and the name lookup table.
type UniverseStore interface {
	Load() ([]models.UniverseEntry, error)
	Save(entries []models.UniverseEntry) error
	// Names maps display names to codes.
	Names() map[string]string
	SaveNames(names map[string]string) error
}

// BarArchive is an optional long-term store for fetched bars.
type BarArchive interface {
	StoreBars(ctx context.Context, t models.Ticker, bars []models.Bar) error
	Bars(ctx context.Context, t models.Ticker, from, to time.Time) ([]models.Bar, error)
}

// SignalPublisher emits scan and backtest outcomes to downstream consumers.
type SignalPublisher interface {
	PublishScan(ctx context.Context, res *models.ScanResult) error
	PublishBacktest(ctx context.Context, res *models.BacktestResult) error
	Close() error
}

type Metrics interface {
	RecordFetch(source, result string)
	RecordCacheLookup(kind string, hit bool)
	RecordSkip(op, kind string)
	RecordError(kind string)
	RecordLastClose(ticker string, price float64)
	RecordLatency(op string, seconds float64)
}
