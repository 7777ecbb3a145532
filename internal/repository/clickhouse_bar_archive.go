package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"TWSignal/internal/domain/models"
	pkgch "TWSignal/pkg/clickhouse"
	applogger "TWSignal/pkg/logger"
)

// batchInserter is the write half of pkg/clickhouse.Client.
type batchInserter interface {
	InsertBatch(ctx context.Context, query string, rows [][]any) error
}

// CHBarArchive implements BarArchive backed by ClickHouse. Re-inserted days collapse
// through ReplacingMergeTree on (ticker, date), so writes are idempotent.
type CHBarArchive struct {
	db    *sql.DB
	batch batchInserter
	table string
	l     *applogger.Logger
}

func NewCHBarArchive(ch *pkgch.Client, database string) *CHBarArchive {
	return &CHBarArchive{db: ch.DB(), batch: ch, table: database + ".daily_bars", l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CHBarArchive) SetLogger(l *applogger.Logger) { s.l = l }

// BarArchiveSchema returns the idempotent DDL for the archive.
func BarArchiveSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.daily_bars (
            ticker     LowCardinality(String),
            date       Date,
            open       Float64,
            high       Float64,
            low        Float64,
            close      Float64,
            volume     Float64,
            fetched_at DateTime DEFAULT now()
        ) ENGINE = ReplacingMergeTree(fetched_at)
        ORDER BY (ticker, date)`, database),
	}
}

func (s *CHBarArchive) StoreBars(ctx context.Context, t models.Ticker, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()
	q := fmt.Sprintf("INSERT INTO %s (ticker, date, open, high, low, close, volume)", s.table)
	if err := s.batch.InsertBatch(ctx, q, barRows(t, bars)); err != nil {
		s.l.Error("clickhouse store_bars error",
			applogger.String("ticker", t.String()),
			applogger.Int("rows", len(bars)),
			applogger.Error(err),
		)
		return fmt.Errorf("store bars %s: %w", t, err)
	}
	s.l.Debug("clickhouse store_bars ok",
		applogger.String("ticker", t.String()),
		applogger.Int("rows", len(bars)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

// Bars returns archived bars with from <= date <= to. A zero bound is open.
func (s *CHBarArchive) Bars(ctx context.Context, t models.Ticker, from, to time.Time) ([]models.Bar, error) {
	start := time.Now()
	if to.IsZero() {
		to = time.Date(2999, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	const qtpl = `
        SELECT date, open, high, low, close, volume
        FROM %s FINAL
        WHERE ticker = ? AND date >= ? AND date <= ?
        ORDER BY date ASC
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.table), t.String(), from, to)
	if err != nil {
		s.l.Error("clickhouse bars query error",
			applogger.String("ticker", t.String()),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("archive bars %s: %w", t, err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, 256)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Date = time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, 0, 0, 0, time.UTC)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse bars ok",
		applogger.String("ticker", t.String()),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func barRows(t models.Ticker, bars []models.Bar) [][]any {
	rows := make([][]any, 0, len(bars))
	key := t.String()
	for _, b := range bars {
		rows = append(rows, []any{key, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume})
	}
	return rows
}
