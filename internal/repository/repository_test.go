package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TWSignal/internal/domain/models"
	domrepo "TWSignal/internal/domain/repository"
	"TWSignal/internal/testutil"
	"TWSignal/pkg/kafka"
	applogger "TWSignal/pkg/logger"
)

func TestBarCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := NewParquetBarCache(dir)
	tk := models.MustTicker("2330.TW")

	_, err := c.Load(tk)
	require.ErrorIs(t, err, domrepo.ErrNotCached)
	assert.False(t, c.Exists(tk))

	bars := testutil.Bars(30, 1)
	require.NoError(t, c.Save(testutil.Series("2330.TW", bars)))
	assert.True(t, c.Exists(tk))
	assert.FileExists(t, filepath.Join(dir, "ohlcv", "ticker=2330_TW.parquet"))

	got, err := c.Load(tk)
	require.NoError(t, err)
	assert.Equal(t, tk, got.Ticker)
	assert.Equal(t, bars, got.Bars)

	n, err := c.Clear()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, c.Exists(tk))
}

func TestBarCacheSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	c := NewParquetBarCache(dir)
	require.NoError(t, c.Save(testutil.Series("6488.TWO", testutil.Bars(5, 2))))

	entries, err := os.ReadDir(filepath.Join(dir, "ohlcv"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), e.Name())
	}
}

func TestFlowCacheRoundTrip(t *testing.T) {
	c := NewParquetFlowCache(t.TempDir())
	tk := models.MustTicker("2330.TW")
	d1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)

	_, err := c.Load(tk)
	require.ErrorIs(t, err, domrepo.ErrNotCached)

	in := []models.FlowRecord{
		{Date: d2, Foreign: -10, Trust: 5, Dealer: 1},
		{Date: d1, Foreign: 100, Trust: -3, Dealer: 0},
	}
	require.NoError(t, c.Save(tk, in))

	got, err := c.Load(tk)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, d1, got[0].Date, "loaded ascending")
	assert.Equal(t, 100.0, got[0].Foreign)
	assert.Equal(t, -10.0, got[1].Foreign)
}

func TestUniverseStore(t *testing.T) {
	dir := t.TempDir()
	namesPath := filepath.Join(dir, "tw_stocks.json")
	legacy := map[string]string{"台積電": "2330", "2330": "台積電", "富邦金": "2881"}
	b, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(namesPath, b, 0o644))

	s := NewFileUniverseStore(dir, namesPath, nil)
	assert.Equal(t, map[string]string{"台積電": "2330", "富邦金": "2881"}, s.Names())

	_, err = s.Load()
	require.ErrorIs(t, err, domrepo.ErrNotCached)

	entries := []models.UniverseEntry{
		{Code: "2330", Name: "台積電", Ticker: "2330.TW", Market: "TW", Industry: "半導體業", IsActive: true},
		{Code: "0050", Name: "元大台灣50", Ticker: "0050.TW", Market: "TW", IsETF: true, IsActive: true},
	}
	require.NoError(t, s.Save(entries))
	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, entries, got)

	require.NoError(t, s.SaveNames(map[string]string{"聯發科": "2454"}))
	assert.Equal(t, "2454", s.Names()["聯發科"])

	reopened := NewFileUniverseStore(dir, namesPath, nil)
	assert.Equal(t, map[string]string{"聯發科": "2454"}, reopened.Names())
}

func TestUniverseStoreMissingNames(t *testing.T) {
	s := NewFileUniverseStore(t.TempDir(), "does/not/exist.json", nil)
	assert.Empty(t, s.Names())
}

type fakeBatchPublisher struct {
	topic string
	msgs  []kafka.Message
}

func (f *fakeBatchPublisher) PublishBatch(_ context.Context, topic string, msgs []kafka.Message) error {
	f.topic = topic
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeBatchPublisher) Close() error { return nil }

func TestKafkaSignalPublisher(t *testing.T) {
	fake := &fakeBatchPublisher{}
	now := time.Date(2024, 1, 2, 6, 30, 0, 0, time.UTC)
	p := &KafkaSignalPublisher{p: fake, topic: "twsignal.signals", now: func() time.Time { return now }}

	require.NoError(t, p.PublishScan(context.Background(), &models.ScanResult{Universe: "semi", Horizon: models.HorizonShort}))
	bt := &models.BacktestResult{
		RunID: "run-1",
		Tickers: []models.TickerBacktest{{
			Ticker: "2330.TW",
			Days:   []models.BacktestDay{{Close: 1}},
		}},
	}
	require.NoError(t, p.PublishBacktest(context.Background(), bt))

	assert.Equal(t, "twsignal.signals", fake.topic)
	require.Len(t, fake.msgs, 2)
	assert.Equal(t, []byte("semi:short"), fake.msgs[0].Key)
	assert.Equal(t, EventScan, fake.msgs[0].Headers["type"])

	ev := fake.msgs[1].Value.(SignalEvent)
	assert.Equal(t, EventBacktest, ev.Type)
	assert.Equal(t, now, ev.EmittedAt)
	slim := ev.Payload.(*models.BacktestResult)
	assert.Nil(t, slim.Tickers[0].Days, "day log is not published")
	assert.Len(t, bt.Tickers[0].Days, 1, "caller result untouched")
}

func TestBarArchiveRowsAndSchema(t *testing.T) {
	bars := testutil.Bars(3, 4)
	rows := barRows(models.MustTicker("2330.TW"), bars)
	require.Len(t, rows, 3)
	assert.Equal(t, []any{"2330.TW", bars[0].Date, bars[0].Open, bars[0].High, bars[0].Low, bars[0].Close, bars[0].Volume}, rows[0])

	ddl := BarArchiveSchema("twsignal")
	require.Len(t, ddl, 2)
	assert.Contains(t, ddl[1], "twsignal.daily_bars")
	assert.Contains(t, ddl[1], "ReplacingMergeTree")
}

type recordingInserter struct {
	query string
	rows  [][]any
}

func (r *recordingInserter) InsertBatch(_ context.Context, q string, rows [][]any) error {
	r.query, r.rows = q, rows
	return nil
}

func TestBarArchiveStoreBars(t *testing.T) {
	ins := &recordingInserter{}
	a := &CHBarArchive{batch: ins, table: "twsignal.daily_bars"}
	a.SetLogger(applogger.Nop())
	require.NoError(t, a.StoreBars(context.Background(), models.MustTicker("2330.TW"), testutil.Bars(4, 1)))
	assert.True(t, strings.HasPrefix(ins.query, "INSERT INTO twsignal.daily_bars"))
	assert.Len(t, ins.rows, 4)

	require.NoError(t, a.StoreBars(context.Background(), models.MustTicker("2330.TW"), nil))
}
