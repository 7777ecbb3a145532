package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"TWSignal/internal/domain/models"
	domrepo "TWSignal/internal/domain/repository"
	"TWSignal/pkg/cache"
	"TWSignal/pkg/config"
)

type fakeQuotes struct {
	mu      sync.Mutex
	bars    map[string][]models.Bar
	probeOK map[string]bool
	err     error
	calls   []time.Time // from of each History call
}

func (f *fakeQuotes) History(_ context.Context, t models.Ticker, from, to time.Time) ([]models.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, from)
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Bar
	for _, b := range f.bars[t.String()] {
		if (!from.IsZero() && b.Date.Before(from)) || (!to.IsZero() && b.Date.After(to)) {
			continue
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, domrepo.ErrNoData
	}
	return out, nil
}

func (f *fakeQuotes) Probe(_ context.Context, t models.Ticker) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.probeOK[t.String()] || len(f.bars[t.String()]) > 0, nil
}

func (f *fakeQuotes) historyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeFlows struct {
	tables map[time.Time]map[string]models.FlowRecord
	err    error
}

func (f *fakeFlows) DailyFlows(_ context.Context, day time.Time) (map[string]models.FlowRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.tables[day]
	if !ok {
		return nil, domrepo.ErrNoData
	}
	return t, nil
}

type fakeFundamentals struct {
	table map[string]models.Fundamentals
}

func (f *fakeFundamentals) DailyFundamentals(context.Context, time.Time) (map[string]models.Fundamentals, error) {
	if f.table == nil {
		return nil, domrepo.ErrNoData
	}
	return f.table, nil
}

type fakeListing struct {
	entries []models.UniverseEntry
	err     error
}

func (f *fakeListing) Listing(context.Context) ([]models.UniverseEntry, error) {
	return f.entries, f.err
}

type memBars struct {
	mu    sync.Mutex
	files map[models.Ticker][]models.Bar
	saves int
}

func newMemBars() *memBars { return &memBars{files: map[models.Ticker][]models.Bar{}} }

func (m *memBars) Load(t models.Ticker) (*models.Series, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bars, ok := m.files[t]
	if !ok {
		return nil, domrepo.ErrNotCached
	}
	return &models.Series{Ticker: t, Bars: append([]models.Bar(nil), bars...)}, nil
}

func (m *memBars) Save(s *models.Series) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[s.Ticker] = append([]models.Bar(nil), s.Bars...)
	m.saves++
	return nil
}

func (m *memBars) Exists(t models.Ticker) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[t]
	return ok
}

func (m *memBars) Clear() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.files)
	m.files = map[models.Ticker][]models.Bar{}
	return n, nil
}

type memFlows struct {
	files map[models.Ticker][]models.FlowRecord
}

func newMemFlows() *memFlows { return &memFlows{files: map[models.Ticker][]models.FlowRecord{}} }

func (m *memFlows) Load(t models.Ticker) ([]models.FlowRecord, error) {
	f, ok := m.files[t]
	if !ok {
		return nil, domrepo.ErrNotCached
	}
	return append([]models.FlowRecord(nil), f...), nil
}

func (m *memFlows) Save(t models.Ticker, flows []models.FlowRecord) error {
	m.files[t] = append([]models.FlowRecord(nil), flows...)
	return nil
}

func (m *memFlows) Clear() (int, error) {
	n := len(m.files)
	m.files = map[models.Ticker][]models.FlowRecord{}
	return n, nil
}

type memUniverse struct {
	entries []models.UniverseEntry
	names   map[string]string
}

func (m *memUniverse) Load() ([]models.UniverseEntry, error) {
	if m.entries == nil {
		return nil, domrepo.ErrNotCached
	}
	return m.entries, nil
}

func (m *memUniverse) Save(e []models.UniverseEntry) error { m.entries = e; return nil }

func (m *memUniverse) Names() map[string]string {
	out := make(map[string]string, len(m.names))
	for k, v := range m.names {
		out[k] = v
	}
	return out
}

func (m *memUniverse) SaveNames(n map[string]string) error { m.names = n; return nil }

type fakeArchive struct {
	bars   map[string][]models.Bar
	stored int
}

func (a *fakeArchive) StoreBars(_ context.Context, _ models.Ticker, bars []models.Bar) error {
	a.stored += len(bars)
	return nil
}

func (a *fakeArchive) Bars(_ context.Context, t models.Ticker, from, _ time.Time) ([]models.Bar, error) {
	var out []models.Bar
	for _, b := range a.bars[t.String()] {
		if from.IsZero() || !b.Date.Before(from) {
			out = append(out, b)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	scans     []*models.ScanResult
	backtests []*models.BacktestResult
}

func (p *recordingPublisher) PublishScan(_ context.Context, r *models.ScanResult) error {
	p.scans = append(p.scans, r)
	return nil
}

func (p *recordingPublisher) PublishBacktest(_ context.Context, r *models.BacktestResult) error {
	p.backtests = append(p.backtests, r)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

var errNetwork = errors.New("dial tcp: connection refused")

// fixture wires MarketData over in-memory fakes with the clock at 15:00 Taipei
// on the given trading day.
type fixture struct {
	quotes   *fakeQuotes
	flows    *fakeFlows
	fund     *fakeFundamentals
	listing  *fakeListing
	bars     *memBars
	flowFile *memFlows
	universe *memUniverse
	cache    *cache.MemoryCache
	md       *MarketData
	now      time.Time
	cfg      *config.Config
}

func newFixture(t *testing.T, today time.Time) *fixture {
	t.Helper()
	f := &fixture{
		quotes:   &fakeQuotes{bars: map[string][]models.Bar{}, probeOK: map[string]bool{}},
		flows:    &fakeFlows{tables: map[time.Time]map[string]models.FlowRecord{}},
		fund:     &fakeFundamentals{},
		listing:  &fakeListing{},
		bars:     newMemBars(),
		flowFile: newMemFlows(),
		universe: &memUniverse{names: map[string]string{}},
		cache:    cache.NewMemoryCache(),
		now:      today.Add(7 * time.Hour),
		cfg:      config.Default(),
	}
	t.Cleanup(func() { _ = f.cache.Close() })

	f.md = NewMarketData(MarketDataDeps{
		Quotes:       f.quotes,
		Flows:        f.flows,
		Fundamentals: f.fund,
		Listing:      f.listing,
		Bars:         f.bars,
		FlowCache:    f.flowFile,
		Universe:     f.universe,
		Cache:        f.cache,
	}, MarketDataConfig{PublishHour: 14, FlowLookback: 5})
	f.md.now = func() time.Time { return f.now }
	return f
}
