package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TWSignal/internal/domain/models"
	"TWSignal/internal/usecase"
	"TWSignal/pkg/cache"
	"TWSignal/pkg/config"
)

type countingScanner struct {
	calls []usecase.ScanParams
	err   error
}

func (s *countingScanner) DailyScan(_ context.Context, p usecase.ScanParams) (*models.ScanResult, error) {
	s.calls = append(s.calls, p)
	if s.err != nil {
		return nil, s.err
	}
	return &models.ScanResult{Universe: p.Universe}, nil
}

func newApp(t *testing.T, s Scanner) (*App, *cache.MemoryCache) {
	t.Helper()
	c := cache.NewMemoryCache()
	t.Cleanup(func() { _ = c.Close() })
	cfg := config.Default()
	cfg.Scan.Universe = "etf"
	return New(cfg, nil, nil, s, c), c
}

func TestScheduledScan_RefreshesUniverseAndReleasesLock(t *testing.T) {
	s := &countingScanner{}
	app, c := newApp(t, s)
	ctx := context.Background()

	app.scheduledScan(ctx)
	require.Len(t, s.calls, 1)
	assert.Equal(t, "etf", s.calls[0].Universe)
	assert.True(t, s.calls[0].Refresh)

	ok, err := c.TryLock(ctx, "lock:scan:etf", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "lock released after the run")
}

func TestScheduledScan_SkipsWhenLocked(t *testing.T) {
	s := &countingScanner{}
	app, c := newApp(t, s)
	ctx := context.Background()

	ok, err := c.TryLock(ctx, "lock:scan:etf", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	app.scheduledScan(ctx)
	assert.Empty(t, s.calls)
}

func TestScheduledScan_FailureReleasesLock(t *testing.T) {
	s := &countingScanner{err: errors.New("boom")}
	app, _ := newApp(t, s)

	app.scheduledScan(context.Background())
	app.scheduledScan(context.Background())
	assert.Len(t, s.calls, 2)
}

func TestSchedule_RejectsBadSpec(t *testing.T) {
	app, _ := newApp(t, &countingScanner{})
	assert.Error(t, app.schedule(context.Background(), "every tuesday"))
}
