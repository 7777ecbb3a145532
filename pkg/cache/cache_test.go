package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Code   string  `json:"code"`
	Market string  `json:"market"`
	Score  float64 `json:"score"`
}

func TestMemoryCache_StructRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "resolve:2330", payload{Code: "2330", Market: "TW", Score: 0.7}, time.Hour))

	var got payload
	require.NoError(t, mc.Get(ctx, "resolve:2330", &got))
	assert.Equal(t, payload{Code: "2330", Market: "TW", Score: 0.7}, got)

	var s string
	require.NoError(t, mc.Set(ctx, "raw", "4772.TWO", 0))
	require.NoError(t, mc.Get(ctx, "raw", &s))
	assert.Equal(t, "4772.TWO", s)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	var s string
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
}

func TestMemoryCache_DeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	_ = mc.Set(ctx, "resolve:2330", "2330.TW", 0)
	_ = mc.Set(ctx, "resolve:4772", "4772.TWO", 0)
	_ = mc.Set(ctx, "scan:all:short", "{}", 0)

	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern("resolve")))

	ok, _ := mc.Exists(ctx, "resolve:2330", "resolve:4772")
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "scan:all:short")
	assert.True(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	_ = mc.Set(ctx, "a", "1", 0)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "b", "2", 0)
	time.Sleep(time.Millisecond)
	var s string
	_ = mc.Get(ctx, "a", &s)
	_ = mc.Set(ctx, "c", "3", 0)

	assert.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &s))
	assert.Equal(t, "1", s)
}

func TestMemoryCache_TryLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	ok, err := mc.TryLock(ctx, "lock:scan", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = mc.TryLock(ctx, "lock:scan", time.Minute)
	assert.False(t, ok)

	require.NoError(t, mc.Unlock(ctx, "lock:scan"))
	ok, _ = mc.TryLock(ctx, "lock:scan", time.Minute)
	assert.True(t, ok)
}

func TestLayeredCache_PromotesFromL2(t *testing.T) {
	ctx := context.Background()
	l2 := NewMemoryCache()
	lc := NewLayeredCache(l2)
	defer lc.Close()

	require.NoError(t, l2.Set(ctx, "scan:all", payload{Code: "0050"}, time.Hour))

	var got payload
	require.NoError(t, lc.Get(ctx, "scan:all", &got))
	assert.Equal(t, "0050", got.Code)

	// Served from L1 after L2 loses it.
	require.NoError(t, l2.Delete(ctx, "scan:all"))
	got = payload{}
	require.NoError(t, lc.Get(ctx, "scan:all", &got))
	assert.Equal(t, "0050", got.Code)
}

func TestGetOrLoad(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	calls := 0
	load := func(context.Context) (string, error) {
		calls++
		return "2330.TW", nil
	}

	for i := 0; i < 3; i++ {
		v, err := GetOrLoad(ctx, mc, "resolve:2330", time.Hour, load)
		require.NoError(t, err)
		assert.Equal(t, "2330.TW", v)
	}
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	_, err := GetOrLoad(ctx, mc, "resolve:9999", time.Hour, func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	ok, _ := mc.Exists(ctx, "resolve:9999")
	assert.False(t, ok)
}
