package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-10-10", "20241010", "2024-10-10T09:00:00+08:00"} {
		got, ok := ParseDate(s)
		require.True(t, ok, s)
		assert.True(t, got.Equal(want), "%s -> %v", s, got)
	}

	_, ok := ParseDate("yesterday")
	assert.False(t, ok)
}

func TestParseDateDefault(t *testing.T) {
	def := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, def, ParseDateDefault("", def))
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2024, 6, 15, 4, 0, 0, 0, time.UTC)

	got, err := PeriodStart("6mo", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 12, 15, 0, 0, 0, 0, time.UTC), got)

	got, err = PeriodStart("max", now)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = PeriodStart("7w", now)
	assert.Error(t, err)
}

func TestLatestTradingDay(t *testing.T) {
	// Monday 2024-06-17 10:00 Taipei: bar not published yet, previous Friday expected.
	mondayMorning := time.Date(2024, 6, 17, 10, 0, 0, 0, Taipei)
	assert.Equal(t, time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), LatestTradingDay(mondayMorning, 14))

	mondayEvening := time.Date(2024, 6, 17, 18, 0, 0, 0, Taipei)
	assert.Equal(t, time.Date(2024, 6, 17, 0, 0, 0, 0, time.UTC), LatestTradingDay(mondayEvening, 14))

	sunday := time.Date(2024, 6, 16, 18, 0, 0, 0, Taipei)
	assert.Equal(t, time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), LatestTradingDay(sunday, 14))
}

func TestRecentWeekdays(t *testing.T) {
	end := time.Date(2024, 6, 17, 0, 0, 0, 0, time.UTC) // Monday
	days := RecentWeekdays(end, 3)
	require.Len(t, days, 3)
	assert.Equal(t, time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC), days[0])
	assert.Equal(t, time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), days[1])
	assert.Equal(t, end, days[2])
}

func TestParseNumber(t *testing.T) {
	v, ok := ParseNumber("1,234,567")
	require.True(t, ok)
	assert.Equal(t, 1234567.0, v)

	v, ok = ParseNumber(" -12.5 ")
	require.True(t, ok)
	assert.Equal(t, -12.5, v)

	_, ok = ParseNumber("--")
	assert.False(t, ok)
}
