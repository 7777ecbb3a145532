// Package testutil builds deterministic market data for tests.
package testutil

import (
	"math"
	"math/rand"
	"time"

	"TWSignal/internal/domain/models"
)

// Start is the first bar date used by Bars.
var Start = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

// Bars returns n weekday bars following a seeded random walk with a mild cycle.
func Bars(n int, seed int64) []models.Bar {
	r := rand.New(rand.NewSource(seed))
	out := make([]models.Bar, 0, n)
	price := 100.0
	d := Start
	for len(out) < n {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, 1)
			continue
		}
		i := float64(len(out))
		step := 0.01*math.Sin(i/7) + 0.015*r.NormFloat64()
		open := price
		price = math.Max(1, price*(1+step))
		high := math.Max(open, price) * (1 + 0.005*r.Float64())
		low := math.Min(open, price) * (1 - 0.005*r.Float64())
		out = append(out, models.Bar{
			Date:   d,
			Open:   round2(open),
			High:   round2(high),
			Low:    round2(low),
			Close:  round2(price),
			Volume: float64(1_000_000 + r.Intn(500_000)),
		})
		d = d.AddDate(0, 0, 1)
	}
	return out
}

// Trend returns n weekday bars whose close moves by pct each day.
func Trend(n int, pct float64) []models.Bar {
	out := make([]models.Bar, 0, n)
	price := 100.0
	d := Start
	for len(out) < n {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, 1)
			continue
		}
		next := price * (1 + pct)
		out = append(out, models.Bar{
			Date:   d,
			Open:   price,
			High:   math.Max(price, next) * 1.001,
			Low:    math.Min(price, next) * 0.999,
			Close:  next,
			Volume: 1_000_000,
		})
		price = next
		d = d.AddDate(0, 0, 1)
	}
	return out
}

// Series wraps bars for ticker.
func Series(ticker string, bars []models.Bar) *models.Series {
	return &models.Series{Ticker: models.MustTicker(ticker), Bars: bars}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
