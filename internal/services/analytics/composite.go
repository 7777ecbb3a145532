package analytics

import (
	"math"

	"TWSignal/internal/domain/models"
	"TWSignal/pkg/config"

	"github.com/shopspring/decimal"
)

// Composite blends the available components, renormalising w over those present.
// ok is false when no component with positive weight is present.
func Composite(c models.Components, w config.Weights) (score float64, ok bool) {
	var sum, weights float64
	add := func(v *float64, weight float64) {
		if v == nil || weight <= 0 {
			return
		}
		sum += *v * weight
		weights += weight
	}
	add(c.Technical, w.Technical)
	add(c.Fundamental, w.Fundamental)
	add(c.Model, w.Model)
	if weights == 0 {
		return 0, false
	}
	return clip01(sum / weights), true
}

// LabelFor maps a score onto BUY / HOLD / SELL using inclusive bands.
func LabelFor(score, buyBand, sellBand float64) models.Label {
	switch {
	case score >= buyBand:
		return models.LabelBuy
	case score <= sellBand:
		return models.LabelSell
	default:
		return models.LabelHold
	}
}

// Direction is UP when p >= 0.5.
func Direction(p float64) string {
	if p >= 0.5 {
		return "UP"
	}
	return "DOWN"
}

// Confidence is |p-0.5|*2 clipped to [0,1].
func Confidence(p float64) float64 {
	return clip01(math.Abs(p-0.5) * 2)
}

// KeyMetrics derives display figures from the last bars, in percent rounded to 2 places.
// The volume ratio is a plain ratio.
func KeyMetrics(bars []models.Bar) models.KeyMetrics {
	var m models.KeyMetrics
	n := len(bars)
	if n < 2 {
		return m
	}
	closes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
	}
	if closes[n-2] > 0 {
		m.Return1D = Round(closes[n-1]/closes[n-2]-1, 2, 100)
	}
	if n >= 6 && closes[n-6] > 0 {
		m.Return5D = Round(closes[n-1]/closes[n-6]-1, 2, 100)
	}
	if n >= 21 {
		rets := make([]float64, 0, 20)
		for i := n - 20; i < n; i++ {
			if closes[i-1] > 0 {
				rets = append(rets, closes[i]/closes[i-1]-1)
			}
		}
		if len(rets) >= 2 {
			m.Volatility20D = Round(stddev(rets), 2, 100)
		}
	}
	if n >= 20 {
		var sum float64
		for _, b := range bars[n-20:] {
			sum += b.Volume
		}
		if avg := sum / 20; avg > 0 {
			m.VolumeRatio20D = Round(bars[n-1].Volume/avg, 2, 1)
		}
	}
	return m
}

// Round scales v and rounds half away from zero to places decimals.
func Round(v float64, places int32, scale float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	r, _ := decimal.NewFromFloat(v).Mul(decimal.NewFromFloat(scale)).Round(places).Float64()
	return &r
}

func stddev(x []float64) float64 {
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	var ss float64
	for _, v := range x {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(len(x)-1))
}
