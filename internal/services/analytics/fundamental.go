package analytics

import (
	"TWSignal/internal/domain/models"
	domsvc "TWSignal/internal/domain/service"
)

// FundScorer scores TWSE valuation ratios. Zero ratios count as not reported.
type FundScorer struct{}

func NewFundamentalScorer() *FundScorer { return &FundScorer{} }

// Score is in [0,1]; ok is false when no ratio was reported.
func (FundScorer) Score(f *models.Fundamentals, h models.Horizon) (float64, bool) {
	if f == nil {
		return 0, false
	}

	// Income matters more over the long horizon.
	yieldWeight := 1.0
	if h == models.HorizonLong {
		yieldWeight = 1.5
	}

	var sum, weights float64
	vote := func(w, v float64) {
		sum += w * v
		weights += w
	}

	if f.PE > 0 {
		switch {
		case f.PE < 15:
			vote(1, 1)
		case f.PE > 30:
			vote(1, -1)
		default:
			vote(1, 0)
		}
	}
	if f.DividendYield > 0 {
		if f.DividendYield >= 4 {
			vote(yieldWeight, 1)
		} else {
			vote(yieldWeight, 0)
		}
	}
	if f.PB > 0 {
		switch {
		case f.PB < 1.5:
			vote(1, 1)
		case f.PB > 4:
			vote(1, -1)
		default:
			vote(1, 0)
		}
	}

	if weights == 0 {
		return 0, false
	}
	return clip01((sum/weights + 1) / 2), true
}

var _ domsvc.FundamentalScorer = FundScorer{}
