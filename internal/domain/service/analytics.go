package service

import (
	"TWSignal/internal/domain/models"
)

// Classifier estimates the probability that the label is 1 for a feature vector.
type Classifier interface {
	PredictProba(x []float64) float64
}

// TechnicalScorer turns an OHLCV history into a rule-based score in [0,1].
// Only bars up to and including the last element are read.
type TechnicalScorer interface {
	Score(bars []models.Bar, h models.Horizon) (float64, *models.Indicators, error)
}

// FundamentalScorer turns valuation ratios into a score in [0,1].
// ok is false when nothing usable was reported.
type FundamentalScorer interface {
	Score(f *models.Fundamentals, h models.Horizon) (score float64, ok bool)
}
