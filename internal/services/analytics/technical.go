package analytics

import (
	"fmt"
	"slices"
	"time"

	"TWSignal/internal/domain/models"
	domsvc "TWSignal/internal/domain/service"
	"TWSignal/internal/services/features"
	"TWSignal/pkg/config"

	"github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"
)

const (
	bollingerWindow = 20
	bollingerSigma  = 2.0
	rsiOversold     = 30.0
	rsiOverbought   = 70.0
)

// TechScorer scores the last bar of a history with weighted +1/-1 rules.
type TechScorer struct {
	cfg config.FeatureConfig
	ma  []int
}

// NewTechnicalScorer uses the feature windows so readings match the model inputs.
func NewTechnicalScorer(cfg config.FeatureConfig) *TechScorer {
	ma := slices.Clone(cfg.MAWindows)
	slices.Sort(ma)
	return &TechScorer{cfg: cfg, ma: ma}
}

// MinBars is the history needed for every indicator to be defined at the last bar.
func (s *TechScorer) MinBars() int {
	need := max(s.ma[len(s.ma)-1], bollingerWindow, s.cfg.RSI+1, s.cfg.MACDSlow+s.cfg.MACDSignal)
	if s.cfg.KD {
		need = max(need, s.cfg.KDWindow+s.cfg.KDSmooth-1)
	}
	return need
}

type rule struct {
	weight float64
	vote   float64 // -1, 0 or +1
	signal string
}

// Score returns a value in [0,1] and the indicator readings at the last bar.
func (s *TechScorer) Score(bars []models.Bar, h models.Horizon) (float64, *models.Indicators, error) {
	if len(bars) < s.MinBars() {
		return 0, nil, &models.InsufficientHistoryError{Need: s.MinBars(), Have: len(bars)}
	}

	ind := s.indicators(bars)
	last := bars[len(bars)-1].Close

	var rules []rule
	switch h {
	case models.HorizonLong:
		rules = s.longRules(last, ind)
	case models.HorizonShort, "":
		rules = s.shortRules(last, ind)
	default:
		return 0, nil, fmt.Errorf("unknown horizon %q", h)
	}

	var sum, weights float64
	for _, r := range rules {
		sum += r.weight * r.vote
		weights += r.weight
		if r.signal != "" {
			ind.Signals = append(ind.Signals, r.signal)
		}
	}
	if weights == 0 {
		return 0.5, ind, nil
	}
	return clip01((sum/weights + 1) / 2), ind, nil
}

func (s *TechScorer) shortRules(close float64, ind *models.Indicators) []rule {
	fast := ind.MA[s.ma[0]]
	rules := []rule{
		cmp(1, close, fast, fmt.Sprintf("close above MA%d", s.ma[0]), fmt.Sprintf("close below MA%d", s.ma[0])),
	}
	if len(s.ma) > 1 {
		mid := ind.MA[s.ma[1]]
		rules = append(rules, cmp(1, fast, mid,
			fmt.Sprintf("MA%d above MA%d", s.ma[0], s.ma[1]),
			fmt.Sprintf("MA%d below MA%d", s.ma[0], s.ma[1])))
	}
	switch {
	case ind.RSI < rsiOversold:
		rules = append(rules, rule{1, 1, "RSI oversold"})
	case ind.RSI > rsiOverbought:
		rules = append(rules, rule{1, -1, "RSI overbought"})
	default:
		rules = append(rules, rule{1, 0, ""})
	}
	rules = append(rules, cmp(1, ind.MACDHist, 0, "MACD histogram positive", "MACD histogram negative"))
	if s.cfg.KD {
		rules = append(rules, cmp(0.5, ind.K, ind.D, "K above D", "K below D"))
	}
	switch {
	case close > ind.BBUpper:
		rules = append(rules, rule{0.5, -1, "close above upper Bollinger band"})
	case close < ind.BBLower:
		rules = append(rules, rule{0.5, 1, "close below lower Bollinger band"})
	default:
		rules = append(rules, rule{0.5, 0, ""})
	}
	return rules
}

func (s *TechScorer) longRules(close float64, ind *models.Indicators) []rule {
	slow := s.ma[len(s.ma)-1]
	rules := []rule{
		cmp(1.5, close, ind.MA[slow], fmt.Sprintf("close above MA%d", slow), fmt.Sprintf("close below MA%d", slow)),
	}
	if len(s.ma) > 1 {
		mid := s.ma[len(s.ma)-2]
		rules = append(rules, cmp(1, ind.MA[mid], ind.MA[slow],
			fmt.Sprintf("MA%d above MA%d", mid, slow),
			fmt.Sprintf("MA%d below MA%d", mid, slow)))
	}
	rules = append(rules,
		cmp(1, ind.MACD, 0, "MACD above zero", "MACD below zero"),
		cmp(0.5, ind.RSI, 50, "RSI above 50", "RSI below 50"),
	)
	return rules
}

// cmp votes +1 when a > b, -1 when a < b.
func cmp(w, a, b float64, up, down string) rule {
	switch {
	case a > b:
		return rule{w, 1, up}
	case a < b:
		return rule{w, -1, down}
	default:
		return rule{w, 0, ""}
	}
}

func (s *TechScorer) indicators(bars []models.Bar) *models.Indicators {
	ts := toTimeSeries(bars)
	last := ts.LastIndex()
	closes := techan.NewClosePriceIndicator(ts)

	ind := &models.Indicators{MA: make(map[int]float64, len(s.ma))}
	for _, n := range s.ma {
		ind.MA[n] = techan.NewSimpleMovingAverage(closes, n).Calculate(last).Float()
	}

	// A window without any price change has no defined strength; read it as neutral.
	if flat(bars[len(bars)-s.cfg.RSI-1:]) {
		ind.RSI = 50
	} else {
		ind.RSI = techan.NewRelativeStrengthIndexIndicator(closes, s.cfg.RSI).Calculate(last).Float()
	}

	macd := techan.NewMACDIndicator(closes, s.cfg.MACDFast, s.cfg.MACDSlow)
	ind.MACD = macd.Calculate(last).Float()
	ind.MACDSignal = techan.NewEMAIndicator(macd, s.cfg.MACDSignal).Calculate(last).Float()
	ind.MACDHist = techan.NewMACDHistogramIndicator(macd, s.cfg.MACDSignal).Calculate(last).Float()

	ind.BBMiddle = techan.NewSimpleMovingAverage(closes, bollingerWindow).Calculate(last).Float()
	ind.BBUpper = techan.NewBollingerUpperBandIndicator(closes, bollingerWindow, bollingerSigma).Calculate(last).Float()
	ind.BBLower = techan.NewBollingerLowerBandIndicator(closes, bollingerWindow, bollingerSigma).Calculate(last).Float()

	// Stochastic via the feature helpers: a flat range reads 50 instead of dividing by zero.
	high, low, cl := make([]float64, len(bars)), make([]float64, len(bars)), make([]float64, len(bars))
	for i, b := range bars {
		high[i], low[i], cl[i] = b.High, b.Low, b.Close
	}
	k, d := features.Stochastic(high, low, cl, s.cfg.KDWindow, s.cfg.KDSmooth)
	ind.K, ind.D = nanToZero(k[last]), nanToZero(d[last])
	return ind
}

func toTimeSeries(bars []models.Bar) *techan.TimeSeries {
	ts := techan.NewTimeSeries()
	for _, b := range bars {
		c := techan.NewCandle(techan.NewTimePeriod(b.Date, 24*time.Hour))
		c.OpenPrice = big.NewDecimal(b.Open)
		c.ClosePrice = big.NewDecimal(b.Close)
		c.MaxPrice = big.NewDecimal(b.High)
		c.MinPrice = big.NewDecimal(b.Low)
		c.Volume = big.NewDecimal(b.Volume)
		ts.AddCandle(c)
	}
	return ts
}

func flat(bars []models.Bar) bool {
	for _, b := range bars[1:] {
		if b.Close != bars[0].Close {
			return false
		}
	}
	return true
}

func nanToZero(v float64) float64 {
	if v != v {
		return 0
	}
	return v
}

func clip01(v float64) float64 {
	return min(max(v, 0), 1)
}

var _ domsvc.TechnicalScorer = (*TechScorer)(nil)
