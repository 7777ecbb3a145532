package models

import "time"

// Horizon selects the scoring weights.
type Horizon string

const (
	HorizonShort Horizon = "short"
	HorizonLong  Horizon = "long"
)

// Label is the discrete recommendation.
type Label string

const (
	LabelBuy  Label = "BUY"
	LabelHold Label = "HOLD"
	LabelSell Label = "SELL"
)

// Components holds the per-source scores in [0,1]. A nil pointer means the
// source was unavailable and did not contribute.
type Components struct {
	Technical   *float64 `json:"technical,omitempty"`
	Fundamental *float64 `json:"fundamental,omitempty"`
	Model       *float64 `json:"model,omitempty"`
}

// KeyMetrics are OHLCV-derived figures in percent (volume ratio is a plain ratio).
type KeyMetrics struct {
	Return1D       *float64 `json:"return_1d"`
	Return5D       *float64 `json:"return_5d"`
	Volatility20D  *float64 `json:"volatility_20d"`
	VolumeRatio20D *float64 `json:"volume_ratio_20d"`
}

// Indicators are the technical readings at the last bar.
type Indicators struct {
	MA         map[int]float64 `json:"ma"`
	RSI        float64         `json:"rsi"`
	MACD       float64         `json:"macd"`
	MACDSignal float64         `json:"macd_signal"`
	MACDHist   float64         `json:"macd_hist"`
	BBUpper    float64         `json:"bb_upper"`
	BBMiddle   float64         `json:"bb_middle"`
	BBLower    float64         `json:"bb_lower"`
	K          float64         `json:"k"`
	D          float64         `json:"d"`
	Signals    []string        `json:"signals,omitempty"`
}

// Recommendation is the scored view of one ticker for one horizon.
type Recommendation struct {
	Ticker     string     `json:"ticker"`
	Name       string     `json:"name,omitempty"`
	Horizon    Horizon    `json:"horizon"`
	AsOf       time.Time  `json:"as_of"`
	LastClose  float64    `json:"last_close"`
	Score      float64    `json:"score"`
	Label      Label      `json:"label"`
	Components Components `json:"components"`

	// Model view: direction is UP when ProbUp >= 0.5.
	ProbUp     float64 `json:"prob_up"`
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
	ModelUsed  bool    `json:"model_used"`

	KeyMetrics   KeyMetrics    `json:"key_metrics"`
	Indicators   *Indicators   `json:"indicators,omitempty"`
	Fundamentals *Fundamentals `json:"fundamentals,omitempty"`
	Flows        *FlowSummary  `json:"flows,omitempty"`
	Stale        bool          `json:"stale,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
}

// Skip records why a ticker was left out of a multi-ticker run.
type Skip struct {
	Ticker string `json:"ticker"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// ScanResult is the ranked output of a daily scan.
type ScanResult struct {
	Universe    string            `json:"universe"`
	Horizon     Horizon           `json:"horizon"`
	GeneratedAt time.Time         `json:"generated_at"`
	Ranked      []*Recommendation `json:"ranked"`
	TopPicks    []*Recommendation `json:"top_picks"`
	Warnings    []*Recommendation `json:"warnings"`
	Skipped     []Skip            `json:"skipped"`
	Notes       []string          `json:"notes,omitempty"`
}
