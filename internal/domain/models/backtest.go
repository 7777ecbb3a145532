package models

import "time"

// Strategy selects how daily probabilities are produced during a backtest.
type Strategy string

const (
	StrategyModel Strategy = "model"
	StrategyRules Strategy = "rules"
)

// Action is the position decision taken on a replayed day.
type Action string

const (
	ActionNone Action = ""
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// BacktestDay is the decision log for one replayed day.
type BacktestDay struct {
	Date      time.Time `json:"date"`
	Close     float64   `json:"close"`
	Prob      float64   `json:"prob"`
	Action    Action    `json:"action,omitempty"`
	Held      bool      `json:"held"`       // exposed from close[i] to close[i+1]
	FwdReturn float64   `json:"fwd_return"` // close[i+1]/close[i]-1, set when Held
}

// Trade is one round trip.
type Trade struct {
	EntryDate  time.Time `json:"entry_date"`
	EntryPrice float64   `json:"entry_price"`
	ExitDate   time.Time `json:"exit_date"`
	ExitPrice  float64   `json:"exit_price"`
	Return     float64   `json:"return"`
}

// ReturnDistribution summarises signal-day forward returns.
type ReturnDistribution struct {
	P10    float64 `json:"p10"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Stddev float64 `json:"stddev"`
}

// BacktestSummary holds the aggregate statistics. Ratios are fractions, not percent.
type BacktestSummary struct {
	SignalDays     int                `json:"signal_days"`
	HitRate        float64            `json:"hit_rate"`
	AvgReturn      float64            `json:"avg_return"`
	TotalReturn    float64            `json:"total_return"`
	CompoundReturn float64            `json:"compound_return"`
	MaxDrawdown    float64            `json:"max_drawdown"`
	NumTrades      int                `json:"num_trades"`
	WinRate        float64            `json:"win_rate"`
	Distribution   ReturnDistribution `json:"distribution"`
}

// TickerBacktest is the replay of one ticker.
type TickerBacktest struct {
	Ticker  string          `json:"ticker"`
	From    time.Time       `json:"from"`
	To      time.Time       `json:"to"`
	Summary BacktestSummary `json:"summary"`
	Trades  []Trade         `json:"trades"`
	Days    []BacktestDay   `json:"days"`
}

// BacktestResult is the output of one backtest run.
type BacktestResult struct {
	RunID         string           `json:"run_id"`
	Strategy      Strategy         `json:"strategy"`
	BuyThreshold  float64          `json:"buy_threshold"`
	SellThreshold float64          `json:"sell_threshold"`
	StartedAt     time.Time        `json:"started_at"`
	Summary       BacktestSummary  `json:"summary"`
	Tickers       []TickerBacktest `json:"tickers"`
	Skipped       []Skip           `json:"skipped"`
}
