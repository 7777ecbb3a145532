package models

import "time"

// Fundamentals are the valuation ratios TWSE publishes per listed security.
// Zero means not reported.
type Fundamentals struct {
	Ticker        string    `json:"ticker"`
	Name          string    `json:"name,omitempty"`
	PE            float64   `json:"pe"`
	DividendYield float64   `json:"dividend_yield"` // percent
	PB            float64   `json:"pb"`
	FiscalPeriod  string    `json:"fiscal_period,omitempty"`
	AsOf          time.Time `json:"as_of"`
}

// UniverseEntry is one row of the scan universe file.
type UniverseEntry struct {
	Code     string `json:"code" parquet:"code"`
	Name     string `json:"name" parquet:"name"`
	Ticker   string `json:"ticker" parquet:"ticker"`
	Market   string `json:"market" parquet:"market"`
	Industry string `json:"industry" parquet:"industry"`
	IsETF    bool   `json:"is_etf" parquet:"is_etf"`
	IsActive bool   `json:"is_active" parquet:"is_active"`
}
