package models

// Requests for the HTTP API. Defined in domain for reuse by the CLI.

type ResolveRequest struct {
	Query string `query:"q" json:"q" validate:"required,max=64"`
}

type HistoryRequest struct {
	Ticker string `query:"ticker" json:"ticker" validate:"required"`
	Period string `query:"period" json:"period" default:"6mo" validate:"oneof=1mo 3mo 6mo 1y 2y 5y max"`
}

type DiagnoseRequest struct {
	Ticker  string `query:"ticker" json:"ticker" validate:"required"`
	Horizon string `query:"horizon" json:"horizon" default:"short" validate:"oneof=short long"`
	Period  string `query:"period" json:"period" default:"6mo" validate:"oneof=3mo 6mo 1y 2y 5y"`
}

type ScanRequest struct {
	Universe string `query:"universe" json:"universe" default:"all" validate:"required"`
	Horizon  string `query:"horizon" json:"horizon" default:"short" validate:"oneof=short long"`
	Top      int    `query:"top" json:"top" default:"5" validate:"gte=1,lte=200"`
	Refresh  bool   `query:"refresh" json:"refresh"`
}

type BacktestRequest struct {
	Tickers       []string `json:"tickers" validate:"required,min=1,max=50,dive,ticker"`
	Period        string   `json:"period" default:"1y" validate:"oneof=1mo 3mo 6mo 1y 2y 5y max"`
	From          string   `json:"from" validate:"omitempty,datetime=2006-01-02"`
	To            string   `json:"to" validate:"omitempty,datetime=2006-01-02"`
	Strategy      string   `json:"strategy" default:"model" validate:"oneof=model rules"`
	BuyThreshold  float64  `json:"buy_threshold" default:"0.6" validate:"gt=0,lte=1"`
	SellThreshold float64  `json:"sell_threshold" default:"0.4" validate:"gte=0,ltfield=BuyThreshold"`
	Model         string   `json:"model" validate:"omitempty,modelfile"`
	Horizon       string   `json:"horizon" default:"short" validate:"oneof=short long"`
	IncludeDays   bool     `json:"include_days"`
}

type TrainRequest struct {
	Tickers    []string `json:"tickers" validate:"required,min=1,max=500,dive,ticker"`
	Period     string   `json:"period" default:"2y" validate:"oneof=1y 2y 5y max"`
	// Model names an artifact file in the configured model directory.
	Model string `json:"model" validate:"omitempty,modelfile"`
}
