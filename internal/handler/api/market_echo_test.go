package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TWSignal/internal/domain/models"
	"TWSignal/internal/usecase"
)

type fakeData struct{}

func (fakeData) ResolveTicker(_ context.Context, q string) (models.Ticker, error) {
	if q == "2330" || q == "2330.TW" {
		return models.Ticker{Code: "2330", Market: models.MarketListed}, nil
	}
	return models.Ticker{}, &models.NotFoundError{Query: q}
}

func (fakeData) NameFor(models.Ticker) string { return "台積電" }

func (fakeData) GetHistory(_ context.Context, t models.Ticker, period string) (*usecase.HistoryResult, error) {
	return &usecase.HistoryResult{Series: &models.Series{Ticker: t}, Source: "cache"}, nil
}

type fakeAnalysis struct {
	err  error
	scan usecase.ScanParams
}

func (f *fakeAnalysis) Diagnose(_ context.Context, q string, h models.Horizon, _ string) (*models.Recommendation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Recommendation{Ticker: q, Horizon: h, Score: 0.7, Label: models.LabelBuy}, nil
}

func (f *fakeAnalysis) DailyScan(_ context.Context, p usecase.ScanParams) (*models.ScanResult, error) {
	f.scan = p
	if p.Universe == "nope" {
		return nil, fmt.Errorf("%w: %s", usecase.ErrUnknownUniverse, p.Universe)
	}
	return &models.ScanResult{Universe: p.Universe, Horizon: p.Horizon}, nil
}

func (f *fakeAnalysis) Universes() []string { return []string{"all", "etf"} }

type fakeBacktest struct{ got usecase.BacktestConfig }

func (f *fakeBacktest) RunBacktest(_ context.Context, c usecase.BacktestConfig) (*models.BacktestResult, error) {
	f.got = c
	return &models.BacktestResult{RunID: "r1", Tickers: []models.TickerBacktest{
		{Ticker: "2330.TW", Days: []models.BacktestDay{{Held: true}}},
	}}, nil
}

type fakeTrainer struct {
	calls int
	got   usecase.TrainParams
}

func (f *fakeTrainer) TrainModel(_ context.Context, p usecase.TrainParams) (*usecase.TrainResult, error) {
	f.calls++
	f.got = p
	return &usecase.TrainResult{Metrics: map[string]float64{}, Error: "too few rows: 3", Tickers: p.Tickers}, nil
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func setup(a *fakeAnalysis, b *fakeBacktest, rl RateLimit) *echo.Echo {
	e := echo.New()
	NewMarketEchoHandler(nil, fakeData{}, a, b, &fakeTrainer{}, "models", rl).RegisterRoutes(e)
	return e
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	if rec.Header().Get(echo.HeaderContentType) != "" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func TestResolveAndHistory(t *testing.T) {
	e := setup(&fakeAnalysis{}, &fakeBacktest{}, RateLimit{})

	code, env := do(t, e, http.MethodGet, "/api/resolve?q=2330", "")
	require.Equal(t, http.StatusOK, code)
	var r resolveResponse
	require.NoError(t, json.Unmarshal(env.Data, &r))
	assert.Equal(t, "2330.TW", r.Ticker)
	assert.Equal(t, "台積電", r.Name)

	code, _ = do(t, e, http.MethodGet, "/api/resolve?q=9999", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, e, http.MethodGet, "/api/history", "")
	assert.Equal(t, http.StatusBadRequest, code, "ticker is required")

	code, _ = do(t, e, http.MethodGet, "/api/history?ticker=2330&period=10y", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = do(t, e, http.MethodGet, "/api/history?ticker=2330", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"source":"cache"`)
}

func TestDiagnose_ErrorStatuses(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{&models.NotFoundError{Query: "x"}, http.StatusNotFound},
		{&models.InsufficientHistoryError{Ticker: "2330.TW", Need: 60, Have: 10}, http.StatusUnprocessableEntity},
		{&models.ModelMismatchError{}, http.StatusConflict},
		{&models.DataUnavailableError{Ticker: "2330.TW", Op: "history", Err: fmt.Errorf("timeout")}, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		e := setup(&fakeAnalysis{err: tc.err}, &fakeBacktest{}, RateLimit{})
		code, env := do(t, e, http.MethodGet, "/api/diagnose?ticker=2330", "")
		assert.Equal(t, tc.want, code, "%v", tc.err)
		assert.Equal(t, tc.want, env.Status)
	}
}

func TestScan_DefaultsAndUnknownUniverse(t *testing.T) {
	a := &fakeAnalysis{}
	e := setup(a, &fakeBacktest{}, RateLimit{})

	code, _ := do(t, e, http.MethodGet, "/api/scan", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "all", a.scan.Universe)
	assert.Equal(t, models.HorizonShort, a.scan.Horizon)
	assert.Equal(t, 5, a.scan.TopN)

	code, _ = do(t, e, http.MethodGet, "/api/scan?universe=nope", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := do(t, e, http.MethodGet, "/api/universes", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"total":2`)
}

func TestScan_RateLimited(t *testing.T) {
	e := setup(&fakeAnalysis{}, &fakeBacktest{}, RateLimit{Burst: 1, PerSec: 0.001})

	code, _ := do(t, e, http.MethodGet, "/api/scan", "")
	require.Equal(t, http.StatusOK, code)
	code, env := do(t, e, http.MethodGet, "/api/scan", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Contains(t, string(env.Data), "ERR_RATE_LIMITED")

	code, _ = do(t, e, http.MethodGet, "/api/diagnose?ticker=2330", "")
	assert.Equal(t, http.StatusOK, code, "light endpoints are not limited")
}

func TestBacktest(t *testing.T) {
	b := &fakeBacktest{}
	e := setup(&fakeAnalysis{}, b, RateLimit{})

	code, env := do(t, e, http.MethodPost, "/api/backtest", `{"tickers":["2330"],"strategy":"rules","from":"2024-01-02","to":"2024-06-28"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.StrategyRules, b.got.Strategy)
	assert.Equal(t, 0.6, b.got.BuyThreshold)
	assert.Equal(t, "1y", b.got.Period)
	assert.Equal(t, 2024, b.got.From.Year())
	assert.Equal(t, time.June, b.got.To.Month())
	assert.Contains(t, string(env.Data), `"days":null`)

	_, env = do(t, e, http.MethodPost, "/api/backtest", `{"tickers":["2330"],"include_days":true}`)
	assert.Contains(t, string(env.Data), `"held":true`)

	code, _ = do(t, e, http.MethodPost, "/api/backtest", `{"tickers":["abc"]}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, e, http.MethodPost, "/api/backtest", `{"tickers":["2330"],"buy_threshold":0.4,"sell_threshold":0.5}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, e, http.MethodPost, "/api/backtest", `{"tickers":["2330"],"from":"2024-06-01","to":"2024-01-01"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTrain_TooFewRowsIsNotAnError(t *testing.T) {
	e := setup(&fakeAnalysis{}, &fakeBacktest{}, RateLimit{})
	code, env := do(t, e, http.MethodPost, "/api/train", `{"tickers":["2330","2317.TW"]}`)
	require.Equal(t, http.StatusOK, code)
	var res usecase.TrainResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Empty(t, res.Metrics)
	assert.Equal(t, "too few rows: 3", res.Error)
}

func TestModelNamesStayInModelDir(t *testing.T) {
	tr := &fakeTrainer{}
	b := &fakeBacktest{}
	e := echo.New()
	NewMarketEchoHandler(nil, fakeData{}, &fakeAnalysis{}, b, tr, "models", RateLimit{}).RegisterRoutes(e)

	for _, name := range []string{
		"../../../etc/cron.d/x.json",
		"/etc/cron.d/x.json",
		"sub/rf.json",
		"..json",
		".hidden.json",
		"rf_v2.txt",
	} {
		body := fmt.Sprintf(`{"tickers":["2330"],"model":%q}`, name)
		code, _ := do(t, e, http.MethodPost, "/api/train", body)
		assert.Equal(t, http.StatusBadRequest, code, "train %q", name)
		code, _ = do(t, e, http.MethodPost, "/api/backtest", body)
		assert.Equal(t, http.StatusBadRequest, code, "backtest %q", name)
	}
	assert.Zero(t, tr.calls)

	code, _ := do(t, e, http.MethodPost, "/api/train", `{"tickers":["2330"],"model":"rf_v2.json"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, filepath.Join("models", "rf_v2.json"), tr.got.OutputPath)

	code, _ = do(t, e, http.MethodPost, "/api/backtest", `{"tickers":["2330"],"model":"rf_v2.json"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, filepath.Join("models", "rf_v2.json"), b.got.ModelPath)

	code, _ = do(t, e, http.MethodPost, "/api/train", `{"tickers":["2330"]}`)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, tr.got.OutputPath, "no name keeps the configured model path")
}
