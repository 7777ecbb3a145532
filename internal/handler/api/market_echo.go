package api

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"TWSignal/internal/domain/models"
	"TWSignal/internal/service/ratelimit"
	"TWSignal/internal/usecase"
	xhttp "TWSignal/pkg/http"
	xlogger "TWSignal/pkg/logger"
	"TWSignal/pkg/util"

	"github.com/labstack/echo/v4"
)

type DataService interface {
	ResolveTicker(ctx context.Context, query string) (models.Ticker, error)
	NameFor(t models.Ticker) string
	GetHistory(ctx context.Context, t models.Ticker, period string) (*usecase.HistoryResult, error)
}

type AnalysisService interface {
	Diagnose(ctx context.Context, query string, h models.Horizon, period string) (*models.Recommendation, error)
	DailyScan(ctx context.Context, p usecase.ScanParams) (*models.ScanResult, error)
	Universes() []string
}

type BacktestService interface {
	RunBacktest(ctx context.Context, c usecase.BacktestConfig) (*models.BacktestResult, error)
}

type TrainService interface {
	TrainModel(ctx context.Context, p usecase.TrainParams) (*usecase.TrainResult, error)
}

// RateLimit bounds the heavy endpoints per client address.
type RateLimit struct {
	Limiter *ratelimit.Limiter
	Burst   float64
	PerSec  float64
}

// MarketEchoHandler serves resolve, history, diagnose, scan, backtest and train over Echo.
type MarketEchoHandler struct {
	logger   *xlogger.Logger
	data     DataService
	analysis AnalysisService
	backtest BacktestService
	trainer  TrainService
	modelDir string
	rl       RateLimit
}

// NewMarketEchoHandler builds the handler. Model names in requests resolve inside modelDir.
func NewMarketEchoHandler(logger *xlogger.Logger, data DataService, analysis AnalysisService,
	backtest BacktestService, trainer TrainService, modelDir string, rl RateLimit) *MarketEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if rl.Limiter == nil {
		rl.Limiter = ratelimit.New()
	}
	return &MarketEchoHandler{logger: logger, data: data, analysis: analysis, backtest: backtest, trainer: trainer, modelDir: modelDir, rl: rl}
}

func (h *MarketEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/resolve", h.Resolve)
	g.GET("/history", h.History)
	g.GET("/diagnose", h.Diagnose)
	g.GET("/universes", h.Universes)
	g.GET("/scan", h.Scan, h.limit("scan"))
	g.POST("/backtest", h.Backtest, h.limit("backtest"))
	g.POST("/train", h.Train, h.limit("train"))
}

func (h *MarketEchoHandler) limit(endpoint string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !h.rl.Limiter.Allow(c.RealIP()+":"+endpoint, h.rl.Burst, h.rl.PerSec) {
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded").WithParam("endpoint", endpoint))
			}
			return next(c)
		}
	}
}

func (h *MarketEchoHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type resolveResponse struct {
	Ticker string `json:"ticker"`
	Code   string `json:"code"`
	Market string `json:"market"`
	Name   string `json:"name,omitempty"`
}

func (h *MarketEchoHandler) Resolve(c echo.Context) error {
	req := &models.ResolveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	t, err := h.data.ResolveTicker(c.Request().Context(), req.Query)
	if err != nil {
		return h.fail(c, "resolve", err)
	}
	return xhttp.SuccessResponse(c, resolveResponse{Ticker: t.String(), Code: t.Code, Market: string(t.Market), Name: h.data.NameFor(t)})
}

func (h *MarketEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	t, err := h.data.ResolveTicker(ctx, req.Ticker)
	if err != nil {
		return h.fail(c, "history", err)
	}
	res, err := h.data.GetHistory(ctx, t, req.Period)
	if err != nil {
		return h.fail(c, "history", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) Diagnose(c echo.Context) error {
	req := &models.DiagnoseRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rec, err := h.analysis.Diagnose(c.Request().Context(), req.Ticker, models.Horizon(req.Horizon), req.Period)
	if err != nil {
		return h.fail(c, "diagnose", err)
	}
	return xhttp.SuccessResponse(c, rec)
}

func (h *MarketEchoHandler) Universes(c echo.Context) error {
	names := h.analysis.Universes()
	return xhttp.ListResponse(c, names, int64(len(names)))
}

func (h *MarketEchoHandler) Scan(c echo.Context) error {
	req := &models.ScanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	start := time.Now()
	res, err := h.analysis.DailyScan(c.Request().Context(), usecase.ScanParams{
		Universe: req.Universe,
		Horizon:  models.Horizon(req.Horizon),
		TopN:     req.Top,
		Refresh:  req.Refresh,
	})
	if err != nil {
		return h.fail(c, "scan", err)
	}
	h.logger.Debug("scan served", xlogger.String("universe", req.Universe), xlogger.Duration("took", time.Since(start)))
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) Backtest(c echo.Context) error {
	req := &models.BacktestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	cfg := usecase.BacktestConfig{
		Tickers:       req.Tickers,
		Period:        req.Period,
		Strategy:      models.Strategy(req.Strategy),
		BuyThreshold:  req.BuyThreshold,
		SellThreshold: req.SellThreshold,
		ModelPath:     h.modelPath(req.Model),
		Horizon:       models.Horizon(req.Horizon),
	}
	if d, ok := util.ParseDate(req.From); ok {
		cfg.From = d
	}
	if d, ok := util.ParseDate(req.To); ok {
		cfg.To = d
	}
	if !cfg.From.IsZero() && !cfg.To.IsZero() && cfg.To.Before(cfg.From) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("to must not be before from").WithParam("field", "to"))
	}

	res, err := h.backtest.RunBacktest(c.Request().Context(), cfg)
	if err != nil {
		return h.fail(c, "backtest", err)
	}
	if !req.IncludeDays {
		for i := range res.Tickers {
			res.Tickers[i].Days = nil
		}
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) Train(c echo.Context) error {
	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.trainer.TrainModel(c.Request().Context(), usecase.TrainParams{
		Tickers:    req.Tickers,
		Period:     req.Period,
		OutputPath: h.modelPath(req.Model),
	})
	if err != nil {
		return h.fail(c, "train", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// modelPath places a validated model name in the model directory. Empty keeps the configured model.
func (h *MarketEchoHandler) modelPath(name string) string {
	if name == "" {
		return ""
	}
	return filepath.Join(h.modelDir, filepath.Base(name))
}

func (h *MarketEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" usecase error", xlogger.Error(err))
	} else {
		h.logger.Debug(op+" rejected", xlogger.String("code", appErr.Code), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// toAppError maps domain errors onto HTTP statuses.
func toAppError(err error) *xhttp.AppError {
	var (
		nf *models.NotFoundError
		ih *models.InsufficientHistoryError
		mm *models.ModelMismatchError
		du *models.DataUnavailableError
	)
	switch {
	case errors.As(err, &nf):
		return xhttp.NotFoundError(err.Error()).WithParam("query", nf.Query).WithError(err)
	case errors.As(err, &ih):
		return xhttp.UnprocessableError(err.Error()).
			WithParam("ticker", ih.Ticker).WithParam("need", ih.Need).WithParam("have", ih.Have).WithError(err)
	case errors.As(err, &mm):
		return xhttp.ConflictError(err.Error()).
			WithParam("pipeline", mm.Want.Version).WithParam("model", mm.Got.Version).WithError(err)
	case errors.As(err, &du):
		return xhttp.UnavailableError(err.Error()).WithParam("ticker", du.Ticker).WithError(err)
	case errors.Is(err, usecase.ErrUnknownUniverse):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrLookAhead):
		return xhttp.InternalError(err.Error()).WithError(err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return xhttp.UnavailableError("request timed out").WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
