package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"TWSignal/internal/domain/models"
	drepo "TWSignal/internal/domain/repository"
	"TWSignal/internal/service/ratelimit"
	xhttp "TWSignal/pkg/http"
	"TWSignal/pkg/logger"
	"TWSignal/pkg/util"
)

const source = "yahoo"

// Client implements QuoteSource over the Yahoo v8 chart endpoint.
type Client struct {
	baseURL string
	http    *xhttp.Client
	limiter *ratelimit.Limiter
	burst   float64
	perSec  float64
	log     *logger.Logger
	metrics drepo.Metrics
	now     func() time.Time
}

type Option func(*Client)

// WithRateLimit throttles requests through a shared limiter.
func WithRateLimit(l *ratelimit.Limiter, burst, perSec float64) Option {
	return func(c *Client) {
		c.limiter = l
		c.burst = burst
		c.perSec = perSec
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

func WithMetrics(m drepo.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a chart client. baseURL is the chart root without the symbol.
func New(baseURL string, hc *xhttp.Client, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    hc,
		log:     logger.Nop(),
		metrics: drepo.NopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol   string `json:"symbol"`
		Currency string `json:"currency"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// History returns daily bars with from <= date <= to. A zero from asks for the full range.
func (c *Client) History(ctx context.Context, t models.Ticker, from, to time.Time) ([]models.Bar, error) {
	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("events", "div,splits")
	if from.IsZero() {
		q.Set("range", "max")
	} else {
		end := to
		if end.IsZero() {
			end = c.now()
		}
		// period2 is exclusive; pad a day so the last session is included.
		q.Set("period1", strconv.FormatInt(from.Unix(), 10))
		q.Set("period2", strconv.FormatInt(end.Add(24*time.Hour).Unix(), 10))
	}

	bars, err := c.fetch(ctx, t, q)
	if err != nil {
		return nil, err
	}

	out := bars[:0]
	for _, b := range bars {
		if !from.IsZero() && b.Date.Before(util.Day(from)) {
			continue
		}
		if !to.IsZero() && b.Date.After(util.Day(to)) {
			continue
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, drepo.ErrNoData
	}
	return out, nil
}

// Probe asks for the last five sessions of t.
func (c *Client) Probe(ctx context.Context, t models.Ticker) (bool, error) {
	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("range", "5d")
	bars, err := c.fetch(ctx, t, q)
	if errors.Is(err, drepo.ErrNoData) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(bars) > 0, nil
}

func (c *Client) fetch(ctx context.Context, t models.Ticker, q url.Values) ([]models.Bar, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, source, c.burst, c.perSec); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	var resp chartResponse
	err := c.http.GetJSON(ctx, c.baseURL+"/"+url.PathEscape(t.String()), q, &resp)
	c.metrics.RecordLatency("yahoo_chart", time.Since(start).Seconds())
	if err != nil {
		// Unknown symbols answer 404 with a chart.error body.
		if xhttp.IsStatus(err, http.StatusNotFound) {
			c.metrics.RecordFetch(source, "empty")
			return nil, drepo.ErrNoData
		}
		c.metrics.RecordFetch(source, "error")
		return nil, fmt.Errorf("yahoo chart %s: %w", t, err)
	}
	if e := resp.Chart.Error; e != nil {
		if e.Code == "Not Found" {
			c.metrics.RecordFetch(source, "empty")
			return nil, drepo.ErrNoData
		}
		c.metrics.RecordFetch(source, "error")
		return nil, fmt.Errorf("yahoo chart %s: %s: %s", t, e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 {
		c.metrics.RecordFetch(source, "empty")
		return nil, drepo.ErrNoData
	}

	bars := parseResult(&resp.Chart.Result[0])
	if len(bars) == 0 {
		c.metrics.RecordFetch(source, "empty")
		return nil, drepo.ErrNoData
	}
	c.metrics.RecordFetch(source, "ok")
	c.log.Debug("yahoo chart fetched",
		logger.String("ticker", t.String()),
		logger.Int("bars", len(bars)),
		logger.Duration("took", time.Since(start)))
	return bars, nil
}

// parseResult converts the column arrays to bars. Rows with a missing price are
// dropped; a missing volume is zero. Duplicate days keep the last row.
func parseResult(r *chartResult) []models.Bar {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	q := r.Indicators.Quote[0]
	at := func(col []*float64, i int) (float64, bool) {
		if i >= len(col) || col[i] == nil {
			return 0, false
		}
		return *col[i], true
	}

	bars := make([]models.Bar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		o, ok1 := at(q.Open, i)
		h, ok2 := at(q.High, i)
		l, ok3 := at(q.Low, i)
		cl, ok4 := at(q.Close, i)
		if !(ok1 && ok2 && ok3 && ok4) || cl <= 0 {
			continue
		}
		v, _ := at(q.Volume, i)
		b := models.Bar{Date: util.Day(time.Unix(ts, 0)), Open: o, High: h, Low: l, Close: cl, Volume: v}
		if n := len(bars); n > 0 && bars[n-1].Date.Equal(b.Date) {
			bars[n-1] = b
			continue
		}
		bars = append(bars, b)
	}
	models.SortBars(bars)
	return bars
}
