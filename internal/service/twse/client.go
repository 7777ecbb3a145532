package twse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	drepo "TWSignal/internal/domain/repository"
	"TWSignal/internal/service/ratelimit"
	xhttp "TWSignal/pkg/http"
	"TWSignal/pkg/logger"
)

const source = "twse"

// Client talks to the TWSE open report endpoints and the ISIN listing pages.
// It implements FlowSource, FundamentalSource and ListingSource.
type Client struct {
	baseURL string
	isinURL string
	http    *xhttp.Client
	limiter *ratelimit.Limiter
	burst   float64
	perSec  float64
	log     *logger.Logger
	metrics drepo.Metrics
}

type Option func(*Client)

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

// New creates a client. baseURL is the www.twse.com.tw root and isinURL the C_public.jsp page.
func New(baseURL, isinURL string, hc *xhttp.Client, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		isinURL: isinURL,
		http:    hc,
		log:     logger.Nop(),
		metrics: drepo.NopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// report is the common envelope of the exchange JSON reports.
type report struct {
	Stat   string     `json:"stat"`
	Date   string     `json:"date"`
	Fields []string   `json:"fields"`
	Data   [][]cell   `json:"data"`
}

// cell accepts both quoted and bare JSON values; the reports mix them.
type cell string

func (c *cell) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = cell(s)
		return nil
	}
	if string(b) == "null" {
		*c = ""
		return nil
	}
	*c = cell(b)
	return nil
}

// find returns the first column whose header contains any of names.
func (r *report) find(names ...string) int {
	for _, name := range names {
		for i, f := range r.Fields {
			if strings.Contains(f, name) {
				return i
			}
		}
	}
	return -1
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx, source, c.burst, c.perSec)
}

// getReport fetches one daily report. A non-OK stat (holiday, not yet published) is ErrNoData.
func (c *Client) getReport(ctx context.Context, op, path string, day time.Time) (*report, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("response", "json")
	q.Set("date", day.Format("20060102"))
	q.Set("selectType", "ALL")

	start := time.Now()
	var r report
	err := c.http.GetJSON(ctx, c.baseURL+path, q, &r)
	c.metrics.RecordLatency("twse_"+op, time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordFetch(source, "error")
		return nil, fmt.Errorf("twse %s %s: %w", op, day.Format("2006-01-02"), err)
	}
	if r.Stat != "OK" || len(r.Data) == 0 {
		c.metrics.RecordFetch(source, "empty")
		c.log.Debug("twse report empty",
			logger.String("op", op),
			logger.Date("day", day),
			logger.String("stat", r.Stat))
		return nil, drepo.ErrNoData
	}
	c.metrics.RecordFetch(source, "ok")
	return &r, nil
}
