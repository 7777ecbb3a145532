package twse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"

	"TWSignal/internal/domain/models"
	"TWSignal/pkg/logger"
)

// ISIN listing modes.
const (
	modeListed = "2"
	modeOTC    = "4"
)

// Listing scrapes the listed and OTC ISIN pages. Only common stocks and ETFs are kept.
func (c *Client) Listing(ctx context.Context) ([]models.UniverseEntry, error) {
	var out []models.UniverseEntry
	seen := make(map[string]struct{})
	for _, m := range []struct {
		mode   string
		market models.Market
	}{{modeListed, models.MarketListed}, {modeOTC, models.MarketOTC}} {
		entries, err := c.listing(ctx, m.mode, m.market)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if _, dup := seen[e.Ticker]; dup {
				continue
			}
			seen[e.Ticker] = struct{}{}
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *Client) listing(ctx context.Context, mode string, market models.Market) ([]models.UniverseEntry, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	body, err := c.http.GetBytes(ctx, c.isinURL, url.Values{"strMode": {mode}})
	c.metrics.RecordLatency("twse_isin", time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordFetch(source, "error")
		return nil, fmt.Errorf("isin listing mode %s: %w", mode, err)
	}
	entries, err := parseISIN(bytes.NewReader(body), market)
	if err != nil {
		c.metrics.RecordFetch(source, "error")
		return nil, fmt.Errorf("isin listing mode %s: %w", mode, err)
	}
	c.metrics.RecordFetch(source, "ok")
	c.log.Info("isin listing parsed",
		logger.String("market", string(market)),
		logger.Int("entries", len(entries)))
	return entries, nil
}

// parseISIN reads the Big5 listing table. Single-cell rows are section headings
// (股票, ETF, 權證...); data rows start with "code　name".
func parseISIN(r io.Reader, market models.Market) ([]models.UniverseEntry, error) {
	doc, err := goquery.NewDocumentFromReader(transform.NewReader(r, traditionalchinese.Big5.NewDecoder()))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var (
		out     []models.UniverseEntry
		section string
	)
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 1 {
			section = strings.TrimSpace(cells.Text())
			return
		}
		if cells.Length() < 5 || !keepSection(section) {
			return
		}
		parts := strings.Fields(cells.Eq(0).Text())
		if len(parts) < 2 || !models.IsCode(parts[0]) {
			return
		}
		code := parts[0]
		out = append(out, models.UniverseEntry{
			Code:     code,
			Name:     strings.Join(parts[1:], " "),
			Ticker:   code + "." + string(market),
			Market:   string(market),
			Industry: strings.TrimSpace(cells.Eq(4).Text()),
			IsETF:    strings.Contains(section, "ETF") || strings.HasPrefix(code, "00"),
			IsActive: true,
		})
	})
	if len(out) == 0 {
		return nil, fmt.Errorf("no securities found")
	}
	return out, nil
}

func keepSection(s string) bool {
	return s == "" || s == "股票" || strings.Contains(s, "ETF")
}
