package twse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TWSignal/internal/domain/models"
	"TWSignal/pkg/util"
)

const bwibbuPath = "/exchangeReport/BWIBBU_d"

// DailyFundamentals returns PE, dividend yield and PB of every listed security on day.
func (c *Client) DailyFundamentals(ctx context.Context, day time.Time) (map[string]models.Fundamentals, error) {
	r, err := c.getReport(ctx, "bwibbu", bwibbuPath, day)
	if err != nil {
		return nil, err
	}
	return parseBWIBBU(r, day)
}

func parseBWIBBU(r *report, day time.Time) (map[string]models.Fundamentals, error) {
	code := r.find("證券代號")
	name := r.find("證券名稱")
	yield := r.find("殖利率")
	pe := r.find("本益比")
	pb := r.find("股價淨值比")
	period := r.find("財報年/季")
	if code < 0 || pe < 0 || pb < 0 || yield < 0 {
		return nil, fmt.Errorf("bwibbu: unexpected header %v", r.Fields)
	}

	at := func(row []cell, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(string(row[i]))
	}

	out := make(map[string]models.Fundamentals, len(r.Data))
	for _, row := range r.Data {
		c := at(row, code)
		if c == "" {
			continue
		}
		f := models.Fundamentals{
			Ticker:       c + "." + string(models.MarketListed),
			Name:         at(row, name),
			FiscalPeriod: at(row, period),
			AsOf:         day,
		}
		// Placeholders ("-") stay zero, which means not reported.
		f.PE, _ = util.ParseNumber(at(row, pe))
		f.PB, _ = util.ParseNumber(at(row, pb))
		f.DividendYield, _ = util.ParseNumber(at(row, yield))
		out[c] = f
	}
	return out, nil
}
