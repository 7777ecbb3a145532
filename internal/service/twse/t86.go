package twse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TWSignal/internal/domain/models"
	"TWSignal/pkg/util"
)

const t86Path = "/rwd/zh/fund/T86"

// T86 header fragments. Column positions have shifted between report
// generations, so rows are read by header.
var (
	t86Code    = []string{"證券代號"}
	t86Foreign = []string{"外陸資買賣超股數(不含外資自營商)", "外陸資買賣超股數", "外資買賣超股數"}
	t86Trust   = []string{"投信買賣超股數"}
	t86Dealer  = []string{"自營商買賣超股數"}
)

// DailyFlows returns the institutional net flows of every listed security on day.
func (c *Client) DailyFlows(ctx context.Context, day time.Time) (map[string]models.FlowRecord, error) {
	r, err := c.getReport(ctx, "t86", t86Path, day)
	if err != nil {
		return nil, err
	}
	return parseT86(r, day)
}

func parseT86(r *report, day time.Time) (map[string]models.FlowRecord, error) {
	code := r.find(t86Code...)
	foreign := r.find(t86Foreign...)
	trust := r.find(t86Trust...)
	dealer := dealerColumn(r)
	if code < 0 || foreign < 0 || trust < 0 || dealer < 0 {
		return nil, fmt.Errorf("t86: unexpected header %v", r.Fields)
	}

	out := make(map[string]models.FlowRecord, len(r.Data))
	for _, row := range r.Data {
		if len(row) <= max(code, foreign, trust, dealer) {
			continue
		}
		f, _ := util.ParseNumber(string(row[foreign]))
		t, _ := util.ParseNumber(string(row[trust]))
		d, _ := util.ParseNumber(string(row[dealer]))
		out[strings.TrimSpace(string(row[code]))] = models.FlowRecord{Date: day, Foreign: f, Trust: t, Dealer: d}
	}
	return out, nil
}

// dealerColumn picks the dealer total, skipping the foreign-dealer and the
// proprietary/hedging sub-columns that share the fragment.
func dealerColumn(r *report) int {
	for i, f := range r.Fields {
		if f == "自營商買賣超股數" {
			return i
		}
	}
	for i, f := range r.Fields {
		if strings.HasPrefix(f, t86Dealer[0]) {
			return i
		}
	}
	return -1
}
