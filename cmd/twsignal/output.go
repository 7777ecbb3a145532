package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"

	"TWSignal/internal/domain/models"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	return tablewriter.NewTable(w, tablewriter.WithHeader(header))
}

func pct(v float64) string { return fmt.Sprintf("%+.2f%%", v*100) }

func num(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func day(t interface{ Format(string) string }) string { return t.Format("2006-01-02") }

// progress draws a bar on stderr sized by the first callback.
type progress struct {
	desc string
	bar  *progressbar.ProgressBar
}

func (p *progress) update(done, total int, _ string) {
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription(p.desc),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]█[reset]",
				SaucerHead:    "[green]█[reset]",
				SaucerPadding: "░",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	_ = p.bar.Set(done)
}

func (p *progress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func printSkipped(w io.Writer, skipped []models.Skip) {
	if len(skipped) == 0 {
		return
	}
	fmt.Fprintf(w, "\nSkipped %d:\n", len(skipped))
	t := newTable(w, "Ticker", "Kind", "Reason")
	for _, s := range skipped {
		reason := s.Reason
		if len(reason) > 80 {
			reason = reason[:80] + "..."
		}
		_ = t.Append([]string{s.Ticker, s.Kind, reason})
	}
	_ = t.Render()
}

func printRecommendations(w io.Writer, recs []*models.Recommendation) {
	t := newTable(w, "Ticker", "Name", "Label", "Score", "P(up)", "Close", "1D", "5D", "Vol20D")
	for _, r := range recs {
		_ = t.Append([]string{
			r.Ticker,
			r.Name,
			string(r.Label),
			fmt.Sprintf("%.3f", r.Score),
			fmt.Sprintf("%.2f", r.ProbUp),
			fmt.Sprintf("%.2f", r.LastClose),
			num(r.KeyMetrics.Return1D, "%+.2f%%"),
			num(r.KeyMetrics.Return5D, "%+.2f%%"),
			num(r.KeyMetrics.Volatility20D, "%.2f%%"),
		})
	}
	_ = t.Render()
}

func printBacktest(w io.Writer, res *models.BacktestResult) {
	fmt.Fprintf(w, "Run %s  strategy=%s  buy>%.2f  sell<%.2f\n\n", res.RunID, res.Strategy, res.BuyThreshold, res.SellThreshold)
	t := newTable(w, "Ticker", "From", "To", "Signal days", "Hit rate", "Avg ret", "Total", "Max DD", "Trades", "Win rate")
	row := func(name, from, to string, s models.BacktestSummary) {
		_ = t.Append([]string{
			name, from, to,
			fmt.Sprintf("%d", s.SignalDays),
			fmt.Sprintf("%.1f%%", s.HitRate*100),
			pct(s.AvgReturn),
			pct(s.TotalReturn),
			fmt.Sprintf("%.2f%%", s.MaxDrawdown*100),
			fmt.Sprintf("%d", s.NumTrades),
			fmt.Sprintf("%.1f%%", s.WinRate*100),
		})
	}
	for _, tb := range res.Tickers {
		row(tb.Ticker, day(tb.From), day(tb.To), tb.Summary)
	}
	if len(res.Tickers) > 1 {
		row("ALL", "", "", res.Summary)
	}
	_ = t.Render()

	d := res.Summary.Distribution
	fmt.Fprintf(w, "\nSignal-day returns: p10 %s  p50 %s  p90 %s  min %s  max %s  sd %.4f\n",
		pct(d.P10), pct(d.P50), pct(d.P90), pct(d.Min), pct(d.Max), d.Stddev)
	printSkipped(w, res.Skipped)
}
