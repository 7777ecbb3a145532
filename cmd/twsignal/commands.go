package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"TWSignal/internal/domain/models"
	"TWSignal/internal/usecase"
	"TWSignal/pkg/util"
)

func (c *cli) resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve QUERY",
		Short: "Resolve a code, ticker or company name to a listed or OTC ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &models.ResolveRequest{Query: args[0]}
			if err := validate(cmd.Context(), req); err != nil {
				return err
			}
			t, err := c.svc.Data.ResolveTicker(cmd.Context(), req.Query)
			if err != nil {
				return err
			}
			name := c.svc.Data.NameFor(t)
			if c.json() {
				return printJSON(os.Stdout, map[string]string{"ticker": t.String(), "name": name})
			}
			fmt.Printf("%s\t%s\n", t, name)
			return nil
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	req := &models.HistoryRequest{}
	var tail int
	cmd := &cobra.Command{
		Use:   "history TICKER",
		Short: "Show cached daily bars, refreshing incrementally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Ticker = args[0]
			if err := validate(cmd.Context(), req); err != nil {
				return err
			}
			ctx := cmd.Context()
			t, err := c.svc.Data.ResolveTicker(ctx, req.Ticker)
			if err != nil {
				return err
			}
			res, err := c.svc.Data.GetHistory(ctx, t, req.Period)
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(os.Stdout, res)
			}
			bars := res.Series.Bars
			if tail > 0 && len(bars) > tail {
				bars = bars[len(bars)-tail:]
			}
			tbl := newTable(os.Stdout, "Date", "Open", "High", "Low", "Close", "Volume")
			for _, b := range bars {
				_ = tbl.Append([]string{day(b.Date),
					fmt.Sprintf("%.2f", b.Open), fmt.Sprintf("%.2f", b.High),
					fmt.Sprintf("%.2f", b.Low), fmt.Sprintf("%.2f", b.Close),
					fmt.Sprintf("%.0f", b.Volume)})
			}
			_ = tbl.Render()
			fmt.Printf("%s: %d bars from %s\n", t, res.Series.Len(), res.Source)
			if res.Warning != "" {
				fmt.Fprintln(os.Stderr, "warning:", res.Warning)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Period, "period", "6mo", "1mo, 3mo, 6mo, 1y, 2y, 5y or max")
	cmd.Flags().IntVar(&tail, "tail", 10, "rows to print in table format (0 for all)")
	return cmd
}

func (c *cli) diagnoseCmd() *cobra.Command {
	req := &models.DiagnoseRequest{}
	cmd := &cobra.Command{
		Use:   "diagnose TICKER",
		Short: "Score one ticker with its indicators, fundamentals and flows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Ticker = args[0]
			if err := validate(cmd.Context(), req); err != nil {
				return err
			}
			rec, err := c.svc.Analysis.Diagnose(cmd.Context(), req.Ticker, models.Horizon(req.Horizon), req.Period)
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(os.Stdout, rec)
			}
			printRecommendations(os.Stdout, []*models.Recommendation{rec})
			fmt.Printf("\nComponents: technical %s  fundamental %s  model %s\n",
				num(rec.Components.Technical, "%.3f"), num(rec.Components.Fundamental, "%.3f"), num(rec.Components.Model, "%.3f"))
			fmt.Printf("Direction %s  confidence %.2f  model used %v\n", rec.Direction, rec.Confidence, rec.ModelUsed)
			if ind := rec.Indicators; ind != nil {
				windows := make([]int, 0, len(ind.MA))
				for w := range ind.MA {
					windows = append(windows, w)
				}
				sort.Ints(windows)
				var mas []string
				for _, w := range windows {
					mas = append(mas, fmt.Sprintf("MA%d %.2f", w, ind.MA[w]))
				}
				fmt.Printf("%s  RSI %.1f  MACD %.3f/%.3f  K %.1f  D %.1f\n", strings.Join(mas, "  "), ind.RSI, ind.MACD, ind.MACDSignal, ind.K, ind.D)
				for _, s := range ind.Signals {
					fmt.Println("  -", s)
				}
			}
			for _, w := range rec.Warnings {
				fmt.Fprintln(os.Stderr, "warning:", w)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Horizon, "horizon", "short", "short or long")
	cmd.Flags().StringVar(&req.Period, "period", "6mo", "history window: 3mo, 6mo, 1y, 2y or 5y")
	return cmd
}

func (c *cli) scanCmd() *cobra.Command {
	req := &models.ScanRequest{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Rank every ticker of a universe; broken tickers are skipped with a reason",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validate(cmd.Context(), req); err != nil {
				return err
			}
			p := &progress{desc: "Scanning " + req.Universe}
			res, err := c.svc.Analysis.DailyScan(cmd.Context(), usecase.ScanParams{
				Universe: req.Universe,
				Horizon:  models.Horizon(req.Horizon),
				TopN:     req.Top,
				Refresh:  req.Refresh,
				Progress: p.update,
			})
			p.finish()
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(os.Stdout, res)
			}
			fmt.Printf("Scan %s (%s) at %s: %d ranked\n\n", res.Universe, res.Horizon, res.GeneratedAt.In(util.Taipei).Format("2006-01-02 15:04"), len(res.Ranked))
			printRecommendations(os.Stdout, res.Ranked)
			if len(res.TopPicks) > 0 {
				fmt.Println("\nTop picks:")
				printRecommendations(os.Stdout, res.TopPicks)
			}
			if len(res.Warnings) > 0 {
				fmt.Println("\nWarnings:")
				printRecommendations(os.Stdout, res.Warnings)
			}
			for _, n := range res.Notes {
				fmt.Fprintln(os.Stderr, "note:", n)
			}
			printSkipped(os.Stdout, res.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Universe, "universe", "all", "configured universe name or \"listed\"")
	cmd.Flags().StringVar(&req.Horizon, "horizon", "short", "short or long")
	cmd.Flags().IntVar(&req.Top, "top", 5, "number of top picks")
	cmd.Flags().BoolVar(&req.Refresh, "refresh", false, "ignore the cached scan result")
	return cmd
}

func (c *cli) backtestCmd() *cobra.Command {
	req := &models.BacktestRequest{}
	var modelPath string
	cmd := &cobra.Command{
		Use:   "backtest TICKER...",
		Short: "Replay daily signals without look-ahead and report hit rate, returns and drawdown",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Tickers = args
			if err := validate(cmd.Context(), req); err != nil {
				return err
			}
			cfg := usecase.BacktestConfig{
				Tickers:       req.Tickers,
				Period:        req.Period,
				Strategy:      models.Strategy(req.Strategy),
				BuyThreshold:  req.BuyThreshold,
				SellThreshold: req.SellThreshold,
				ModelPath:     modelPath,
				Horizon:       models.Horizon(req.Horizon),
			}
			cfg.From = util.ParseDateDefault(req.From, time.Time{})
			cfg.To = util.ParseDateDefault(req.To, time.Time{})

			res, err := c.svc.Backtest.RunBacktest(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if c.json() {
				if !req.IncludeDays {
					for i := range res.Tickers {
						res.Tickers[i].Days = nil
					}
				}
				return printJSON(os.Stdout, res)
			}
			printBacktest(os.Stdout, res)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Period, "period", "1y", "replay window: 1mo, 3mo, 6mo, 1y, 2y, 5y or max")
	f.StringVar(&req.From, "from", "", "replay start date (YYYY-MM-DD), overrides --period")
	f.StringVar(&req.To, "to", "", "replay end date (YYYY-MM-DD)")
	f.StringVar(&req.Strategy, "strategy", "model", "model or rules")
	f.Float64Var(&req.BuyThreshold, "buy", 0.6, "enter when the probability exceeds this")
	f.Float64Var(&req.SellThreshold, "sell", 0.4, "exit when the probability falls below this")
	f.StringVar(&modelPath, "model", "", "model artifact (default from config)")
	f.StringVar(&req.Horizon, "horizon", "short", "rules weighting: short or long")
	f.BoolVar(&req.IncludeDays, "days", false, "include the per-day log in JSON output")
	return cmd
}

func (c *cli) trainCmd() *cobra.Command {
	req := &models.TrainRequest{}
	var universe, outputPath string
	cmd := &cobra.Command{
		Use:   "train [TICKER...]",
		Short: "Train the random forest with a time-ordered split and save the artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Tickers = args
			if len(args) == 0 && universe != "" {
				req.Tickers = c.svc.Config.Analysis.Universes[universe]
				if len(req.Tickers) == 0 {
					return fmt.Errorf("%w: %s", usecase.ErrUnknownUniverse, universe)
				}
			}
			if err := validate(cmd.Context(), req); err != nil {
				return err
			}
			res, err := c.svc.Trainer.TrainModel(cmd.Context(), usecase.TrainParams{
				Tickers:    req.Tickers,
				Period:     req.Period,
				OutputPath: outputPath,
			})
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(os.Stdout, res)
			}
			if res.Error != "" {
				fmt.Printf("No model trained: %s (%d rows)\n", res.Error, res.Rows)
				printSkipped(os.Stdout, res.Skipped)
				return nil
			}
			fmt.Printf("Saved %s: %d rows (train %d, test %d), test from %s\n\n",
				res.ModelPath, res.Rows, res.TrainRows, res.TestRows, day(res.Cutoff))
			names := make([]string, 0, len(res.Metrics))
			for k := range res.Metrics {
				names = append(names, k)
			}
			sort.Strings(names)
			tbl := newTable(os.Stdout, "Metric", "Value")
			for _, k := range names {
				_ = tbl.Append([]string{k, fmt.Sprintf("%.4f", res.Metrics[k])})
			}
			_ = tbl.Render()
			printSkipped(os.Stdout, res.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Period, "period", "2y", "training window: 1y, 2y, 5y or max")
	cmd.Flags().StringVar(&outputPath, "output", "", "artifact path (default from config)")
	cmd.Flags().StringVar(&universe, "universe", "", "train on a configured universe when no tickers are given")
	return cmd
}

func (c *cli) syncCmd() *cobra.Command {
	var opts usecase.SyncOptions
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Bulk-download OHLCV for every active ticker of the universe file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := &progress{desc: "Syncing"}
			opts.Progress = p.update
			rep, err := c.svc.Data.SyncUniverse(cmd.Context(), opts)
			p.finish()
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(os.Stdout, rep)
			}
			fmt.Printf("Synced %d, failed %d, already current %d\n", rep.Success, rep.Failed, rep.Skipped)
			printSkipped(os.Stdout, rep.Errors)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.MaxTickers, "max", 0, "stop after this many tickers (0 for all)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "refetch tickers whose cache is current")
	return cmd
}

func (c *cli) universeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "universe",
		Short: "Manage scan universes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Download the TWSE/TPEx listing and rewrite the universe and name files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := c.svc.Data.RefreshUniverse(cmd.Context())
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(os.Stdout, map[string]int{"entries": n})
			}
			fmt.Printf("Universe refreshed: %d entries\n", n)
			return nil
		},
	}, &cobra.Command{
		Use:   "list",
		Short: "List configured universe names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names := c.svc.Analysis.Universes()
			if c.json() {
				return printJSON(os.Stdout, names)
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	})
	return cmd
}

func (c *cli) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local data cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete cached OHLCV and flow files and resolution memos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := c.svc.Data.ClearCache(cmd.Context())
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(os.Stdout, rep)
			}
			fmt.Printf("Removed %d OHLCV files and %d flow files\n", rep.OHLCV, rep.Flows)
			return nil
		},
	})
	return cmd
}
