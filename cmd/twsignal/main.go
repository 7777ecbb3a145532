package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"TWSignal/internal/di"
	"TWSignal/pkg/config"
	xhttp "TWSignal/pkg/http"
)

type cli struct {
	cfgPath string
	format  string
	verbose bool

	svc     *di.Services
	cleanup func()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	c := &cli{}
	err := c.rootCmd().ExecuteContext(ctx)
	c.close()
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "twsignal",
		Short: "Taiwan stock and ETF signals: data cache, scoring, scans and backtests",
		Long: `twsignal fetches daily OHLCV for TWSE and TPEx tickers, scores them with
technical, fundamental and model components, and replays signals without look-ahead.

Examples:
  twsignal diagnose 2330 --horizon long
  twsignal scan --universe semi --top 3
  twsignal backtest 2330 2317 --strategy rules --period 2y
  twsignal train 2330 2317 2454 --period 5y`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	root.PersistentFlags().StringVar(&c.cfgPath, "config", "config/config.yaml", "config file path")
	root.PersistentFlags().StringVar(&c.format, "format", "table", "output format: table, json")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		c.resolveCmd(),
		c.historyCmd(),
		c.diagnoseCmd(),
		c.scanCmd(),
		c.backtestCmd(),
		c.trainCmd(),
		c.syncCmd(),
		c.universeCmd(),
		c.cacheCmd(),
	)
	return root
}

// setup loads config and wires the services. A missing default config file falls back to built-in defaults.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if c.format != "table" && c.format != "json" {
		return fmt.Errorf("--format must be table or json, got %q", c.format)
	}
	cfg, err := config.LoadWithEnv(c.cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || cmd.Flags().Changed("config") {
			return err
		}
		cfg = config.Default()
	}
	// stdout carries command output
	if cfg.Log.Output == "" || cfg.Log.Output == "stdout" {
		cfg.Log.Output = "stderr"
	}
	if c.verbose {
		cfg.Log.Level = "debug"
	} else if cfg.Log.Level == "info" || cfg.Log.Level == "debug" {
		cfg.Log.Level = "warn"
	}

	svc, cleanup, err := di.InitializeServices(cfg)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	c.svc, c.cleanup = svc, cleanup
	return nil
}

func (c *cli) close() {
	if c.cleanup != nil {
		c.cleanup()
	}
}

func (c *cli) json() bool { return c.format == "json" }

// validate applies request defaults and the API's validation rules to CLI input.
func validate(ctx context.Context, req interface{}) error {
	errs := xhttp.ValidateStruct(ctx, req)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Message
	}
	return fmt.Errorf("invalid arguments: %s", strings.Join(msgs, "; "))
}
