package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TWSignal/internal/domain/models"
	"TWSignal/internal/usecase"
	"TWSignal/pkg/cache"
	"TWSignal/pkg/config"
	xhttp "TWSignal/pkg/http"
	applogger "TWSignal/pkg/logger"
	"TWSignal/pkg/util"

	"github.com/robfig/cron/v3"
)

// Scanner runs the daily scan for the scheduler.
type Scanner interface {
	DailyScan(ctx context.Context, p usecase.ScanParams) (*models.ScanResult, error)
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	handler    xhttp.Handler
	scanner    Scanner
	locker     cache.Service
	httpServer *xhttp.Server
	cron       *cron.Cron
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, handler xhttp.Handler, scanner Scanner, locker cache.Service) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{cfg: cfg, log: log, handler: handler, scanner: scanner, locker: locker}
}

// Run starts the HTTP server and the scan schedule, and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.httpServer = xhttp.NewServer(a.handler, a.log,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(a.cfg.Metrics.Path),
		xhttp.WithCORSOrigins(a.cfg.Server.CORSOrigins...),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	if a.cfg.Scan.Schedule != "" {
		if err := a.schedule(ctx, a.cfg.Scan.Schedule); err != nil {
			_ = a.httpServer.Stop(context.Background())
			return err
		}
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) schedule(ctx context.Context, spec string) error {
	a.cron = cron.New(
		cron.WithLocation(util.Taipei),
		cron.WithChain(cron.Recover(cronLogger{a.log})),
	)
	if _, err := a.cron.AddFunc(spec, func() { a.scheduledScan(ctx) }); err != nil {
		return fmt.Errorf("scan schedule %q: %w", spec, err)
	}
	a.cron.Start()
	a.log.Info("scan scheduled", applogger.String("spec", spec), applogger.String("universe", a.cfg.Scan.Universe))
	return nil
}

// scheduledScan refreshes the configured universe. With a shared Redis cache only one
// replica runs each tick.
func (a *App) scheduledScan(ctx context.Context) {
	lockKey := cache.GenerateKeyWithParams("lock", "scan", a.cfg.Scan.Universe)
	ok, err := a.locker.TryLock(ctx, lockKey, 30*time.Minute)
	if err != nil {
		a.log.Warn("scan lock error", applogger.Error(err))
		return
	}
	if !ok {
		a.log.Info("scan already running elsewhere", applogger.String("universe", a.cfg.Scan.Universe))
		return
	}
	defer func() { _ = a.locker.Unlock(context.Background(), lockKey) }()

	start := time.Now()
	res, err := a.scanner.DailyScan(ctx, usecase.ScanParams{
		Universe: a.cfg.Scan.Universe,
		Horizon:  models.HorizonShort,
		TopN:     a.cfg.Scan.TopN,
		Refresh:  true,
	})
	if err != nil {
		a.log.Error("scheduled scan failed", applogger.Error(err))
		return
	}
	a.log.Info("scheduled scan done",
		applogger.String("universe", res.Universe),
		applogger.Int("ranked", len(res.Ranked)),
		applogger.Int("skipped", len(res.Skipped)),
		applogger.Duration("took", time.Since(start)),
	)
}

// shutdown gracefully stops all services. Infrastructure clients are closed by the DI cleanup.
func (a *App) shutdown() error {
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	if err := a.httpServer.Stop(context.Background()); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		return err
	}
	a.log.Info("shutdown complete")
	return nil
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct{ l *applogger.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, applogger.Any("kv", keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, applogger.Error(err), applogger.Any("kv", keysAndValues))
}
