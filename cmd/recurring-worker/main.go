package main

import (
	"context"
	"os"
	"time"

	"carteira/internal/backend"
	"carteira/internal/cli"
	"carteira/internal/identity"
	applog "carteira/internal/log"
	"carteira/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentScheduler)
	logger.Info("Starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	res, _, bcfg := cli.InitBackend(context.Background(), logger, cfg)
	if bcfg.Type == backend.MemoryBackend {
		logger.Warn("Memory backend selected: this worker only sees its own empty store")
	}

	// Published charges reach the export worker; the server's dashboard
	// cache expires on its own TTL.
	processor := services.NewRecurringProcessor(res.Store, res.Publisher, nil)
	provider := identity.NewProvider(res.Store, cfg.SessionSecret, cfg.SessionTTL)
	scheduler := services.NewScheduler(processor, provider, services.SchedulerConfig{
		Interval: cfg.RecurringProcessorInterval,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		logger.Info("Shutting down recurring-worker")
		if err := scheduler.Stop(ctx); err != nil {
			logger.LogError(ctx, "Scheduler stop error", err, applog.ErrorTypeInternal)
		}
		if err := res.Cleanup(); err != nil {
			logger.LogError(ctx, "Backend cleanup error", err, applog.ErrorTypeDatabase)
		}
	})

	if err := scheduler.Start(ctx); err != nil {
		logger.LogError(ctx, "Failed to start scheduler", err, applog.ErrorTypeInternal)
		os.Exit(1)
	}
	logger.Info("Recurring processor configured",
		"interval", cfg.RecurringProcessorInterval,
		"backend", bcfg.Type,
		"export_enabled", res.Publisher != nil)

	cli.WaitForShutdown(ctx, done)
}
