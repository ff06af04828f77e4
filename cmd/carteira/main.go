package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"carteira/internal/backend"
	"carteira/internal/cli"
	apphttp "carteira/internal/http"
	"carteira/internal/identity"
	applog "carteira/internal/log"
	"carteira/internal/services"
)

// dashboardCacheEntries bounds each dashboard cache.
const dashboardCacheEntries = 1000

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	res, _, bcfg := cli.InitBackend(context.Background(), logger, cfg)
	store := res.Store

	provider := identity.NewProvider(store, cfg.SessionSecret, cfg.SessionTTL)
	provider.OnSessionChange(func(e identity.SessionEvent) {
		if e.Session != nil {
			logger.Debug("Session changed", "kind", e.Kind, applog.FieldUserID, e.Session.UserID)
		}
	})

	dashboard := services.NewDashboardService(store, cfg.CacheTTL, dashboardCacheEntries)
	categories := services.NewCategoryService(store, dashboard)
	processor := services.NewRecurringProcessor(store, res.Publisher, dashboard)

	deps := apphttp.Deps{
		Auth:         provider,
		Accounts:     services.NewAccountService(provider, store, dashboard),
		Categories:   categories,
		Transactions: services.NewTransactionService(store, res.Publisher, dashboard),
		Loans:        services.NewLoanService(store, dashboard),
		Bills:        services.NewRecurringBillService(store, categories, processor, dashboard),
		Processor:    processor,
		Dashboard:    dashboard,
		Ready:        store,
	}
	srv := apphttp.NewServer(":"+cfg.Port, deps, apphttp.Options{
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	// With the memory backend no other process can see the data, so the
	// server runs the recurring scheduler itself.
	var scheduler *services.Scheduler
	if bcfg.Type == backend.MemoryBackend {
		scheduler = services.NewScheduler(processor, provider, services.SchedulerConfig{
			Interval: cfg.RecurringProcessorInterval,
		})
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.LogError(ctx, "Server shutdown error", err, applog.ErrorTypeInternal)
		}
		if scheduler != nil {
			_ = scheduler.Stop(ctx)
		}
		if err := res.Cleanup(); err != nil {
			logger.LogError(ctx, "Backend cleanup error", err, applog.ErrorTypeDatabase)
		}
	})

	if scheduler != nil {
		if err := scheduler.Start(ctx); err != nil {
			logger.LogError(ctx, "Failed to start recurring scheduler", err, applog.ErrorTypeInternal)
			os.Exit(1)
		}
	}

	go func() {
		logger.Info("Starting carteira server",
			"port", cfg.Port,
			"backend", bcfg.Type,
			"export_enabled", res.Publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError(context.Background(), "Server error", err, applog.ErrorTypeNetwork, "port", cfg.Port)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
