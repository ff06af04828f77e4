package main

import (
	"context"
	"errors"
	"os"
	"time"

	"carteira/internal/amqp"
	"carteira/internal/cli"
	applog "carteira/internal/log"
	"carteira/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting export-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the export worker")
		os.Exit(1)
	}

	res, factory, bcfg := cli.InitBackend(context.Background(), logger, cfg)
	client, ok := res.Publisher.(*amqp.Client)
	if !ok {
		logger.Error("Message broker unreachable", "url_set", cfg.AMQPURL != "")
		_ = res.Cleanup()
		os.Exit(1)
	}

	exporter, err := factory.CreateExporter(context.Background(), bcfg)
	if err != nil {
		logger.LogError(context.Background(), "Failed to initialize exporter", err, applog.ErrorTypeConfiguration)
		_ = res.Cleanup()
		os.Exit(1)
	}
	if cfg.GoogleSpreadsheetID == "" {
		logger.Warn("GOOGLE_SPREADSHEET_ID not set: exports are kept in memory only")
	}

	exportWorker := worker.NewExportWorker(res.Store, exporter, cfg.ExportBatchSize)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := res.Cleanup(); err != nil {
			logger.LogError(ctx, "Backend cleanup error", err, applog.ErrorTypeDatabase)
		}
	})

	go func() {
		err := client.ConsumeTransactionExports(ctx, exportWorker.HandleExportMessage)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.LogError(ctx, "Message consumption failed", err, applog.ErrorTypeNetwork)
			os.Exit(1)
		}
	}()

	logger.Info("Export worker consuming",
		"queue", cfg.AMQPQueue,
		"batch_size", cfg.ExportBatchSize,
		"backend", bcfg.Type)
	cli.WaitForShutdown(ctx, done)
}
