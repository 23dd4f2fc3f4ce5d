package main

import (
	"time"

	"matador/internal/backend"
	"matador/internal/cli"
	"matador/internal/log"
	"matador/internal/services"
)

func main() {
	cfg, logger := cli.LoadConfig(log.ComponentWorker)
	logger.Info("Starting recurring-worker", "interval", cfg.RecurringInterval)

	ctx, stop := cli.SignalContext(logger)
	defer stop()
	ctx = log.NewContext(ctx, logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	be, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	var opts []services.Option
	if be.Publisher != nil {
		opts = append(opts, services.WithPublisher(be.Publisher))
	}
	processor := services.NewRecurringProcessor(be.Store, services.NewTransactionService(be.Store, opts...))

	ticker := time.NewTicker(cfg.RecurringInterval)
	defer ticker.Stop()

	for {
		count, err := processor.ProcessMonth(ctx, time.Now())
		if err != nil {
			logger.Error("Recurring processing failed", log.FieldError, err)
		} else {
			logger.Info("Recurring processing complete",
				"transactions_created", count,
				"next_check", time.Now().Add(cfg.RecurringInterval).Format("15:04:05"))
		}

		select {
		case <-ctx.Done():
			logger.Info("Recurring-worker shutdown complete")
			return
		case <-ticker.C:
		}
	}
}
