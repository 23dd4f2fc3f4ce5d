package main

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"matador/internal/amqp"
	"matador/internal/cli"
	"matador/internal/core"
	"matador/internal/log"
	gsheet "matador/internal/sheets/google"
	"matador/internal/storage"
	"matador/internal/worker"
)

// resyncInterval bounds how long a row can stay stale after a lost event.
const resyncInterval = 6 * time.Hour

func main() {
	cfg, logger := cli.LoadConfig(log.ComponentWorker)
	if err := cfg.ValidateSheets(); err != nil {
		cli.Fatal(logger, "Sheets configuration invalid", err)
	}
	logger.Info("Starting matador-worker")

	ctx, stop := cli.SignalContext(logger)
	defer stop()
	ctx = log.NewContext(ctx, logger)

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize SQLite repository", err)
	}
	defer repo.Close()

	exporter, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
	}
	logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(repo, exporter, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeTransactionEvents(gctx, syncWorker.HandleTransactionEvent)
	})
	g.Go(func() error {
		ticker := time.NewTicker(resyncInterval)
		defer ticker.Stop()
		for {
			resyncActiveUsers(gctx, repo, syncWorker, logger)
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		cli.Fatal(logger, "Worker stopped", err)
	}
	logger.Info("Worker shutdown complete")
}

// resyncActiveUsers re-exports the current month of the top users. The
// leaderboard is the only cross-user listing the store offers.
func resyncActiveUsers(ctx context.Context, repo *storage.SQLiteRepository, w *worker.SyncWorker, logger *log.Logger) {
	users, err := repo.Leaderboard(ctx, 100)
	if err != nil {
		logger.Error("Resync skipped", log.FieldError, err)
		return
	}
	p := core.CurrentMonth(time.Now())
	for _, u := range users {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.Resync(ctx, u.ID, p); err != nil {
			logger.Error("Resync failed", log.FieldUserID, u.ID, log.FieldError, err)
		}
	}
}
