// Package worker mirrors ledger changes announced over AMQP into the
// spreadsheet exporter.
package worker

import (
	"context"
	"errors"
	"fmt"

	"matador/internal/amqp"
	"matador/internal/core"
	"matador/internal/ledger"
	"matador/internal/log"
	"matador/internal/sheets"
)

// SyncWorker applies transaction events to an exporter. Events carry only
// ids, so created and corrected events re-read the current row.
type SyncWorker struct {
	store    ledger.TransactionStore
	exporter sheets.TransactionExporter
	logger   *log.Logger
}

func NewSyncWorker(store ledger.TransactionStore, exporter sheets.TransactionExporter, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &SyncWorker{
		store:    store,
		exporter: exporter,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleTransactionEvent is the consumer callback. A returned error makes
// the broker redeliver the event.
func (w *SyncWorker) HandleTransactionEvent(ctx context.Context, ev *amqp.TransactionEvent) error {
	fields := log.NewFields().
		WithOperation(log.OpSync).
		WithUser(ev.UserID)
	fields[log.FieldTransactionID] = ev.TransactionID
	fields[log.FieldAction] = string(ev.Kind)

	switch ev.Kind {
	case amqp.EventCreated, amqp.EventCorrected:
		t, err := w.store.GetTransaction(ctx, ev.TransactionID)
		if errors.Is(err, core.ErrNotFound) {
			// Deleted after the event was published.
			w.logger.InfoContext(ctx, "Transaction gone before sync, removing row", fields.ToSlice()...)
			return w.delete(ctx, ev.TransactionID)
		}
		if err != nil {
			return fmt.Errorf("load transaction %d: %w", ev.TransactionID, err)
		}
		if err := w.exporter.Upsert(ctx, t); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export transaction", fields.WithError(err).ToSlice()...)
			return fmt.Errorf("export transaction %d: %w", t.ID, err)
		}
	case amqp.EventDeleted:
		if err := w.delete(ctx, ev.TransactionID); err != nil {
			w.logger.ErrorContext(ctx, "Failed to remove exported transaction", fields.WithError(err).ToSlice()...)
			return err
		}
	default:
		w.logger.WarnContext(ctx, "Ignoring unknown event kind", fields.ToSlice()...)
		return nil
	}

	w.logger.InfoContext(ctx, "Transaction synced", fields.ToSlice()...)
	return nil
}

func (w *SyncWorker) delete(ctx context.Context, id int64) error {
	if err := w.exporter.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete exported transaction %d: %w", id, err)
	}
	return nil
}

// Resync exports every transaction of a user in p. It recovers rows whose
// events were lost while the worker was down.
func (w *SyncWorker) Resync(ctx context.Context, userID int64, p core.Period) (int, error) {
	txs, err := w.store.FindTransactions(ctx, userID, p)
	if err != nil {
		return 0, fmt.Errorf("list transactions: %w", err)
	}
	for i, t := range txs {
		if err := w.exporter.Upsert(ctx, t); err != nil {
			return i, fmt.Errorf("export transaction %d: %w", t.ID, err)
		}
	}
	w.logger.InfoContext(ctx, "Resync completed",
		log.FieldUserID, userID,
		log.FieldYear, p.Year,
		log.FieldMonth, p.Month,
		"count", len(txs))
	return len(txs), nil
}
