package worker

import (
	"context"
	"errors"
	"testing"

	"matador/internal/amqp"
	"matador/internal/core"
	"matador/internal/ledger/ledgertest"
	"matador/internal/ledger/memory"
	sheetsmem "matador/internal/sheets/memory"
)

type failingExporter struct{ *sheetsmem.Exporter }

func (failingExporter) Upsert(context.Context, core.Transaction) error {
	return errors.New("quota exceeded")
}

func setup(t *testing.T) (*memory.Store, core.Transaction) {
	t.Helper()
	ctx := context.Background()
	clock := ledgertest.NewClock(ledgertest.Start)
	store := memory.New().WithClock(clock.Now)
	u, _, err := store.FindOrCreateUser(ctx, "+5215512345678", "Ana")
	if err != nil {
		t.Fatal(err)
	}
	tx, err := store.CreateTransaction(ctx, core.NewTransaction{
		UserID: u.ID, Phone: u.Phone, Type: core.AntExpense,
		Category: "Café o bebida diaria", Amount: core.Cents(4500),
		Description: "café", Date: clock.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return store, tx
}

func TestHandleTransactionEvent(t *testing.T) {
	ctx := context.Background()
	store, tx := setup(t)
	exp := sheetsmem.New()
	w := NewSyncWorker(store, exp, nil)

	if err := w.HandleTransactionEvent(ctx, amqp.NewTransactionEvent(amqp.EventCreated, tx.ID, tx.UserID)); err != nil {
		t.Fatalf("created: %v", err)
	}
	got, ok := exp.Get(tx.ID)
	if !ok || got.Amount.Cents != 4500 {
		t.Fatalf("exported %+v, %v", got, ok)
	}

	amount := core.Cents(6000)
	if _, err := store.UpdateLastTransaction(ctx, tx.UserID, core.TransactionPatch{Amount: &amount}); err != nil {
		t.Fatal(err)
	}
	if err := w.HandleTransactionEvent(ctx, amqp.NewTransactionEvent(amqp.EventCorrected, tx.ID, tx.UserID)); err != nil {
		t.Fatalf("corrected: %v", err)
	}
	if got, _ := exp.Get(tx.ID); got.Amount.Cents != 6000 {
		t.Errorf("corrected amount = %v", got.Amount)
	}

	if err := w.HandleTransactionEvent(ctx, amqp.NewTransactionEvent(amqp.EventDeleted, tx.ID, tx.UserID)); err != nil {
		t.Fatalf("deleted: %v", err)
	}
	if _, ok := exp.Get(tx.ID); ok {
		t.Error("row still exported after delete")
	}
}

func TestCreatedEventForDeletedTransaction(t *testing.T) {
	ctx := context.Background()
	store, tx := setup(t)
	exp := sheetsmem.New()
	_ = exp.Upsert(ctx, tx)
	if err := store.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatal(err)
	}

	w := NewSyncWorker(store, exp, nil)
	if err := w.HandleTransactionEvent(ctx, amqp.NewTransactionEvent(amqp.EventCreated, tx.ID, tx.UserID)); err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if len(exp.Rows()) != 0 {
		t.Errorf("rows = %+v", exp.Rows())
	}
}

func TestExporterFailureIsReturned(t *testing.T) {
	store, tx := setup(t)
	w := NewSyncWorker(store, failingExporter{sheetsmem.New()}, nil)
	err := w.HandleTransactionEvent(context.Background(), amqp.NewTransactionEvent(amqp.EventCreated, tx.ID, tx.UserID))
	if err == nil {
		t.Fatal("expected error so the event is redelivered")
	}
}

func TestUnknownKindIsDropped(t *testing.T) {
	store, tx := setup(t)
	ev := amqp.NewTransactionEvent("archived", tx.ID, tx.UserID)
	if err := NewSyncWorker(store, sheetsmem.New(), nil).HandleTransactionEvent(context.Background(), ev); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestResync(t *testing.T) {
	store, tx := setup(t)
	exp := sheetsmem.New()
	n, err := NewSyncWorker(store, exp, nil).Resync(context.Background(), tx.UserID, core.CurrentMonth(tx.Date))
	if err != nil || n != 1 {
		t.Fatalf("Resync = %d, %v", n, err)
	}
	if _, ok := exp.Get(tx.ID); !ok {
		t.Error("transaction not exported")
	}
}
