package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"matador/internal/amqp"
	"matador/internal/core"
	"matador/internal/ledger"
)

// RecurringProcessor copies last month's recurring transactions into the
// current month.
type RecurringProcessor struct {
	store   ledger.TransactionStore
	service *TransactionService
}

func NewRecurringProcessor(store ledger.TransactionStore, service *TransactionService) *RecurringProcessor {
	return &RecurringProcessor{
		store:   store,
		service: service,
	}
}

// ProcessMonth creates the current month's copies that do not exist yet and
// returns how many were created. Running it twice in a month creates nothing
// the second time. Copies never award points.
func (p *RecurringProcessor) ProcessMonth(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil || p.service == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	current := core.CurrentMonth(now)
	prevTime := time.Date(current.Year, time.Month(current.Month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	previous := core.CurrentMonth(prevTime)

	templates, err := p.store.ListRecurring(ctx, previous)
	if err != nil {
		return 0, fmt.Errorf("list recurring transactions of %d-%02d: %w", previous.Year, previous.Month, err)
	}
	existing, err := p.store.ListRecurring(ctx, current)
	if err != nil {
		return 0, fmt.Errorf("list recurring transactions of %d-%02d: %w", current.Year, current.Month, err)
	}

	slog.InfoContext(ctx, "Processing recurring transactions",
		"templates", len(templates),
		"already_copied", len(existing),
		"month", fmt.Sprintf("%d-%02d", current.Year, current.Month))

	// Multiset so two identical templates yield two copies.
	copies := make(map[recurringKey]int, len(existing))
	for _, t := range existing {
		copies[keyOf(t)]++
	}

	created := 0
	for _, tmpl := range templates {
		k := keyOf(tmpl)
		if copies[k] > 0 {
			copies[k]--
			continue
		}

		tx, err := p.service.CreateRecurringCopy(ctx, tmpl, sameDayIn(tmpl.Date, current))
		if err != nil {
			slog.ErrorContext(ctx, "Failed to copy recurring transaction",
				"template_id", tmpl.ID,
				"user_id", tmpl.UserID,
				"error", err)
			continue
		}

		created++
		slog.InfoContext(ctx, "Created transaction from recurring template",
			"template_id", tmpl.ID,
			"transaction_id", tx.ID,
			"category", tx.Category,
			"amount_cents", tx.Amount.Cents)
	}

	slog.InfoContext(ctx, "Recurring transaction processing complete",
		"created", created,
		"total_checked", len(templates))

	return created, nil
}

type recurringKey struct {
	userID      int64
	typ         core.TransactionType
	category    string
	cents       int64
	description string
}

func keyOf(t core.Transaction) recurringKey {
	return recurringKey{t.UserID, t.Type, t.Category, t.Amount.Cents, t.Description}
}

// sameDayIn moves d into period p, clamping the day to the month length.
func sameDayIn(d time.Time, p core.Period) time.Time {
	firstOfNext := time.Date(p.Year, time.Month(p.Month)+1, 1, 0, 0, 0, 0, time.UTC)
	lastDay := firstOfNext.AddDate(0, 0, -1).Day()
	day := d.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(p.Year, time.Month(p.Month), day, d.Hour(), d.Minute(), d.Second(), 0, time.UTC)
}

// CreateRecurringCopy stores a copy of tmpl dated at date and publishes a
// created event.
func (s *TransactionService) CreateRecurringCopy(ctx context.Context, tmpl core.Transaction, date time.Time) (core.Transaction, error) {
	tx, err := s.store.CreateTransaction(ctx, core.NewTransaction{
		UserID:          tmpl.UserID,
		Phone:           tmpl.Phone,
		Type:            tmpl.Type,
		Category:        tmpl.Category,
		Amount:          tmpl.Amount,
		Description:     tmpl.Description,
		OriginalMessage: tmpl.OriginalMessage,
		Date:            date,
		Recurring:       true,
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create recurring copy: %w", err)
	}
	s.publish(ctx, amqp.EventCreated, tx)
	return tx, nil
}
