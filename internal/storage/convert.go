package storage

import (
	"fmt"
	"time"

	"matador/internal/core"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime also accepts SQLite's CURRENT_TIMESTAMP format for rows written
// outside this package.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func toCoreUser(row User) (core.User, error) {
	last, err := parseTime(row.LastInteraction)
	if err != nil {
		return core.User{}, err
	}
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return core.User{}, err
	}
	updated, err := parseTime(row.UpdatedAt)
	if err != nil {
		return core.User{}, err
	}
	return core.User{
		ID:    row.ID,
		Phone: row.PhoneNumber,
		Name:  row.Name,
		Budget: core.Budget{
			Fixed:    core.Cents(row.BudgetFixedCents),
			Variable: core.Cents(row.BudgetVariableCents),
			Ant:      core.Cents(row.BudgetAntCents),
		},
		Level:           row.Level,
		Points:          row.Points,
		LastInteraction: last,
		CreatedAt:       created,
		UpdatedAt:       updated,
	}, nil
}

func toCoreTransaction(row Transaction) (core.Transaction, error) {
	date, err := parseTime(row.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	updated, err := parseTime(row.UpdatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:              row.ID,
		UserID:          row.UserID,
		Phone:           row.PhoneNumber,
		Type:            core.TransactionType(row.Type),
		Category:        row.Category,
		Amount:          core.Cents(row.AmountCents),
		Description:     row.Description,
		OriginalMessage: row.OriginalMessage,
		Date:            date,
		Month:           int(row.Month),
		Year:            int(row.Year),
		Recurring:       row.IsRecurring != 0,
		CreatedAt:       created,
		UpdatedAt:       updated,
	}, nil
}

func toCoreTransactions(rows []Transaction) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := toCoreTransaction(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
