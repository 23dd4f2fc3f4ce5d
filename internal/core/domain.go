package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income          TransactionType = "income"
	FixedExpense    TransactionType = "fixed_expense"
	VariableExpense TransactionType = "variable_expense"
	AntExpense      TransactionType = "ant_expense"
)

// DefaultUserName is assigned when the transport provides no display name.
const DefaultUserName = "Usuario"

// MaxDescriptionLength bounds free-text descriptions.
const MaxDescriptionLength = 200

type (
	TransactionType string

	Budget struct {
		Fixed    Money `json:"budget_fixed_expenses"`
		Variable Money `json:"budget_variable_expenses"`
		Ant      Money `json:"budget_ant_expenses"`
	}

	User struct {
		ID              int64     `json:"id"`
		Phone           string    `json:"phone_number"`
		Name            string    `json:"name"`
		Budget                    // flattened into the user object
		Level           string    `json:"level"`
		Points          int64     `json:"points"`
		LastInteraction time.Time `json:"last_interaction"`
		CreatedAt       time.Time `json:"created_at"`
		UpdatedAt       time.Time `json:"updated_at"`
	}

	Transaction struct {
		ID              int64           `json:"id"`
		UserID          int64           `json:"user_id"`
		Phone           string          `json:"phone_number"`
		Type            TransactionType `json:"type"`
		Category        string          `json:"category"`
		Amount          Money           `json:"amount"`
		Description     string          `json:"description"`
		OriginalMessage string          `json:"original_message"`
		Date            time.Time       `json:"date"`
		Month           int             `json:"month"`
		Year            int             `json:"year"`
		Recurring       bool            `json:"is_recurring"`
		CreatedAt       time.Time       `json:"created_at"`
		UpdatedAt       time.Time       `json:"updated_at"`
	}

	// NewTransaction carries the fields needed to persist a transaction.
	// A zero Date means "now".
	NewTransaction struct {
		UserID          int64
		Phone           string
		Type            TransactionType
		Category        string
		Amount          Money
		Description     string
		OriginalMessage string
		Date            time.Time
		Recurring       bool
	}

	// TransactionPatch lists the fields a correction may change. Nil fields
	// are left untouched.
	TransactionPatch struct {
		Type        *TransactionType
		Category    *string
		Amount      *Money
		Description *string
	}
)

var TransactionTypes = []TransactionType{Income, FixedExpense, VariableExpense, AntExpense}

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrUnknownType     = errors.New("unknown transaction type")
	ErrUnknownCategory = errors.New("unknown category")
	ErrDescriptionLong = errors.New("description too long (max 200 characters)")
	ErrEmptyPhone      = errors.New("empty phone number")
	ErrInvalidPeriod   = errors.New("invalid period")
)

// BudgetPatch is a partial budget update and the body of
// PUT /api/user/{phone}/budget. Nil fields keep their value.
type BudgetPatch struct {
	Fixed    *Money `json:"fixed_expenses"`
	Variable *Money `json:"variable_expenses"`
	Ant      *Money `json:"ant_expenses"`
}

// Validate rejects negative amounts, naming the field as the API does.
func (p BudgetPatch) Validate() error {
	for _, f := range []struct {
		name string
		m    *Money
	}{
		{"fixed_expenses", p.Fixed},
		{"variable_expenses", p.Variable},
		{"ant_expenses", p.Ant},
	} {
		if f.m != nil && f.m.Cents < 0 {
			return NewValidationError(f.name, f.m.String(), ErrInvalidAmount)
		}
	}
	return nil
}

// Apply returns cur with the patched fields replaced.
func (p BudgetPatch) Apply(cur Budget) Budget {
	if p.Fixed != nil {
		cur.Fixed = *p.Fixed
	}
	if p.Variable != nil {
		cur.Variable = *p.Variable
	}
	if p.Ant != nil {
		cur.Ant = *p.Ant
	}
	return cur
}

// ValidationError reports a rejected field. It wraps one of the sentinel
// errors above so callers can use errors.Is as well as errors.As.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func NewValidationError(field, value string, err error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Err: err}
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func (t TransactionType) Valid() bool {
	switch t {
	case Income, FixedExpense, VariableExpense, AntExpense:
		return true
	}
	return false
}

func (t TransactionType) IsExpense() bool {
	return t == FixedExpense || t == VariableExpense || t == AntExpense
}

// ParseTransactionType accepts the canonical snake_case names, case-insensitively.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", NewValidationError("type", s, ErrUnknownType)
	}
	return t, nil
}

func (t TransactionType) String() string { return string(t) }

// Validate checks everything that does not depend on the category taxonomy.
func (nt NewTransaction) Validate() error {
	if nt.UserID <= 0 {
		return NewValidationError("user_id", fmt.Sprint(nt.UserID), ErrNotFound)
	}
	if !nt.Type.Valid() {
		return NewValidationError("type", string(nt.Type), ErrUnknownType)
	}
	if err := nt.Amount.Validate(); err != nil {
		return NewValidationError("amount", nt.Amount.String(), err)
	}
	if strings.TrimSpace(nt.Category) == "" {
		return NewValidationError("category", "", ErrUnknownCategory)
	}
	if len(nt.Description) > MaxDescriptionLength {
		return NewValidationError("description", "", ErrDescriptionLong)
	}
	return nil
}

// Empty reports whether the patch would change nothing.
func (p TransactionPatch) Empty() bool {
	return p.Type == nil && p.Category == nil && p.Amount == nil && p.Description == nil
}

// Apply returns a copy of t with the patch fields set. The result is not validated.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	return t
}

// NormalizePhone strips transport prefixes and whitespace from a phone identity.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "whatsapp:")
	phone = strings.TrimSuffix(phone, "@s.whatsapp.net")
	return strings.ReplaceAll(phone, " ", "")
}
