package ledger

import (
	"strings"
	"time"

	"matador/internal/core"
	"matador/internal/taxonomy"
)

// MaxLeaderboard caps leaderboard queries.
const MaxLeaderboard = 100

// PrepareTransaction validates nt and returns it with the category replaced by
// its canonical label, the description trimmed and a UTC date set.
func PrepareTransaction(nt core.NewTransaction, now time.Time) (core.NewTransaction, error) {
	if err := nt.Validate(); err != nil {
		return core.NewTransaction{}, err
	}
	label, err := taxonomy.Resolve(nt.Type, nt.Category)
	if err != nil {
		return core.NewTransaction{}, err
	}
	nt.Category = label
	nt.Description = strings.TrimSpace(nt.Description)
	if nt.Description == "" {
		nt.Description = label
	}
	if nt.Date.IsZero() {
		nt.Date = now
	}
	nt.Date = nt.Date.UTC()
	nt.Phone = core.NormalizePhone(nt.Phone)
	return nt, nil
}

// PatchTransaction applies p to t and validates the merged row.
//
// A category given without a type that belongs to a different type moves the
// transaction to that type. A type given without a category must still fit
// the current category.
func PatchTransaction(t core.Transaction, p core.TransactionPatch) (core.Transaction, error) {
	if p.Type != nil && !p.Type.Valid() {
		return core.Transaction{}, core.NewValidationError("type", string(*p.Type), core.ErrUnknownType)
	}
	if p.Amount != nil {
		if err := p.Amount.Validate(); err != nil {
			return core.Transaction{}, core.NewValidationError("amount", p.Amount.String(), err)
		}
	}
	if p.Description != nil && len(*p.Description) > core.MaxDescriptionLength {
		return core.Transaction{}, core.NewValidationError("description", "", core.ErrDescriptionLong)
	}

	merged := p.Apply(t)
	if p.Category != nil && p.Type == nil {
		if _, ok := taxonomy.Canonical(merged.Type, merged.Category); !ok {
			if typ, found := taxonomy.TypeOf(merged.Category); found {
				merged.Type = typ
			}
		}
	}
	label, err := taxonomy.Resolve(merged.Type, merged.Category)
	if err != nil {
		return core.Transaction{}, err
	}
	merged.Category = label
	if p.Description != nil {
		merged.Description = strings.TrimSpace(merged.Description)
		if merged.Description == "" {
			merged.Description = t.Description
		}
	}
	return merged, nil
}

// ClampLimit bounds list sizes to [1, max], substituting def for non-positive input.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}
