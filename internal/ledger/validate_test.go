package ledger

import (
	"errors"
	"testing"
	"time"

	"matador/internal/core"
)

func TestPrepareTransaction(t *testing.T) {
	now := time.Date(2025, 5, 10, 9, 0, 0, 0, time.FixedZone("CST", -6*3600))
	nt := core.NewTransaction{
		UserID:      1,
		Phone:       "whatsapp:+5215500000000",
		Type:        core.AntExpense,
		Category:    "cafe",
		Amount:      core.Cents(2500),
		Description: "  café  ",
	}
	got, err := PrepareTransaction(nt, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Category != "Café o bebida diaria" {
		t.Errorf("category = %q", got.Category)
	}
	if got.Description != "café" {
		t.Errorf("description = %q", got.Description)
	}
	if got.Phone != "+5215500000000" {
		t.Errorf("phone = %q", got.Phone)
	}
	if !got.Date.Equal(now) || got.Date.Location() != time.UTC {
		t.Errorf("date = %v", got.Date)
	}

	nt.Category = "Sueldo Fijo"
	if _, err := PrepareTransaction(nt, now); !errors.Is(err, core.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	nt.Category = "Café o bebida diaria"
	nt.Amount = core.Money{}
	if _, err := PrepareTransaction(nt, now); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestPrepareTransactionDefaultsDescription(t *testing.T) {
	got, err := PrepareTransaction(core.NewTransaction{
		UserID: 1, Type: core.Income, Category: "Sueldo Fijo", Amount: core.Cents(100),
	}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Description != "Sueldo Fijo" {
		t.Fatalf("description = %q", got.Description)
	}
}

func TestPatchTransaction(t *testing.T) {
	base := core.Transaction{
		ID:          7,
		Type:        core.VariableExpense,
		Category:    "Supermercado y Comida",
		Amount:      core.Cents(10000),
		Description: "súper",
	}
	ptr := func(s string) *string { return &s }
	typ := func(t core.TransactionType) *core.TransactionType { return &t }
	amt := func(c int64) *core.Money { m := core.Cents(c); return &m }

	tests := []struct {
		name    string
		patch   core.TransactionPatch
		want    core.Transaction
		wantErr error
	}{
		{
			name:  "amount only",
			patch: core.TransactionPatch{Amount: amt(12000)},
			want:  core.Transaction{ID: 7, Type: core.VariableExpense, Category: "Supermercado y Comida", Amount: core.Cents(12000), Description: "súper"},
		},
		{
			name:  "category of another type moves the type",
			patch: core.TransactionPatch{Category: ptr("comida a domicilio")},
			want:  core.Transaction{ID: 7, Type: core.AntExpense, Category: "Comida a domicilio", Amount: core.Cents(10000), Description: "súper"},
		},
		{
			name:    "type change with incompatible category",
			patch:   core.TransactionPatch{Type: typ(core.Income)},
			wantErr: core.ErrUnknownCategory,
		},
		{
			name:    "zero amount",
			patch:   core.TransactionPatch{Amount: amt(0)},
			wantErr: core.ErrInvalidAmount,
		},
		{
			name:    "unknown category",
			patch:   core.TransactionPatch{Category: ptr("Lotería")},
			wantErr: core.ErrUnknownCategory,
		},
		{
			name:    "unknown type",
			patch:   core.TransactionPatch{Type: typ("gift")},
			wantErr: core.ErrUnknownType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PatchTransaction(base, tt.patch)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v\nwant %+v", got, tt.want)
			}
		})
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{{0, 10}, {-1, 10}, {5, 5}, {500, 100}}
	for _, tt := range tests {
		if got := ClampLimit(tt.in, 10, 100); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
