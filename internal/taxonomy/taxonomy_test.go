package taxonomy

import (
	"errors"
	"testing"

	"matador/internal/core"
)

func TestLabels(t *testing.T) {
	sizes := map[core.TransactionType]int{
		core.Income:          5,
		core.FixedExpense:    7,
		core.VariableExpense: 5,
		core.AntExpense:      7,
	}
	for typ, n := range sizes {
		if got := len(Labels(typ)); got != n {
			t.Errorf("Labels(%s) has %d entries, want %d", typ, got, n)
		}
	}
	if Labels("unknown") == nil || len(Labels("unknown")) != 0 {
		t.Errorf("unknown type must yield an empty, non-nil slice")
	}
	if Labels(core.AntExpense)[0] != "Café o bebida diaria" {
		t.Errorf("declaration order not preserved: %v", Labels(core.AntExpense))
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		typ      core.TransactionType
		category string
		want     bool
	}{
		{core.AntExpense, "Café o bebida diaria", true},
		{core.AntExpense, "Sueldo Fijo", false},
		{core.Income, "Sueldo Fijo", true},
		{core.Income, "sueldo fijo", false},
		{core.FixedExpense, "Renta o Hipotecario", true},
		{"other", "Renta o Hipotecario", false},
	}
	for _, tt := range tests {
		if got := IsValid(tt.typ, tt.category); got != tt.want {
			t.Errorf("IsValid(%s, %q) = %v, want %v", tt.typ, tt.category, got, tt.want)
		}
	}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		typ      core.TransactionType
		category string
		want     string
		ok       bool
	}{
		{core.AntExpense, "café o bebida diaria", "Café o bebida diaria", true},
		{core.AntExpense, "CAFE", "Café o bebida diaria", true},
		{core.AntExpense, " snacks ", "Snacks y golosinas", true},
		{core.VariableExpense, "supermercado", "Supermercado y Comida", true},
		{core.VariableExpense, "Café", "", false},
		{core.AntExpense, "", "", false},
	}
	for _, tt := range tests {
		got, ok := Canonical(tt.typ, tt.category)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Canonical(%s, %q) = %q, %v; want %q, %v", tt.typ, tt.category, got, ok, tt.want, tt.ok)
		}
	}
}

func TestResolve(t *testing.T) {
	if _, err := Resolve(core.Income, "Lotería"); !errors.Is(err, core.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if _, err := Resolve("gift", "Lotería"); !errors.Is(err, core.ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	label, err := Resolve(core.Income, "bonos")
	if err != nil || label != "Bonos o Comisiones Variables" {
		t.Fatalf("got %q, %v", label, err)
	}
}

func TestTypeOf(t *testing.T) {
	typ, ok := TypeOf("Comida a domicilio")
	if !ok || typ != core.AntExpense {
		t.Fatalf("got %s, %v", typ, ok)
	}
	if _, ok := TypeOf("nothing"); ok {
		t.Fatalf("unexpected match")
	}
}
