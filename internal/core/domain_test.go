package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestParseTransactionType(t *testing.T) {
	for _, in := range []string{"income", " ANT_EXPENSE ", "fixed_expense", "Variable_Expense"} {
		if _, err := ParseTransactionType(in); err != nil {
			t.Errorf("%q: unexpected error %v", in, err)
		}
	}
	_, err := ParseTransactionType("savings")
	if !errors.Is(err, ErrUnknownType) || !IsValidationError(err) {
		t.Fatalf("expected validation error wrapping ErrUnknownType, got %v", err)
	}
}

func TestNewTransactionValidate(t *testing.T) {
	good := NewTransaction{
		UserID:      1,
		Type:        AntExpense,
		Category:    "Café o bebida diaria",
		Amount:      Cents(2500),
		Description: "café",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*NewTransaction)
		want   error
	}{
		{"zero amount", func(n *NewTransaction) { n.Amount = Money{} }, ErrInvalidAmount},
		{"negative amount", func(n *NewTransaction) { n.Amount = Cents(-1) }, ErrInvalidAmount},
		{"unknown type", func(n *NewTransaction) { n.Type = "gift" }, ErrUnknownType},
		{"empty category", func(n *NewTransaction) { n.Category = "  " }, ErrUnknownCategory},
		{"missing user", func(n *NewTransaction) { n.UserID = 0 }, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nt := good
			tt.mutate(&nt)
			err := nt.Validate()
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
		})
	}

	long := good
	long.Description = strings.Repeat("a", MaxDescriptionLength+1)
	if err := long.Validate(); err == nil {
		t.Fatalf("expected error for long description")
	}
}

func TestTransactionPatchApply(t *testing.T) {
	orig := Transaction{Type: VariableExpense, Category: "Supermercado", Amount: Cents(1000), Description: "súper"}
	amount := Cents(1500)
	desc := "mercado"
	got := TransactionPatch{Amount: &amount, Description: &desc}.Apply(orig)
	if got.Amount != amount || got.Description != desc {
		t.Fatalf("patch not applied: %+v", got)
	}
	if got.Type != orig.Type || got.Category != orig.Category {
		t.Fatalf("untouched fields changed: %+v", got)
	}
	if !(TransactionPatch{}).Empty() {
		t.Fatalf("zero patch must be empty")
	}
}

func TestBudgetPatch(t *testing.T) {
	cur := Budget{Fixed: Cents(100), Variable: Cents(200), Ant: Cents(300)}
	zero := Cents(0)

	var p BudgetPatch
	if err := json.Unmarshal([]byte(`{"variable_expenses": 0}`), &p); err != nil {
		t.Fatal(err)
	}
	if p.Fixed != nil || p.Ant != nil || p.Variable == nil || *p.Variable != zero {
		t.Fatalf("decoded patch %+v", p)
	}
	if err := p.Validate(); err != nil {
		t.Fatal(err)
	}
	got := p.Apply(cur)
	if got.Fixed.Cents != 100 || got.Variable.Cents != 0 || got.Ant.Cents != 300 {
		t.Errorf("budget %+v", got)
	}

	neg := Cents(-1)
	err := BudgetPatch{Ant: &neg}.Validate()
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "ant_expenses" || !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("err = %v", err)
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"whatsapp:+5215512345678":      "+5215512345678",
		"5215512345678@s.whatsapp.net": "5215512345678",
		" +52 155 1234 ":               "+521551234",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPeriod(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	month := CurrentMonth(now)
	if month.Year != 2025 || month.Month != 3 || month.IsRolling() {
		t.Fatalf("unexpected month period %+v", month)
	}
	if err := MonthPeriod(2025, 13).Validate(); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}

	week := LastDays(now, 7)
	in := Transaction{Date: now.Add(-6 * 24 * time.Hour)}
	out := Transaction{Date: now.Add(-8 * 24 * time.Hour)}
	if !week.Contains(in) || week.Contains(out) {
		t.Fatalf("rolling window membership wrong")
	}
	if !week.Contains(Transaction{Date: now}) {
		t.Error("window should include its end")
	}
	if week.Contains(Transaction{Date: now.Add(time.Second)}) {
		t.Error("transactions dated after now are outside the window")
	}
}

func TestBreakdownOrderingAndJSON(t *testing.T) {
	b := Breakdown{
		{Category: "A", Type: AntExpense, Total: Cents(3000), Count: 2},
		{Category: "C", Type: AntExpense, Total: Cents(3000), Count: 1},
		{Category: "B", Type: AntExpense, Total: Cents(5000), Count: 1},
	}
	SortBreakdown(b)
	if b[0].Category != "B" || b[1].Category != "A" || b[2].Category != "C" {
		t.Fatalf("unexpected order %+v", b)
	}
	raw, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"B":{"type":"ant_expense","total":50.00,"count":1},"A":{"type":"ant_expense","total":30.00,"count":2},"C":{"type":"ant_expense","total":30.00,"count":1}}`
	if string(raw) != want {
		t.Fatalf("json = %s\nwant %s", raw, want)
	}
	if empty, _ := json.Marshal(Breakdown{}); string(empty) != "{}" {
		t.Fatalf("empty breakdown = %s", empty)
	}
}
