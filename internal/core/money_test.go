package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{"1.004", 100, true},
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"0", 0, false},
		{"0.001", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{2500, "25.00"},
		{123456, "1234.56"},
		{-150, "-1.50"},
	}
	for _, tc := range cases {
		if got := Cents(tc.cents).String(); got != tc.want {
			t.Errorf("Cents(%d).String() = %q, want %q", tc.cents, got, tc.want)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Amount Money `json:"amount"`
	}{Cents(1250)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"amount":12.50}` {
		t.Fatalf("unexpected json %s", b)
	}

	tests := []struct {
		in   string
		want int64
	}{
		{`25`, 2500},
		{`25.5`, 2550},
		{`"25.5"`, 2550},
		{`"25,50"`, 2550},
		{`0.015`, 2},
		{`null`, 0},
	}
	for _, tt := range tests {
		var m Money
		if err := json.Unmarshal([]byte(tt.in), &m); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.in, err)
		}
		if m.Cents != tt.want {
			t.Errorf("unmarshal %s = %d, want %d", tt.in, m.Cents, tt.want)
		}
	}

	for _, in := range []string{`"abc"`, `1e30`, `"-99999999999999999999"`} {
		m := Cents(42)
		if err := json.Unmarshal([]byte(in), &m); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("unmarshal %s: expected ErrInvalidAmount, got %v", in, err)
		}
		if m.Cents != 42 {
			t.Errorf("unmarshal %s overwrote value: %d", in, m.Cents)
		}
	}
}

func TestMoneyArithmetic(t *testing.T) {
	// Repeated aggregation of cents must not drift.
	var sum Money
	for i := 0; i < 1000; i++ {
		sum = sum.Add(Cents(10))
	}
	if sum.Cents != 10000 {
		t.Fatalf("sum = %d, want 10000", sum.Cents)
	}

	if got := Cents(1000).DivRound(7); got.Cents != 143 {
		t.Errorf("1000/7 = %d, want 143", got.Cents)
	}
	if got := Cents(1050).DivRound(100); got.Cents != 11 {
		t.Errorf("1050/100 = %d, want 11 (half-up)", got.Cents)
	}

	pct, ok := Cents(25000).Percent(Cents(5000), 1)
	if !ok || !pct.Equal(decimal.NewFromInt(20)) {
		t.Errorf("percent = %s ok=%v, want 20", pct, ok)
	}
	if _, ok := (Money{}).Percent(Cents(1), 1); ok {
		t.Errorf("percent of zero total must report !ok")
	}
}

func TestMoneyFromDecimal(t *testing.T) {
	m, err := MoneyFromDecimal(decimal.RequireFromString("4.999"))
	if err != nil || m.Cents != 500 {
		t.Fatalf("got %d err=%v, want 500", m.Cents, err)
	}
	if _, err := MoneyFromDecimal(decimal.RequireFromString("-3")); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
