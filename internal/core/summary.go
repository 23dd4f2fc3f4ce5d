package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Period selects transactions either by calendar month or by a rolling
// window of Days ending at Now.
type Period struct {
	Year  int
	Month int // 1-12
	Days  int
	Now   time.Time
}

func MonthPeriod(year, month int) Period {
	return Period{Year: year, Month: month}
}

// CurrentMonth returns the calendar month containing now (UTC).
func CurrentMonth(now time.Time) Period {
	now = now.UTC()
	return Period{Year: now.Year(), Month: int(now.Month())}
}

func LastDays(now time.Time, days int) Period {
	return Period{Days: days, Now: now.UTC()}
}

func (p Period) IsRolling() bool { return p.Days > 0 }

func (p Period) Validate() error {
	if p.IsRolling() {
		if p.Now.IsZero() {
			return NewValidationError("period", "", ErrInvalidPeriod)
		}
		return nil
	}
	if p.Month < 1 || p.Month > 12 || p.Year < 1 {
		return NewValidationError("period", fmt.Sprintf("%d-%d", p.Year, p.Month), ErrInvalidPeriod)
	}
	return nil
}

// Since is the inclusive lower bound of a rolling window.
func (p Period) Since() time.Time {
	return p.Now.Add(-time.Duration(p.Days) * 24 * time.Hour)
}

// Contains reports whether t falls in the period. Rolling windows include
// both ends; transactions dated after Now are not spent yet.
func (p Period) Contains(t Transaction) bool {
	if p.IsRolling() {
		return !t.Date.Before(p.Since()) && !t.Date.After(p.Now)
	}
	return t.Year == p.Year && t.Month == p.Month
}

// TypeTotal aggregates amounts of one transaction type.
type TypeTotal struct {
	Total Money `json:"total"`
	Count int   `json:"count"`
}

// CategoryTotal aggregates amounts of one category.
type CategoryTotal struct {
	Category string          `json:"-"`
	Type     TransactionType `json:"type"`
	Total    Money           `json:"total"`
	Count    int             `json:"count"`
}

// Breakdown is ordered by total descending, then category ascending, then
// type ascending.
type Breakdown []CategoryTotal

// SortBreakdown applies the Breakdown ordering in place.
func SortBreakdown(b Breakdown) {
	sort.SliceStable(b, func(i, j int) bool {
		if b[i].Total.Cents != b[j].Total.Cents {
			return b[i].Total.Cents > b[j].Total.Cents
		}
		if b[i].Category != b[j].Category {
			return b[i].Category < b[j].Category
		}
		return b[i].Type < b[j].Type
	})
}

// OfType returns the entries with the given type, keeping order.
func (b Breakdown) OfType(t TransactionType) Breakdown {
	out := Breakdown{}
	for _, c := range b {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// MarshalJSON renders the breakdown as an object keyed by category while
// keeping the slice order. A category appearing under two types keeps its
// first (larger) entry.
func (b Breakdown) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	seen := make(map[string]bool, len(b))
	first := true
	for _, c := range b {
		if seen[c.Category] {
			continue
		}
		seen[c.Category] = true
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, err := json.Marshal(c.Category)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
