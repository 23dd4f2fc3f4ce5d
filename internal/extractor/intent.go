// Package extractor turns free-text chat messages into structured intents.
//
// Concrete language models live in sub-packages. Callers depend on the
// Extractor interface only; tests use Func with canned intents.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"matador/internal/core"
)

type Action string

const (
	ActionRegister   Action = "register_transaction"
	ActionCorrection Action = "correction"
	ActionQuery      Action = "query"
	ActionGreeting   Action = "greeting"
	ActionAdvice     Action = "advice"
)

// ErrExtractorFailure wraps every failure to obtain a usable intent:
// transport errors, timeouts and unparseable model output.
var ErrExtractorFailure = errors.New("extractor failure")

// Context is the per-user aggregate passed to the model with each message.
type Context struct {
	WeeklyAntCount int
	WeeklyAntTotal core.Money
}

// Amount decodes a JSON number or a numeric string such as "$1,250.50".
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	s = strings.Trim(s, `"`)
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	s = normalizeSeparators(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("parse amount %s: %w", b, err)
	}
	a.Decimal = d
	return nil
}

// normalizeSeparators treats a comma as thousands separator when a dot is
// present or when exactly three digits follow it, otherwise as decimal mark.
func normalizeSeparators(s string) string {
	if !strings.Contains(s, ",") {
		return s
	}
	if strings.Contains(s, ".") {
		return strings.ReplaceAll(s, ",", "")
	}
	last := strings.LastIndex(s, ",")
	if len(s)-last-1 == 3 {
		return strings.ReplaceAll(s, ",", "")
	}
	return strings.Replace(s, ",", ".", 1)
}

// Payload is the optional transaction part of an intent. Empty fields mean
// "not provided".
type Payload struct {
	Type        string  `json:"type"`
	Category    string  `json:"category"`
	Amount      *Amount `json:"amount"`
	Description string  `json:"description"`
	Recurring   bool    `json:"is_recurring"`
}

type Intent struct {
	Action      Action   `json:"action"`
	Transaction *Payload `json:"transaction"`
	Response    string   `json:"response"`
	Advice      string   `json:"advice"`
}

// Extractor interprets one message. Implementations must wrap failures in
// ErrExtractorFailure.
type Extractor interface {
	Extract(ctx context.Context, text string, c Context) (Intent, error)
}

// Func adapts a function to the Extractor interface.
type Func func(ctx context.Context, text string, c Context) (Intent, error)

func (f Func) Extract(ctx context.Context, text string, c Context) (Intent, error) {
	return f(ctx, text, c)
}

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// ParseIntent decodes model output. It accepts bare JSON or the outermost
// {...} block embedded in prose or a code fence. An intent without an
// action is a failure.
func ParseIntent(raw string) (Intent, error) {
	var in Intent
	err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &in)
	if err != nil {
		block := jsonObject.FindString(raw)
		if block == "" {
			return Intent{}, fmt.Errorf("%w: no JSON object in response", ErrExtractorFailure)
		}
		in = Intent{}
		if err := json.Unmarshal([]byte(block), &in); err != nil {
			return Intent{}, fmt.Errorf("%w: decode intent: %v", ErrExtractorFailure, err)
		}
	}
	in.Action = Action(strings.ToLower(strings.TrimSpace(string(in.Action))))
	if in.Action == "" {
		return Intent{}, fmt.Errorf("%w: intent without action", ErrExtractorFailure)
	}
	return in, nil
}

// Money converts the payload amount to cents. ok is false when absent.
func (p *Payload) Money() (m core.Money, ok bool, err error) {
	if p == nil || p.Amount == nil {
		return core.Money{}, false, nil
	}
	m, err = core.MoneyFromDecimal(p.Amount.Decimal)
	if err != nil {
		return core.Money{}, true, core.NewValidationError("amount", p.Amount.String(), err)
	}
	return m, true, nil
}
