// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data
// shared by the dashboard API handlers.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"matador/internal/core"
)

const (
	maxBodyBytes = 1 << 20

	// MaxLeaderboardSize caps the leaderboard limit parameter.
	MaxLeaderboardSize = 100
	// RecentTransactionsLimit is the size of the "all transactions" listing.
	RecentTransactionsLimit = 100
)

// errBadRequest marks malformed input that is not a domain validation error.
var errBadRequest = errors.New("bad request")

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// Period converts the params to a calendar month period.
func (p MonthParams) Period() core.Period {
	return core.MonthPeriod(p.Year, p.Month)
}

// ParseMonthParams extracts year and month from query parameters, using now
// as default. Present but malformed values are rejected.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	now = now.UTC()
	params := MonthParams{
		Year:  now.Year(),
		Month: int(now.Month()),
	}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return params, fmt.Errorf("year %q: %w", v, errBadRequest)
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return params, fmt.Errorf("month %q: %w", v, errBadRequest)
		}
		params.Month = m
	}

	if err := params.Period().Validate(); err != nil {
		return params, err
	}
	return params, nil
}

// ParseLimit reads the limit query parameter. Missing values use def, values
// above max are clamped.
func ParseLimit(query url.Values, def, max int) (int, error) {
	v := strings.TrimSpace(query.Get("limit"))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit %q: %w", v, errBadRequest)
	}
	if n > max {
		n = max
	}
	return n, nil
}

// phoneParam returns the normalized phone path parameter.
func phoneParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "phone")
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	phone := core.NormalizePhone(sanitizeInput(raw))
	if phone == "" {
		return "", core.NewValidationError("phone", raw, core.ErrEmptyPhone)
	}
	return phone, nil
}

// idParam parses a positive int64 path parameter.
func idParam(r *http.Request, name string) (int64, error) {
	v := chi.URLParam(r, name)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s %q: %w", name, v, errBadRequest)
	}
	return id, nil
}

// decodeJSON decodes a size-limited JSON body into dst, rejecting unknown
// fields and trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, core.ErrInvalidAmount) {
			return core.NewValidationError("amount", "", core.ErrInvalidAmount)
		}
		return fmt.Errorf("decode body: %v: %w", err, errBadRequest)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode body: trailing data: %w", errBadRequest)
	}
	return nil
}
