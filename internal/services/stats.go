package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"matador/internal/core"
	"matador/internal/ledger"
)

// WeekDays is the length of the rolling weekly window.
const WeekDays = 7

// ShareTier classifies the ant-expense share of total expenses.
type ShareTier string

const (
	TierWarning ShareTier = "warning" // more than 20%
	TierCaution ShareTier = "caution" // more than 10%
	TierPraise  ShareTier = "praise"
)

// Share is the ant-expense percentage of total expenses.
type Share struct {
	Percent decimal.Decimal `json:"percent"`
	Tier    ShareTier       `json:"tier"`
	// SavingsHint is what cutting ant expenses by 20% would save. Only set
	// for the warning and caution tiers.
	SavingsHint *core.Money `json:"savingsHint,omitempty"`
}

// Totals is the per-type summary shared by monthly and weekly stats.
type Totals struct {
	Income           core.Money     `json:"income"`
	FixedExpenses    core.Money     `json:"fixedExpenses"`
	VariableExpenses core.Money     `json:"variableExpenses"`
	AntExpenses      core.TypeTotal `json:"antExpenses"`
	TotalExpenses    core.Money     `json:"totalExpenses"`
	Balance          core.Money     `json:"balance"`
	AntShare         *Share         `json:"antShare,omitempty"`
}

type MonthlyStats struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Totals
}

type WeeklyStats struct {
	Days             int `json:"days"`
	TransactionCount int `json:"transactionCount"`
	Totals
	AntDailyAverage core.Money `json:"antDailyAverage"`
}

// MonthlySummary is what the chat monthly query renders.
type MonthlySummary struct {
	Stats     MonthlyStats
	Breakdown core.Breakdown
}

// BreakdownPeriod names the windows accepted by CategoryBreakdown.
type BreakdownPeriod string

const (
	PeriodMonth BreakdownPeriod = "month"
	PeriodWeek  BreakdownPeriod = "week"
)

func ParseBreakdownPeriod(s string) (BreakdownPeriod, error) {
	switch BreakdownPeriod(s) {
	case "", PeriodMonth:
		return PeriodMonth, nil
	case PeriodWeek:
		return PeriodWeek, nil
	}
	return "", core.NewValidationError("period", s, core.ErrInvalidPeriod)
}

// StatsService computes read-only aggregates.
type StatsService struct {
	store ledger.Aggregator
}

func NewStatsService(store ledger.Aggregator) *StatsService {
	return &StatsService{store: store}
}

func (s *StatsService) MonthlyStats(ctx context.Context, userID int64, now time.Time) (MonthlyStats, error) {
	p := core.CurrentMonth(now)
	byType, err := s.store.AggregateByType(ctx, userID, p)
	if err != nil {
		return MonthlyStats{}, fmt.Errorf("monthly stats: %w", err)
	}
	return MonthlyStats{Year: p.Year, Month: p.Month, Totals: totalsFrom(byType)}, nil
}

func (s *StatsService) WeeklyStats(ctx context.Context, userID int64, now time.Time) (WeeklyStats, error) {
	byType, err := s.store.AggregateByType(ctx, userID, core.LastDays(now, WeekDays))
	if err != nil {
		return WeeklyStats{}, fmt.Errorf("weekly stats: %w", err)
	}
	ws := WeeklyStats{Days: WeekDays, Totals: totalsFrom(byType)}
	for _, tt := range byType {
		ws.TransactionCount += tt.Count
	}
	ws.AntDailyAverage = ws.AntExpenses.Total.DivRound(WeekDays)
	return ws, nil
}

func (s *StatsService) CategoryBreakdown(ctx context.Context, userID int64, period BreakdownPeriod, now time.Time) (core.Breakdown, error) {
	var p core.Period
	switch period {
	case PeriodMonth:
		p = core.CurrentMonth(now)
	case PeriodWeek:
		p = core.LastDays(now, WeekDays)
	default:
		return nil, core.NewValidationError("period", string(period), core.ErrInvalidPeriod)
	}
	b, err := s.store.AggregateByCategory(ctx, userID, p)
	if err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}
	return b, nil
}

// MonthlySummary loads the monthly stats and breakdown concurrently.
func (s *StatsService) MonthlySummary(ctx context.Context, userID int64, now time.Time) (MonthlySummary, error) {
	var sum MonthlySummary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st, err := s.MonthlyStats(gctx, userID, now)
		sum.Stats = st
		return err
	})
	g.Go(func() error {
		b, err := s.CategoryBreakdown(gctx, userID, PeriodMonth, now)
		sum.Breakdown = b
		return err
	})
	if err := g.Wait(); err != nil {
		return MonthlySummary{}, err
	}
	return sum, nil
}

func totalsFrom(byType map[core.TransactionType]core.TypeTotal) Totals {
	t := Totals{
		Income:           byType[core.Income].Total,
		FixedExpenses:    byType[core.FixedExpense].Total,
		VariableExpenses: byType[core.VariableExpense].Total,
		AntExpenses:      byType[core.AntExpense],
	}
	t.TotalExpenses = t.FixedExpenses.Add(t.VariableExpenses).Add(t.AntExpenses.Total)
	t.Balance = t.Income.Sub(t.TotalExpenses)
	t.AntShare = antShare(t.AntExpenses.Total, t.TotalExpenses)
	return t
}

// antShare returns nil when there are no expenses. Tiers compare cents
// exactly so 20.0% is caution, not warning.
func antShare(ant, total core.Money) *Share {
	pct, ok := total.Percent(ant, 1)
	if !ok {
		return nil
	}
	sh := &Share{Percent: pct, Tier: TierPraise}
	switch {
	case ant.Cents*100 > 20*total.Cents:
		sh.Tier = TierWarning
	case ant.Cents*100 > 10*total.Cents:
		sh.Tier = TierCaution
	}
	if sh.Tier != TierPraise {
		hint := ant.DivRound(5)
		sh.SavingsHint = &hint
	}
	return sh
}
