package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"matador/internal/amqp"
	"matador/internal/core"
	"matador/internal/extractor"
	"matador/internal/gamification"
	"matador/internal/ledger"
	"matador/internal/log"
)

// OutcomeKind tells the dispatcher which reply to render.
type OutcomeKind int

const (
	OutcomeRegistered OutcomeKind = iota + 1
	OutcomeCorrected
	OutcomeNothingToCorrect
	OutcomeMonthlySummary
	OutcomeWeeklySummary
	OutcomeAntBreakdown
	OutcomeQueryHelp
	OutcomeReply
	OutcomeFallback
)

// QueryKind is the summary selected by keywords in the raw message.
type QueryKind int

const (
	QueryHelp QueryKind = iota
	QueryMonthly
	QueryWeekly
	QueryAnt
)

// Outcome is the result of applying one intent.
type Outcome struct {
	Kind        OutcomeKind
	Transaction *core.Transaction
	User        core.User
	// PointsAwarded is non-zero when the transaction earned points.
	PointsAwarded int64
	Weekly        *WeeklyStats
	Monthly       *MonthlySummary
	Breakdown     core.Breakdown
	Response      string
	Advice        string
}

// EventPublisher is implemented by *amqp.Client.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, event *amqp.TransactionEvent) error
}

// TransactionService applies extracted intents to the store.
type TransactionService struct {
	store     ledger.Store
	stats     *StatsService
	publisher EventPublisher
	now       func() time.Time
}

type Option func(*TransactionService)

// WithPublisher enables transaction events. A nil publisher disables them.
func WithPublisher(p EventPublisher) Option {
	return func(s *TransactionService) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *TransactionService) { s.now = now }
}

func NewTransactionService(store ledger.Store, opts ...Option) *TransactionService {
	s := &TransactionService{
		store: store,
		stats: NewStatsService(store),
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *TransactionService) Stats() *StatsService { return s.stats }

func (s *TransactionService) Now() time.Time { return s.now() }

// Apply routes an intent. Unknown actions yield OutcomeFallback, never an
// error. Returned errors are either *core.ValidationError or persistence
// failures.
func (s *TransactionService) Apply(ctx context.Context, user core.User, in extractor.Intent, raw string) (Outcome, error) {
	switch in.Action {
	case extractor.ActionRegister:
		return s.Register(ctx, user, in, raw)
	case extractor.ActionCorrection:
		return s.Correct(ctx, user, in.Transaction)
	case extractor.ActionQuery:
		return s.Query(ctx, user, raw)
	case extractor.ActionGreeting, extractor.ActionAdvice:
		return Outcome{Kind: OutcomeReply, User: user, Response: in.Response}, nil
	default:
		slog.WarnContext(ctx, "Unrecognized intent action", "action", in.Action, "user_id", user.ID)
		return Outcome{Kind: OutcomeFallback, User: user, Response: in.Response}, nil
	}
}

// Register stores a new transaction and awards points for ant expenses.
func (s *TransactionService) Register(ctx context.Context, user core.User, in extractor.Intent, raw string) (Outcome, error) {
	p := in.Transaction
	if p == nil {
		return Outcome{}, core.NewValidationError("transaction", "", core.ErrInvalidAmount)
	}
	amount, ok, err := p.Money()
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, core.NewValidationError("amount", "", core.ErrInvalidAmount)
	}
	typ, err := core.ParseTransactionType(p.Type)
	if err != nil {
		return Outcome{}, err
	}

	var points int64
	if typ == core.AntExpense {
		points = gamification.PointsPerAntExpense
	}
	tx, updated, err := s.store.RegisterTransaction(ctx, core.NewTransaction{
		UserID:          user.ID,
		Phone:           user.Phone,
		Type:            typ,
		Category:        p.Category,
		Amount:          amount,
		Description:     p.Description,
		OriginalMessage: raw,
		Recurring:       p.Recurring,
	}, points)
	if err != nil {
		return Outcome{}, fmt.Errorf("register transaction: %w", err)
	}
	s.publish(ctx, amqp.EventCreated, tx)

	out := Outcome{
		Kind:          OutcomeRegistered,
		Transaction:   &tx,
		User:          updated,
		PointsAwarded: points,
		Response:      in.Response,
		Advice:        in.Advice,
	}
	if tx.Type != core.AntExpense {
		return out, nil
	}

	// Stats are best effort once the transaction is stored.
	ws, err := s.stats.WeeklyStats(ctx, user.ID, s.now())
	if err != nil {
		slog.WarnContext(ctx, "Failed to load weekly stats", "user_id", user.ID, "error", err)
		return out, nil
	}
	out.Weekly = &ws
	return out, nil
}

// Correct patches the user's most recently created transaction. Points are
// neither awarded nor deducted.
func (s *TransactionService) Correct(ctx context.Context, user core.User, p *extractor.Payload) (Outcome, error) {
	patch, err := patchFromPayload(p)
	if err != nil {
		return Outcome{}, err
	}
	tx, err := s.store.UpdateLastTransaction(ctx, user.ID, patch)
	if err != nil {
		return Outcome{}, fmt.Errorf("correct transaction: %w", err)
	}
	if tx == nil {
		return Outcome{Kind: OutcomeNothingToCorrect, User: user}, nil
	}
	s.publish(ctx, amqp.EventCorrected, *tx)
	return Outcome{Kind: OutcomeCorrected, Transaction: tx, User: user}, nil
}

// Query loads the summary selected by keywords in raw.
func (s *TransactionService) Query(ctx context.Context, user core.User, raw string) (Outcome, error) {
	now := s.now()
	switch SelectQuery(raw) {
	case QueryMonthly:
		sum, err := s.stats.MonthlySummary(ctx, user.ID, now)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: OutcomeMonthlySummary, User: user, Monthly: &sum}, nil
	case QueryWeekly:
		ws, err := s.stats.WeeklyStats(ctx, user.ID, now)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: OutcomeWeeklySummary, User: user, Weekly: &ws}, nil
	case QueryAnt:
		b, err := s.stats.CategoryBreakdown(ctx, user.ID, PeriodMonth, now)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: OutcomeAntBreakdown, User: user, Breakdown: b.OfType(core.AntExpense)}, nil
	default:
		return Outcome{Kind: OutcomeQueryHelp, User: user}, nil
	}
}

// SelectQuery matches keywords on the lower-cased message. Monthly wins over
// weekly, weekly over ant.
func SelectQuery(raw string) QueryKind {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "mes"), strings.Contains(lower, "mensual"):
		return QueryMonthly
	case strings.Contains(lower, "semana"), strings.Contains(lower, "semanal"):
		return QueryWeekly
	case strings.Contains(lower, "hormiga"):
		return QueryAnt
	}
	return QueryHelp
}

// DeleteTransaction removes a transaction owned by userID. Transactions of
// other users are reported as not found.
func (s *TransactionService) DeleteTransaction(ctx context.Context, userID, id int64) error {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if tx.UserID != userID {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.publish(ctx, amqp.EventDeleted, tx)
	return nil
}

func patchFromPayload(p *extractor.Payload) (core.TransactionPatch, error) {
	var patch core.TransactionPatch
	if p == nil {
		return patch, nil
	}
	if strings.TrimSpace(p.Type) != "" {
		typ, err := core.ParseTransactionType(p.Type)
		if err != nil {
			return patch, err
		}
		patch.Type = &typ
	}
	if c := strings.TrimSpace(p.Category); c != "" {
		patch.Category = &c
	}
	amount, ok, err := p.Money()
	if err != nil {
		return patch, err
	}
	if ok {
		patch.Amount = &amount
	}
	if d := strings.TrimSpace(p.Description); d != "" {
		patch.Description = &d
	}
	return patch, nil
}

func (s *TransactionService) publish(ctx context.Context, kind amqp.EventKind, tx core.Transaction) {
	log.NewStructuredLogger(log.FromContext(ctx)).LogTransaction(ctx, eventOps[kind], tx)
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping transaction event", "kind", kind)
		return
	}
	if err := s.publisher.PublishTransactionEvent(ctx, amqp.NewTransactionEvent(kind, tx.ID, tx.UserID)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			"kind", kind, "transaction_id", tx.ID, "error", err)
	}
}

var eventOps = map[amqp.EventKind]string{
	amqp.EventCreated:   log.OpCreate,
	amqp.EventCorrected: log.OpCorrect,
	amqp.EventDeleted:   log.OpDelete,
}

// Close closes the store and the publisher when it supports closing.
func (s *TransactionService) Close() error {
	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if c, ok := s.publisher.(interface{ Close() error }); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	return errors.Join(errs...)
}
