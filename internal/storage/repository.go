package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"matador/internal/core"
	"matador/internal/gamification"
	"matador/internal/ledger"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// timeLayout is fixed width so TEXT comparison orders chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

var _ ledger.Store = (*SQLiteRepository)(nil)

// Option customises a repository.
type Option func(*SQLiteRepository)

// WithClock replaces the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *SQLiteRepository) { r.now = now }
}

// dsn enables foreign keys, waits on locks and makes every transaction
// take the write lock at BEGIN.
func dsn(dbPath string) string {
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string, opts ...Option) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the pool opens so the schema is in place.
	version, err := RunMigrations(dbPath)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("Database schema ready", "path", dbPath, "version", version)

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serialises writers inside the process.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) stamp() string {
	return formatTime(r.now())
}

// inTx runs fn inside one write transaction.
func (r *SQLiteRepository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) FindOrCreateUser(ctx context.Context, phone, name string) (core.User, bool, error) {
	phone = core.NormalizePhone(phone)
	if phone == "" {
		return core.User{}, false, core.NewValidationError("phone", "", core.ErrEmptyPhone)
	}
	if strings.TrimSpace(name) == "" {
		name = core.DefaultUserName
	}

	var (
		row     User
		created bool
	)
	err := r.inTx(ctx, func(q *Queries) error {
		n, err := q.InsertUserIfAbsent(ctx, InsertUserIfAbsentParams{
			PhoneNumber: phone,
			Name:        name,
			Level:       gamification.LevelFor(0),
			Now:         r.stamp(),
		})
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		created = n == 1
		row, err = q.GetUserByPhone(ctx, phone)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.User{}, false, err
	}
	if created {
		slog.InfoContext(ctx, "User registered", "user_id", row.ID, "phone", phone)
	}
	u, err := toCoreUser(row)
	return u, created, err
}

func (r *SQLiteRepository) GetUserByPhone(ctx context.Context, phone string) (core.User, error) {
	row, err := r.queries.GetUserByPhone(ctx, core.NormalizePhone(phone))
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("user %s: %w", phone, core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user by phone: %w", err)
	}
	return toCoreUser(row)
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	row, err := r.queries.GetUser(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return toCoreUser(row)
}

func (r *SQLiteRepository) TouchUser(ctx context.Context, id int64) error {
	n, err := r.queries.TouchUser(ctx, r.stamp(), id)
	if err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// AddPoints increments points and rewrites the level inside one IMMEDIATE
// transaction, so concurrent awards never observe or write a stale total.
func (r *SQLiteRepository) AddPoints(ctx context.Context, id int64, delta int64) (core.User, error) {
	var row User
	err := r.inTx(ctx, func(q *Queries) error {
		var err error
		row, err = r.awardPoints(ctx, q, id, delta)
		return err
	})
	if err != nil {
		return core.User{}, err
	}
	slog.InfoContext(ctx, "Points awarded", "user_id", id, "delta", delta, "points", row.Points, "level", row.Level)
	return toCoreUser(row)
}

func (r *SQLiteRepository) awardPoints(ctx context.Context, q *Queries, id int64, delta int64) (User, error) {
	points, err := q.IncrementPoints(ctx, IncrementPointsParams{Delta: delta, Now: r.stamp(), ID: id})
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("increment points: %w", err)
	}
	if err := q.SetLevel(ctx, gamification.LevelFor(points), id); err != nil {
		return User{}, fmt.Errorf("set level: %w", err)
	}
	row, err := q.GetUser(ctx, id)
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return row, nil
}

// UpdateBudget merges the patch in SQL so concurrent patches touching
// different buckets both survive.
func (r *SQLiteRepository) UpdateBudget(ctx context.Context, id int64, patch core.BudgetPatch) (core.User, error) {
	if err := patch.Validate(); err != nil {
		return core.User{}, err
	}
	var row User
	err := r.inTx(ctx, func(q *Queries) error {
		n, err := q.UpdateBudget(ctx, UpdateBudgetParams{
			FixedCents:    nullCents(patch.Fixed),
			VariableCents: nullCents(patch.Variable),
			AntCents:      nullCents(patch.Ant),
			Now:           r.stamp(),
			ID:            id,
		})
		if err != nil {
			return fmt.Errorf("update budget: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("user %d: %w", id, core.ErrNotFound)
		}
		row, err = q.GetUser(ctx, id)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.User{}, err
	}
	return toCoreUser(row)
}

func nullCents(m *core.Money) sql.NullInt64 {
	if m == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: m.Cents, Valid: true}
}

func (r *SQLiteRepository) UpdateName(ctx context.Context, id int64, name string) error {
	n, err := r.queries.UpdateName(ctx, name, r.stamp(), id)
	if err != nil {
		return fmt.Errorf("update name: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Leaderboard(ctx context.Context, limit int) ([]core.User, error) {
	limit = ledger.ClampLimit(limit, 10, ledger.MaxLeaderboard)
	rows, err := r.queries.Leaderboard(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	out := make([]core.User, 0, len(rows))
	for _, row := range rows {
		u, err := toCoreUser(row)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, nt core.NewTransaction) (core.Transaction, error) {
	row, err := r.insertTransaction(ctx, r.queries, nt)
	if err != nil {
		return core.Transaction{}, err
	}
	logSaved(ctx, row)
	return toCoreTransaction(row)
}

// RegisterTransaction stores the transaction and awards points in the same
// IMMEDIATE transaction; a failed award leaves no row behind.
func (r *SQLiteRepository) RegisterTransaction(ctx context.Context, nt core.NewTransaction, points int64) (core.Transaction, core.User, error) {
	var (
		row  Transaction
		user User
	)
	err := r.inTx(ctx, func(q *Queries) error {
		var err error
		row, err = r.insertTransaction(ctx, q, nt)
		if err != nil {
			return err
		}
		if points > 0 {
			user, err = r.awardPoints(ctx, q, row.UserID, points)
			return err
		}
		user, err = q.GetUser(ctx, row.UserID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Transaction{}, core.User{}, err
	}
	logSaved(ctx, row)

	tx, err := toCoreTransaction(row)
	if err != nil {
		return core.Transaction{}, core.User{}, err
	}
	u, err := toCoreUser(user)
	if err != nil {
		return core.Transaction{}, core.User{}, err
	}
	return tx, u, nil
}

func (r *SQLiteRepository) insertTransaction(ctx context.Context, q *Queries, nt core.NewTransaction) (Transaction, error) {
	now := r.now().UTC()
	nt, err := ledger.PrepareTransaction(nt, now)
	if err != nil {
		return Transaction{}, err
	}

	recurring := int64(0)
	if nt.Recurring {
		recurring = 1
	}
	row, err := q.CreateTransaction(ctx, CreateTransactionParams{
		UserID:          nt.UserID,
		PhoneNumber:     nt.Phone,
		Type:            string(nt.Type),
		Category:        nt.Category,
		AmountCents:     nt.Amount.Cents,
		Description:     nt.Description,
		OriginalMessage: nt.OriginalMessage,
		Date:            formatTime(nt.Date),
		Month:           int64(nt.Date.Month()),
		Year:            int64(nt.Date.Year()),
		IsRecurring:     recurring,
		Now:             formatTime(now),
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return Transaction{}, fmt.Errorf("user %d: %w", nt.UserID, core.ErrNotFound)
		}
		return Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	return row, nil
}

func logSaved(ctx context.Context, row Transaction) {
	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", row.ID,
		"user_id", row.UserID,
		"type", row.Type,
		"category", row.Category,
		"amount_cents", row.AmountCents)
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return toCoreTransaction(row)
}

func (r *SQLiteRepository) FindTransactions(ctx context.Context, userID int64, p core.Period) ([]core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var (
		rows []Transaction
		err  error
	)
	if p.IsRolling() {
		rows, err = r.queries.ListTransactionsBetween(ctx, userID, formatTime(p.Since()), formatTime(p.Now))
	} else {
		rows, err = r.queries.ListTransactionsByMonth(ctx, userID, int64(p.Year), int64(p.Month))
	}
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return toCoreTransactions(rows)
}

func (r *SQLiteRepository) RecentTransactions(ctx context.Context, userID int64, limit int) ([]core.Transaction, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := r.queries.ListRecentTransactions(ctx, userID, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list recent transactions: %w", err)
	}
	return toCoreTransactions(rows)
}

// UpdateLastTransaction selects and rewrites the newest row inside one
// IMMEDIATE transaction. A concurrent insert either lands before the select
// and is the row patched, or waits until the commit.
func (r *SQLiteRepository) UpdateLastTransaction(ctx context.Context, userID int64, patch core.TransactionPatch) (*core.Transaction, error) {
	var (
		updated Transaction
		found   bool
	)
	err := r.inTx(ctx, func(q *Queries) error {
		latest, err := q.GetLatestTransaction(ctx, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get latest transaction: %w", err)
		}
		current, err := toCoreTransaction(latest)
		if err != nil {
			return err
		}
		merged, err := ledger.PatchTransaction(current, patch)
		if err != nil {
			return err
		}
		updated, err = q.UpdateTransaction(ctx, UpdateTransactionParams{
			Type:        string(merged.Type),
			Category:    merged.Category,
			AmountCents: merged.Amount.Cents,
			Description: merged.Description,
			Now:         r.stamp(),
			ID:          merged.ID,
		})
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, err
	}

	slog.InfoContext(ctx, "Transaction corrected",
		"id", updated.ID,
		"user_id", updated.UserID,
		"category", updated.Category,
		"amount_cents", updated.AmountCents)

	t, err := toCoreTransaction(updated)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) error {
	n, err := r.queries.DeleteTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	slog.InfoContext(ctx, "Transaction deleted", "id", id)
	return nil
}

func (r *SQLiteRepository) ListRecurring(ctx context.Context, p core.Period) ([]core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.IsRolling() {
		return nil, core.NewValidationError("period", "rolling", core.ErrInvalidPeriod)
	}
	rows, err := r.queries.ListRecurringByMonth(ctx, int64(p.Year), int64(p.Month))
	if err != nil {
		return nil, fmt.Errorf("list recurring transactions: %w", err)
	}
	return toCoreTransactions(rows)
}

func (r *SQLiteRepository) AggregateByType(ctx context.Context, userID int64, p core.Period) (map[core.TransactionType]core.TypeTotal, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var (
		rows []TypeTotalRow
		err  error
	)
	if p.IsRolling() {
		rows, err = r.queries.SumByTypeBetween(ctx, userID, formatTime(p.Since()), formatTime(p.Now))
	} else {
		rows, err = r.queries.SumByTypeForMonth(ctx, userID, int64(p.Year), int64(p.Month))
	}
	if err != nil {
		return nil, fmt.Errorf("aggregate by type: %w", err)
	}
	out := make(map[core.TransactionType]core.TypeTotal, len(rows))
	for _, row := range rows {
		out[core.TransactionType(row.Type)] = core.TypeTotal{Total: core.Cents(row.TotalCents), Count: int(row.Count)}
	}
	return out, nil
}

func (r *SQLiteRepository) AggregateByCategory(ctx context.Context, userID int64, p core.Period) (core.Breakdown, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var (
		rows []CategoryTotalRow
		err  error
	)
	if p.IsRolling() {
		rows, err = r.queries.SumByCategoryBetween(ctx, userID, formatTime(p.Since()), formatTime(p.Now))
	} else {
		rows, err = r.queries.SumByCategoryForMonth(ctx, userID, int64(p.Year), int64(p.Month))
	}
	if err != nil {
		return nil, fmt.Errorf("aggregate by category: %w", err)
	}
	out := make(core.Breakdown, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.CategoryTotal{
			Category: row.Category,
			Type:     core.TransactionType(row.Type),
			Total:    core.Cents(row.TotalCents),
			Count:    int(row.Count),
		})
	}
	return out, nil
}

func isForeignKeyViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}
