package storage

import (
	"context"
	"database/sql"
)

const userColumns = `id, phone_number, name, budget_fixed_cents, budget_variable_cents, budget_ant_cents,
    level, points, last_interaction, created_at, updated_at`

const transactionColumns = `id, user_id, phone_number, type, category, amount_cents, description,
    original_message, date, month, year, is_recurring, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.PhoneNumber,
		&i.Name,
		&i.BudgetFixedCents,
		&i.BudgetVariableCents,
		&i.BudgetAntCents,
		&i.Level,
		&i.Points,
		&i.LastInteraction,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func scanTransaction(row rowScanner) (Transaction, error) {
	var i Transaction
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.PhoneNumber,
		&i.Type,
		&i.Category,
		&i.AmountCents,
		&i.Description,
		&i.OriginalMessage,
		&i.Date,
		&i.Month,
		&i.Year,
		&i.IsRecurring,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const insertUserIfAbsent = `-- name: InsertUserIfAbsent :execrows
INSERT INTO users (phone_number, name, level, points, last_interaction, created_at, updated_at)
VALUES (?, ?, ?, 0, ?, ?, ?)
ON CONFLICT(phone_number) DO NOTHING`

type InsertUserIfAbsentParams struct {
	PhoneNumber string
	Name        string
	Level       string
	Now         string
}

func (q *Queries) InsertUserIfAbsent(ctx context.Context, arg InsertUserIfAbsentParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertUserIfAbsent,
		arg.PhoneNumber,
		arg.Name,
		arg.Level,
		arg.Now,
		arg.Now,
		arg.Now,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getUser = `-- name: GetUser :one
SELECT ` + userColumns + ` FROM users WHERE id = ?`

func (q *Queries) GetUser(ctx context.Context, id int64) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUser, id))
}

const getUserByPhone = `-- name: GetUserByPhone :one
SELECT ` + userColumns + ` FROM users WHERE phone_number = ?`

func (q *Queries) GetUserByPhone(ctx context.Context, phoneNumber string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByPhone, phoneNumber))
}

const touchUser = `-- name: TouchUser :execrows
UPDATE users SET last_interaction = ?, updated_at = ? WHERE id = ?`

func (q *Queries) TouchUser(ctx context.Context, now string, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, touchUser, now, now, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const incrementPoints = `-- name: IncrementPoints :one
UPDATE users SET points = points + ?, updated_at = ? WHERE id = ?
RETURNING points`

type IncrementPointsParams struct {
	Delta int64
	Now   string
	ID    int64
}

func (q *Queries) IncrementPoints(ctx context.Context, arg IncrementPointsParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, incrementPoints, arg.Delta, arg.Now, arg.ID)
	var points int64
	err := row.Scan(&points)
	return points, err
}

const setLevel = `-- name: SetLevel :exec
UPDATE users SET level = ? WHERE id = ?`

func (q *Queries) SetLevel(ctx context.Context, level string, id int64) error {
	_, err := q.db.ExecContext(ctx, setLevel, level, id)
	return err
}

const updateBudget = `-- name: UpdateBudget :execrows
UPDATE users
SET budget_fixed_cents = COALESCE(?, budget_fixed_cents),
    budget_variable_cents = COALESCE(?, budget_variable_cents),
    budget_ant_cents = COALESCE(?, budget_ant_cents),
    updated_at = ?
WHERE id = ?`

type UpdateBudgetParams struct {
	FixedCents    sql.NullInt64
	VariableCents sql.NullInt64
	AntCents      sql.NullInt64
	Now           string
	ID            int64
}

func (q *Queries) UpdateBudget(ctx context.Context, arg UpdateBudgetParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateBudget,
		arg.FixedCents,
		arg.VariableCents,
		arg.AntCents,
		arg.Now,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const updateName = `-- name: UpdateName :execrows
UPDATE users SET name = ?, updated_at = ? WHERE id = ?`

func (q *Queries) UpdateName(ctx context.Context, name, now string, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateName, name, now, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const leaderboard = `-- name: Leaderboard :many
SELECT ` + userColumns + ` FROM users ORDER BY points DESC, id ASC LIMIT ?`

func (q *Queries) Leaderboard(ctx context.Context, limit int64) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, leaderboard, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		i, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createTransaction = `-- name: CreateTransaction :one
INSERT INTO transactions (
    user_id, phone_number, type, category, amount_cents, description,
    original_message, date, month, year, is_recurring, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + transactionColumns

type CreateTransactionParams struct {
	UserID          int64
	PhoneNumber     string
	Type            string
	Category        string
	AmountCents     int64
	Description     string
	OriginalMessage string
	Date            string
	Month           int64
	Year            int64
	IsRecurring     int64
	Now             string
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, createTransaction,
		arg.UserID,
		arg.PhoneNumber,
		arg.Type,
		arg.Category,
		arg.AmountCents,
		arg.Description,
		arg.OriginalMessage,
		arg.Date,
		arg.Month,
		arg.Year,
		arg.IsRecurring,
		arg.Now,
		arg.Now,
	)
	return scanTransaction(row)
}

const getTransaction = `-- name: GetTransaction :one
SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id))
}

const getLatestTransaction = `-- name: GetLatestTransaction :one
SELECT ` + transactionColumns + ` FROM transactions
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT 1`

func (q *Queries) GetLatestTransaction(ctx context.Context, userID int64) (Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getLatestTransaction, userID))
}

const updateTransaction = `-- name: UpdateTransaction :one
UPDATE transactions
SET type = ?, category = ?, amount_cents = ?, description = ?, updated_at = ?
WHERE id = ?
RETURNING ` + transactionColumns

type UpdateTransactionParams struct {
	Type        string
	Category    string
	AmountCents int64
	Description string
	Now         string
	ID          int64
}

func (q *Queries) UpdateTransaction(ctx context.Context, arg UpdateTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, updateTransaction,
		arg.Type,
		arg.Category,
		arg.AmountCents,
		arg.Description,
		arg.Now,
		arg.ID,
	)
	return scanTransaction(row)
}

const deleteTransaction = `-- name: DeleteTransaction :execrows
DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteTransaction, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listTransactionsByMonth = `-- name: ListTransactionsByMonth :many
SELECT ` + transactionColumns + ` FROM transactions
WHERE user_id = ? AND year = ? AND month = ?
ORDER BY date DESC, id DESC`

func (q *Queries) ListTransactionsByMonth(ctx context.Context, userID, year, month int64) ([]Transaction, error) {
	return q.listTransactions(ctx, listTransactionsByMonth, userID, year, month)
}

const listTransactionsBetween = `-- name: ListTransactionsBetween :many
SELECT ` + transactionColumns + ` FROM transactions
WHERE user_id = ? AND date >= ? AND date <= ?
ORDER BY date DESC, id DESC`

func (q *Queries) ListTransactionsBetween(ctx context.Context, userID int64, since, until string) ([]Transaction, error) {
	return q.listTransactions(ctx, listTransactionsBetween, userID, since, until)
}

const listRecentTransactions = `-- name: ListRecentTransactions :many
SELECT ` + transactionColumns + ` FROM transactions
WHERE user_id = ?
ORDER BY date DESC, id DESC
LIMIT ?`

func (q *Queries) ListRecentTransactions(ctx context.Context, userID, limit int64) ([]Transaction, error) {
	return q.listTransactions(ctx, listRecentTransactions, userID, limit)
}

const listRecurringByMonth = `-- name: ListRecurringByMonth :many
SELECT ` + transactionColumns + ` FROM transactions
WHERE is_recurring = 1 AND year = ? AND month = ?
ORDER BY user_id, id`

func (q *Queries) ListRecurringByMonth(ctx context.Context, year, month int64) ([]Transaction, error) {
	return q.listTransactions(ctx, listRecurringByMonth, year, month)
}

func (q *Queries) listTransactions(ctx context.Context, query string, args ...interface{}) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		i, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const sumByTypeForMonth = `-- name: SumByTypeForMonth :many
SELECT type, COALESCE(SUM(amount_cents), 0), COUNT(*) FROM transactions
WHERE user_id = ? AND year = ? AND month = ?
GROUP BY type`

func (q *Queries) SumByTypeForMonth(ctx context.Context, userID, year, month int64) ([]TypeTotalRow, error) {
	return q.sumByType(ctx, sumByTypeForMonth, userID, year, month)
}

const sumByTypeBetween = `-- name: SumByTypeBetween :many
SELECT type, COALESCE(SUM(amount_cents), 0), COUNT(*) FROM transactions
WHERE user_id = ? AND date >= ? AND date <= ?
GROUP BY type`

func (q *Queries) SumByTypeBetween(ctx context.Context, userID int64, since, until string) ([]TypeTotalRow, error) {
	return q.sumByType(ctx, sumByTypeBetween, userID, since, until)
}

func (q *Queries) sumByType(ctx context.Context, query string, args ...interface{}) ([]TypeTotalRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TypeTotalRow
	for rows.Next() {
		var i TypeTotalRow
		if err := rows.Scan(&i.Type, &i.TotalCents, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const sumByCategoryForMonth = `-- name: SumByCategoryForMonth :many
SELECT category, type, SUM(amount_cents) AS total, COUNT(*) FROM transactions
WHERE user_id = ? AND year = ? AND month = ?
GROUP BY category, type
ORDER BY total DESC, category ASC, type ASC`

func (q *Queries) SumByCategoryForMonth(ctx context.Context, userID, year, month int64) ([]CategoryTotalRow, error) {
	return q.sumByCategory(ctx, sumByCategoryForMonth, userID, year, month)
}

const sumByCategoryBetween = `-- name: SumByCategoryBetween :many
SELECT category, type, SUM(amount_cents) AS total, COUNT(*) FROM transactions
WHERE user_id = ? AND date >= ? AND date <= ?
GROUP BY category, type
ORDER BY total DESC, category ASC, type ASC`

func (q *Queries) SumByCategoryBetween(ctx context.Context, userID int64, since, until string) ([]CategoryTotalRow, error) {
	return q.sumByCategory(ctx, sumByCategoryBetween, userID, since, until)
}

func (q *Queries) sumByCategory(ctx context.Context, query string, args ...interface{}) ([]CategoryTotalRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CategoryTotalRow
	for rows.Next() {
		var i CategoryTotalRow
		if err := rows.Scan(&i.Category, &i.Type, &i.TotalCents, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
