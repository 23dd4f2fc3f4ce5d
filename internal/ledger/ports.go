// Package ledger defines the persistence ports for users and transactions
// and the validation every adapter applies before writing.
package ledger

import (
	"context"

	"matador/internal/core"
)

// Ports for outbound adapters.
type (
	UserStore interface {
		// FindOrCreateUser returns the user for phone, creating it with name
		// when absent. created reports whether this call inserted the row.
		FindOrCreateUser(ctx context.Context, phone, name string) (user core.User, created bool, err error)
		// GetUserByPhone returns core.ErrNotFound for unknown phones.
		GetUserByPhone(ctx context.Context, phone string) (core.User, error)
		GetUser(ctx context.Context, id int64) (core.User, error)
		TouchUser(ctx context.Context, id int64) error
		// AddPoints increments points and rewrites the level in one atomic step.
		AddPoints(ctx context.Context, id int64, delta int64) (core.User, error)
		// UpdateBudget merges patch into the stored budget atomically.
		UpdateBudget(ctx context.Context, id int64, patch core.BudgetPatch) (core.User, error)
		UpdateName(ctx context.Context, id int64, name string) error
		// Leaderboard orders by points descending, then id ascending.
		Leaderboard(ctx context.Context, limit int) ([]core.User, error)
	}

	TransactionStore interface {
		CreateTransaction(ctx context.Context, nt core.NewTransaction) (core.Transaction, error)
		GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
		// FindTransactions orders by date descending, then id descending.
		FindTransactions(ctx context.Context, userID int64, p core.Period) ([]core.Transaction, error)
		RecentTransactions(ctx context.Context, userID int64, limit int) ([]core.Transaction, error)
		// UpdateLastTransaction patches the most recently created transaction
		// of the user atomically. It returns nil, nil when there is none.
		UpdateLastTransaction(ctx context.Context, userID int64, patch core.TransactionPatch) (*core.Transaction, error)
		DeleteTransaction(ctx context.Context, id int64) error
		// ListRecurring returns recurring transactions of every user in a month.
		ListRecurring(ctx context.Context, p core.Period) ([]core.Transaction, error)
	}

	Aggregator interface {
		AggregateByType(ctx context.Context, userID int64, p core.Period) (map[core.TransactionType]core.TypeTotal, error)
		// AggregateByCategory is ordered as core.Breakdown documents.
		AggregateByCategory(ctx context.Context, userID int64, p core.Period) (core.Breakdown, error)
	}

	// Registrar stores a chat registration and its points award as one
	// write: either both are applied or neither is.
	Registrar interface {
		RegisterTransaction(ctx context.Context, nt core.NewTransaction, points int64) (core.Transaction, core.User, error)
	}

	Store interface {
		UserStore
		TransactionStore
		Registrar
		Aggregator
		Ping(ctx context.Context) error
		Close() error
	}
)
