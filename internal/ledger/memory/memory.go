// Package memory is an in-process ledger.Store used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"matador/internal/core"
	"matador/internal/gamification"
	"matador/internal/ledger"
)

// Store serialises every operation under one mutex, which makes AddPoints and
// UpdateLastTransaction atomic.
type Store struct {
	mu     sync.Mutex
	now    func() time.Time
	users  []core.User
	txs    []core.Transaction
	nextU  int64
	nextTx int64
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) FindOrCreateUser(_ context.Context, phone, name string) (core.User, bool, error) {
	phone = core.NormalizePhone(phone)
	if phone == "" {
		return core.User{}, false, core.NewValidationError("phone", "", core.ErrEmptyPhone)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.userIndexByPhone(phone); i >= 0 {
		return s.users[i], false, nil
	}
	if strings.TrimSpace(name) == "" {
		name = core.DefaultUserName
	}
	now := s.now().UTC()
	s.nextU++
	u := core.User{
		ID:              s.nextU,
		Phone:           phone,
		Name:            name,
		Level:           gamification.LevelFor(0),
		LastInteraction: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.users = append(s.users, u)
	return u, true, nil
}

func (s *Store) GetUserByPhone(_ context.Context, phone string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.userIndexByPhone(core.NormalizePhone(phone))
	if i < 0 {
		return core.User{}, fmt.Errorf("user %s: %w", phone, core.ErrNotFound)
	}
	return s.users[i], nil
}

func (s *Store) GetUser(_ context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.userIndex(id)
	if i < 0 {
		return core.User{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	return s.users[i], nil
}

func (s *Store) TouchUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.userIndex(id)
	if i < 0 {
		return fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	now := s.now().UTC()
	s.users[i].LastInteraction = now
	s.users[i].UpdatedAt = now
	return nil
}

func (s *Store) AddPoints(_ context.Context, id int64, delta int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addPoints(id, delta)
}

// addPoints requires s.mu.
func (s *Store) addPoints(id int64, delta int64) (core.User, error) {
	i := s.userIndex(id)
	if i < 0 {
		return core.User{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	s.users[i].Points += delta
	s.users[i].Level = gamification.LevelFor(s.users[i].Points)
	s.users[i].UpdatedAt = s.now().UTC()
	return s.users[i], nil
}

func (s *Store) UpdateBudget(_ context.Context, id int64, patch core.BudgetPatch) (core.User, error) {
	if err := patch.Validate(); err != nil {
		return core.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.userIndex(id)
	if i < 0 {
		return core.User{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	s.users[i].Budget = patch.Apply(s.users[i].Budget)
	s.users[i].UpdatedAt = s.now().UTC()
	return s.users[i], nil
}

func (s *Store) UpdateName(_ context.Context, id int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.userIndex(id)
	if i < 0 {
		return fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	s.users[i].Name = name
	s.users[i].UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) Leaderboard(_ context.Context, limit int) ([]core.User, error) {
	limit = ledger.ClampLimit(limit, 10, ledger.MaxLeaderboard)
	s.mu.Lock()
	out := append([]core.User(nil), s.users...)
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateTransaction(_ context.Context, nt core.NewTransaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(nt)
}

// RegisterTransaction inserts nt and awards points under one lock. A
// non-positive points value awards nothing and returns the user unchanged.
func (s *Store) RegisterTransaction(_ context.Context, nt core.NewTransaction, points int64) (core.Transaction, core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.insert(nt)
	if err != nil {
		return core.Transaction{}, core.User{}, err
	}
	if points <= 0 {
		return t, s.users[s.userIndex(t.UserID)], nil
	}
	u, err := s.addPoints(t.UserID, points)
	if err != nil {
		s.txs = s.txs[:len(s.txs)-1]
		return core.Transaction{}, core.User{}, err
	}
	return t, u, nil
}

// insert requires s.mu.
func (s *Store) insert(nt core.NewTransaction) (core.Transaction, error) {
	now := s.now().UTC()
	nt, err := ledger.PrepareTransaction(nt, now)
	if err != nil {
		return core.Transaction{}, err
	}
	if s.userIndex(nt.UserID) < 0 {
		return core.Transaction{}, fmt.Errorf("user %d: %w", nt.UserID, core.ErrNotFound)
	}
	s.nextTx++
	t := core.Transaction{
		ID:              s.nextTx,
		UserID:          nt.UserID,
		Phone:           nt.Phone,
		Type:            nt.Type,
		Category:        nt.Category,
		Amount:          nt.Amount,
		Description:     nt.Description,
		OriginalMessage: nt.OriginalMessage,
		Date:            nt.Date,
		Month:           int(nt.Date.Month()),
		Year:            nt.Date.Year(),
		Recurring:       nt.Recurring,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.txs = append(s.txs, t)
	return t, nil
}

func (s *Store) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.txIndex(id)
	if i < 0 {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return s.txs[i], nil
}

func (s *Store) FindTransactions(_ context.Context, userID int64, p core.Period) ([]core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]core.Transaction, 0)
	for _, t := range s.txs {
		if t.UserID == userID && p.Contains(t) {
			out = append(out, t)
		}
	}
	s.mu.Unlock()
	sortByDateDesc(out)
	return out, nil
}

func (s *Store) RecentTransactions(_ context.Context, userID int64, limit int) ([]core.Transaction, error) {
	s.mu.Lock()
	out := make([]core.Transaction, 0)
	for _, t := range s.txs {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	s.mu.Unlock()
	sortByDateDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateLastTransaction(_ context.Context, userID int64, patch core.TransactionPatch) (*core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := -1
	for i, t := range s.txs {
		if t.UserID != userID {
			continue
		}
		if last < 0 || !t.CreatedAt.Before(s.txs[last].CreatedAt) {
			last = i
		}
	}
	if last < 0 {
		return nil, nil
	}
	merged, err := ledger.PatchTransaction(s.txs[last], patch)
	if err != nil {
		return nil, err
	}
	merged.UpdatedAt = s.now().UTC()
	s.txs[last] = merged
	return &merged, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.txIndex(id)
	if i < 0 {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	s.txs = append(s.txs[:i], s.txs[i+1:]...)
	return nil
}

func (s *Store) ListRecurring(_ context.Context, p core.Period) ([]core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.IsRolling() {
		return nil, core.NewValidationError("period", "rolling", core.ErrInvalidPeriod)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0)
	for _, t := range s.txs {
		if t.Recurring && p.Contains(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) AggregateByType(ctx context.Context, userID int64, p core.Period) (map[core.TransactionType]core.TypeTotal, error) {
	txs, err := s.FindTransactions(ctx, userID, p)
	if err != nil {
		return nil, err
	}
	out := make(map[core.TransactionType]core.TypeTotal)
	for _, t := range txs {
		tt := out[t.Type]
		tt.Total = tt.Total.Add(t.Amount)
		tt.Count++
		out[t.Type] = tt
	}
	return out, nil
}

func (s *Store) AggregateByCategory(ctx context.Context, userID int64, p core.Period) (core.Breakdown, error) {
	txs, err := s.FindTransactions(ctx, userID, p)
	if err != nil {
		return nil, err
	}
	type key struct {
		category string
		typ      core.TransactionType
	}
	idx := map[key]int{}
	out := core.Breakdown{}
	for _, t := range txs {
		k := key{t.Category, t.Type}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, core.CategoryTotal{Category: t.Category, Type: t.Type})
		}
		out[i].Total = out[i].Total.Add(t.Amount)
		out[i].Count++
	}
	core.SortBreakdown(out)
	return out, nil
}

func (s *Store) userIndex(id int64) int {
	for i, u := range s.users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) userIndexByPhone(phone string) int {
	for i, u := range s.users {
		if u.Phone == phone {
			return i
		}
	}
	return -1
}

func (s *Store) txIndex(id int64) int {
	for i, t := range s.txs {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func sortByDateDesc(txs []core.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.After(txs[j].Date)
		}
		return txs[i].ID > txs[j].ID
	})
}
