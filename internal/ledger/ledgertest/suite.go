// Package ledgertest holds behaviour tests shared by every ledger.Store adapter.
package ledgertest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"matador/internal/core"
	"matador/internal/gamification"
	"matador/internal/ledger"
)

// Factory builds an empty store whose clock reads from now.
type Factory func(t *testing.T, now func() time.Time) ledger.Store

// Clock is a settable time source safe for concurrent reads.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Start is the reference instant used by the suite.
var Start = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

// Run executes the whole suite against stores built by factory.
func Run(t *testing.T, factory Factory) {
	tests := []struct {
		name string
		fn   func(*testing.T, Factory)
	}{
		{"FindOrCreateUser", testFindOrCreateUser},
		{"ConcurrentFirstContact", testConcurrentFirstContact},
		{"TransactionRoundTrip", testTransactionRoundTrip},
		{"CreateTransactionValidation", testCreateTransactionValidation},
		{"AddPointsSequential", testAddPointsSequential},
		{"AddPointsConcurrent", testAddPointsConcurrent},
		{"UpdateLastTransaction", testUpdateLastTransaction},
		{"UpdateLastTransactionEmpty", testUpdateLastTransactionEmpty},
		{"AggregateByType", testAggregateByType},
		{"AggregateByCategory", testAggregateByCategory},
		{"RollingWindow", testRollingWindow},
		{"RollingWindowExcludesFuture", testRollingWindowExcludesFuture},
		{"DeleteTransaction", testDeleteTransaction},
		{"BudgetAndLeaderboard", testBudgetAndLeaderboard},
		{"BudgetPatchMerge", testBudgetPatchMerge},
		{"RegisterTransaction", testRegisterTransaction},
		{"ListRecurring", testListRecurring},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.fn(t, factory) })
	}
}

func newUser(t *testing.T, s ledger.Store, phone string) core.User {
	t.Helper()
	u, _, err := s.FindOrCreateUser(context.Background(), phone, "Ana")
	if err != nil {
		t.Fatalf("FindOrCreateUser: %v", err)
	}
	return u
}

func create(t *testing.T, s ledger.Store, u core.User, typ core.TransactionType, category string, cents int64) core.Transaction {
	t.Helper()
	tx, err := s.CreateTransaction(context.Background(), core.NewTransaction{
		UserID:          u.ID,
		Phone:           u.Phone,
		Type:            typ,
		Category:        category,
		Amount:          core.Cents(cents),
		Description:     category,
		OriginalMessage: "msg",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	return tx
}

func testFindOrCreateUser(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := factory(t, NewClock(Start).Now)

	if _, err := s.GetUserByPhone(ctx, "+5210000000001"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before creation, got %v", err)
	}

	u, created, err := s.FindOrCreateUser(ctx, "+5210000000001", "")
	if err != nil {
		t.Fatalf("FindOrCreateUser: %v", err)
	}
	if !created {
		t.Fatalf("first call must create")
	}
	if u.Level != gamification.Novato || u.Points != 0 || u.Name != core.DefaultUserName {
		t.Fatalf("unexpected new user %+v", u)
	}

	again, created, err := s.FindOrCreateUser(ctx, "+5210000000001", "Otro")
	if err != nil || created || again.ID != u.ID || again.Name != core.DefaultUserName {
		t.Fatalf("second call: %+v created=%v err=%v", again, created, err)
	}

	byPhone, err := s.GetUserByPhone(ctx, "+5210000000001")
	if err != nil || byPhone.ID != u.ID {
		t.Fatalf("GetUserByPhone: %+v %v", byPhone, err)
	}
	if err := s.TouchUser(ctx, u.ID); err != nil {
		t.Fatalf("TouchUser: %v", err)
	}
	if err := s.TouchUser(ctx, 9999); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("TouchUser unknown: %v", err)
	}
	if err := s.UpdateName(ctx, u.ID, "Lucía"); err != nil {
		t.Fatalf("UpdateName: %v", err)
	}
	got, err := s.GetUser(ctx, u.ID)
	if err != nil || got.Name != "Lucía" {
		t.Fatalf("GetUser after rename: %+v %v", got, err)
	}
	if _, _, err := s.FindOrCreateUser(ctx, "  ", "x"); !core.IsValidationError(err) {
		t.Fatalf("blank phone must be a validation error, got %v", err)
	}
}

func testConcurrentFirstContact(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := factory(t, NewClock(Start).Now)

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	ids := map[int64]bool{}
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, created, err := s.FindOrCreateUser(ctx, "+5210000000002", "Ana")
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[u.ID] = true
			if created {
				createdCount++
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent FindOrCreateUser: %v", err)
	}
	if createdCount != 1 || len(ids) != 1 {
		t.Fatalf("created=%d distinct ids=%d, want 1 and 1", createdCount, len(ids))
	}
}

func testTransactionRoundTrip(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := factory(t, NewClock(Start).Now)
	u := newUser(t, s, "+5210000000003")

	created, err := s.CreateTransaction(ctx, core.NewTransaction{
		UserID:          u.ID,
		Phone:           u.Phone,
		Type:            core.AntExpense,
		Category:        "Café o bebida diaria",
		Amount:          core.Cents(4550),
		Description:     "latte",
		OriginalMessage: "me tomé un latte de 45.50",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if created.Month != 3 || created.Year != 2025 {
		t.Fatalf("month/year not derived from date: %+v", created)
	}

	txs, err := s.FindTransactions(ctx, u.ID, core.MonthPeriod(2025, 3))
	if err != nil {
		t.Fatalf("FindTransactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
	got := txs[0]
	if got.ID != created.ID || got.Type != core.AntExpense || got.Category != "Café o bebida diaria" ||
		got.Amount.Cents != 4550 || got.Description != "latte" || got.OriginalMessage != "me tomé un latte de 45.50" ||
		got.Phone != u.Phone || !got.Date.Equal(Start) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, created)
	}

	byID, err := s.GetTransaction(ctx, created.ID)
	if err != nil || byID.ID != created.ID {
		t.Fatalf("GetTransaction: %+v %v", byID, err)
	}
	if _, err := s.GetTransaction(ctx, 424242); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("GetTransaction unknown: %v", err)
	}

	other, err := s.FindTransactions(ctx, u.ID, core.MonthPeriod(2025, 2))
	if err != nil || len(other) != 0 {
		t.Fatalf("other month must be empty: %v %v", other, err)
	}
}

func testCreateTransactionValidation(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := factory(t, NewClock(Start).Now)
	u := newUser(t, s, "+5210000000004")

	tests := []struct {
		name string
		nt   core.NewTransaction
		want error
	}{
		{"zero amount", core.NewTransaction{UserID: u.ID, Type: core.AntExpense, Category: "Café o bebida diaria"}, core.ErrInvalidAmount},
		{"unknown type", core.NewTransaction{UserID: u.ID, Type: "gift", Category: "x", Amount: core.Cents(1)}, core.ErrUnknownType},
		{"category of other type", core.NewTransaction{UserID: u.ID, Type: core.Income, Category: "Café o bebida diaria", Amount: core.Cents(1)}, core.ErrUnknownCategory},
	}
	for _, tt := range tests {
		if _, err := s.CreateTransaction(ctx, tt.nt); !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
	txs, err := s.RecentTransactions(ctx, u.ID, 10)
	if err != nil || len(txs) != 0 {
		t.Fatalf("rejected transactions must not be stored: %v %v", txs, err)
	}

	tx := create(t, s, u, core.AntExpense, "snacks", 1200)
	if tx.Category != "Snacks y golosinas" {
		t.Fatalf("category not canonicalised: %q", tx.Category)
	}
}

func testAddPointsSequential(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := factory(t, NewClock(Start).Now)
	u := newUser(t, s, "+5210000000005")

	checkpoints := map[int]string{20: gamification.Intermedio, 50: gamification.Experto, 100: gamification.Maestro}
	for n := 1; n <= 100; n++ {
		got, err := s.AddPoints(ctx, u.ID, gamification.PointsPerAntExpense)
		if err != nil {
			t.Fatalf("AddPoints #%d: %v", n, err)
		}
		if got.Points != int64(n)*10 || got.Level != gamification.LevelFor(got.Points) {
			t.Fatalf("after %d awards: points=%d level=%q", n, got.Points, got.Level)
		}
		if want, ok := checkpoints[n]; ok && got.Level != want {
			t.Fatalf("after %d awards level = %q, want %q", n, got.Level, want)
		}
	}
	if _, err := s.AddPoints(ctx, 9999, 10); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("AddPoints unknown user: %v", err)
	}
}

func testAddPointsConcurrent(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := factory(t, NewClock(Start).Now)
	u := newUser(t, s, "+5210000000006")

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AddPoints(ctx, u.ID, 10); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("AddPoints: %v", err)
	}
	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Points != 500 || got.Level != gamification.Experto {
		t.Fatalf("points=%d level=%q, want 500 %q", got.Points, got.Level, gamification.Experto)
	}
}

func testUpdateLastTransaction(t *testing.T, factory Factory) {
	ctx := context.Background()
	clock := NewClock(Start)
	s := factory(t, clock.Now)
	u := newUser(t, s, "+5210000000007")
	other := newUser(t, s, "+5210000000008")

	first := create(t, s, u, core.VariableExpense, "Supermercado y Comida", 50000)
	clock.Advance(time.Minute)
	second := create(t, s, u, core.AntExpense, "Café o bebida diaria", 3000)
	clock.Advance(time.Minute)
	create(t, s, other, core.AntExpense, "Snacks y golosinas", 1000)

	amount := core.Cents(3500)
	updated, err := s.UpdateLastTransaction(ctx, u.ID, core.TransactionPatch{Amount: &amount})
	if err != nil {
		t.Fatalf("UpdateLastTransaction: %v", err)
	}
	if updated == nil || updated.ID != second.ID || updated.Amount.Cents != 3500 || updated.Category != second.Category {
		t.Fatalf("wrong row updated: %+v", updated)
	}
	stored, err := s.GetTransaction(ctx, first.ID)
	if err != nil || stored.Amount.Cents != 50000 {
		t.Fatalf("older row touched: %+v %v", stored, err)
	}

	// Same creation instant: the later insert wins.
	third := create(t, s, u, core.Income, "Sueldo Fijo", 1500000)
	fourth := create(t, s, u, core.Income, "Bonos o Comisiones Variables", 20000)
	desc := "bono trimestral"
	updated, err = s.UpdateLastTransaction(ctx, u.ID, core.TransactionPatch{Description: &desc})
	if err != nil || updated == nil || updated.ID != fourth.ID || updated.Description != desc {
		t.Fatalf("tie-break: %+v %v (third=%d)", updated, err, third.ID)
	}

	bad := "Lotería"
	if _, err := s.UpdateLastTransaction(ctx, u.ID, core.TransactionPatch{Category: &bad}); !errors.Is(err, core.ErrUnknownCategory) {
		t.Fatalf("invalid correction must be rejected, got %v", err)
	}
	unchanged, _ := s.GetTransaction(ctx, fourth.ID)
	if unchanged.Category != "Bonos o Comisiones Variables" {
		t.Fatalf("rejected correction was persisted: %+v", unchanged)
	}
}

func testUpdateLastTransactionEmpty(t *testing.T, factory Factory) {
	s := factory(t, NewClock(Start).Now)
	u := newUser(t, s, "+5210000000009")
	amount := core.Cents(100)
	got, err := s.UpdateLastTransaction(context.Background(), u.ID, core.TransactionPatch{Amount: &amount})
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", got, err)
	}
}

func testAggregateByType(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := factory(t, NewClock(Start).Now)
	u := newUser(t, s, "+5210000000010")

	empty, err := s.AggregateByType(ctx, u.ID, core.MonthPeriod(2025, 3))
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty month: %v %v", empty, err)
	}

	create(t, s, u, core.Income, "Sueldo Fijo", 1000000)
	create(t, s, u, core.FixedExpense, "Renta o Hipotecario", 400000)
	create(t, s, u, core.AntExpense, "Café o bebida diaria", 2550)
	create(t, s, u, core.AntExpense, "Snacks y golosinas", 1010)

	got, err := s.AggregateByType(ctx, u.ID, core.MonthPeriod(2025, 3))
	if err != nil {
		t.Fatalf("AggregateByType: %v", err)
	}
	want := map[core.TransactionType]core.TypeTotal{
		core.Income:       {Total: core.Cents(1000000), Count: 1},
		core.FixedExpense: {Total: core.Cents(400000), Count: 1},
		core.AntExpense:   {Total: core.Cents(3560), Count: 2},
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s: got %+v, want %+v", k, got[k], v)
		}
	}
}

func testAggregateByCategory(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := factory(t, NewClock(Start).Now)
	u := newUser(t, s, "+5210000000011")

	create(t, s, u, core.AntExpense, "Café o bebida diaria", 1500)
	create(t, s, u, core.AntExpense, "Café o bebida diaria", 1500)
	create(t, s, u, core.AntExpense, "Snacks y golosinas", 5000)
	create(t, s, u, core.AntExpense, "Comida a domicilio", 3000)

	got, err := s.AggregateByCategory(ctx, u.ID, core.MonthPeriod(2025, 3))
	if err != nil {
		t.Fatalf("AggregateByCategory: %v", err)
	}
	want := core.Breakdown{
		{Category: "Snacks y golosinas", Type: core.AntExpense, Total: core.Cents(5000), Count: 1},
		{Category: "Café o bebida diaria", Type: core.AntExpense, Total: core.Cents(3000), Count: 2},
		{Category: "Comida a domicilio", Type: core.AntExpense, Total: core.Cents(3000), Count: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func testRollingWindow(t *testing.T, factory Factory) {
	ctx := context.Background()
	clock := NewClock(Start.Add(-10 * 24 * time.Hour))
	s := factory(t, clock.Now)
	u := newUser(t, s, "+5210000000012")

	old := create(t, s, u, core.AntExpense, "Café o bebida diaria", 1000)
	clock.Advance(5 * 24 * time.Hour)
	mid := create(t, s, u, core.AntExpense, "Café o bebida diaria", 2000)
	clock.Advance(5 * 24 * time.Hour)
	recent := create(t, s, u, core.AntExpense, "Café o bebida diaria", 3000)

	txs, err := s.FindTransactions(ctx, u.ID, core.LastDays(clock.Now(), 7))
	if err != nil {
		t.Fatalf("FindTransactions: %v", err)
	}
	if len(txs) != 2 || txs[0].ID != recent.ID || txs[1].ID != mid.ID {
		t.Fatalf("unexpected window %+v (old=%d)", txs, old.ID)
	}

	totals, err := s.AggregateByType(ctx, u.ID, core.LastDays(clock.Now(), 7))
	if err != nil || totals[core.AntExpense].Total.Cents != 5000 || totals[core.AntExpense].Count != 2 {
		t.Fatalf("weekly totals %+v %v", totals, err)
	}

	recentAll, err := s.RecentTransactions(ctx, u.ID, 2)
	if err != nil || len(recentAll) != 2 || recentAll[0].ID != recent.ID {
		t.Fatalf("RecentTransactions: %+v %v", recentAll, err)
	}
}

func testRollingWindowExcludesFuture(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := factory(t, NewClock(Start).Now)
	u := newUser(t, s, "+5210000000018")

	today := create(t, s, u, core.FixedExpense, "Renta o Hipotecario", 500000)
	if _, err := s.CreateTransaction(ctx, core.NewTransaction{
		UserID: u.ID, Phone: u.Phone, Type: core.FixedExpense, Category: "Renta o Hipotecario",
		Amount: core.Cents(500000), Description: "renta", Recurring: true,
		Date: Start.Add(3 * 24 * time.Hour),
	}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	week := core.LastDays(Start, 7)
	txs, err := s.FindTransactions(ctx, u.ID, week)
	if err != nil || len(txs) != 1 || txs[0].ID != today.ID {
		t.Fatalf("FindTransactions = %+v, %v", txs, err)
	}
	totals, err := s.AggregateByType(ctx, u.ID, week)
	if err != nil || totals[core.FixedExpense].Total.Cents != 500000 || totals[core.FixedExpense].Count != 1 {
		t.Fatalf("AggregateByType = %+v, %v", totals, err)
	}
	breakdown, err := s.AggregateByCategory(ctx, u.ID, week)
	if err != nil || len(breakdown) != 1 || breakdown[0].Total.Cents != 500000 {
		t.Fatalf("AggregateByCategory = %+v, %v", breakdown, err)
	}
}

func testDeleteTransaction(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := factory(t, NewClock(Start).Now)
	u := newUser(t, s, "+5210000000013")
	tx := create(t, s, u, core.AntExpense, "Café o bebida diaria", 1000)

	if err := s.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if err := s.DeleteTransaction(ctx, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := s.GetTransaction(ctx, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("deleted row still readable: %v", err)
	}
}

func testBudgetAndLeaderboard(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := factory(t, NewClock(Start).Now)
	a := newUser(t, s, "+5210000000014")
	b := newUser(t, s, "+5210000000015")
	c := newUser(t, s, "+5210000000016")

	fixed, variable, ant := core.Cents(500000), core.Cents(200000), core.Cents(50000)
	got, err := s.UpdateBudget(ctx, a.ID, core.BudgetPatch{Fixed: &fixed, Variable: &variable, Ant: &ant})
	want := core.Budget{Fixed: fixed, Variable: variable, Ant: ant}
	if err != nil || got.Budget != want {
		t.Fatalf("UpdateBudget: %+v %v", got, err)
	}
	if _, err := s.UpdateBudget(ctx, 9999, core.BudgetPatch{Fixed: &fixed}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("UpdateBudget unknown: %v", err)
	}

	if _, err := s.AddPoints(ctx, b.ID, 30); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddPoints(ctx, c.ID, 30); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddPoints(ctx, a.ID, 10); err != nil {
		t.Fatal(err)
	}

	board, err := s.Leaderboard(ctx, 2)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(board) != 2 || board[0].ID != b.ID || board[1].ID != c.ID {
		t.Fatalf("unexpected leaderboard %+v", board)
	}
}

func testBudgetPatchMerge(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := factory(t, NewClock(Start).Now)
	u := newUser(t, s, "+5210000000017")

	neg := core.Cents(-1)
	if _, err := s.UpdateBudget(ctx, u.ID, core.BudgetPatch{Ant: &neg}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("negative patch: %v", err)
	}

	// Concurrent patches on different buckets must both land.
	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 1; i <= n; i++ {
		fixed, ant := core.Cents(int64(i)), core.Cents(int64(1000+i))
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := s.UpdateBudget(ctx, u.ID, core.BudgetPatch{Fixed: &fixed}); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := s.UpdateBudget(ctx, u.ID, core.BudgetPatch{Ant: &ant}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("UpdateBudget: %v", err)
	}

	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Budget.Fixed.Cents < 1 || got.Budget.Fixed.Cents > n {
		t.Errorf("fixed = %d, want one of the fixed patches", got.Budget.Fixed.Cents)
	}
	if got.Budget.Ant.Cents < 1001 || got.Budget.Ant.Cents > 1000+n {
		t.Errorf("ant = %d, want one of the ant patches", got.Budget.Ant.Cents)
	}
	if got.Budget.Variable.Cents != 0 {
		t.Errorf("variable = %d, want untouched", got.Budget.Variable.Cents)
	}
}

func testRegisterTransaction(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := factory(t, NewClock(Start).Now)
	u := newUser(t, s, "+5210000000018")
	if _, err := s.AddPoints(ctx, u.ID, 190); err != nil {
		t.Fatal(err)
	}

	nt := core.NewTransaction{
		UserID:      u.ID,
		Phone:       u.Phone,
		Type:        core.AntExpense,
		Category:    "Café o bebida diaria",
		Amount:      core.Cents(4500),
		Description: "café",
	}
	tx, got, err := s.RegisterTransaction(ctx, nt, gamification.PointsPerAntExpense)
	if err != nil {
		t.Fatalf("RegisterTransaction: %v", err)
	}
	if tx.ID == 0 || tx.UserID != u.ID {
		t.Fatalf("transaction %+v", tx)
	}
	if got.Points != 200 || got.Level != gamification.Intermedio {
		t.Fatalf("points=%d level=%q, want 200 %q", got.Points, got.Level, gamification.Intermedio)
	}

	nt.Type, nt.Category = core.Income, "Sueldo Fijo"
	_, got, err = s.RegisterTransaction(ctx, nt, 0)
	if err != nil {
		t.Fatalf("RegisterTransaction without points: %v", err)
	}
	if got.Points != 200 {
		t.Fatalf("points changed to %d", got.Points)
	}

	ghost := nt
	ghost.UserID = 9999
	ghost.Type, ghost.Category = core.AntExpense, "Café o bebida diaria"
	if _, _, err := s.RegisterTransaction(ctx, ghost, gamification.PointsPerAntExpense); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("unknown user: %v", err)
	}
	bad := nt
	bad.Amount = core.Cents(0)
	if _, _, err := s.RegisterTransaction(ctx, bad, gamification.PointsPerAntExpense); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("zero amount: %v", err)
	}

	txs, err := s.FindTransactions(ctx, u.ID, core.MonthPeriod(2025, 3))
	if err != nil {
		t.Fatalf("FindTransactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("stored %d transactions, want 2", len(txs))
	}
	after, err := s.GetUser(ctx, u.ID)
	if err != nil || after.Points != 200 {
		t.Fatalf("failed registrations changed points: %+v %v", after, err)
	}
}

func testListRecurring(t *testing.T, factory Factory) {
	ctx := context.Background()
	s := factory(t, NewClock(Start).Now)
	u := newUser(t, s, "+5210000000017")

	rent, err := s.CreateTransaction(ctx, core.NewTransaction{
		UserID: u.ID, Phone: u.Phone, Type: core.FixedExpense, Category: "Renta o Hipotecario",
		Amount: core.Cents(800000), Description: "renta", Recurring: true,
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	create(t, s, u, core.AntExpense, "Café o bebida diaria", 1000)

	got, err := s.ListRecurring(ctx, core.MonthPeriod(2025, 3))
	if err != nil || len(got) != 1 || got[0].ID != rent.ID || !got[0].Recurring {
		t.Fatalf("ListRecurring: %+v %v", got, err)
	}

	if _, err := s.ListRecurring(ctx, core.LastDays(Start, 7)); !errors.Is(err, core.ErrInvalidPeriod) {
		t.Fatalf("ListRecurring rolling: %v", err)
	}
}
