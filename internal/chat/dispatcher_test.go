package chat

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"matador/internal/core"
	"matador/internal/extractor"
	"matador/internal/gamification"
	"matador/internal/ledger/ledgertest"
	"matador/internal/ledger/memory"
	"matador/internal/services"
)

const phone = "5215512345678"

// scripted returns the intents in order and records the context it saw.
type scripted struct {
	intents []extractor.Intent
	calls   atomic.Int32
	lastCtx extractor.Context
}

func (s *scripted) Extract(_ context.Context, _ string, c extractor.Context) (extractor.Intent, error) {
	n := int(s.calls.Add(1)) - 1
	s.lastCtx = c
	if n >= len(s.intents) {
		return extractor.Intent{}, extractor.ErrExtractorFailure
	}
	return s.intents[n], nil
}

type failingStore struct {
	*memory.Store
}

func (failingStore) RegisterTransaction(context.Context, core.NewTransaction, int64) (core.Transaction, core.User, error) {
	return core.Transaction{}, core.User{}, errors.New("database is locked")
}

func newDispatcher(t *testing.T, ex extractor.Extractor) (*Dispatcher, *memory.Store, *ledgertest.Clock) {
	t.Helper()
	clock := ledgertest.NewClock(ledgertest.Start)
	store := memory.New().WithClock(clock.Now)
	svc := services.NewTransactionService(store, services.WithClock(clock.Now))
	return NewDispatcher(store, svc, ex, time.Second), store, clock
}

// greeted creates the user so later messages skip the welcome path.
func greeted(t *testing.T, d *Dispatcher) {
	t.Helper()
	if got := d.HandleMessage(context.Background(), Inbound{Phone: "whatsapp:" + phone, Text: "hola"}); got != WelcomeText {
		t.Fatalf("first message reply = %q", got)
	}
}

func registerIntent(typ core.TransactionType, category, amount string) extractor.Intent {
	return extractor.Intent{
		Action: extractor.ActionRegister,
		Transaction: &extractor.Payload{
			Type:        string(typ),
			Category:    category,
			Amount:      &extractor.Amount{Decimal: decimal.RequireFromString(amount)},
			Description: "gasto",
		},
		Response: "¡Registrado con éxito!",
		Advice:   "Lleva un termo",
	}
}

func TestFirstContactWelcomes(t *testing.T) {
	ex := &scripted{}
	d, store, _ := newDispatcher(t, ex)

	got := d.HandleMessage(context.Background(), Inbound{Phone: phone + "@s.whatsapp.net", Name: "Ana", Text: "Compré un café de $25"})

	if got != WelcomeText {
		t.Fatalf("reply = %q, want welcome", got)
	}
	if ex.calls.Load() != 0 {
		t.Errorf("extractor called on first contact")
	}
	u, err := store.GetUserByPhone(context.Background(), phone)
	if err != nil {
		t.Fatalf("user not created: %v", err)
	}
	if u.Level != gamification.Novato || u.Points != 0 || u.Name != "Ana" {
		t.Errorf("new user %+v", u)
	}
	txs, _ := store.RecentTransactions(context.Background(), u.ID, 0)
	if len(txs) != 0 {
		t.Errorf("first message stored a transaction")
	}
}

func TestBlankMessage(t *testing.T) {
	d, store, _ := newDispatcher(t, &scripted{})
	if got := d.HandleMessage(context.Background(), Inbound{Phone: phone, Text: "   "}); got != QueryHelpText {
		t.Fatalf("reply = %q", got)
	}
	if _, err := store.GetUserByPhone(context.Background(), phone); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("blank message created a user")
	}
	if got := d.HandleMessage(context.Background(), Inbound{Text: "hola"}); got != ApologyText {
		t.Errorf("missing phone reply = %q", got)
	}
}

func TestRegisterAntExpenseReply(t *testing.T) {
	ex := &scripted{intents: []extractor.Intent{
		registerIntent(core.AntExpense, "Café o bebida diaria", "25"),
		registerIntent(core.AntExpense, "snacks", "12.5"),
	}}
	d, _, clock := newDispatcher(t, ex)
	greeted(t, d)

	got := d.HandleMessage(context.Background(), Inbound{Phone: phone, Text: "Compré un café de $25"})
	for _, want := range []string{"✅ *Registrado!*", "💰 Monto: $25.00", "📁 Categoría: Café o bebida diaria", "Esta semana: 1 gastos hormiga ($25.00)", "💡 Lleva un termo", "⭐ +10 puntos | Nivel: Cazador Novato", "Te faltan 190 puntos para Cazador Intermedio"} {
		if !strings.Contains(got, want) {
			t.Errorf("reply lacks %q:\n%s", want, got)
		}
	}

	clock.Advance(time.Minute)
	d.HandleMessage(context.Background(), Inbound{Phone: phone, Text: "unas papas de 12.50"})
	if ex.lastCtx.WeeklyAntCount != 1 || ex.lastCtx.WeeklyAntTotal != core.Cents(2500) {
		t.Errorf("extractor context = %+v", ex.lastCtx)
	}
}

func TestRegisterIncomeUsesResponse(t *testing.T) {
	ex := &scripted{intents: []extractor.Intent{registerIntent(core.Income, "Sueldo Fijo", "15000")}}
	d, _, _ := newDispatcher(t, ex)
	greeted(t, d)

	got := d.HandleMessage(context.Background(), Inbound{Phone: phone, Text: "Me pagaron mi sueldo, $15000"})
	if !strings.HasSuffix(got, "¡Registrado con éxito!") || strings.Contains(got, "puntos") {
		t.Fatalf("reply = %q", got)
	}
}

func TestExtractorFailures(t *testing.T) {
	tests := []struct {
		name string
		ex   extractor.Extractor
	}{
		{"failure", extractor.Func(func(context.Context, string, extractor.Context) (extractor.Intent, error) {
			return extractor.Intent{}, extractor.ErrExtractorFailure
		})},
		{"unwrapped error", extractor.Func(func(context.Context, string, extractor.Context) (extractor.Intent, error) {
			return extractor.Intent{}, errors.New("dial tcp: connection refused")
		})},
		{"timeout", extractor.Func(func(ctx context.Context, _ string, _ extractor.Context) (extractor.Intent, error) {
			<-ctx.Done()
			return extractor.Intent{}, ctx.Err()
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			d := NewDispatcher(store, services.NewTransactionService(store), tt.ex, 20*time.Millisecond)
			greeted(t, d)
			if got := d.HandleMessage(context.Background(), Inbound{Phone: phone, Text: "asdf"}); got != FallbackText {
				t.Fatalf("reply = %q", got)
			}
		})
	}
}

func TestUnknownActionFallsBack(t *testing.T) {
	d, _, _ := newDispatcher(t, &scripted{intents: []extractor.Intent{{Action: "sing"}}})
	greeted(t, d)
	if got := d.HandleMessage(context.Background(), Inbound{Phone: phone, Text: "canta"}); got != FallbackText {
		t.Fatalf("reply = %q", got)
	}
}

func TestGreetingPassThrough(t *testing.T) {
	d, _, _ := newDispatcher(t, &scripted{intents: []extractor.Intent{
		{Action: extractor.ActionGreeting, Response: "¡Qué onda! ¿Qué gasto cazamos hoy?"},
		{Action: extractor.ActionAdvice},
	}})
	greeted(t, d)
	if got := d.HandleMessage(context.Background(), Inbound{Phone: phone, Text: "hola"}); got != "¡Qué onda! ¿Qué gasto cazamos hoy?" {
		t.Errorf("greeting reply = %q", got)
	}
	if got := d.HandleMessage(context.Background(), Inbound{Phone: phone, Text: "consejo"}); got != UnknownReplyText {
		t.Errorf("empty advice reply = %q", got)
	}
}

func TestInvalidCategoryReply(t *testing.T) {
	d, store, _ := newDispatcher(t, &scripted{intents: []extractor.Intent{registerIntent(core.AntExpense, "Cigarros", "80")}})
	greeted(t, d)

	got := d.HandleMessage(context.Background(), Inbound{Phone: phone, Text: "cigarros 80"})
	if !strings.Contains(got, `No reconocí la categoría "Cigarros" para Gastos Hormiga`) || !strings.Contains(got, "• Snacks y golosinas") {
		t.Fatalf("reply = %q", got)
	}
	u, _ := store.GetUserByPhone(context.Background(), phone)
	if txs, _ := store.RecentTransactions(context.Background(), u.ID, 0); len(txs) != 0 {
		t.Errorf("invalid transaction stored")
	}
}

func TestCorrectionReplies(t *testing.T) {
	correction := extractor.Intent{
		Action:      extractor.ActionCorrection,
		Transaction: &extractor.Payload{Amount: &extractor.Amount{Decimal: decimal.RequireFromString("30")}},
	}
	d, _, clock := newDispatcher(t, &scripted{intents: []extractor.Intent{
		correction,
		registerIntent(core.AntExpense, "Café o bebida diaria", "25"),
		correction,
	}})
	greeted(t, d)

	if got := d.HandleMessage(context.Background(), Inbound{Phone: phone, Text: "no, eran 30"}); got != NothingToCorrectText {
		t.Fatalf("reply = %q", got)
	}
	clock.Advance(time.Minute)
	d.HandleMessage(context.Background(), Inbound{Phone: phone, Text: "café 25"})
	clock.Advance(time.Minute)
	got := d.HandleMessage(context.Background(), Inbound{Phone: phone, Text: "no, eran 30"})
	if !strings.Contains(got, "✅ *Corregido!*") || !strings.Contains(got, "Nuevo monto: $30.00") {
		t.Fatalf("reply = %q", got)
	}
}

func TestMonthlySummaryReply(t *testing.T) {
	query := extractor.Intent{Action: extractor.ActionQuery}
	d, store, _ := newDispatcher(t, &scripted{intents: []extractor.Intent{query, query, query}})
	greeted(t, d)
	u, _ := store.GetUserByPhone(context.Background(), phone)
	for _, nt := range []core.NewTransaction{
		{Type: core.FixedExpense, Category: "Renta o Hipotecario", Amount: core.Cents(10000)},
		{Type: core.VariableExpense, Category: "Entretenimiento", Amount: core.Cents(10000)},
		{Type: core.AntExpense, Category: "Café o bebida diaria", Amount: core.Cents(5000)},
	} {
		nt.UserID = u.ID
		if _, err := store.CreateTransaction(context.Background(), nt); err != nil {
			t.Fatal(err)
		}
	}

	got := d.HandleMessage(context.Background(), Inbound{Phone: phone, Text: "¿Cuánto he gastado este mes?"})
	for _, want := range []string{"📊 *Resumen del Mes*", "💰 Balance: $-250.00", "representan el 20.0%", "ahorrarías $10.00 al mes"} {
		if !strings.Contains(got, want) {
			t.Errorf("monthly reply lacks %q:\n%s", want, got)
		}
	}

	got = d.HandleMessage(context.Background(), Inbound{Phone: phone, Text: "resumen de la semana"})
	if !strings.Contains(got, "📝 Transacciones: 3") || !strings.Contains(got, "Promedio diario en gastos hormiga: $7.14") {
		t.Errorf("weekly reply:\n%s", got)
	}

	got = d.HandleMessage(context.Background(), Inbound{Phone: phone, Text: "mis gastos hormiga"})
	if !strings.Contains(got, "• Café o bebida diaria: $50.00 (1 veces)") {
		t.Errorf("ant reply:\n%s", got)
	}
}

func TestEmptyMonthSummary(t *testing.T) {
	d, _, _ := newDispatcher(t, &scripted{intents: []extractor.Intent{{Action: extractor.ActionQuery}, {Action: extractor.ActionQuery}}})
	greeted(t, d)
	got := d.HandleMessage(context.Background(), Inbound{Phone: phone, Text: "resumen del mes"})
	if !strings.Contains(got, "💰 Balance: $0.00") || strings.Contains(got, "%") {
		t.Errorf("empty month reply:\n%s", got)
	}
	if got := d.HandleMessage(context.Background(), Inbound{Phone: phone, Text: "hormiga"}); got != NoAntExpensesText {
		t.Errorf("ant reply = %q", got)
	}
}

func TestPersistenceFailureReply(t *testing.T) {
	mem := memory.New()
	store := failingStore{Store: mem}
	d := NewDispatcher(store, services.NewTransactionService(store),
		&scripted{intents: []extractor.Intent{registerIntent(core.AntExpense, "Café o bebida diaria", "25")}}, time.Second)
	greeted(t, d)
	if got := d.HandleMessage(context.Background(), Inbound{Phone: phone, Text: "café"}); got != RegisterFailedText {
		t.Fatalf("reply = %q", got)
	}
}
