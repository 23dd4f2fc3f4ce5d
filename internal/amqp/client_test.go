package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

func TestExponentialBackoff(t *testing.T) {
	want := map[int]time.Duration{
		-1: time.Second, 0: time.Second, 1: 2 * time.Second, 3: 8 * time.Second,
		4: 16 * time.Second, 5: maxBackoff, 15: maxBackoff,
	}
	for attempt, d := range want {
		if got := exponentialBackoff(attempt); got != d {
			t.Errorf("exponentialBackoff(%d) = %v, want %v", attempt, got, d)
		}
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{amqp091.ErrClosed, true},
		{fmt.Errorf("consume: %w", amqp091.ErrClosed), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("unknown event kind"), false},
	}
	for _, tt := range tests {
		if got := isConnectionError(tt.err); got != tt.want {
			t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestBreaker(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	b := newBreaker()
	b.now = func() time.Time { return now }

	for i := 0; i < maxFailures-1; i++ {
		b.failure()
	}
	if !b.allow() {
		t.Fatal("circuit opened before reaching the threshold")
	}
	b.failure()
	if b.allow() || b.current() != StateOpen {
		t.Fatal("circuit should be open after max failures")
	}

	now = now.Add(openTimeout)
	if b.allow() {
		t.Fatal("circuit should stay open until the timeout has passed")
	}
	now = now.Add(time.Second)
	if !b.allow() || b.current() != StateHalfOpen {
		t.Fatal("circuit should be half-open after the timeout")
	}

	b.failure()
	if b.current() != StateOpen {
		t.Fatal("a failed probe should reopen the circuit")
	}

	now = now.Add(openTimeout + time.Second)
	b.allow()
	b.success()
	if b.current() != StateClosed || b.failures != 0 {
		t.Fatalf("state = %d failures = %d after a successful probe", b.current(), b.failures)
	}
}

func TestPublishRefusedWhileOpen(t *testing.T) {
	c := &Client{exchange: "matador", queue: "transaction_events", breaker: newBreaker()}
	for i := 0; i < maxFailures; i++ {
		c.breaker.failure()
	}
	err := c.PublishTransactionEvent(context.Background(), NewTransactionEvent(EventCreated, 123, 1))
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	c := &Client{breaker: newBreaker()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.PublishTransactionEvent(ctx, NewTransactionEvent(EventCreated, 123, 1)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRoutingKey(t *testing.T) {
	for kind, want := range map[EventKind]string{
		EventCreated:   "transaction.created",
		EventCorrected: "transaction.corrected",
		EventDeleted:   "transaction.deleted",
	} {
		if got := RoutingKey(kind); got != want {
			t.Errorf("RoutingKey(%s) = %s", kind, got)
		}
	}
}

func TestCloseWithoutConnection(t *testing.T) {
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}

func TestNewTransactionEvent(t *testing.T) {
	msg := NewTransactionEvent(EventCorrected, 12345, 7)
	if msg.TransactionID != 12345 || msg.UserID != 7 || msg.Kind != EventCorrected {
		t.Errorf("unexpected event %+v", msg)
	}
	if msg.MessageID == "" {
		t.Error("MessageID should be set")
	}
	if other := NewTransactionEvent(EventCorrected, 12345, 7); other.MessageID == msg.MessageID {
		t.Error("MessageID should be unique per event")
	}
	if time.Since(msg.Timestamp) > time.Second {
		t.Error("Timestamp should be recent")
	}
}

func TestTransactionEventJSON(t *testing.T) {
	msg := &TransactionEvent{
		MessageID:     "0b6e4a1c-2d0b-4f6e-9a55-0a3c2e7f1d11",
		Kind:          EventDeleted,
		TransactionID: 42,
		UserID:        3,
		Timestamp:     time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	body, err := msg.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), `"kind":"deleted"`) {
		t.Errorf("unexpected JSON %s", body)
	}
	parsed, err := TransactionEventFromJSON(body)
	if err != nil {
		t.Fatal(err)
	}
	if *parsed != *msg {
		t.Errorf("decoded %+v, want %+v", parsed, msg)
	}
}

func TestTransactionEventFromJSONRejects(t *testing.T) {
	for name, body := range map[string]string{
		"bad id type":  `{"transaction_id": "x", "kind": "created"}`,
		"unknown kind": `{"transaction_id": 1, "kind": "archived"}`,
		"missing id":   `{"kind": "created"}`,
		"not json":     `nope`,
	} {
		if _, err := TransactionEventFromJSON([]byte(body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
