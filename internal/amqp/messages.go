package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind names what happened to a transaction.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventCorrected EventKind = "corrected"
	EventDeleted   EventKind = "deleted"
)

// TransactionEvent is a lightweight notification. It carries only ids; the
// worker reads the current row from the database.
type TransactionEvent struct {
	MessageID     string    `json:"message_id"`
	Kind          EventKind `json:"kind"`
	TransactionID int64     `json:"transaction_id"`
	UserID        int64     `json:"user_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTransactionEvent stamps a fresh message id and the current time.
func NewTransactionEvent(kind EventKind, transactionID, userID int64) *TransactionEvent {
	return &TransactionEvent{
		MessageID:     uuid.NewString(),
		Kind:          kind,
		TransactionID: transactionID,
		UserID:        userID,
		Timestamp:     time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionEventFromJSON decodes and validates a message body.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var msg TransactionEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Kind {
	case EventCreated, EventCorrected, EventDeleted:
	default:
		return nil, fmt.Errorf("unknown event kind %q", msg.Kind)
	}
	if msg.TransactionID <= 0 {
		return nil, fmt.Errorf("invalid transaction id %d", msg.TransactionID)
	}
	return &msg, nil
}
