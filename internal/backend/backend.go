// Package backend builds the ledger store and the optional event publisher
// selected by configuration.
package backend

import (
	"errors"
	"fmt"

	"matador/internal/config"
	"matador/internal/ledger"
	"matador/internal/services"
)

// Type names a ledger store implementation.
type Type string

const (
	SQLiteBackend Type = "sqlite"
	MemoryBackend Type = "memory"
)

func (t Type) valid() bool {
	return t == SQLiteBackend || t == MemoryBackend
}

// Config selects the store and, when AMQPURL is set, the event broker.
type Config struct {
	Type         Type
	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// FromAppConfig picks the backend settings out of the application config.
func FromAppConfig(app *config.Config) (Config, error) {
	if app == nil {
		return Config{}, errors.New("app config is nil")
	}
	cfg := Config{
		Type:         Type(app.DataBackend),
		SQLiteDBPath: app.SQLiteDBPath,
		AMQPURL:      app.AMQPURL,
		AMQPExchange: app.AMQPExchange,
		AMQPQueue:    app.AMQPQueue,
	}
	return cfg, cfg.Validate()
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if !c.Type.valid() {
		errs = append(errs, fmt.Errorf("unknown backend %q (valid: %s, %s)", c.Type, SQLiteBackend, MemoryBackend))
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		errs = append(errs, errors.New("sqlite backend needs SQLITE_DB_PATH"))
	}
	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		errs = append(errs, errors.New("AMQP_URL is set but AMQP_EXCHANGE or AMQP_QUEUE is empty"))
	}
	return errors.Join(errs...)
}

// Result is a ready backend. Publisher is nil when events are disabled or
// the broker was unreachable at startup. Cleanup closes everything.
type Result struct {
	Store     ledger.Store
	Publisher services.EventPublisher
	Cleanup   func() error
}
