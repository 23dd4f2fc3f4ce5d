package backend

import (
	"context"
	"errors"
	"fmt"

	"matador/internal/amqp"
	"matador/internal/ledger"
	"matador/internal/ledger/memory"
	"matador/internal/log"
	"matador/internal/storage"
)

type Factory struct {
	logger *log.Logger
	dial   func(url, exchange, queue string) (*amqp.Client, error)
}

// NewFactory returns a factory dialing RabbitMQ. A nil logger uses the
// default configuration.
func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Factory{
		logger: logger.WithComponent(log.ComponentBackend),
		dial:   amqp.NewClient,
	}
}

func (f *Factory) CreateBackend(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := f.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res := &Result{Store: store, Cleanup: store.Close}
	if cfg.AMQPURL == "" {
		f.logger.InfoContext(ctx, "AMQP_URL not set, transaction events disabled")
		return res, nil
	}

	// A broker outage must not keep the bot from answering.
	client, err := f.dial(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		f.logger.WarnContext(ctx, "AMQP unavailable, continuing without transaction events", log.FieldError, err)
		return res, nil
	}
	f.logger.InfoContext(ctx, "Publishing transaction events", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	res.Publisher = client
	res.Cleanup = func() error { return errors.Join(client.Close(), store.Close()) }
	return res, nil
}

func (f *Factory) openStore(ctx context.Context, cfg Config) (ledger.Store, error) {
	if cfg.Type == MemoryBackend {
		f.logger.WarnContext(ctx, "Using in-memory ledger, data is lost on restart")
		return memory.New(), nil
	}
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}
	f.logger.InfoContext(ctx, "Using SQLite ledger", "db_path", cfg.SQLiteDBPath)
	return repo, nil
}
