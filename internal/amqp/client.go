// Package amqp carries transaction lifecycle events from the bot to the
// Sheets worker over RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"matador/internal/log"
)

const (
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second

	routingPrefix  = "transaction."
	bindingPattern = routingPrefix + "*"
)

// Client publishes to a topic exchange with routing key
// "transaction.<kind>" and consumes from one durable queue bound to all
// kinds.
type Client struct {
	url      string
	exchange string
	queue    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	breaker *breaker
}

func NewClient(url, exchange, queue string) (*Client, error) {
	c := &Client{url: url, exchange: exchange, queue: queue, breaker: newBreaker()}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// RoutingKey is the key events of kind are published under.
func RoutingKey(kind EventKind) string {
	return routingPrefix + string(kind)
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(ch, c.exchange, c.queue); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn, c.channel = conn, ch
	c.mu.Unlock()
	return nil
}

func declareTopology(ch *amqp091.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, bindingPattern, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}
	return nil
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	open := c.conn != nil && !c.conn.IsClosed()
	c.mu.Unlock()
	if open {
		return nil
	}
	log.FromContext(ctx).WithComponent(log.ComponentAMQP).WarnContext(ctx, "AMQP connection lost, reconnecting", "exchange", c.exchange)
	return c.connect()
}

// PublishTransactionEvent publishes one persistent event. It is refused
// while the circuit is open.
func (c *Client) PublishTransactionEvent(ctx context.Context, event *TransactionEvent) error {
	if !c.breaker.allow() {
		return fmt.Errorf("publish %s event: %w", event.Kind, ErrCircuitOpen)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := c.ensureConnected(ctx); err != nil {
		c.breaker.failure()
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()

	err = ch.PublishWithContext(pubCtx, c.exchange, RoutingKey(event.Kind), false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.MessageID,
		Type:         string(event.Kind),
		Timestamp:    event.Timestamp,
		Body:         body,
	})
	if err != nil {
		if isConnectionError(err) {
			c.breaker.failure()
		}
		return fmt.Errorf("publish %s event: %w", event.Kind, err)
	}
	c.breaker.success()

	log.FromContext(ctx).WithComponent(log.ComponentAMQP).DebugContext(ctx, "Transaction event published",
		"message_id", event.MessageID, log.FieldTransactionID, event.TransactionID, "routing_key", RoutingKey(event.Kind))
	return nil
}

// ConsumeTransactionEvents delivers events to handler until ctx ends.
// Undecodable bodies are dropped, handler errors requeue the delivery, and a
// lost connection is redialed with exponential backoff.
func (c *Client) ConsumeTransactionEvents(ctx context.Context, handler func(context.Context, *TransactionEvent) error) error {
	logger := log.FromContext(ctx).WithComponent(log.ComponentAMQP)
	for attempt := 0; ; attempt++ {
		err := c.consume(ctx, logger, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}
		wait := exponentialBackoff(attempt)
		logger.WarnContext(ctx, "AMQP consumer interrupted, retrying", log.FieldError, err, "backoff", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if err := c.connect(); err != nil {
			logger.ErrorContext(ctx, "AMQP reconnect failed", log.FieldError, err)
			continue
		}
		attempt = -1
	}
}

func (c *Client) consume(ctx context.Context, logger *log.Logger, handler func(context.Context, *TransactionEvent) error) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return amqp091.ErrClosed
	}

	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	logger.InfoContext(ctx, "Consuming transaction events", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return amqp091.ErrClosed
			}
			c.handle(ctx, logger, d, handler)
		}
	}
}

func (c *Client) handle(ctx context.Context, logger *log.Logger, d amqp091.Delivery, handler func(context.Context, *TransactionEvent) error) {
	event, err := TransactionEventFromJSON(d.Body)
	if err != nil {
		logger.ErrorContext(ctx, "Dropping undecodable event", log.FieldError, err, "routing_key", d.RoutingKey)
		_ = d.Nack(false, false)
		return
	}
	if err := handler(ctx, event); err != nil {
		logger.ErrorContext(ctx, "Event handler failed, requeueing", log.FieldError, err,
			"message_id", event.MessageID, log.FieldTransactionID, event.TransactionID, "redelivered", d.Redelivered)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
	logger.DebugContext(ctx, "Transaction event processed",
		"message_id", event.MessageID, "kind", event.Kind, log.FieldTransactionID, event.TransactionID)
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	return min(time.Second<<attempt, maxBackoff)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection refused", "connection closed", "EOF", "broken pipe", "use of closed network connection", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		_ = c.channel.Close()
		c.channel = nil
	}
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
