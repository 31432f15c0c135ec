package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	applog "budgetbook/internal/log"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type Client struct {
	url          string
	exchangeName string
	queueName    string
	logger       *applog.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

// NewClient dials the broker and declares a direct exchange, a durable
// queue, and a binding for every event type.
func NewClient(url, exchangeName, queueName string) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       applog.ForComponent(applog.ComponentAMQP),
	}
	if err := client.connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	c.conn, c.channel = conn, channel
	c.mu.Unlock()
	return nil
}

func setup(ch *amqp091.Channel, exchangeName, queueName string) error {
	err := ch.ExchangeDeclare(
		exchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	for _, key := range []EventType{EventProjectSync, EventInvitation} {
		if err := ch.QueueBind(queueName, string(key), exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue to %s: %w", key, err)
		}
	}
	return nil
}

// Publish sends the event with its type as routing key. Failures count
// towards the circuit breaker; while it is open, Publish fails fast.
func (c *Client) Publish(ctx context.Context, e *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish %s: %w", e.Type, ErrCircuitOpen)
	}

	body, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		c.recordFailure()
		return errors.New("publish: channel not open")
	}

	err = ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		string(e.Type), // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			go c.reconnect(context.Background())
		}
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	c.logger.DebugContext(ctx, "Published event",
		"type", e.Type,
		applog.FieldProjectID, e.ProjectID,
		"action", e.Action,
		applog.FieldCount, len(e.IDs))
	return nil
}

// Handler processes one event. Returning an error requeues the delivery.
type Handler func(ctx context.Context, e *Event) error

// Consume delivers events to handler until ctx is done. A lost connection is
// re-established with exponential backoff.
func (c *Client) Consume(ctx context.Context, handler Handler) error {
	for attempt := 0; ; attempt++ {
		err := c.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}

		wait := exponentialBackoff(attempt)
		c.logger.WarnContext(ctx, "Consumer lost connection, retrying",
			applog.FieldError, err,
			"attempt", attempt+1,
			"backoff", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if err := c.reconnect(ctx); err != nil {
			c.logger.ErrorContext(ctx, "Reconnect failed", applog.FieldError, err)
		} else {
			attempt = -1
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, handler Handler) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return errors.New("channel closed")
	}

	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "Started consuming events", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping event consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}

			e, err := EventFromJSON(delivery.Body)
			if err != nil {
				c.logger.ErrorContext(ctx, "Failed to decode event", applog.FieldError, err)
				delivery.Nack(false, false)
				continue
			}

			if err := handler(ctx, e); err != nil {
				c.logger.Failure(ctx, "Failed to handle event", err, applog.OpSync, e.ProjectID,
					"type", e.Type,
					"redelivered", delivery.Redelivered)
				// one retry, then drop; the periodic resync covers the rest
				delivery.Nack(false, !delivery.Redelivered)
				continue
			}

			delivery.Ack(false)
		}
	}
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.channel != nil && !c.channel.IsClosed() {
		c.mu.Unlock()
		return nil
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn, c.channel = nil, nil
	c.mu.Unlock()

	if err := c.connect(); err != nil {
		return err
	}
	c.recordSuccess()
	c.logger.InfoContext(ctx, "Reconnected to broker", "exchange", c.exchangeName)
	return nil
}

func (c *Client) isCircuitOpen() bool {
	switch atomic.LoadInt32(&c.state) {
	case StateOpen:
		c.mu.Lock()
		last := c.lastFailure
		c.mu.Unlock()
		if time.Since(last) > openTimeout {
			atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
			return false
		}
		return true
	default:
		return false
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel closed"} {
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
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
