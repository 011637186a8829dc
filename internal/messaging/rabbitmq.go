package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"teamchat/internal/domain"
)

// DefaultTaskExchange is the fanout exchange task changes are relayed through
const DefaultTaskExchange = "collab.tasks"

const (
	retryInitialBackoff = 500 * time.Millisecond
	retryMaxBackoff     = 10 * time.Second
)

// RabbitMQ relays task changes between server instances over a fanout exchange.
// Every published message carries the instance id as AppId so a consumer can
// skip its own messages.
type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	instanceID string
	publishMu  sync.Mutex
}

// dial is swapped in tests
var dial = NewRabbitMQ

func NewRabbitMQ(url, exchange, instanceID string) (*RabbitMQ, error) {
	if exchange == "" {
		exchange = DefaultTaskExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   exchange,
		instanceID: instanceID,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// NewRabbitMQWithRetry dials until the broker accepts the connection or ctx is
// done. The backoff doubles from retryInitialBackoff up to retryMaxBackoff.
func NewRabbitMQWithRetry(ctx context.Context, url, exchange, instanceID string) (*RabbitMQ, error) {
	backoff := retryInitialBackoff
	for attempt := 1; ; attempt++ {
		rmq, err := dial(url, exchange, instanceID)
		if err == nil {
			return rmq, nil
		}

		slog.Warn("rabbitmq not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempt, err)
		case <-timer.C:
		}

		backoff *= 2
		if backoff > retryMaxBackoff {
			backoff = retryMaxBackoff
		}
	}
}

func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		r.exchange, // name
		"fanout",   // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	); err != nil {
		return fmt.Errorf("failed to declare task exchange: %w", err)
	}

	slog.Info("rabbitmq setup completed successfully",
		slog.String("exchange", r.exchange))
	return nil
}

// Exchange returns the name of the declared fanout exchange
func (r *RabbitMQ) Exchange() string {
	return r.exchange
}

// InstanceID returns the AppId stamped on published messages
func (r *RabbitMQ) InstanceID() string {
	return r.instanceID
}

// PublishTaskChange sends change to every instance bound to the exchange
func (r *RabbitMQ) PublishTaskChange(ctx context.Context, change domain.TaskChange) error {
	body, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal task change: %w", err)
	}

	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			AppId:        r.instanceID,
			Timestamp:    time.Now(),
			Body:         body,
			DeliveryMode: amqp.Transient,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish task change: %w", err)
	}

	slog.Debug("published task change",
		slog.String("exchange", r.exchange),
		slog.String("actor_id", change.ActorID))
	return nil
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
