package messaging

import (
	"context"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"teamchat/internal/domain"
	"teamchat/internal/observability"
)

// GlobalPublisher is the part of the hub the consumer forwards task changes to
type GlobalPublisher interface {
	PublishGlobal(evt domain.Event, excludeConnID string) int
}

// TaskEventConsumer forwards task changes published by other instances (or by
// the task collaborator itself) to every local connection.
type TaskEventConsumer struct {
	rmq        *RabbitMQ
	hub        GlobalPublisher
	instanceID string
}

func NewTaskEventConsumer(rmq *RabbitMQ, hub GlobalPublisher) *TaskEventConsumer {
	return &TaskEventConsumer{
		rmq:        rmq,
		hub:        hub,
		instanceID: rmq.InstanceID(),
	}
}

// Start binds a private queue to the task exchange and consumes it until ctx
// is done or the broker closes the channel.
func (c *TaskEventConsumer) Start(ctx context.Context) error {
	queue, err := c.rmq.channel.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return err
	}

	if err := c.rmq.channel.QueueBind(
		queue.Name,       // queue name
		"",               // routing key
		c.rmq.Exchange(), // exchange
		false,
		nil,
	); err != nil {
		return err
	}

	msgs, err := c.rmq.channel.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return err
	}

	slog.Info("started consuming task changes",
		slog.String("queue", queue.Name),
		slog.String("exchange", c.rmq.Exchange()))

	go c.consume(ctx, msgs)
	return nil
}

func (c *TaskEventConsumer) consume(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping task change consumer")
			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Warn("task change consumer channel closed")
				return
			}
			c.handleDelivery(msg)
		}
	}
}

// handleDelivery reports whether the delivery was forwarded to the hub.
// Messages stamped with this instance's id were already delivered locally.
func (c *TaskEventConsumer) handleDelivery(msg amqp.Delivery) bool {
	if c.instanceID != "" && msg.AppId == c.instanceID {
		return false
	}

	var change domain.TaskChange
	if err := json.Unmarshal(msg.Body, &change); err != nil || len(change.Payload) == 0 {
		// Bare payloads from the task collaborator are forwarded as-is.
		if !json.Valid(msg.Body) {
			slog.Error("discarding malformed task change",
				slog.String("app_id", msg.AppId),
				slog.Int("body_size", len(msg.Body)))
			observability.TaskEventsRelayed.WithLabelValues("inbound", "error").Inc()
			return false
		}
		change = domain.TaskChange{Payload: json.RawMessage(msg.Body)}
	}

	delivered := c.hub.PublishGlobal(domain.Event{Type: domain.EventTaskChanged, Data: change}, "")
	observability.TaskEventsRelayed.WithLabelValues("inbound", "ok").Inc()

	slog.Debug("forwarded task change",
		slog.String("app_id", msg.AppId),
		slog.Int("delivered", delivered))
	return true
}
