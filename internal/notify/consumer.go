package notify

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"sitterlink/realtime/internal/models"
)

// Consumer reads reservation-update events from RabbitMQ and feeds them to
// the engine. Delivery is at least once; the engine documents what a
// redelivered event does.
type Consumer struct {
	channel *amqp.Channel
	queue   string
	engine  *Engine
	log     *logrus.Logger
}

// NewConsumer opens a channel on the connection and declares the durable
// queue.
func NewConsumer(conn *amqp.Connection, queue string, engine *Engine, log *logrus.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, err
	}
	return &Consumer{channel: ch, queue: queue, engine: engine, log: log}, nil
}

// Run consumes until the context is cancelled or the channel closes. Manual
// acknowledgment: malformed payloads are rejected without requeue, failed
// events are dropped with an error log (a dead-letter exchange can be bound
// to the queue at deployment), successes are acked. A failing event never
// crashes the loop.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	c.log.WithField("queue", c.queue).Info("notify: consumer started")

	for {
		select {
		case <-ctx.Done():
			return c.channel.Close()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var evt models.ReservationEvent
	if err := json.Unmarshal(d.Body, &evt); err != nil {
		c.log.WithError(err).Warn("notify: rejecting malformed queue event")
		_ = d.Nack(false, false)
		return
	}

	if _, err := c.engine.HandleReservationEvent(ctx, evt); err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"reservation_id": evt.ReservationID,
			"event_type":     evt.EventType,
		}).Error("notify: dropping failed queue event")
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}
