package rabbit

import (
	"context"
	"errors"
	"time"

	"github.com/taskhive/taskhive/internal/errs"
	"github.com/taskhive/taskhive/internal/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one delivery body. A nil return acks the message; an
// error of kind Poison acks and drops it; anything else leaves the message
// unacked so broker redelivery (on restart or recovery) retries the full,
// idempotent step sequence. Redelivery is the retry mechanism; the consumer
// never requeues or retries in a loop itself.
type Handler func(ctx context.Context, body []byte) error

// Consumer binds one durable, service-owned queue to the topic exchange and
// processes deliveries serially: each message is fully handled, acked or left
// pending, before the next is taken.
type Consumer struct {
	url        string
	exchange   string
	queue      string
	routingKey string
	retryDelay time.Duration
	log        *zap.Logger
}

func NewConsumer(url, exchange, queue, routingKey string, retryDelay time.Duration, log *zap.Logger) *Consumer {
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}
	return &Consumer{
		url:        url,
		exchange:   exchange,
		queue:      queue,
		routingKey: routingKey,
		retryDelay: retryDelay,
		log:        log,
	}
}

// Run blocks until ctx is cancelled, redialing on the fixed delay whenever
// the connection cannot be established or is lost.
func (c *Consumer) Run(ctx context.Context, handler Handler) {
	for {
		if err := c.consume(ctx, handler); err != nil {
			c.log.Error("rabbit consume loop ended", zap.String("queue", c.queue), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *Consumer) consume(ctx context.Context, handler Handler) error {
	conn, ch, err := dial(c.url, c.exchange)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Durable named queue, created if absent; survives broker restarts.
	q, err := ch.QueueDeclare(
		c.queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return err
	}

	if err := ch.QueueBind(q.Name, c.routingKey, c.exchange, false, nil); err != nil {
		return err
	}

	// One unacked message at a time: deliveries are processed serially.
	if err := ch.Qos(1, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.Consume(
		q.Name, // queue
		"",     // consumer tag
		false,  // auto-ack off, we acknowledge manually
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return err
	}

	c.log.Info("rabbit consumer bound",
		zap.String("queue", q.Name),
		zap.String("routing_key", c.routingKey))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, d, handler)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, handler Handler) {
	err := handler(ctx, d.Body)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			c.log.Error("ack failed", zap.String("queue", c.queue), zap.Error(ackErr))
			return
		}
		metrics.EventsConsumed.WithLabelValues(c.queue, "acked").Inc()

	case errs.KindOf(err) == errs.Poison:
		// Poison messages are acked away so they can't loop on redelivery.
		c.log.Error("dropping poison message", zap.String("queue", c.queue), zap.Error(err))
		if ackErr := d.Ack(false); ackErr != nil {
			c.log.Error("ack failed", zap.String("queue", c.queue), zap.Error(ackErr))
			return
		}
		metrics.EventsConsumed.WithLabelValues(c.queue, "dropped").Inc()

	default:
		// Deliberately left pending: no ack, no immediate requeue. Broker
		// redelivery or operator intervention converges the state later.
		metrics.EventsConsumed.WithLabelValues(c.queue, "unacked").Inc()
		c.log.Error("handler failed, message left unacked",
			zap.String("queue", c.queue), zap.Error(err))
	}
}
