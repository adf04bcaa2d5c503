package rabbit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/taskhive/taskhive/internal/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// publishChannel is the slice of *amqp.Channel the publisher uses.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher emits persistent messages to a durable topic exchange. There is
// no transactional link to the caller's database commit and no outbox: if the
// channel is down or the publish fails, the event is lost and logged. That
// loss mode is part of the contract.
type Publisher struct {
	exchange string
	log      *zap.Logger

	mu sync.RWMutex
	ch publishChannel
}

func NewPublisher(exchange string, log *zap.Logger) *Publisher {
	return &Publisher{exchange: exchange, log: log}
}

// Connect dials the broker in the background, retrying on a fixed delay
// indefinitely. Service startup is never blocked on broker availability.
// On connection loss the channel is cleared and the dial loop resumes.
func (p *Publisher) Connect(ctx context.Context, url string, retryDelay time.Duration) {
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}

	go func() {
		for {
			conn, ch, err := dial(url, p.exchange)
			if err != nil {
				p.log.Error("rabbit connect failed", zap.Error(err))
			} else {
				p.setChannel(ch)
				p.log.Info("rabbit publisher connected", zap.String("exchange", p.exchange))

				closed := conn.NotifyClose(make(chan *amqp.Error, 1))
				select {
				case <-ctx.Done():
					_ = conn.Close()
					return
				case cerr := <-closed:
					p.setChannel(nil)
					p.log.Warn("rabbit connection lost", zap.Error(cerr))
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
		}
	}()
}

func (p *Publisher) setChannel(ch publishChannel) {
	p.mu.Lock()
	p.ch = ch
	p.mu.Unlock()
}

func (p *Publisher) channel() publishChannel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ch
}

// Publish marshals payload as JSON and publishes it persistent under the
// routing key. While disconnected it is a no-op that only logs; it does not
// retry or queue locally.
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) {
	ch := p.channel()
	if ch == nil {
		metrics.EventsPublished.WithLabelValues(routingKey, "dropped").Inc()
		p.log.Error("rabbit channel not established, event dropped",
			zap.String("routing_key", routingKey))
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(routingKey, "dropped").Inc()
		p.log.Error("marshal event payload", zap.String("routing_key", routingKey), zap.Error(err))
		return
	}

	err = ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		metrics.EventsPublished.WithLabelValues(routingKey, "failed").Inc()
		p.log.Error("publish event failed, event lost",
			zap.String("routing_key", routingKey), zap.Error(err))
		return
	}

	metrics.EventsPublished.WithLabelValues(routingKey, "published").Inc()
	p.log.Info("published event", zap.String("routing_key", routingKey))
}
