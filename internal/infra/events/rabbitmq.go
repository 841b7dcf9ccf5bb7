// Package events отправляет журнал проходов в RabbitMQ (topic exchange)
// для отчётов и табло. Источник правды: таблица access_events; очередь только копия.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Sender: транспорт сообщений.
type Sender interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *slog.Logger
	mu       sync.Mutex
}

func DialRabbitMQ(url, exchange string, log *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	log.Info("rabbitmq publisher connected", "exchange", exchange)
	return &RabbitMQ{conn: conn, channel: ch, exchange: exchange, log: log}, nil
}

func (p *RabbitMQ) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	})
}

func (p *RabbitMQ) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil {
		p.log.Warn("close rabbitmq channel", "err", err)
	}
	return p.conn.Close()
}

// Noop: когда rabbitmq.url пустой.
type Noop struct {
	log *slog.Logger
}

func NewNoop(log *slog.Logger) *Noop { return &Noop{log: log} }

func (n *Noop) Publish(_ context.Context, routingKey string, payload []byte) error {
	n.log.Debug("noop publish", "routing_key", routingKey, "size", len(payload))
	return nil
}

func (n *Noop) Close() error { return nil }
