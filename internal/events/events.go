// Package events publishes entity change notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pragrisk/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Op string

const (
	OpCreate  Op = "create"
	OpReplace Op = "replace"
	OpPatch   Op = "patch"
	OpDelete  Op = "delete"
)

// ChangeEvent describes one completed store mutation. Entity is nil for
// deletes.
type ChangeEvent struct {
	Kind       models.Kind     `json:"kind"`
	ID         string          `json:"id"`
	Op         Op              `json:"op"`
	Entity     json.RawMessage `json:"entity,omitempty"`
	Degraded   bool            `json:"degraded"`
	OccurredAt time.Time       `json:"occurredAt"`
}

func (e ChangeEvent) RoutingKey() string {
	return fmt.Sprintf("pragrisk.%s.%s", e.Kind, e.Op)
}

type Publisher interface {
	Publish(ctx context.Context, e ChangeEvent) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, ChangeEvent) error { return nil }
func (Nop) Close() error                               { return nil }

// AMQPPublisher sends events to a topic exchange, one routing key per kind
// and operation.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e ChangeEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		e.RoutingKey(),
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    e.OccurredAt,
			DeliveryMode: amqp.Persistent,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	_ = p.channel.Close()
	return p.conn.Close()
}
