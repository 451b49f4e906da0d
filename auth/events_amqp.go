package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AccountCreatedRoutingKey is the routing key of account creation messages.
const AccountCreatedRoutingKey = "account.created"

const publishTimeout = 5 * time.Second

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPEvents publishes account events to a durable topic exchange.
type AMQPEvents struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	pub      publisher
	exchange string
}

func NewAMQPEvents(url, exchange string) (*AMQPEvents, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}

	return &AMQPEvents{conn: conn, channel: ch, pub: ch, exchange: exchange}, nil
}

func (e *AMQPEvents) AccountCreated(ctx context.Context, acc *Account) error {
	body, err := json.Marshal(newAccountCreatedMessage(acc))
	if err != nil {
		return fmt.Errorf("failed to marshal account event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	e.mu.Lock()
	defer e.mu.Unlock()

	err = e.pub.PublishWithContext(ctx, e.exchange, AccountCreatedRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    string(acc.ID),
		Timestamp:    acc.CreatedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish account event: %w", err)
	}
	return nil
}

func (e *AMQPEvents) Close() error {
	if e.channel != nil {
		if err := e.channel.Close(); err != nil {
			return err
		}
	}
	if e.conn != nil {
		return e.conn.Close()
	}
	return nil
}
