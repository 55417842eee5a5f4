package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

const NotificationsExchange = "notifications_fanout"

// AMQP publishes notifications to a durable fanout exchange for downstream consumers.
type AMQP struct {
	conn *amqp.Connection
	mu   sync.Mutex
	ch   *amqp.Channel
}

func DialAMQP(url string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		NotificationsExchange, // name
		"fanout",              // type
		true,                  // durable
		false,                 // auto-deleted
		false,                 // internal
		false,                 // no-wait
		nil,                   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	return &AMQP{conn: conn, ch: ch}, nil
}

func (a *AMQP) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("amqp notify: marshal: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	a.mu.Lock()
	defer a.mu.Unlock()

	err = a.ch.PublishWithContext(ctx, NotificationsExchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.At,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp notify: publish: %w", err)
	}
	return nil
}

func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ch != nil {
		a.ch.Close()
	}
	return a.conn.Close()
}
