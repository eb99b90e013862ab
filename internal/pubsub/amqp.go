package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"transfer-backend/internal/notify"
)

// AMQPMirror дублирует каждый конверт в topic exchange. Ключ
// маршрутизации равен типу события, например booking.accepted.
type AMQPMirror struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	mu       sync.Mutex
}

func NewAMQPMirror(url, exchange string) (*AMQPMirror, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPMirror{conn: conn, ch: ch, exchange: exchange}, nil
}

func (m *AMQPMirror) Publish(ctx context.Context, env notify.Envelope) error {
	key, msg, err := publishing(env)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ch.PublishWithContext(ctx, m.exchange, key, false, false, msg)
}

func publishing(env notify.Envelope) (string, amqp.Publishing, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return "", amqp.Publishing{}, fmt.Errorf("marshal envelope: %w", err)
	}
	return string(env.Type), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID,
		Timestamp:    env.PublishedAt,
		Type:         string(env.Type),
		Headers: amqp.Table{
			"channel":    env.Channel,
			"booking_id": env.Payload.BookingID,
			"seq":        int64(env.Seq),
		},
		Body: body,
	}, nil
}

func (m *AMQPMirror) Close() error {
	if m.ch != nil {
		_ = m.ch.Close()
	}
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}
