// Package pubsub доставляет конверты между экземплярами сервиса (redis)
// и зеркалирует их во внешнюю шину событий (AMQP).
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-redis/redis/v8"

	"transfer-backend/internal/notify"
)

const DefaultRedisPrefix = "rt:"

// RedisRelay публикует конверты в redis, а подписка на всех экземплярах
// передает их в локальный хаб. Так водитель, подключенный к любому
// экземпляру, получает события заказа, изменённого на другом.
type RedisRelay struct {
	client *redis.Client
	prefix string
	local  notify.Publisher
	log    *slog.Logger
}

func NewRedisRelay(client *redis.Client, local notify.Publisher, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{
		client: client,
		prefix: DefaultRedisPrefix,
		local:  local,
		log:    logger.With("component", "redis_relay"),
	}
}

func (r *RedisRelay) topic(channel string) string {
	return r.prefix + channel
}

// Publish отправляет конверт в redis канал rt:<канал>
func (r *RedisRelay) Publish(ctx context.Context, env notify.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.topic(env.Channel), data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", env.Channel, err)
	}
	return nil
}

// Run слушает все каналы rt:* до отмены ctx
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	r.log.Info("подписка на realtime каналы redis", "pattern", r.prefix+"*")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := r.deliver(ctx, msg.Channel, msg.Payload); err != nil {
				r.log.Error("не удалось передать сообщение из redis в хаб", "channel", msg.Channel, "error", err)
			}
		}
	}
}

func (r *RedisRelay) deliver(ctx context.Context, topic, payload string) error {
	var env notify.Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	if want := strings.TrimPrefix(topic, r.prefix); env.Channel != want {
		return fmt.Errorf("channel mismatch: topic %s, envelope %s", want, env.Channel)
	}
	return r.local.Publish(ctx, env)
}
