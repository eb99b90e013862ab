package repository

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const orderSeqKey = "booking:order_seq"

// RedisOrderNumbers номера заказов из общего счетчика в Redis, чтобы
// несколько инстансов не выдали один номер дважды
type RedisOrderNumbers struct {
	client *redis.Client
}

func NewRedisOrderNumbers(client *redis.Client) *RedisOrderNumbers {
	return &RedisOrderNumbers{client: client}
}

func (r *RedisOrderNumbers) Next(ctx context.Context) (string, error) {
	seq, err := r.client.Incr(ctx, orderSeqKey).Result()
	if err != nil {
		return "", fmt.Errorf("ошибка при получении номера заказа: %w", err)
	}
	return FormatOrderNumber(seq), nil
}

const orderSeqName = "booking_order_seq"

// GormOrderNumbers номера из последовательности PostgreSQL
type GormOrderNumbers struct {
	db *gorm.DB
}

func NewGormOrderNumbers(ctx context.Context, db *gorm.DB) (*GormOrderNumbers, error) {
	if err := db.WithContext(ctx).Exec("CREATE SEQUENCE IF NOT EXISTS " + orderSeqName).Error; err != nil {
		return nil, fmt.Errorf("ошибка при создании последовательности номеров: %w", err)
	}
	return &GormOrderNumbers{db: db}, nil
}

func (g *GormOrderNumbers) Next(ctx context.Context) (string, error) {
	var seq int64
	if err := g.db.WithContext(ctx).Raw("SELECT nextval('" + orderSeqName + "')").Scan(&seq).Error; err != nil {
		return "", fmt.Errorf("ошибка при получении номера заказа: %w", err)
	}
	return FormatOrderNumber(seq), nil
}
