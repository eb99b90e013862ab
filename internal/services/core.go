package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"transfer-backend/internal/matching"
	"transfer-backend/internal/models"
	"transfer-backend/internal/notify"
	"transfer-backend/internal/repository"
)

// Notifier очередь уведомлений. Оба метода не блокируются.
type Notifier interface {
	Publish(msgs ...notify.Message) []notify.Envelope
	Push(req notify.PushRequest)
}

// Presence источник подключенных водителей
type Presence interface {
	OnlineDrivers(ctx context.Context) ([]uint, error)
}

// Сколько раз срабатывание таймера или внутренний поток перечитывает
// заказ после конфликта версий
const maxConflictRetries = 3

const lockStripes = 64

// stripedLock сериализует запись и постановку уведомлений одного заказа,
// чтобы события в канале шли в порядке переходов
type stripedLock struct {
	stripes [lockStripes]sync.Mutex
}

func (l *stripedLock) lock(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}

// effects выполняется после успешной записи, под блокировкой заказа.
// Тут отменяются и ставятся таймеры и собираются сообщения.
type effects func(b *models.Booking) []notify.Message

// core общие зависимости машины состояний и таймерных сервисов
type core struct {
	store    repository.BookingStore
	drivers  repository.DriverDirectory
	notifier Notifier
	presence Presence
	locks    stripedLock
	now      func() time.Time
	log      *slog.Logger
	tracer   trace.Tracer
}

func (c *core) find(ctx context.Context, id string) (*models.Booking, error) {
	b, err := c.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("чтение заказа %s: %w", id, err)
	}
	return b, nil
}

// commit записывает next с проверкой версии и ставит в очередь
// уведомления. Уведомления уходят только после записи.
func (c *core) commit(ctx context.Context, next *models.Booking, after effects) error {
	unlock := c.locks.lock(next.ID)
	defer unlock()

	next.UpdatedAt = c.now()
	if err := c.store.ConditionalUpdate(ctx, next); err != nil {
		return err
	}
	if after != nil {
		if msgs := after(next); len(msgs) > 0 {
			c.notifier.Publish(msgs...)
		}
	}
	return nil
}

// update перечитывает заказ и повторяет запись при конфликте версий.
// mutate возвращает false, если заказ больше не подходит, тогда ничего
// не пишется. Только для внутренних потоков: таймеры, оплата.
func (c *core) update(ctx context.Context, id string, mutate func(b *models.Booking) bool, after effects) (*models.Booking, bool, error) {
	for attempt := 1; ; attempt++ {
		b, err := c.find(ctx, id)
		if err != nil {
			return nil, false, err
		}
		next := b.Clone()
		if !mutate(next) {
			return b, false, nil
		}
		err = c.commit(ctx, next, after)
		if err == nil {
			return next, true, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) || attempt >= maxConflictRetries {
			return nil, false, err
		}
		c.log.Debug("конфликт версий, повтор", "booking_id", id, "attempt", attempt)
	}
}

// liveRecipients подключенные водители с подходящим автомобилем, не
// отказавшиеся от заказа. Пустой, но не nil срез: широковещательное
// событие без получателей не доставляется никому.
func (c *core) liveRecipients(ctx context.Context, b *models.Booking) []uint {
	recipients := []uint{}
	if c.presence == nil {
		return recipients
	}
	online, err := c.presence.OnlineDrivers(ctx)
	if err != nil {
		c.log.Warn("не удалось получить подключенных водителей", "booking_id", b.ID, "error", err)
		return recipients
	}
	if len(online) == 0 {
		return recipients
	}
	drivers, err := c.drivers.FindDrivers(ctx, online)
	if err != nil {
		c.log.Warn("не удалось загрузить водителей для рассылки", "booking_id", b.ID, "error", err)
		return recipients
	}
	for _, id := range matching.IDs(matching.Eligible(drivers, online, b.Category)) {
		if !b.RejectedByDriver(id) {
			recipients = append(recipients, id)
		}
	}
	return recipients
}

func (c *core) payload(b *models.Booking) notify.Payload {
	return notify.NewPayload(b, c.now())
}

func (c *core) startSpan(ctx context.Context, name, bookingID string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(attributeBookingID(bookingID)))
}

func attributeBookingID(id string) attribute.KeyValue {
	return attribute.String("booking.id", id)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func toAdmin(typ notify.EventType, p notify.Payload) notify.Message {
	return notify.Message{Channel: notify.ChannelAdmin, Type: typ, Payload: p}
}

func toDriver(id uint, typ notify.EventType, p notify.Payload) notify.Message {
	return notify.Message{Channel: notify.DriverChannel(id), Type: typ, Payload: p}
}

func toLive(typ notify.EventType, p notify.Payload, recipients []uint) []notify.Message {
	if len(recipients) == 0 {
		return nil
	}
	return []notify.Message{{Channel: notify.ChannelDrivers, Type: typ, Recipients: recipients, Payload: p}}
}

func pushData(b *models.Booking, typ notify.EventType) map[string]string {
	return map[string]string{
		"booking_id":   b.ID,
		"order_number": b.OrderNumber,
		"type":         string(typ),
	}
}

func tripSummary(b *models.Booking) string {
	return fmt.Sprintf("%s: %s → %s, %s", b.OrderNumber, b.Origin, b.Destination, b.ScheduledAt.Format("02.01 15:04"))
}

func timePtr(t time.Time) *time.Time { return &t }
