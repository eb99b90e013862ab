package services

import (
	"context"
	"fmt"
	"time"

	"transfer-backend/internal/metrics"
	"transfer-backend/internal/models"
	"transfer-backend/internal/notify"
	"transfer-backend/internal/repository"
	"transfer-backend/internal/scheduler"
)

// Допуск на расхождение часов между таймером и ExpiresAt
const expiryTolerance = time.Second

// ExpiryService истечение окна на принятие автоназначаемых заказов
type ExpiryService struct {
	c      *core
	timers scheduler.Scheduler
}

// Schedule ставит таймер на ExpiresAt. Для неподходящего заказа
// ничего не делает.
func (e *ExpiryService) Schedule(b *models.Booking) bool {
	if !b.IsExpiryEligible() {
		return false
	}
	id := b.ID
	e.timers.Schedule(id, *b.ExpiresAt, func(ctx context.Context) {
		if _, err := e.Fire(ctx, id); err != nil {
			e.c.log.Error("ошибка при истечении заказа", "booking_id", id, "error", err)
		}
	})
	return true
}

func (e *ExpiryService) Cancel(id string) bool {
	return e.timers.Cancel(id)
}

// Fire помечает заказ истекшим, если он все еще в общем списке.
// Проверка делается в условной записи, так что принятие, пришедшее
// одновременно с таймером, не будет перетерто.
func (e *ExpiryService) Fire(ctx context.Context, id string) (bool, error) {
	ctx, span := e.c.startSpan(ctx, "booking.expire", id)

	current, err := e.c.find(ctx, id)
	if err != nil {
		finishSpan(span, err)
		metrics.TimersFired.WithLabelValues("expiry", "error").Inc()
		return false, err
	}
	recipients := e.c.liveRecipients(ctx, current)

	var early *models.Booking
	b, applied, err := e.c.update(ctx, id, func(b *models.Booking) bool {
		if !b.IsExpiryEligible() || b.ExpiryNotifiedAt != nil {
			return false
		}
		now := e.c.now()
		if b.ExpiresAt.After(now.Add(expiryTolerance)) {
			early = b
			return false
		}
		b.IsExpired = true
		b.ExpiredAt = timePtr(now)
		b.ExpiryNotifiedAt = timePtr(now)
		return true
	}, func(b *models.Booking) []notify.Message {
		p := e.c.payload(b)
		msgs := []notify.Message{toAdmin(notify.EventBookingExpired, p)}
		msgs = append(msgs, toLive(notify.EventBookingExpired, p, recipients)...)
		return append(msgs, toLive(notify.EventLiveBookingRemoved, p, recipients)...)
	})
	finishSpan(span, err)

	switch {
	case err != nil:
		metrics.TimersFired.WithLabelValues("expiry", "error").Inc()
		return false, fmt.Errorf("истечение заказа %s: %w", id, err)
	case applied:
		metrics.TimersFired.WithLabelValues("expiry", "applied").Inc()
		e.c.log.Info("заказ истек без принятия", "booking_id", id, "order_number", b.OrderNumber)
	case early != nil:
		// Срок сдвинули, а таймер остался от старого: перепланировать
		metrics.TimersFired.WithLabelValues("expiry", "rescheduled").Inc()
		e.Schedule(early)
	default:
		metrics.TimersFired.WithLabelValues("expiry", "skipped").Inc()
		e.c.log.Debug("таймер истечения пропущен, заказ уже не в общем списке", "booking_id", id)
	}
	return applied, nil
}

// Recover заново ставит таймеры для заказов общего списка. Просроченные
// за время простоя истекают сразу.
func (e *ExpiryService) Recover(ctx context.Context) (int, error) {
	bookings, err := e.c.store.Find(ctx, repository.LiveFilter())
	if err != nil {
		return 0, fmt.Errorf("поиск заказов для таймеров истечения: %w", err)
	}
	n := 0
	for i := range bookings {
		if e.Schedule(&bookings[i]) {
			n++
		}
	}
	return n, nil
}
