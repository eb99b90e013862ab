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

// ReminderService напоминание водителю за lead до подачи
type ReminderService struct {
	c      *core
	timers scheduler.Scheduler
	lead   time.Duration
}

func remindable(b *models.Booking) bool {
	return b.Status == models.BookingStatusAccepted && b.DriverID != nil && b.ReminderSentAt == nil
}

// Schedule ставит напоминание, если до поездки не меньше lead. Ровно
// lead до подачи означает напоминание сразу.
func (r *ReminderService) Schedule(b *models.Booking) bool {
	if !remindable(b) {
		return false
	}
	fireAt := b.ScheduledAt.Add(-r.lead)
	if fireAt.Before(r.c.now()) {
		return false
	}
	r.schedule(b.ID, fireAt)
	return true
}

func (r *ReminderService) schedule(id string, fireAt time.Time) {
	r.timers.Schedule(id, fireAt, func(ctx context.Context) {
		if _, err := r.Fire(ctx, id); err != nil {
			r.c.log.Error("ошибка при отправке напоминания", "booking_id", id, "error", err)
		}
	})
}

func (r *ReminderService) Cancel(id string) bool {
	return r.timers.Cancel(id)
}

// Fire отправляет напоминание один раз. Повторно не планируется.
func (r *ReminderService) Fire(ctx context.Context, id string) (bool, error) {
	ctx, span := r.c.startSpan(ctx, "booking.remind", id)

	b, applied, err := r.c.update(ctx, id, func(b *models.Booking) bool {
		if !remindable(b) {
			return false
		}
		b.ReminderSentAt = timePtr(r.c.now())
		return true
	}, func(b *models.Booking) []notify.Message {
		r.c.notifier.Push(notify.PushRequest{
			BookingID: b.ID,
			DriverIDs: []uint{*b.DriverID},
			Title:     "Напоминание о поездке",
			Body:      tripSummary(b),
			Data:      pushData(b, notify.EventBookingReminder),
		})
		return []notify.Message{toDriver(*b.DriverID, notify.EventBookingReminder, r.c.payload(b))}
	})
	finishSpan(span, err)

	switch {
	case err != nil:
		metrics.TimersFired.WithLabelValues("reminder", "error").Inc()
		return false, fmt.Errorf("напоминание по заказу %s: %w", id, err)
	case applied:
		metrics.TimersFired.WithLabelValues("reminder", "applied").Inc()
		r.c.log.Info("напоминание отправлено водителю", "booking_id", id, "driver_id", *b.DriverID)
	default:
		metrics.TimersFired.WithLabelValues("reminder", "skipped").Inc()
	}
	return applied, nil
}

// Recover заново ставит напоминания по принятым заказам. Если момент
// напоминания прошел, а поездка еще впереди, напоминание уходит сразу.
func (r *ReminderService) Recover(ctx context.Context) (int, error) {
	bookings, err := r.c.store.Find(ctx, repository.BookingFilter{
		Statuses:       []models.BookingStatus{models.BookingStatusAccepted},
		ReminderUnsent: true,
	})
	if err != nil {
		return 0, fmt.Errorf("поиск заказов для напоминаний: %w", err)
	}

	now := r.c.now()
	n := 0
	for i := range bookings {
		b := &bookings[i]
		if !remindable(b) || !b.ScheduledAt.After(now) {
			continue
		}
		fireAt := b.ScheduledAt.Add(-r.lead)
		if fireAt.Before(now) {
			fireAt = now
		}
		r.schedule(b.ID, fireAt)
		n++
	}
	return n, nil
}
