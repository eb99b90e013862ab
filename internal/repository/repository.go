// Package repository хранит заказы, платежи и водителей. У каждого
// хранилища есть реализация на gorm, для заказов еще и на MongoDB, плюс
// in-memory версии для локального запуска и тестов.
package repository

import (
	"context"
	"errors"
	"time"

	"transfer-backend/internal/models"
)

var (
	// ErrNotFound запись не существует
	ErrNotFound = errors.New("запись не найдена")
	// ErrVersionConflict запись изменили между чтением и записью.
	// Вызывающий должен перечитать запись и повторить или отказаться.
	ErrVersionConflict = errors.New("конфликт версий записи")
	// ErrPaymentNotFound нет платежа с таким идентификатором сессии
	ErrPaymentNotFound = errors.New("платеж не найден")
)

// BookingFilter условие выборки заказов. Пустые поля не участвуют.
type BookingFilter struct {
	Statuses       []models.BookingStatus
	AssignmentType models.AssignmentType
	Expired        *bool
	DriverID       *uint
	Unassigned     bool
	Published      *bool // NotificationsSentAt заполнен
	Paid           *bool
	ReminderUnsent bool
}

// Match проверяет заказ на соответствие фильтру
func (f BookingFilter) Match(b *models.Booking) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if b.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.AssignmentType != "" && b.AssignmentType != f.AssignmentType {
		return false
	}
	if f.Expired != nil && b.IsExpired != *f.Expired {
		return false
	}
	if f.DriverID != nil && !b.AssignedTo(*f.DriverID) {
		return false
	}
	if f.Unassigned && b.DriverID != nil {
		return false
	}
	if f.Published != nil && (b.NotificationsSentAt != nil) != *f.Published {
		return false
	}
	if f.Paid != nil && b.PaymentPaid != *f.Paid {
		return false
	}
	if f.ReminderUnsent && b.ReminderSentAt != nil {
		return false
	}
	return true
}

// BookingStore хранилище заказов с оптимистичной блокировкой по полю Version
type BookingStore interface {
	Create(ctx context.Context, b *models.Booking) error
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	// ConditionalUpdate записывает b, только если версия в хранилище равна
	// b.Version. При успехе b.Version увеличивается на единицу, иначе
	// возвращается ErrVersionConflict или ErrNotFound.
	ConditionalUpdate(ctx context.Context, b *models.Booking) error
	Find(ctx context.Context, f BookingFilter) ([]models.Booking, error)
}

// PaymentStore хранилище платежей. Переходы статуса условные, поэтому
// параллельные подтверждения одного платежа меняют его ровно один раз.
type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	FindBySession(ctx context.Context, sessionID string) (*models.Payment, error)
	// MarkSucceeded переводит pending -> succeeded. false, если платеж уже не pending.
	MarkSucceeded(ctx context.Context, sessionID string, paidAt time.Time) (bool, error)
	// MarkFailed переводит pending -> failed. false, если платеж уже не pending.
	MarkFailed(ctx context.Context, sessionID, reason string) (bool, error)
}

// DriverDirectory справочник водителей с автомобилями и токенами устройств
type DriverDirectory interface {
	FindDriver(ctx context.Context, id uint) (*models.User, error)
	FindDrivers(ctx context.Context, ids []uint) ([]models.User, error)
	AddDeviceToken(ctx context.Context, driverID uint, token string) error
	RemoveDeviceTokens(ctx context.Context, driverID uint, tokens []string) error
}

// OrderNumbers выдает человекочитаемые номера заказов
type OrderNumbers interface {
	Next(ctx context.Context) (string, error)
}

func boolPtr(v bool) *bool { return &v }

// UnpublishedFilter оплаченные заказы, по которым еще не разосланы
// уведомления о создании
func UnpublishedFilter() BookingFilter {
	return BookingFilter{
		Statuses:  []models.BookingStatus{models.BookingStatusPending, models.BookingStatusAccepted},
		Published: boolPtr(false),
		Paid:      boolPtr(true),
	}
}

// LiveFilter заказы из общего списка
func LiveFilter() BookingFilter {
	return BookingFilter{
		Statuses:       []models.BookingStatus{models.BookingStatusPending},
		AssignmentType: models.AssignmentAuto,
		Expired:        boolPtr(false),
		Unassigned:     true,
		Published:      boolPtr(true),
	}
}
