package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"transfer-backend/internal/models"
)

// GormBookingStore заказы в PostgreSQL
type GormBookingStore struct {
	db *gorm.DB
}

func NewGormBookingStore(db *gorm.DB) *GormBookingStore {
	return &GormBookingStore{db: db}
}

func (s *GormBookingStore) Create(ctx context.Context, b *models.Booking) error {
	if b.Version == 0 {
		b.Version = 1
	}
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return fmt.Errorf("ошибка при создании заказа: %w", err)
	}
	return nil
}

func (s *GormBookingStore) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	if err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка при получении заказа: %w", err)
	}
	return &b, nil
}

func (s *GormBookingStore) ConditionalUpdate(ctx context.Context, b *models.Booking) error {
	expected := b.Version
	next := b.Clone()
	next.Version = expected + 1
	next.UpdatedAt = time.Now()

	res := s.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND version = ?", b.ID, expected).
		Select("*").
		Omit("id", "order_number", "created_at").
		Updates(next)
	if res.Error != nil {
		return fmt.Errorf("ошибка при обновлении заказа: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Booking{}).Where("id = ?", b.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("ошибка при проверке заказа: %w", err)
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	b.Version = next.Version
	b.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *GormBookingStore) Find(ctx context.Context, f BookingFilter) ([]models.Booking, error) {
	q := s.db.WithContext(ctx).Model(&models.Booking{})
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.AssignmentType != "" {
		q = q.Where("assignment_type = ?", f.AssignmentType)
	}
	if f.Expired != nil {
		q = q.Where("is_expired = ?", *f.Expired)
	}
	if f.DriverID != nil {
		q = q.Where("driver_id = ?", *f.DriverID)
	}
	if f.Unassigned {
		q = q.Where("driver_id IS NULL")
	}
	if f.Published != nil {
		if *f.Published {
			q = q.Where("notifications_sent_at IS NOT NULL")
		} else {
			q = q.Where("notifications_sent_at IS NULL")
		}
	}
	if f.Paid != nil {
		q = q.Where("payment_paid = ?", *f.Paid)
	}
	if f.ReminderUnsent {
		q = q.Where("reminder_sent_at IS NULL")
	}

	var bookings []models.Booking
	if err := q.Order("scheduled_at ASC").Find(&bookings).Error; err != nil {
		return nil, fmt.Errorf("ошибка при поиске заказов: %w", err)
	}
	return bookings, nil
}

// GormPaymentStore платежи в PostgreSQL
type GormPaymentStore struct {
	db *gorm.DB
}

func NewGormPaymentStore(db *gorm.DB) *GormPaymentStore {
	return &GormPaymentStore{db: db}
}

func (s *GormPaymentStore) Create(ctx context.Context, p *models.Payment) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("ошибка при создании платежа: %w", err)
	}
	return nil
}

func (s *GormPaymentStore) FindBySession(ctx context.Context, sessionID string) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).First(&p, "session_id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("ошибка при получении платежа: %w", err)
	}
	return &p, nil
}

func (s *GormPaymentStore) MarkSucceeded(ctx context.Context, sessionID string, paidAt time.Time) (bool, error) {
	return s.transition(ctx, sessionID, map[string]interface{}{
		"status":     models.PaymentStatusSucceeded,
		"paid_at":    paidAt,
		"updated_at": time.Now(),
	})
}

func (s *GormPaymentStore) MarkFailed(ctx context.Context, sessionID, reason string) (bool, error) {
	return s.transition(ctx, sessionID, map[string]interface{}{
		"status":         models.PaymentStatusFailed,
		"failure_reason": reason,
		"updated_at":     time.Now(),
	})
}

// transition условный UPDATE ... WHERE status = 'pending'
func (s *GormPaymentStore) transition(ctx context.Context, sessionID string, fields map[string]interface{}) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("session_id = ? AND status = ?", sessionID, models.PaymentStatusPending).
		Updates(fields)
	if res.Error != nil {
		return false, fmt.Errorf("ошибка при обновлении платежа: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	if _, err := s.FindBySession(ctx, sessionID); err != nil {
		return false, err
	}
	return false, nil
}

// GormDriverDirectory водители из таблицы users
type GormDriverDirectory struct {
	db *gorm.DB
}

func NewGormDriverDirectory(db *gorm.DB) *GormDriverDirectory {
	return &GormDriverDirectory{db: db}
}

func (d *GormDriverDirectory) FindDriver(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := d.db.WithContext(ctx).
		Preload("DriverDocuments").
		Where("role = ?", models.RoleDriver).
		First(&u, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка при получении водителя: %w", err)
	}
	return &u, nil
}

func (d *GormDriverDirectory) FindDrivers(ctx context.Context, ids []uint) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []models.User
	err := d.db.WithContext(ctx).
		Preload("DriverDocuments").
		Where("role = ? AND id IN ?", models.RoleDriver, ids).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении водителей: %w", err)
	}
	return users, nil
}

func (d *GormDriverDirectory) AddDeviceToken(ctx context.Context, driverID uint, token string) error {
	res := d.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND NOT (? = ANY(COALESCE(device_tokens, '{}')))", driverID, token).
		Update("device_tokens", gorm.Expr("array_append(COALESCE(device_tokens, '{}'), ?)", token))
	if res.Error != nil {
		return fmt.Errorf("ошибка при сохранении токена устройства: %w", res.Error)
	}
	return nil
}

func (d *GormDriverDirectory) RemoveDeviceTokens(ctx context.Context, driverID uint, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&u, driverID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		kept := pq.StringArray(withoutTokens(u.DeviceTokens, tokens))
		return tx.Model(&u).Update("device_tokens", kept).Error
	})
}
