package models

import (
	"time"

	"github.com/lib/pq"
)

type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"     // Ожидает водителя
	BookingStatusAccepted   BookingStatus = "accepted"    // Принято водителем
	BookingStatusStarted    BookingStatus = "started"     // Водитель выехал
	BookingStatusPickedUp   BookingStatus = "picked_up"   // Пассажир в машине
	BookingStatusDroppedOff BookingStatus = "dropped_off" // Пассажир высажен
	BookingStatusCompleted  BookingStatus = "completed"   // Завершено
	BookingStatusRejected   BookingStatus = "rejected"    // Отклонено водителем
	BookingStatusCancelled  BookingStatus = "cancelled"   // Отменено оператором
)

// IsTerminal сообщает, что из статуса больше нет переходов
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusCompleted, BookingStatusRejected, BookingStatusCancelled:
		return true
	}
	return false
}

// Next возвращает следующий шаг поездки для водителя
func (s BookingStatus) Next() (BookingStatus, bool) {
	switch s {
	case BookingStatusAccepted:
		return BookingStatusStarted, true
	case BookingStatusStarted:
		return BookingStatusPickedUp, true
	case BookingStatusPickedUp:
		return BookingStatusDroppedOff, true
	case BookingStatusDroppedOff:
		return BookingStatusCompleted, true
	}
	return "", false
}

type AssignmentType string

const (
	AssignmentNone  AssignmentType = "none"
	AssignmentAuto  AssignmentType = "auto"  // Рассылка всем подходящим водителям
	AssignmentAdmin AssignmentType = "admin" // Назначает оператор
)

// Booking представляет заказ трансфера
type Booking struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(36)" bson:"_id"`
	OrderNumber string `json:"order_number" gorm:"uniqueIndex;not null;<-:create" bson:"order_number"`

	Origin        string          `json:"origin" gorm:"not null" bson:"origin"`
	Destination   string          `json:"destination" gorm:"not null" bson:"destination"`
	ScheduledAt   time.Time       `json:"scheduled_at" gorm:"not null;index" bson:"scheduled_at"`
	ReturnAt      *time.Time      `json:"return_at,omitempty" bson:"return_at,omitempty"`
	Passengers    int             `json:"passengers" gorm:"not null" bson:"passengers"`
	DistanceKm    float64         `json:"distance_km" bson:"distance_km"`
	Category      VehicleCategory `json:"category" gorm:"type:varchar(20);not null" bson:"category"`
	CategoryLabel string          `json:"category_label" bson:"category_label"`

	Price       float64    `json:"price" gorm:"not null" bson:"price"`
	DriverPrice float64    `json:"driver_price" bson:"driver_price"`
	Commission  float64    `json:"commission" bson:"commission"`
	PaymentPaid bool       `json:"payment_paid" gorm:"default:false" bson:"payment_paid"`
	PaidAt      *time.Time `json:"paid_at,omitempty" bson:"paid_at,omitempty"`

	AssignmentType AssignmentType `json:"assignment_type" gorm:"type:varchar(10);default:'none';index" bson:"assignment_type"`
	DriverID       *uint          `json:"driver_id,omitempty" gorm:"index" bson:"driver_id,omitempty"`
	RejectedBy     pq.Int64Array  `json:"rejected_by,omitempty" gorm:"type:bigint[]" bson:"rejected_by,omitempty"`
	RejectReason   string         `json:"reject_reason,omitempty" gorm:"default:''" bson:"reject_reason,omitempty"`
	CancelReason   string         `json:"cancel_reason,omitempty" gorm:"default:''" bson:"cancel_reason,omitempty"`

	Status BookingStatus `json:"status" gorm:"type:varchar(20);default:'pending';index" bson:"status"`

	ExpiresAt *time.Time `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	IsExpired bool       `json:"is_expired" gorm:"default:false" bson:"is_expired"`
	ExpiredAt *time.Time `json:"expired_at,omitempty" bson:"expired_at,omitempty"`

	// Флаги идемпотентности уведомлений, по одному на категорию
	NotificationsSentAt *time.Time `json:"notifications_sent_at,omitempty" bson:"notifications_sent_at,omitempty"`
	ExpiryNotifiedAt    *time.Time `json:"expiry_notified_at,omitempty" bson:"expiry_notified_at,omitempty"`
	ReminderSentAt      *time.Time `json:"reminder_sent_at,omitempty" bson:"reminder_sent_at,omitempty"`

	AcceptedAt   *time.Time `json:"accepted_at,omitempty" bson:"accepted_at,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty" bson:"started_at,omitempty"`
	PickedUpAt   *time.Time `json:"picked_up_at,omitempty" bson:"picked_up_at,omitempty"`
	DroppedOffAt *time.Time `json:"dropped_off_at,omitempty" bson:"dropped_off_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`

	Version   int64     `json:"version" gorm:"not null;default:1" bson:"version"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Clone возвращает копию, которую можно менять без влияния на оригинал
func (b *Booking) Clone() *Booking {
	c := *b
	if b.RejectedBy != nil {
		c.RejectedBy = append(pq.Int64Array(nil), b.RejectedBy...)
	}
	if b.DriverID != nil {
		id := *b.DriverID
		c.DriverID = &id
	}
	return &c
}

// IsLive сообщает, виден ли заказ в общем списке водителей
func (b *Booking) IsLive() bool {
	return b.Status == BookingStatusPending &&
		b.AssignmentType == AssignmentAuto &&
		!b.IsExpired &&
		b.DriverID == nil &&
		b.NotificationsSentAt != nil
}

// IsExpiryEligible сообщает, должен ли для заказа идти таймер истечения
func (b *Booking) IsExpiryEligible() bool {
	return b.IsLive() && b.ExpiresAt != nil
}

// AssignedTo сообщает, закреплен ли заказ за водителем
func (b *Booking) AssignedTo(driverID uint) bool {
	return b.DriverID != nil && *b.DriverID == driverID
}

// RejectedByDriver сообщает, отказывался ли водитель от заказа
func (b *Booking) RejectedByDriver(driverID uint) bool {
	for _, id := range b.RejectedBy {
		if id == int64(driverID) {
			return true
		}
	}
	return false
}

// BookingCreate используется для создания заказа оператором или клиентом
type BookingCreate struct {
	Origin      string     `json:"origin" binding:"required"`
	Destination string     `json:"destination" binding:"required"`
	ScheduledAt time.Time  `json:"scheduled_at" binding:"required"`
	ReturnAt    *time.Time `json:"return_at"`
	Passengers  int        `json:"passengers" binding:"required"`
	DistanceKm  float64    `json:"distance_km"`
	Category    string     `json:"category" binding:"required"`
	Price       float64    `json:"price" binding:"required"`
	DriverPrice float64    `json:"driver_price"`
	Commission  float64    `json:"commission"`
	PaymentPaid bool       `json:"payment_paid"`
	DriverID    *uint      `json:"driver_id"`
}
