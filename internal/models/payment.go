package models

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Payment попытка оплаты заказа. SessionID это идентификатор платежа
// у процессинга, по нему приходят вебхуки и проверки клиента.
type Payment struct {
	ID            string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SessionID     string        `json:"session_id" gorm:"uniqueIndex;not null"`
	BookingID     string        `json:"booking_id" gorm:"index;not null"`
	Amount        int64         `json:"amount" gorm:"not null"`
	Currency      string        `json:"currency" gorm:"type:varchar(3);not null"`
	Status        PaymentStatus `json:"status" gorm:"type:varchar(20);default:'pending'"`
	FailureReason string        `json:"failure_reason,omitempty" gorm:"default:''"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
