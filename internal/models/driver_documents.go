package models

import (
	"time"
)

type DriverDocumentStatus string

const (
	DocumentStatusPending  DriverDocumentStatus = "pending"  // На модерации
	DocumentStatusApproved DriverDocumentStatus = "approved" // Принят
	DocumentStatusRejected DriverDocumentStatus = "rejected" // Отказ
	DocumentStatusRevision DriverDocumentStatus = "revision" // Доработка
)

// DriverDocuments автомобиль водителя, прошедший модерацию
type DriverDocuments struct {
	ID          uint                 `json:"id" gorm:"primaryKey"`
	UserID      uint                 `json:"user_id" gorm:"not null;uniqueIndex"`
	CarBrand    string               `json:"car_brand" gorm:"not null"`
	CarModel    string               `json:"car_model" gorm:"not null"`
	CarNumber   string               `json:"car_number" gorm:"not null"`
	Seats       int                  `json:"seats" gorm:"not null;default:4"`
	VehicleType VehicleCategory      `json:"vehicle_type" gorm:"type:varchar(20);not null"`
	Status      DriverDocumentStatus `json:"status" gorm:"type:varchar(20);default:'pending'"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}
