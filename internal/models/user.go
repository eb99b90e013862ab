package models

import (
	"time"

	"github.com/lib/pq"
)

const (
	RoleDriver = "driver"
	RoleAdmin  = "admin"
)

type User struct {
	ID              uint             `json:"id" gorm:"primaryKey;column:id;autoIncrement"`
	FirstName       string           `json:"firstName" gorm:"column:first_name;not null;type:varchar(255)"`
	LastName        string           `json:"lastName" gorm:"column:last_name;not null;type:varchar(255)"`
	Phone           string           `json:"phone" gorm:"column:phone;unique;not null;type:varchar(20)"`
	Role            string           `json:"role" gorm:"column:role;default:'driver';type:varchar(20)"`
	DeviceTokens    pq.StringArray   `json:"deviceTokens" gorm:"column:device_tokens;type:text[]"`
	CreatedAt       time.Time        `json:"created_at" gorm:"column:created_at;autoCreateTime;type:timestamp with time zone"`
	UpdatedAt       time.Time        `json:"updated_at" gorm:"column:updated_at;autoUpdateTime;type:timestamp with time zone"`
	DriverDocuments *DriverDocuments `json:"driver_documents,omitempty" gorm:"foreignKey:UserID"`
}

// FullName имя для текстов уведомлений
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// VehicleType тип одобренного автомобиля водителя. Пустая строка, если
// документы не одобрены.
func (u *User) VehicleType() (VehicleCategory, bool) {
	if u.DriverDocuments == nil || u.DriverDocuments.Status != DocumentStatusApproved {
		return "", false
	}
	return u.DriverDocuments.VehicleType, true
}
