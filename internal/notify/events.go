package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"transfer-backend/internal/models"
)

// EventType закрытый список событий, по которым клиенты выбирают обработчик
type EventType string

const (
	EventBookingCreated    EventType = "booking.created"
	EventBookingAssigned   EventType = "booking.assigned"
	EventBookingUnassigned EventType = "booking.unassigned"
	EventBookingAccepted   EventType = "booking.accepted"
	EventBookingRejected   EventType = "booking.rejected"
	EventBookingExpired    EventType = "booking.expired"
	EventBookingStarted    EventType = "booking.started"
	EventBookingPickedUp   EventType = "booking.picked_up"
	EventBookingDroppedOff EventType = "booking.dropped_off"
	EventBookingCompleted  EventType = "booking.completed"
	EventBookingCancelled  EventType = "booking.cancelled"
	EventBookingPaid       EventType = "booking.paid"

	// Изменения общего списка водителей (автоназначение)
	EventLiveBookingAdded   EventType = "live_booking.added"
	EventLiveBookingRemoved EventType = "live_booking.removed"
	EventLiveBookingUpdated EventType = "live_booking.updated"

	// Изменения списка назначенных оператором заказов
	EventAssignedBookingAdded   EventType = "assigned_booking.added"
	EventAssignedBookingRemoved EventType = "assigned_booking.removed"

	EventUpcomingBookingAdded   EventType = "upcoming_booking.added"
	EventUpcomingBookingRemoved EventType = "upcoming_booking.removed"

	EventBookingReminder EventType = "booking.reminder"
)

// StatusEvent событие смены статуса поездки водителем
func StatusEvent(status models.BookingStatus) (EventType, bool) {
	switch status {
	case models.BookingStatusAccepted:
		return EventBookingAccepted, true
	case models.BookingStatusStarted:
		return EventBookingStarted, true
	case models.BookingStatusPickedUp:
		return EventBookingPickedUp, true
	case models.BookingStatusDroppedOff:
		return EventBookingDroppedOff, true
	case models.BookingStatusCompleted:
		return EventBookingCompleted, true
	case models.BookingStatusRejected:
		return EventBookingRejected, true
	case models.BookingStatusCancelled:
		return EventBookingCancelled, true
	}
	return "", false
}

// Логические каналы
const (
	ChannelDrivers = "drivers" // все подключенные водители
	ChannelAdmin   = "admin"   // все операторы

	driverChannelPrefix = "driver:"
)

// DriverChannel канал одного водителя
func DriverChannel(id uint) string {
	return fmt.Sprintf("%s%d", driverChannelPrefix, id)
}

// ParseDriverChannel достает ID водителя из имени канала
func ParseDriverChannel(channel string) (uint, bool) {
	if !strings.HasPrefix(channel, driverChannelPrefix) {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(channel, driverChannelPrefix), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// ChannelKind метка канала для метрик без ID водителя
func ChannelKind(channel string) string {
	if strings.HasPrefix(channel, driverChannelPrefix) {
		return "driver"
	}
	return channel
}

// BookingSnapshot данные заказа, достаточные клиенту для обновления экрана
type BookingSnapshot struct {
	ID             string                 `json:"id"`
	OrderNumber    string                 `json:"order_number"`
	Origin         string                 `json:"origin"`
	Destination    string                 `json:"destination"`
	ScheduledAt    time.Time              `json:"scheduled_at"`
	ReturnAt       *time.Time             `json:"return_at,omitempty"`
	Passengers     int                    `json:"passengers"`
	DistanceKm     float64                `json:"distance_km"`
	Category       models.VehicleCategory `json:"category"`
	DriverPrice    float64                `json:"driver_price"`
	AssignmentType models.AssignmentType  `json:"assignment_type"`
	Status         models.BookingStatus   `json:"status"`
	ExpiresAt      *time.Time             `json:"expires_at,omitempty"`
	IsExpired      bool                   `json:"is_expired"`
}

// Payload полезная нагрузка события. По UpdatedAt, Version и Status
// клиент отбрасывает устаревшие повторные доставки.
type Payload struct {
	BookingID        string               `json:"booking_id"`
	OrderNumber      string               `json:"order_number"`
	Status           models.BookingStatus `json:"status"`
	DriverID         *uint                `json:"driver_id,omitempty"`
	PreviousDriverID *uint                `json:"previous_driver_id,omitempty"`
	Reason           string               `json:"reason,omitempty"`
	Timestamp        time.Time            `json:"timestamp"`
	UpdatedAt        time.Time            `json:"updated_at"`
	Version          int64                `json:"version"`
	Booking          *BookingSnapshot     `json:"booking,omitempty"`
}

// NewPayload собирает нагрузку из состояния заказа после записи
func NewPayload(b *models.Booking, at time.Time) Payload {
	return Payload{
		BookingID:   b.ID,
		OrderNumber: b.OrderNumber,
		Status:      b.Status,
		DriverID:    b.DriverID,
		Timestamp:   at,
		UpdatedAt:   b.UpdatedAt,
		Version:     b.Version,
		Booking: &BookingSnapshot{
			ID:             b.ID,
			OrderNumber:    b.OrderNumber,
			Origin:         b.Origin,
			Destination:    b.Destination,
			ScheduledAt:    b.ScheduledAt,
			ReturnAt:       b.ReturnAt,
			Passengers:     b.Passengers,
			DistanceKm:     b.DistanceKm,
			Category:       b.Category,
			DriverPrice:    b.DriverPrice,
			AssignmentType: b.AssignmentType,
			Status:         b.Status,
			ExpiresAt:      b.ExpiresAt,
			IsExpired:      b.IsExpired,
		},
	}
}

// Message то, что сервис просит опубликовать
type Message struct {
	Channel string
	Type    EventType
	// Recipients ограничивает широковещательный канал списком водителей.
	// nil означает всех подключенных.
	Recipients []uint
	Payload    Payload
}

// Envelope сообщение в том виде, в каком уходит в канал
type Envelope struct {
	ID          string    `json:"id"`
	Seq         uint64    `json:"seq"`
	Channel     string    `json:"channel"`
	Type        EventType `json:"type"`
	Recipients  []uint    `json:"recipients"`
	Payload     Payload   `json:"payload"`
	PublishedAt time.Time `json:"published_at"`
}

// Delivers сообщает, предназначен ли конверт водителю driverID
func (e Envelope) Delivers(driverID uint) bool {
	if e.Recipients == nil {
		return true
	}
	for _, id := range e.Recipients {
		if id == driverID {
			return true
		}
	}
	return false
}
