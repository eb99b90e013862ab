package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"transfer-backend/internal/models"
	"transfer-backend/internal/repository"
	"transfer-backend/internal/services"
)

func driverListing(list func(ctx context.Context, driverID uint) ([]models.Booking, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookings, err := list(c.Request.Context(), c.GetUint("user_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if bookings == nil {
			bookings = []models.Booking{}
		}
		c.JSON(http.StatusOK, bookings)
	}
}

// DriverLiveBookings общий список заказов для водителя
func DriverLiveBookings(svc *services.BookingService) gin.HandlerFunc {
	return driverListing(svc.ListLive)
}

// DriverAssignedBookings заказы, назначенные оператором
func DriverAssignedBookings(svc *services.BookingService) gin.HandlerFunc {
	return driverListing(svc.ListAssigned)
}

// DriverUpcomingBookings принятые заказы
func DriverUpcomingBookings(svc *services.BookingService) gin.HandlerFunc {
	return driverListing(svc.ListUpcoming)
}

// DriverAddDeviceToken регистрирует токен устройства для пушей
func DriverAddDeviceToken(drivers repository.DriverDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Token string `json:"token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Token) == "" {
			badRequest(c, "Не передан токен устройства")
			return
		}

		if err := drivers.AddDeviceToken(c.Request.Context(), c.GetUint("user_id"), strings.TrimSpace(req.Token)); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Токен устройства сохранен"})
	}
}
