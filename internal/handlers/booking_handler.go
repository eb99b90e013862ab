package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"transfer-backend/internal/models"
	"transfer-backend/internal/services"
)

// BookingCreate создает заказ (оператор)
func BookingCreate(svc *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BookingCreate
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Неверный формат данных")
			return
		}

		booking, err := svc.Create(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, booking)
	}
}

// BookingGet заказ по ID. Водитель видит только свои заказы и общий список.
func BookingGet(svc *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		booking, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if c.GetString("role") == models.RoleDriver {
			driverID := c.GetUint("user_id")
			if !booking.AssignedTo(driverID) && !booking.IsLive() {
				c.JSON(http.StatusForbidden, gin.H{"error": "Нет доступа к заказу"})
				return
			}
		}
		c.JSON(http.StatusOK, booking)
	}
}

// BookingAssign назначает водителя или снимает его (driver_id: null)
func BookingAssign(svc *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			DriverID *uint `json:"driver_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Неверный формат данных")
			return
		}

		booking, err := svc.Assign(c.Request.Context(), c.Param("id"), req.DriverID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, booking)
	}
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// BookingCancel отмена оператором
func BookingCancel(svc *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reasonRequest
		_ = c.ShouldBindJSON(&req)

		booking, err := svc.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, booking)
	}
}

// BookingAccept водитель принимает заказ
func BookingAccept(svc *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		booking, err := svc.Accept(c.Request.Context(), c.Param("id"), c.GetUint("user_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, booking)
	}
}

// BookingReject водитель отказывается от заказа
func BookingReject(svc *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reasonRequest
		_ = c.ShouldBindJSON(&req)

		booking, err := svc.Reject(c.Request.Context(), c.Param("id"), c.GetUint("user_id"), req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, booking)
	}
}

// BookingUpdateStatus следующий шаг поездки: started, picked_up, dropped_off, completed
func BookingUpdateStatus(svc *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Status models.BookingStatus `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Неверный формат данных")
			return
		}

		booking, err := svc.Advance(c.Request.Context(), c.Param("id"), c.GetUint("user_id"), req.Status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, booking)
	}
}
