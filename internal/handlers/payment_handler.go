package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"transfer-backend/internal/repository"
	"transfer-backend/internal/services"
)

// PaymentCreate начинает оплату заказа токеном карты или источника
func PaymentCreate(svc *services.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			BookingID string `json:"booking_id" binding:"required"`
			Token     string `json:"token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Неверный формат данных")
			return
		}

		res, err := svc.StartPayment(c.Request.Context(), req.BookingID, req.Token)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, res)
	}
}

// PaymentVerify опрос статуса платежа клиентом
func PaymentVerify(svc *services.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.Verify(c.Request.Context(), c.Param("session"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// PaymentWebhook вебхук процессинга. Из тела берется только ID события,
// само событие перечитывается у процессинга.
func PaymentWebhook(svc *services.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			ID  string `json:"id" binding:"required"`
			Key string `json:"key"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Неверный формат данных")
			return
		}

		res, err := svc.HandleWebhook(c.Request.Context(), req.ID)
		switch {
		case errors.Is(err, repository.ErrPaymentNotFound):
			// Списание создано не нами, повторять доставку незачем
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		case err != nil:
			respondError(c, err)
			return
		case res == nil:
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "payment": res.Payment, "already_confirmed": res.AlreadyConfirmed})
	}
}
