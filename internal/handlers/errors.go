package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"transfer-backend/internal/repository"
	"transfer-backend/internal/services"
)

// respondError переводит ошибку сервиса в HTTP ответ
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrPaymentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrVersionConflict),
		errors.Is(err, services.ErrBookingExpired),
		services.IsInvalidTransition(err):
		status = http.StatusConflict
	case errors.Is(err, services.ErrPaymentNotConfigured):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		slog.Error("ошибка при обработке запроса", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "Внутренняя ошибка сервера"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
