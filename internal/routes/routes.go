package routes

import (
	"github.com/gin-gonic/gin"

	"transfer-backend/internal/handlers"
	"transfer-backend/internal/middleware"
	"transfer-backend/internal/models"
	"transfer-backend/internal/repository"
	"transfer-backend/internal/services"
	"transfer-backend/internal/websocket"
)

type Deps struct {
	Bookings  *services.BookingService
	Payments  *services.PaymentService
	Drivers   repository.DriverDirectory
	Hub       *websocket.Hub
	JWTSecret string
}

func SetupRoutes(api *gin.RouterGroup, d Deps) {
	// Вебхук процессинга без авторизации, событие сверяется с процессингом
	api.POST("/payments/webhook", handlers.PaymentWebhook(d.Payments))

	protected := api.Group("")
	protected.Use(middleware.JWTAuth(d.JWTSecret))
	{
		admin := middleware.RequireRole(models.RoleAdmin)
		driver := middleware.RequireRole(models.RoleDriver)

		// Заказы
		protected.POST("/bookings", admin, handlers.BookingCreate(d.Bookings))
		protected.GET("/bookings/:id", handlers.BookingGet(d.Bookings))
		protected.PUT("/bookings/:id/assign", admin, handlers.BookingAssign(d.Bookings))
		protected.PUT("/bookings/:id/cancel", admin, handlers.BookingCancel(d.Bookings))
		protected.PUT("/bookings/:id/accept", driver, handlers.BookingAccept(d.Bookings))
		protected.PUT("/bookings/:id/reject", driver, handlers.BookingReject(d.Bookings))
		protected.PUT("/bookings/:id/status", driver, handlers.BookingUpdateStatus(d.Bookings))

		// Списки водителя
		protected.GET("/driver/bookings/live", driver, handlers.DriverLiveBookings(d.Bookings))
		protected.GET("/driver/bookings/assigned", driver, handlers.DriverAssignedBookings(d.Bookings))
		protected.GET("/driver/bookings/upcoming", driver, handlers.DriverUpcomingBookings(d.Bookings))
		protected.PUT("/driver/device-tokens", driver, handlers.DriverAddDeviceToken(d.Drivers))

		// Оплата
		protected.POST("/payments", handlers.PaymentCreate(d.Payments))
		protected.POST("/payments/:session/verify", handlers.PaymentVerify(d.Payments))

		// WebSocket подключение для получения обновлений в реальном времени
		protected.GET("/ws", d.Hub.Handler())
	}
}
