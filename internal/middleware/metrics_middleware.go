package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"transfer-backend/internal/metrics"
)

// PrometheusMiddleware собирает метрики для HTTP запросов
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.RequestsInFlight.Inc()
		defer metrics.RequestsInFlight.Dec()

		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		metrics.TrackHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}
