package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"transfer-backend/internal/models"
	"transfer-backend/internal/utils"
)

// JWTAuth проверяет токен и кладет user_id и role в контекст. Браузерный
// WebSocket не умеет заголовки, поэтому токен принимается и из ?token=.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Неверный формат токена"})
				return
			}
			token = parts[1]
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Отсутствует токен авторизации"})
			return
		}

		claims, err := utils.ValidateToken(token, secret)
		if err != nil {
			slog.Debug("недействительный токен", "path", c.FullPath(), "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Недействительный токен"})
			return
		}

		// Для админа user_id = 0
		if claims.Role == models.RoleAdmin {
			c.Set("user_id", uint(0))
			c.Set("role", models.RoleAdmin)
			c.Next()
			return
		}

		if claims.UserID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Недействительный ID пользователя"})
			return
		}
		role := claims.Role
		if role == "" {
			role = models.RoleDriver
		}
		c.Set("user_id", claims.UserID)
		c.Set("role", role)
		c.Next()
	}
}

// RequireRole пропускает только перечисленные роли
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Недостаточно прав"})
	}
}
