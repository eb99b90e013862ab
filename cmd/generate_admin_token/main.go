package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"transfer-backend/internal/models"
	"transfer-backend/internal/utils"
)

// Выдает токен оператора или водителя для локальной отладки
func main() {
	driverID := flag.Uint("driver", 0, "ID водителя; без флага выдается токен оператора")
	ttl := flag.Duration("ttl", 24*time.Hour, "срок действия токена водителя")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Warn("файл .env не найден, используем переменные окружения")
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		slog.Error("JWT_SECRET не задан")
		os.Exit(1)
	}

	var (
		token string
		err   error
	)
	if *driverID == 0 {
		token, err = utils.GenerateAdminJWT(secret)
	} else {
		token, err = utils.GenerateJWT(*driverID, models.RoleDriver, secret, *ttl)
	}
	if err != nil {
		slog.Error("ошибка при генерации токена", "error", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
