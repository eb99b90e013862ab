package db

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"transfer-backend/internal/config"
)

// ConnectPostgres открывает gorm с повторами, пока база поднимается
func ConnectPostgres(cfg config.Config, maxAttempts int, delay time.Duration) (*gorm.DB, error) {
	var err error
	for i := 0; i < maxAttempts; i++ {
		var db *gorm.DB
		db, err = gorm.Open(postgres.Open(cfg.PostgresDSN()), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Error),
		})
		if err == nil {
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("не удалось получить доступ к sql.DB: %w", err)
			}
			sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
			sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeMinutes) * time.Minute)
			return db, nil
		}
		slog.Warn("попытка подключения к БД не удалась", "attempt", i+1, "max_attempts", maxAttempts, "error", err)
		time.Sleep(delay)
	}
	return nil, fmt.Errorf("не удалось подключиться к базе данных после %d попыток: %w", maxAttempts, err)
}
