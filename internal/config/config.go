package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

type Config struct {
	Port      string `envconfig:"PORT" default:"8080"`
	GinMode   string `envconfig:"GIN_MODE" default:"debug"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	Env       string `envconfig:"ENV" default:"dev"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`

	// Postgres
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME"`

	DBMaxOpenConns           int `envconfig:"DB_MAX_OPEN_CONNS" default:"100"`
	DBMaxIdleConns           int `envconfig:"DB_MAX_IDLE_CONNS" default:"25"`
	DBConnMaxLifetimeMinutes int `envconfig:"DB_CONN_MAX_LIFETIME_MINUTES" default:"60"`

	// Mongo
	MongoURI string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDB  string `envconfig:"MONGO_DB" default:"transfer"`

	// Redis
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     string `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	// RabbitMQ, зеркало событий. Пустой URL отключает.
	RabbitURL      string `envconfig:"RABBITMQ_URL"`
	RabbitExchange string `envconfig:"RABBITMQ_EXCHANGE" default:"booking.events"`

	JWTSecret         string `envconfig:"JWT_SECRET" required:"true"`
	FirebaseServerKey string `envconfig:"FIREBASE_SERVER_KEY"`

	OmisePublicKey string `envconfig:"OMISE_PUBLIC_KEY"`
	OmiseSecretKey string `envconfig:"OMISE_SECRET_KEY"`
	OmiseCurrency  string `envconfig:"OMISE_CURRENCY" default:"thb"`

	AutoAssignPriceThreshold float64       `envconfig:"AUTO_ASSIGN_PRICE_THRESHOLD" default:"150"`
	BookingExpiryWindow      time.Duration `envconfig:"BOOKING_EXPIRY_WINDOW" default:"5m"`
	ReminderLead             time.Duration `envconfig:"REMINDER_LEAD" default:"30m"`

	NotifyMaxAttempts    int           `envconfig:"NOTIFY_MAX_ATTEMPTS" default:"3"`
	NotifyBaseDelay      time.Duration `envconfig:"NOTIFY_BASE_DELAY" default:"500ms"`
	NotifyMaxDelay       time.Duration `envconfig:"NOTIFY_MAX_DELAY" default:"5s"`
	NotifyAttemptTimeout time.Duration `envconfig:"NOTIFY_ATTEMPT_TIMEOUT" default:"10s"`
	NotifyQueueSize      int           `envconfig:"NOTIFY_QUEUE_SIZE" default:"256"`
	NotifyShards         int           `envconfig:"NOTIFY_SHARDS" default:"8"`

	// Пустой адрес отключает трассировку
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load читает .env, если он есть, затем переменные окружения
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return c, fmt.Errorf("конфигурация: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate ошибки, с которыми сервис не стартует
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("конфигурация: JWT_SECRET не задан")
	}
	switch c.StoreDriver {
	case StorePostgres, StoreMongo, StoreMemory:
	default:
		return fmt.Errorf("конфигурация: неизвестный STORE_DRIVER %q", c.StoreDriver)
	}
	if c.AutoAssignPriceThreshold <= 0 {
		return errors.New("конфигурация: AUTO_ASSIGN_PRICE_THRESHOLD должен быть больше нуля")
	}
	if c.BookingExpiryWindow <= 0 || c.ReminderLead <= 0 {
		return errors.New("конфигурация: BOOKING_EXPIRY_WINDOW и REMINDER_LEAD должны быть больше нуля")
	}
	if c.NotifyMaxAttempts < 1 || c.NotifyShards < 1 || c.NotifyQueueSize < 1 {
		return errors.New("конфигурация: параметры уведомлений должны быть больше нуля")
	}
	return nil
}

func (c Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// PaymentsEnabled задан ли ключ процессинга
func (c Config) PaymentsEnabled() bool {
	return c.OmisePublicKey != "" && c.OmiseSecretKey != ""
}
