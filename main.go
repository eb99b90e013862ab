package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"transfer-backend/internal/config"
	"transfer-backend/internal/db"
	"transfer-backend/internal/middleware"
	"transfer-backend/internal/models"
	"transfer-backend/internal/notify"
	"transfer-backend/internal/obs"
	"transfer-backend/internal/pubsub"
	"transfer-backend/internal/repository"
	"transfer-backend/internal/routes"
	"transfer-backend/internal/scheduler"
	"transfer-backend/internal/services"
	"transfer-backend/internal/websocket"
)

const (
	serviceName       = "transfer-backend"
	heartbeatInterval = 15 * time.Second
)

func newLogger(format string) *slog.Logger {
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

type stores struct {
	bookings repository.BookingStore
	payments repository.PaymentStore
	drivers  repository.DriverDirectory
	// nil в режиме memory
	numbers repository.OrderNumbers
	closers []func()
}

// openStores STORE_DRIVER выбирает хранилище заказов. Водители и платежи
// живут в postgres, кроме режима memory.
func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	if cfg.StoreDriver == config.StoreMemory {
		slog.Warn("хранилище в памяти, данные не переживут рестарт")
		return &stores{
			bookings: repository.NewMemoryBookingStore(),
			payments: repository.NewMemoryPaymentStore(),
			drivers:  repository.NewMemoryDriverDirectory(),
		}, nil
	}

	gdb, err := db.ConnectPostgres(cfg, 5, 5*time.Second)
	if err != nil {
		return nil, err
	}
	if err := migrate(gdb); err != nil {
		return nil, err
	}
	numbers, err := repository.NewGormOrderNumbers(ctx, gdb)
	if err != nil {
		return nil, err
	}
	s := &stores{
		numbers:  numbers,
		bookings: repository.NewGormBookingStore(gdb),
		payments: repository.NewGormPaymentStore(gdb),
		drivers:  repository.NewGormDriverDirectory(gdb),
	}

	if cfg.StoreDriver == config.StoreMongo {
		client, mdb, err := db.ConnectMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store := repository.NewMongoBookingStore(mdb)
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		s.bookings = store
		s.closers = append(s.closers, func() { _ = client.Disconnect(context.Background()) })
	}
	return s, nil
}

func migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&models.DriverDocuments{},
		&models.Booking{},
		&models.Payment{},
	)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("ошибка конфигурации", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogFormat)
	slog.SetDefault(logger)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, serviceName, cfg.OTLPEndpoint, cfg.Env)
	if err != nil {
		fatal("ошибка инициализации трассировки", err)
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		fatal("ошибка подключения к хранилищу", err)
	}
	for _, c := range st.closers {
		defer c()
	}

	hub := websocket.NewHub(logger)
	hub.Start()

	numbers := st.numbers
	var presence services.Presence = hub
	sinks := []notify.Sink{}

	// С Redis события идут через relay, чтобы их получили клиенты всех инстансов
	redisClient, err := db.NewRedisClient(ctx, cfg)
	if err != nil {
		slog.Warn("Redis недоступен, работаем в режиме одного инстанса", "error", err)
		sinks = append(sinks, notify.Sink{Name: "websocket", Publisher: hub})
	} else {
		defer redisClient.Close()
		if numbers == nil {
			numbers = repository.NewRedisOrderNumbers(redisClient)
		}

		relay := pubsub.NewRedisRelay(redisClient, hub, logger)
		go runRelay(ctx, relay)
		sinks = append(sinks, notify.Sink{Name: "redis", Publisher: relay})

		rp := pubsub.NewRedisPresence(redisClient, hub, logger)
		go rp.Run(ctx, heartbeatInterval)
		presence = rp
		slog.Info("успешное подключение к Redis")
	}

	if cfg.RabbitURL != "" {
		mirror, err := pubsub.NewAMQPMirror(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			slog.Error("RabbitMQ недоступен, зеркало событий отключено", "error", err)
		} else {
			defer mirror.Close()
			sinks = append(sinks, notify.Sink{Name: "amqp", Publisher: mirror})
		}
	}

	if numbers == nil {
		numbers = &repository.MemoryOrderNumbers{}
	}

	engineCfg := notify.Config{
		Policy: notify.RetryPolicy{
			MaxAttempts:    cfg.NotifyMaxAttempts,
			BaseDelay:      cfg.NotifyBaseDelay,
			MaxDelay:       cfg.NotifyMaxDelay,
			AttemptTimeout: cfg.NotifyAttemptTimeout,
		},
		QueueSize: cfg.NotifyQueueSize,
		Shards:    cfg.NotifyShards,
		Drivers:   st.drivers,
		Logger:    logger.With("component", "notify"),
	}
	if cfg.FirebaseServerKey != "" {
		engineCfg.Push = services.NewFirebaseService(cfg.FirebaseServerKey)
	} else {
		slog.Warn("FIREBASE_SERVER_KEY не задан, пуш-уведомления отключены")
	}
	engine := notify.NewEngine(engineCfg, sinks...)

	expiryTimers := scheduler.NewRegistry("expiry")
	reminderTimers := scheduler.NewRegistry("reminder")

	bookings := services.NewBookingService(services.BookingDeps{
		Store:          st.bookings,
		Drivers:        st.drivers,
		Numbers:        numbers,
		Notifier:       engine,
		Presence:       presence,
		ExpiryTimers:   expiryTimers,
		ReminderTimers: reminderTimers,
		Logger:         logger,
	}, services.BookingConfig{
		AutoAssignThreshold: cfg.AutoAssignPriceThreshold,
		ExpiryWindow:        cfg.BookingExpiryWindow,
		ReminderLead:        cfg.ReminderLead,
	})

	var gateway services.PaymentGateway
	if cfg.PaymentsEnabled() {
		omiseGateway, err := services.NewOmiseGateway(cfg.OmisePublicKey, cfg.OmiseSecretKey)
		if err != nil {
			fatal("ошибка инициализации платежного провайдера", err)
		}
		gateway = omiseGateway
	} else {
		slog.Error("OMISE_PUBLIC_KEY/OMISE_SECRET_KEY не заданы, оплата недоступна")
	}
	payments := services.NewPaymentService(st.payments, bookings, gateway, cfg.OmiseCurrency, logger)

	if err := bookings.Recover(ctx); err != nil {
		fatal("ошибка восстановления таймеров", err)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.PrometheusMiddleware())
	_ = r.SetTrustedProxies([]string{"127.0.0.1"})
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	routes.SetupRoutes(r.Group("/api"), routes.Deps{
		Bookings:  bookings,
		Payments:  payments,
		Drivers:   st.drivers,
		Hub:       hub,
		JWTSecret: cfg.JWTSecret,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("сервер запущен", "port", cfg.Port, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("ошибка запуска сервера", err)
		}
	}()

	<-ctx.Done()
	slog.Info("получен сигнал завершения, закрываем соединения")

	// Даем 30 секунд на завершение текущих запросов
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("ошибка при graceful shutdown", "error", err)
	}
	expiryTimers.Stop()
	reminderTimers.Stop()
	engine.Close()
	hub.Stop()
	if err := shutdownTracer(shutdownCtx); err != nil {
		slog.Warn("ошибка при остановке трассировки", "error", err)
	}

	slog.Info("сервер корректно завершил работу")
}

// runRelay переподписывается на Redis, пока не остановлен сервис
func runRelay(ctx context.Context, relay *pubsub.RedisRelay) {
	for {
		err := relay.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		slog.Error("подписка на Redis прервалась, переподключение", "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
