// Package metrics содержит все prometheus метрики сервиса
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal - общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration - длительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Длительность HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// RequestsInFlight - количество запросов в обработке
	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Текущее количество запросов в обработке",
		},
	)

	// NotifyPublishTotal - результаты публикации уведомлений
	NotifyPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_publish_total",
			Help: "Количество публикаций уведомлений по каналам и результатам",
		},
		[]string{"sink", "channel", "result"},
	)

	// NotifyPublishAttempts - сколько попыток понадобилось на публикацию
	NotifyPublishAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notify_publish_attempts",
			Help:    "Количество попыток на одну публикацию",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
		[]string{"sink"},
	)

	// NotifyDroppedTotal - уведомления, не попавшие в очередь
	NotifyDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_dropped_total",
			Help: "Количество отброшенных уведомлений",
		},
		[]string{"sink", "reason"},
	)

	// PushTokensPruned - удаленные недействительные токены устройств
	PushTokensPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "push_tokens_pruned_total",
			Help: "Количество удаленных недействительных токенов устройств",
		},
	)

	// TimersPending - активные таймеры по реестрам
	TimersPending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "timers_pending",
			Help: "Количество запланированных таймеров",
		},
		[]string{"registry"},
	)

	// TimersFired - сработавшие таймеры и их исход
	TimersFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timers_fired_total",
			Help: "Количество сработавших таймеров",
		},
		[]string{"registry", "outcome"},
	)
)

// TrackHTTPRequest фиксирует завершенный HTTP запрос
func TrackHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	RequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackPublish фиксирует итог публикации в один sink
func TrackPublish(sink, channel string, delivered bool, attempts int) {
	result := "delivered"
	if !delivered {
		result = "retries_exhausted"
	}
	NotifyPublishTotal.WithLabelValues(sink, channel, result).Inc()
	NotifyPublishAttempts.WithLabelValues(sink).Observe(float64(attempts))
}
