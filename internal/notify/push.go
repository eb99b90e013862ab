package notify

import (
	"context"

	"transfer-backend/internal/metrics"
	"transfer-backend/internal/models"
)

// TokenResult результат отправки на один токен устройства
type TokenResult struct {
	Token string
	// Invalid токен больше не зарегистрирован и должен быть удален
	Invalid bool
	Err     error
}

// PushSender провайдер мобильных пуш-уведомлений
type PushSender interface {
	SendToTokens(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]TokenResult, error)
}

// TokenDirectory откуда брать и где чистить токены устройств водителей
type TokenDirectory interface {
	FindDrivers(ctx context.Context, ids []uint) ([]models.User, error)
	RemoveDeviceTokens(ctx context.Context, driverID uint, tokens []string) error
}

// PushRequest пуш группе водителей
type PushRequest struct {
	BookingID string
	DriverIDs []uint
	Title     string
	Body      string
	Data      map[string]string
}

const pushWorkers = 4

type pushDispatcher struct {
	engine *Engine
	queue  chan PushRequest
}

func newPushDispatcher(e *Engine, size int) *pushDispatcher {
	p := &pushDispatcher{engine: e, queue: make(chan PushRequest, size)}
	for i := 0; i < pushWorkers; i++ {
		e.workers.Add(1)
		go p.run()
	}
	return p
}

func (p *pushDispatcher) enqueue(req PushRequest) {
	p.engine.pending.Add(1)
	select {
	case p.queue <- req:
	default:
		p.engine.pending.Done()
		metrics.NotifyDroppedTotal.WithLabelValues("push", "queue_full").Inc()
		p.engine.log.Error("очередь пуш-уведомлений переполнена", "booking_id", req.BookingID)
	}
}

func (p *pushDispatcher) run() {
	defer p.engine.workers.Done()
	for req := range p.queue {
		p.send(req)
		p.engine.pending.Done()
	}
}

func (p *pushDispatcher) send(req PushRequest) {
	e := p.engine
	ctx := e.ctx

	drivers, err := e.cfg.Drivers.FindDrivers(ctx, req.DriverIDs)
	if err != nil {
		e.log.Error("не удалось получить водителей для пуша", "booking_id", req.BookingID, "error", err)
		return
	}

	owner := make(map[string]uint)
	var tokens []string
	for _, d := range drivers {
		for _, t := range d.DeviceTokens {
			if _, dup := owner[t]; dup {
				continue
			}
			owner[t] = d.ID
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		return
	}

	var results []TokenResult
	res := Retry(ctx, e.cfg.Policy, func(ctx context.Context) error {
		var sendErr error
		results, sendErr = e.cfg.Push.SendToTokens(ctx, tokens, req.Title, req.Body, req.Data)
		return sendErr
	})
	metrics.TrackPublish("push", "driver", res.Delivered(), res.Attempts)
	if !res.Delivered() {
		e.log.Error("не удалось отправить пуш-уведомление",
			"booking_id", req.BookingID, "tokens", len(tokens), "attempts", res.Attempts, "error", res.Err)
		return
	}

	invalid := make(map[uint][]string)
	for _, r := range results {
		if r.Invalid {
			if id, ok := owner[r.Token]; ok {
				invalid[id] = append(invalid[id], r.Token)
			}
		} else if r.Err != nil {
			e.log.Warn("пуш не доставлен на устройство", "booking_id", req.BookingID, "error", r.Err)
		}
	}
	for driverID, stale := range invalid {
		if err := e.cfg.Drivers.RemoveDeviceTokens(ctx, driverID, stale); err != nil {
			e.log.Error("не удалось удалить недействительные токены", "driver_id", driverID, "error", err)
			continue
		}
		metrics.PushTokensPruned.Add(float64(len(stale)))
		e.log.Info("удалены недействительные токены устройств", "driver_id", driverID, "count", len(stale))
	}
}
