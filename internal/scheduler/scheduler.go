// Package scheduler реализует реестр одноразовых отложенных вызовов с
// ключом по идентификатору заказа. На один ключ в реестре живет не больше
// одного таймера: новое планирование заменяет старое.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"transfer-backend/internal/metrics"
)

// Func вызывается при срабатывании таймера. ctx отменяется при Stop.
type Func func(ctx context.Context)

// Scheduler то, что нужно сервисам заказов от реестра
type Scheduler interface {
	Schedule(id string, fireAt time.Time, fn Func)
	Cancel(id string) bool
	Pending(id string) (time.Time, bool)
}

type entry struct {
	timer  *time.Timer
	fireAt time.Time
	gen    uint64
}

// Registry таймеры в памяти процесса. После рестарта таймеры теряются,
// их восстанавливают сервисы повторным сканированием заказов.
type Registry struct {
	name string

	mu      sync.Mutex
	entries map[string]*entry
	gen     uint64
	stopped bool

	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
	now     func() time.Time
}

func NewRegistry(name string) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		name:    name,
		entries: make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
	}
}

// Schedule планирует fn на fireAt. Существующий таймер с тем же id
// отменяется в той же критической секции. Время в прошлом означает
// немедленное срабатывание.
func (r *Registry) Schedule(id string, fireAt time.Time, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	if old, ok := r.entries[id]; ok {
		old.timer.Stop()
	}

	r.gen++
	gen := r.gen
	delay := fireAt.Sub(r.now())
	if delay < 0 {
		delay = 0
	}

	e := &entry{fireAt: fireAt, gen: gen}
	e.timer = time.AfterFunc(delay, func() { r.fire(id, gen, fn) })
	r.entries[id] = e
	metrics.TimersPending.WithLabelValues(r.name).Set(float64(len(r.entries)))
}

func (r *Registry) fire(id string, gen uint64, fn Func) {
	r.mu.Lock()
	e, ok := r.entries[id]
	// Таймер отменили или заменили, пока он ждал блокировку
	if !ok || e.gen != gen || r.stopped {
		r.mu.Unlock()
		return
	}
	delete(r.entries, id)
	metrics.TimersPending.WithLabelValues(r.name).Set(float64(len(r.entries)))
	r.running.Add(1)
	r.mu.Unlock()

	defer r.running.Done()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("паника в обработчике таймера", "registry", r.name, "booking_id", id, "panic", rec)
		}
	}()
	fn(r.ctx)
}

// Cancel отменяет таймер. Возвращает true, если таймер был.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(r.entries, id)
	metrics.TimersPending.WithLabelValues(r.name).Set(float64(len(r.entries)))
	return true
}

// Pending время срабатывания запланированного таймера
func (r *Registry) Pending(id string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return time.Time{}, false
	}
	return e.fireAt, true
}

// Len количество активных таймеров
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Stop отменяет все таймеры и ждет завершения уже запущенных обработчиков
func (r *Registry) Stop() {
	r.mu.Lock()
	r.stopped = true
	for id, e := range r.entries {
		e.timer.Stop()
		delete(r.entries, id)
	}
	metrics.TimersPending.WithLabelValues(r.name).Set(0)
	r.mu.Unlock()

	r.cancel()
	r.running.Wait()
}
