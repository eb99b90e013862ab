// Package notify рассылает события заказов по логическим каналам
// (один водитель, все водители, операторы) и пуш-уведомления водителям.
// Доставка best-effort: ошибки повторяются, затем логируются и
// отбрасываются, вызывающий никогда не ждет доставки.
package notify

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"transfer-backend/internal/metrics"
)

// Publisher провайдер real-time каналов
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// PublisherFunc адаптер функции к Publisher
type PublisherFunc func(ctx context.Context, env Envelope) error

func (f PublisherFunc) Publish(ctx context.Context, env Envelope) error { return f(ctx, env) }

// Sink именованный получатель конвертов. У каждого sink свои очереди,
// поэтому сбой одного не задерживает другой.
type Sink struct {
	Name      string
	Publisher Publisher
}

type Config struct {
	Policy    RetryPolicy
	QueueSize int
	Shards    int
	Push      PushSender
	Drivers   TokenDirectory
	Logger    *slog.Logger
}

// Engine очередь публикаций. Конверты одного канала идут через одну
// очередь, поэтому публикуются в порядке вызовов Publish.
type Engine struct {
	cfg    Config
	log    *slog.Logger
	sinks  []*dispatcher
	push   *pushDispatcher
	seq    atomic.Uint64
	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	closed  bool
	pending sync.WaitGroup
	workers sync.WaitGroup
}

type dispatcher struct {
	name   string
	pub    Publisher
	shards []chan Envelope
}

func NewEngine(cfg Config, sinks ...Sink) *Engine {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Shards <= 0 {
		cfg.Shards = 8
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = DefaultRetryPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:    cfg,
		log:    cfg.Logger,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
	// Продолжаем последовательность после рестарта, а не с нуля
	e.seq.Store(uint64(time.Now().UnixMicro()))

	for _, s := range sinks {
		d := &dispatcher{name: s.Name, pub: s.Publisher, shards: make([]chan Envelope, cfg.Shards)}
		for i := range d.shards {
			d.shards[i] = make(chan Envelope, cfg.QueueSize)
			e.workers.Add(1)
			go e.runShard(d, d.shards[i])
		}
		e.sinks = append(e.sinks, d)
	}

	if cfg.Push != nil && cfg.Drivers != nil {
		e.push = newPushDispatcher(e, cfg.QueueSize)
	}
	return e
}

// Publish ставит сообщения в очереди всех sink. Не блокируется:
// при переполненной очереди сообщение отбрасывается.
func (e *Engine) Publish(msgs ...Message) []Envelope {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil
	}

	envs := make([]Envelope, 0, len(msgs))
	for _, m := range msgs {
		env := Envelope{
			ID:          uuid.NewString(),
			Seq:         e.seq.Add(1),
			Channel:     m.Channel,
			Type:        m.Type,
			Recipients:  m.Recipients,
			Payload:     m.Payload,
			PublishedAt: e.now(),
		}
		envs = append(envs, env)

		for _, d := range e.sinks {
			q := d.shards[shardFor(env.Channel, len(d.shards))]
			e.pending.Add(1)
			select {
			case q <- env:
			default:
				e.pending.Done()
				metrics.NotifyDroppedTotal.WithLabelValues(d.name, "queue_full").Inc()
				e.log.Error("очередь уведомлений переполнена, событие отброшено",
					"sink", d.name, "channel", env.Channel, "event", env.Type, "booking_id", env.Payload.BookingID)
			}
		}
	}
	return envs
}

// Push ставит пуш-уведомление в очередь. Без настроенного отправителя
// запрос молча игнорируется.
func (e *Engine) Push(req PushRequest) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed || e.push == nil || len(req.DriverIDs) == 0 {
		return
	}
	e.push.enqueue(req)
}

// PushEnabled сообщает, настроен ли пуш-канал
func (e *Engine) PushEnabled() bool {
	return e.push != nil
}

func (e *Engine) runShard(d *dispatcher, q <-chan Envelope) {
	defer e.workers.Done()
	for env := range q {
		e.deliver(d, env)
		e.pending.Done()
	}
}

func (e *Engine) deliver(d *dispatcher, env Envelope) {
	res := Retry(e.ctx, e.cfg.Policy, func(ctx context.Context) error {
		return d.pub.Publish(ctx, env)
	})
	metrics.TrackPublish(d.name, ChannelKind(env.Channel), res.Delivered(), res.Attempts)
	if !res.Delivered() {
		e.log.Error("не удалось доставить уведомление, попытки исчерпаны",
			"sink", d.name,
			"channel", env.Channel,
			"event", env.Type,
			"booking_id", env.Payload.BookingID,
			"attempts", res.Attempts,
			"error", res.Err)
	}
}

// Flush ждет, пока все поставленные в очередь задачи будут обработаны
func (e *Engine) Flush() {
	e.pending.Wait()
}

// Close дообрабатывает очереди и останавливает воркеры
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, d := range e.sinks {
		for _, q := range d.shards {
			close(q)
		}
	}
	if e.push != nil {
		close(e.push.queue)
	}
	e.mu.Unlock()

	e.workers.Wait()
	e.cancel()
}

func shardFor(channel string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(channel))
	return int(h.Sum32() % uint32(n))
}
