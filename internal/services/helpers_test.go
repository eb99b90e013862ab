package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"transfer-backend/internal/models"
	"transfer-backend/internal/notify"
	"transfer-backend/internal/notify/notifytest"
	"transfer-backend/internal/repository"
	"transfer-backend/internal/scheduler"
	"transfer-backend/internal/services"
)

// manualTimers реестр, который срабатывает только по команде теста
type manualTimers struct {
	mu      sync.Mutex
	entries map[string]manualEntry
}

type manualEntry struct {
	fireAt time.Time
	fn     scheduler.Func
}

func newManualTimers() *manualTimers {
	return &manualTimers{entries: make(map[string]manualEntry)}
}

func (m *manualTimers) Schedule(id string, fireAt time.Time, fn scheduler.Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = manualEntry{fireAt: fireAt, fn: fn}
}

func (m *manualTimers) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[id]
	delete(m.entries, id)
	return ok
}

func (m *manualTimers) Pending(id string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	return e.fireAt, ok
}

// fire запускает таймер id синхронно, как это сделал бы реестр
func (m *manualTimers) fire(t *testing.T, id string) {
	t.Helper()
	m.mu.Lock()
	e, ok := m.entries[id]
	delete(m.entries, id)
	m.mu.Unlock()
	require.True(t, ok, "таймер %s не запланирован", id)
	e.fn(context.Background())
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type staticPresence struct {
	mu  sync.Mutex
	ids []uint
}

func (p *staticPresence) OnlineDrivers(ctx context.Context) ([]uint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint(nil), p.ids...), nil
}

func (p *staticPresence) set(ids ...uint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = ids
}

func approvedDriver(id uint, vehicle models.VehicleCategory, tokens ...string) models.User {
	return models.User{
		ID:           id,
		FirstName:    "Водитель",
		LastName:     "Тестовый",
		Role:         models.RoleDriver,
		DeviceTokens: tokens,
		DriverDocuments: &models.DriverDocuments{
			UserID:      id,
			VehicleType: vehicle,
			Status:      models.DocumentStatusApproved,
		},
	}
}

type testEnv struct {
	svc       *services.BookingService
	store     *repository.MemoryBookingStore
	payments  *repository.MemoryPaymentStore
	drivers   *repository.MemoryDriverDirectory
	engine    *notify.Engine
	rec       *notifytest.Recorder
	push      *notifytest.PushSender
	expiry    *manualTimers
	reminders *manualTimers
	clock     *testClock
	presence  *staticPresence
}

// Водители 1 и 4 на седанах, 2 на минивэне, 3 на микроавтобусе
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	e := &testEnv{
		store:    repository.NewMemoryBookingStore(),
		payments: repository.NewMemoryPaymentStore(),
		drivers: repository.NewMemoryDriverDirectory(
			approvedDriver(1, models.VehicleSedan, "tok-1"),
			approvedDriver(2, models.VehicleMinivan, "tok-2"),
			approvedDriver(3, models.VehicleMinibus, "tok-3"),
			approvedDriver(4, models.VehicleSedan),
		),
		rec:       &notifytest.Recorder{},
		push:      &notifytest.PushSender{},
		expiry:    newManualTimers(),
		reminders: newManualTimers(),
		clock:     &testClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		presence:  &staticPresence{ids: []uint{1, 2, 3}},
	}
	e.engine = notify.NewEngine(notify.Config{
		Policy: notify.RetryPolicy{
			MaxAttempts:    2,
			BaseDelay:      time.Millisecond,
			MaxDelay:       2 * time.Millisecond,
			AttemptTimeout: 100 * time.Millisecond,
		},
		QueueSize: 128,
		Shards:    4,
		Push:      e.push,
		Drivers:   e.drivers,
	}, notify.Sink{Name: "test", Publisher: e.rec})
	t.Cleanup(e.engine.Close)

	e.svc = services.NewBookingService(services.BookingDeps{
		Store:          e.store,
		Drivers:        e.drivers,
		Numbers:        &repository.MemoryOrderNumbers{},
		Notifier:       e.engine,
		Presence:       e.presence,
		ExpiryTimers:   e.expiry,
		ReminderTimers: e.reminders,
		Clock:          e.clock.Now,
	}, services.DefaultBookingConfig())
	return e
}

func (e *testEnv) input(price float64, paid bool) models.BookingCreate {
	return models.BookingCreate{
		Origin:      "Аэропорт Пхукет",
		Destination: "Патонг, отель Novotel",
		ScheduledAt: e.clock.Now().Add(3 * time.Hour),
		Passengers:  2,
		DistanceKm:  38,
		Category:    "Седан",
		Price:       price,
		DriverPrice: price * 0.8,
		Commission:  price * 0.2,
		PaymentPaid: paid,
	}
}

func (e *testEnv) create(t *testing.T, price float64, paid bool) *models.Booking {
	t.Helper()
	b, err := e.svc.Create(context.Background(), e.input(price, paid))
	require.NoError(t, err)
	return b
}

func (e *testEnv) reload(t *testing.T, id string) *models.Booking {
	t.Helper()
	b, err := e.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

// events ждет доставки и возвращает конверты события по каналу
func (e *testEnv) events(typ notify.EventType, channel string) []notify.Envelope {
	e.engine.Flush()
	return e.rec.Find(typ, channel)
}

func (e *testEnv) types(bookingID, channel string) []notify.EventType {
	e.engine.Flush()
	var out []notify.EventType
	for _, env := range e.rec.ForBooking(bookingID) {
		if env.Channel == channel {
			out = append(out, env.Type)
		}
	}
	return out
}

func ids(bookings []models.Booking) []string {
	out := make([]string, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, b.ID)
	}
	return out
}
