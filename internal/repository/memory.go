package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"transfer-backend/internal/models"
)

// MemoryBookingStore заказы в памяти процесса
type MemoryBookingStore struct {
	mu       sync.RWMutex
	bookings map[string]*models.Booking
}

func NewMemoryBookingStore() *MemoryBookingStore {
	return &MemoryBookingStore{bookings: make(map[string]*models.Booking)}
}

func (s *MemoryBookingStore) Create(ctx context.Context, b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bookings[b.ID]; exists {
		return fmt.Errorf("заказ %s уже существует", b.ID)
	}
	if b.Version == 0 {
		b.Version = 1
	}
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	s.bookings[b.ID] = b.Clone()
	return nil
}

func (s *MemoryBookingStore) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

func (s *MemoryBookingStore) ConditionalUpdate(ctx context.Context, b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.bookings[b.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != b.Version {
		return ErrVersionConflict
	}

	b.Version++
	b.UpdatedAt = time.Now()
	s.bookings[b.ID] = b.Clone()
	return nil
}

func (s *MemoryBookingStore) Find(ctx context.Context, f BookingFilter) ([]models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Booking
	for _, b := range s.bookings {
		if f.Match(b) {
			out = append(out, *b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

// MemoryPaymentStore платежи в памяти процесса
type MemoryPaymentStore struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
}

func NewMemoryPaymentStore() *MemoryPaymentStore {
	return &MemoryPaymentStore{payments: make(map[string]*models.Payment)}
}

func (s *MemoryPaymentStore) Create(ctx context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[p.SessionID]; exists {
		return fmt.Errorf("платеж с сессией %s уже существует", p.SessionID)
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	s.payments[p.SessionID] = &cp
	return nil
}

func (s *MemoryPaymentStore) FindBySession(ctx context.Context, sessionID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[sessionID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryPaymentStore) MarkSucceeded(ctx context.Context, sessionID string, paidAt time.Time) (bool, error) {
	return s.transition(sessionID, func(p *models.Payment) {
		p.Status = models.PaymentStatusSucceeded
		p.PaidAt = &paidAt
	})
}

func (s *MemoryPaymentStore) MarkFailed(ctx context.Context, sessionID, reason string) (bool, error) {
	return s.transition(sessionID, func(p *models.Payment) {
		p.Status = models.PaymentStatusFailed
		p.FailureReason = reason
	})
}

func (s *MemoryPaymentStore) transition(sessionID string, apply func(p *models.Payment)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[sessionID]
	if !ok {
		return false, ErrPaymentNotFound
	}
	if p.Status != models.PaymentStatusPending {
		return false, nil
	}
	apply(p)
	p.UpdatedAt = time.Now()
	return true, nil
}

// MemoryDriverDirectory водители в памяти процесса
type MemoryDriverDirectory struct {
	mu      sync.RWMutex
	drivers map[uint]*models.User
}

func NewMemoryDriverDirectory(drivers ...models.User) *MemoryDriverDirectory {
	d := &MemoryDriverDirectory{drivers: make(map[uint]*models.User)}
	for i := range drivers {
		d.Put(drivers[i])
	}
	return d
}

// Put добавляет или заменяет водителя
func (d *MemoryDriverDirectory) Put(u models.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := u
	cp.DeviceTokens = append([]string(nil), u.DeviceTokens...)
	d.drivers[u.ID] = &cp
}

func (d *MemoryDriverDirectory) FindDriver(ctx context.Context, id uint) (*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	cp.DeviceTokens = append([]string(nil), u.DeviceTokens...)
	return &cp, nil
}

func (d *MemoryDriverDirectory) FindDrivers(ctx context.Context, ids []uint) ([]models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := d.drivers[id]; ok {
			cp := *u
			cp.DeviceTokens = append([]string(nil), u.DeviceTokens...)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (d *MemoryDriverDirectory) AddDeviceToken(ctx context.Context, driverID uint, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.drivers[driverID]
	if !ok {
		return ErrNotFound
	}
	for _, t := range u.DeviceTokens {
		if t == token {
			return nil
		}
	}
	u.DeviceTokens = append(u.DeviceTokens, token)
	return nil
}

func (d *MemoryDriverDirectory) RemoveDeviceTokens(ctx context.Context, driverID uint, tokens []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.drivers[driverID]
	if !ok {
		return ErrNotFound
	}
	u.DeviceTokens = withoutTokens(u.DeviceTokens, tokens)
	return nil
}

func withoutTokens(current []string, remove []string) []string {
	drop := make(map[string]struct{}, len(remove))
	for _, t := range remove {
		drop[t] = struct{}{}
	}
	kept := current[:0:0]
	for _, t := range current {
		if _, ok := drop[t]; !ok {
			kept = append(kept, t)
		}
	}
	return kept
}

// MemoryOrderNumbers счетчик номеров заказов в памяти
type MemoryOrderNumbers struct {
	seq atomic.Int64
}

func (m *MemoryOrderNumbers) Next(ctx context.Context) (string, error) {
	return FormatOrderNumber(m.seq.Add(1)), nil
}

// FormatOrderNumber номер заказа вида TR-000042
func FormatOrderNumber(seq int64) string {
	return fmt.Sprintf("TR-%06d", seq)
}
