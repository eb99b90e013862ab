package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"transfer-backend/internal/matching"
	"transfer-backend/internal/models"
	"transfer-backend/internal/notify"
	"transfer-backend/internal/repository"
	"transfer-backend/internal/scheduler"
)

// BookingConfig параметры жизненного цикла заказа
type BookingConfig struct {
	// Заказы дешевле порога рассылаются всем подходящим водителям
	AutoAssignThreshold float64
	ExpiryWindow        time.Duration
	ReminderLead        time.Duration
}

func DefaultBookingConfig() BookingConfig {
	return BookingConfig{
		AutoAssignThreshold: 150,
		ExpiryWindow:        5 * time.Minute,
		ReminderLead:        30 * time.Minute,
	}
}

// ClassifyAssignment определяет способ назначения по цене. Вызывается один
// раз при создании, результат хранится в заказе.
func ClassifyAssignment(price, threshold float64) models.AssignmentType {
	if price < threshold {
		return models.AssignmentAuto
	}
	return models.AssignmentAdmin
}

type BookingDeps struct {
	Store          repository.BookingStore
	Drivers        repository.DriverDirectory
	Numbers        repository.OrderNumbers
	Notifier       Notifier
	Presence       Presence
	ExpiryTimers   scheduler.Scheduler
	ReminderTimers scheduler.Scheduler
	Logger         *slog.Logger
	// Clock для тестов, по умолчанию time.Now
	Clock func() time.Time
}

// BookingService машина состояний заказа. Каждый переход это одно чтение
// и одна условная запись, после которой ставятся таймеры и уведомления.
type BookingService struct {
	*core
	numbers   repository.OrderNumbers
	cfg       BookingConfig
	expiry    *ExpiryService
	reminders *ReminderService
}

func NewBookingService(deps BookingDeps, cfg BookingConfig) *BookingService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	c := &core{
		store:    deps.Store,
		drivers:  deps.Drivers,
		notifier: deps.Notifier,
		presence: deps.Presence,
		now:      deps.Clock,
		log:      deps.Logger.With("component", "booking"),
		tracer:   otel.Tracer("transfer-backend/services"),
	}
	s := &BookingService{core: c, numbers: deps.Numbers, cfg: cfg}
	s.expiry = &ExpiryService{c: c, timers: deps.ExpiryTimers}
	s.reminders = &ReminderService{c: c, timers: deps.ReminderTimers, lead: cfg.ReminderLead}
	return s
}

func (s *BookingService) Expiry() *ExpiryService      { return s.expiry }
func (s *BookingService) Reminders() *ReminderService { return s.reminders }

func (s *BookingService) validate(in models.BookingCreate) (models.VehicleCategory, error) {
	if strings.TrimSpace(in.Origin) == "" || strings.TrimSpace(in.Destination) == "" {
		return "", validationError("не указан маршрут")
	}
	if in.Passengers <= 0 {
		return "", validationError("количество пассажиров должно быть больше нуля")
	}
	if !in.ScheduledAt.After(s.now()) {
		return "", validationError("время подачи должно быть в будущем")
	}
	if in.ReturnAt != nil && !in.ReturnAt.After(in.ScheduledAt) {
		return "", validationError("обратный рейс должен быть позже подачи")
	}
	if in.Price <= 0 {
		return "", validationError("цена должна быть больше нуля")
	}
	if in.DriverPrice < 0 || in.Commission < 0 {
		return "", validationError("выплата водителю и комиссия не могут быть отрицательными")
	}
	cat, err := models.ParseVehicleCategory(in.Category)
	if err != nil {
		return "", validationError("%v", err)
	}
	return cat, nil
}

// Create создает заказ. Если оператор сразу указал водителя, заказ
// создается принятым. Уведомления о создании уходят сразу только для
// оплаченного заказа, иначе их запускает подтверждение оплаты.
func (s *BookingService) Create(ctx context.Context, in models.BookingCreate) (_ *models.Booking, err error) {
	ctx, span := s.startSpan(ctx, "booking.create", "")
	defer func() { finishSpan(span, err) }()

	cat, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	if in.DriverID != nil {
		if _, err := s.requireDriver(ctx, *in.DriverID); err != nil {
			return nil, err
		}
	}

	number, err := s.numbers.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("номер заказа: %w", err)
	}

	now := s.now()
	b := &models.Booking{
		ID:             uuid.NewString(),
		OrderNumber:    number,
		Origin:         strings.TrimSpace(in.Origin),
		Destination:    strings.TrimSpace(in.Destination),
		ScheduledAt:    in.ScheduledAt,
		ReturnAt:       in.ReturnAt,
		Passengers:     in.Passengers,
		DistanceKm:     in.DistanceKm,
		Category:       cat,
		CategoryLabel:  in.Category,
		Price:          in.Price,
		DriverPrice:    in.DriverPrice,
		Commission:     in.Commission,
		PaymentPaid:    in.PaymentPaid,
		AssignmentType: ClassifyAssignment(in.Price, s.cfg.AutoAssignThreshold),
		Status:         models.BookingStatusPending,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.PaymentPaid {
		b.PaidAt = timePtr(now)
	}
	if in.DriverID != nil {
		id := *in.DriverID
		b.AssignmentType = models.AssignmentAdmin
		b.DriverID = &id
		b.Status = models.BookingStatusAccepted
		b.AcceptedAt = timePtr(now)
	}
	span.SetAttributes(attributeBookingID(b.ID))

	if err := s.store.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("сохранение заказа: %w", err)
	}
	s.log.Info("заказ создан",
		"booking_id", b.ID,
		"order_number", b.OrderNumber,
		"assignment_type", b.AssignmentType,
		"status", b.Status,
		"paid", b.PaymentPaid)

	if b.Status == models.BookingStatusAccepted {
		s.reminders.Schedule(b)
	}

	if !b.PaymentPaid {
		return b, nil
	}
	published, _, err := s.PublishCreated(ctx, b.ID)
	if err != nil {
		// Заказ уже сохранен, уведомления досылает Recover
		s.log.Error("не удалось разослать уведомления о создании", "booking_id", b.ID, "error", err)
		return b, nil
	}
	return published, nil
}

// PublishCreated рассылает уведомления о создании заказа ровно один раз.
// Повторный вызов находит NotificationsSentAt и ничего не делает.
// Для автоназначения здесь же начинается окно на принятие.
func (s *BookingService) PublishCreated(ctx context.Context, id string) (_ *models.Booking, sent bool, err error) {
	ctx, span := s.startSpan(ctx, "booking.publish_created", id)
	defer func() { finishSpan(span, err) }()

	current, err := s.find(ctx, id)
	if err != nil {
		return nil, false, err
	}

	var recipients []uint
	if current.AssignmentType == models.AssignmentAuto && current.DriverID == nil {
		recipients = s.liveRecipients(ctx, current)
	}

	b, sent, err := s.update(ctx, id, func(b *models.Booking) bool {
		if b.NotificationsSentAt != nil || !b.PaymentPaid || b.Status.IsTerminal() {
			return false
		}
		now := s.now()
		b.NotificationsSentAt = timePtr(now)
		if b.AssignmentType == models.AssignmentAuto && b.Status == models.BookingStatusPending && b.DriverID == nil && !b.IsExpired {
			b.ExpiresAt = timePtr(now.Add(s.cfg.ExpiryWindow))
		}
		return true
	}, func(b *models.Booking) []notify.Message {
		p := s.payload(b)
		msgs := []notify.Message{toAdmin(notify.EventBookingCreated, p)}

		if b.IsLive() {
			s.expiry.Schedule(b)
			msgs = append(msgs, toLive(notify.EventLiveBookingAdded, p, recipients)...)
			if len(recipients) > 0 {
				s.notifier.Push(notify.PushRequest{
					BookingID: b.ID,
					DriverIDs: recipients,
					Title:     "Новый заказ",
					Body:      tripSummary(b),
					Data:      pushData(b, notify.EventLiveBookingAdded),
				})
			}
		}

		if b.DriverID != nil {
			listing := notify.EventAssignedBookingAdded
			if b.Status == models.BookingStatusAccepted {
				listing = notify.EventUpcomingBookingAdded
			}
			msgs = append(msgs,
				toDriver(*b.DriverID, notify.EventBookingAssigned, p),
				toDriver(*b.DriverID, listing, p),
			)
			s.pushAssigned(b)
		}
		return msgs
	})
	if err != nil {
		return nil, false, err
	}
	if sent {
		s.log.Info("уведомления о создании разосланы", "booking_id", id, "live", b.IsLive(), "recipients", len(recipients))
	}
	return b, sent, nil
}

func (s *BookingService) pushAssigned(b *models.Booking) {
	s.notifier.Push(notify.PushRequest{
		BookingID: b.ID,
		DriverIDs: []uint{*b.DriverID},
		Title:     "Вам назначен заказ",
		Body:      tripSummary(b),
		Data:      pushData(b, notify.EventBookingAssigned),
	})
}

func (s *BookingService) requireDriver(ctx context.Context, id uint) (*models.User, error) {
	d, err := s.drivers.FindDriver(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, validationError("водитель %d не найден", id)
		}
		return nil, err
	}
	if d.Role != models.RoleDriver {
		return nil, validationError("пользователь %d не водитель", id)
	}
	return d, nil
}

// Assign назначает или снимает водителя оператором. Статус остается
// pending, флаги истечения сбрасываются. Автоназначаемый заказ без
// водителя возвращается в общий список с новым окном.
func (s *BookingService) Assign(ctx context.Context, id string, driverID *uint) (_ *models.Booking, err error) {
	ctx, span := s.startSpan(ctx, "booking.assign", id)
	defer func() { finishSpan(span, err) }()

	b, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BookingStatusPending {
		return nil, invalidTransition("assign", b.Status)
	}
	if driverID != nil {
		if _, err := s.requireDriver(ctx, *driverID); err != nil {
			return nil, err
		}
		if b.AssignedTo(*driverID) && !b.IsExpired {
			return b, nil
		}
	} else if b.DriverID == nil && !b.IsExpired {
		return b, nil
	}

	prev := b.DriverID
	wasLive := b.IsLive()
	recipients := []uint{}
	if b.AssignmentType == models.AssignmentAuto {
		recipients = s.liveRecipients(ctx, b)
	}

	next := b.Clone()
	next.DriverID = nil
	if driverID != nil {
		d := *driverID
		next.DriverID = &d
	}
	next.IsExpired = false
	next.ExpiredAt = nil
	next.ExpiryNotifiedAt = nil
	next.ExpiresAt = nil
	if next.AssignmentType == models.AssignmentAuto && next.DriverID == nil && next.NotificationsSentAt != nil {
		next.ExpiresAt = timePtr(s.now().Add(s.cfg.ExpiryWindow))
	}

	err = s.commit(ctx, next, func(b *models.Booking) []notify.Message {
		if b.IsExpiryEligible() {
			s.expiry.Schedule(b)
		} else {
			s.expiry.Cancel(b.ID)
		}

		p := s.payload(b)
		p.PreviousDriverID = prev

		var msgs []notify.Message
		if b.DriverID != nil {
			msgs = append(msgs, toAdmin(notify.EventBookingAssigned, p))
		} else {
			msgs = append(msgs, toAdmin(notify.EventBookingUnassigned, p))
		}
		if prev != nil && !b.AssignedTo(*prev) {
			msgs = append(msgs,
				toDriver(*prev, notify.EventBookingUnassigned, p),
				toDriver(*prev, notify.EventAssignedBookingRemoved, p),
			)
		}
		if b.DriverID != nil && (prev == nil || *prev != *b.DriverID) {
			msgs = append(msgs,
				toDriver(*b.DriverID, notify.EventBookingAssigned, p),
				toDriver(*b.DriverID, notify.EventAssignedBookingAdded, p),
			)
			s.pushAssigned(b)
		}

		live := b.IsLive()
		switch {
		case wasLive && !live:
			msgs = append(msgs, toLive(notify.EventLiveBookingRemoved, p, recipients)...)
		case !wasLive && live:
			msgs = append(msgs, toLive(notify.EventLiveBookingAdded, p, recipients)...)
			if len(recipients) > 0 {
				s.notifier.Push(notify.PushRequest{
					BookingID: b.ID,
					DriverIDs: recipients,
					Title:     "Новый заказ",
					Body:      tripSummary(b),
					Data:      pushData(b, notify.EventLiveBookingAdded),
				})
			}
		case wasLive && live:
			msgs = append(msgs, toLive(notify.EventLiveBookingUpdated, p, recipients)...)
		}
		return msgs
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("водитель назначен оператором", "booking_id", id, "driver_id", uintOrZero(next.DriverID), "previous_driver_id", uintOrZero(prev))
	return next, nil
}

// Accept водитель принимает заказ: pending -> accepted
func (s *BookingService) Accept(ctx context.Context, id string, driverID uint) (_ *models.Booking, err error) {
	ctx, span := s.startSpan(ctx, "booking.accept", id)
	defer func() { finishSpan(span, err) }()

	b, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BookingStatusPending {
		return nil, invalidTransition("accept", b.Status)
	}
	if b.IsExpired {
		return nil, ErrBookingExpired
	}
	if b.DriverID != nil && !b.AssignedTo(driverID) {
		return nil, ErrForbidden
	}
	// Заказ оператора без водителя еще никому не назначен
	if b.AssignmentType == models.AssignmentAdmin && b.DriverID == nil {
		return nil, ErrForbidden
	}

	driver, err := s.drivers.FindDriver(ctx, driverID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	if b.AssignmentType == models.AssignmentAuto && b.DriverID == nil {
		if b.NotificationsSentAt == nil {
			return nil, ErrForbidden
		}
		if !matching.CanServe(driver, b.Category) {
			return nil, fmt.Errorf("%w: автомобиль не подходит под класс %s", ErrForbidden, b.Category)
		}
	}

	wasLive := b.IsLive()
	wasAssigned := b.DriverID != nil
	var recipients []uint
	if wasLive {
		recipients = s.liveRecipients(ctx, b)
	}

	now := s.now()
	next := b.Clone()
	next.DriverID = &driverID
	next.Status = models.BookingStatusAccepted
	next.AcceptedAt = timePtr(now)
	next.ExpiresAt = nil

	err = s.commit(ctx, next, func(b *models.Booking) []notify.Message {
		s.expiry.Cancel(b.ID)
		s.reminders.Schedule(b)

		p := s.payload(b)
		msgs := []notify.Message{
			toAdmin(notify.EventBookingAccepted, p),
			toDriver(driverID, notify.EventBookingAccepted, p),
		}
		if wasLive {
			msgs = append(msgs, toLive(notify.EventLiveBookingRemoved, p, recipients)...)
		}
		if wasAssigned {
			msgs = append(msgs, toDriver(driverID, notify.EventAssignedBookingRemoved, p))
		}
		msgs = append(msgs, toDriver(driverID, notify.EventUpcomingBookingAdded, p))
		return msgs
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("заказ принят водителем", "booking_id", id, "driver_id", driverID, "driver", driver.FullName())
	return next, nil
}

// Reject отказ водителя. От автоназначаемого заказа водитель отказывается
// только за себя, заказ остается в общем списке для остальных. Заказ,
// назначенный оператором, переходит в rejected.
func (s *BookingService) Reject(ctx context.Context, id string, driverID uint, reason string) (_ *models.Booking, err error) {
	ctx, span := s.startSpan(ctx, "booking.reject", id)
	defer func() { finishSpan(span, err) }()

	b, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BookingStatusPending {
		return nil, invalidTransition("reject", b.Status)
	}
	if b.DriverID != nil && !b.AssignedTo(driverID) {
		return nil, ErrForbidden
	}

	if b.AssignmentType == models.AssignmentAuto {
		return s.declineAuto(ctx, b, driverID, reason)
	}
	if b.DriverID == nil {
		return nil, ErrForbidden
	}

	next := b.Clone()
	next.Status = models.BookingStatusRejected
	next.RejectReason = reason
	next.ExpiresAt = nil

	err = s.commit(ctx, next, func(b *models.Booking) []notify.Message {
		s.expiry.Cancel(b.ID)
		s.reminders.Cancel(b.ID)

		p := s.payload(b)
		p.Reason = reason
		return []notify.Message{
			toAdmin(notify.EventBookingRejected, p),
			toDriver(driverID, notify.EventBookingRejected, p),
			toDriver(driverID, notify.EventAssignedBookingRemoved, p),
		}
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("водитель отказался от назначенного заказа", "booking_id", id, "driver_id", driverID, "reason", reason)
	return next, nil
}

// declineAuto отказ от автоназначаемого заказа. Если заказ был закреплен
// за этим водителем, он возвращается в общий список.
func (s *BookingService) declineAuto(ctx context.Context, b *models.Booking, driverID uint, reason string) (*models.Booking, error) {
	if b.RejectedByDriver(driverID) && b.DriverID == nil {
		return b, nil
	}

	wasAssigned := b.DriverID != nil
	next := b.Clone()
	if !next.RejectedByDriver(driverID) {
		next.RejectedBy = append(next.RejectedBy, int64(driverID))
	}
	next.RejectReason = reason
	if wasAssigned {
		next.DriverID = nil
		if next.NotificationsSentAt != nil && !next.IsExpired {
			next.ExpiresAt = timePtr(s.now().Add(s.cfg.ExpiryWindow))
		}
	}

	var recipients []uint
	if wasAssigned {
		recipients = s.liveRecipients(ctx, next)
	}

	err := s.commit(ctx, next, func(b *models.Booking) []notify.Message {
		p := s.payload(b)
		p.Reason = reason
		p.DriverID = &driverID

		msgs := []notify.Message{toAdmin(notify.EventBookingRejected, p)}
		if wasAssigned {
			msgs = append(msgs,
				toDriver(driverID, notify.EventBookingUnassigned, p),
				toDriver(driverID, notify.EventAssignedBookingRemoved, p),
			)
			if b.IsExpiryEligible() {
				s.expiry.Schedule(b)
				msgs = append(msgs, toLive(notify.EventLiveBookingAdded, s.payload(b), recipients)...)
			}
		} else {
			msgs = append(msgs, toDriver(driverID, notify.EventLiveBookingRemoved, p))
		}
		return msgs
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("водитель отказался от заказа из общего списка", "booking_id", b.ID, "driver_id", driverID, "reason", reason)
	return next, nil
}

// Advance следующий шаг поездки. Шаги строго по порядку, только
// назначенный водитель.
func (s *BookingService) Advance(ctx context.Context, id string, driverID uint, target models.BookingStatus) (_ *models.Booking, err error) {
	ctx, span := s.startSpan(ctx, "booking.advance", id)
	defer func() { finishSpan(span, err) }()

	b, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	step, ok := b.Status.Next()
	if !ok || step != target {
		return nil, invalidTransition("advance to "+string(target), b.Status)
	}
	if !b.AssignedTo(driverID) {
		return nil, ErrForbidden
	}

	now := s.now()
	next := b.Clone()
	next.Status = target
	next.ExpiresAt = nil
	switch target {
	case models.BookingStatusStarted:
		next.StartedAt = timePtr(now)
	case models.BookingStatusPickedUp:
		next.PickedUpAt = timePtr(now)
	case models.BookingStatusDroppedOff:
		next.DroppedOffAt = timePtr(now)
	case models.BookingStatusCompleted:
		next.CompletedAt = timePtr(now)
	}

	event, _ := notify.StatusEvent(target)
	err = s.commit(ctx, next, func(b *models.Booking) []notify.Message {
		s.expiry.Cancel(b.ID)
		s.reminders.Cancel(b.ID)

		p := s.payload(b)
		msgs := []notify.Message{
			toAdmin(event, p),
			toDriver(driverID, event, p),
		}
		if target == models.BookingStatusStarted {
			msgs = append(msgs, toDriver(driverID, notify.EventUpcomingBookingRemoved, p))
		}
		return msgs
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("статус поездки изменен", "booking_id", id, "driver_id", driverID, "status", target)
	return next, nil
}

// Cancel отмена заказа оператором до начала поездки
func (s *BookingService) Cancel(ctx context.Context, id, reason string) (_ *models.Booking, err error) {
	ctx, span := s.startSpan(ctx, "booking.cancel", id)
	defer func() { finishSpan(span, err) }()

	b, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BookingStatusPending && b.Status != models.BookingStatusAccepted {
		return nil, invalidTransition("cancel", b.Status)
	}

	wasLive := b.IsLive()
	prevStatus := b.Status
	var recipients []uint
	if wasLive {
		recipients = s.liveRecipients(ctx, b)
	}

	next := b.Clone()
	next.Status = models.BookingStatusCancelled
	next.CancelReason = reason
	next.CancelledAt = timePtr(s.now())
	next.ExpiresAt = nil

	err = s.commit(ctx, next, func(b *models.Booking) []notify.Message {
		s.expiry.Cancel(b.ID)
		s.reminders.Cancel(b.ID)

		p := s.payload(b)
		p.Reason = reason
		msgs := []notify.Message{toAdmin(notify.EventBookingCancelled, p)}
		if b.DriverID != nil {
			listing := notify.EventAssignedBookingRemoved
			if prevStatus == models.BookingStatusAccepted {
				listing = notify.EventUpcomingBookingRemoved
			}
			msgs = append(msgs,
				toDriver(*b.DriverID, notify.EventBookingCancelled, p),
				toDriver(*b.DriverID, listing, p),
			)
		}
		if wasLive {
			msgs = append(msgs, toLive(notify.EventLiveBookingRemoved, p, recipients)...)
		}
		return msgs
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("заказ отменен", "booking_id", id, "reason", reason)
	return next, nil
}

func (s *BookingService) Get(ctx context.Context, id string) (*models.Booking, error) {
	return s.find(ctx, id)
}

// ListLive общий список для водителя: только классы, которые может
// обслужить его автомобиль, без заказов, от которых он отказался
func (s *BookingService) ListLive(ctx context.Context, driverID uint) ([]models.Booking, error) {
	driver, err := s.drivers.FindDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	vehicle, ok := driver.VehicleType()
	if !ok {
		return []models.Booking{}, nil
	}

	all, err := s.store.Find(ctx, repository.LiveFilter())
	if err != nil {
		return nil, err
	}
	out := make([]models.Booking, 0, len(all))
	for _, b := range all {
		if matching.Compatible(vehicle, b.Category) && !b.RejectedByDriver(driverID) {
			out = append(out, b)
		}
	}
	return out, nil
}

// ListAssigned заказы, назначенные водителю оператором и еще не принятые
func (s *BookingService) ListAssigned(ctx context.Context, driverID uint) ([]models.Booking, error) {
	return s.store.Find(ctx, repository.BookingFilter{
		Statuses: []models.BookingStatus{models.BookingStatusPending},
		DriverID: &driverID,
	})
}

// ListUpcoming принятые водителем заказы
func (s *BookingService) ListUpcoming(ctx context.Context, driverID uint) ([]models.Booking, error) {
	return s.store.Find(ctx, repository.BookingFilter{
		Statuses: []models.BookingStatus{models.BookingStatusAccepted},
		DriverID: &driverID,
	})
}

// Recover восстанавливает таймеры после рестарта и досылает уведомления
// о создании по оплаченным заказам, где их не успели отправить
func (s *BookingService) Recover(ctx context.Context) error {
	unpublished, err := s.store.Find(ctx, repository.UnpublishedFilter())
	if err != nil {
		return fmt.Errorf("поиск неразосланных заказов: %w", err)
	}
	for _, b := range unpublished {
		if _, _, err := s.PublishCreated(ctx, b.ID); err != nil {
			s.log.Error("не удалось дослать уведомления о создании", "booking_id", b.ID, "error", err)
		}
	}

	expiries, err := s.expiry.Recover(ctx)
	if err != nil {
		return err
	}
	reminders, err := s.reminders.Recover(ctx)
	if err != nil {
		return err
	}
	s.log.Info("таймеры восстановлены",
		"expiry", expiries,
		"reminders", reminders,
		"republished", len(unpublished))
	return nil
}

func uintOrZero(v *uint) uint {
	if v == nil {
		return 0
	}
	return *v
}
