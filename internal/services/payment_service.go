package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"transfer-backend/internal/models"
	"transfer-backend/internal/notify"
	"transfer-backend/internal/repository"
)

// Ключ события, которым процессинг сообщает о завершении списания
const eventChargeComplete = "charge.complete"

// ConfirmResult итог подтверждения оплаты
type ConfirmResult struct {
	Payment *models.Payment `json:"payment"`
	Booking *models.Booking `json:"booking,omitempty"`
	// AlreadyConfirmed платеж подтвердил кто-то раньше: вебхук или другой запрос
	AlreadyConfirmed bool `json:"already_confirmed"`
	// NotificationsSent этот вызов разослал уведомления о создании заказа
	NotificationsSent bool `json:"notifications_sent"`
}

// PaymentService подтверждение оплаты. Вебхук и опрос клиентом могут прийти
// одновременно, каждый шаг условный, поэтому заказ оплачивается и
// рассылается один раз.
type PaymentService struct {
	payments repository.PaymentStore
	bookings *BookingService
	gateway  PaymentGateway
	currency string
	now      func() time.Time
	log      *slog.Logger
	tracer   trace.Tracer
}

// NewPaymentService gateway может быть nil, тогда операции с процессингом
// возвращают ErrPaymentNotConfigured
func NewPaymentService(payments repository.PaymentStore, bookings *BookingService, gateway PaymentGateway, currency string, logger *slog.Logger) *PaymentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentService{
		payments: payments,
		bookings: bookings,
		gateway:  gateway,
		currency: strings.ToLower(currency),
		now:      bookings.now,
		log:      logger.With("component", "payment"),
		tracer:   otel.Tracer("transfer-backend/services"),
	}
}

// amountMinor цена в минимальных единицах валюты
func amountMinor(price float64) int64 {
	return int64(math.Round(price * 100))
}

// StartPayment создает списание у процессинга и сохраняет pending платеж
func (s *PaymentService) StartPayment(ctx context.Context, bookingID, token string) (*ConfirmResult, error) {
	if s.gateway == nil {
		return nil, ErrPaymentNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, validationError("не передан токен оплаты")
	}

	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.PaymentPaid {
		return nil, validationError("заказ %s уже оплачен", b.OrderNumber)
	}
	if b.Status.IsTerminal() {
		return nil, validationError("заказ %s в статусе %s, оплата невозможна", b.OrderNumber, b.Status)
	}

	charge, err := s.gateway.CreateCharge(ctx, ChargeRequest{
		BookingID: b.ID,
		Amount:    amountMinor(b.Price),
		Currency:  s.currency,
		Token:     token,
	})
	if err != nil {
		return nil, fmt.Errorf("создание списания: %w", err)
	}

	now := s.now()
	p := &models.Payment{
		ID:        uuid.NewString(),
		SessionID: charge.ID,
		BookingID: b.ID,
		Amount:    charge.Amount,
		Currency:  charge.Currency,
		Status:    models.PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("сохранение платежа: %w", err)
	}
	s.log.Info("создан платеж", "booking_id", b.ID, "session_id", p.SessionID, "amount", p.Amount, "charge_status", charge.Status)

	return s.apply(ctx, charge)
}

// apply переводит платеж по статусу списания у процессинга
func (s *PaymentService) apply(ctx context.Context, charge *Charge) (*ConfirmResult, error) {
	switch charge.Status {
	case ChargeSuccessful:
		return s.Confirm(ctx, charge.ID)
	case ChargeFailed, ChargeExpired:
		reason := charge.FailureCode
		if reason == "" {
			reason = string(charge.Status)
		}
		p, err := s.MarkFailed(ctx, charge.ID, reason)
		if err != nil {
			return nil, err
		}
		return &ConfirmResult{Payment: p}, nil
	default:
		p, err := s.payments.FindBySession(ctx, charge.ID)
		if err != nil {
			return nil, err
		}
		return &ConfirmResult{Payment: p}, nil
	}
}

// Confirm применяет успешную оплату. Повторный вызов безопасен: он
// доделывает то, что не успел прерванный предыдущий, и ничего не дублирует.
func (s *PaymentService) Confirm(ctx context.Context, sessionID string) (_ *ConfirmResult, err error) {
	ctx, span := s.tracer.Start(ctx, "payment.confirm")
	defer func() { finishSpan(span, err) }()

	p, err := s.payments.FindBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attributeBookingID(p.BookingID))

	var already bool
	switch p.Status {
	case models.PaymentStatusSucceeded:
		already = true
	case models.PaymentStatusPending:
		won, err := s.payments.MarkSucceeded(ctx, sessionID, s.now())
		if err != nil {
			return nil, fmt.Errorf("подтверждение платежа %s: %w", sessionID, err)
		}
		already = !won
		if p, err = s.payments.FindBySession(ctx, sessionID); err != nil {
			return nil, err
		}
		if p.Status != models.PaymentStatusSucceeded {
			return nil, validationError("платеж %s в статусе %s", sessionID, p.Status)
		}
	default:
		return nil, validationError("платеж %s в статусе %s", sessionID, p.Status)
	}

	paidAt := s.now()
	if p.PaidAt != nil {
		paidAt = *p.PaidAt
	}
	if _, err := s.bookings.MarkPaid(ctx, p.BookingID, paidAt); err != nil {
		return nil, err
	}
	b, sent, err := s.bookings.PublishCreated(ctx, p.BookingID)
	if err != nil {
		return nil, err
	}

	if already {
		s.log.Info("платеж уже подтвержден", "booking_id", p.BookingID, "session_id", sessionID, "notifications_sent", sent)
	} else {
		s.log.Info("платеж подтвержден", "booking_id", p.BookingID, "session_id", sessionID, "notifications_sent", sent)
	}
	return &ConfirmResult{Payment: p, Booking: b, AlreadyConfirmed: already, NotificationsSent: sent}, nil
}

// HandleWebhook обрабатывает вебхук процессинга. Тело вебхука не
// используется: событие перечитывается у процессинга по ID. Для событий,
// не относящихся к списаниям, возвращает nil, nil.
func (s *PaymentService) HandleWebhook(ctx context.Context, eventID string) (*ConfirmResult, error) {
	if s.gateway == nil {
		return nil, ErrPaymentNotConfigured
	}
	if strings.TrimSpace(eventID) == "" {
		return nil, validationError("не передан идентификатор события")
	}

	ev, err := s.gateway.RetrieveEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%w: событие %s не подтверждено процессингом: %v", ErrForbidden, eventID, err)
	}
	if ev.Key != eventChargeComplete || ev.Charge == nil {
		s.log.Debug("вебхук пропущен", "event_id", eventID, "key", ev.Key)
		return nil, nil
	}
	s.log.Info("получен вебхук", "event_id", eventID, "session_id", ev.Charge.ID, "booking_id", ev.Charge.BookingID, "charge_status", ev.Charge.Status)
	return s.apply(ctx, ev.Charge)
}

// Verify опрос статуса клиентом после редиректа
func (s *PaymentService) Verify(ctx context.Context, sessionID string) (*ConfirmResult, error) {
	p, err := s.payments.FindBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case models.PaymentStatusSucceeded:
		return s.Confirm(ctx, sessionID)
	case models.PaymentStatusFailed, models.PaymentStatusRefunded:
		return &ConfirmResult{Payment: p}, nil
	}

	if s.gateway == nil {
		return nil, ErrPaymentNotConfigured
	}
	charge, err := s.gateway.RetrieveCharge(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("проверка списания %s: %w", sessionID, err)
	}
	return s.apply(ctx, charge)
}

// MarkFailed pending -> failed. Успешный платеж не трогает.
func (s *PaymentService) MarkFailed(ctx context.Context, sessionID, reason string) (*models.Payment, error) {
	changed, err := s.payments.MarkFailed(ctx, sessionID, reason)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("отметка неуспешного платежа %s: %w", sessionID, err)
	}
	p, err := s.payments.FindBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if changed {
		s.log.Warn("платеж не прошел", "booking_id", p.BookingID, "session_id", sessionID, "reason", reason)
	}
	return p, nil
}

// MarkPaid отмечает заказ оплаченным. Уже оплаченный заказ не меняется.
func (s *BookingService) MarkPaid(ctx context.Context, id string, paidAt time.Time) (*models.Booking, error) {
	b, changed, err := s.update(ctx, id, func(b *models.Booking) bool {
		if b.PaymentPaid {
			return false
		}
		b.PaymentPaid = true
		b.PaidAt = timePtr(paidAt)
		return true
	}, func(b *models.Booking) []notify.Message {
		return []notify.Message{toAdmin(notify.EventBookingPaid, s.payload(b))}
	})
	if err != nil {
		return nil, fmt.Errorf("отметка оплаты заказа %s: %w", id, err)
	}
	if changed {
		s.log.Info("заказ оплачен", "booking_id", id)
	}
	return b, nil
}
