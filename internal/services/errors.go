package services

import (
	"errors"
	"fmt"

	"transfer-backend/internal/models"
)

var (
	ErrValidation           = errors.New("некорректные данные")
	ErrForbidden            = errors.New("действие недоступно")
	ErrBookingExpired       = errors.New("время на принятие заказа истекло")
	ErrPaymentNotConfigured = errors.New("платежный провайдер не настроен")
	ErrPushNotConfigured    = errors.New("пуш-уведомления не настроены")
)

// InvalidTransitionError попытка перехода из неподходящего статуса
type InvalidTransitionError struct {
	Op     string
	Status models.BookingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: недопустимо в статусе %s", e.Op, e.Status)
}

func invalidTransition(op string, status models.BookingStatus) error {
	return &InvalidTransitionError{Op: op, Status: status}
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsInvalidTransition сообщает, является ли ошибка недопустимым переходом
func IsInvalidTransition(err error) bool {
	var e *InvalidTransitionError
	return errors.As(err, &e)
}
