package notify

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy параметры повторов публикации
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy 3 попытки, задержка удваивается от 500мс до 5с,
// на каждую попытку не больше 10с
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

// DeliveryStatus итог доставки
type DeliveryStatus int

const (
	Delivered DeliveryStatus = iota
	RetriesExhausted
)

func (s DeliveryStatus) String() string {
	if s == Delivered {
		return "delivered"
	}
	return "retries_exhausted"
}

// Result итог Retry. Err заполнен только для RetriesExhausted.
type Result struct {
	Status   DeliveryStatus
	Attempts int
	Err      error
}

func (r Result) Delivered() bool { return r.Status == Delivered }

// Retry выполняет op с экспоненциальной задержкой между попытками.
// Каждая попытка получает собственный контекст с AttemptTimeout.
func Retry(ctx context.Context, p RetryPolicy, op func(ctx context.Context) error) Result {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = p.MaxDelay
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		attemptCtx := ctx
		if p.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
			defer cancel()
		}
		return op(attemptCtx)
	}, b)

	if err != nil {
		return Result{Status: RetriesExhausted, Attempts: attempts, Err: err}
	}
	return Result{Status: Delivered, Attempts: attempts}
}
