package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      time.Millisecond,
		MaxDelay:       4 * time.Millisecond,
		AttemptTimeout: 50 * time.Millisecond,
	}
}

func TestRetryDeliveredAfterFailures(t *testing.T) {
	calls := 0
	res := Retry(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("временная ошибка")
		}
		return nil
	})

	assert.True(t, res.Delivered())
	assert.Equal(t, 3, res.Attempts)
	assert.NoError(t, res.Err)
}

func TestRetryExhausted(t *testing.T) {
	boom := errors.New("канал недоступен")
	calls := 0
	res := Retry(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		return boom
	})

	assert.Equal(t, RetriesExhausted, res.Status)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, "retries_exhausted", res.Status.String())
}

func TestRetryAttemptTimeout(t *testing.T) {
	p := fastPolicy()
	p.MaxAttempts = 2
	p.AttemptTimeout = 10 * time.Millisecond

	start := time.Now()
	res := Retry(context.Background(), p, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	require.False(t, res.Delivered())
	assert.Equal(t, 2, res.Attempts)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetrySingleAttempt(t *testing.T) {
	p := fastPolicy()
	p.MaxAttempts = 0

	calls := 0
	res := Retry(context.Background(), p, func(ctx context.Context) error {
		calls++
		return errors.New("нет")
	})

	assert.False(t, res.Delivered())
	assert.Equal(t, 1, calls)
}
