package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

func fastRetrier(opts ...Option) *Retrier {
	return New(append([]Option{
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(2 * time.Millisecond),
		WithJitter(0),
	}, opts...)...)
}

func TestRetrier_RetriesTransientErrors(t *testing.T) {
	attempts := 0
	err := fastRetrier(WithMaxAttempts(3)).Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return shared.ErrTransientStore
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetrier_GivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := fastRetrier(WithMaxAttempts(2)).Do(context.Background(), func(context.Context) error {
		attempts++
		return shared.ErrTransientStore
	})

	assert.ErrorIs(t, err, shared.ErrTransientStore)
	assert.Equal(t, 2, attempts)
}

func TestRetrier_DoesNotRetryDomainErrors(t *testing.T) {
	attempts := 0
	err := fastRetrier().Do(context.Background(), func(context.Context) error {
		attempts++
		return shared.ErrUserNotFound
	})

	assert.True(t, shared.IsNotFound(err))
	assert.Equal(t, 1, attempts)
}

func TestRetrier_PermanentStopsImmediately(t *testing.T) {
	attempts := 0
	err := fastRetrier().Do(context.Background(), func(context.Context) error {
		attempts++
		return Permanent(shared.ErrTransientStore)
	})

	assert.ErrorIs(t, err, shared.ErrTransientStore)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, 1, attempts)
}

func TestRetrier_CustomRetryIf(t *testing.T) {
	flaky := errors.New("flaky")
	attempts := 0
	retried := 0

	err := fastRetrier(
		WithMaxAttempts(4),
		WithRetryIf(func(err error) bool { return errors.Is(err, flaky) }),
		WithOnRetry(func(error, time.Duration) { retried++ }),
	).Do(context.Background(), func(context.Context) error {
		attempts++
		return flaky
	})

	assert.ErrorIs(t, err, flaky)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, 3, retried)
}

func TestDoWithData(t *testing.T) {
	attempts := 0
	got, err := DoWithData(context.Background(), fastRetrier(), func(context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, shared.ErrTimeout
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}
