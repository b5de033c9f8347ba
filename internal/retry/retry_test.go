package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anhduy-tech/lapxpert-inventory/internal/repository"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDo_RetriesOnVersionConflict(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return repository.ErrVersionConflict
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 2, func(ctx context.Context) error {
		calls++
		return repository.ErrVersionConflict
	})

	require.Equal(t, 2, calls)
	require.ErrorIs(t, err, ErrExhausted)
	require.ErrorIs(t, err, repository.ErrVersionConflict)
}

func TestDo_DoesNotRetryOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), 3, func(ctx context.Context) error {
		calls++
		return boom
	})

	require.Equal(t, 1, calls)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrExhausted)
}

func TestDo_WrappedConflictIsRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.Join(errors.New("update serial"), repository.ErrVersionConflict)
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, 5, func(ctx context.Context) error {
		calls++
		cancel()
		return repository.ErrVersionConflict
	})

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestDo_DefaultsMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 0, func(ctx context.Context) error {
		calls++
		return repository.ErrVersionConflict
	})

	require.ErrorIs(t, err, ErrExhausted)
	require.Equal(t, DefaultMaxAttempts, calls)
}
