package local

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anhduy-tech/lapxpert-inventory/internal/lock"
)

func TestLocker_MutualExclusionPerKey(t *testing.T) {
	locker := NewLocker()
	key := lock.VariantKey(1)

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), key, func(ctx context.Context) error {
				counter++
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 50, counter)
}

func TestLocker_IndependentKeys(t *testing.T) {
	locker := NewLocker()

	// Вложенный захват другого ключа не должен блокироваться
	err := locker.WithLock(context.Background(), lock.VariantKey(1), func(ctx context.Context) error {
		return locker.WithLock(ctx, lock.VariantKey(2), func(ctx context.Context) error {
			return nil
		})
	})
	require.NoError(t, err)
}

func TestLocker_PropagatesError(t *testing.T) {
	locker := NewLocker()
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), lock.SerialKey(5), func(ctx context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}

func TestLocker_CancelledContext(t *testing.T) {
	locker := NewLocker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := locker.WithLock(ctx, lock.VariantKey(1), func(ctx context.Context) error {
		t.Fatal("fn must not run with cancelled context")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
