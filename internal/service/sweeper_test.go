package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/anhduy-tech/lapxpert-inventory/internal/repository"
)

// holdAge переводит hold единицы в прошлое, имитируя брошенный резерв
func (e *testEnv) holdAge(t *testing.T, id int64, age time.Duration) {
	t.Helper()

	sn, err := e.serials.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, sn.HoldAt)

	past := sn.HoldAt.Add(-age)
	sn.HoldAt = &past
	require.NoError(t, e.serials.Update(context.Background(), &sn))
}

func TestSweeper_SweepOnce(t *testing.T) {
	ctx := context.Background()

	cfg := SweeperConfig{
		Interval:        time.Minute,
		HoldTimeout:     15 * time.Minute,
		TempHoldTimeout: 30 * time.Minute,
	}

	t.Run("releases holds older than the timeout", func(t *testing.T) {
		env := newTestEnv(t)
		sweeper := NewSweeper(zap.NewNop(), env.service, cfg)

		ids := env.seedAvailable(t, 7, 2)
		_, err := env.service.ReserveSerials(ctx, ids, repository.ChannelOrder, "ORD-1", "tester")
		require.NoError(t, err)

		// Первый резерв просрочен, второй ещё жив
		env.holdAge(t, ids[0], 20*time.Minute)

		released, err := sweeper.SweepOnce(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, released)

		require.Equal(t, repository.StatusAvailable, env.mustGet(t, ids[0]).Status)
		require.Equal(t, repository.StatusReserved, env.mustGet(t, ids[1]).Status)
	})

	t.Run("temporary references get the extended timeout", func(t *testing.T) {
		env := newTestEnv(t)
		sweeper := NewSweeper(zap.NewNop(), env.service, cfg)

		ids := env.seedAvailable(t, 7, 2)
		_, err := env.service.ReserveSerials(ctx, ids[:1], repository.ChannelCart, "CART-session", "tester")
		require.NoError(t, err)
		_, err = env.service.ReserveSerials(ctx, ids[1:], repository.ChannelOrder, "TEMP-draft", "tester")
		require.NoError(t, err)

		// Старше обычного таймаута, но моложе увеличенного
		env.holdAge(t, ids[0], 20*time.Minute)
		env.holdAge(t, ids[1], 40*time.Minute)

		released, err := sweeper.SweepOnce(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, released)

		// Корзина ещё живёт, просроченный TEMP- снят
		require.Equal(t, repository.StatusReserved, env.mustGet(t, ids[0]).Status)
		require.Equal(t, repository.StatusAvailable, env.mustGet(t, ids[1]).Status)
	})

	t.Run("sweep attributes the release to system", func(t *testing.T) {
		env := newTestEnv(t)
		sweeper := NewSweeper(zap.NewNop(), env.service, cfg)

		ids := env.seedAvailable(t, 7, 1)
		_, err := env.service.ReserveSerials(ctx, ids, repository.ChannelOrder, "ORD-1", "tester")
		require.NoError(t, err)
		env.holdAge(t, ids[0], 20*time.Minute)

		_, err = sweeper.SweepOnce(ctx)
		require.NoError(t, err)

		entries, err := env.audit.ListBySerial(ctx, ids[0])
		require.NoError(t, err)
		require.NotEmpty(t, entries)
		require.Equal(t, repository.AuditActionRelease, entries[0].Action)
		require.Equal(t, repository.SystemActor, entries[0].Actor)
		require.Equal(t, "hold expired", entries[0].Reason)
	})

	t.Run("nothing expired is a no-op", func(t *testing.T) {
		env := newTestEnv(t)
		sweeper := NewSweeper(zap.NewNop(), env.service, cfg)

		ids := env.seedAvailable(t, 7, 1)
		_, err := env.service.ReserveSerials(ctx, ids, repository.ChannelOrder, "ORD-1", "tester")
		require.NoError(t, err)

		released, err := sweeper.SweepOnce(ctx)
		require.NoError(t, err)
		require.Zero(t, released)
		require.Equal(t, repository.StatusReserved, env.mustGet(t, ids[0]).Status)
	})

	t.Run("concurrent sweep of the same unit is safe", func(t *testing.T) {
		env := newTestEnv(t)
		sweeper := NewSweeper(zap.NewNop(), env.service, cfg)

		ids := env.seedAvailable(t, 7, 1)
		_, err := env.service.ReserveSerials(ctx, ids, repository.ChannelOrder, "ORD-1", "tester")
		require.NoError(t, err)
		env.holdAge(t, ids[0], 20*time.Minute)

		released, err := sweeper.SweepOnce(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, released)

		// Второй проход видит уже освобождённую единицу
		released, err = sweeper.SweepOnce(ctx)
		require.NoError(t, err)
		require.Zero(t, released)
	})
}

func TestSweeper_Start_StopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	sweeper := NewSweeper(zap.NewNop(), env.service, SweeperConfig{
		Interval:        10 * time.Millisecond,
		HoldTimeout:     15 * time.Minute,
		TempHoldTimeout: 30 * time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sweeper.Start(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
