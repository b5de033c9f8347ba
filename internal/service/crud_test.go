package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anhduy-tech/lapxpert-inventory/internal/repository"
)

func TestSerialNumberService_CreateSerialNumber(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	sn, err := env.service.CreateSerialNumber(ctx, CreateSerialInput{
		SerialValue: "SN-MANUAL-1",
		VariantID:   7,
		Supplier:    "acme",
	}, "tester")
	require.NoError(t, err)
	require.Equal(t, repository.StatusAvailable, sn.Status)
	require.NotZero(t, sn.ID)

	// Дубликат значения отклоняется
	_, err = env.service.CreateSerialNumber(ctx, CreateSerialInput{
		SerialValue: "SN-MANUAL-1",
		VariantID:   8,
	}, "tester")
	require.ErrorIs(t, err, repository.ErrDuplicateSerial)

	// Аудит создания записан
	entries, err := env.audit.ListBySerial(ctx, sn.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, repository.AuditActionCreate, entries[0].Action)
}

func TestSerialNumberService_UpdateSerialNumber(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	ids := env.seedAvailable(t, 7, 2)

	t.Run("provenance fields are editable", func(t *testing.T) {
		supplier := "acme"
		note := "shelf 3"
		sn, err := env.service.UpdateSerialNumber(ctx, ids[0], UpdateSerialInput{
			Supplier: &supplier,
			Note:     &note,
		}, "tester")
		require.NoError(t, err)
		require.Equal(t, "acme", sn.Supplier)
		require.Equal(t, "shelf 3", sn.Note)
	})

	t.Run("serial value is immutable once reserved", func(t *testing.T) {
		_, err := env.service.ReserveSerials(ctx, ids[1:], repository.ChannelOrder, "ORD-1", "tester")
		require.NoError(t, err)

		newValue := "SN-RENAMED"
		_, err = env.service.UpdateSerialNumber(ctx, ids[1], UpdateSerialInput{
			SerialValue: &newValue,
		}, "tester")
		require.Error(t, err)
		require.Contains(t, err.Error(), "immutable")
	})
}

func TestSerialNumberService_DeleteSerialNumber(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	ids := env.seedAvailable(t, 7, 2)

	// Свободная единица списывается через DAMAGED
	require.NoError(t, env.service.DeleteSerialNumber(ctx, ids[0], "tester", "physically retired"))
	require.Equal(t, repository.StatusDisposed, env.mustGet(t, ids[0]).Status)

	// Списание терминально
	err := env.service.ChangeStatus(ctx, ids[0], repository.StatusAvailable, "tester", "oops")
	require.ErrorIs(t, err, repository.ErrIllegalTransition)

	// Зарезервированную единицу списать нельзя
	_, err = env.service.ReserveSerials(ctx, ids[1:], repository.ChannelOrder, "ORD-1", "tester")
	require.NoError(t, err)
	err = env.service.DeleteSerialNumber(ctx, ids[1], "tester", "retired")
	require.ErrorIs(t, err, repository.ErrIllegalTransition)
}

func TestSerialNumberService_ChangeStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	ids := env.seedAvailable(t, 7, 1)

	require.NoError(t, env.service.ChangeStatus(ctx, ids[0], repository.StatusDisplayUnit, "tester", "showcase"))
	require.Equal(t, repository.StatusDisplayUnit, env.mustGet(t, ids[0]).Status)

	require.NoError(t, env.service.ChangeStatus(ctx, ids[0], repository.StatusAvailable, "tester", "back to stock"))

	err := env.service.ChangeStatus(ctx, ids[0], repository.Status("BOGUS"), "tester", "")
	require.Error(t, err)
}

func TestSerialNumberService_GenerateSerialNumbers(t *testing.T) {
	ctx := context.Background()

	t.Run("generates the requested quantity with a shared batch", func(t *testing.T) {
		env := newTestEnv(t)

		created, err := env.service.GenerateSerialNumbers(ctx, 7, 5, "LAP-{TIMESTAMP}-{SEQ}", "tester")
		require.NoError(t, err)
		require.Len(t, created, 5)

		batchID := created[0].BatchID
		require.True(t, strings.HasPrefix(batchID, "BATCH-"))

		seen := make(map[string]bool)
		for _, sn := range created {
			require.Equal(t, repository.StatusAvailable, sn.Status)
			require.Equal(t, int64(7), sn.VariantID)
			require.Equal(t, batchID, sn.BatchID)
			require.True(t, strings.HasPrefix(sn.SerialValue, "LAP-"))
			require.False(t, seen[sn.SerialValue], "serial values must be unique")
			seen[sn.SerialValue] = true
		}
	})

	t.Run("skips values already taken", func(t *testing.T) {
		env := newTestEnv(t)

		// Занимаем значение, которое выдал бы первый номер последовательности
		first, err := env.service.GenerateSerialNumbers(ctx, 7, 1, "FIX-{SEQ}", "tester")
		require.NoError(t, err)
		require.Equal(t, "FIX-000001", first[0].SerialValue)

		more, err := env.service.GenerateSerialNumbers(ctx, 7, 2, "FIX-{SEQ}", "tester")
		require.NoError(t, err)
		require.Len(t, more, 2)
		require.Equal(t, "FIX-000002", more[0].SerialValue)
		require.Equal(t, "FIX-000003", more[1].SerialValue)
	})

	t.Run("pattern without seq cannot satisfy more than one", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.service.GenerateSerialNumbers(ctx, 7, 2, "STATIC", "tester")
		require.Error(t, err)
	})
}

func TestSerialNumberService_QueryHelpers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	ids := env.seedAvailable(t, 7, 3)
	_, err := env.service.ReserveSerials(ctx, ids[:2], repository.ChannelOrder, "ORD-1", "tester")
	require.NoError(t, err)
	require.NoError(t, env.service.ConfirmSale(ctx, ids[:1], "ORD-1", "tester"))

	reservedIDs, err := env.service.ReservedSerialIDsForOrder(ctx, "ORD-1")
	require.NoError(t, err)
	require.Equal(t, ids[1:2], reservedIDs)

	// Держателю видны и резерв, и продажа
	held, err := env.service.SerialsByHoldReference(ctx, "ORD-1")
	require.NoError(t, err)
	require.Len(t, held, 2)

	available, err := env.service.AvailableSerials(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, available, 1)

	sold, err := env.service.SoldSerials(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, sold, 1)
	require.Equal(t, ids[0], sold[0].ID)
}
