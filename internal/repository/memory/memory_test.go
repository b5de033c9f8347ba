package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anhduy-tech/lapxpert-inventory/internal/repository"
)

func newSerial(value string, variantID int64, status repository.Status) *repository.SerialNumber {
	return &repository.SerialNumber{
		SerialValue: value,
		VariantID:   variantID,
		Status:      status,
	}
}

func TestRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	sn := newSerial("SN-001", 1, repository.StatusAvailable)
	require.NoError(t, repo.Create(ctx, sn))
	require.Equal(t, int64(1), sn.ID)
	require.Equal(t, int64(1), sn.Version)

	got, err := repo.GetByID(ctx, sn.ID)
	require.NoError(t, err)
	require.Equal(t, "SN-001", got.SerialValue)

	_, err = repo.GetByID(ctx, 999)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRepository_GetByIDs_DeduplicatesInput(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	a := newSerial("SN-001", 1, repository.StatusAvailable)
	b := newSerial("SN-002", 1, repository.StatusAvailable)
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	// Повторы и несуществующие ID не дают ни дублей, ни ошибок,
	// результат упорядочен по ID как у SQL с ANY
	got, err := repo.GetByIDs(ctx, []int64{b.ID, a.ID, b.ID, 999})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, a.ID, got[0].ID)
	require.Equal(t, b.ID, got[1].ID)
}

func TestRepository_CreateDuplicateSerial(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	require.NoError(t, repo.Create(ctx, newSerial("SN-001", 1, repository.StatusAvailable)))
	err := repo.Create(ctx, newSerial("SN-001", 2, repository.StatusAvailable))
	require.ErrorIs(t, err, repository.ErrDuplicateSerial)

	exists, err := repo.ExistsBySerialValue(ctx, "SN-001")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestRepository_Update_VersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	sn := newSerial("SN-001", 1, repository.StatusAvailable)
	require.NoError(t, repo.Create(ctx, sn))

	// Два читателя получают одну и ту же версию
	first, err := repo.GetByID(ctx, sn.ID)
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, sn.ID)
	require.NoError(t, err)

	require.NoError(t, first.Reserve(repository.ChannelOrder, "ORD-1", time.Now().UTC()))
	require.NoError(t, repo.Update(ctx, &first))
	require.Equal(t, int64(2), first.Version)

	// Второй писатель работает с устаревшей версией
	require.NoError(t, second.Reserve(repository.ChannelOrder, "ORD-2", time.Now().UTC()))
	err = repo.Update(ctx, &second)
	require.ErrorIs(t, err, repository.ErrVersionConflict)

	// Победила первая запись
	got, err := repo.GetByID(ctx, sn.ID)
	require.NoError(t, err)
	require.Equal(t, "ORD-1", got.HoldReference)
}

func TestRepository_UpdateBatch_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	a := newSerial("SN-A", 1, repository.StatusAvailable)
	b := newSerial("SN-B", 1, repository.StatusAvailable)
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	// Конкурентный писатель двигает версию b
	fresh, err := repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, &fresh))

	now := time.Now().UTC()
	require.NoError(t, a.Reserve(repository.ChannelOrder, "ORD-1", now))
	require.NoError(t, b.Reserve(repository.ChannelOrder, "ORD-1", now))

	err = repo.UpdateBatch(ctx, []*repository.SerialNumber{a, b})
	require.ErrorIs(t, err, repository.ErrVersionConflict)

	// Батч не применился даже частично
	gotA, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, repository.StatusAvailable, gotA.Status)
}

func TestRepository_FindReservableByVariant(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	now := time.Now().UTC()

	free := newSerial("SN-1", 7, repository.StatusAvailable)
	require.NoError(t, repo.Create(ctx, free))

	cart := newSerial("SN-2", 7, repository.StatusAvailable)
	require.NoError(t, repo.Create(ctx, cart))
	require.NoError(t, cart.Reserve(repository.ChannelCart, "CART-1", now))
	require.NoError(t, repo.Update(ctx, cart))

	order := newSerial("SN-3", 7, repository.StatusAvailable)
	require.NoError(t, repo.Create(ctx, order))
	require.NoError(t, order.Reserve(repository.ChannelOrder, "ORD-1", now))
	require.NoError(t, repo.Update(ctx, order))

	otherVariant := newSerial("SN-4", 8, repository.StatusAvailable)
	require.NoError(t, repo.Create(ctx, otherVariant))

	// Свободная и корзинная единицы варианта 7, заказной резерв не считается
	got, err := repo.FindReservableByVariant(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, free.ID, got[0].ID)
	require.Equal(t, cart.ID, got[1].ID)

	// limit обрезает по возрастанию ID
	got, err = repo.FindReservableByVariant(ctx, 7, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, free.ID, got[0].ID)
}

func TestRepository_Counts(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		sn := newSerial("SN-A"+string(rune('0'+i)), 7, repository.StatusAvailable)
		require.NoError(t, repo.Create(ctx, sn))
	}
	cart := newSerial("SN-C", 7, repository.StatusAvailable)
	require.NoError(t, repo.Create(ctx, cart))
	require.NoError(t, cart.Reserve(repository.ChannelCart, "CART-1", now))
	require.NoError(t, repo.Update(ctx, cart))

	available, err := repo.CountByVariantAndStatus(ctx, 7, repository.StatusAvailable)
	require.NoError(t, err)
	require.Equal(t, 3, available)

	cartHeld, err := repo.CountCartHeldByVariant(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 1, cartHeld)
}

func TestRepository_FindExpiredHolds(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	now := time.Now().UTC()

	expired := newSerial("SN-OLD", 7, repository.StatusAvailable)
	require.NoError(t, repo.Create(ctx, expired))
	require.NoError(t, expired.Reserve(repository.ChannelOrder, "ORD-1", now.Add(-20*time.Minute)))
	require.NoError(t, repo.Update(ctx, expired))

	fresh := newSerial("SN-NEW", 7, repository.StatusAvailable)
	require.NoError(t, repo.Create(ctx, fresh))
	require.NoError(t, fresh.Reserve(repository.ChannelOrder, "ORD-2", now.Add(-time.Minute)))
	require.NoError(t, repo.Update(ctx, fresh))

	cart := newSerial("SN-CART", 7, repository.StatusAvailable)
	require.NoError(t, repo.Create(ctx, cart))
	require.NoError(t, cart.Reserve(repository.ChannelCart, "CART-old", now.Add(-40*time.Minute)))
	require.NoError(t, repo.Update(ctx, cart))

	got, err := repo.FindExpiredHolds(ctx, now.Add(-15*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)

	byPrefix, err := repo.FindExpiredHoldsByPrefix(ctx, repository.CartReferencePrefix, now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, byPrefix, 1)
	require.Equal(t, cart.ID, byPrefix[0].ID)
}

func TestAuditRepository_ListBySerial(t *testing.T) {
	ctx := context.Background()
	audit := NewAuditRepository()

	first := repository.NewCreateEntry(1, "SN-1", "tester", "created")
	second := repository.NewReservationEntry(1, repository.StatusAvailable, "", "", repository.ChannelOrder, "ORD-1", "tester", "reserved")
	other := repository.NewCreateEntry(2, "SN-2", "tester", "created")

	require.NoError(t, audit.Append(ctx, first))
	require.NoError(t, audit.AppendBatch(ctx, []repository.AuditEntry{second, other}))

	got, err := audit.ListBySerial(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Новые записи первыми
	require.Equal(t, second.ID, got[0].ID)
	require.Equal(t, first.ID, got[1].ID)
}
