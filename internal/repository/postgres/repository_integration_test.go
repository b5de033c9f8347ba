//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	_ "github.com/jackc/pgx/v5/stdlib" //для goose миграций

	"github.com/anhduy-tech/lapxpert-inventory/internal/repository"
)

func TestRepository_Integration(t *testing.T) {
	ctx := context.Background()

	// Поднимаем PostgreSQL контейнер через testcontainers
	postgresContainer, err := tcpostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcpostgres.WithDatabase("inventory"),
		tcpostgres.WithUsername("inventory_user"),
		tcpostgres.WithPassword("inventory_password"),
	)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, postgresContainer.Terminate(ctx))
	}()

	dsn, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Открываем *sql.DB через pgx stdlib для goose миграций
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()

	// Ждём готовности БД через ping с retry
	var pingErr error
	for i := 0; i < 10; i++ {
		pingErr = db.PingContext(ctx)
		if pingErr == nil {
			break
		}
		time.Sleep(1 * time.Second)
	}
	require.NoError(t, pingErr, "Failed to ping database after retries")

	// Путь к migrations относительно текущего файла:
	// internal/repository/postgres -> корень модуля -> migrations
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "Failed to get current file path")

	moduleRoot := filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(filename)))))
	migrationsDir := filepath.Join(moduleRoot, "migrations")

	require.NoError(t, goose.UpContext(ctx, db, migrationsDir), "Failed to run migrations")

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	repo := NewRepository(pool)

	t.Run("Create and GetByID", func(t *testing.T) {
		sn := &repository.SerialNumber{
			SerialValue: "SN-IT-001",
			VariantID:   7,
			Status:      repository.StatusAvailable,
			Supplier:    "acme",
		}

		require.NoError(t, repo.Create(ctx, sn))
		require.NotZero(t, sn.ID)
		require.Equal(t, int64(1), sn.Version)

		got, err := repo.GetByID(ctx, sn.ID)
		require.NoError(t, err)
		require.Equal(t, "SN-IT-001", got.SerialValue)
		require.Equal(t, int64(7), got.VariantID)
		require.Equal(t, repository.StatusAvailable, got.Status)
		require.Equal(t, "acme", got.Supplier)
	})

	t.Run("Create duplicate serial value", func(t *testing.T) {
		err := repo.Create(ctx, &repository.SerialNumber{
			SerialValue: "SN-IT-001",
			VariantID:   8,
			Status:      repository.StatusAvailable,
		})
		require.ErrorIs(t, err, repository.ErrDuplicateSerial)
	})

	t.Run("GetByID not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, 999999)
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("Update with stale version", func(t *testing.T) {
		sn := &repository.SerialNumber{
			SerialValue: "SN-IT-STALE",
			VariantID:   7,
			Status:      repository.StatusAvailable,
		}
		require.NoError(t, repo.Create(ctx, sn))

		first, err := repo.GetByID(ctx, sn.ID)
		require.NoError(t, err)
		second, err := repo.GetByID(ctx, sn.ID)
		require.NoError(t, err)

		now := time.Now().UTC()
		require.NoError(t, first.Reserve(repository.ChannelOrder, "ORD-1", now))
		require.NoError(t, repo.Update(ctx, &first))
		require.Equal(t, int64(2), first.Version)

		require.NoError(t, second.Reserve(repository.ChannelOrder, "ORD-2", now))
		err = repo.Update(ctx, &second)
		require.ErrorIs(t, err, repository.ErrVersionConflict)

		got, err := repo.GetByID(ctx, sn.ID)
		require.NoError(t, err)
		require.Equal(t, "ORD-1", got.HoldReference)
	})

	t.Run("UpdateBatch rolls back on conflict", func(t *testing.T) {
		a := &repository.SerialNumber{SerialValue: "SN-IT-A", VariantID: 11, Status: repository.StatusAvailable}
		b := &repository.SerialNumber{SerialValue: "SN-IT-B", VariantID: 11, Status: repository.StatusAvailable}
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

		gotA, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, repository.StatusAvailable, gotA.Status)
	})

	t.Run("FindReservableByVariant includes cart holds in id order", func(t *testing.T) {
		now := time.Now().UTC()

		free := &repository.SerialNumber{SerialValue: "SN-IT-R1", VariantID: 21, Status: repository.StatusAvailable}
		require.NoError(t, repo.Create(ctx, free))

		cart := &repository.SerialNumber{SerialValue: "SN-IT-R2", VariantID: 21, Status: repository.StatusAvailable}
		require.NoError(t, repo.Create(ctx, cart))
		require.NoError(t, cart.Reserve(repository.ChannelCart, "CART-1", now))
		require.NoError(t, repo.Update(ctx, cart))

		order := &repository.SerialNumber{SerialValue: "SN-IT-R3", VariantID: 21, Status: repository.StatusAvailable}
		require.NoError(t, repo.Create(ctx, order))
		require.NoError(t, order.Reserve(repository.ChannelOrder, "ORD-1", now))
		require.NoError(t, repo.Update(ctx, order))

		got, err := repo.FindReservableByVariant(ctx, 21, 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, free.ID, got[0].ID)
		require.Equal(t, cart.ID, got[1].ID)
	})

	t.Run("FindExpiredHoldsByPrefix", func(t *testing.T) {
		now := time.Now().UTC()

		sn := &repository.SerialNumber{SerialValue: "SN-IT-EXP", VariantID: 31, Status: repository.StatusAvailable}
		require.NoError(t, repo.Create(ctx, sn))
		require.NoError(t, sn.Reserve(repository.ChannelCart, "CART-old", now.Add(-40*time.Minute)))
		require.NoError(t, repo.Update(ctx, sn))

		got, err := repo.FindExpiredHoldsByPrefix(ctx, repository.CartReferencePrefix, now.Add(-30*time.Minute))
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, sn.ID, got[0].ID)

		counts, err := repo.CountCartHeldByVariant(ctx, 31)
		require.NoError(t, err)
		require.Equal(t, 1, counts)
	})
}
