package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anhduy-tech/lapxpert-inventory/internal/repository"
)

// Repository реализует SerialNumberRepository используя PostgreSQL.
// Optimistic locking: каждая мутация выполняется как
// UPDATE ... WHERE id = $1 AND version = $2; ноль затронутых строк
// означает конкурентное изменение и транслируется в ErrVersionConflict.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository создаёт новый PostgreSQL репозиторий серийных номеров
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const serialColumns = `id, serial_value, variant_id, status,
	hold_channel, hold_reference, hold_at,
	batch_id, manufactured_at, warranty_until, supplier, note,
	version, created_at, updated_at`

// Create сохраняет новый серийный номер
// Уникальность serial_value обеспечивается constraint-ом таблицы
func (r *Repository) Create(ctx context.Context, sn *repository.SerialNumber) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO serial_numbers
		   (serial_value, variant_id, status, hold_channel, hold_reference, hold_at,
		    batch_id, manufactured_at, warranty_until, supplier, note, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)
		 RETURNING id, version, created_at, updated_at`,
		sn.SerialValue, sn.VariantID, sn.Status, sn.HoldChannel, sn.HoldReference, sn.HoldAt,
		sn.BatchID, sn.ManufacturedAt, sn.WarrantyUntil, sn.Supplier, sn.Note,
	).Scan(&sn.ID, &sn.Version, &sn.CreatedAt, &sn.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 = unique_violation
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrDuplicateSerial
		}
		return err
	}
	return nil
}

// GetByID получает серийный номер по ID
func (r *Repository) GetByID(ctx context.Context, id int64) (repository.SerialNumber, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+serialColumns+` FROM serial_numbers WHERE id = $1`, id)

	sn, err := scanSerial(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.SerialNumber{}, repository.ErrNotFound
		}
		return repository.SerialNumber{}, err
	}
	return sn, nil
}

// GetByIDs получает серийные номера по списку ID
func (r *Repository) GetByIDs(ctx context.Context, ids []int64) ([]repository.SerialNumber, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+serialColumns+` FROM serial_numbers WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSerials(rows)
}

// ExistsBySerialValue проверяет, занято ли значение serial
func (r *Repository) ExistsBySerialValue(ctx context.Context, value string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM serial_numbers WHERE serial_value = $1)`, value).Scan(&exists)
	return exists, err
}

// CountByVariantAndStatus считает единицы варианта в указанном статусе
func (r *Repository) CountByVariantAndStatus(ctx context.Context, variantID int64, status repository.Status) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM serial_numbers WHERE variant_id = $1 AND status = $2`,
		variantID, status).Scan(&count)
	return count, err
}

// CountCartHeldByVariant считает корзинные резервы варианта
func (r *Repository) CountCartHeldByVariant(ctx context.Context, variantID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM serial_numbers
		 WHERE variant_id = $1 AND status = $2 AND hold_channel = $3`,
		variantID, repository.StatusReserved, repository.ChannelCart).Scan(&count)
	return count, err
}

// FindReservableByVariant возвращает единицы, доступные для заказа.
// ORDER BY id даёт стабильный порядок выбора — повторные попытки
// под блокировкой выбирают те же единицы.
func (r *Repository) FindReservableByVariant(ctx context.Context, variantID int64, limit int) ([]repository.SerialNumber, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+serialColumns+` FROM serial_numbers
		 WHERE variant_id = $1
		   AND (status = $2 OR (status = $3 AND hold_channel = $4))
		 ORDER BY id
		 LIMIT $5`,
		variantID, repository.StatusAvailable, repository.StatusReserved, repository.ChannelCart, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSerials(rows)
}

// FindByVariantAndStatus возвращает единицы варианта в статусе по возрастанию ID
func (r *Repository) FindByVariantAndStatus(ctx context.Context, variantID int64, status repository.Status, limit int) ([]repository.SerialNumber, error) {
	query := `SELECT ` + serialColumns + ` FROM serial_numbers
		 WHERE variant_id = $1 AND status = $2 ORDER BY id`
	args := []any{variantID, status}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSerials(rows)
}

// FindByHoldReference возвращает единицы, связанные с держателем
func (r *Repository) FindByHoldReference(ctx context.Context, reference string) ([]repository.SerialNumber, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+serialColumns+` FROM serial_numbers
		 WHERE hold_reference = $1 ORDER BY id`, reference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSerials(rows)
}

// FindExpiredHolds возвращает просроченные резервы
func (r *Repository) FindExpiredHolds(ctx context.Context, heldBefore time.Time) ([]repository.SerialNumber, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+serialColumns+` FROM serial_numbers
		 WHERE status = $1 AND hold_at IS NOT NULL AND hold_at < $2
		 ORDER BY id`,
		repository.StatusReserved, heldBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSerials(rows)
}

// FindExpiredHoldsByPrefix возвращает просроченные резервы с префиксом reference
func (r *Repository) FindExpiredHoldsByPrefix(ctx context.Context, prefix string, heldBefore time.Time) ([]repository.SerialNumber, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+serialColumns+` FROM serial_numbers
		 WHERE status = $1 AND hold_reference LIKE $2 || '%'
		   AND hold_at IS NOT NULL AND hold_at < $3
		 ORDER BY id`,
		repository.StatusReserved, prefix, heldBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSerials(rows)
}

// Update сохраняет изменённый серийный номер с проверкой версии
func (r *Repository) Update(ctx context.Context, sn *repository.SerialNumber) error {
	tag, err := r.pool.Exec(ctx, updateSerialSQL, updateSerialArgs(sn)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrNotFound(ctx, sn.ID)
	}
	sn.Version++
	return nil
}

// UpdateBatch атомарно сохраняет набор изменённых серийных номеров.
// Все UPDATE выполняются в одной транзакции; конфликт версии любой
// записи откатывает весь батч.
func (r *Repository) UpdateBatch(ctx context.Context, sns []*repository.SerialNumber) error {
	if len(sns) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, sn := range sns {
		tag, err := tx.Exec(ctx, updateSerialSQL, updateSerialArgs(sn)...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return r.conflictOrNotFound(ctx, sn.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	for _, sn := range sns {
		sn.Version++
	}
	return nil
}

const updateSerialSQL = `UPDATE serial_numbers SET
	serial_value = $3, variant_id = $4, status = $5,
	hold_channel = $6, hold_reference = $7, hold_at = $8,
	batch_id = $9, manufactured_at = $10, warranty_until = $11, supplier = $12, note = $13,
	version = version + 1, updated_at = now()
 WHERE id = $1 AND version = $2`

func updateSerialArgs(sn *repository.SerialNumber) []any {
	return []any{
		sn.ID, sn.Version,
		sn.SerialValue, sn.VariantID, sn.Status,
		sn.HoldChannel, sn.HoldReference, sn.HoldAt,
		sn.BatchID, sn.ManufacturedAt, sn.WarrantyUntil, sn.Supplier, sn.Note,
	}
}

// conflictOrNotFound различает конкурентное изменение и отсутствие записи
func (r *Repository) conflictOrNotFound(ctx context.Context, id int64) error {
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM serial_numbers WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check serial existence: %w", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrVersionConflict
}

func scanSerial(row pgx.Row) (repository.SerialNumber, error) {
	var sn repository.SerialNumber
	err := row.Scan(
		&sn.ID, &sn.SerialValue, &sn.VariantID, &sn.Status,
		&sn.HoldChannel, &sn.HoldReference, &sn.HoldAt,
		&sn.BatchID, &sn.ManufacturedAt, &sn.WarrantyUntil, &sn.Supplier, &sn.Note,
		&sn.Version, &sn.CreatedAt, &sn.UpdatedAt,
	)
	return sn, err
}

func collectSerials(rows pgx.Rows) ([]repository.SerialNumber, error) {
	out := make([]repository.SerialNumber, 0)
	for rows.Next() {
		sn, err := scanSerial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
