package repository

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound возвращается, когда серийный номер не найден в хранилище
var ErrNotFound = errors.New("serial number not found")

// ErrDuplicateSerial возвращается при попытке создать серийный номер
// с уже существующим значением serial
var ErrDuplicateSerial = errors.New("serial number value already exists")

// ErrVersionConflict возвращается, когда запись была изменена конкурентным
// писателем между чтением и записью (optimistic locking).
// Вызывающий код повторяет всю операцию через retry.Do.
var ErrVersionConflict = errors.New("serial number version conflict")

// SerialNumberRepository определяет интерфейс для работы с хранилищем серийных номеров.
// Service слой зависит от этого интерфейса, а не от конкретной реализации.
// Все мутации проверяют Version и возвращают ErrVersionConflict при расхождении.
type SerialNumberRepository interface {
	// Create сохраняет новый серийный номер.
	// Возвращает ErrDuplicateSerial, если значение serial уже занято.
	Create(ctx context.Context, sn *SerialNumber) error

	// GetByID получает серийный номер по ID.
	// Возвращает ErrNotFound, если номер не найден.
	GetByID(ctx context.Context, id int64) (SerialNumber, error)

	// GetByIDs получает серийные номера по списку ID.
	// Отсутствующие ID не являются ошибкой — вызывающий код сверяет длины.
	GetByIDs(ctx context.Context, ids []int64) ([]SerialNumber, error)

	// ExistsBySerialValue проверяет, занято ли значение serial
	ExistsBySerialValue(ctx context.Context, value string) (bool, error)

	// CountByVariantAndStatus считает единицы варианта в указанном статусе
	CountByVariantAndStatus(ctx context.Context, variantID int64, status Status) (int, error)

	// CountCartHeldByVariant считает единицы варианта, удерживаемые корзиной
	// (RESERVED с каналом CART)
	CountCartHeldByVariant(ctx context.Context, variantID int64) (int, error)

	// FindReservableByVariant возвращает до limit единиц варианта, которые можно
	// занять под заказ (AVAILABLE или корзинный резерв), отсортированных по ID.
	// Стабильный порядок делает повторные попытки детерминированными.
	FindReservableByVariant(ctx context.Context, variantID int64, limit int) ([]SerialNumber, error)

	// FindByVariantAndStatus возвращает до limit единиц варианта в статусе,
	// отсортированных по ID; limit <= 0 означает без ограничения
	FindByVariantAndStatus(ctx context.Context, variantID int64, status Status, limit int) ([]SerialNumber, error)

	// FindByHoldReference возвращает единицы, связанные с держателем
	// (как RESERVED, так и SOLD)
	FindByHoldReference(ctx context.Context, reference string) ([]SerialNumber, error)

	// FindExpiredHolds возвращает RESERVED единицы, чей hold создан раньше heldBefore
	FindExpiredHolds(ctx context.Context, heldBefore time.Time) ([]SerialNumber, error)

	// FindExpiredHoldsByPrefix возвращает RESERVED единицы с hold reference,
	// начинающимся с prefix, чей hold создан раньше heldBefore
	FindExpiredHoldsByPrefix(ctx context.Context, prefix string, heldBefore time.Time) ([]SerialNumber, error)

	// Update сохраняет изменённый серийный номер с проверкой версии.
	// При успехе увеличивает sn.Version; при конфликте возвращает ErrVersionConflict.
	Update(ctx context.Context, sn *SerialNumber) error

	// UpdateBatch атомарно сохраняет набор изменённых серийных номеров.
	// Либо применяются все изменения, либо ни одно (ErrVersionConflict
	// любой записи откатывает весь батч).
	UpdateBatch(ctx context.Context, sns []*SerialNumber) error
}

// AuditRepository определяет интерфейс журнала аудита серийных номеров.
// Журнал append-only: записи никогда не изменяются и не удаляются.
type AuditRepository interface {
	// Append добавляет одну запись аудита
	Append(ctx context.Context, entry AuditEntry) error

	// AppendBatch добавляет набор записей аудита
	AppendBatch(ctx context.Context, entries []AuditEntry) error

	// ListBySerial возвращает записи аудита серийного номера, новые первыми
	ListBySerial(ctx context.Context, serialID int64) ([]AuditEntry, error)
}
