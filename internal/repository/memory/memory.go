package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anhduy-tech/lapxpert-inventory/internal/repository"
)

// Repository реализует SerialNumberRepository используя in-memory хранилище.
// Используется для разработки и тестирования.
// Семантика версионирования повторяет PostgreSQL реализацию:
// каждая мутация проверяет Version и увеличивает его.
type Repository struct {
	mu      sync.RWMutex
	serials map[int64]repository.SerialNumber
	nextID  int64
}

// NewRepository создаёт новый in-memory репозиторий серийных номеров
func NewRepository() *Repository {
	return &Repository{
		serials: make(map[int64]repository.SerialNumber),
		nextID:  1,
	}
}

// Create сохраняет новый серийный номер, присваивая ID и Version=1
func (r *Repository) Create(ctx context.Context, sn *repository.SerialNumber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.serials {
		if existing.SerialValue == sn.SerialValue {
			return repository.ErrDuplicateSerial
		}
	}

	now := time.Now().UTC()
	sn.ID = r.nextID
	r.nextID++
	sn.Version = 1
	sn.CreatedAt = now
	sn.UpdatedAt = now
	r.serials[sn.ID] = *sn
	return nil
}

// GetByID получает серийный номер по ID
func (r *Repository) GetByID(ctx context.Context, id int64) (repository.SerialNumber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sn, ok := r.serials[id]
	if !ok {
		return repository.SerialNumber{}, repository.ErrNotFound
	}
	return sn, nil
}

// GetByIDs получает серийные номера по списку ID, отсутствующие пропускаются.
// Повторы во входном списке не дают повторов в результате, порядок по
// возрастанию ID, как у SQL запроса с ANY.
func (r *Repository) GetByIDs(ctx context.Context, ids []int64) ([]repository.SerialNumber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[int64]bool, len(ids))
	out := make([]repository.SerialNumber, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if sn, ok := r.serials[id]; ok {
			out = append(out, sn)
		}
	}
	sortByID(out)
	return out, nil
}

// ExistsBySerialValue проверяет, занято ли значение serial
func (r *Repository) ExistsBySerialValue(ctx context.Context, value string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sn := range r.serials {
		if sn.SerialValue == value {
			return true, nil
		}
	}
	return false, nil
}

// CountByVariantAndStatus считает единицы варианта в указанном статусе
func (r *Repository) CountByVariantAndStatus(ctx context.Context, variantID int64, status repository.Status) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, sn := range r.serials {
		if sn.VariantID == variantID && sn.Status == status {
			count++
		}
	}
	return count, nil
}

// CountCartHeldByVariant считает корзинные резервы варианта
func (r *Repository) CountCartHeldByVariant(ctx context.Context, variantID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, sn := range r.serials {
		if sn.VariantID == variantID && sn.Status == repository.StatusReserved && sn.HoldChannel == repository.ChannelCart {
			count++
		}
	}
	return count, nil
}

// FindReservableByVariant возвращает единицы, доступные для заказа, по возрастанию ID
func (r *Repository) FindReservableByVariant(ctx context.Context, variantID int64, limit int) ([]repository.SerialNumber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]repository.SerialNumber, 0)
	for _, sn := range r.serials {
		if sn.VariantID != variantID {
			continue
		}
		if sn.IsReservableForOrder() {
			out = append(out, sn)
		}
	}
	sortByID(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindByVariantAndStatus возвращает единицы варианта в статусе по возрастанию ID
func (r *Repository) FindByVariantAndStatus(ctx context.Context, variantID int64, status repository.Status, limit int) ([]repository.SerialNumber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]repository.SerialNumber, 0)
	for _, sn := range r.serials {
		if sn.VariantID == variantID && sn.Status == status {
			out = append(out, sn)
		}
	}
	sortByID(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindByHoldReference возвращает единицы, связанные с держателем
func (r *Repository) FindByHoldReference(ctx context.Context, reference string) ([]repository.SerialNumber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]repository.SerialNumber, 0)
	for _, sn := range r.serials {
		if sn.HoldReference == reference {
			out = append(out, sn)
		}
	}
	sortByID(out)
	return out, nil
}

// FindExpiredHolds возвращает просроченные резервы
func (r *Repository) FindExpiredHolds(ctx context.Context, heldBefore time.Time) ([]repository.SerialNumber, error) {
	return r.findExpired(func(sn repository.SerialNumber) bool { return true }, heldBefore)
}

// FindExpiredHoldsByPrefix возвращает просроченные резервы с префиксом reference
func (r *Repository) FindExpiredHoldsByPrefix(ctx context.Context, prefix string, heldBefore time.Time) ([]repository.SerialNumber, error) {
	return r.findExpired(func(sn repository.SerialNumber) bool {
		return strings.HasPrefix(sn.HoldReference, prefix)
	}, heldBefore)
}

func (r *Repository) findExpired(match func(repository.SerialNumber) bool, heldBefore time.Time) ([]repository.SerialNumber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]repository.SerialNumber, 0)
	for _, sn := range r.serials {
		if sn.Status != repository.StatusReserved || sn.HoldAt == nil {
			continue
		}
		if sn.HoldAt.Before(heldBefore) && match(sn) {
			out = append(out, sn)
		}
	}
	sortByID(out)
	return out, nil
}

// Update сохраняет изменённый серийный номер с проверкой версии
func (r *Repository) Update(ctx context.Context, sn *repository.SerialNumber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(sn)
}

// UpdateBatch атомарно сохраняет набор изменённых серийных номеров.
// Сначала проверяются все версии, затем применяются все изменения —
// частичных записей не остаётся.
func (r *Repository) UpdateBatch(ctx context.Context, sns []*repository.SerialNumber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sn := range sns {
		stored, ok := r.serials[sn.ID]
		if !ok {
			return repository.ErrNotFound
		}
		if stored.Version != sn.Version {
			return repository.ErrVersionConflict
		}
	}
	for _, sn := range sns {
		if err := r.updateLocked(sn); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) updateLocked(sn *repository.SerialNumber) error {
	stored, ok := r.serials[sn.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != sn.Version {
		return repository.ErrVersionConflict
	}
	sn.Version++
	sn.UpdatedAt = time.Now().UTC()
	r.serials[sn.ID] = *sn
	return nil
}

func sortByID(sns []repository.SerialNumber) {
	sort.Slice(sns, func(i, j int) bool { return sns[i].ID < sns[j].ID })
}

// AuditRepository реализует append-only журнал аудита в памяти
type AuditRepository struct {
	mu      sync.RWMutex
	entries []repository.AuditEntry
}

// NewAuditRepository создаёт новый in-memory журнал аудита
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{entries: make([]repository.AuditEntry, 0)}
}

// Append добавляет одну запись аудита
func (r *AuditRepository) Append(ctx context.Context, entry repository.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// AppendBatch добавляет набор записей аудита
func (r *AuditRepository) AppendBatch(ctx context.Context, entries []repository.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entries...)
	return nil
}

// ListBySerial возвращает записи аудита серийного номера, новые первыми
func (r *AuditRepository) ListBySerial(ctx context.Context, serialID int64) ([]repository.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]repository.AuditEntry, 0)
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].SerialID == serialID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}
