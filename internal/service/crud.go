package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anhduy-tech/lapxpert-inventory/internal/repository"
	"github.com/anhduy-tech/lapxpert-inventory/internal/retry"
)

// DefaultGenerationPattern — шаблон генерации значений serial по умолчанию
const DefaultGenerationPattern = "SN-{TIMESTAMP}-{SEQ}"

// CreateSerialInput — параметры создания серийного номера
type CreateSerialInput struct {
	SerialValue    string
	VariantID      int64
	BatchID        string
	ManufacturedAt *time.Time
	WarrantyUntil  *time.Time
	Supplier       string
	Note           string
}

// UpdateSerialInput — параметры изменения серийного номера.
// Nil поле означает "не менять".
type UpdateSerialInput struct {
	SerialValue    *string
	BatchID        *string
	ManufacturedAt *time.Time
	WarrantyUntil  *time.Time
	Supplier       *string
	Note           *string
}

// CreateSerialNumber регистрирует новую единицу товара в статусе AVAILABLE
func (s *SerialNumberService) CreateSerialNumber(ctx context.Context, input CreateSerialInput, actor string) (repository.SerialNumber, error) {
	if input.SerialValue == "" {
		return repository.SerialNumber{}, fmt.Errorf("serial value is required")
	}
	if input.VariantID <= 0 {
		return repository.SerialNumber{}, fmt.Errorf("variant id is required")
	}

	sn := repository.SerialNumber{
		SerialValue:    input.SerialValue,
		VariantID:      input.VariantID,
		Status:         repository.StatusAvailable,
		BatchID:        input.BatchID,
		ManufacturedAt: input.ManufacturedAt,
		WarrantyUntil:  input.WarrantyUntil,
		Supplier:       input.Supplier,
		Note:           input.Note,
	}

	if err := s.serials.Create(ctx, &sn); err != nil {
		return repository.SerialNumber{}, err
	}

	s.emit(ctx, []repository.AuditEntry{
		repository.NewCreateEntry(sn.ID, sn.SerialValue, actor, "serial number created"),
	}, nil)

	s.logger.Info("serial number created",
		zap.Int64("serial_id", sn.ID),
		zap.Int64("variant_id", sn.VariantID),
		zap.String("serial_value", sn.SerialValue),
	)
	return sn, nil
}

// UpdateSerialNumber изменяет provenance поля единицы.
// Само значение serial можно менять только пока единица свободна
// и никогда не резервировалась.
func (s *SerialNumberService) UpdateSerialNumber(ctx context.Context, id int64, input UpdateSerialInput, actor string) (repository.SerialNumber, error) {
	var updated repository.SerialNumber

	err := retry.Do(ctx, s.maxAttempts, func(ctx context.Context) error {
		sn, err := s.serials.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if input.SerialValue != nil && *input.SerialValue != sn.SerialValue {
			if !sn.IsAvailable() || sn.HoldReference != "" {
				return fmt.Errorf("serial value of unit %d is immutable after first reservation", id)
			}
			exists, err := s.serials.ExistsBySerialValue(ctx, *input.SerialValue)
			if err != nil {
				return err
			}
			if exists {
				return repository.ErrDuplicateSerial
			}
			sn.SerialValue = *input.SerialValue
		}
		if input.BatchID != nil {
			sn.BatchID = *input.BatchID
		}
		if input.ManufacturedAt != nil {
			sn.ManufacturedAt = input.ManufacturedAt
		}
		if input.WarrantyUntil != nil {
			sn.WarrantyUntil = input.WarrantyUntil
		}
		if input.Supplier != nil {
			sn.Supplier = *input.Supplier
		}
		if input.Note != nil {
			sn.Note = *input.Note
		}

		if err := s.serials.Update(ctx, &sn); err != nil {
			return err
		}
		updated = sn
		return nil
	})
	if err != nil {
		return repository.SerialNumber{}, err
	}

	s.emit(ctx, []repository.AuditEntry{
		repository.NewUpdateEntry(updated.ID, "", updated.SerialValue, actor, "serial number updated"),
	}, nil)

	return updated, nil
}

// DeleteSerialNumber списывает единицу: терминальный статус DISPOSED.
// Свободная единица проходит через DAMAGED, прямого перехода
// AVAILABLE -> DISPOSED таблица не даёт. Строки никогда не удаляются
// физически, история аудита сохраняется.
func (s *SerialNumberService) DeleteSerialNumber(ctx context.Context, id int64, actor, reason string) error {
	var disposed repository.SerialNumber
	var from repository.Status

	err := retry.Do(ctx, s.maxAttempts, func(ctx context.Context) error {
		sn, err := s.serials.GetByID(ctx, id)
		if err != nil {
			return err
		}

		from = sn.Status
		if sn.IsAvailable() {
			if err := sn.ChangeStatus(repository.StatusDamaged); err != nil {
				return err
			}
		}
		if err := sn.ChangeStatus(repository.StatusDisposed); err != nil {
			return err
		}
		if err := s.serials.Update(ctx, &sn); err != nil {
			return err
		}
		disposed = sn
		return nil
	})
	if err != nil {
		return err
	}

	s.emit(ctx,
		[]repository.AuditEntry{repository.NewStatusChangeEntry(id, from, repository.StatusDisposed, actor, reason)},
		[]SerialStatusEvent{statusEvent(disposed, from, actor)},
	)

	s.logger.Info("serial number disposed",
		zap.Int64("serial_id", id),
		zap.String("from", string(from)),
		zap.String("reason", reason),
	)
	return nil
}

// ChangeStatus выполняет административный переход статуса единицы.
// Переход проверяется таблицей допустимых переходов.
func (s *SerialNumberService) ChangeStatus(ctx context.Context, id int64, to repository.Status, actor, reason string) error {
	if !to.Valid() {
		return fmt.Errorf("unknown status %q", to)
	}

	var changed repository.SerialNumber
	var from repository.Status

	err := retry.Do(ctx, s.maxAttempts, func(ctx context.Context) error {
		sn, err := s.serials.GetByID(ctx, id)
		if err != nil {
			return err
		}

		from = sn.Status
		if err := sn.ChangeStatus(to); err != nil {
			return err
		}
		if err := s.serials.Update(ctx, &sn); err != nil {
			return err
		}
		changed = sn
		return nil
	})
	if err != nil {
		return err
	}

	s.emit(ctx,
		[]repository.AuditEntry{repository.NewStatusChangeEntry(id, from, to, actor, reason)},
		[]SerialStatusEvent{statusEvent(changed, from, actor)},
	)

	s.logger.Info("serial status changed",
		zap.Int64("serial_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason),
	)
	return nil
}

// GenerateSerialNumbers создаёт qty единиц варианта со значениями serial
// по шаблону. Шаблон поддерживает плейсхолдеры {SEQ} и {TIMESTAMP};
// все созданные единицы получают общий BATCH- идентификатор.
func (s *SerialNumberService) GenerateSerialNumbers(ctx context.Context, variantID int64, qty int, pattern, actor string) ([]repository.SerialNumber, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", qty)
	}
	if pattern == "" {
		pattern = DefaultGenerationPattern
	}

	batchID := "BATCH-" + strings.ToUpper(uuid.NewString()[:8])
	timestamp := time.Now().UTC().Format("20060102150405")

	created := make([]repository.SerialNumber, 0, qty)
	entries := make([]repository.AuditEntry, 0, qty)

	// Дубликат значения двигает последовательность дальше,
	// поэтому попыток больше, чем qty
	maxSeq := qty * 10
	for seq := 1; seq <= maxSeq && len(created) < qty; seq++ {
		value := strings.NewReplacer(
			"{SEQ}", fmt.Sprintf("%06d", seq),
			"{TIMESTAMP}", timestamp,
		).Replace(pattern)

		sn := repository.SerialNumber{
			SerialValue: value,
			VariantID:   variantID,
			Status:      repository.StatusAvailable,
			BatchID:     batchID,
		}
		err := s.serials.Create(ctx, &sn)
		if errors.Is(err, repository.ErrDuplicateSerial) {
			continue
		}
		if err != nil {
			return created, err
		}

		created = append(created, sn)
		entries = append(entries, repository.NewBulkEntry(sn.ID, "generate", batchID, actor, "bulk generation"))
	}

	if len(created) < qty {
		return created, fmt.Errorf("generated only %d of %d serials, pattern %q exhausted",
			len(created), qty, pattern)
	}

	s.emit(ctx, entries, nil)

	s.logger.Info("serial numbers generated",
		zap.Int64("variant_id", variantID),
		zap.Int("quantity", qty),
		zap.String("batch_id", batchID),
	)
	return created, nil
}

// GetSerialNumber возвращает единицу по ID
func (s *SerialNumberService) GetSerialNumber(ctx context.Context, id int64) (repository.SerialNumber, error) {
	return s.serials.GetByID(ctx, id)
}

// AuditTrail возвращает историю аудита единицы, новые записи первыми
func (s *SerialNumberService) AuditTrail(ctx context.Context, serialID int64) ([]repository.AuditEntry, error) {
	if _, err := s.serials.GetByID(ctx, serialID); err != nil {
		return nil, err
	}
	return s.audit.ListBySerial(ctx, serialID)
}

// SerialsByHoldReference возвращает единицы держателя (RESERVED и SOLD)
func (s *SerialNumberService) SerialsByHoldReference(ctx context.Context, reference string) ([]repository.SerialNumber, error) {
	return s.serials.FindByHoldReference(ctx, reference)
}

// ReservedSerialIDsForOrder возвращает ID единиц, зарезервированных заказом
func (s *SerialNumberService) ReservedSerialIDsForOrder(ctx context.Context, orderRef string) ([]int64, error) {
	held, err := s.serials.FindByHoldReference(ctx, orderRef)
	if err != nil {
		return nil, err
	}

	out := make([]int64, 0, len(held))
	for _, sn := range held {
		if sn.IsReserved() {
			out = append(out, sn.ID)
		}
	}
	return out, nil
}

// SerialsByStatus возвращает до limit единиц варианта в указанном статусе
func (s *SerialNumberService) SerialsByStatus(ctx context.Context, variantID int64, status repository.Status, limit int) ([]repository.SerialNumber, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	return s.serials.FindByVariantAndStatus(ctx, variantID, status, limit)
}

// AvailableSerials возвращает до limit свободных единиц варианта
func (s *SerialNumberService) AvailableSerials(ctx context.Context, variantID int64, limit int) ([]repository.SerialNumber, error) {
	return s.SerialsByStatus(ctx, variantID, repository.StatusAvailable, limit)
}

// SoldSerials возвращает до limit проданных единиц варианта
func (s *SerialNumberService) SoldSerials(ctx context.Context, variantID int64, limit int) ([]repository.SerialNumber, error) {
	return s.SerialsByStatus(ctx, variantID, repository.StatusSold, limit)
}
