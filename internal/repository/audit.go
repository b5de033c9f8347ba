package repository

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Действия, фиксируемые в аудите серийных номеров
const (
	AuditActionCreate       = "CREATE"
	AuditActionUpdate       = "UPDATE"
	AuditActionStatusChange = "STATUS_CHANGE"
	AuditActionReserve      = "RESERVE"
	AuditActionRebind       = "REBIND"
	AuditActionSale         = "SALE"
	AuditActionRelease      = "RELEASE"
	AuditActionBulk         = "BULK"
)

// SystemActor используется для записей, созданных фоновыми задачами
const SystemActor = "system"

// AuditEntry — неизменяемая запись о переходе состояния серийного номера.
// Записи только добавляются, никогда не изменяются и не удаляются.
type AuditEntry struct {
	ID        string
	SerialID  int64
	Action    string
	OldValue  string
	NewValue  string
	Actor     string
	Reason    string
	CreatedAt time.Time
}

func newAuditEntry(serialID int64, action, oldValue, newValue, actor, reason string) AuditEntry {
	return AuditEntry{
		ID:        uuid.NewString(),
		SerialID:  serialID,
		Action:    action,
		OldValue:  oldValue,
		NewValue:  newValue,
		Actor:     actor,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
}

// NewCreateEntry создаёт запись аудита о создании серийного номера
func NewCreateEntry(serialID int64, newValue, actor, reason string) AuditEntry {
	return newAuditEntry(serialID, AuditActionCreate, "", newValue, actor, reason)
}

// NewUpdateEntry создаёт запись аудита об изменении полей
func NewUpdateEntry(serialID int64, oldValue, newValue, actor, reason string) AuditEntry {
	return newAuditEntry(serialID, AuditActionUpdate, oldValue, newValue, actor, reason)
}

// NewStatusChangeEntry создаёт запись аудита о смене статуса
func NewStatusChangeEntry(serialID int64, from, to Status, actor, reason string) AuditEntry {
	return newAuditEntry(serialID, AuditActionStatusChange, string(from), string(to), actor, reason)
}

// NewReservationEntry создаёт запись аудита о резервировании.
// from описывает прежнее состояние: свободная единица или корзинный
// резерв при конвертации (тогда записываются прежние канал и reference).
func NewReservationEntry(serialID int64, from Status, fromChannel, fromReference, channel, reference, actor, reason string) AuditEntry {
	oldValue := string(from)
	if fromChannel != "" {
		oldValue = fmt.Sprintf(`{"status":%q,"channel":%q,"reference":%q}`, from, fromChannel, fromReference)
	}
	newValue := fmt.Sprintf(`{"channel":%q,"reference":%q}`, channel, reference)
	return newAuditEntry(serialID, AuditActionReserve, oldValue, newValue, actor, reason)
}

// NewRebindEntry создаёт запись аудита о перенацеливании резерва
// с одного держателя на другого (временный ID заказа на постоянный)
func NewRebindEntry(serialID int64, oldReference, newReference, actor, reason string) AuditEntry {
	return newAuditEntry(serialID, AuditActionRebind, oldReference, newReference, actor, reason)
}

// NewSaleEntry создаёт запись аудита о подтверждении продажи
func NewSaleEntry(serialID int64, orderReference, actor, reason string) AuditEntry {
	newValue := fmt.Sprintf(`{"order":%q}`, orderReference)
	return newAuditEntry(serialID, AuditActionSale, string(StatusReserved), newValue, actor, reason)
}

// NewReleaseEntry создаёт запись аудита о снятии резерва
func NewReleaseEntry(serialID int64, actor, reason string) AuditEntry {
	return newAuditEntry(serialID, AuditActionRelease, string(StatusReserved), string(StatusAvailable), actor, reason)
}

// NewBulkEntry создаёт запись аудита для массовой операции (генерация партии)
func NewBulkEntry(serialID int64, operation, batchID, actor, reason string) AuditEntry {
	return newAuditEntry(serialID, AuditActionBulk, "", operation+":"+batchID, actor, reason)
}
