package repository

import (
	"errors"
	"fmt"
)

// Status представляет состояние серийного номера в жизненном цикле
type Status string

const (
	StatusAvailable      Status = "AVAILABLE"
	StatusReserved       Status = "RESERVED"
	StatusSold           Status = "SOLD"
	StatusReturned       Status = "RETURNED"
	StatusDamaged        Status = "DAMAGED"
	StatusUnavailable    Status = "UNAVAILABLE"
	StatusDisplayUnit    Status = "DISPLAY_UNIT"
	StatusQualityControl Status = "QUALITY_CONTROL"
	StatusInTransit      Status = "IN_TRANSIT"
	// StatusDisposed — терминальное состояние, выход из него запрещён
	StatusDisposed Status = "DISPOSED"
)

// ErrIllegalTransition возвращается при попытке перехода,
// не разрешённого таблицей validTransitions
var ErrIllegalTransition = errors.New("illegal status transition")

// validTransitions — единственный источник правды о допустимых переходах.
// Ни один компонент не меняет статус в обход этой таблицы.
var validTransitions = map[Status][]Status{
	StatusAvailable:      {StatusReserved, StatusDamaged, StatusUnavailable, StatusDisplayUnit},
	StatusReserved:       {StatusAvailable, StatusSold, StatusDamaged},
	StatusSold:           {StatusReturned, StatusDamaged},
	StatusReturned:       {StatusAvailable, StatusDamaged, StatusDisposed},
	StatusDamaged:        {StatusAvailable, StatusDisposed},
	StatusUnavailable:    {StatusAvailable, StatusDamaged},
	StatusDisplayUnit:    {StatusAvailable, StatusDamaged},
	StatusQualityControl: {StatusAvailable, StatusDamaged},
	StatusInTransit:      {StatusAvailable, StatusQualityControl},
	StatusDisposed:       {},
}

// Valid проверяет, что статус известен таблице переходов
func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransitionTo проверяет, разрешён ли переход из текущего статуса в to
func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// checkTransition возвращает ErrIllegalTransition, если переход запрещён.
// Вызывается до любой записи в хранилище.
func checkTransition(from, to Status) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}
