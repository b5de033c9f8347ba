package repository

import (
	"fmt"
	"strings"
	"time"
)

// Каналы, через которые создаются резервы
const (
	ChannelCart   = "CART"
	ChannelOrder  = "ORDER"
	ChannelPOS    = "POS"
	ChannelOnline = "ONLINE"
)

// Префиксы hold reference для временных резервов.
// Резервы с такими префиксами получают увеличенный таймаут очистки (30 минут).
const (
	CartReferencePrefix = "CART-"
	TempReferencePrefix = "TEMP-"
)

// SerialNumber представляет доменную модель единицы товара —
// один физический экземпляр, привязанный к варианту продукта.
// Это бизнес-сущность, не привязанная к HTTP или БД.
type SerialNumber struct {
	ID          int64
	SerialValue string
	VariantID   int64
	Status      Status

	// HoldChannel и HoldReference заполнены, когда Status == RESERVED
	// (канал резерва и идентификатор корзины/заказа).
	// После продажи HoldReference сохраняет заказ-покупатель —
	// это нужно для идемпотентного подтверждения продажи и возвратов.
	HoldChannel   string
	HoldReference string
	HoldAt        *time.Time

	// Provenance поля — только описательные, не участвуют в конкурентном контракте
	BatchID        string
	ManufacturedAt *time.Time
	WarrantyUntil  *time.Time
	Supplier       string
	Note           string

	// Version — счётчик оптимистичной конкуренции, увеличивается при каждой записи
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAvailable проверяет, что единица свободна
func (s *SerialNumber) IsAvailable() bool {
	return s.Status == StatusAvailable
}

// IsReserved проверяет, что единица зарезервирована
func (s *SerialNumber) IsReserved() bool {
	return s.Status == StatusReserved
}

// IsSold проверяет, что единица продана
func (s *SerialNumber) IsSold() bool {
	return s.Status == StatusSold
}

// IsReturned проверяет, что единица возвращена покупателем
func (s *SerialNumber) IsReturned() bool {
	return s.Status == StatusReturned
}

// IsCartHold проверяет, что единица удерживается корзиной.
// Корзинные резервы считаются доступными для создания заказа:
// корзина конвертируется в заказ, а не конкурирует с ним.
func (s *SerialNumber) IsCartHold() bool {
	return s.IsReserved() && s.HoldChannel == ChannelCart
}

// IsReservableForOrder проверяет, что единицу можно занять под заказ:
// либо она свободна, либо удерживается корзиной (конвертация)
func (s *SerialNumber) IsReservableForOrder() bool {
	return s.IsAvailable() || s.IsCartHold()
}

// HasTemporaryReference проверяет, что hold reference временный (CART-/TEMP-)
func (s *SerialNumber) HasTemporaryReference() bool {
	return strings.HasPrefix(s.HoldReference, CartReferencePrefix) ||
		strings.HasPrefix(s.HoldReference, TempReferencePrefix)
}

// Reserve переводит единицу AVAILABLE -> RESERVED и записывает держателя
func (s *SerialNumber) Reserve(channel, reference string, now time.Time) error {
	if err := checkTransition(s.Status, StatusReserved); err != nil {
		return err
	}
	s.Status = StatusReserved
	s.HoldChannel = channel
	s.HoldReference = reference
	s.HoldAt = &now
	return nil
}

// Rebind перенацеливает существующий резерв на другого держателя
// (конвертация корзины в заказ, замена временного id заказа на постоянный).
// Статус не меняется, единица не проходит через AVAILABLE.
func (s *SerialNumber) Rebind(channel, reference string, now time.Time) error {
	if !s.IsReserved() {
		return checkTransition(s.Status, StatusReserved)
	}
	s.HoldChannel = channel
	s.HoldReference = reference
	s.HoldAt = &now
	return nil
}

// MarkSold переводит RESERVED -> SOLD.
// HoldReference сохраняется как ссылка на купивший заказ.
func (s *SerialNumber) MarkSold() error {
	if err := checkTransition(s.Status, StatusSold); err != nil {
		return err
	}
	s.Status = StatusSold
	s.HoldAt = nil
	return nil
}

// ReleaseHold снимает резерв: RESERVED -> AVAILABLE, очищает держателя
func (s *SerialNumber) ReleaseHold() error {
	if err := checkTransition(s.Status, StatusAvailable); err != nil {
		return err
	}
	s.Status = StatusAvailable
	s.clearHold()
	return nil
}

// ReleaseFromSold возвращает проданную или возвращённую единицу в продажу
// (сценарий возврата денег): SOLD|RETURNED -> AVAILABLE
func (s *SerialNumber) ReleaseFromSold() error {
	if !s.IsSold() && !s.IsReturned() {
		return fmt.Errorf("%w: %s -> %s (refund release accepts only SOLD or RETURNED)",
			ErrIllegalTransition, s.Status, StatusAvailable)
	}
	if s.Status == StatusSold {
		// SOLD -> AVAILABLE напрямую запрещён таблицей, путь идёт через RETURNED
		s.Status = StatusReturned
	}
	if err := checkTransition(s.Status, StatusAvailable); err != nil {
		return err
	}
	s.Status = StatusAvailable
	s.clearHold()
	return nil
}

// ChangeStatus выполняет административный переход статуса через таблицу переходов
func (s *SerialNumber) ChangeStatus(to Status) error {
	if err := checkTransition(s.Status, to); err != nil {
		return err
	}
	s.Status = to
	if to != StatusReserved {
		s.clearHold()
	}
	return nil
}

func (s *SerialNumber) clearHold() {
	s.HoldChannel = ""
	s.HoldReference = ""
	s.HoldAt = nil
}
