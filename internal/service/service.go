package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/anhduy-tech/lapxpert-inventory/internal/lock"
	"github.com/anhduy-tech/lapxpert-inventory/internal/repository"
	"github.com/anhduy-tech/lapxpert-inventory/internal/retry"
)

// DefaultLowStockThreshold — остаток, ниже которого логируется предупреждение
const DefaultLowStockThreshold = 5

// ReservationItem — одна строка запроса на резервирование.
// SerialID > 0 означает явный выбор конкретной единицы,
// иначе резервируется Quantity любых единиц варианта.
type ReservationItem struct {
	VariantID int64
	Quantity  int
	SerialID  int64
}

// SerialNumberService — оркестратор резервирования серийных номеров.
// Паттерн конкуренции: распределённая блокировка сериализует писателей
// одного варианта, optimistic versioning ловит тех, кто прошёл мимо
// блокировки, retry разрешает конфликт повторным чтением.
// Аудит и события публикуются после снятия блокировки и best-effort.
type SerialNumberService struct {
	logger    *zap.Logger
	serials   repository.SerialNumberRepository
	audit     repository.AuditRepository
	locker    lock.Locker
	publisher EventPublisher

	maxAttempts       int
	lowStockThreshold int
}

// NewSerialNumberService создаёт новый сервис серийных номеров
func NewSerialNumberService(
	logger *zap.Logger,
	serials repository.SerialNumberRepository,
	audit repository.AuditRepository,
	locker lock.Locker,
	publisher EventPublisher,
) *SerialNumberService {
	return &SerialNumberService{
		logger:            logger,
		serials:           serials,
		audit:             audit,
		locker:            locker,
		publisher:         publisher,
		maxAttempts:       retry.DefaultMaxAttempts,
		lowStockThreshold: DefaultLowStockThreshold,
	}
}

// AvailableQuantity возвращает количество единиц варианта, доступных
// для создания заказа: свободные плюс удерживаемые корзиной.
// Корзинный резерв конвертируется в заказ, поэтому считается доступным.
func (s *SerialNumberService) AvailableQuantity(ctx context.Context, variantID int64) (int, error) {
	available, err := s.serials.CountByVariantAndStatus(ctx, variantID, repository.StatusAvailable)
	if err != nil {
		return 0, fmt.Errorf("count available: %w", err)
	}

	cartHeld, err := s.serials.CountCartHeldByVariant(ctx, variantID)
	if err != nil {
		return 0, fmt.Errorf("count cart held: %w", err)
	}

	total := available + cartHeld
	if total <= s.lowStockThreshold {
		s.logger.Warn("variant stock is low",
			zap.Int64("variant_id", variantID),
			zap.Int("available", total),
		)
	}
	return total, nil
}

// IsAvailable проверяет выполнимость набора строк запроса.
// Явная единица должна существовать, принадлежать указанному варианту
// и быть свободной или корзинным резервом. Количественная строка требует
// достаточного доступного остатка. Любая ошибка чтения трактуется
// как недоступность.
func (s *SerialNumberService) IsAvailable(ctx context.Context, items []ReservationItem) (bool, error) {
	for _, item := range items {
		if item.SerialID > 0 {
			sn, err := s.serials.GetByID(ctx, item.SerialID)
			if err != nil {
				return false, err
			}
			if sn.VariantID != item.VariantID {
				return false, nil
			}
			if !sn.IsReservableForOrder() {
				return false, nil
			}
			continue
		}

		available, err := s.AvailableQuantity(ctx, item.VariantID)
		if err != nil {
			return false, err
		}
		if available < item.Quantity {
			return false, nil
		}
	}
	return true, nil
}

// ReserveByQuantity резервирует qty любых единиц варианта под держателя.
// Единицы выбираются по возрастанию ID под блокировкой варианта;
// недостаток остатка возвращает ErrInsufficientInventory, частичных
// резервов не остаётся.
func (s *SerialNumberService) ReserveByQuantity(ctx context.Context, variantID int64, qty int, channel, holdRef, actor string) ([]repository.SerialNumber, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", qty)
	}

	var reserved []repository.SerialNumber
	var origins []holdOrigin

	err := s.locker.WithLock(ctx, lock.VariantKey(variantID), func(ctx context.Context) error {
		return retry.Do(ctx, s.maxAttempts, func(ctx context.Context) error {
			candidates, err := s.serials.FindReservableByVariant(ctx, variantID, qty)
			if err != nil {
				return err
			}
			if len(candidates) < qty {
				return fmt.Errorf("%w: variant %d has %d of %d requested",
					ErrInsufficientInventory, variantID, len(candidates), qty)
			}

			batch := make([]*repository.SerialNumber, 0, qty)
			from := make([]holdOrigin, 0, qty)
			now := time.Now().UTC()
			for i := range candidates[:qty] {
				sn := candidates[i]
				origin, err := takeForHold(&sn, channel, holdRef, now)
				if err != nil {
					return err
				}
				batch = append(batch, &sn)
				from = append(from, origin)
			}

			if err := s.serials.UpdateBatch(ctx, batch); err != nil {
				return err
			}

			reserved = reserved[:0]
			for _, sn := range batch {
				reserved = append(reserved, *sn)
			}
			origins = from
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.emitReservations(ctx, reserved, origins, channel, holdRef, actor)
	s.checkLowStock(ctx, variantID)

	s.logger.Info("reserved units by quantity",
		zap.Int64("variant_id", variantID),
		zap.Int("quantity", qty),
		zap.String("channel", channel),
		zap.String("hold_reference", holdRef),
	)
	return reserved, nil
}

// ReserveSerials резервирует явно выбранные единицы под держателя.
// Единица принимается, если она свободна, удерживается корзиной
// (конвертация) или уже удерживается этим же держателем (идемпотентный
// повтор). Любая другая единица прерывает вызов целиком, взятые ранее
// в этом вызове единицы освобождаются компенсирующим release.
func (s *SerialNumberService) ReserveSerials(ctx context.Context, serialIDs []int64, channel, holdRef, actor string) ([]repository.SerialNumber, error) {
	ids := sortedUnique(serialIDs)
	reserved := make([]repository.SerialNumber, 0, len(ids))
	origins := make([]holdOrigin, 0, len(ids))

	for _, id := range ids {
		var taken *repository.SerialNumber
		var origin holdOrigin

		err := s.locker.WithLock(ctx, lock.SerialKey(id), func(ctx context.Context) error {
			return retry.Do(ctx, s.maxAttempts, func(ctx context.Context) error {
				sn, err := s.serials.GetByID(ctx, id)
				if err != nil {
					return err
				}

				if sn.IsReserved() && sn.HoldReference == holdRef {
					taken = nil // уже у этого держателя, записывать нечего
					return nil
				}
				if sn.IsReserved() && !sn.IsCartHold() {
					return fmt.Errorf("%w: serial %d held by %q",
						ErrOwnershipMismatch, id, sn.HoldReference)
				}
				origin, err = takeForHold(&sn, channel, holdRef, time.Now().UTC())
				if err != nil {
					return err
				}
				if err := s.serials.Update(ctx, &sn); err != nil {
					return err
				}
				taken = &sn
				return nil
			})
		})
		if err != nil {
			s.ReleaseSafely(ctx, serialIDsOf(reserved), actor)
			return nil, err
		}
		if taken != nil {
			reserved = append(reserved, *taken)
			origins = append(origins, origin)
		}
	}

	s.emitReservations(ctx, reserved, origins, channel, holdRef, actor)

	s.logger.Info("reserved explicit units",
		zap.Int("requested", len(ids)),
		zap.Int("reserved", len(reserved)),
		zap.String("hold_reference", holdRef),
	)
	return reserved, nil
}

// ReserveItems резервирует смешанный набор строк: явные единицы и
// количества, сгруппированные по вариантам. Варианты обрабатываются
// в порядке возрастания ID, блокировки всегда берутся в одном порядке.
// Отказ на любом варианте освобождает всё зарезервированное этим вызовом.
func (s *SerialNumberService) ReserveItems(ctx context.Context, items []ReservationItem, channel, holdRef, actor string) ([]repository.SerialNumber, error) {
	type variantRequest struct {
		explicitIDs []int64
		quantity    int
	}

	byVariant := make(map[int64]*variantRequest)
	for _, item := range items {
		req, ok := byVariant[item.VariantID]
		if !ok {
			req = &variantRequest{}
			byVariant[item.VariantID] = req
		}
		if item.SerialID > 0 {
			req.explicitIDs = append(req.explicitIDs, item.SerialID)
		} else {
			req.quantity += item.Quantity
		}
	}

	variantIDs := make([]int64, 0, len(byVariant))
	for variantID := range byVariant {
		variantIDs = append(variantIDs, variantID)
	}
	sort.Slice(variantIDs, func(i, j int) bool { return variantIDs[i] < variantIDs[j] })

	allReserved := make([]repository.SerialNumber, 0)
	allOrigins := make([]holdOrigin, 0)

	for _, variantID := range variantIDs {
		req := byVariant[variantID]

		var reserved []repository.SerialNumber
		var origins []holdOrigin
		err := s.locker.WithLock(ctx, lock.VariantKey(variantID), func(ctx context.Context) error {
			return retry.Do(ctx, s.maxAttempts, func(ctx context.Context) error {
				var batchErr error
				reserved, origins, batchErr = s.reserveVariantLocked(ctx, variantID, req.explicitIDs, req.quantity, channel, holdRef)
				return batchErr
			})
		})
		if err != nil {
			s.ReleaseSafely(ctx, serialIDsOf(allReserved), actor)
			return nil, err
		}
		allReserved = append(allReserved, reserved...)
		allOrigins = append(allOrigins, origins...)
	}

	s.emitReservations(ctx, allReserved, allOrigins, channel, holdRef, actor)
	for _, variantID := range variantIDs {
		s.checkLowStock(ctx, variantID)
	}

	s.logger.Info("reserved mixed item lines",
		zap.Int("variants", len(variantIDs)),
		zap.Int("reserved", len(allReserved)),
		zap.String("hold_reference", holdRef),
	)
	return allReserved, nil
}

// reserveVariantLocked резервирует единицы одного варианта.
// Вызывается под блокировкой варианта.
func (s *SerialNumberService) reserveVariantLocked(ctx context.Context, variantID int64, explicitIDs []int64, qty int, channel, holdRef string) ([]repository.SerialNumber, []holdOrigin, error) {
	batch := make([]*repository.SerialNumber, 0, len(explicitIDs)+qty)
	origins := make([]holdOrigin, 0, len(explicitIDs)+qty)
	now := time.Now().UTC()
	taken := make(map[int64]bool, len(explicitIDs))

	if len(explicitIDs) > 0 {
		units, err := s.serials.GetByIDs(ctx, explicitIDs)
		if err != nil {
			return nil, nil, err
		}
		if len(units) != len(sortedUnique(explicitIDs)) {
			return nil, nil, fmt.Errorf("%w: some of serials %v do not exist",
				repository.ErrNotFound, explicitIDs)
		}
		for i := range units {
			sn := units[i]
			if sn.VariantID != variantID {
				return nil, nil, fmt.Errorf("%w: serial %d belongs to variant %d, expected %d",
					ErrVariantMismatch, sn.ID, sn.VariantID, variantID)
			}
			if sn.IsReserved() && sn.HoldReference == holdRef {
				taken[sn.ID] = true
				continue
			}
			origin, err := takeForHold(&sn, channel, holdRef, now)
			if err != nil {
				return nil, nil, err
			}
			batch = append(batch, &sn)
			origins = append(origins, origin)
			taken[sn.ID] = true
		}
	}

	if qty > 0 {
		candidates, err := s.serials.FindReservableByVariant(ctx, variantID, qty+len(taken))
		if err != nil {
			return nil, nil, err
		}

		picked := 0
		for i := range candidates {
			if picked == qty {
				break
			}
			sn := candidates[i]
			if taken[sn.ID] {
				continue
			}
			origin, err := takeForHold(&sn, channel, holdRef, now)
			if err != nil {
				return nil, nil, err
			}
			batch = append(batch, &sn)
			origins = append(origins, origin)
			picked++
		}
		if picked < qty {
			return nil, nil, fmt.Errorf("%w: variant %d has %d of %d requested",
				ErrInsufficientInventory, variantID, picked, qty)
		}
	}

	if err := s.serials.UpdateBatch(ctx, batch); err != nil {
		return nil, nil, err
	}

	out := make([]repository.SerialNumber, 0, len(batch))
	for _, sn := range batch {
		out = append(out, *sn)
	}
	return out, origins, nil
}

// ConfirmSale переводит резервы заказа в SOLD. Каждая единица должна
// удерживаться именно orderRef, чужой резерв прерывает весь батч.
// Уже проданная этому заказу единица пропускается, повторный вызов
// после сбоя безопасен.
func (s *SerialNumberService) ConfirmSale(ctx context.Context, serialIDs []int64, orderRef, actor string) error {
	ids := sortedUnique(serialIDs)
	var sold []repository.SerialNumber

	err := retry.Do(ctx, s.maxAttempts, func(ctx context.Context) error {
		units, err := s.serials.GetByIDs(ctx, ids)
		if err != nil {
			return err
		}
		if len(units) != len(ids) {
			return fmt.Errorf("%w: some of serials %v do not exist", repository.ErrNotFound, ids)
		}

		batch := make([]*repository.SerialNumber, 0, len(units))
		for i := range units {
			sn := units[i]

			if sn.IsSold() && sn.HoldReference == orderRef {
				s.logger.Warn("serial already sold for this order, skipping",
					zap.Int64("serial_id", sn.ID),
					zap.String("order_reference", orderRef),
				)
				continue
			}
			if !sn.IsReserved() {
				return fmt.Errorf("%w: %s -> %s (serial %d)",
					repository.ErrIllegalTransition, sn.Status, repository.StatusSold, sn.ID)
			}
			if sn.HoldReference != orderRef {
				return fmt.Errorf("%w: serial %d held by %q, sale requested for %q",
					ErrOwnershipMismatch, sn.ID, sn.HoldReference, orderRef)
			}

			if err := sn.MarkSold(); err != nil {
				return err
			}
			batch = append(batch, &sn)
		}

		if err := s.serials.UpdateBatch(ctx, batch); err != nil {
			return err
		}

		sold = sold[:0]
		for _, sn := range batch {
			sold = append(sold, *sn)
		}
		return nil
	})
	if err != nil {
		return err
	}

	entries := make([]repository.AuditEntry, 0, len(sold))
	events := make([]SerialStatusEvent, 0, len(sold))
	for _, sn := range sold {
		entries = append(entries, repository.NewSaleEntry(sn.ID, orderRef, actor, "sale confirmed"))
		events = append(events, statusEvent(sn, repository.StatusReserved, actor))
	}
	s.emit(ctx, entries, events)

	s.logger.Info("sale confirmed",
		zap.Int("requested", len(ids)),
		zap.Int("sold", len(sold)),
		zap.String("order_reference", orderRef),
	)
	return nil
}

// Release снимает резервы с единиц: RESERVED -> AVAILABLE.
// Единицы не в RESERVED молча пропускаются, повторное снятие
// уже снятого резерва — no-op.
func (s *SerialNumberService) Release(ctx context.Context, serialIDs []int64, actor, reason string) error {
	ids := sortedUnique(serialIDs)
	var released []repository.SerialNumber

	err := retry.Do(ctx, s.maxAttempts, func(ctx context.Context) error {
		units, err := s.serials.GetByIDs(ctx, ids)
		if err != nil {
			return err
		}

		batch := make([]*repository.SerialNumber, 0, len(units))
		for i := range units {
			sn := units[i]
			if !sn.IsReserved() {
				continue
			}
			if err := sn.ReleaseHold(); err != nil {
				return err
			}
			batch = append(batch, &sn)
		}

		if err := s.serials.UpdateBatch(ctx, batch); err != nil {
			return err
		}

		released = released[:0]
		for _, sn := range batch {
			released = append(released, *sn)
		}
		return nil
	})
	if err != nil {
		return err
	}

	entries := make([]repository.AuditEntry, 0, len(released))
	events := make([]SerialStatusEvent, 0, len(released))
	for _, sn := range released {
		entries = append(entries, repository.NewReleaseEntry(sn.ID, actor, reason))
		events = append(events, statusEvent(sn, repository.StatusReserved, actor))
	}
	s.emit(ctx, entries, events)

	s.logger.Info("holds released",
		zap.Int("requested", len(ids)),
		zap.Int("released", len(released)),
		zap.String("reason", reason),
	)
	return nil
}

// ReleaseFromSold возвращает проданные или возвращённые единицы в продажу
// (сценарий возврата денег). Единицы в других статусах пропускаются
// с предупреждением.
func (s *SerialNumberService) ReleaseFromSold(ctx context.Context, serialIDs []int64, actor, reason string) error {
	ids := sortedUnique(serialIDs)
	var released []repository.SerialNumber
	var oldStatuses []repository.Status

	err := retry.Do(ctx, s.maxAttempts, func(ctx context.Context) error {
		units, err := s.serials.GetByIDs(ctx, ids)
		if err != nil {
			return err
		}

		batch := make([]*repository.SerialNumber, 0, len(units))
		from := make([]repository.Status, 0, len(units))
		for i := range units {
			sn := units[i]
			if !sn.IsSold() && !sn.IsReturned() {
				s.logger.Warn("serial is neither sold nor returned, skipping refund release",
					zap.Int64("serial_id", sn.ID),
					zap.String("status", string(sn.Status)),
				)
				continue
			}
			from = append(from, sn.Status)
			if err := sn.ReleaseFromSold(); err != nil {
				return err
			}
			batch = append(batch, &sn)
		}

		if err := s.serials.UpdateBatch(ctx, batch); err != nil {
			return err
		}

		released = released[:0]
		for _, sn := range batch {
			released = append(released, *sn)
		}
		oldStatuses = from
		return nil
	})
	if err != nil {
		return err
	}

	entries := make([]repository.AuditEntry, 0, len(released))
	events := make([]SerialStatusEvent, 0, len(released))
	for i, sn := range released {
		entries = append(entries, repository.NewStatusChangeEntry(sn.ID, oldStatuses[i], sn.Status, actor, reason))
		events = append(events, statusEvent(sn, oldStatuses[i], actor))
	}
	s.emit(ctx, entries, events)

	s.logger.Info("sold units released back to stock",
		zap.Int("requested", len(ids)),
		zap.Int("released", len(released)),
		zap.String("reason", reason),
	)
	return nil
}

// RebindReservation перенацеливает резервы с oldRef на newRef
// (временный ID заказа заменяется постоянным). Единицы, удерживаемые
// другим держателем, пропускаются с предупреждением.
func (s *SerialNumberService) RebindReservation(ctx context.Context, serialIDs []int64, oldRef, newRef, actor string) error {
	ids := sortedUnique(serialIDs)
	var rebound []repository.SerialNumber

	err := retry.Do(ctx, s.maxAttempts, func(ctx context.Context) error {
		units, err := s.serials.GetByIDs(ctx, ids)
		if err != nil {
			return err
		}

		batch := make([]*repository.SerialNumber, 0, len(units))
		now := time.Now().UTC()
		for i := range units {
			sn := units[i]
			if !sn.IsReserved() || sn.HoldReference != oldRef {
				s.logger.Warn("serial is not held by expected reference, skipping rebind",
					zap.Int64("serial_id", sn.ID),
					zap.String("expected_reference", oldRef),
					zap.String("actual_reference", sn.HoldReference),
				)
				continue
			}
			if err := sn.Rebind(sn.HoldChannel, newRef, now); err != nil {
				return err
			}
			batch = append(batch, &sn)
		}

		if err := s.serials.UpdateBatch(ctx, batch); err != nil {
			return err
		}

		rebound = rebound[:0]
		for _, sn := range batch {
			rebound = append(rebound, *sn)
		}
		return nil
	})
	if err != nil {
		return err
	}

	entries := make([]repository.AuditEntry, 0, len(rebound))
	events := make([]SerialStatusEvent, 0, len(rebound))
	for _, sn := range rebound {
		entries = append(entries, repository.NewRebindEntry(sn.ID, oldRef, newRef, actor, "reservation rebound"))
		events = append(events, statusEvent(sn, repository.StatusReserved, actor))
	}
	s.emit(ctx, entries, events)

	s.logger.Info("reservations rebound",
		zap.String("old_reference", oldRef),
		zap.String("new_reference", newRef),
		zap.Int("requested", len(ids)),
		zap.Int("rebound", len(rebound)),
	)
	return nil
}

// ValidateAssignment сверяет фактическое распределение резервов держателя
// с ожидаемым: набор ID и покрытие запрошенных строк по вариантам.
// Расхождение возвращает ErrAssignmentMismatch.
func (s *SerialNumberService) ValidateAssignment(ctx context.Context, items []ReservationItem, reservedIDs []int64, holdRef string) error {
	held, err := s.serials.FindByHoldReference(ctx, holdRef)
	if err != nil {
		return err
	}

	heldReserved := make(map[int64]repository.SerialNumber)
	for _, sn := range held {
		if sn.IsReserved() {
			heldReserved[sn.ID] = sn
		}
	}

	expected := sortedUnique(reservedIDs)
	if len(heldReserved) != len(expected) {
		return fmt.Errorf("%w: holder %q has %d reserved units, expected %d",
			ErrAssignmentMismatch, holdRef, len(heldReserved), len(expected))
	}
	for _, id := range expected {
		if _, ok := heldReserved[id]; !ok {
			return fmt.Errorf("%w: serial %d is not reserved for %q",
				ErrAssignmentMismatch, id, holdRef)
		}
	}

	wantByVariant := make(map[int64]int)
	for _, item := range items {
		if item.SerialID > 0 {
			wantByVariant[item.VariantID]++
		} else {
			wantByVariant[item.VariantID] += item.Quantity
		}
	}
	gotByVariant := make(map[int64]int)
	for _, sn := range heldReserved {
		gotByVariant[sn.VariantID]++
	}
	for variantID, want := range wantByVariant {
		if gotByVariant[variantID] != want {
			return fmt.Errorf("%w: variant %d has %d reserved units, expected %d",
				ErrAssignmentMismatch, variantID, gotByVariant[variantID], want)
		}
	}
	return nil
}

// ReleaseSafely снимает резервы, не возвращая ошибку. Используется как
// компенсация при отказе создания заказа: отказ компенсации логируется,
// просроченный hold позже подберёт sweeper.
func (s *SerialNumberService) ReleaseSafely(ctx context.Context, serialIDs []int64, actor string) {
	if len(serialIDs) == 0 {
		return
	}
	if err := s.Release(ctx, serialIDs, actor, "compensating release"); err != nil {
		s.logger.Error("compensating release failed, sweeper will reclaim the holds",
			zap.Error(err),
			zap.Int64s("serial_ids", serialIDs),
		)
	}
}

// holdOrigin — состояние единицы до взятия резерва.
// Нужно аудиту и событиям: конвертация корзинного резерва стартует
// из RESERVED/CART, а не из AVAILABLE.
type holdOrigin struct {
	status    repository.Status
	channel   string
	reference string
}

// takeForHold занимает единицу под держателя: свободная резервируется,
// корзинный резерв перенацеливается без прохода через AVAILABLE.
// Возвращает состояние единицы до мутации.
func takeForHold(sn *repository.SerialNumber, channel, reference string, now time.Time) (holdOrigin, error) {
	origin := holdOrigin{
		status:    sn.Status,
		channel:   sn.HoldChannel,
		reference: sn.HoldReference,
	}
	if sn.IsCartHold() {
		return origin, sn.Rebind(channel, reference, now)
	}
	return origin, sn.Reserve(channel, reference, now)
}

// checkLowStock логирует и публикует предупреждение о низком остатке
func (s *SerialNumberService) checkLowStock(ctx context.Context, variantID int64) {
	available, err := s.AvailableQuantity(ctx, variantID)
	if err != nil {
		s.logger.Warn("failed to compute availability for low stock check",
			zap.Error(err),
			zap.Int64("variant_id", variantID),
		)
		return
	}
	if available > s.lowStockThreshold {
		return
	}
	if err := s.publisher.PublishLowStock(ctx, LowStockEvent{
		VariantID: variantID,
		Available: available,
		Threshold: s.lowStockThreshold,
	}); err != nil {
		s.logger.Warn("failed to publish low stock event",
			zap.Error(err),
			zap.Int64("variant_id", variantID),
		)
	}
}

// emitReservations формирует аудит и события для успешного резервирования.
// origins параллелен reserved и несёт состояние единиц до взятия.
func (s *SerialNumberService) emitReservations(ctx context.Context, reserved []repository.SerialNumber, origins []holdOrigin, channel, holdRef, actor string) {
	if len(reserved) == 0 {
		return
	}
	entries := make([]repository.AuditEntry, 0, len(reserved))
	events := make([]SerialStatusEvent, 0, len(reserved))
	for i, sn := range reserved {
		from := origins[i]
		entries = append(entries, repository.NewReservationEntry(
			sn.ID, from.status, from.channel, from.reference, channel, holdRef, actor, "reserved"))
		events = append(events, statusEvent(sn, from.status, actor))
	}
	s.emit(ctx, entries, events)
}

// emit сохраняет аудит и публикует события. Вызывается после снятия
// блокировки; отказ не откатывает изменение инвентаря.
func (s *SerialNumberService) emit(ctx context.Context, entries []repository.AuditEntry, events []SerialStatusEvent) {
	if len(entries) > 0 {
		if err := s.audit.AppendBatch(ctx, entries); err != nil {
			s.logger.Error("failed to persist audit entries",
				zap.Error(err),
				zap.Int("entries", len(entries)),
			)
		}
	}
	for _, event := range events {
		if err := s.publisher.PublishStatusChanged(ctx, event); err != nil {
			s.logger.Warn("failed to publish status event",
				zap.Error(err),
				zap.Int64("serial_id", event.SerialID),
			)
		}
	}
}

func statusEvent(sn repository.SerialNumber, oldStatus repository.Status, actor string) SerialStatusEvent {
	return SerialStatusEvent{
		SerialID:    sn.ID,
		SerialValue: sn.SerialValue,
		VariantID:   sn.VariantID,
		OldStatus:   string(oldStatus),
		NewStatus:   string(sn.Status),
		Channel:     sn.HoldChannel,
		Reference:   sn.HoldReference,
		Actor:       actor,
	}
}

func sortedUnique(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func serialIDsOf(sns []repository.SerialNumber) []int64 {
	out := make([]int64, 0, len(sns))
	for _, sn := range sns {
		out = append(out, sn.ID)
	}
	return out
}
