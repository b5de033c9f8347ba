package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/anhduy-tech/lapxpert-inventory/internal/repository"
)

// Таймауты уборки просроченных резервов по умолчанию
const (
	DefaultSweepInterval   = 5 * time.Minute
	DefaultHoldTimeout     = 15 * time.Minute
	DefaultTempHoldTimeout = 30 * time.Minute
)

// SweeperConfig содержит настройки фоновой уборки резервов
type SweeperConfig struct {
	// Interval — период между проходами
	Interval time.Duration
	// HoldTimeout — возраст, после которого обычный резерв считается брошенным
	HoldTimeout time.Duration
	// TempHoldTimeout — увеличенный таймаут для резервов с временными
	// reference (CART-/TEMP-): корзина живёт дольше неподтверждённого заказа
	TempHoldTimeout time.Duration
}

// DefaultSweeperConfig возвращает настройки уборки по умолчанию
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:        DefaultSweepInterval,
		HoldTimeout:     DefaultHoldTimeout,
		TempHoldTimeout: DefaultTempHoldTimeout,
	}
}

// Sweeper периодически освобождает брошенные резервы.
// Снятие идёт через обычный Release путь, гонка с параллельным
// подтверждением продажи разрешается версионированием: повторное
// снятие уже снятого или проданного резерва — no-op.
type Sweeper struct {
	logger  *zap.Logger
	service *SerialNumberService
	cfg     SweeperConfig
}

// NewSweeper создаёт новый sweeper просроченных резервов
func NewSweeper(logger *zap.Logger, service *SerialNumberService, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.HoldTimeout <= 0 {
		cfg.HoldTimeout = DefaultHoldTimeout
	}
	if cfg.TempHoldTimeout <= 0 {
		cfg.TempHoldTimeout = DefaultTempHoldTimeout
	}
	return &Sweeper{logger: logger, service: service, cfg: cfg}
}

// Start запускает sweeper в фоновом режиме до отмены контекста
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info("starting hold sweeper",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("hold_timeout", s.cfg.HoldTimeout),
		zap.Duration("temp_hold_timeout", s.cfg.TempHoldTimeout),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("hold sweeper context cancelled, stopping")
			return nil
		case <-ticker.C:
			if released, err := s.SweepOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("sweep pass failed", zap.Error(err))
			} else if released > 0 {
				s.logger.Info("sweep pass released expired holds",
					zap.Int("released", released),
				)
			}
		}
	}
}

// SweepOnce выполняет один проход уборки и возвращает число снятых резервов.
// Временные резервы (CART-/TEMP-) живут TempHoldTimeout, остальные HoldTimeout.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	now := time.Now().UTC()

	expired, err := s.service.serials.FindExpiredHolds(ctx, now.Add(-s.cfg.HoldTimeout))
	if err != nil {
		return 0, err
	}

	toRelease := make([]int64, 0, len(expired))
	for _, sn := range expired {
		// Временные reference живут дольше, их убирает отдельный проход
		if sn.HasTemporaryReference() {
			continue
		}
		toRelease = append(toRelease, sn.ID)
	}

	// Второй проход: временные резервы старше увеличенного таймаута.
	// Множества не пересекаются, первый проход такие reference пропустил.
	for _, prefix := range []string{repository.CartReferencePrefix, repository.TempReferencePrefix} {
		tempExpired, err := s.service.serials.FindExpiredHoldsByPrefix(ctx, prefix, now.Add(-s.cfg.TempHoldTimeout))
		if err != nil {
			return 0, err
		}
		for _, sn := range tempExpired {
			toRelease = append(toRelease, sn.ID)
		}
	}

	if len(toRelease) == 0 {
		return 0, nil
	}

	released := 0
	for _, id := range toRelease {
		if ctx.Err() != nil {
			return released, ctx.Err()
		}
		if err := s.service.Release(ctx, []int64{id}, repository.SystemActor, "hold expired"); err != nil {
			// Единица могла быть продана или снята между чтением и снятием,
			// продолжаем со следующей
			s.logger.Warn("failed to release expired hold",
				zap.Error(err),
				zap.Int64("serial_id", id),
			)
			continue
		}
		released++
	}

	return released, nil
}
