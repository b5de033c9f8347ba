package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/anhduy-tech/lapxpert-inventory/internal/lock"
)

// releaseScript снимает блокировку только если токен совпадает.
// Сравнение и удаление выполняются атомарно на стороне Redis,
// чужую блокировку снять нельзя.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config содержит настройки распределённой блокировки
type Config struct {
	// Wait — максимальное время ожидания получения блокировки
	Wait time.Duration
	// Lease — время жизни блокировки; страхует от зависшего держателя
	Lease time.Duration
	// PollInterval — интервал между попытками захвата
	PollInterval time.Duration
}

// DefaultConfig возвращает настройки блокировки по умолчанию
func DefaultConfig() Config {
	return Config{
		Wait:         10 * time.Second,
		Lease:        30 * time.Second,
		PollInterval: 50 * time.Millisecond,
	}
}

// Locker реализует распределённую блокировку поверх Redis.
// Захват — SET NX PX со случайным токеном, снятие — Lua скрипт
// со сравнением токена. Пока fn выполняется, фоновая горутина
// продлевает lease, чтобы долгая операция не потеряла блокировку.
type Locker struct {
	client *redis.Client
	cfg    Config
	logger *zap.Logger
}

// NewLocker создаёт новый Redis Locker
func NewLocker(client *redis.Client, cfg Config, logger *zap.Logger) *Locker {
	if cfg.Wait <= 0 {
		cfg.Wait = DefaultConfig().Wait
	}
	if cfg.Lease <= 0 {
		cfg.Lease = DefaultConfig().Lease
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Locker{client: client, cfg: cfg, logger: logger}
}

// WithLock выполняет fn под распределённой блокировкой key
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	renewCtx, stopRenew := context.WithCancel(ctx)
	renewDone := make(chan struct{})
	go l.renewLoop(renewCtx, key, token, renewDone)

	fnErr := fn(ctx)

	stopRenew()
	<-renewDone
	l.release(key, token)

	return fnErr
}

func (l *Locker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.cfg.Wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.cfg.Lease).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return lock.ErrTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.PollInterval):
		}
	}
}

// renewLoop продлевает lease, пока защищённая секция выполняется
func (l *Locker) renewLoop(ctx context.Context, key, token string, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.cfg.Lease / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := l.client.Expire(ctx, key, l.cfg.Lease).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				l.logger.Warn("failed to renew lock lease",
					zap.String("key", key),
					zap.Error(err))
				continue
			}
			if !ok {
				// Ключ исчез — lease истёк до продления, взаимное
				// исключение на этом участке больше не гарантировано
				l.logger.Error("lock lease expired while held",
					zap.String("key", key))
				return
			}
		}
	}
}

// release снимает блокировку. Используется фоновый контекст:
// снятие должно произойти даже при отменённом ctx вызывающего.
func (l *Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	deleted, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		l.logger.Warn("failed to release lock",
			zap.String("key", key),
			zap.Error(err))
		return
	}
	if deleted == 0 {
		l.logger.Warn("lock already released or taken over",
			zap.String("key", key))
	}
}
