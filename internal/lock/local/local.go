package local

import (
	"context"
	"sync"
)

// Locker реализует блокировку в пределах одного процесса.
// Используется для разработки и тестирования вместо Redis:
// на каждый ключ заводится свой мьютекс.
type Locker struct {
	mu      sync.Mutex
	mutexes map[string]*sync.Mutex
}

// NewLocker создаёт новый локальный Locker
func NewLocker() *Locker {
	return &Locker{mutexes: make(map[string]*sync.Mutex)}
}

// WithLock выполняет fn под мьютексом ключа key
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := l.keyMutex(key)
	m.Lock()
	defer m.Unlock()

	return fn(ctx)
}

func (l *Locker) keyMutex(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.mutexes[key]
	if !ok {
		m = &sync.Mutex{}
		l.mutexes[key] = m
	}
	return m
}
