package lock

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout возвращается, когда блокировку не удалось получить за wait
var ErrTimeout = errors.New("lock acquisition timed out")

// Locker определяет интерфейс распределённой блокировки.
// WithLock выполняет fn под блокировкой key: ждёт получения не дольше wait,
// удерживает не дольше lease. Ошибка fn возвращается как есть,
// блокировка снимается в любом случае.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// VariantKey строит ключ блокировки уровня варианта.
// Все операции резервирования одного варианта сериализуются этим ключом.
func VariantKey(variantID int64) string {
	return fmt.Sprintf("inventory:lock:variant:%d", variantID)
}

// SerialKey строит ключ блокировки уровня отдельной единицы
func SerialKey(serialID int64) string {
	return fmt.Sprintf("inventory:lock:serial:%d", serialID)
}
