package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anhduy-tech/lapxpert-inventory/internal/repository"
)

// ErrExhausted возвращается, когда все попытки исчерпаны,
// а конфликт версии так и не разрешился
var ErrExhausted = errors.New("retry attempts exhausted")

// DefaultMaxAttempts — число попыток по умолчанию при конфликте версии
const DefaultMaxAttempts = 3

// backoffStep — шаг линейной задержки между попытками
const backoffStep = 50 * time.Millisecond

// Do выполняет fn до maxAttempts раз, повторяя только при
// repository.ErrVersionConflict. Любая другая ошибка возвращается сразу.
// Перед каждой повторной попыткой делается линейная задержка,
// конкурирующие писатели разводятся по времени.
func Do(ctx context.Context, maxAttempts int, fn func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, repository.ErrVersionConflict) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffStep * time.Duration(attempt)):
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, maxAttempts, lastErr)
}
