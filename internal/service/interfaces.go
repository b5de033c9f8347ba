package service

import "context"

// SerialStatusEvent описывает смену статуса серийного номера
// для публикации во внешнюю шину
type SerialStatusEvent struct {
	SerialID    int64
	SerialValue string
	VariantID   int64
	OldStatus   string
	NewStatus   string
	Channel     string
	Reference   string
	Actor       string
}

// LowStockEvent описывает падение свободного остатка варианта ниже порога
type LowStockEvent struct {
	VariantID int64
	Available int
	Threshold int
}

// EventPublisher определяет интерфейс публикации событий инвентаря.
// Публикация best-effort: ошибка публикации логируется,
// но не откатывает уже применённое изменение.
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, event SerialStatusEvent) error
	PublishLowStock(ctx context.Context, event LowStockEvent) error
}

// NopPublisher — заглушка EventPublisher для тестов и локального запуска без Kafka
type NopPublisher struct{}

func (NopPublisher) PublishStatusChanged(ctx context.Context, event SerialStatusEvent) error {
	return nil
}

func (NopPublisher) PublishLowStock(ctx context.Context, event LowStockEvent) error {
	return nil
}
