package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/anhduy-tech/lapxpert-inventory/internal/service"
)

// KafkaInventoryEventPublisher реализует service.EventPublisher используя Kafka.
// Сообщения партиционируются по variant_id: события одного варианта
// попадают в одну партицию и читаются по порядку.
type KafkaInventoryEventPublisher struct {
	logger *zap.Logger
	writer *kafka.Writer
	topic  string
}

// NewKafkaInventoryEventPublisher создаёт новый Kafka publisher событий инвентаря
func NewKafkaInventoryEventPublisher(logger *zap.Logger, brokers []string, topic string) *KafkaInventoryEventPublisher {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	return &KafkaInventoryEventPublisher{
		logger: logger,
		writer: writer,
		topic:  topic,
	}
}

// Close закрывает Kafka writer
func (p *KafkaInventoryEventPublisher) Close() error {
	return p.writer.Close()
}

// PublishStatusChanged публикует событие смены статуса серийного номера
func (p *KafkaInventoryEventPublisher) PublishStatusChanged(ctx context.Context, event service.SerialStatusEvent) error {
	payload := map[string]interface{}{
		"event_id":      uuid.New().String(),
		"event_type":    "inventory.serial.status_changed",
		"event_version": 1,
		"occurred_at":   time.Now().UTC().Format(time.RFC3339),
		"serial_id":     event.SerialID,
		"serial_value":  event.SerialValue,
		"variant_id":    event.VariantID,
		"old_status":    event.OldStatus,
		"new_status":    event.NewStatus,
		"channel":       event.Channel,
		"reference":     event.Reference,
		"actor":         event.Actor,
	}

	valueBytes, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to marshal serial status event",
			zap.Error(err),
			zap.Int64("serial_id", event.SerialID),
		)
		return err
	}

	message := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.VariantID, 10)),
		Value: valueBytes,
	}

	err = p.writer.WriteMessages(ctx, message)
	if err != nil {
		p.logger.Error("failed to publish serial status event",
			zap.Error(err),
			zap.String("topic", p.topic),
			zap.Int64("serial_id", event.SerialID),
			zap.Int64("variant_id", event.VariantID),
		)
		return err
	}

	p.logger.Info("serial status event published",
		zap.String("topic", p.topic),
		zap.Int64("serial_id", event.SerialID),
		zap.String("old_status", event.OldStatus),
		zap.String("new_status", event.NewStatus),
	)

	return nil
}

// PublishLowStock публикует предупреждение о низком остатке варианта
func (p *KafkaInventoryEventPublisher) PublishLowStock(ctx context.Context, event service.LowStockEvent) error {
	payload := map[string]interface{}{
		"event_id":      uuid.New().String(),
		"event_type":    "inventory.variant.low_stock",
		"event_version": 1,
		"occurred_at":   time.Now().UTC().Format(time.RFC3339),
		"variant_id":    event.VariantID,
		"available":     event.Available,
		"threshold":     event.Threshold,
	}

	valueBytes, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to marshal low stock event",
			zap.Error(err),
			zap.Int64("variant_id", event.VariantID),
		)
		return err
	}

	message := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.VariantID, 10)),
		Value: valueBytes,
	}

	err = p.writer.WriteMessages(ctx, message)
	if err != nil {
		p.logger.Error("failed to publish low stock event",
			zap.Error(err),
			zap.String("topic", p.topic),
			zap.Int64("variant_id", event.VariantID),
		)
		return err
	}

	p.logger.Info("low stock event published",
		zap.String("topic", p.topic),
		zap.Int64("variant_id", event.VariantID),
		zap.Int("available", event.Available),
	)

	return nil
}
