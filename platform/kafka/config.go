package kafka

import (
	"github.com/caarlos0/env/v10"
)

// Config содержит конфигурацию для подключения к Kafka
type Config struct {
	// Brokers — список брокеров Kafka, можно указать несколько через запятую.
	// Значение зависит от среды выполнения:
	//   - локальная разработка (go run): localhost:19092
	//   - запуск в Docker: kafka:9092
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	// InventoryTopic — топик для событий изменения остатков
	InventoryTopic string `env:"KAFKA_INVENTORY_TOPIC" envDefault:"inventory.changed"`
}

// DefaultConfig возвращает конфигурацию с дефолтными значениями для локальной разработки
func DefaultConfig() Config {
	return Config{
		Brokers:        []string{"localhost:19092"},
		InventoryTopic: "inventory.changed",
	}
}

// LoadEnv загружает конфигурацию из переменных окружения поверх дефолтов
func LoadEnv(cfg *Config) error {
	return env.Parse(cfg)
}
