package app

import (
	"os"
	"strings"
	"time"
)

// Config описывает настройки запуска приложения. Все значения читаются из
// окружения с префиксом STOREFRONT_; Kafka использует общепринятый
// KAFKA_BROKERS.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	// PostgresDSN пуст — приложение работает на in-memory хранилище
	// (локальная разработка и тесты).
	PostgresDSN  string
	KafkaBrokers string

	// AdminToken защищает админские маршруты; пустой токен их закрывает.
	AdminToken string
	// WebhookSecret — ключ подписи webhook-payload'ов провайдера.
	WebhookSecret string

	SweepInterval time.Duration
	MaxOrderAge   time.Duration
}

// DefaultConfig возвращает безопасные значения по умолчанию.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:      ":8080",
		MetricsAddr:   ":9090",
		SweepInterval: time.Hour,
		MaxOrderAge:   24 * time.Hour,
	}
}

// ConfigFromEnv собирает конфигурацию из окружения поверх значений по умолчанию.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("STOREFRONT_HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("STOREFRONT_METRICS_ADDR")); v != "" {
		cfg.MetricsAddr = v
	}
	cfg.PostgresDSN = strings.TrimSpace(os.Getenv("STOREFRONT_POSTGRES_DSN"))
	cfg.KafkaBrokers = strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))
	cfg.AdminToken = strings.TrimSpace(os.Getenv("STOREFRONT_ADMIN_TOKEN"))
	cfg.WebhookSecret = strings.TrimSpace(os.Getenv("STOREFRONT_WEBHOOK_SECRET"))

	if v := strings.TrimSpace(os.Getenv("STOREFRONT_SWEEP_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SweepInterval = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("STOREFRONT_MAX_ORDER_AGE")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.MaxOrderAge = d
		}
	}

	return cfg
}
