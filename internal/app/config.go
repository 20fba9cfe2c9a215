package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config описывает настройки запуска приложения. Все поля читаются из
// окружения; пустой DatabaseURL переключает хранилище на in-memory режим.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	DatabaseURL  string
	RedisAddr    string
	KafkaBrokers []string

	GatewayBaseURL string
	CallbackURL    string

	ReconcileInterval time.Duration
	ReconcileEnabled  bool
}

// DefaultConfig возвращает базовые настройки.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:          ":8080",
		MetricsAddr:       ":9090",
		GatewayBaseURL:    "http://localhost:8181",
		CallbackURL:       "http://localhost:8080/payments/callback",
		ReconcileInterval: 5 * time.Minute,
		ReconcileEnabled:  true,
	}
}

// LoadConfig накладывает переменные окружения на DefaultConfig.
func LoadConfig() Config {
	cfg := DefaultConfig()

	cfg.HTTPAddr = envString("RFS_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envString("RFS_METRICS_ADDR", cfg.MetricsAddr)
	cfg.DatabaseURL = envString("RFS_DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisAddr = envString("REDIS_ADDR", cfg.RedisAddr)
	cfg.GatewayBaseURL = envString("RFS_GATEWAY_URL", cfg.GatewayBaseURL)
	cfg.CallbackURL = envString("RFS_CALLBACK_URL", cfg.CallbackURL)
	cfg.ReconcileInterval = envDuration("RFS_RECONCILE_INTERVAL", cfg.ReconcileInterval)
	cfg.ReconcileEnabled = envBool("RFS_RECONCILE_ENABLED", cfg.ReconcileEnabled)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	return cfg
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
