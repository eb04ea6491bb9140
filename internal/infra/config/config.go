package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AMQPURL string `envconfig:"AMQP_URL"`

	Auth struct {
		Secret string `envconfig:"AUTH_SECRET"`
	} `envconfig:""`

	Featured struct {
		CacheTTL time.Duration `envconfig:"FEATURED_CACHE_TTL" default:"30s"`
	} `envconfig:""`

	Queues struct {
		Audit string `envconfig:"AUDIT_QUEUE" default:"audit_entries"`
	} `envconfig:""`

	Tracks struct {
		BaseURL string        `envconfig:"TRACKS_BASE_URL"`
		APIKey  string        `envconfig:"TRACKS_API_KEY"`
		Timeout time.Duration `envconfig:"TRACKS_TIMEOUT" default:"10s"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
