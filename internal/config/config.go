package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Service holds process-level settings.
type Service struct {
	Environment string `envconfig:"SERVICE_ENVIRONMENT" required:"true"`
	APIPort     string `envconfig:"SERVICE_API_PORT" default:"8080"`
	HealthPort  string `envconfig:"SERVICE_HEALTH_PORT" default:"8081"`
	Host        string `envconfig:"SERVICE_HOST" default:"localhost:8080"`
}

// Postgres holds the durable-store connection settings.
type Postgres struct {
	Host            string `envconfig:"POSTGRES_HOST" required:"true"`
	Port            string `envconfig:"POSTGRES_PORT" default:"5432"`
	Database        string `envconfig:"POSTGRES_DB" required:"true"`
	User            string `envconfig:"POSTGRES_USER" required:"true"`
	Password        string `envconfig:"POSTGRES_PASSWORD" default:""`
	SSLMode         string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxOpenConns    int    `envconfig:"POSTGRES_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int    `envconfig:"POSTGRES_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime int    `envconfig:"POSTGRES_CONN_MAX_LIFETIME_SEC" default:"300"`
}

// Redis holds the counter/cache store connection settings.
type Redis struct {
	Host     string `envconfig:"REDIS_HOST" required:"true"`
	Port     string `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// SQS holds the optional high-value conversion alert queue settings. An empty
// queue URL disables publishing.
type SQS struct {
	Endpoint string `envconfig:"SQS_ENDPOINT"`
	QueueURL string `envconfig:"SQS_ALERT_QUEUE_URL"`
	Region   string `envconfig:"SQS_REGION" default:"us-east-1"`
}

// Experiments holds the tunables of the experimentation engine itself.
type Experiments struct {
	CacheTTLSec           int     `envconfig:"EXPERIMENTS_CACHE_TTL_SEC" default:"300"`
	CounterTTLDays        int     `envconfig:"EXPERIMENTS_COUNTER_TTL_DAYS" default:"90"`
	HighValueThreshold    float64 `envconfig:"EXPERIMENTS_HIGH_VALUE_THRESHOLD" default:"100"`
	ReconcileIntervalSec  int     `envconfig:"EXPERIMENTS_RECONCILE_INTERVAL_SEC" default:"3600"`
	ReconcileLookbackDays int     `envconfig:"EXPERIMENTS_RECONCILE_LOOKBACK_DAYS" default:"7"`
}

// Config is the full service configuration, loaded from the environment.
type Config struct {
	Service     Service
	Postgres    Postgres
	Redis       Redis
	SQS         SQS
	Experiments Experiments
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
