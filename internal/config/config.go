package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	ServiceName    = "bloodbank"
	ServiceVersion = "1.0.0"
)

type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCAddr string `env:"GRPC_ADDR" envDefault:":9090"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Database DatabaseOptions
	Redis    RedisOptions
	RabbitMQ RabbitMQOptions
	Auth     AuthOptions
	Alerts   AlertOptions
	Tracing  TracingOptions
	Metrics  MetricsOptions
}

type DatabaseOptions struct {
	Driver          string        `env:"DB_DRIVER" envDefault:"sqlite"`
	DSN             string        `env:"DB_DSN" envDefault:"bloodbank.db"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"50"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	AutoMigrate     bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

type RedisOptions struct {
	Addr         string `env:"REDIS_ADDR"`
	Password     string `env:"REDIS_PASSWORD"`
	DB           int    `env:"REDIS_DB" envDefault:"0"`
	AlertChannel string `env:"REDIS_ALERT_CHANNEL" envDefault:"bloodbank:alerts"`

	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
}

func (r RedisOptions) Enabled() bool { return r.Addr != "" }

type RabbitMQOptions struct {
	URL        string `env:"RABBITMQ_URL"`
	Exchange   string `env:"RABBITMQ_EXCHANGE" envDefault:"bloodbank.alerts"`
	RoutingKey string `env:"RABBITMQ_ROUTING_KEY" envDefault:"inventory.low_stock"`
}

func (r RabbitMQOptions) Enabled() bool { return r.URL != "" }

type AuthOptions struct {
	Secret     string        `env:"JWT_SECRET" envDefault:"change-me"`
	AccessTTL  time.Duration `env:"JWT_ACCESS_TTL" envDefault:"5m"`
	RefreshTTL time.Duration `env:"JWT_REFRESH_TTL" envDefault:"24h"`
}

type AlertOptions struct {
	Threshold  int           `env:"ALERT_THRESHOLD" envDefault:"5"`
	Recipients []string      `env:"ALERT_RECIPIENTS" envSeparator:"," envDefault:"placeholder@example.com"`
	Workers    int           `env:"ALERT_WORKERS" envDefault:"2"`
	QueueSize  int           `env:"ALERT_QUEUE_SIZE" envDefault:"100"`
	Timeout    time.Duration `env:"ALERT_TIMEOUT" envDefault:"5s"`
}

type TracingOptions struct {
	Enabled  bool   `env:"OTEL_ENABLED" envDefault:"false"`
	Endpoint string `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	Insecure bool   `env:"OTEL_INSECURE" envDefault:"true"`
}

type MetricsOptions struct {
	Enabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	Path    string `env:"METRICS_PATH" envDefault:"/metrics"`
}

// LoadEnv loads the env files that exist. Missing files are not an error.
func LoadEnv(files ...string) error {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// Load reads .env files and then the process environment.
func Load() (*Config, error) {
	if err := LoadEnv(".env", ".env.local"); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite, mysql or postgres, got %q", c.Database.Driver)
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.Production() && c.Auth.Secret == "change-me" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if c.Alerts.Workers < 1 {
		return fmt.Errorf("ALERT_WORKERS must be at least 1, got %d", c.Alerts.Workers)
	}
	if c.Alerts.QueueSize < 1 {
		return fmt.Errorf("ALERT_QUEUE_SIZE must be at least 1, got %d", c.Alerts.QueueSize)
	}
	return nil
}

func (c *Config) Production() bool {
	return c.Env == "production"
}
