package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// EnvPrefix prefixes every environment variable, e.g. SHOPFRONT_DATABASE_URL
const EnvPrefix = "SHOPFRONT"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Bootstrap     BootstrapConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`
	CORSOrigins     []string      `envconfig:"CORS_ORIGINS" default:"*"`
	// SSLRedirect enables unrolled/secure's HTTPS redirect and HSTS
	SSLRedirect bool `envconfig:"SSL_REDIRECT" default:"false"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `envconfig:"HEALTH_PORT" default:"9090"`
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL             string        `envconfig:"URL"`
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"30m"`
	ConnectTimeout  time.Duration `envconfig:"CONNECT_TIMEOUT" default:"10s"`
	// QueryTimeout bounds grant lookups on the authorization path
	QueryTimeout time.Duration `envconfig:"QUERY_TIMEOUT" default:"2s"`
}

// RedisConfig holds Redis settings. Redis is optional.
type RedisConfig struct {
	URL      string `envconfig:"URL"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"-1"`
	PoolSize int    `envconfig:"POOL_SIZE" default:"10"`
}

// Enabled reports whether a Redis URL was configured
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	JWTSecret string `envconfig:"JWT_SECRET"`
	Issuer    string `envconfig:"ISSUER"`
}

// BootstrapConfig controls first-boot seeding
type BootstrapConfig struct {
	SeedEnabled bool `envconfig:"SEED_ENABLED" default:"true"`
	// SeedFile replaces the embedded seed document when set
	SeedFile string `envconfig:"SEED_FILE"`
}

// RateLimitConfig controls limits on role-permission mutations
type RateLimitConfig struct {
	AdminMutationsPerMinute int `envconfig:"ADMIN_MUTATIONS_PER_MINUTE" default:"60"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"true"`
	// InventorySchedule is a robfig/cron spec for the inventory refresh job
	InventorySchedule string `envconfig:"INVENTORY_SCHEDULE" default:"@every 1m"`

	OTelEnabled        bool    `envconfig:"OTEL_ENABLED" default:"false"`
	OTelEndpoint       string  `envconfig:"OTEL_ENDPOINT" default:"localhost:4317"`
	OTelServiceName    string  `envconfig:"OTEL_SERVICE_NAME" default:"shopfront"`
	OTelServiceVersion string  `envconfig:"OTEL_SERVICE_VERSION" default:"1.0.0"`
	OTelInsecure       bool    `envconfig:"OTEL_INSECURE" default:"true"`
	OTelSampleRatio    float64 `envconfig:"OTEL_SAMPLE_RATIO" default:"1"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validatePort("server port", c.Server.Port); err != nil {
		return err
	}
	if err := validatePort("health port", c.Server.HealthPort); err != nil {
		return err
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database max open connections must be positive")
	}
	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("database query timeout must be positive")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	if c.RateLimit.AdminMutationsPerMinute <= 0 {
		return fmt.Errorf("admin mutation rate limit must be positive")
	}

	if _, err := logrus.ParseLevel(c.Observability.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Observability.LogLevel)
	}
	if c.Observability.LogFormat != "json" && c.Observability.LogFormat != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Observability.LogFormat)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

func validatePort(name, port string) error {
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %q", name, port)
	}
	return nil
}

// Addr returns the API listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// HealthAddr returns the health/metrics listen address
func (s ServerConfig) HealthAddr() string {
	return s.Host + ":" + s.HealthPort
}
