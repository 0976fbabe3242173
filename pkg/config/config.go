// Package config loads application configuration from environment variables
// with sensible defaults, and hot-reloads file-backed secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/postbox-io/postbox/pkg/authz"
	"github.com/postbox-io/postbox/pkg/identity"
	"github.com/postbox-io/postbox/pkg/observability"
	"github.com/postbox-io/postbox/pkg/storage/postgres"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Database      postgres.ConnectionConfig
	Redis         RedisConfig
	Authz         authz.ClientConfig
	Identity      identity.Config
	Observability ObservabilityConfig

	// ReconcileSchedule is the cron expression for the orphaned-tuple sweep.
	// Empty disables the sweep.
	ReconcileSchedule string

	// SecretsFile optionally points at a JSON file holding the identity
	// client secret and webhook secret. When set, the file is watched and
	// changes take effect without a restart.
	SecretsFile string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// ListenAddr is the host:port the API server binds.
func (c ServerConfig) ListenAddr() string {
	return c.Host + ":" + c.Port
}

// HealthAddr is the host:port the operational server binds.
func (c ServerConfig) HealthAddr() string {
	return c.Host + ":" + c.HealthPort
}

// RedisConfig holds the webhook deduplication store settings.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
	DedupTTL time.Duration
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:            loadServerConfig(),
		Database:          loadDatabaseConfig(),
		Redis:             loadRedisConfig(),
		Authz:             loadAuthzConfig(),
		Identity:          loadIdentityConfig(),
		Observability:     loadObservabilityConfig(),
		ReconcileSchedule: getEnv("POSTBOX_RECONCILE_SCHEDULE", ""),
		SecretsFile:       getEnv("POSTBOX_SECRETS_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("POSTBOX_HOST", "0.0.0.0"),
		Port:            getEnv("POSTBOX_PORT", "8080"),
		ReadTimeout:     getEnvDuration("POSTBOX_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("POSTBOX_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("POSTBOX_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("POSTBOX_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("POSTBOX_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() postgres.ConnectionConfig {
	cfg := postgres.DefaultConnectionConfig(getEnv("POSTBOX_POSTGRES_URL", ""))
	if maxConns := getEnvInt("POSTBOX_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("POSTBOX_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("POSTBOX_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}
	return cfg
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("POSTBOX_REDIS_URL", ""),
		Password: getEnv("POSTBOX_REDIS_PASSWORD", ""),
		DB:       getEnvInt("POSTBOX_REDIS_DB", 0),
		PoolSize: getEnvInt("POSTBOX_REDIS_POOL_SIZE", 10),
		DedupTTL: getEnvDuration("POSTBOX_WEBHOOK_DEDUP_TTL", 24*time.Hour),
	}
}

func loadAuthzConfig() authz.ClientConfig {
	return authz.ClientConfig{
		APIURL:               getEnv("POSTBOX_OPENFGA_API_URL", "http://localhost:8082"),
		StoreID:              getEnv("POSTBOX_OPENFGA_STORE_ID", ""),
		AuthorizationModelID: getEnv("POSTBOX_OPENFGA_MODEL_ID", ""),
		APIToken:             getEnv("POSTBOX_OPENFGA_API_TOKEN", ""),
		Timeout:              getEnvDuration("POSTBOX_OPENFGA_TIMEOUT", 0),
	}
}

func loadIdentityConfig() identity.Config {
	return identity.Config{
		ServerURL:     getEnv("POSTBOX_KEYCLOAK_URL", "http://localhost:8081"),
		Realm:         getEnv("POSTBOX_KEYCLOAK_REALM", ""),
		ClientID:      getEnv("POSTBOX_KEYCLOAK_CLIENT_ID", ""),
		ClientSecret:  getEnv("POSTBOX_KEYCLOAK_CLIENT_SECRET", ""),
		WebhookSecret: getEnv("POSTBOX_WEBHOOK_SECRET", ""),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("POSTBOX_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("POSTBOX_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Authz.StoreID == "" {
		return fmt.Errorf("authorization store id is required")
	}

	// With a secrets file the client and webhook secrets arrive through the
	// watcher; only the non-secret identity fields are required up front.
	if c.SecretsFile == "" {
		if err := c.Identity.Validate(); err != nil {
			return fmt.Errorf("identity configuration: %w", err)
		}
	} else {
		if c.Identity.ServerURL == "" || c.Identity.Realm == "" || c.Identity.ClientID == "" {
			return fmt.Errorf("identity server URL, realm and client id are required")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
