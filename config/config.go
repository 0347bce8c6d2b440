// Package config handles loading and validation of application configuration
// from environment variables.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/YatraLedger/yatra-ledger-backend/logger"
	"github.com/spf13/viper"
)

// Environment represents the application's running environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// SourceKind selects which storage collaborator backs the engine.
type SourceKind string

const (
	SourceMemory   SourceKind = "memory"
	SourceRedis    SourceKind = "redis"
	SourcePostgres SourceKind = "postgres"
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Environment    Environment `mapstructure:"ENVIRONMENT"`
	Port           string      `mapstructure:"PORT"`
	AllowedOrigins []string    `mapstructure:"ALLOWED_ORIGINS"`
	Version        string      `mapstructure:"VERSION"`
}

// DatabaseConfig holds PostgreSQL connection details.
type DatabaseConfig struct {
	Host           string `mapstructure:"HOST"`
	Port           int    `mapstructure:"PORT"`
	User           string `mapstructure:"USER"`
	Password       string `mapstructure:"PASSWORD"`
	Name           string `mapstructure:"NAME"`
	SSLMode        string `mapstructure:"SSL_MODE"`
	MaxConnections int    `mapstructure:"MAX_CONNECTIONS"`
}

// URL returns a postgres:// connection URL suitable for golang-migrate and
// pgxpool.
func (c *DatabaseConfig) URL() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		sslmode,
	)
}

// RedisConfig holds Redis connection details.
type RedisConfig struct {
	Address  string `mapstructure:"ADDRESS"`
	Password string `mapstructure:"PASSWORD"`
	DB       int    `mapstructure:"DB"`
	UseTLS   bool   `mapstructure:"USE_TLS"`
}

// StorageConfig holds the S3-compatible receipt storage details. An empty
// endpoint disables receipt storage.
type StorageConfig struct {
	Endpoint        string `mapstructure:"ENDPOINT"`
	Region          string `mapstructure:"REGION"`
	Bucket          string `mapstructure:"BUCKET"`
	AccessKeyID     string `mapstructure:"ACCESS_KEY_ID"`
	SecretAccessKey string `mapstructure:"SECRET_ACCESS_KEY"`
}

// EngineConfig holds engine-level settings.
type EngineConfig struct {
	// Timezone is the IANA name of the calendar used for daily grouping.
	Timezone string `mapstructure:"TIMEZONE"`
	// DefaultOwner, when set, is subscribed at startup.
	DefaultOwner string `mapstructure:"DEFAULT_OWNER"`
}

// Location resolves the configured timezone, defaulting to UTC.
func (c *EngineConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// ReminderConfig holds reminder scheduler settings.
type ReminderConfig struct {
	PollIntervalSeconds int `mapstructure:"POLL_INTERVAL_SECONDS"`
	// StatePath is the SQLite file holding durable reminder state. Empty
	// degrades the scheduler to in-memory bookkeeping.
	StatePath string `mapstructure:"STATE_PATH"`
}

// NotificationConfig holds notification facade API settings. An empty URL
// routes notifications to the application log.
type NotificationConfig struct {
	APIURL string `mapstructure:"API_URL"`
	APIKey string `mapstructure:"API_KEY"`
}

// Config is the root application configuration.
type Config struct {
	Source       SourceKind         `mapstructure:"SOURCE"`
	Server       ServerConfig       `mapstructure:"SERVER"`
	Database     DatabaseConfig     `mapstructure:"DATABASE"`
	Redis        RedisConfig        `mapstructure:"REDIS"`
	Storage      StorageConfig      `mapstructure:"STORAGE"`
	Engine       EngineConfig       `mapstructure:"ENGINE"`
	Reminder     ReminderConfig     `mapstructure:"REMINDER"`
	Notification NotificationConfig `mapstructure:"NOTIFICATION"`
}

// IsProduction returns true when running in production.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// bindEnvVars binds multiple environment variables to config keys.
func bindEnvVars(v *viper.Viper, bindings [][2]string) error {
	for _, b := range bindings {
		if err := v.BindEnv(b[0], b[1]); err != nil {
			return fmt.Errorf("failed to bind %s: %w", b[0], err)
		}
	}
	return nil
}

// LoadConfig loads configuration from environment variables, sets defaults,
// unmarshals, and validates.
func LoadConfig() (*Config, error) {
	v := viper.New()
	log := logger.GetLogger()

	v.SetDefault("SOURCE", string(SourceMemory))
	v.SetDefault("SERVER.ENVIRONMENT", EnvDevelopment)
	v.SetDefault("SERVER.PORT", "8080")
	v.SetDefault("SERVER.ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", 5432)
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.NAME", "yatraledger_dev")
	v.SetDefault("DATABASE.SSL_MODE", "disable")
	v.SetDefault("DATABASE.MAX_CONNECTIONS", 10)
	v.SetDefault("REDIS.ADDRESS", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.USE_TLS", false)
	v.SetDefault("STORAGE.REGION", "auto")
	v.SetDefault("ENGINE.TIMEZONE", "")
	v.SetDefault("ENGINE.DEFAULT_OWNER", "")
	v.SetDefault("REMINDER.POLL_INTERVAL_SECONDS", 60)
	v.SetDefault("REMINDER.STATE_PATH", "data/reminders.db")
	v.SetDefault("NOTIFICATION.API_URL", "")
	v.SetDefault("NOTIFICATION.API_KEY", "")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envBindings := [][2]string{
		{"SOURCE", "SOURCE"},
		{"SERVER.ENVIRONMENT", "SERVER_ENVIRONMENT"},
		{"SERVER.PORT", "PORT"},
		{"SERVER.ALLOWED_ORIGINS", "ALLOWED_ORIGINS"},
		{"DATABASE.HOST", "DB_HOST"},
		{"DATABASE.PORT", "DB_PORT"},
		{"DATABASE.USER", "DB_USER"},
		{"DATABASE.PASSWORD", "DB_PASSWORD"},
		{"DATABASE.NAME", "DB_NAME"},
		{"DATABASE.SSL_MODE", "DB_SSL_MODE"},
		{"REDIS.ADDRESS", "REDIS_ADDRESS"},
		{"REDIS.PASSWORD", "REDIS_PASSWORD"},
		{"REDIS.DB", "REDIS_DB"},
		{"REDIS.USE_TLS", "REDIS_USE_TLS"},
		{"STORAGE.ENDPOINT", "STORAGE_ENDPOINT"},
		{"STORAGE.REGION", "STORAGE_REGION"},
		{"STORAGE.BUCKET", "STORAGE_BUCKET"},
		{"STORAGE.ACCESS_KEY_ID", "STORAGE_ACCESS_KEY_ID"},
		{"STORAGE.SECRET_ACCESS_KEY", "STORAGE_SECRET_ACCESS_KEY"},
		{"ENGINE.TIMEZONE", "ENGINE_TIMEZONE"},
		{"ENGINE.DEFAULT_OWNER", "ENGINE_DEFAULT_OWNER"},
		{"REMINDER.POLL_INTERVAL_SECONDS", "REMINDER_POLL_INTERVAL_SECONDS"},
		{"REMINDER.STATE_PATH", "REMINDER_STATE_PATH"},
		{"NOTIFICATION.API_URL", "NOTIFICATION_API_URL"},
		{"NOTIFICATION.API_KEY", "NOTIFICATION_API_KEY"},
	}
	if err := bindEnvVars(v, envBindings); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal failed: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	log.Infow("Configuration loaded",
		"environment", cfg.Server.Environment,
		"source", cfg.Source,
		"server_port", cfg.Server.Port,
		"timezone", cfg.Engine.Timezone,
	)
	return &cfg, nil
}

// validateConfig checks the loaded configuration values.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch cfg.Source {
	case SourceMemory:
	case SourceRedis:
		if cfg.Redis.Address == "" {
			return fmt.Errorf("redis address is required for the redis source")
		}
	case SourcePostgres:
		if cfg.Database.Host == "" || cfg.Database.Name == "" {
			return fmt.Errorf("database host and name are required for the postgres source")
		}
	default:
		return fmt.Errorf("unknown source %q (expected memory, redis or postgres)", cfg.Source)
	}

	if _, err := cfg.Engine.Location(); err != nil {
		return fmt.Errorf("invalid engine timezone %q: %w", cfg.Engine.Timezone, err)
	}
	if cfg.Reminder.PollIntervalSeconds <= 0 {
		return fmt.Errorf("reminder poll interval must be positive")
	}
	if cfg.Storage.Endpoint != "" && cfg.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required when a storage endpoint is set")
	}
	return nil
}
