// Package config provides configuration management for the workflow engine.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	Server       ServerConfig
	Logging      LoggingConfig
	StateStore   StateStoreConfig
	Scheduler    SchedulerConfig
	Retry        RetryConfig
	Runner       RunnerConfig
	Notification NotificationConfig
	Paths        PathsConfig
	Secrets      SecretsConfig
}

// ServerConfig holds the control-plane HTTP surface's own settings.
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// StateStoreConfig selects and configures the State Store backend.
type StateStoreConfig struct {
	Kind     string // "shared" or "local"
	Address  string
	Password string
	PoolSize int
}

// SchedulerConfig configures the Scheduler Client.
type SchedulerConfig struct {
	Address string
	Token   string
	Timeout time.Duration
}

// RetryConfig holds the configured service-descriptor retry defaults. They
// are loaded and validated here; no package in this module applies them to
// services.
type RetryConfig struct {
	DefaultCount           int
	DefaultBackoffSeconds  int
}

// RunnerConfig holds Runner-wide defaults.
type RunnerConfig struct {
	MaxProcessesDefault int
}

// NotificationConfig holds the mail notification transport settings.
// The transport itself is out of scope; only the addressable
// configuration surface lives here.
type NotificationConfig struct {
	MailServer   string
	MailPort     int
	MailTLS      bool
	MailSender   string
	MailReplyTo  string
	MailUsername string
	MailPassword string
}

// PathsConfig holds filesystem paths the engine consults.
type PathsConfig struct {
	// CustomCode is an extra import path for user-defined service
	// implementations.
	CustomCode string
}

// SecretsConfig holds at-rest secret-field encryption configuration.
type SecretsConfig struct {
	// EncryptionKey is the symmetric key for SecretString fields; empty
	// disables real encryption and falls back to a reversible non-secret
	// encoding.
	EncryptionKey string
}

// Load loads configuration from environment variables, recognizing both
// the unprefixed boot-time names (SCHEDULER_ADDR, STATE_STORE_ADDR,
// FERNET_KEY, MAIL_PASSWORD) and the FLOWENGINE_-prefixed ambient settings.
func Load() (*Config, error) {
	godotenv.Load()
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("FLOWENGINE_PORT", 8585),
			Host:            getEnv("FLOWENGINE_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("FLOWENGINE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("FLOWENGINE_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("FLOWENGINE_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("FLOWENGINE_LOG_LEVEL", "info"),
			Format: getEnv("FLOWENGINE_LOG_FORMAT", "json"),
		},
		StateStore: StateStoreConfig{
			Kind:     getEnv("FLOWENGINE_STATE_STORE_KIND", "local"),
			Address:  getEnv("STATE_STORE_ADDR", getEnv("REDIS_ADDR", "redis://localhost:6379")),
			Password: getEnv("FLOWENGINE_STATE_STORE_PASSWORD", ""),
			PoolSize: getEnvAsInt("FLOWENGINE_STATE_STORE_POOL_SIZE", 10),
		},
		Scheduler: SchedulerConfig{
			Address: getEnv("SCHEDULER_ADDR", ""),
			Token:   getEnv("FLOWENGINE_SCHEDULER_TOKEN", ""),
			Timeout: getEnvAsDuration("FLOWENGINE_SCHEDULER_TIMEOUT", 5*time.Second),
		},
		Retry: RetryConfig{
			DefaultCount:          getEnvAsInt("FLOWENGINE_RETRY_DEFAULT_COUNT", 0),
			DefaultBackoffSeconds: getEnvAsInt("FLOWENGINE_RETRY_DEFAULT_BACKOFF_SECONDS", 10),
		},
		Runner: RunnerConfig{
			MaxProcessesDefault: getEnvAsInt("FLOWENGINE_RUNNER_MAX_PROCESSES_DEFAULT", 5),
		},
		Notification: NotificationConfig{
			MailServer:   getEnv("FLOWENGINE_MAIL_SERVER", ""),
			MailPort:     getEnvAsInt("FLOWENGINE_MAIL_PORT", 25),
			MailTLS:      getEnvAsBool("FLOWENGINE_MAIL_TLS", true),
			MailSender:   getEnv("FLOWENGINE_MAIL_SENDER", ""),
			MailReplyTo:  getEnv("FLOWENGINE_MAIL_REPLY_TO", ""),
			MailUsername: getEnv("FLOWENGINE_MAIL_USERNAME", ""),
			MailPassword: getEnv("MAIL_PASSWORD", ""),
		},
		Paths: PathsConfig{
			CustomCode: getEnv("FLOWENGINE_CUSTOM_CODE_PATH", ""),
		},
		Secrets: SecretsConfig{
			EncryptionKey: getEnv("FERNET_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the invariants a malformed deployment would otherwise
// discover only at first use.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.StateStore.Kind != "shared" && c.StateStore.Kind != "local" {
		return fmt.Errorf("invalid state_store.kind: %s (must be shared or local)", c.StateStore.Kind)
	}
	if c.StateStore.Kind == "shared" && c.StateStore.Address == "" {
		return fmt.Errorf("state_store.address is required when state_store.kind is shared")
	}

	if c.Runner.MaxProcessesDefault < 1 {
		return fmt.Errorf("runner.max_processes_default must be at least 1")
	}
	if c.Retry.DefaultCount < 0 || c.Retry.DefaultBackoffSeconds < 0 {
		return fmt.Errorf("retry defaults must be non-negative")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
