package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML files can use "15s" style values.
// Environment overlays use the same time.ParseDuration syntax.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port         string   `yaml:"port"`
	Env          string   `yaml:"env"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	AdminToken   string   `yaml:"admin_token"`
}

// DatabaseConfig holds SurrealDB connection settings
type DatabaseConfig struct {
	Host      string `yaml:"host"`
	Port      string `yaml:"port"`
	Namespace string `yaml:"namespace"`
	Database  string `yaml:"database"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
}

// RedisConfig holds queue broker connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PipelineConfig holds orchestrator tuning settings
type PipelineConfig struct {
	EventWindow    int      `yaml:"event_window"`     // Recent-events window size
	EventRetention Duration `yaml:"event_retention"`  // Max age for cleanup of old events
	RetryBaseDelay Duration `yaml:"retry_base_delay"` // First backoff delay; doubles per attempt
}

// Load reads configuration from an optional YAML file named by CONFIG_FILE,
// then overlays environment variables. Environment always wins.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         "8080",
			Env:          "development",
			ReadTimeout:  Duration(15 * time.Second),
			WriteTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Host:      "localhost",
			Port:      "8000",
			Namespace: "cadence",
			Database:  "main",
			User:      "root",
			Password:  "root",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Pipeline: PipelineConfig{
			EventWindow:    1000,
			EventRetention: Duration(7 * 24 * time.Hour),
			RetryBaseDelay: Duration(1 * time.Second),
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays environment variables onto the loaded configuration
func (c *Config) applyEnv() {
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.Env = getEnv("SERVER_ENV", c.Server.Env)
	c.Server.ReadTimeout = getDurationEnv("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getDurationEnv("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.AdminToken = getEnv("ADMIN_TOKEN", c.Server.AdminToken)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.Namespace = getEnv("DB_NAMESPACE", c.Database.Namespace)
	c.Database.Database = getEnv("DB_DATABASE", c.Database.Database)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getIntEnv("REDIS_DB", c.Redis.DB)

	c.Pipeline.EventWindow = getIntEnv("PIPELINE_EVENT_WINDOW", c.Pipeline.EventWindow)
	c.Pipeline.EventRetention = getDurationEnv("PIPELINE_EVENT_RETENTION", c.Pipeline.EventRetention)
	c.Pipeline.RetryBaseDelay = getDurationEnv("PIPELINE_RETRY_BASE_DELAY", c.Pipeline.RetryBaseDelay)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Validate checks that all required configuration values are present and valid.
// It returns an error describing all validation failures, or nil if valid.
func (c *Config) Validate() error {
	var errs []error

	// Server validation
	if c.Server.Port == "" {
		errs = append(errs, errors.New("SERVER_PORT is required"))
	}
	if c.Server.Env != "development" && c.Server.Env != "production" && c.Server.Env != "test" {
		errs = append(errs, fmt.Errorf("SERVER_ENV must be 'development', 'production', or 'test', got '%s'", c.Server.Env))
	}
	if c.IsProduction() && c.Server.AdminToken == "" {
		errs = append(errs, errors.New("ADMIN_TOKEN is required in production"))
	}

	// Database validation
	if c.Database.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.Database.Port == "" {
		errs = append(errs, errors.New("DB_PORT is required"))
	}
	if c.Database.Namespace == "" {
		errs = append(errs, errors.New("DB_NAMESPACE is required"))
	}
	if c.Database.Database == "" {
		errs = append(errs, errors.New("DB_DATABASE is required"))
	}

	// Broker validation
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required"))
	} else if !strings.Contains(c.Redis.Addr, ":") {
		errs = append(errs, fmt.Errorf("REDIS_ADDR must be host:port, got '%s'", c.Redis.Addr))
	}

	// Pipeline validation
	if c.Pipeline.EventWindow <= 0 {
		errs = append(errs, errors.New("PIPELINE_EVENT_WINDOW must be positive"))
	}
	if c.Pipeline.EventRetention <= 0 {
		errs = append(errs, errors.New("PIPELINE_EVENT_RETENTION must be positive"))
	}
	if c.Pipeline.RetryBaseDelay <= 0 {
		errs = append(errs, errors.New("PIPELINE_RETRY_BASE_DELAY must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Helper functions for reading environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue Duration) Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return Duration(d)
		}
	}
	return defaultValue
}
