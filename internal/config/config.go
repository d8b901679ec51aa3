package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration, shared by the API server and
// the worker.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Queue    QueueConfig    `yaml:"queue"`
	Executor ExecutorConfig `yaml:"executor"`
	Worker   WorkerConfig   `yaml:"worker"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Security SecurityConfig `yaml:"security"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBody  int64         `yaml:"max_request_body_bytes"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// QueueConfig describes the Redis-backed job queue.
type QueueConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Name         string        `yaml:"name"`
	DequeueBlock time.Duration `yaml:"dequeue_block"`
}

// ExecutorConfig bounds a single code execution.
type ExecutorConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxCodeSize int           `yaml:"max_code_size"`
	TempDir     string        `yaml:"temp_dir"`
}

// WorkerConfig controls the worker process. Each concurrency slot is an
// independent loop pulling one job at a time from the shared queue.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
	MetricsPort int `yaml:"metrics_port"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type SecurityConfig struct {
	AllowedKeys    []string `yaml:"allowed_keys"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CLI flag or hardcoded default
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxRequestBody:  1 << 20, // 1MB; well above max_code_size plus JSON overhead
		},
		Database: DatabaseConfig{
			DSN:             "",
			MaxConns:        25,
			MinConns:        2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Queue: QueueConfig{
			Addr:         "localhost:6379",
			Name:         "code-execution",
			DequeueBlock: 1 * time.Second,
		},
		Executor: ExecutorConfig{
			Timeout:     5 * time.Second,
			MaxCodeSize: 10_000,
			TempDir:     "", // empty means os.TempDir()
		},
		Worker: WorkerConfig{
			Concurrency: 1,
			MetricsPort: 0, // disabled
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Security: SecurityConfig{
			RateLimitRPS:   100,
			RateLimitBurst: 200,
		},
	}
}

// ApplyEnv overrides configuration from environment variables, matching the
// deployment conventions (PORT, DATABASE_DSN, REDIS_ADDR, REDIS_PASSWORD).
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			log.Warn().Str("value", v).Msg("ignoring invalid PORT")
		} else {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Queue.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Queue.Password = v
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Queue.Name == "" {
		return fmt.Errorf("queue.name must not be empty")
	}
	if c.Queue.DequeueBlock <= 0 {
		return fmt.Errorf("queue.dequeue_block must be > 0")
	}
	if c.Executor.Timeout <= 0 {
		return fmt.Errorf("executor.timeout must be > 0")
	}
	if c.Executor.MaxCodeSize < 1 {
		return fmt.Errorf("executor.max_code_size must be >= 1")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be >= 1")
	}
	if c.Worker.MetricsPort < 0 || c.Worker.MetricsPort > 65535 {
		return fmt.Errorf("worker.metrics_port must be 0-65535, got %d", c.Worker.MetricsPort)
	}
	if c.Database.DSN != "" && strings.Contains(c.Database.DSN, "sslmode=disable") {
		log.Warn().Msg("database DSN has sslmode=disable — connections to Postgres are unencrypted")
	}
	return nil
}

// Address returns the API server listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
