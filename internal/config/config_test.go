package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Executor.Timeout != 5*time.Second {
		t.Errorf("Executor.Timeout = %s, want 5s", cfg.Executor.Timeout)
	}
	if cfg.Executor.MaxCodeSize != 10_000 {
		t.Errorf("Executor.MaxCodeSize = %d, want 10000", cfg.Executor.MaxCodeSize)
	}
	if cfg.Queue.Name != "code-execution" {
		t.Errorf("Queue.Name = %q, want %q", cfg.Queue.Name, "code-execution")
	}
	if cfg.Worker.Concurrency != 1 {
		t.Errorf("Worker.Concurrency = %d, want 1", cfg.Worker.Concurrency)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"server port 0", func(c *Config) { c.Server.Port = 0 }, true},
		{"server port 99999", func(c *Config) { c.Server.Port = 99999 }, true},
		{"empty queue name", func(c *Config) { c.Queue.Name = "" }, true},
		{"zero dequeue block", func(c *Config) { c.Queue.DequeueBlock = 0 }, true},
		{"zero executor timeout", func(c *Config) { c.Executor.Timeout = 0 }, true},
		{"max_code_size 0", func(c *Config) { c.Executor.MaxCodeSize = 0 }, true},
		{"concurrency 0", func(c *Config) { c.Worker.Concurrency = 0 }, true},
		{"metrics port -1", func(c *Config) { c.Worker.MetricsPort = -1 }, true},
		{"metrics port 9090", func(c *Config) { c.Worker.MetricsPort = 9090 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
server:
  port: 9000
queue:
  addr: "redis:6379"
  name: "jobs"
executor:
  timeout: 2s
  max_code_size: 500
worker:
  concurrency: 4
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Queue.Addr != "redis:6379" {
		t.Errorf("Queue.Addr = %q, want redis:6379", cfg.Queue.Addr)
	}
	if cfg.Queue.Name != "jobs" {
		t.Errorf("Queue.Name = %q, want jobs", cfg.Queue.Name)
	}
	if cfg.Executor.Timeout != 2*time.Second {
		t.Errorf("Executor.Timeout = %s, want 2s", cfg.Executor.Timeout)
	}
	if cfg.Executor.MaxCodeSize != 500 {
		t.Errorf("Executor.MaxCodeSize = %d, want 500", cfg.Executor.MaxCodeSize)
	}
	if cfg.Worker.Concurrency != 4 {
		t.Errorf("Worker.Concurrency = %d, want 4", cfg.Worker.Concurrency)
	}
	// Unspecified fields keep defaults.
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Server.ShutdownTimeout = %s, want 30s", cfg.Server.ShutdownTimeout)
	}
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("server:\n  port: 0\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() with port 0 succeeded, want error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("DATABASE_DSN", "postgres://env/db")
	t.Setenv("REDIS_ADDR", "envredis:6379")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Database.DSN != "postgres://env/db" {
		t.Errorf("Database.DSN = %q, want env value", cfg.Database.DSN)
	}
	if cfg.Queue.Addr != "envredis:6379" {
		t.Errorf("Queue.Addr = %q, want envredis:6379", cfg.Queue.Addr)
	}
}
