package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected host 0.0.0.0, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Type != "badger" {
		t.Errorf("Expected storage type badger, got %s", cfg.Storage.Type)
	}
	if cfg.Stream.BufferSize != 64 {
		t.Errorf("Expected stream buffer 64, got %d", cfg.Stream.BufferSize)
	}
	if cfg.Stream.KeepaliveInterval != 15 {
		t.Errorf("Expected keepalive 15s, got %d", cfg.Stream.KeepaliveInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default config to validate, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func(mutate func(*Config)) *Config {
		cfg := DefaultConfig()
		mutate(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name:    "valid default",
			cfg:     DefaultConfig(),
			wantErr: false,
		},
		{
			name:    "invalid port zero",
			cfg:     valid(func(c *Config) { c.Server.Port = 0 }),
			wantErr: true,
		},
		{
			name:    "invalid port too high",
			cfg:     valid(func(c *Config) { c.Server.Port = 70000 }),
			wantErr: true,
		},
		{
			name:    "invalid storage type",
			cfg:     valid(func(c *Config) { c.Storage.Type = "rocksdb" }),
			wantErr: true,
		},
		{
			name:    "valid memory storage",
			cfg:     valid(func(c *Config) { c.Storage.Type = "memory" }),
			wantErr: false,
		},
		{
			name:    "valid postgres storage",
			cfg:     valid(func(c *Config) { c.Storage.Type = "postgres" }),
			wantErr: false,
		},
		{
			name: "badger without path",
			cfg: valid(func(c *Config) {
				c.Storage.Type = "badger"
				c.Storage.Path = ""
			}),
			wantErr: true,
		},
		{
			name:    "invalid stream buffer",
			cfg:     valid(func(c *Config) { c.Stream.BufferSize = 0 }),
			wantErr: true,
		},
		{
			name:    "keepalive above ceiling",
			cfg:     valid(func(c *Config) { c.Stream.KeepaliveInterval = 45 }),
			wantErr: true,
		},
		{
			name:    "keepalive zero",
			cfg:     valid(func(c *Config) { c.Stream.KeepaliveInterval = 0 }),
			wantErr: true,
		},
		{
			name:    "invalid log level",
			cfg:     valid(func(c *Config) { c.Logging.Level = "trace" }),
			wantErr: true,
		},
		{
			name:    "invalid log format",
			cfg:     valid(func(c *Config) { c.Logging.Format = "xml" }),
			wantErr: true,
		},
		{
			name: "syslog bad network",
			cfg: valid(func(c *Config) {
				c.Logging.Syslog.Enabled = true
				c.Logging.Syslog.Network = "sctp"
				c.Logging.Syslog.Address = "localhost:514"
			}),
			wantErr: true,
		},
		{
			name: "syslog network without address",
			cfg: valid(func(c *Config) {
				c.Logging.Syslog.Enabled = true
				c.Logging.Syslog.Network = "udp"
			}),
			wantErr: true,
		},
		{
			name: "autoload without dir",
			cfg: valid(func(c *Config) {
				c.Autoload.Enabled = true
				c.Autoload.Dir = ""
			}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Address(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 9090,
		},
	}

	addr := cfg.Address()
	if addr != "localhost:9090" {
		t.Errorf("Expected localhost:9090, got %s", addr)
	}
}

func TestConfig_LoadFile(t *testing.T) {
	os.Setenv("QUIPU_TEST_PG_PASSWORD", "sekrit")
	defer os.Unsetenv("QUIPU_TEST_PG_PASSWORD")

	content := `
server:
  host: 127.0.0.1
  port: 9000
storage:
  type: postgres
  postgres:
    host: db.internal
    password: ${QUIPU_TEST_PG_PASSWORD}
stream:
  buffer_size: 128
  keepalive_interval: 10
logging:
  level: debug
  format: text
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected host 127.0.0.1, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Type != "postgres" {
		t.Errorf("Expected storage type postgres, got %s", cfg.Storage.Type)
	}
	if cfg.Storage.Postgres.Host != "db.internal" {
		t.Errorf("Expected postgres host db.internal, got %s", cfg.Storage.Postgres.Host)
	}
	if cfg.Storage.Postgres.Password != "sekrit" {
		t.Errorf("Expected env-expanded password, got %s", cfg.Storage.Postgres.Password)
	}
	if cfg.Stream.BufferSize != 128 {
		t.Errorf("Expected stream buffer 128, got %d", cfg.Stream.BufferSize)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unset sections keep their defaults
	if cfg.Server.RequestTimeout != 60 {
		t.Errorf("Expected default request timeout 60, got %d", cfg.Server.RequestTimeout)
	}
	if cfg.Cache.MaxEntries != 1024 {
		t.Errorf("Expected default cache size 1024, got %d", cfg.Cache.MaxEntries)
	}
}

func TestConfig_LoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	os.Setenv("QUIPUBASE_LISTEN", "127.0.0.1:9999")
	os.Setenv("QUIPUBASE_DATA_DIR", "/tmp/quipu-data")
	os.Setenv("QUIPUBASE_STREAM_BUFFER", "256")
	os.Setenv("QUIPUBASE_STORAGE_TYPE", "memory")
	os.Setenv("QUIPUBASE_LOG_LEVEL", "warn")
	defer func() {
		os.Unsetenv("QUIPUBASE_LISTEN")
		os.Unsetenv("QUIPUBASE_DATA_DIR")
		os.Unsetenv("QUIPUBASE_STREAM_BUFFER")
		os.Unsetenv("QUIPUBASE_STORAGE_TYPE")
		os.Unsetenv("QUIPUBASE_LOG_LEVEL")
	}()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected host 127.0.0.1, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Path != "/tmp/quipu-data" {
		t.Errorf("Expected data dir /tmp/quipu-data, got %s", cfg.Storage.Path)
	}
	if cfg.Stream.BufferSize != 256 {
		t.Errorf("Expected stream buffer 256, got %d", cfg.Stream.BufferSize)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("Expected storage type memory, got %s", cfg.Storage.Type)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected log level warn, got %s", cfg.Logging.Level)
	}
}
