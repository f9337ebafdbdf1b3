// Package config provides configuration management for the database server.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/quipubase/quipubase/internal/kv"
)

// Config represents the server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Stream   StreamConfig   `yaml:"stream"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Autoload AutoloadConfig `yaml:"autoload"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ReadTimeout     int    `yaml:"read_timeout"`     // seconds
	WriteTimeout    int    `yaml:"write_timeout"`    // seconds
	RequestTimeout  int    `yaml:"request_timeout"`  // seconds, non-stream routes only
	ShutdownTimeout int    `yaml:"shutdown_timeout"` // seconds
}

// StorageConfig represents storage backend configuration.
type StorageConfig struct {
	Type     string         `yaml:"type"` // badger, memory, postgres, mysql
	Path     string         `yaml:"path"` // data directory for badger
	Postgres PostgresConfig `yaml:"postgres"`
	MySQL    MySQLConfig    `yaml:"mysql"`
}

// PostgresConfig represents PostgreSQL connection configuration.
type PostgresConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Database        string `yaml:"database"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	SSLMode         string `yaml:"ssl_mode"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds
}

// MySQLConfig represents MySQL connection configuration.
type MySQLConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Database        string `yaml:"database"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	TLS             string `yaml:"tls"` // true, false, skip-verify, preferred
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds
}

// StreamConfig represents event stream configuration.
type StreamConfig struct {
	BufferSize        int `yaml:"buffer_size"`        // per-subscriber event buffer
	KeepaliveInterval int `yaml:"keepalive_interval"` // seconds, must be 1..30
}

// CacheConfig represents the compiled-model cache configuration.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
	TTL        int `yaml:"ttl"` // seconds, 0 means entries never expire
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string          `yaml:"level"`
	Format string          `yaml:"format"` // json, text
	File   FileLogConfig   `yaml:"file"`
	Syslog SyslogLogConfig `yaml:"syslog"`
}

// FileLogConfig represents the optional rotating log file sink.
type FileLogConfig struct {
	Path       string `yaml:"path"` // empty disables the sink
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// SyslogLogConfig represents the optional syslog sink.
type SyslogLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Network string `yaml:"network"` // empty for the local daemon, else tcp or udp
	Address string `yaml:"address"`
	Tag     string `yaml:"tag"`
}

// MetricsConfig represents metrics exposure configuration.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AutoloadConfig represents schema directory autoloading configuration.
type AutoloadConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30,
			WriteTimeout:    30,
			RequestTimeout:  60,
			ShutdownTimeout: 30,
		},
		Storage: StorageConfig{
			Type: "badger",
			Path: "data",
		},
		Stream: StreamConfig{
			BufferSize:        64,
			KeepaliveInterval: 15,
		},
		Cache: CacheConfig{
			MaxEntries: 1024,
			TTL:        300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File: FileLogConfig{
				MaxSizeMB:  100,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Autoload: AutoloadConfig{
			Dir: "schemas",
		},
	}
}

// Load loads configuration from a YAML file and environment variables.
// Environment variables override file configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		// #nosec G304 -- path is from command-line argument, user-controlled input is expected
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand ${ENV} references before parsing
		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("QUIPUBASE_LISTEN"); v != "" {
		if host, port, err := net.SplitHostPort(v); err == nil {
			if host != "" {
				c.Server.Host = host
			}
			if p, err := strconv.Atoi(port); err == nil {
				c.Server.Port = p
			}
		}
	}
	if v := os.Getenv("QUIPUBASE_DATA_DIR"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("QUIPUBASE_STREAM_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Stream.BufferSize = n
		}
	}
	if v := os.Getenv("QUIPUBASE_STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("QUIPUBASE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("QUIPUBASE_AUTOLOAD_DIR"); v != "" {
		c.Autoload.Dir = v
		c.Autoload.Enabled = true
	}

	// PostgreSQL overrides
	if v := os.Getenv("QUIPUBASE_PG_HOST"); v != "" {
		c.Storage.Postgres.Host = v
	}
	if v := os.Getenv("QUIPUBASE_PG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Storage.Postgres.Port = port
		}
	}
	if v := os.Getenv("QUIPUBASE_PG_DATABASE"); v != "" {
		c.Storage.Postgres.Database = v
	}
	if v := os.Getenv("QUIPUBASE_PG_USER"); v != "" {
		c.Storage.Postgres.User = v
	}
	if v := os.Getenv("QUIPUBASE_PG_PASSWORD"); v != "" {
		c.Storage.Postgres.Password = v
	}
	if v := os.Getenv("QUIPUBASE_PG_SSLMODE"); v != "" {
		c.Storage.Postgres.SSLMode = v
	}

	// MySQL overrides
	if v := os.Getenv("QUIPUBASE_MYSQL_HOST"); v != "" {
		c.Storage.MySQL.Host = v
	}
	if v := os.Getenv("QUIPUBASE_MYSQL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Storage.MySQL.Port = port
		}
	}
	if v := os.Getenv("QUIPUBASE_MYSQL_DATABASE"); v != "" {
		c.Storage.MySQL.Database = v
	}
	if v := os.Getenv("QUIPUBASE_MYSQL_USER"); v != "" {
		c.Storage.MySQL.User = v
	}
	if v := os.Getenv("QUIPUBASE_MYSQL_PASSWORD"); v != "" {
		c.Storage.MySQL.Password = v
	}
	if v := os.Getenv("QUIPUBASE_MYSQL_TLS"); v != "" {
		c.Storage.MySQL.TLS = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if !kv.IsSupported(kv.Type(c.Storage.Type)) {
		return fmt.Errorf("invalid storage type %s: supported types are %v", c.Storage.Type, kv.SupportedTypes())
	}
	if kv.Type(c.Storage.Type) == kv.TypeBadger && c.Storage.Path == "" {
		return fmt.Errorf("storage path is required for badger")
	}

	if c.Stream.BufferSize < 1 {
		return fmt.Errorf("invalid stream buffer size: %d", c.Stream.BufferSize)
	}
	if c.Stream.KeepaliveInterval < 1 || c.Stream.KeepaliveInterval > 30 {
		return fmt.Errorf("invalid keepalive interval: %ds (must be 1..30)", c.Stream.KeepaliveInterval)
	}

	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("invalid cache max entries: %d", c.Cache.MaxEntries)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("invalid cache ttl: %d", c.Cache.TTL)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}
	if c.Logging.Syslog.Enabled && c.Logging.Syslog.Network != "" {
		if c.Logging.Syslog.Network != "tcp" && c.Logging.Syslog.Network != "udp" {
			return fmt.Errorf("invalid syslog network: %s", c.Logging.Syslog.Network)
		}
		if c.Logging.Syslog.Address == "" {
			return fmt.Errorf("syslog address is required when a network is set")
		}
	}

	if c.Autoload.Enabled && c.Autoload.Dir == "" {
		return fmt.Errorf("autoload dir is required when autoload is enabled")
	}

	return nil
}

// Address returns the server address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
