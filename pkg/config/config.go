// Package config loads and validates the DHT node's runtime configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete DHT node configuration.
type Config struct {
	Replication    ReplicationConfig    `yaml:"replication"`
	KBucketSize    int                  `yaml:"kbucket_size"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	Storage        StorageConfig        `yaml:"storage"`
	OperationTimeout time.Duration      `yaml:"operation_timeout"`
	MaintenanceInterval time.Duration   `yaml:"maintenance_interval"`
	HealthCheck    HealthCheckConfig    `yaml:"health_check"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// ReplicationConfig controls how many peers a stored value is pushed to
// and how often replication is refreshed by the maintenance scheduler.
type ReplicationConfig struct {
	Factor        int           `yaml:"factor"`
	CheckInterval time.Duration `yaml:"check_interval"`
	Parallelism   int           `yaml:"parallelism"`
}

// ConnectionPoolConfig bounds the outbound TCP connection pool.
type ConnectionPoolConfig struct {
	MaxConnectionsPerPeer int           `yaml:"max_connections_per_peer"`
	MaxIdleTime           time.Duration `yaml:"max_idle_time"`
	ConnectTimeout        time.Duration `yaml:"connect_timeout"`
}

// StorageConfig bounds the in-memory keyed value store.
type StorageConfig struct {
	MaxEntries              int           `yaml:"max_entries"`
	DefaultTTL              time.Duration `yaml:"default_ttl"`
	ExpirationCheckInterval time.Duration `yaml:"expiration_check_interval"`
}

// HealthCheckConfig governs peer liveness probing during maintenance ticks.
type HealthCheckConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxFailures int           `yaml:"max_failures"`
}

// LoggingConfig controls the structured logger the DHT core writes through.
type LoggingConfig struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	OutputFile string `yaml:"output_file"` // empty = stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns the configuration spec.md names as defaults for every
// recognized option.
func Default() *Config {
	return &Config{
		Replication: ReplicationConfig{
			Factor:        5,
			CheckInterval: 60 * time.Second,
			Parallelism:   3,
		},
		KBucketSize: 20,
		ConnectionPool: ConnectionPoolConfig{
			MaxConnectionsPerPeer: 3,
			MaxIdleTime:           300 * time.Second,
			ConnectTimeout:        3 * time.Second,
		},
		Storage: StorageConfig{
			MaxEntries:              10000,
			DefaultTTL:              3600 * time.Second,
			ExpirationCheckInterval: 60 * time.Second,
		},
		OperationTimeout:    3 * time.Second,
		MaintenanceInterval: 30 * time.Second,
		HealthCheck: HealthCheckConfig{
			Interval:    30 * time.Second,
			Timeout:     3 * time.Second,
			MaxFailures: 2,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// Load reads a YAML config file, layering it over Default() for any field
// left unset, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults fills in any zero-valued field left over after unmarshaling
// on top of Default() (yaml.Unmarshal only overwrites fields present in the
// document, but a present-but-zero section still needs backfilling).
func (c *Config) setDefaults() {
	if c.Replication.Factor == 0 {
		c.Replication.Factor = 5
	}
	if c.Replication.CheckInterval == 0 {
		c.Replication.CheckInterval = 60 * time.Second
	}
	if c.Replication.Parallelism == 0 {
		c.Replication.Parallelism = 3
	}
	if c.KBucketSize == 0 {
		c.KBucketSize = 20
	}
	if c.ConnectionPool.MaxConnectionsPerPeer == 0 {
		c.ConnectionPool.MaxConnectionsPerPeer = 3
	}
	if c.ConnectionPool.MaxIdleTime == 0 {
		c.ConnectionPool.MaxIdleTime = 300 * time.Second
	}
	if c.ConnectionPool.ConnectTimeout == 0 {
		c.ConnectionPool.ConnectTimeout = 3 * time.Second
	}
	if c.Storage.MaxEntries == 0 {
		c.Storage.MaxEntries = 10000
	}
	if c.Storage.DefaultTTL == 0 {
		c.Storage.DefaultTTL = 3600 * time.Second
	}
	if c.Storage.ExpirationCheckInterval == 0 {
		c.Storage.ExpirationCheckInterval = 60 * time.Second
	}
	if c.OperationTimeout == 0 {
		c.OperationTimeout = 3 * time.Second
	}
	if c.MaintenanceInterval == 0 {
		c.MaintenanceInterval = 30 * time.Second
	}
	if c.HealthCheck.Interval == 0 {
		c.HealthCheck.Interval = 30 * time.Second
	}
	if c.HealthCheck.Timeout == 0 {
		c.HealthCheck.Timeout = 3 * time.Second
	}
	if c.HealthCheck.MaxFailures == 0 {
		c.HealthCheck.MaxFailures = 2
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
}

// validate checks the configuration for values that would make the node
// unable to start or behave inconsistently with spec.md's invariants.
func (c *Config) validate() error {
	if c.Replication.Factor < 1 {
		return fmt.Errorf("replication.factor must be at least 1")
	}
	if c.KBucketSize < 1 {
		return fmt.Errorf("kbucket_size must be at least 1")
	}
	if c.ConnectionPool.MaxConnectionsPerPeer < 1 {
		return fmt.Errorf("connection_pool.max_connections_per_peer must be at least 1")
	}
	if c.Storage.MaxEntries < 1 {
		return fmt.Errorf("storage.max_entries must be at least 1")
	}
	if c.OperationTimeout <= 0 {
		return fmt.Errorf("operation_timeout must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	return nil
}

// Write marshals a config to a YAML file that Load can read back.
func Write(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
