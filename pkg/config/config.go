// Package config loads kernel configuration from an optional YAML file
// plus environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoggingConfig controls the kernel's structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"JSTZ_LOG_LEVEL"`
	Format string `yaml:"format" env:"JSTZ_LOG_FORMAT"`
}

// StorageConfig controls the rollup's ticketer/injector bootstrap values.
type StorageConfig struct {
	Ticketer string `yaml:"ticketer" env:"JSTZ_TICKETER"`
	Injector string `yaml:"injector" env:"JSTZ_INJECTOR"`
}

// OutboxConfig controls the outbox queue's persistent headroom.
type OutboxConfig struct {
	Max uint32 `yaml:"max" env:"JSTZ_OUTBOX_MAX"`
}

// RuntimeConfig controls JS runtime execution limits.
type RuntimeConfig struct {
	DefaultGasLimit uint64 `yaml:"default_gas_limit" env:"JSTZ_DEFAULT_GAS_LIMIT"`
}

// Config is the kernel's top-level configuration.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Storage StorageConfig `yaml:"storage"`
	Outbox  OutboxConfig  `yaml:"outbox"`
	Runtime RuntimeConfig `yaml:"runtime"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Outbox:  OutboxConfig{Max: 65535},
		Runtime: RuntimeConfig{DefaultGasLimit: 100000},
	}
}

// Load reads JSTZ_CONFIG_FILE (or ./config.yaml, if present) and then
// applies environment variable overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("JSTZ_CONFIG_FILE"))
	if path == "" {
		path = "config.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
