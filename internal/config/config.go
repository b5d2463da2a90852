// Package config loads the exchange's YAML configuration with
// environment-variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings. Sensitive values (database and
// Redis URLs) can be overridden through environment variables after the
// file is parsed.
type Config struct {
	Server struct {
		Addr            string        `yaml:"addr"`
		RequestTimeout  time.Duration `yaml:"request_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Trading struct {
		CommissionRate float64 `yaml:"commission_rate"`
		MaxBookDepth   int     `yaml:"max_book_depth"`
	} `yaml:"trading"`

	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	Redis struct {
		URL      string        `yaml:"url"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"redis"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = ":8080"
	cfg.Server.RequestTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Trading.CommissionRate = 0.02
	cfg.Trading.MaxBookDepth = 20
	cfg.Redis.CacheTTL = 30 * time.Second
	cfg.Logging.Level = "info"
	overrideWithEnv(&cfg)
	return &cfg
}

// Load reads and parses the configuration file, applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr is required")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.Trading.CommissionRate < 0 || c.Trading.CommissionRate >= 1 {
		return fmt.Errorf("commission rate must be in [0, 1), got %g", c.Trading.CommissionRate)
	}
	if c.Trading.MaxBookDepth <= 0 {
		return fmt.Errorf("max book depth must be positive")
	}
	if c.Redis.URL != "" && c.Redis.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive when redis is configured")
	}
	return nil
}

// overrideWithEnv replaces settings with environment values when set.
func overrideWithEnv(cfg *Config) {
	if addr := os.Getenv("NUKEX_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if level := os.Getenv("NUKEX_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
