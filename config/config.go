// Package config loads stocksync settings from YAML files and environment
// variables, with environment values taking precedence.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	stocksync "github.com/tallyline/go-stocksync"
	"github.com/tallyline/go-stocksync/backoff"
	"github.com/tallyline/go-stocksync/logging"
	"github.com/tallyline/go-stocksync/resolve"
)

// Duration wraps time.Duration so "2s" style values parse from both YAML
// nodes and environment strings.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalText implements encoding.TextUnmarshaler (used by env parsing).
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config holds the complete stocksync configuration.
type Config struct {
	// Endpoint is the base URL of the remote sync service.
	Endpoint string `yaml:"endpoint" env:"STOCKSYNC_ENDPOINT"`

	BatchSize          int `yaml:"batch_size" env:"STOCKSYNC_BATCH_SIZE"`
	MaxRetries         int `yaml:"max_retries" env:"STOCKSYNC_MAX_RETRIES"`
	MaxNetworkAttempts int `yaml:"max_network_attempts" env:"STOCKSYNC_MAX_NETWORK_ATTEMPTS"`

	BaseDelay      Duration `yaml:"base_delay" env:"STOCKSYNC_BASE_DELAY"`
	MaxDelay       Duration `yaml:"max_delay" env:"STOCKSYNC_MAX_DELAY"`
	RequestTimeout Duration `yaml:"request_timeout" env:"STOCKSYNC_REQUEST_TIMEOUT"`
	SyncInterval   Duration `yaml:"sync_interval" env:"STOCKSYNC_SYNC_INTERVAL"`

	// ResolveStrategy names the read-reconciliation strategy:
	// server-wins, client-wins, or merge-quantity.
	ResolveStrategy string `yaml:"resolve_strategy" env:"STOCKSYNC_RESOLVE_STRATEGY"`

	SkipResponseValidation bool `yaml:"skip_response_validation" env:"STOCKSYNC_SKIP_RESPONSE_VALIDATION"`

	Logging logging.Config `yaml:"logging"`
}

// Default returns a Config with the standard defaults applied.
func Default() Config {
	c := Config{}
	c.setDefaults()
	return c
}

func (c *Config) setDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.MaxNetworkAttempts == 0 {
		c.MaxNetworkAttempts = 3
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = Duration(backoff.DefaultBaseDelay)
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = Duration(backoff.DefaultMaxDelay)
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = Duration(30 * time.Second)
	}
	if c.ResolveStrategy == "" {
		c.ResolveStrategy = "server-wins"
	}
	if c.Logging == (logging.Config{}) {
		c.Logging = logging.DefaultConfig
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be positive, got %d", c.MaxRetries)
	}
	if c.BaseDelay <= 0 || c.MaxDelay <= 0 {
		return fmt.Errorf("backoff delays must be positive")
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("max_delay %v is below base_delay %v", c.MaxDelay.Std(), c.BaseDelay.Std())
	}
	switch c.ResolveStrategy {
	case "server-wins", "client-wins", "merge-quantity":
	default:
		return fmt.Errorf("unknown resolve_strategy %q", c.ResolveStrategy)
	}
	return nil
}

// Load reads a YAML file over the defaults and applies environment
// overrides, then validates.
func Load(path string) (Config, error) {
	c := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("parse config file: %w", err)
	}
	c.setDefaults()

	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("parse environment: %w", err)
	}

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// FromEnv builds a Config from defaults and environment variables alone.
func FromEnv() (Config, error) {
	c := Default()
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("parse environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Strategy returns the configured read-reconciliation strategy.
func (c Config) Strategy() resolve.Strategy {
	return resolve.ByName(c.ResolveStrategy)
}

// SyncOptions converts the configuration into manager options.
func (c Config) SyncOptions() stocksync.SyncOptions {
	return stocksync.SyncOptions{
		BatchSize:              c.BatchSize,
		MaxRetries:             c.MaxRetries,
		MaxNetworkAttempts:     c.MaxNetworkAttempts,
		Backoff:                backoff.New(c.BaseDelay.Std(), c.MaxDelay.Std()),
		SkipResponseValidation: c.SkipResponseValidation,
		SyncInterval:           c.SyncInterval.Std(),
		Timeout:                c.RequestTimeout.Std(),
	}
}
