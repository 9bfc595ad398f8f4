package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	Sequence SequenceConfig `yaml:"sequence"`
	Mailer   MailerConfig   `yaml:"mailer"`
	GDPR     GDPRConfig     `yaml:"gdpr"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"` // Default: :8080
	APIKey     string `yaml:"api_key"`     // Bearer key for the admin surface; empty disables auth
	PublicURL  string `yaml:"public_url"`  // Base URL used when printing queue links
}

// StorageConfig contains database settings
type StorageConfig struct {
	Path string `yaml:"path"` // Default: ./data/outreach.db
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// SequenceConfig contains scheduler settings
type SequenceConfig struct {
	// TouchOffsets are due offsets from enrollment for each touch.
	// Default: 0s, 48h, 96h.
	TouchOffsets    []time.Duration `yaml:"touch_offsets"`
	SweepInterval   time.Duration   `yaml:"sweep_interval"`   // Default: 1m
	Workers         int             `yaml:"workers"`          // Default: 4
	SendTimeout     time.Duration   `yaml:"send_timeout"`     // Default: 2m
	ExhaustedAction string          `yaml:"exhausted_action"` // hold (default) or mark_no_response
	NoResponseAfter time.Duration   `yaml:"no_response_after"`
}

// MailerConfig contains delivery settings
type MailerConfig struct {
	// Mode selects the delivery backend: "log" (dry run, default) or "smtp"
	Mode     string        `yaml:"mode"`
	Addr     string        `yaml:"addr"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	From     string        `yaml:"from"`
	FromName string        `yaml:"from_name"`
	UseTLS   bool          `yaml:"use_tls"`
	Timeout  time.Duration `yaml:"timeout"`
	DKIM     DKIMConfig    `yaml:"dkim"`
}

// DKIMConfig contains DKIM signing settings
type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

// GDPRConfig contains data-retention policy settings
type GDPRConfig struct {
	// RetentionPeriod is how long PII of flagged candidates may be held
	// from enrollment. Zero disables the sweeper.
	RetentionPeriod time.Duration `yaml:"retention_period"`
	SweepInterval   time.Duration `yaml:"sweep_interval"` // Default: 12h
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"` // Default: :9090
	Path       string `yaml:"path"`        // Default: /metrics
}

// Load reads and validates configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with all defaults applied
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./data/outreach.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if len(c.Sequence.TouchOffsets) == 0 {
		c.Sequence.TouchOffsets = []time.Duration{0, 48 * time.Hour, 96 * time.Hour}
	}
	if c.Sequence.SweepInterval <= 0 {
		c.Sequence.SweepInterval = time.Minute
	}
	if c.Sequence.Workers <= 0 {
		c.Sequence.Workers = 4
	}
	if c.Sequence.SendTimeout <= 0 {
		c.Sequence.SendTimeout = 2 * time.Minute
	}
	if c.Sequence.ExhaustedAction == "" {
		c.Sequence.ExhaustedAction = "hold"
	}
	if c.Sequence.NoResponseAfter <= 0 {
		c.Sequence.NoResponseAfter = 7 * 24 * time.Hour
	}
	if c.Mailer.Mode == "" {
		c.Mailer.Mode = "log"
	}
	if c.Mailer.Timeout <= 0 {
		c.Mailer.Timeout = 30 * time.Second
	}
	if c.GDPR.SweepInterval <= 0 {
		c.GDPR.SweepInterval = 12 * time.Hour
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	if len(c.Sequence.TouchOffsets) != 3 {
		return fmt.Errorf("sequence.touch_offsets must have exactly 3 entries, got %d", len(c.Sequence.TouchOffsets))
	}
	for i := 1; i < len(c.Sequence.TouchOffsets); i++ {
		if c.Sequence.TouchOffsets[i] <= c.Sequence.TouchOffsets[i-1] {
			return fmt.Errorf("sequence.touch_offsets must be strictly increasing")
		}
	}

	switch c.Sequence.ExhaustedAction {
	case "hold", "mark_no_response":
	default:
		return fmt.Errorf("invalid sequence.exhausted_action: %s", c.Sequence.ExhaustedAction)
	}

	switch c.Mailer.Mode {
	case "log":
	case "smtp":
		if c.Mailer.Addr == "" {
			return fmt.Errorf("mailer.addr is required in smtp mode")
		}
		if c.Mailer.From == "" {
			return fmt.Errorf("mailer.from is required in smtp mode")
		}
	default:
		return fmt.Errorf("invalid mailer.mode: %s", c.Mailer.Mode)
	}

	if c.Mailer.DKIM.Enabled {
		if c.Mailer.DKIM.Domain == "" || c.Mailer.DKIM.Selector == "" || c.Mailer.DKIM.KeyFile == "" {
			return fmt.Errorf("mailer.dkim requires domain, selector and key_file")
		}
	}

	return nil
}
