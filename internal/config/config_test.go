package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "api:\n  listen_addr: \":9999\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.ListenAddr != ":9999" {
		t.Errorf("listen_addr = %s", cfg.API.ListenAddr)
	}
	if cfg.Storage.Path != "./data/outreach.db" {
		t.Errorf("storage path = %s", cfg.Storage.Path)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging defaults = %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.Mailer.Mode != "log" {
		t.Errorf("mailer mode = %s", cfg.Mailer.Mode)
	}
	want := []time.Duration{0, 48 * time.Hour, 96 * time.Hour}
	for i, offset := range cfg.Sequence.TouchOffsets {
		if offset != want[i] {
			t.Errorf("touch_offsets[%d] = %v, want %v", i, offset, want[i])
		}
	}
	if cfg.Sequence.ExhaustedAction != "hold" {
		t.Errorf("exhausted_action = %s", cfg.Sequence.ExhaustedAction)
	}
	if cfg.GDPR.RetentionPeriod != 0 {
		t.Errorf("retention enabled by default: %v", cfg.GDPR.RetentionPeriod)
	}
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
api:
  listen_addr: ":8088"
  api_key: secret
storage:
  path: /tmp/outreach.db
logging:
  level: debug
  format: json
sequence:
  touch_offsets: [1h, 24h, 72h]
  sweep_interval: 30s
  exhausted_action: mark_no_response
  no_response_after: 336h
mailer:
  mode: smtp
  addr: smtp.example.com:587
  from: jobs@example.com
  dkim:
    enabled: true
    domain: example.com
    selector: out
    key_file: /etc/dkim/out.pem
gdpr:
  retention_period: 4320h
metrics:
  enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sequence.TouchOffsets[0] != time.Hour {
		t.Errorf("touch_offsets[0] = %v", cfg.Sequence.TouchOffsets[0])
	}
	if cfg.Sequence.ExhaustedAction != "mark_no_response" {
		t.Errorf("exhausted_action = %s", cfg.Sequence.ExhaustedAction)
	}
	if !cfg.Mailer.DKIM.Enabled || cfg.Mailer.DKIM.Selector != "out" {
		t.Errorf("dkim = %+v", cfg.Mailer.DKIM)
	}
	if cfg.GDPR.RetentionPeriod != 4320*time.Hour {
		t.Errorf("retention_period = %v", cfg.GDPR.RetentionPeriod)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"too few offsets", func(c *Config) { c.Sequence.TouchOffsets = []time.Duration{0} }},
		{"unordered offsets", func(c *Config) {
			c.Sequence.TouchOffsets = []time.Duration{0, 96 * time.Hour, 48 * time.Hour}
		}},
		{"bad exhausted action", func(c *Config) { c.Sequence.ExhaustedAction = "delete" }},
		{"bad mailer mode", func(c *Config) { c.Mailer.Mode = "carrier-pigeon" }},
		{"smtp without addr", func(c *Config) { c.Mailer.Mode = "smtp"; c.Mailer.From = "a@b.c" }},
		{"smtp without from", func(c *Config) { c.Mailer.Mode = "smtp"; c.Mailer.Addr = "smtp:587" }},
		{"dkim incomplete", func(c *Config) {
			c.Mailer.DKIM.Enabled = true
			c.Mailer.DKIM.Domain = "example.com"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
