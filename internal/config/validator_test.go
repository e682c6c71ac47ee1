package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	if errs := Default().Validate(); len(errs) != 0 {
		t.Errorf("Default config should be valid, got: %v", errs)
	}
}

func TestConfig_Validate_DefaultSinksEnabled(t *testing.T) {
	cfg := Default()
	cfg.Metrics.Enabled = true
	cfg.Sinks.Redis.Enabled = true
	cfg.Sinks.NATS.Enabled = true
	cfg.Sinks.Kafka.Enabled = true

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("defaults with everything enabled should be valid, got: %v", errs)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"negative default timeout", func(c *Config) { c.Locks.DefaultTimeoutMs = -1 }, "locks.default_timeout_ms"},
		{"negative slow wait", func(c *Config) { c.Locks.SlowWaitMs = -5 }, "locks.slow_wait_ms"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"zero log size", func(c *Config) { c.Logging.MaxSizeMB = 0 }, "logging.max_size_mb"},
		{"huge log size", func(c *Config) { c.Logging.MaxSizeMB = 5000 }, "logging.max_size_mb"},
		{"negative backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups"},
		{"null byte in log dir", func(c *Config) { c.Logging.Dir = "logs\x00" }, "logging.dir"},
		{"metrics addr without port", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Addr = "localhost"
		}, "metrics.addr"},
		{"metrics relative path", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Path = "metrics"
		}, "metrics.path"},
		{"redis addr", func(c *Config) {
			c.Sinks.Redis.Enabled = true
			c.Sinks.Redis.Addr = "redis"
		}, "sinks.redis.addr"},
		{"redis channel", func(c *Config) {
			c.Sinks.Redis.Enabled = true
			c.Sinks.Redis.Channel = "  "
		}, "sinks.redis.channel"},
		{"redis pattern", func(c *Config) {
			c.Sinks.Redis.Enabled = true
			c.Sinks.Redis.Pattern = "[unclosed"
		}, "sinks.redis.pattern"},
		{"nats url", func(c *Config) {
			c.Sinks.NATS.Enabled = true
			c.Sinks.NATS.URL = "not a url"
		}, "sinks.nats.url"},
		{"nats wildcard subject", func(c *Config) {
			c.Sinks.NATS.Enabled = true
			c.Sinks.NATS.Subject = "baton.>"
		}, "sinks.nats.subject"},
		{"kafka no brokers", func(c *Config) {
			c.Sinks.Kafka.Enabled = true
			c.Sinks.Kafka.Brokers = nil
		}, "sinks.kafka.brokers"},
		{"kafka bad topic", func(c *Config) {
			c.Sinks.Kafka.Enabled = true
			c.Sinks.Kafka.Topic = "baton events"
		}, "sinks.kafka.topic"},
		{"kafka long topic", func(c *Config) {
			c.Sinks.Kafka.Enabled = true
			c.Sinks.Kafka.Topic = strings.Repeat("t", 250)
		}, "sinks.kafka.topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(errs), errs)
			}
			if errs[0].Field != tt.field {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.field)
			}
		})
	}
}

func TestConfig_Validate_DisabledSinksIgnored(t *testing.T) {
	cfg := Default()
	cfg.Sinks.Redis.Addr = ""
	cfg.Sinks.NATS.URL = ""
	cfg.Sinks.Kafka.Brokers = nil
	cfg.Metrics.Addr = ""

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("disabled sections should not be validated, got: %v", errs)
	}
}

func TestConfig_Validate_LevelCaseInsensitive(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "WARN"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("upper-case level should be accepted, got: %v", errs)
	}
}
