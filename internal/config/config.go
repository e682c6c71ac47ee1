package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config represents the complete baton configuration
type Config struct {
	Locks   LocksConfig   `mapstructure:"locks" yaml:"locks"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
	Sinks   SinksConfig   `mapstructure:"sinks" yaml:"sinks"`
}

// LocksConfig controls resource lock waiting
type LocksConfig struct {
	// DefaultTimeoutMs bounds lock waits for agents that set no timeout of
	// their own (0 = wait indefinitely)
	DefaultTimeoutMs int `mapstructure:"default_timeout_ms" yaml:"default_timeout_ms"`
	// SlowWaitMs logs a warning when a lock wait exceeds this (0 = disabled)
	SlowWaitMs int `mapstructure:"slow_wait_ms" yaml:"slow_wait_ms"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	// Enabled controls whether logs are written to a file (default: true).
	// When false, logs go to stderr.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is where baton.log is written. Empty means <config dir>/logs.
	// Supports ~ for home directory expansion.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated files
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// TracingConfig controls span export
type TracingConfig struct {
	// Enabled exports invocation spans to stdout
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Pretty indents exported spans
	Pretty bool `mapstructure:"pretty" yaml:"pretty"`
}

// SinksConfig lists the external brokers bus events are mirrored to
type SinksConfig struct {
	Redis RedisSinkConfig `mapstructure:"redis" yaml:"redis"`
	NATS  NATSSinkConfig  `mapstructure:"nats" yaml:"nats"`
	Kafka KafkaSinkConfig `mapstructure:"kafka" yaml:"kafka"`
}

// RedisSinkConfig publishes events to a Redis channel
type RedisSinkConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
	Channel string `mapstructure:"channel" yaml:"channel"`
	// Pattern selects which event names are mirrored (glob, default "*")
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
}

// NATSSinkConfig publishes events to a NATS subject
type NATSSinkConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
	Subject string `mapstructure:"subject" yaml:"subject"`
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
}

// KafkaSinkConfig produces events to a Kafka topic keyed by agent name
type KafkaSinkConfig struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled"`
	Brokers []string `mapstructure:"brokers" yaml:"brokers"`
	Topic   string   `mapstructure:"topic" yaml:"topic"`
	Pattern string   `mapstructure:"pattern" yaml:"pattern"`
}

// DefaultTimeout returns the default lock wait bound (0 means none)
func (c *LocksConfig) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutMs) * time.Millisecond
}

// SlowWait returns the slow lock wait threshold (0 means disabled)
func (c *LocksConfig) SlowWait() time.Duration {
	return time.Duration(c.SlowWaitMs) * time.Millisecond
}

// ResolveDir returns the log directory. An empty Dir resolves to the logs
// directory under ConfigDir, ~ expands to the home directory.
func (l *LoggingConfig) ResolveDir() string {
	if l.Dir == "" {
		return filepath.Join(ConfigDir(), "logs")
	}

	path := l.Dir
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	}
	return path
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Locks: LocksConfig{
			DefaultTimeoutMs: 0, // Wait indefinitely unless the agent says otherwise
			SlowWaitMs:       1000,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9464",
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled: false,
			Pretty:  true,
		},
		Sinks: SinksConfig{
			Redis: RedisSinkConfig{
				Addr:    "localhost:6379",
				Channel: "baton.events",
				Pattern: "*",
			},
			NATS: NATSSinkConfig{
				URL:     "nats://127.0.0.1:4222",
				Subject: "baton.events",
				Pattern: "*",
			},
			Kafka: KafkaSinkConfig{
				Brokers: []string{"localhost:9092"},
				Topic:   "baton.events",
				Pattern: "*",
			},
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("locks.default_timeout_ms", defaults.Locks.DefaultTimeoutMs)
	viper.SetDefault("locks.slow_wait_ms", defaults.Locks.SlowWaitMs)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	viper.SetDefault("metrics.addr", defaults.Metrics.Addr)
	viper.SetDefault("metrics.path", defaults.Metrics.Path)

	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.pretty", defaults.Tracing.Pretty)

	viper.SetDefault("sinks.redis.enabled", defaults.Sinks.Redis.Enabled)
	viper.SetDefault("sinks.redis.addr", defaults.Sinks.Redis.Addr)
	viper.SetDefault("sinks.redis.channel", defaults.Sinks.Redis.Channel)
	viper.SetDefault("sinks.redis.pattern", defaults.Sinks.Redis.Pattern)

	viper.SetDefault("sinks.nats.enabled", defaults.Sinks.NATS.Enabled)
	viper.SetDefault("sinks.nats.url", defaults.Sinks.NATS.URL)
	viper.SetDefault("sinks.nats.subject", defaults.Sinks.NATS.Subject)
	viper.SetDefault("sinks.nats.pattern", defaults.Sinks.NATS.Pattern)

	viper.SetDefault("sinks.kafka.enabled", defaults.Sinks.Kafka.Enabled)
	viper.SetDefault("sinks.kafka.brokers", defaults.Sinks.Kafka.Brokers)
	viper.SetDefault("sinks.kafka.topic", defaults.Sinks.Kafka.Topic)
	viper.SetDefault("sinks.kafka.pattern", defaults.Sinks.Kafka.Pattern)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when
// the loaded configuration is invalid
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ChangeFunc receives the reloaded configuration after the config file
// changes. cfg is nil when err is non-nil.
type ChangeFunc func(path string, cfg *Config, err error)

// Watch reloads the configuration whenever the config file in use changes.
// It must be called after viper has read a config file.
func Watch(onChange ChangeFunc) {
	viper.OnConfigChange(reloadOnChange(onChange))
	viper.WatchConfig()
}

func reloadOnChange(onChange ChangeFunc) func(fsnotify.Event) {
	return func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load()
		onChange(e.Name, cfg, err)
	}
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "baton")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".baton"
	}
	return filepath.Join(home, ".config", "baton")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
