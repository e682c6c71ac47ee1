package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "locks.default_timeout_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// kafkaTopicRegex matches the characters Kafka accepts in topic names
var kafkaTopicRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

const maxKafkaTopicLength = 249

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLocks()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateMetrics()...)
	errors = append(errors, c.validateSinks()...)

	return errors
}

func (c *Config) validateLocks() []ValidationError {
	var errors []ValidationError

	if c.Locks.DefaultTimeoutMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "locks.default_timeout_ms",
			Value:   c.Locks.DefaultTimeoutMs,
			Message: "must be non-negative (0 = wait indefinitely)",
		})
	}

	if c.Locks.SlowWaitMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "locks.slow_wait_ms",
			Value:   c.Locks.SlowWaitMs,
			Message: "must be non-negative (0 = disabled)",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	if strings.ContainsRune(c.Logging.Dir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "logging.dir",
			Value:   c.Logging.Dir,
			Message: "path contains invalid null character",
		})
	}

	return errors
}

func (c *Config) validateMetrics() []ValidationError {
	if !c.Metrics.Enabled {
		return nil
	}
	var errors []ValidationError

	if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
		errors = append(errors, ValidationError{
			Field:   "metrics.addr",
			Value:   c.Metrics.Addr,
			Message: "must be host:port",
		})
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		errors = append(errors, ValidationError{
			Field:   "metrics.path",
			Value:   c.Metrics.Path,
			Message: "must start with /",
		})
	}

	return errors
}

func (c *Config) validateSinks() []ValidationError {
	var errors []ValidationError

	if r := c.Sinks.Redis; r.Enabled {
		if _, _, err := net.SplitHostPort(r.Addr); err != nil {
			errors = append(errors, ValidationError{
				Field:   "sinks.redis.addr",
				Value:   r.Addr,
				Message: "must be host:port",
			})
		}
		errors = append(errors, requireNonEmpty("sinks.redis.channel", r.Channel)...)
		errors = append(errors, validatePattern("sinks.redis.pattern", r.Pattern)...)
	}

	if n := c.Sinks.NATS; n.Enabled {
		if u, err := url.Parse(n.URL); err != nil || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "sinks.nats.url",
				Value:   n.URL,
				Message: "must be a URL such as nats://host:4222",
			})
		}
		if n.Subject == "" || strings.ContainsAny(n.Subject, " \t*>") {
			errors = append(errors, ValidationError{
				Field:   "sinks.nats.subject",
				Value:   n.Subject,
				Message: "must be a non-empty subject without whitespace or wildcards",
			})
		}
		errors = append(errors, validatePattern("sinks.nats.pattern", n.Pattern)...)
	}

	if k := c.Sinks.Kafka; k.Enabled {
		if len(k.Brokers) == 0 {
			errors = append(errors, ValidationError{
				Field:   "sinks.kafka.brokers",
				Value:   k.Brokers,
				Message: "at least one broker is required",
			})
		}
		if !kafkaTopicRegex.MatchString(k.Topic) || len(k.Topic) > maxKafkaTopicLength {
			errors = append(errors, ValidationError{
				Field:   "sinks.kafka.topic",
				Value:   k.Topic,
				Message: fmt.Sprintf("must be 1-%d characters of [a-zA-Z0-9._-]", maxKafkaTopicLength),
			})
		}
		errors = append(errors, validatePattern("sinks.kafka.pattern", k.Pattern)...)
	}

	return errors
}

func requireNonEmpty(field, value string) []ValidationError {
	if strings.TrimSpace(value) != "" {
		return nil
	}
	return []ValidationError{{Field: field, Value: value, Message: "must not be empty"}}
}

// validatePattern checks an event name glob. Empty means "*".
func validatePattern(field, pattern string) []ValidationError {
	if pattern == "" {
		return nil
	}
	if _, err := glob.Compile(pattern); err != nil {
		return []ValidationError{{Field: field, Value: pattern, Message: "invalid glob pattern: " + err.Error()}}
	}
	return nil
}
