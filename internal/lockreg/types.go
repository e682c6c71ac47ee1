package lockreg

import (
	"errors"
	"time"

	"github.com/Iron-Ham/baton/internal/logging"
	"github.com/Iron-Ham/baton/internal/metrics"
)

// Sentinel errors returned by registry operations.
var (
	// ErrLockTimeout is returned when a bounded acquisition gives up before
	// the lock became free. The lock is never partially held afterwards.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrEmptyName is returned by Acquire and TryAcquire for an empty name.
	ErrEmptyName = errors.New("lock name is empty")

	// ErrAlreadyReleased is returned when a handle is released a second time.
	ErrAlreadyReleased = errors.New("lock already released")
)

// LockState is a point-in-time view of one named lock.
type LockState struct {
	Name         string `json:"name" yaml:"name"`
	Held         bool   `json:"held" yaml:"held"`
	Waiters      int64  `json:"waiters" yaml:"waiters"`
	Acquisitions uint64 `json:"acquisitions" yaml:"acquisitions"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics records wait times, timeouts and the held gauge on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Registry) {
		r.metrics = c
	}
}

// WithLogger sets the logger used for timeout and contention messages.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSlowWaitThreshold logs a warning whenever an acquisition waits longer
// than d. Zero disables the warning.
func WithSlowWaitThreshold(d time.Duration) Option {
	return func(r *Registry) {
		r.slowWait = d
	}
}
