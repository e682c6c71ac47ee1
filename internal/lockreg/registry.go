package lockreg

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Iron-Ham/baton/internal/logging"
	"github.com/Iron-Ham/baton/internal/metrics"
)

// resourceLock is the single primitive behind one lock name.
type resourceLock struct {
	name         string
	sem          *semaphore.Weighted
	held         atomic.Bool
	waiters      atomic.Int64
	acquisitions atomic.Uint64
}

// Registry maps resource names to mutual-exclusion primitives. Entries are
// created on first reference and live as long as the registry.
type Registry struct {
	mu       sync.RWMutex
	locks    map[string]*resourceLock
	metrics  *metrics.Collector
	logger   *logging.Logger
	slowWait time.Duration
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		locks:  make(map[string]*resourceLock),
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// lockFor returns the primitive for name, creating it if needed. Concurrent
// first use yields exactly one primitive.
func (r *Registry) lockFor(name string) *resourceLock {
	r.mu.RLock()
	l, ok := r.locks[name]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.locks[name]; ok {
		return l
	}
	l = &resourceLock{name: name, sem: semaphore.NewWeighted(1)}
	r.locks[name] = l
	return l
}

// Acquire blocks until the named lock is free or ctx is done.
func (r *Registry) Acquire(ctx context.Context, name string) (*Handle, error) {
	return r.AcquireTimeout(ctx, name, 0)
}

// AcquireTimeout blocks until the named lock is free. A positive timeout
// bounds the wait; when it elapses the returned error matches ErrLockTimeout.
// Cancellation of ctx itself is reported as the context's error.
func (r *Registry) AcquireTimeout(ctx context.Context, name string, timeout time.Duration) (*Handle, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	l := r.lockFor(name)

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	l.waiters.Add(1)
	err := l.sem.Acquire(waitCtx, 1)
	l.waiters.Add(-1)
	waited := time.Since(start)
	r.metrics.ObserveLockWait(name, waited)

	if err != nil {
		if timeout > 0 && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			r.metrics.ObserveLockTimeout(name)
			r.logger.Warn("lock acquisition timed out", "lock", name, "timeout", timeout.String())
			return nil, fmt.Errorf("%w: %q after %s", ErrLockTimeout, name, timeout)
		}
		return nil, fmt.Errorf("acquire lock %q: %w", name, err)
	}

	if r.slowWait > 0 && waited > r.slowWait {
		r.logger.Warn("slow lock acquisition", "lock", name, "wait_ms", waited.Milliseconds())
	}
	return r.grant(l), nil
}

// TryAcquire takes the named lock only if it is free right now.
func (r *Registry) TryAcquire(name string) (*Handle, bool) {
	if name == "" {
		return nil, false
	}
	l := r.lockFor(name)
	if !l.sem.TryAcquire(1) {
		return nil, false
	}
	return r.grant(l), true
}

func (r *Registry) grant(l *resourceLock) *Handle {
	l.held.Store(true)
	l.acquisitions.Add(1)
	r.metrics.LockAcquired()
	return &Handle{reg: r, lock: l, acquiredAt: time.Now()}
}

// Release frees the lock behind h. Releasing the same handle twice returns
// ErrAlreadyReleased and leaves the lock untouched.
func (r *Registry) Release(h *Handle) error {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return ErrAlreadyReleased
	}
	h.lock.held.Store(false)
	h.lock.sem.Release(1)
	r.metrics.LockReleased()
	return nil
}

// WithLock runs fn while holding the named lock and releases it on every
// exit path, including a panic in fn. An empty name runs fn without locking.
// fn is not called when acquisition fails.
func (r *Registry) WithLock(ctx context.Context, name string, timeout time.Duration, fn func() error) error {
	if name == "" {
		return fn()
	}
	h, err := r.AcquireTimeout(ctx, name, timeout)
	if err != nil {
		return err
	}
	defer r.Release(h) //nolint:errcheck
	return fn()
}

// Snapshot reports the state of every lock created so far, sorted by name.
func (r *Registry) Snapshot() []LockState {
	r.mu.RLock()
	states := make([]LockState, 0, len(r.locks))
	for _, l := range r.locks {
		states = append(states, LockState{
			Name:         l.name,
			Held:         l.held.Load(),
			Waiters:      l.waiters.Load(),
			Acquisitions: l.acquisitions.Load(),
		})
	}
	r.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })
	return states
}

// Len returns the number of lock names the registry has seen.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.locks)
}
