package lockreg

import (
	"sync/atomic"
	"time"
)

// Handle is proof that the caller holds one named lock.
type Handle struct {
	reg        *Registry
	lock       *resourceLock
	acquiredAt time.Time
	released   atomic.Bool
}

// Name returns the lock name.
func (h *Handle) Name() string { return h.lock.name }

// HeldFor returns how long the lock has been held.
func (h *Handle) HeldFor() time.Duration { return time.Since(h.acquiredAt) }

// Release is shorthand for h's registry Release.
func (h *Handle) Release() error { return h.reg.Release(h) }
