// Package lockreg provides the process-wide named resource lock registry.
//
// Independently written agents that touch the same resource (a shared data
// structure, a rate-limited API endpoint) agree on a lock name; the
// [Registry] maps each name to exactly one mutual-exclusion primitive,
// created on first use and kept for the registry's lifetime.
//
// # Basic Usage
//
//	reg := lockreg.NewRegistry()
//
//	// Scoped: released on return, error or panic
//	err := reg.WithLock(ctx, "ledger", 2*time.Second, func() error {
//	    return appendEntry(entry)
//	})
//	if errors.Is(err, lockreg.ErrLockTimeout) {
//	    // the lock stayed busy for two seconds; fn never ran
//	}
//
//	// Manual
//	h, err := reg.Acquire(ctx, "ledger")
//	if err != nil {
//	    return err
//	}
//	defer h.Release()
//
// # Guarantees and Limitations
//
// At most one holder per name at any time. Waiters are granted the lock
// eventually but in no particular order; there is no fairness or starvation
// protection beyond what the underlying semaphore provides. Locks are local
// to the process.
//
// # Thread Safety
//
// All [Registry] methods are safe for concurrent use.
package lockreg
