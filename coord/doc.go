// Package coord lets independently written functions ("agents") share named
// resources and chain into pipelines without a central orchestrator.
//
// A [Hub] owns a lock registry and an event bus. [Coordinate] wraps any
// func(context.Context, In) (Out, error) so that each call optionally holds
// a named resource lock and announces its lifecycle on the bus:
//
//	hub := coord.New(coord.WithLogger(logger))
//
//	double := coord.Coordinate(hub, "doubler",
//	    func(ctx context.Context, x int) (int, error) { return x * 2, nil },
//	    coord.WithLock("shared"), coord.WithTimeout(time.Second))
//
//	coord.When(hub, "doubler_complete", func(e coord.Event) error {
//	    v, _ := e.Result()
//	    hub.Emit("chained", map[string]any{"value": v})
//	    return nil
//	})
//
//	six, err := double(ctx, 3)
//
// # Lifecycle Events
//
// For agent name N each call publishes N_started once the lock (if any) is
// held, then N_complete (payload agent_name, result) or N_error (payload
// agent_name, error). N_complete and N_error are published after the lock is
// released, so their handlers may call agents that use the same lock.
// N_started handlers run while the lock is held and must not.
//
// # Errors
//
// A target's error is returned to the caller unchanged. A target's panic
// is re-raised with its original value. A lock that stays busy past the
// timeout yields an error matching [ErrLockTimeout]; the target is not
// called and no event is published. Handler errors and panics are logged
// and never reach the caller.
//
// # Shared State
//
// Pass one Hub to every agent that must share locks and events. [Default]
// provides a lazily created process-wide Hub; the package functions use it
// when given a nil *Hub.
package coord
