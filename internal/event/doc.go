// Package event provides the synchronous pub-sub bus that carries agent
// lifecycle events and custom events between independently written agents.
//
// # Main Types
//
//   - [Event]: name, timestamp and payload. The canonical payload keys are
//     agent_name, result (success only), error (failure only) and event;
//     custom events add their own keys through Fields.
//   - [Bus]: thread-safe dispatcher keyed by event name
//   - [Handler]: func(Event) error
//
// # Lifecycle Events
//
// For an agent with logical name N the coordination wrapper publishes
// N_started, then exactly one of N_complete or N_error. [StartedName],
// [CompleteName] and [ErrorName] build these names.
//
// # Failure Isolation
//
// A handler that returns an error or panics is logged, counted and passed
// to the optional failure hook. The remaining handlers of the same dispatch
// still run and the publisher never sees the failure.
//
// # Basic Usage
//
//	bus := event.NewBus(event.WithLogger(logger))
//
//	bus.Subscribe(event.CompleteName("doubler"), func(e event.Event) error {
//	    v, _ := e.Result()
//	    return store(v)
//	})
//
//	// Every failure of every agent
//	bus.SubscribePattern("*_error", event.Observe(func(e event.Event) {
//	    log.Printf("%s failed: %v", e.AgentName, e.Err)
//	}))
//
//	bus.Publish(event.New("chained", map[string]any{"step": 2}))
//
// # Ordering
//
// Exact-name handlers run first, then pattern handlers, then wildcard
// handlers, each group in registration order. Events are not replayed to
// handlers that subscribe after publication.
package event
