package event

import (
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/baton/internal/logging"
	"github.com/Iron-Ham/baton/internal/metrics"
)

// Handler is a function that handles an event. A returned error is logged
// and reported to the failure hook; it never reaches the publisher.
type Handler func(Event) error

// Observe adapts a handler that cannot fail.
func Observe(fn func(Event)) Handler {
	return func(e Event) error {
		fn(e)
		return nil
	}
}

// subscription represents a registered event handler.
type subscription struct {
	id      string
	key     string    // event name or pattern source
	pattern glob.Glob // nil for exact-name and wildcard subscriptions
	handler Handler
}

// Bus is a synchronous pub-sub event bus.
// Handlers run on the publishing goroutine in registration order.
type Bus struct {
	mu        sync.RWMutex
	exact     map[string][]subscription // event name -> subscriptions
	patterns  []subscription
	wildcards []subscription
	nextID    atomic.Uint64

	logger    *logging.Logger
	metrics   *metrics.Collector
	onFailure func(HandlerFailure)
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used to report handler failures.
func WithLogger(l *logging.Logger) BusOption {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMetrics counts published events and handler failures on c.
func WithMetrics(c *metrics.Collector) BusOption {
	return func(b *Bus) {
		b.metrics = c
	}
}

// WithFailureHook calls fn for every isolated handler failure, after it has
// been logged. fn runs on the publishing goroutine.
func WithFailureHook(fn func(HandlerFailure)) BusOption {
	return func(b *Bus) {
		b.onFailure = fn
	}
}

// NewBus creates a new event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		exact:  make(map[string][]subscription),
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for a specific event name.
// Returns a subscription ID that can be used to unsubscribe.
func (b *Bus) Subscribe(name string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := subscription{id: b.generateID(), key: name, handler: handler}
	b.exact[name] = append(b.exact[name], sub)
	return sub.id
}

// SubscribePattern registers a handler for every event whose name matches
// a glob pattern such as "*_error" or "ingest_*".
func (b *Bus) SubscribePattern(pattern string, handler Handler) (string, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid event pattern %q: %w", pattern, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := subscription{id: b.generateID(), key: pattern, pattern: g, handler: handler}
	b.patterns = append(b.patterns, sub)
	return sub.id, nil
}

// SubscribeAll registers a handler for all events.
func (b *Bus) SubscribeAll(handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := subscription{id: b.generateID(), key: "*", handler: handler}
	b.wildcards = append(b.wildcards, sub)
	return sub.id
}

// Unsubscribe removes a subscription by ID.
// Returns true if the subscription was found and removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	match := func(s subscription) bool { return s.id == id }

	for name, subs := range b.exact {
		if i := slices.IndexFunc(subs, match); i >= 0 {
			subs = slices.Delete(slices.Clone(subs), i, i+1)
			if len(subs) == 0 {
				delete(b.exact, name)
			} else {
				b.exact[name] = subs
			}
			return true
		}
	}
	if i := slices.IndexFunc(b.patterns, match); i >= 0 {
		b.patterns = slices.Delete(slices.Clone(b.patterns), i, i+1)
		return true
	}
	if i := slices.IndexFunc(b.wildcards, match); i >= 0 {
		b.wildcards = slices.Delete(slices.Clone(b.wildcards), i, i+1)
		return true
	}
	return false
}

// Publish dispatches an event to all registered handlers.
// Exact-name handlers run first, then pattern handlers, then wildcard
// handlers; within each group in registration order. The handler list is
// snapshotted before dispatch, so handlers subscribed by a running handler
// only see later events. A handler may itself publish; the nested dispatch
// completes before the outer one continues.
func (b *Bus) Publish(e Event) {
	name := e.EventType()

	b.mu.RLock()
	targets := slices.Clone(b.exact[name])
	for _, sub := range b.patterns {
		if sub.pattern.Match(name) {
			targets = append(targets, sub)
		}
	}
	targets = append(targets, b.wildcards...)
	b.mu.RUnlock()

	b.metrics.ObservePublish(name)

	for _, sub := range targets {
		b.safeCall(sub, e)
	}
}

// safeCall invokes a handler, containing both returned errors and panics
// so that one misbehaving handler cannot block delivery to the others.
func (b *Bus) safeCall(sub subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			b.logger.Error("event handler panicked",
				"event", e.EventType(),
				"subscription", sub.id,
				"panic", fmt.Sprint(r),
				"stack", string(stack))
			b.reportFailure(sub, e, &PanicError{Value: r, Stack: stack})
		}
	}()

	if err := sub.handler(e); err != nil {
		b.logger.Error("event handler failed",
			"event", e.EventType(),
			"subscription", sub.id,
			"error", err.Error())
		b.reportFailure(sub, e, err)
	}
}

func (b *Bus) reportFailure(sub subscription, e Event, err error) {
	b.metrics.ObserveHandlerFailure(e.EventType())
	if b.onFailure == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("failure hook panicked", "event", e.EventType(), "panic", fmt.Sprint(r))
		}
	}()
	b.onFailure(HandlerFailure{Event: e.EventType(), SubscriptionID: sub.id, Err: err})
}

// generateID creates a unique subscription ID. Callers hold mu.
func (b *Bus) generateID() string {
	return fmt.Sprintf("sub-%d", b.nextID.Add(1))
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exact = make(map[string][]subscription)
	b.patterns = nil
	b.wildcards = nil
}

// SubscriptionCount returns the total number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.patterns) + len(b.wildcards)
	for _, subs := range b.exact {
		count += len(subs)
	}
	return count
}
