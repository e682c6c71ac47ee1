package coord

import (
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/baton/internal/event"
	"github.com/Iron-Ham/baton/internal/lockreg"
	"github.com/Iron-Ham/baton/internal/logging"
	"github.com/Iron-Ham/baton/internal/metrics"
)

const tracerName = "github.com/Iron-Ham/baton/coord"

// Re-exported so callers outside this module can name them.
type (
	Event          = event.Event
	Handler        = event.Handler
	HandlerFailure = event.HandlerFailure
	PanicError     = event.PanicError
	LockState      = lockreg.LockState
)

// ErrLockTimeout is matched (errors.Is) by the error returned from a
// coordinated call whose lock stayed busy past its timeout.
var ErrLockTimeout = lockreg.ErrLockTimeout

// Hub is the shared coordination service: one lock registry and one event
// bus. Construct it once at startup and pass it to every Coordinate call
// that should share locks and events.
type Hub struct {
	locks          *lockreg.Registry
	bus            *event.Bus
	logger         *logging.Logger
	metrics        *metrics.Collector
	tracer         trace.Tracer
	defaultTimeout time.Duration

	// onTransition observes invocation state changes; set by tests.
	onTransition func(id string, from, to State)
}

type hubConfig struct {
	logger         *logging.Logger
	metrics        *metrics.Collector
	tracerProvider trace.TracerProvider
	defaultTimeout time.Duration
	slowWait       time.Duration
	failureHook    func(HandlerFailure)
}

// HubOption configures a Hub.
type HubOption func(*hubConfig)

// WithLogger sets the structured logger shared by the hub, its registry
// and its bus.
func WithLogger(l *logging.Logger) HubOption {
	return func(c *hubConfig) { c.logger = l }
}

// WithMetrics records invocation, lock and event metrics on col.
func WithMetrics(col *metrics.Collector) HubOption {
	return func(c *hubConfig) { c.metrics = col }
}

// WithTracerProvider sets where invocation spans go. Defaults to the otel
// global provider.
func WithTracerProvider(tp trace.TracerProvider) HubOption {
	return func(c *hubConfig) { c.tracerProvider = tp }
}

// WithDefaultLockTimeout bounds lock waits for Coordinate calls that set a
// lock name but no WithTimeout. Zero means wait indefinitely.
func WithDefaultLockTimeout(d time.Duration) HubOption {
	return func(c *hubConfig) { c.defaultTimeout = d }
}

// WithSlowLockWarning logs a warning when a lock wait exceeds d.
func WithSlowLockWarning(d time.Duration) HubOption {
	return func(c *hubConfig) { c.slowWait = d }
}

// WithFailureHook is called for every isolated handler failure.
func WithFailureHook(fn func(HandlerFailure)) HubOption {
	return func(c *hubConfig) { c.failureHook = fn }
}

// New creates a Hub.
func New(opts ...HubOption) *Hub {
	cfg := hubConfig{logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	if cfg.tracerProvider == nil {
		cfg.tracerProvider = otel.GetTracerProvider()
	}

	busOpts := []event.BusOption{
		event.WithLogger(cfg.logger),
		event.WithMetrics(cfg.metrics),
	}
	if cfg.failureHook != nil {
		busOpts = append(busOpts, event.WithFailureHook(cfg.failureHook))
	}

	return &Hub{
		locks: lockreg.NewRegistry(
			lockreg.WithLogger(cfg.logger),
			lockreg.WithMetrics(cfg.metrics),
			lockreg.WithSlowWaitThreshold(cfg.slowWait),
		),
		bus:            event.NewBus(busOpts...),
		logger:         cfg.logger,
		metrics:        cfg.metrics,
		tracer:         cfg.tracerProvider.Tracer(tracerName),
		defaultTimeout: cfg.defaultTimeout,
	}
}

var defaultHub = sync.OnceValue(func() *Hub { return New() })

// Default returns the process-wide Hub, created on first use. Functions in
// this package that take a *Hub use Default when passed nil.
func Default() *Hub {
	return defaultHub()
}

func orDefault(h *Hub) *Hub {
	if h == nil {
		return Default()
	}
	return h
}

// Subscribe registers handler for the event name and returns its
// subscription ID.
func (h *Hub) Subscribe(name string, handler Handler) string {
	return h.bus.Subscribe(name, handler)
}

// SubscribePattern registers handler for every event whose name matches
// the glob pattern.
func (h *Hub) SubscribePattern(pattern string, handler Handler) (string, error) {
	return h.bus.SubscribePattern(pattern, handler)
}

// SubscribeAll registers handler for every event.
func (h *Hub) SubscribeAll(handler Handler) string {
	return h.bus.SubscribeAll(handler)
}

// Unsubscribe removes a subscription by ID.
func (h *Hub) Unsubscribe(id string) bool {
	return h.bus.Unsubscribe(id)
}

// Emit publishes a custom event synchronously. Handler failures are
// contained by the bus.
func (h *Hub) Emit(name string, payload map[string]any) {
	h.bus.Publish(event.New(name, payload))
}

// Locks returns the hub's lock registry.
func (h *Hub) Locks() *lockreg.Registry { return h.locks }

// Bus returns the hub's event bus.
func (h *Hub) Bus() *event.Bus { return h.bus }

// LockSnapshot reports the state of every lock name seen so far.
func (h *Hub) LockSnapshot() []LockState { return h.locks.Snapshot() }

// When registers handler for the event name on h (or the default hub) and
// returns handler unchanged so it stays directly callable.
func When(h *Hub, name string, handler Handler) Handler {
	orDefault(h).Subscribe(name, handler)
	return handler
}

// Emit publishes a custom event on h, or on the default hub when h is nil.
func Emit(h *Hub, name string, payload map[string]any) {
	orDefault(h).Emit(name, payload)
}
