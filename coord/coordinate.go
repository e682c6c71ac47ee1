package coord

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/baton/internal/event"
	"github.com/Iron-Ham/baton/internal/lockreg"
	"github.com/Iron-Ham/baton/internal/logging"
	"github.com/Iron-Ham/baton/internal/metrics"
)

// Option configures one Coordinate wrapper.
type Option func(*settings)

type settings struct {
	lockName   string
	timeout    time.Duration
	timeoutSet bool
}

// WithLock makes every call of the wrapper hold the named resource lock
// while the target runs. An empty name means no locking.
func WithLock(name string) Option {
	return func(s *settings) { s.lockName = name }
}

// WithTimeout bounds how long a call waits for its lock. It overrides the
// hub default; zero waits indefinitely. Ignored without WithLock.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.timeout = d
		s.timeoutSet = true
	}
}

func (h *Hub) settings(opts []Option) settings {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if !s.timeoutSet {
		s.timeout = h.defaultTimeout
	}
	return s
}

// Coordinate wraps fn under the logical agent name. Each call of the
// returned function:
//
//  1. acquires the WithLock resource lock, if any, returning the error
//     (matching ErrLockTimeout on timeout) without calling fn or
//     publishing anything when that fails;
//  2. publishes "<name>_started";
//  3. calls fn with the caller's arguments;
//  4. releases the lock, exactly once, whatever fn did;
//  5. publishes "<name>_complete" with the result, or "<name>_error" with
//     the failure, and returns fn's results unchanged.
//
// A panic in fn is re-raised with the original value after step 5.
// Handler failures never reach the caller.
func Coordinate[In, Out any](h *Hub, name string, fn func(context.Context, In) (Out, error), opts ...Option) func(context.Context, In) (Out, error) {
	h = orDefault(h)
	s := h.settings(opts)
	return func(ctx context.Context, in In) (Out, error) {
		var out Out
		err := h.run(ctx, name, s, func(ctx context.Context) (any, error) {
			var err error
			out, err = fn(ctx, in)
			return out, err
		})
		return out, err
	}
}

// CoordinateFunc is Coordinate for functions with no input and no result.
// The "_complete" event carries a nil result.
func CoordinateFunc(h *Hub, name string, fn func(context.Context) error, opts ...Option) func(context.Context) error {
	h = orDefault(h)
	s := h.settings(opts)
	return func(ctx context.Context) error {
		return h.run(ctx, name, s, func(ctx context.Context) (any, error) {
			return nil, fn(ctx)
		})
	}
}

// outcome is what the target produced.
type outcome struct {
	value any
	err   error
	panic *event.PanicError
}

func (h *Hub) run(ctx context.Context, name string, s settings, call func(context.Context) (any, error)) error {
	inv := newInvocation(h, name, s.lockName)
	log := h.logger.WithAgent(name).WithInvocation(inv.id)
	if inv.lockName != "" {
		log = log.WithLock(inv.lockName)
	}

	ctx, span := h.tracer.Start(ctx, "coordinate "+name, trace.WithAttributes(
		attribute.String("baton.agent", name),
		attribute.String("baton.lock", inv.lockName),
		attribute.String("baton.invocation_id", inv.id),
	))
	defer span.End()

	var handle *lockreg.Handle
	if inv.lockName != "" {
		inv.advance(StateLockWait)
		log.Debug("waiting for lock", "timeout", s.timeout.String())

		var err error
		handle, err = h.locks.AcquireTimeout(ctx, inv.lockName, s.timeout)
		if err != nil {
			result := metrics.OutcomeCancelled
			if errors.Is(err, lockreg.ErrLockTimeout) {
				result = metrics.OutcomeLockTimeout
			}
			h.finish(inv, span, log, result, err)
			return err
		}
		span.AddEvent("lock acquired", trace.WithAttributes(
			attribute.Int64("baton.lock_wait_ms", time.Since(inv.started).Milliseconds()),
		))
	}

	inv.advance(StateRunning)
	log.Debug("invocation running")
	h.bus.Publish(event.Started(name, inv.id))

	out := h.invoke(ctx, call, handle)

	switch {
	case out.panic != nil:
		inv.advance(StateFailure)
		log.Error("agent panicked", "panic", out.panic.Error(), "stack", string(out.panic.Stack))
		h.bus.Publish(event.Failed(name, inv.id, out.panic))
		inv.advance(StateEventPublished)
		h.finish(inv, span, log, metrics.OutcomeFailure, out.panic)
		panic(out.panic.Value)

	case out.err != nil:
		inv.advance(StateFailure)
		log.Warn("agent failed", "error", out.err.Error())
		h.bus.Publish(event.Failed(name, inv.id, out.err))
		inv.advance(StateEventPublished)
		h.finish(inv, span, log, metrics.OutcomeFailure, out.err)
		return out.err

	default:
		inv.advance(StateSuccess)
		h.bus.Publish(event.Complete(name, inv.id, out.value))
		inv.advance(StateEventPublished)
		h.finish(inv, span, log, metrics.OutcomeSuccess, nil)
		return nil
	}
}

// invoke calls the target and releases handle before returning, whether the
// target returned or panicked.
func (h *Hub) invoke(ctx context.Context, call func(context.Context) (any, error), handle *lockreg.Handle) (out outcome) {
	if handle != nil {
		defer func() {
			if err := h.locks.Release(handle); err != nil {
				h.logger.Error("lock release failed", "lock", handle.Name(), "error", err.Error())
			}
		}()
	}
	defer func() {
		if r := recover(); r != nil {
			out = outcome{panic: &event.PanicError{Value: r, Stack: debug.Stack()}}
		}
	}()

	out.value, out.err = call(ctx)
	return out
}

func (h *Hub) finish(inv *invocation, span trace.Span, log *logging.Logger, result string, err error) {
	inv.advance(StateDone)
	h.metrics.ObserveInvocation(inv.agent, result)

	span.SetAttributes(attribute.String("baton.outcome", result))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	log.Debug("invocation done", "outcome", result, "duration_ms", time.Since(inv.started).Milliseconds())
}
