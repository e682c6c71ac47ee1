// Package sink mirrors bus events to external brokers so other processes
// can observe a pipeline. Mirrored events are informational only: nothing
// reads them back and no lock decision depends on them.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Iron-Ham/baton/internal/event"
)

// DefaultSendTimeout bounds a single Send issued by Forward.
const DefaultSendTimeout = 5 * time.Second

// Envelope is the wire form of a mirrored event.
type Envelope struct {
	Event        string         `json:"event"`
	AgentName    string         `json:"agent_name,omitempty"`
	InvocationID string         `json:"invocation_id,omitempty"`
	Result       any            `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	Fields       map[string]any `json:"fields,omitempty"`
	At           time.Time      `json:"at"`
}

// FromEvent builds the envelope for e.
func FromEvent(e event.Event) Envelope {
	env := Envelope{
		Event:        e.EventType(),
		AgentName:    e.AgentName,
		InvocationID: e.InvocationID,
		Fields:       e.Fields,
		At:           e.Timestamp(),
	}
	if v, ok := e.Result(); ok {
		env.Result = v
	}
	if e.Err != nil {
		env.Error = e.Err.Error()
	}
	return env
}

// Key is the partition key for the envelope: the agent name for lifecycle
// events, the event name otherwise.
func (env Envelope) Key() string {
	if env.AgentName != "" {
		return env.AgentName
	}
	return env.Event
}

// Marshal encodes the envelope as JSON. Results and fields that JSON cannot
// encode (channels, funcs, cycles) are replaced by their %v rendering.
func (env Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(env)
	if err == nil {
		return data, nil
	}

	if env.Result != nil {
		env.Result = fmt.Sprintf("%v", env.Result)
	}
	if len(env.Fields) > 0 {
		flat := make(map[string]any, len(env.Fields))
		for k, v := range env.Fields {
			if _, err := json.Marshal(v); err != nil {
				flat[k] = fmt.Sprintf("%v", v)
				continue
			}
			flat[k] = v
		}
		env.Fields = flat
	}
	return json.Marshal(env)
}

// Sink delivers envelopes to one external destination.
type Sink interface {
	Send(ctx context.Context, env Envelope) error
	Close() error
}

// Subscriber is the part of the event bus Forward needs. Both *event.Bus
// and *coord.Hub satisfy it.
type Subscriber interface {
	SubscribePattern(pattern string, handler event.Handler) (string, error)
}

// ForwardOptions controls which events Forward mirrors.
type ForwardOptions struct {
	// Pattern is a glob over event names. Empty means every event.
	Pattern string
	// Timeout bounds each Send. Zero uses DefaultSendTimeout.
	Timeout time.Duration
}

// Forward subscribes s to every event matching opts.Pattern and returns the
// subscription ID. Send failures become handler failures on the bus, so
// they are logged and counted but never reach the publisher.
func Forward(bus Subscriber, s Sink, opts ForwardOptions) (string, error) {
	pattern := opts.Pattern
	if pattern == "" {
		pattern = "*"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}

	return bus.SubscribePattern(pattern, func(e event.Event) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.Send(ctx, FromEvent(e)); err != nil {
			return fmt.Errorf("forward %s: %w", e.EventType(), err)
		}
		return nil
	})
}
