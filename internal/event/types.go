package event

import (
	"maps"
	"time"
)

// Canonical payload keys.
const (
	KeyAgentName = "agent_name"
	KeyResult    = "result"
	KeyError     = "error"
	KeyEvent     = "event"
)

// Lifecycle event name suffixes appended to an agent's logical name.
const (
	SuffixStarted  = "_started"
	SuffixComplete = "_complete"
	SuffixError    = "_error"
)

// StartedName returns "<agent>_started".
func StartedName(agent string) string { return agent + SuffixStarted }

// CompleteName returns "<agent>_complete".
func CompleteName(agent string) string { return agent + SuffixComplete }

// ErrorName returns "<agent>_error".
func ErrorName(agent string) string { return agent + SuffixError }

// Event is a named, timestamped notification with a payload made of the
// canonical lifecycle keys plus an open map for custom fields. Events are
// not stored; a handler sees only events published after it subscribed.
type Event struct {
	name      string
	timestamp time.Time

	// AgentName is the logical name of the wrapped agent, if any.
	AgentName string
	// InvocationID identifies the invocation that produced a lifecycle event.
	InvocationID string
	// Err is the target failure carried by an "_error" event.
	Err error
	// Fields holds custom payload entries.
	Fields map[string]any

	result    any
	hasResult bool
}

// New creates a custom event. The payload map is copied.
func New(name string, payload map[string]any) Event {
	return Event{
		name:      name,
		timestamp: time.Now(),
		Fields:    maps.Clone(payload),
	}
}

// Started creates the "<agent>_started" lifecycle event.
func Started(agent, invocationID string) Event {
	return Event{
		name:         StartedName(agent),
		timestamp:    time.Now(),
		AgentName:    agent,
		InvocationID: invocationID,
	}
}

// Complete creates the "<agent>_complete" lifecycle event carrying result.
func Complete(agent, invocationID string, result any) Event {
	return Event{
		name:         CompleteName(agent),
		timestamp:    time.Now(),
		AgentName:    agent,
		InvocationID: invocationID,
		result:       result,
		hasResult:    true,
	}
}

// Failed creates the "<agent>_error" lifecycle event carrying err.
func Failed(agent, invocationID string, err error) Event {
	return Event{
		name:         ErrorName(agent),
		timestamp:    time.Now(),
		AgentName:    agent,
		InvocationID: invocationID,
		Err:          err,
	}
}

// EventType returns the event name.
func (e Event) EventType() string { return e.name }

// Timestamp returns when the event was created.
func (e Event) Timestamp() time.Time { return e.timestamp }

// Result returns the wrapped function's return value. ok is false for
// anything other than a "_complete" event, even when the value itself is nil.
func (e Event) Result() (value any, ok bool) { return e.result, e.hasResult }

// Payload renders the event as a flat map: custom fields first, then the
// canonical keys that are set, then "event".
func (e Event) Payload() map[string]any {
	p := make(map[string]any, len(e.Fields)+4)
	maps.Copy(p, e.Fields)
	if e.AgentName != "" {
		p[KeyAgentName] = e.AgentName
	}
	if e.hasResult {
		p[KeyResult] = e.result
	}
	if e.Err != nil {
		p[KeyError] = e.Err.Error()
	}
	p[KeyEvent] = e.name
	return p
}

// Get looks up one payload key.
func (e Event) Get(key string) (any, bool) {
	switch key {
	case KeyEvent:
		return e.name, true
	case KeyAgentName:
		if e.AgentName != "" {
			return e.AgentName, true
		}
	case KeyResult:
		if e.hasResult {
			return e.result, true
		}
	case KeyError:
		if e.Err != nil {
			return e.Err.Error(), true
		}
	}
	v, ok := e.Fields[key]
	return v, ok
}
