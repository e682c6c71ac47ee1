package event

import (
	"errors"
	"testing"
)

func TestLifecycleNames(t *testing.T) {
	if got := StartedName("doubler"); got != "doubler_started" {
		t.Errorf("StartedName = %q", got)
	}
	if got := CompleteName("doubler"); got != "doubler_complete" {
		t.Errorf("CompleteName = %q", got)
	}
	if got := ErrorName("doubler"); got != "doubler_error" {
		t.Errorf("ErrorName = %q", got)
	}
}

func TestPayload(t *testing.T) {
	tests := []struct {
		name   string
		event  Event
		want   map[string]any
		absent []string
	}{
		{
			name:   "started",
			event:  Started("doubler", "i1"),
			want:   map[string]any{KeyAgentName: "doubler", KeyEvent: "doubler_started"},
			absent: []string{KeyResult, KeyError},
		},
		{
			name:   "complete with nil result keeps the key",
			event:  Complete("doubler", "i1", nil),
			want:   map[string]any{KeyAgentName: "doubler", KeyResult: nil, KeyEvent: "doubler_complete"},
			absent: []string{KeyError},
		},
		{
			name:   "error",
			event:  Failed("doubler", "i1", errors.New("bad input")),
			want:   map[string]any{KeyAgentName: "doubler", KeyError: "bad input", KeyEvent: "doubler_error"},
			absent: []string{KeyResult},
		},
		{
			name:   "custom",
			event:  New("chained", map[string]any{"step": 2}),
			want:   map[string]any{"step": 2, KeyEvent: "chained"},
			absent: []string{KeyAgentName, KeyResult, KeyError},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.event.Payload()
			if len(p) != len(tt.want) {
				t.Errorf("Payload() = %v, want %v", p, tt.want)
			}
			for k, v := range tt.want {
				got, ok := p[k]
				if !ok || got != v {
					t.Errorf("Payload()[%q] = %v (present %v), want %v", k, got, ok, v)
				}
				if g, ok := tt.event.Get(k); !ok || g != v {
					t.Errorf("Get(%q) = %v, %v; want %v", k, g, ok, v)
				}
			}
			for _, k := range tt.absent {
				if _, ok := p[k]; ok {
					t.Errorf("Payload() should not contain %q", k)
				}
				if _, ok := tt.event.Get(k); ok {
					t.Errorf("Get(%q) should report absent", k)
				}
			}
		})
	}
}

func TestNewCopiesPayload(t *testing.T) {
	payload := map[string]any{"k": 1}
	e := New("evt", payload)
	payload["k"] = 2

	if v, _ := e.Get("k"); v != 1 {
		t.Errorf("event payload aliased caller map, got %v", v)
	}
}

func TestCustomCanonicalKeys(t *testing.T) {
	e := New("manual", map[string]any{KeyAgentName: "hand-rolled"})
	if v, ok := e.Get(KeyAgentName); !ok || v != "hand-rolled" {
		t.Errorf("Get(agent_name) = %v, %v", v, ok)
	}
}

func TestResultOnlyOnComplete(t *testing.T) {
	if _, ok := Started("a", "").Result(); ok {
		t.Error("started event should have no result")
	}
	if _, ok := Failed("a", "", errors.New("x")).Result(); ok {
		t.Error("error event should have no result")
	}
	if v, ok := Complete("a", "", 10).Result(); !ok || v != 10 {
		t.Errorf("Result() = %v, %v", v, ok)
	}
}
