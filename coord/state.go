package coord

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// State is a step of a single coordinated invocation.
type State int

const (
	StatePending State = iota
	StateLockWait
	StateRunning
	StateSuccess
	StateFailure
	StateEventPublished
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateLockWait:
		return "lock_wait"
	case StateRunning:
		return "running"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "failure"
	case StateEventPublished:
		return "event_published"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// transitions lists the legal next states. LockWait may end in Done when
// the lock is never acquired.
var transitions = map[State][]State{
	StatePending:        {StateLockWait, StateRunning},
	StateLockWait:       {StateRunning, StateDone},
	StateRunning:        {StateSuccess, StateFailure},
	StateSuccess:        {StateEventPublished},
	StateFailure:        {StateEventPublished},
	StateEventPublished: {StateDone},
}

// invocation is the per-call record. It is owned by the goroutine running
// the call and discarded once the call returns.
type invocation struct {
	id       string
	agent    string
	lockName string
	state    State
	started  time.Time
	hub      *Hub
}

func newInvocation(h *Hub, agent, lockName string) *invocation {
	return &invocation{
		id:       uuid.NewString(),
		agent:    agent,
		lockName: lockName,
		state:    StatePending,
		started:  time.Now(),
		hub:      h,
	}
}

// advance moves to the next state. Illegal transitions are logged and
// ignored.
func (inv *invocation) advance(to State) {
	from := inv.state
	if !slices.Contains(transitions[from], to) {
		inv.hub.logger.Error("illegal invocation state transition",
			"agent", inv.agent, "invocation_id", inv.id,
			"from", from.String(), "to", to.String())
		return
	}
	inv.state = to
	if inv.hub.onTransition != nil {
		inv.hub.onTransition(inv.id, from, to)
	}
}
