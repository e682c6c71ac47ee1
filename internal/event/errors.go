package event

import "fmt"

// PanicError wraps a value recovered from a panicking handler or agent.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// HandlerFailure describes one handler that returned an error or panicked
// during dispatch. It is reported to the failure hook and never to the
// publisher.
type HandlerFailure struct {
	Event          string
	SubscriptionID string
	Err            error
}
