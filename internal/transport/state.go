// Package transport owns the live server connection: message framing,
// the connection state machine, bounded reconnect, and the two-tier
// auth-failure handling (frame-level refresh vs. terminal expiry).
package transport

import "sync"

// State is one node of the connection state machine.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateErrored      State = "errored"
)

// Status is the externally visible connection state plus the failure
// reason when errored.
type Status struct {
	State  State
	Reason string
}

// validTransitions is the FSM transition table:
//
//	Disconnected -> Connecting
//	Connecting   -> Connected | Disconnected
//	Connected    -> Disconnected
//	any          -> Errored
//	Errored      -> Connecting (after backoff) | Disconnected (shutdown)
var validTransitions = map[State][]State{
	StateDisconnected: {StateConnecting, StateErrored},
	StateConnecting:   {StateConnected, StateDisconnected, StateErrored},
	StateConnected:    {StateDisconnected, StateErrored},
	StateErrored:      {StateConnecting, StateDisconnected, StateErrored},
}

// machine is the guarded FSM. Invalid transitions are refused rather
// than panicking: a refused transition means a stale goroutine lost a
// race and its observation no longer applies.
type machine struct {
	mu     sync.Mutex
	status Status
	notify func(Status)
}

func newMachine(notify func(Status)) *machine {
	return &machine{status: Status{State: StateDisconnected}, notify: notify}
}

func (m *machine) current() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *machine) transition(to State, reason string) bool {
	m.mu.Lock()
	from := m.status.State
	allowed := false
	for _, s := range validTransitions[from] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed && from != to {
		m.mu.Unlock()
		return false
	}
	m.status = Status{State: to, Reason: reason}
	notify := m.notify
	status := m.status
	m.mu.Unlock()

	if notify != nil {
		notify(status)
	}
	return true
}
