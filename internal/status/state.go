package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/wppdesk/internal/bus"
)

// State represents a session connection state.
type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Connected    State = "connected"
)

// validTransitions defines allowed state transitions. A connected session
// always passes through connecting on its way down.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Disconnected},
	Connected:    {Connecting},
}

// Parse maps a persisted status string back to a State. Unknown values
// resolve to Disconnected.
func Parse(s string) State {
	switch State(s) {
	case Connecting, Connected:
		return State(s)
	default:
		return Disconnected
	}
}

// Machine tracks and enforces the state transitions of one session.
type Machine struct {
	mu        sync.RWMutex
	sessionID string
	current   State
	bus       *bus.Bus
}

// NewMachine creates a state machine for sessionID starting in Disconnected.
func NewMachine(sessionID string, b *bus.Bus) *Machine {
	return &Machine{
		sessionID: sessionID,
		current:   Disconnected,
		bus:       b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("session %s: invalid transition from %s to %s", m.sessionID, m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.NewEvent(bus.SessionStatus, m.sessionID, StatusChange{
			From: from,
			To:   to,
		}))
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
