package link

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/relaydesk/relay/internal/bus"
)

// State represents the push-link runtime state.
type State string

const (
	Offline      State = "OFFLINE"
	Connecting   State = "CONNECTING"
	Online       State = "ONLINE"
	Reconnecting State = "RECONNECTING"
	Failed       State = "FAILED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Offline:      {Connecting},
	Connecting:   {Online, Reconnecting, Failed, Offline},
	Online:       {Reconnecting, Offline},
	Reconnecting: {Connecting, Online, Failed, Offline},
	Failed:       {Connecting, Offline},
}

// Machine tracks and enforces push-link state transitions, publishing each
// change on the bus so the status bar can render it.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Offline state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Offline,
		bus:     b,
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
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindLinkChanged,
			Timestamp: time.Now(),
			Payload: StateChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StateChange is the payload for link state change events.
type StateChange struct {
	From State
	To   State
}
