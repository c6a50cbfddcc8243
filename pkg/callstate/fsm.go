// Package callstate tracks the lifecycle of one voice call and its
// duration clock.
package callstate

import (
	"sync"
	"time"
)

// State is the call lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateEnded
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// StateChange represents a state transition event.
type StateChange struct {
	From      State
	To        State
	Timestamp time.Time
	Reason    string
}

// InvalidTransitionError represents an invalid state transition attempt.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid call state transition from " + e.From.String() + " to " + e.To.String()
}

// Machine is the finite state machine for one call session. It is reusable
// across calls: ended and error both admit a fresh connecting cycle.
type Machine struct {
	mu        sync.RWMutex
	current   State
	listeners []func(StateChange)

	startedAt time.Time
	frozen    int64
	stopTick  chan struct{}
}

func NewMachine() *Machine {
	return &Machine{current: StateIdle}
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// error is transient signaling; the close that follows it lands in ended.
var validTransitions = map[State][]State{
	StateIdle:       {StateConnecting, StateError},
	StateConnecting: {StateConnected, StateEnded, StateError},
	StateConnected:  {StateEnded, StateError},
	StateEnded:      {StateConnecting},
	StateError:      {StateEnded, StateConnecting},
}

func transitionValid(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves to a new state with validation and notifies listeners.
// Listeners are invoked outside the lock from a snapshot, so a listener may
// inspect or transition the machine without deadlocking.
func (m *Machine) Transition(to State, reason string) error {
	m.mu.Lock()
	from := m.current
	if !transitionValid(from, to) {
		m.mu.Unlock()
		return &InvalidTransitionError{From: from, To: to}
	}
	m.current = to
	listeners := append(m.listeners[:0:0], m.listeners...)
	m.mu.Unlock()

	event := StateChange{
		From:      from,
		To:        to,
		Timestamp: time.Now(),
		Reason:    reason,
	}
	for _, listener := range listeners {
		listener(event)
	}
	return nil
}

// AddListener registers a listener for state change events.
func (m *Machine) AddListener(listener func(StateChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// StartClock begins a fresh duration count from openedAt, resetting any
// frozen value from a previous call. A running clock is restarted.
func (m *Machine) StartClock(openedAt time.Time) {
	m.mu.Lock()
	if m.stopTick != nil {
		close(m.stopTick)
	}
	m.startedAt = openedAt
	m.frozen = 0
	stop := make(chan struct{})
	m.stopTick = stop
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.mu.Lock()
				if m.stopTick == stop {
					m.frozen = int64(time.Since(m.startedAt) / time.Second)
				}
				m.mu.Unlock()
			}
		}
	}()
}

// StopClock freezes the duration at its current value. Idempotent; after it
// returns no tick mutates the duration again.
func (m *Machine) StopClock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopTick == nil {
		return
	}
	close(m.stopTick)
	m.stopTick = nil
	m.frozen = int64(time.Since(m.startedAt) / time.Second)
}

// Duration returns whole elapsed seconds: live while the clock runs, the
// frozen value after teardown, 0 before the first open.
func (m *Machine) Duration() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stopTick != nil {
		return int64(time.Since(m.startedAt) / time.Second)
	}
	return m.frozen
}
