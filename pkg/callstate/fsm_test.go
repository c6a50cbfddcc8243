package callstate

import (
	"errors"
	"testing"
	"time"
)

func TestFullCallCycle(t *testing.T) {
	m := NewMachine()
	if m.State() != StateIdle {
		t.Fatalf("expected idle, got %s", m.State())
	}
	steps := []State{StateConnecting, StateConnected, StateEnded, StateConnecting, StateConnected, StateError, StateEnded}
	for _, next := range steps {
		if err := m.Transition(next, "test"); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if m.State() != StateEnded {
		t.Fatalf("expected ended, got %s", m.State())
	}
}

func TestInvalidTransitions(t *testing.T) {
	cases := []struct{ from, to State }{
		{StateIdle, StateConnected},
		{StateIdle, StateEnded},
		{StateConnected, StateConnecting},
		{StateEnded, StateConnected},
		{StateEnded, StateError},
		{StateError, StateConnected},
	}
	for _, tc := range cases {
		m := &Machine{current: tc.from}
		err := m.Transition(tc.to, "test")
		if err == nil {
			t.Fatalf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
		var ite *InvalidTransitionError
		if !errors.As(err, &ite) {
			t.Fatalf("expected InvalidTransitionError, got %T", err)
		}
		if m.State() != tc.from {
			t.Fatalf("state mutated by rejected transition: %s", m.State())
		}
	}
}

func TestCreateFailurePath(t *testing.T) {
	m := NewMachine()
	if err := m.Transition(StateError, "session create failed"); err != nil {
		t.Fatalf("idle -> error: %v", err)
	}
	// A fresh call identifier restarts the cycle after a failed create.
	if err := m.Transition(StateConnecting, "retry"); err != nil {
		t.Fatalf("error -> connecting: %v", err)
	}
}

func TestListenersNotified(t *testing.T) {
	m := NewMachine()
	var got []StateChange
	m.AddListener(func(ch StateChange) { got = append(got, ch) })
	if err := m.Transition(StateConnecting, "call id assigned"); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one event, got %d", len(got))
	}
	if got[0].From != StateIdle || got[0].To != StateConnecting || got[0].Reason != "call id assigned" {
		t.Fatalf("unexpected event: %+v", got[0])
	}
}

func TestDurationLifecycle(t *testing.T) {
	m := NewMachine()
	if m.Duration() != 0 {
		t.Fatalf("expected zero duration before open, got %d", m.Duration())
	}

	m.StartClock(time.Now().Add(-3 * time.Second))
	if d := m.Duration(); d < 3 {
		t.Fatalf("expected at least 3s, got %d", d)
	}

	m.StopClock()
	frozen := m.Duration()
	if frozen < 3 {
		t.Fatalf("expected frozen value >= 3, got %d", frozen)
	}
	time.Sleep(20 * time.Millisecond)
	if m.Duration() != frozen {
		t.Fatalf("duration moved after StopClock")
	}

	// Not reset until the next successful open.
	if m.Duration() != frozen {
		t.Fatalf("duration reset too early")
	}
	m.StartClock(time.Now())
	if d := m.Duration(); d != 0 {
		t.Fatalf("expected reset to 0 on new open, got %d", d)
	}
	m.StopClock()
}

func TestStopClockIdempotent(t *testing.T) {
	m := NewMachine()
	m.StopClock()
	m.StartClock(time.Now())
	m.StopClock()
	m.StopClock()
}

func TestDurationNonDecreasing(t *testing.T) {
	m := NewMachine()
	m.StartClock(time.Now().Add(-2 * time.Second))
	defer m.StopClock()
	last := int64(-1)
	for i := 0; i < 10; i++ {
		d := m.Duration()
		if d < last {
			t.Fatalf("duration decreased: %d -> %d", last, d)
		}
		last = d
	}
}
