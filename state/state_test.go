package state

import "testing"

func TestRoomMachine_HappyPath(t *testing.T) {
	m := NewRoomMachine()

	if !m.Is(PhaseWaiting) {
		t.Fatalf("Expected initial phase waiting, got %s", m.Current())
	}

	steps := []Phase{PhaseCountdown, PhasePlaying, PhaseFinished, PhaseWaiting}
	for _, to := range steps {
		if err := m.Transition(to); err != nil {
			t.Fatalf("Transition to %s failed: %v", to, err)
		}
		if m.Current() != to {
			t.Fatalf("Expected phase %s, got %s", to, m.Current())
		}
	}
}

func TestRoomMachine_CountdownAbort(t *testing.T) {
	m := NewRoomMachine()
	m.Transition(PhaseCountdown)

	if err := m.Transition(PhaseWaiting); err != nil {
		t.Fatalf("Countdown abort should be allowed: %v", err)
	}
	if !m.Is(PhaseWaiting) {
		t.Errorf("Expected waiting after abort, got %s", m.Current())
	}
}

func TestRoomMachine_PlayingAbort(t *testing.T) {
	m := NewRoomMachine()
	m.Transition(PhaseCountdown)
	m.Transition(PhasePlaying)

	// A departing opponent aborts the match without a finished phase.
	if err := m.Transition(PhaseWaiting); err != nil {
		t.Fatalf("Playing abort should be allowed: %v", err)
	}
}

func TestRoomMachine_IllegalTransitions(t *testing.T) {
	cases := []struct {
		name string
		path []Phase
		to   Phase
	}{
		{"waiting to playing", nil, PhasePlaying},
		{"waiting to finished", nil, PhaseFinished},
		{"countdown to finished", []Phase{PhaseCountdown}, PhaseFinished},
		{"playing to countdown", []Phase{PhaseCountdown, PhasePlaying}, PhaseCountdown},
		{"finished to playing", []Phase{PhaseCountdown, PhasePlaying, PhaseFinished}, PhasePlaying},
		{"self transition", []Phase{PhaseCountdown}, PhaseCountdown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewRoomMachine()
			for _, p := range tc.path {
				if err := m.Transition(p); err != nil {
					t.Fatalf("Setup transition to %s failed: %v", p, err)
				}
			}
			before := m.Current()
			if err := m.Transition(tc.to); err != ErrTransitionNotAllowed {
				t.Errorf("Expected ErrTransitionNotAllowed, got %v", err)
			}
			if m.Current() != before {
				t.Errorf("Failed transition must not move the phase: %s -> %s", before, m.Current())
			}
		})
	}
}

func TestMachine_CustomTable(t *testing.T) {
	m := NewMachine("a", map[Phase][]Phase{
		"a": {"b"},
		"b": {"a"},
	})

	if err := m.Transition("b"); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if err := m.Transition("c"); err != ErrTransitionNotAllowed {
		t.Errorf("Unknown target should be rejected, got %v", err)
	}
	if err := m.Transition("a"); err != nil {
		t.Fatalf("Transition back failed: %v", err)
	}
}
