package state

import (
	"errors"
	"sync"
)

// Phase is a room's lifecycle phase.
type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseCountdown Phase = "countdown"
	PhasePlaying   Phase = "playing"
	PhaseFinished  Phase = "finished"
)

// ErrTransitionNotAllowed is returned when a phase transition is not allowed.
var ErrTransitionNotAllowed = errors.New("phase transition not allowed")

// Machine guards room lifecycle transitions. Illegal transitions fail
// and leave the current phase untouched.
type Machine struct {
	current     Phase
	transitions map[Phase]map[Phase]bool
	mutex       sync.RWMutex
}

// NewRoomMachine builds the canonical room lifecycle:
//
//	waiting -> countdown -> playing -> waiting (reset) | finished
//	countdown -> waiting (aborted)
//	finished -> waiting (rematch)
func NewRoomMachine() *Machine {
	return NewMachine(PhaseWaiting, map[Phase][]Phase{
		PhaseWaiting:   {PhaseCountdown},
		PhaseCountdown: {PhasePlaying, PhaseWaiting},
		PhasePlaying:   {PhaseFinished, PhaseWaiting},
		PhaseFinished:  {PhaseWaiting},
	})
}

// NewMachine builds a machine from an explicit transition table.
func NewMachine(initial Phase, allowed map[Phase][]Phase) *Machine {
	transitions := make(map[Phase]map[Phase]bool, len(allowed))
	for from, tos := range allowed {
		transitions[from] = make(map[Phase]bool, len(tos))
		for _, to := range tos {
			transitions[from][to] = true
		}
	}
	return &Machine{
		current:     initial,
		transitions: transitions,
	}
}

func (m *Machine) Transition(to Phase) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.transitions[m.current][to] {
		return ErrTransitionNotAllowed
	}
	m.current = to
	return nil
}

func (m *Machine) Current() Phase {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.current
}

// Is reports whether the machine currently sits in the given phase.
func (m *Machine) Is(p Phase) bool {
	return m.Current() == p
}
