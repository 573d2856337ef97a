package reflow

import (
	"fmt"

	"github.com/vsinha/lineplan/pkg/domain/entities"
)

// State is a step in a single placement decision
type State int

const (
	Idle State = iota
	ConflictFound
	AwaitingPlacementChoice
	Resolving
	Committed
	Aborted
)

// String method for State enum
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ConflictFound:
		return "conflict_found"
	case AwaitingPlacementChoice:
		return "awaiting_placement_choice"
	case Resolving:
		return "resolving"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

var transitions = map[State][]State{
	Idle:                    {ConflictFound, Resolving, Aborted},
	ConflictFound:           {AwaitingPlacementChoice, Resolving, Aborted},
	AwaitingPlacementChoice: {Resolving, Aborted},
	Resolving:               {Committed, Aborted},
}

// Machine tracks the state of one placement decision
type Machine struct {
	state   State
	history []State
}

// NewMachine starts a decision in Idle
func NewMachine() *Machine {
	return &Machine{state: Idle, history: []State{Idle}}
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// History returns every state visited, oldest first
func (m *Machine) History() []State {
	return append([]State(nil), m.history...)
}

// Transition moves to next if the move is allowed from the current state
func (m *Machine) Transition(next State) error {
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.state = next
			m.history = append(m.history, next)
			return nil
		}
	}
	return fmt.Errorf("%w: placement %s -> %s", entities.ErrInvalidTransition, m.state, next)
}

// Terminal reports whether the decision is finished
func (m *Machine) Terminal() bool {
	return m.state == Committed || m.state == Aborted
}
