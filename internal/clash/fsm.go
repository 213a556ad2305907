package clash

import "errors"

// ErrInvalidTransition is returned when a command step is not allowed in its current state.
var ErrInvalidTransition = errors.New("clash: invalid state transition")

// State is the progress of a CreateDowntimeCommand.
type State string

const (
	StateBuilding       State = "building"
	StateValidated      State = "validated"
	StateInvalid        State = "invalid"
	StateNoClash        State = "no_clash"
	StateHasClashes     State = "has_clashes"
	StateResolvedKeep   State = "resolved_keep"
	StateResolvedDelete State = "resolved_delete"
	StateCancelled      State = "cancelled"
	StateExecuted       State = "executed"
)

// Terminal reports whether no further step is possible.
func (s State) Terminal() bool {
	return s == StateInvalid || s == StateCancelled || s == StateExecuted
}

// FSM holds the allowed transitions of the command.
type FSM struct {
	transitions map[State][]State
}

func NewFSM() *FSM {
	return &FSM{
		transitions: map[State][]State{
			StateBuilding:       {StateValidated, StateInvalid},
			StateValidated:      {StateNoClash, StateHasClashes},
			StateHasClashes:     {StateResolvedKeep, StateResolvedDelete, StateCancelled},
			StateNoClash:        {StateExecuted},
			StateResolvedKeep:   {StateExecuted},
			StateResolvedDelete: {StateExecuted},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to State) bool {
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
