// Package state defines the game lifecycle state machine.
package state

import (
	"fmt"
	"strings"
)

// GameState represents the lifecycle state of a game.
type GameState int

const (
	// StateIdle is the state before any game has been started or loaded.
	StateIdle GameState = iota
	// StateRunning indicates turns can be played and orders placed.
	StateRunning
	// StateOver indicates the last turn has been played.
	StateOver
)

// String returns the string representation of the state.
func (s GameState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateOver:
		return "Over"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// validTransitions defines the allowed state transitions.
// A new game or a loaded save can always replace the current one.
var validTransitions = map[GameState][]GameState{
	StateIdle:    {StateRunning},
	StateRunning: {StateRunning, StateOver},
	StateOver:    {StateRunning},
}

// CanTransitionTo checks if transitioning from the current state to the target state is valid.
func (s GameState) CanTransitionTo(target GameState) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// ValidTransitions returns the list of valid target states from the current state.
func (s GameState) ValidTransitions() []GameState {
	return validTransitions[s]
}

// CanTrade returns true if orders may be placed and turns advanced.
func (s GameState) CanTrade() bool {
	return s == StateRunning
}

// TransitionError represents an invalid state transition attempt.
type TransitionError struct {
	From   GameState
	To     GameState
	Reason string
}

func (e *TransitionError) Error() string {
	allowed := make([]string, 0, len(validTransitions[e.From]))
	for _, t := range e.From.ValidTransitions() {
		allowed = append(allowed, t.String())
	}

	msg := fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg + " (allowed: " + strings.Join(allowed, ", ") + ")"
}

// NewTransitionError creates a new TransitionError.
func NewTransitionError(from, to GameState, reason string) *TransitionError {
	return &TransitionError{From: from, To: to, Reason: reason}
}
