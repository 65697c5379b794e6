package protocol

import (
	"fmt"
	"strings"
)

// State is a stage lifecycle state.
type State int

const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Valid reports whether s is one of the four lifecycle states.
func (s State) Valid() bool {
	return s >= StateNull && s <= StatePlaying
}

// ParseState accepts the names produced by String, case-insensitively.
func ParseState(name string) (State, error) {
	for s := StateNull; s <= StatePlaying; s++ {
		if strings.EqualFold(name, s.String()) {
			return s, nil
		}
	}
	return StateNull, fmt.Errorf("unknown state %q", name)
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Transition is a single step between adjacent states.
type Transition struct {
	From, To State
}

var (
	NullToReady     = Transition{StateNull, StateReady}
	ReadyToPaused   = Transition{StateReady, StatePaused}
	PausedToPlaying = Transition{StatePaused, StatePlaying}
	PlayingToPaused = Transition{StatePlaying, StatePaused}
	PausedToReady   = Transition{StatePaused, StateReady}
	ReadyToNull     = Transition{StateReady, StateNull}
)

func (t Transition) String() string {
	return t.From.String() + "->" + t.To.String()
}

// Valid reports whether t moves exactly one step between valid states.
func (t Transition) Valid() bool {
	if !t.From.Valid() || !t.To.Valid() {
		return false
	}
	d := int(t.To) - int(t.From)
	return d == 1 || d == -1
}

// Path returns the single-step transitions that move from one state to another.
func Path(from, to State) []Transition {
	var steps []Transition
	for from != to {
		next := from + 1
		if to < from {
			next = from - 1
		}
		steps = append(steps, Transition{from, next})
		from = next
	}
	return steps
}

// StateChangeReturn is the outcome of a transition.
type StateChangeReturn int

const (
	StateChangeFailure StateChangeReturn = iota
	StateChangeSuccess
	StateChangeAsync
	// StateChangeNoPreroll means the stage cannot produce data in Paused, as with live sources.
	StateChangeNoPreroll
)

func (r StateChangeReturn) String() string {
	switch r {
	case StateChangeFailure:
		return "failure"
	case StateChangeSuccess:
		return "success"
	case StateChangeAsync:
		return "async"
	case StateChangeNoPreroll:
		return "no-preroll"
	default:
		return "unknown"
	}
}
