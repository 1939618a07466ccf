package page

import "fmt"

// State is the page lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateCapturing
	StatePaused
	StateStopped
	StateClosed
	// StateUnavailabled marks a page whose renderer stalled or errored
	// mid-capture; it is never returned to the pool.
	StateUnavailabled
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateCapturing:
		return "capturing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	case StateUnavailabled:
		return "unavailabled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// validTransitions is the page state machine. UNAVAILABLED is reachable from
// any live state and terminal, like CLOSED.
var validTransitions = map[State][]State{
	StateUninitialized: {StateReady, StateClosed, StateUnavailabled},
	StateReady:         {StateCapturing, StateStopped, StateClosed, StateUnavailabled},
	StateCapturing:     {StatePaused, StateStopped, StateClosed, StateUnavailabled},
	StatePaused:        {StateCapturing, StateStopped, StateClosed, StateUnavailabled},
	StateStopped:       {StateReady, StateClosed, StateUnavailabled},
}

// canTransition reports whether from → to is a legal state change.
func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
