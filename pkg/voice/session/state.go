package session

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateNegotiating
	StateActive
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// next lists the forward transitions; Failed is reachable from any
// non-terminal state and is handled separately.
var next = map[State]State{
	StateIdle:        StateConnecting,
	StateConnecting:  StateNegotiating,
	StateNegotiating: StateActive,
	StateActive:      StateClosing,
	StateClosing:     StateClosed,
}

func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return next[from] == to
}
