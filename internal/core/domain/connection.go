package domain

import "time"

// ConnectionState is the lifecycle state of the upstream connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateStreaming
	StateBackoff
	StateShuttingDown
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
// ShuttingDown is reachable from every state.
var ValidTransitions = map[ConnectionState][]ConnectionState{
	StateDisconnected: {StateConnecting, StateShuttingDown},
	StateConnecting:   {StateStreaming, StateBackoff, StateShuttingDown},
	StateStreaming:    {StateBackoff, StateShuttingDown},
	StateBackoff:      {StateConnecting, StateShuttingDown},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to ConnectionState) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	From      ConnectionState
	To        ConnectionState
	Reason    string
	Backoff   time.Duration
	Timestamp time.Time
}
