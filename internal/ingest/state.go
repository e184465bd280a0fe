package ingest

// State is the Supervisor's connection state.
type State int32

// Supervisor states. The order matters: ShuttingDown and Stopped are
// terminal and no transition leads back from them.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateShuttingDown
	StateStopped
)

// String returns the lower-case state name used in logs and the API.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// terminal reports whether s is ShuttingDown or Stopped.
func (s State) terminal() bool {
	return s >= StateShuttingDown
}
