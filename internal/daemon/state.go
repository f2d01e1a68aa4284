package daemon

// State is the scheduler's position in its lifecycle.
type State int

const (
	// StateInitializing validates the environment before the first check.
	StateInitializing State = iota
	// StateIdle waits for the throttle interval, a file event, or shutdown.
	StateIdle
	// StateChecking fingerprints and, if needed, converts the master file.
	StateChecking
	// StateDispatching sends changed records to the catalog.
	StateDispatching
	// StateFatal is terminal; Run has returned an error.
	StateFatal
	// StateStopped is terminal after a graceful shutdown.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateDispatching:
		return "dispatching"
	case StateFatal:
		return "fatal"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
