package lifecycle

// State is a stage of the activation and heartbeat lifecycle
type State int

const (
	StateIdle State = iota
	StateActivating
	StateRegistering
	StateMonitoring
	StateShuttingDown
	StateTerminated
	// StateFailed is terminal; the run ended with an error
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:         "idle",
	StateActivating:   "activating",
	StateRegistering:  "registering",
	StateMonitoring:   "monitoring",
	StateShuttingDown: "shutting_down",
	StateTerminated:   "terminated",
	StateFailed:       "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the state name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s == StateTerminated || s == StateFailed
}

var transitions = map[State][]State{
	StateIdle:         {StateActivating},
	StateActivating:   {StateRegistering, StateFailed},
	StateRegistering:  {StateMonitoring, StateFailed},
	StateMonitoring:   {StateShuttingDown},
	StateShuttingDown: {StateTerminated, StateFailed},
}

// CanTransition reports whether from -> to is a legal transition
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
