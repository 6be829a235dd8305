package pipeline

// State is the coordinator's lifecycle position. It only moves forward.
type State int32

// Coordinator states.
const (
	StateIdle State = iota
	StateConsumerStarted
	StateProducersRunning
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConsumerStarted:
		return "consumer_started"
	case StateProducersRunning:
		return "producers_running"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON status payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
