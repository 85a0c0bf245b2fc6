package stream

// State is the connection lifecycle state.
type State int32

const (
	// StateIdle is the state before Start.
	StateIdle State = iota
	// StateConnecting means a subscription is being opened.
	StateConnecting
	// StateOpen means the transport signalled ready and frames are flowing.
	StateOpen
	// StateReconnecting means the last subscription failed and a retry is scheduled.
	StateReconnecting
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
