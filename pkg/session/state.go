package session

// State is the connection lifecycle state owned by the Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingPairing
	StateOpen
	StateClosing
	StateReconnecting
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingPairing:
		return "awaiting_pairing"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateReconnecting:
		return "reconnecting"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}
