package mtproto

// State - connection lifecycle
type State int32

const (
	StateDisconnected State = iota
	StateKeyExchanging
	StateAuthenticated
	StateMigrating
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateKeyExchanging:
		return "key_exchanging"
	case StateAuthenticated:
		return "authenticated"
	case StateMigrating:
		return "migrating"
	}
	return "unknown"
}
