package session

// ConnState is the negotiation/authentication phase of a connection.
type ConnState int32

const (
	StateUnauthenticated ConnState = iota
	StateAwaitingSessionSetup
	StateEstablished
)

func (s ConnState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAwaitingSessionSetup:
		return "awaiting_session_setup"
	case StateEstablished:
		return "established"
	}
	return "invalid"
}

// CanTransition reports whether from -> to is a legal move. LOGOFF takes an
// established connection back to awaiting_session_setup.
func CanTransition(from, to ConnState) bool {
	switch from {
	case StateUnauthenticated:
		return to == StateAwaitingSessionSetup
	case StateAwaitingSessionSetup:
		return to == StateEstablished
	case StateEstablished:
		return to == StateAwaitingSessionSetup
	}
	return false
}
