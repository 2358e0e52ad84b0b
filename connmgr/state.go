package connmgr

// State is a device connection lifecycle state. The session's own state is
// the in-flight guard: a discovery event for a device in any state other
// than StateDisconnected never starts a second attempt.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateDiscovering
	StateSubscribing
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateDiscovering:
		return "discovering"
	case StateSubscribing:
		return "subscribing"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}
