package session

// Status is the connection state of the session.
type Status int

const (
	// StatusIdle means no connection is active or wanted.
	StatusIdle Status = iota
	// StatusConnecting means a socket open is in flight.
	StatusConnecting
	// StatusConnected means the socket is open and the keep-alive loop runs.
	StatusConnected
	// StatusReconnecting means a reconnect timer is pending.
	StatusReconnecting
	// StatusDisconnected means the socket closed unexpectedly.
	StatusDisconnected
	// StatusError means the last operation failed (bad token, dial failure).
	StatusError
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusDisconnected:
		return "disconnected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// StatusObserver receives every status transition, paired with an optional
// human-readable detail. At most one observer is registered at a time.
type StatusObserver func(status Status, detail string)
