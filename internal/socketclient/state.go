package socketclient

// ConnectionState represents the current state of the connection
type ConnectionState int32

const (
	// StateDisconnected indicates there is no socket
	StateDisconnected ConnectionState = iota
	// StateConnecting indicates a socket is being dialed
	StateConnecting
	// StateAuthenticating indicates the credential message was sent and no
	// welcome has arrived yet
	StateAuthenticating
	// StateReady indicates authentication succeeded and requests flow
	StateReady
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}
